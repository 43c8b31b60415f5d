package assets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

// GenerateCommitment is the points hash a roll publishes: hex SHA-256 over
// the comma-joined dice followed by the nonce, e.g. "4,5,6,12345".
func GenerateCommitment(points []int64, nonce int64) string {
	parts := make([]string, 0, len(points)+1)
	for _, p := range points {
		parts = append(parts, strconv.FormatInt(p, 10))
	}
	parts = append(parts, strconv.FormatInt(nonce, 10))
	sum := sha256.Sum256([]byte(strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}

// Draw is a hidden roll outcome kept by the roll's creator until reveal.
type Draw struct {
	Points []int64 `json:"points"`
	Nonce  int64   `json:"nonce"`
}

func (d Draw) Commitment() string {
	return GenerateCommitment(d.Points, d.Nonce)
}

// RandomDraw rolls three dice and picks a nonce in [0, MaxNonce].
func RandomDraw() (Draw, error) {
	points := make([]int64, types.DiceCount)
	faces := big.NewInt(types.DiceFaces)
	for i := range points {
		n, err := rand.Int(rand.Reader, faces)
		if err != nil {
			return Draw{}, fmt.Errorf("roll dice: %w", err)
		}
		points[i] = n.Int64() + 1
	}
	n, err := rand.Int(rand.Reader, big.NewInt(types.MaxNonce+1))
	if err != nil {
		return Draw{}, fmt.Errorf("draw nonce: %w", err)
	}
	return Draw{Points: points, Nonce: n.Int64()}, nil
}

// validPoints reports whether points is exactly three dice faces.
func validPoints(points []int64) bool {
	if len(points) != types.DiceCount {
		return false
	}
	for _, p := range points {
		if p < 1 || p > types.DiceFaces {
			return false
		}
	}
	return true
}
