package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sqfasd/asch-dice-game-dapp/internal/codec"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/assets"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

// RollRequest opens a roll. Without PointsHash a draw is generated and
// returned so the caller can reveal it later.
type RollRequest struct {
	Secret     string `json:"secret"`
	Amount     string `json:"amount"`
	MaxPlayer  string `json:"maxPlayer"`
	PointsHash string `json:"pointsHash,omitempty"`
}

type BetRequest struct {
	Secret string `json:"secret"`
	Amount string `json:"amount"`
	Rule   string `json:"rule"`
	Point  string `json:"point,omitempty"`
	RollID string `json:"rollId"`
}

// RevealRequest discloses a draw. Points are comma separated, e.g. "4,5,6".
type RevealRequest struct {
	Secret string `json:"secret"`
	Nonce  string `json:"nonce,omitempty"`
	Points string `json:"points"`
	RollID string `json:"rollId"`
}

// Submission is a signed, pooled transaction ready for broadcast.
type Submission struct {
	ID      string       `json:"transactionId"`
	TxBytes []byte       `json:"tx"`
	Draw    *assets.Draw `json:"draw,omitempty"`
}

// Submitter builds and signs dice transactions for a secret holder and
// admits them into the local pool.
type Submitter struct {
	pipeline *Pipeline
	now      func() time.Time
}

func NewSubmitter(p *Pipeline) *Submitter {
	if p == nil {
		panic("submitter: pipeline is nil")
	}
	return &Submitter{pipeline: p, now: time.Now}
}

func (s *Submitter) AddRoll(ctx context.Context, req RollRequest) (*Submission, error) {
	if req.Secret == "" || req.Amount == "" || req.MaxPlayer == "" {
		return nil, types.ErrInvalidParams.Wrap("secret, amount and maxPlayer are required")
	}
	amount, err := parseInt("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	maxPlayer, err := parseInt("maxPlayer", req.MaxPlayer)
	if err != nil {
		return nil, err
	}

	params := types.CreateParams{Amount: amount, MaxPlayer: maxPlayer, PointsHash: req.PointsHash}
	var draw *assets.Draw
	if params.PointsHash == "" {
		d, err := assets.RandomDraw()
		if err != nil {
			return nil, err
		}
		draw = &d
		params.PointsHash = d.Commitment()
	}
	sub, err := s.submit(ctx, req.Secret, types.TxTypeRoll, params)
	if err != nil {
		return nil, err
	}
	sub.Draw = draw
	return sub, nil
}

func (s *Submitter) AddBet(ctx context.Context, req BetRequest) (*Submission, error) {
	if req.Secret == "" || req.Amount == "" || req.Rule == "" || req.RollID == "" {
		return nil, types.ErrInvalidParams.Wrap("secret, amount, rule and rollId are required")
	}
	amount, err := parseInt("amount", req.Amount)
	if err != nil {
		return nil, err
	}
	rule, err := parseInt("rule", req.Rule)
	if err != nil {
		return nil, err
	}
	var point int64
	if req.Point != "" {
		if point, err = parseInt("point", req.Point); err != nil {
			return nil, err
		}
	}
	return s.submit(ctx, req.Secret, types.TxTypeBet, types.CreateParams{
		Amount: amount, Rule: rule, Point: point, RollID: req.RollID,
	})
}

func (s *Submitter) AddReveal(ctx context.Context, req RevealRequest) (*Submission, error) {
	if req.Secret == "" || req.Points == "" || req.RollID == "" {
		return nil, types.ErrInvalidParams.Wrap("secret, points and rollId are required")
	}
	var nonce int64
	if req.Nonce != "" {
		n, err := parseInt("nonce", req.Nonce)
		if err != nil {
			return nil, err
		}
		nonce = n
	}
	points, err := ParsePoints(req.Points)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, req.Secret, types.TxTypeReveal, types.CreateParams{
		Nonce: nonce, Points: points, RollID: req.RollID,
	})
}

// submit builds, signs and pools one transaction while holding the
// pipeline's sequence, so the sender balance it reads cannot go stale.
func (s *Submitter) submit(ctx context.Context, secret string, txType string, params types.CreateParams) (*Submission, error) {
	h, err := s.pipeline.router.Handler(txType)
	if err != nil {
		return nil, err
	}
	priv := codec.KeyFromSecret(secret)
	pub := priv.PubKey().Bytes()
	addr, err := codec.AddressFromPubKey(pub)
	if err != nil {
		return nil, err
	}

	var sub *Submission
	err = s.pipeline.seq.Do(ctx, func(ctx context.Context) error {
		if _, err := s.pipeline.ledger.GetAccount(ctx, addr); err != nil {
			return err
		}
		now := s.now()
		tx, err := h.Create(params, &types.Transaction{
			Timestamp:       now.Unix(),
			SenderPublicKey: pub,
			SenderID:        addr,
		})
		if err != nil {
			return err
		}
		txBytes, id, err := codec.SignTx(tx, priv, strconv.FormatInt(now.UnixNano(), 10))
		if err != nil {
			return err
		}
		tx.ID = id
		if err := s.pipeline.processUnconfirmed(ctx, tx); err != nil {
			return err
		}
		sub = &Submission{ID: tx.ID, TxBytes: txBytes}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func parseInt(field string, s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, types.ErrInvalidParams.Wrapf("%s must be an integer, got %q", field, s)
	}
	return n, nil
}

// ParsePoints reads comma separated dice such as "4,5,6".
func ParsePoints(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := parseInt("points", p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
