package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqfasd/asch-dice-game-dapp/internal/app"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/assets"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

type commitmentOut struct {
	Points     []int64 `json:"points"`
	Nonce      int64   `json:"nonce"`
	PointsHash string  `json:"pointsHash"`
}

func commitmentCmd() *cobra.Command {
	var (
		points string
		nonce  int64
	)
	cmd := &cobra.Command{
		Use:   "commitment",
		Short: "Compute a roll's points hash, or draw a fresh one when --points is omitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var d assets.Draw
			if points == "" {
				var err error
				if d, err = assets.RandomDraw(); err != nil {
					return err
				}
			} else {
				p, err := app.ParsePoints(points)
				if err != nil {
					return err
				}
				if len(p) != types.DiceCount {
					return fmt.Errorf("want %d dice, got %d", types.DiceCount, len(p))
				}
				for _, face := range p {
					if face < 1 || face > types.DiceFaces {
						return fmt.Errorf("dice face %d out of range 1..%d", face, types.DiceFaces)
					}
				}
				d = assets.Draw{Points: p, Nonce: nonce}
			}
			return printJSON(cmd, commitmentOut{Points: d.Points, Nonce: d.Nonce, PointsHash: d.Commitment()})
		},
	}
	cmd.Flags().StringVar(&points, "points", "", "three dice faces, e.g. 4,5,6")
	cmd.Flags().Int64Var(&nonce, "nonce", 0, "commitment nonce")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
