package cmd

import (
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sqfasd/asch-dice-game-dapp/internal/app"
	"github.com/sqfasd/asch-dice-game-dapp/internal/codec"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/assets"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

type signedOut struct {
	ID   string       `json:"id"`
	Tx   string       `json:"tx"`
	Draw *assets.Draw `json:"draw,omitempty"`
}

// txCmd builds and signs dice transactions offline. The hex output is the
// raw ABCI tx, ready for broadcast_tx_sync.
func txCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Build and sign dice transactions",
	}
	cmd.PersistentFlags().String("secret", "", "sender secret phrase")
	cmd.AddCommand(txRollCmd(), txBetCmd(), txRevealCmd())
	return cmd
}

func txRollCmd() *cobra.Command {
	var (
		amount     int64
		maxPlayer  int64
		pointsHash string
	)
	cmd := &cobra.Command{
		Use:   "roll",
		Short: "Open a roll, escrowing --amount base units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var draw *assets.Draw
			if pointsHash == "" {
				d, err := assets.RandomDraw()
				if err != nil {
					return err
				}
				draw = &d
				pointsHash = d.Commitment()
			}
			return signAndPrint(cmd, &types.Transaction{
				Type:   types.TxTypeRoll,
				Amount: amount,
				Asset:  types.Asset{Roll: &types.RollAsset{MaxPlayer: maxPlayer, PointsHash: pointsHash}},
			}, draw)
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "escrow in base units")
	cmd.Flags().Int64Var(&maxPlayer, "max-player", 1, "maximum number of bets")
	cmd.Flags().StringVar(&pointsHash, "points-hash", "", "commitment; drawn locally and printed when omitted")
	return cmd
}

func txBetCmd() *cobra.Command {
	var (
		amount int64
		rule   int64
		point  int64
		rollID string
	)
	cmd := &cobra.Command{
		Use:   "bet",
		Short: "Wager --amount base units on an open roll",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return signAndPrint(cmd, &types.Transaction{
				Type:   types.TxTypeBet,
				Amount: amount,
				Asset:  types.Asset{Bet: &types.BetAsset{Rule: rule, Point: point, RollID: rollID}},
			}, nil)
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "wager in base units")
	cmd.Flags().Int64Var(&rule, "rule", 0, "1 = big/small, 2 = face count, 3 = total")
	cmd.Flags().Int64Var(&point, "point", 0, "the side or sum bet on")
	cmd.Flags().StringVar(&rollID, "roll-id", "", "roll transaction id")
	return cmd
}

func txRevealCmd() *cobra.Command {
	var (
		nonce  int64
		points string
		rollID string
	)
	cmd := &cobra.Command{
		Use:   "reveal",
		Short: "Disclose a roll's dice and settle its bets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := app.ParsePoints(points)
			if err != nil {
				return err
			}
			return signAndPrint(cmd, &types.Transaction{
				Type:  types.TxTypeReveal,
				Asset: types.Asset{Reveal: &types.RevealAsset{Nonce: nonce, Points: p, RollID: rollID}},
			}, nil)
		},
	}
	cmd.Flags().Int64Var(&nonce, "nonce", 0, "commitment nonce")
	cmd.Flags().StringVar(&points, "points", "", "three dice faces, e.g. 4,5,6")
	cmd.Flags().StringVar(&rollID, "roll-id", "", "roll transaction id")
	return cmd
}

func signAndPrint(cmd *cobra.Command, tx *types.Transaction, draw *assets.Draw) error {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		return errors.New("--secret is required")
	}
	priv := codec.KeyFromSecret(secret)
	pub := priv.PubKey().Bytes()
	addr, err := codec.AddressFromPubKey(pub)
	if err != nil {
		return err
	}
	now := time.Now()
	tx.Timestamp = now.Unix()
	tx.SenderPublicKey = pub
	tx.SenderID = addr
	tx.Fee = types.TxFee

	b, id, err := codec.SignTx(tx, priv, strconv.FormatInt(now.UnixNano(), 10))
	if err != nil {
		return err
	}
	return printJSON(cmd, signedOut{ID: id, Tx: hex.EncodeToString(b), Draw: draw})
}
