package cmd

import (
	"encoding/hex"
	"errors"

	"github.com/spf13/cobra"

	"github.com/sqfasd/asch-dice-game-dapp/internal/codec"
)

type keyInfo struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
}

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Account key helpers",
	}
	cmd.AddCommand(keysShowCmd())
	return cmd
}

func keysShowCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the address and public key derived from a secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				return errors.New("--secret is required")
			}
			pub := codec.KeyFromSecret(secret).PubKey().Bytes()
			addr, err := codec.AddressFromPubKey(pub)
			if err != nil {
				return err
			}
			return printJSON(cmd, keyInfo{Address: addr, PublicKey: hex.EncodeToString(pub)})
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "account secret phrase")
	return cmd
}
