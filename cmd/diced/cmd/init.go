package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sqfasd/asch-dice-game-dapp/internal/config"
)

func initCmd() *cobra.Command {
	var (
		overwrite bool
		allowMint bool
		addr      string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file under --home",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home := homeDir(cmd)
			cfg := config.Default()
			cfg.Dev.AllowMint = allowMint
			if addr != "" {
				cfg.ABCI.Addr = addr
			}
			path, err := config.WriteDefault(home, cfg, overwrite)
			if errors.Is(err, os.ErrExist) {
				return fmt.Errorf("%s already exists, pass --overwrite to replace it", path)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing config file")
	cmd.Flags().BoolVar(&allowMint, "allow-mint", false, "accept bank/mint transactions (devnets only)")
	cmd.Flags().StringVar(&addr, "addr", "", "ABCI listen address")
	return cmd
}
