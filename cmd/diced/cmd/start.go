package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"cosmossdk.io/log"
	"github.com/cometbft/cometbft/abci/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sqfasd/asch-dice-game-dapp/internal/app"
	"github.com/sqfasd/asch-dice-game-dapp/internal/config"
	"github.com/sqfasd/asch-dice-game-dapp/internal/state"
	"github.com/sqfasd/asch-dice-game-dapp/internal/store"
)

func startCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the ABCI server until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, homeDir(cmd))
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
	cmd.Flags().String("addr", "", "ABCI listen address (overrides abci.addr)")
	cmd.Flags().String("transport", "", "ABCI transport: socket|grpc (overrides abci.transport)")
	cmd.Flags().Bool("allow-mint", false, "accept bank/mint transactions (overrides dev.allow_mint)")
	_ = v.BindPFlag(config.KeyABCIAddr, cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag(config.KeyABCITransport, cmd.Flags().Lookup("transport"))
	_ = v.BindPFlag(config.KeyDevAllowMint, cmd.Flags().Lookup("allow-mint"))
	return cmd
}

func run(ctx context.Context, cfg config.Config, logger log.Logger) error {
	for _, dir := range []string{cfg.DB.Dir, filepath.Dir(cfg.Store.Path)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	ledger, err := state.Open(cfg.DB.Backend, cfg.DB.Dir)
	if err != nil {
		return err
	}
	defer ledger.Close()

	st, err := store.Open(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	a, err := app.New(ctx, ledger, st, logger, app.Options{AllowMint: cfg.Dev.AllowMint})
	if err != nil {
		return err
	}

	srv, err := server.NewServer(cfg.ABCI.Addr, cfg.ABCI.Transport, a)
	if err != nil {
		return fmt.Errorf("abci server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("abci server start: %w", err)
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			logger.Error("abci server stop", "err", err)
		}
	}()

	logger.Info("diced listening", "addr", cfg.ABCI.Addr, "transport", cfg.ABCI.Transport, "home", cfg.Home)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
