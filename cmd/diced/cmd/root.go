package cmd

import (
	"os"
	"path/filepath"

	"cosmossdk.io/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sqfasd/asch-dice-game-dapp/internal/config"
)

const flagHome = "home"

// DefaultHome is where diced keeps its config and data unless --home says
// otherwise.
var DefaultHome = func() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".diced"
	}
	return filepath.Join(dir, ".diced")
}()

// NewRootCmd creates the root command for diced. It is called once in main.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "diced",
		Short:         "Dice game ABCI application",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SetOut(cmd.OutOrStdout())
			cmd.SetErr(cmd.ErrOrStderr())
			return nil
		},
	}
	rootCmd.PersistentFlags().String(flagHome, DefaultHome, "directory for config and data")
	_ = v.BindPFlag(config.KeyHome, rootCmd.PersistentFlags().Lookup(flagHome))

	rootCmd.AddCommand(
		initCmd(),
		startCmd(v),
		keysCmd(),
		txCmd(),
		commitmentCmd(),
	)
	return rootCmd
}

func homeDir(cmd *cobra.Command) string {
	home, _ := cmd.Flags().GetString(flagHome)
	if home == "" {
		return DefaultHome
	}
	return home
}

// newLogger builds the process logger from the [log] section.
func newLogger(cfg config.Config) (log.Logger, error) {
	lvl, err := cfg.ZerologLevel()
	if err != nil {
		return nil, err
	}
	opts := []log.Option{log.LevelOption(lvl)}
	if cfg.Log.Format == "json" {
		opts = append(opts, log.OutputJSONOption())
	}
	return log.NewLogger(os.Stderr, opts...), nil
}
