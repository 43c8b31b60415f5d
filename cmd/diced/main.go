package main

import (
	"fmt"
	"os"

	"github.com/sqfasd/asch-dice-game-dapp/cmd/diced/cmd"
)

func main() {
	rootCmd := cmd.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}
