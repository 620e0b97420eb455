package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "settlement-engine",
	Short: "Marketplace settlement engine for tokenized items",
	Long: `settlement-engine runs listings, auctions, offers and collection-wide
offers over a token ledger. Every operation settles atomically: payment,
fee split, royalty, item delivery and escrow either all commit or none do.`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file path (toml, yaml or json)")
}
