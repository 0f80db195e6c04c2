// Package main provides the maprank command line: the HTTP API server and
// one-shot batch runs against the map search feed.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "maprank",
	Short: "Map search rank tracker",
	Long: `maprank finds the 1-based position of a named place in a map service's
search result feed, scrolling the feed until the place appears or the scroll
budget is spent. Sponsored entries take a position but never match.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if configPath != "" {
			return os.Setenv("MAPRANK_CONFIG", configPath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides MAPRANK_CONFIG)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
