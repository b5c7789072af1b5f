package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"notes/internal/obs"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "notes",
	Short: "A small multi-user notes service",
	Long: `notes serves a JSON API for per-user notes behind cookie sessions.
Configuration comes from the environment; see "notes serve --help".`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		obs.Init(verbose)
	},
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
