package main

import (
	"os"

	"jobboard-notify-be/internal/config"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed notification types and sample notifications",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
	},
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(typesCmd, applicationsCmd)
	if err := rootCmd.Execute(); err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}
}
