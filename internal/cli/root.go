// Package cli implements the PuffQuest command-line interface using Cobra.
// Each subcommand maps to one tracking or progression operation on the
// current user.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/puffquest/puffquest/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "puffquest",
	Short: "PuffQuest: cut down, level up",
	Long: `PuffQuest tracks cigarettes and vape puffs against a daily limit.
Days within the limit earn XP and coins, build a streak and unlock achievements.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version
	daemon.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
