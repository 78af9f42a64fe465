package main

import (
	"fmt"
	"os"

	"signalhouse/overture/pkg/cli"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "overture",
	Short: "Overture - decision governance runtime for marketing automation",
	Long: `Overture is a decision governance runtime that gates marketing
actions behind guardrail checks, experiment allocation, and an
append-only audit ledger.

Campaign agents propose actions; Overture decides:
  - Guardrail checks from versioned policy packs (frequency, consent,
    tone, spam, financial, engagement, rate)
  - Deterministic experiment assignment with statistical evaluation
  - Every decision audited, replayable, and correctable by humans`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with the mapped code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
