// flakeseer is the flaky-test detector CLI: detect (run a target many
// times and score flakiness) and ci (score flakiness from CI history).
//
// Usage:
//
//	flakeseer detect <target> [--runs N] [--adapter gotest|pytest]
//	flakeseer ci github <owner/repo> [--branch <name>] [--days N]
//	flakeseer ci gitlab <project> [--branch <name>] [--days N]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// errFlakyFound distinguishes "detection worked, flakes exist" from
// real failures so main can exit 1 instead of 2.
var errFlakyFound = errors.New("flaky tests detected")

var rootCmd = &cobra.Command{
	Use:   "flakeseer",
	Short: "Detect, score and explain flaky tests",
	Long: "Flakeseer runs a test target many times in isolation, scores each\n" +
		"test's outcome sequence for flakiness, classifies likely root causes\n" +
		"from source signals and suggests concrete repairs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(ciCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errFlakyFound) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
