package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flakeseer/flakeseer/internal/ci"
	"github.com/flakeseer/flakeseer/internal/logging"
	"github.com/flakeseer/flakeseer/internal/model"
)

var ciFlags struct {
	token      string
	branch     string
	workflow   string
	days       int
	maxRuns    int
	minRuns    int
	baseURL    string
	jsonOutput bool
}

var ciCmd = &cobra.Command{
	Use:   "ci",
	Short: "Detect flaky tests from CI run history",
	Long: `Ci analyzes historical pipeline logs instead of rerunning tests
locally. Job logs are fetched from the CI provider, parsed into
per-test outcome histories and scored with the same flakiness scorer
the detect command uses.

Only tests observed in at least --min-runs runs are scored; root-cause
analysis needs local sources and is not available in this mode.`,
}

var ciGithubCmd = &cobra.Command{
	Use:   "github <owner/repo>",
	Short: "Analyze GitHub Actions workflow history",
	Long: `Usage:
  flakeseer ci github acme/widgets --branch main --days 14
  flakeseer ci github acme/widgets --token $GITHUB_TOKEN

The token is read from --token or the GITHUB_TOKEN environment
variable; public repositories work without one.`,
	Args: cobra.ExactArgs(1),
	RunE: runCIGithub,
}

var ciGitlabCmd = &cobra.Command{
	Use:   "gitlab <project>",
	Short: "Analyze GitLab CI pipeline history",
	Long: `The project is the numeric ID or the group/project path. The token
is read from --token or the GITLAB_TOKEN environment variable.

Usage:
  flakeseer ci gitlab 42 --branch main
  flakeseer ci gitlab mygroup/myproject --token $GITLAB_TOKEN`,
	Args: cobra.ExactArgs(1),
	RunE: runCIGitlab,
}

func init() {
	for _, c := range []*cobra.Command{ciGithubCmd, ciGitlabCmd} {
		f := c.Flags()
		f.StringVar(&ciFlags.token, "token", "", "API token")
		f.StringVar(&ciFlags.branch, "branch", "", "Branch or ref to analyze (default all)")
		f.IntVar(&ciFlags.days, "days", 7, "How many days of history to fetch")
		f.IntVar(&ciFlags.maxRuns, "max-runs", ci.DefaultMaxRuns, "Maximum CI runs to inspect")
		f.IntVar(&ciFlags.minRuns, "min-runs", ci.DefaultMinRuns, "Minimum observations before a test is scored")
		f.StringVar(&ciFlags.baseURL, "base-url", "", "API base URL for self-hosted instances")
		f.BoolVar(&ciFlags.jsonOutput, "json", false, "Print verdicts as JSON")
	}
	ciGithubCmd.Flags().StringVar(&ciFlags.workflow, "workflow", "", "Keep only runs of workflows whose name contains this")
	ciCmd.AddCommand(ciGithubCmd)
	ciCmd.AddCommand(ciGitlabCmd)
}

func runCIGithub(cmd *cobra.Command, args []string) error {
	logging.Init(parseLogLevel(""), "text", os.Stderr)

	token := ciFlags.token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	client := ci.NewGitHub(args[0], token)
	client.Workflow = ciFlags.workflow
	if ciFlags.baseURL != "" {
		client.BaseURL = ciFlags.baseURL
	}

	histories, err := client.Analyze(cmd.Context(), ciFlags.branch, ciFlags.days, ciFlags.maxRuns)
	if err != nil {
		return err
	}
	return printVerdicts(histories)
}

func runCIGitlab(cmd *cobra.Command, args []string) error {
	logging.Init(parseLogLevel(""), "text", os.Stderr)

	token := ciFlags.token
	if token == "" {
		token = os.Getenv("GITLAB_TOKEN")
	}

	client := ci.NewGitLab(args[0], token)
	if ciFlags.baseURL != "" {
		client.BaseURL = ciFlags.baseURL
	}

	histories, err := client.Analyze(cmd.Context(), ciFlags.branch, ciFlags.days, ciFlags.maxRuns)
	if err != nil {
		return err
	}
	return printVerdicts(histories)
}

func printVerdicts(histories ci.Histories) error {
	verdicts, err := histories.Verdicts(ciFlags.minRuns)
	if err != nil {
		return err
	}

	if ciFlags.jsonOutput {
		data, err := json.MarshalIndent(verdicts, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return flakeExit(verdicts)
	}

	if len(verdicts) == 0 {
		fmt.Println("No test observed often enough to score.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TEST\tSCORE\tPATTERN\tSEQUENCE")
	flaky := 0
	for _, v := range verdicts {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", v.TestID, v.Score, v.Pattern, v.Sequence)
		if v.Flaky() {
			flaky++
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d of %d scored tests look flaky.\n", flaky, len(verdicts))

	return flakeExit(verdicts)
}

func flakeExit(verdicts []model.FlakinessVerdict) error {
	for _, v := range verdicts {
		if v.Flaky() {
			return errFlakyFound
		}
	}
	return nil
}
