package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/flakeseer/flakeseer/internal/adapters/gotest"
	"github.com/flakeseer/flakeseer/internal/adapters/pytest"
	"github.com/flakeseer/flakeseer/internal/config"
	"github.com/flakeseer/flakeseer/internal/detect"
	"github.com/flakeseer/flakeseer/internal/logging"
	"github.com/flakeseer/flakeseer/internal/model"
	"github.com/flakeseer/flakeseer/internal/report"
	"github.com/flakeseer/flakeseer/internal/runner"
	"github.com/flakeseer/flakeseer/internal/workspace"
)

var detectFlags struct {
	runs           int
	timeoutPerRun  time.Duration
	sessionTimeout time.Duration
	parallel       int
	adapter        string
	outDir         string
	configPath     string
	analyze        bool
	suggest        bool
	failOnFlake    bool
	keepArtifacts  bool
	jsonOutput     bool
	verbose        bool
	topN           int
	logLevel       string
	logFormat      string
}

var detectCmd = &cobra.Command{
	Use:   "detect <target>",
	Short: "Run a test target repeatedly and report flaky tests",
	Long: `Detect runs the target N times in isolated run directories, collects
per-test outcomes and scores every test's sequence for flakiness.
Flaky tests are classified for likely root causes and paired with
repair suggestions.

The target is whatever the adapter's tool accepts: a Go package
pattern for gotest, a file or directory for pytest.

Usage:
  flakeseer detect ./...                        # Go packages, 10 runs
  flakeseer detect ./internal/cache --runs 30
  flakeseer detect tests/ --adapter pytest --parallel 4`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	f := detectCmd.Flags()
	f.IntVar(&detectFlags.runs, "runs", 0, "Number of runs (default 10)")
	f.DurationVar(&detectFlags.timeoutPerRun, "timeout", 0, "Timeout per run (default 5m)")
	f.DurationVar(&detectFlags.sessionTimeout, "session-timeout", 0, "Timeout for the whole session (default none)")
	f.IntVar(&detectFlags.parallel, "parallel", 0, "Concurrent runs (default 1; parallelism can mask or amplify flakes)")
	f.StringVar(&detectFlags.adapter, "adapter", "", "Test framework adapter: gotest or pytest (default gotest)")
	f.StringVarP(&detectFlags.outDir, "out", "o", "", "Output directory for reports and artifacts (default .flakeseer)")
	f.StringVar(&detectFlags.configPath, "config", "", "Config file path (default .flakeseer.yaml if present)")
	f.BoolVar(&detectFlags.analyze, "analyze", true, "Classify root causes of flaky tests")
	f.BoolVar(&detectFlags.suggest, "suggest", true, "Generate repair suggestions")
	f.BoolVar(&detectFlags.failOnFlake, "fail-on-flake", true, "Exit 1 when flaky tests are found")
	f.BoolVar(&detectFlags.keepArtifacts, "keep-artifacts", false, "Keep per-run artifacts after the session")
	f.BoolVar(&detectFlags.jsonOutput, "json", false, "Print the JSON report to stdout instead of the summary")
	f.BoolVarP(&detectFlags.verbose, "verbose", "v", false, "Show suggestion details in the summary")
	f.IntVar(&detectFlags.topN, "top", 5, "Number of flaky tests to detail in the summary")
	f.StringVar(&detectFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error (default info)")
	f.StringVar(&detectFlags.logFormat, "log-format", "", "Log format: text or json (default text)")
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logging.Init(parseLogLevel(cfg.LogLevel), cfg.LogFormat, os.Stderr)
	log := logging.New("cli")

	adapter, err := adapterFor(cfg.Adapter)
	if err != nil {
		return err
	}

	session, err := workspace.New(cfg.OutDir)
	if err != nil {
		return fmt.Errorf("create session workspace: %w", err)
	}
	if detectFlags.keepArtifacts {
		session.Keep()
	}
	defer func() {
		if err := session.Release(); err != nil {
			log.Warn("could not clean session directory", "error", err)
		}
	}()

	target := args[0]
	log.Info("starting detection session",
		"target", target, "adapter", cfg.Adapter, "runs", cfg.Runs, "parallel", cfg.Parallel)

	res, err := runner.Run(cmd.Context(), &runner.Config{
		Target:         target,
		Runs:           cfg.Runs,
		TimeoutPerRun:  cfg.TimeoutPerRun,
		SessionTimeout: cfg.SessionTimeout,
		Parallel:       cfg.Parallel,
		Adapter:        adapter,
		Executor:       &runner.ProcessExecutor{},
		Session:        session,
	})
	if err != nil {
		return fmt.Errorf("detection session failed: %w", err)
	}

	rpt := detect.BuildReport(target, adapter, res, detect.Options{
		Analyze: *cfg.Analyze,
		Suggest: *cfg.Suggest,
	})

	if err := writeReports(cfg.OutDir, rpt); err != nil {
		return err
	}

	if detectFlags.jsonOutput {
		data, err := report.MarshalJSON(rpt)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
	} else {
		tcfg := report.DefaultTerminalConfig(os.Stdout)
		tcfg.TopN = detectFlags.topN
		tcfg.Verbose = detectFlags.verbose
		if err := report.RenderTerminal(tcfg, rpt, filepath.Join(cfg.OutDir, "report.json")); err != nil {
			return err
		}
	}

	if *cfg.FailOnFlake && len(rpt.FlakyTests) > 0 {
		return errFlakyFound
	}
	return nil
}

// loadConfig layers explicit flags over the config file over defaults.
// Only flags the user actually set override the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := config.DefaultPath
	explicit := detectFlags.configPath != ""
	if explicit {
		path = detectFlags.configPath
	}
	cfg, err := config.Load(path, explicit)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("runs") {
		cfg.Runs = detectFlags.runs
	}
	if flags.Changed("timeout") {
		cfg.TimeoutPerRun = detectFlags.timeoutPerRun
	}
	if flags.Changed("session-timeout") {
		cfg.SessionTimeout = detectFlags.sessionTimeout
	}
	if flags.Changed("parallel") {
		cfg.Parallel = detectFlags.parallel
	}
	if flags.Changed("adapter") {
		cfg.Adapter = detectFlags.adapter
	}
	if flags.Changed("out") {
		cfg.OutDir = detectFlags.outDir
	}
	if flags.Changed("analyze") {
		cfg.Analyze = &detectFlags.analyze
	}
	if flags.Changed("suggest") {
		cfg.Suggest = &detectFlags.suggest
	}
	if flags.Changed("fail-on-flake") {
		cfg.FailOnFlake = &detectFlags.failOnFlake
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = detectFlags.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = detectFlags.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func adapterFor(name string) (model.Adapter, error) {
	switch name {
	case "gotest":
		return gotest.New(), nil
	case "pytest":
		return pytest.New(), nil
	}
	return nil, fmt.Errorf("unknown adapter %q (want gotest or pytest)", name)
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func writeReports(outDir string, rpt *model.Report) error {
	if err := report.WriteJSON(outDir, rpt); err != nil {
		return fmt.Errorf("write JSON report: %w", err)
	}
	if err := report.WriteMarkdown(outDir, rpt); err != nil {
		return fmt.Errorf("write Markdown report: %w", err)
	}
	return nil
}
