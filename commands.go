package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func loadConfigOrExit() *ResolvedConfig {
	cfg, err := LoadConfig(GetProjectRoot())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite existing files")
	fs.BoolVar(force, "f", false, "Overwrite existing files (shorthand)")
	fs.Parse(args)

	projectRoot := GetProjectRoot()
	configPath := ConfigPath(projectRoot)

	if fileExists(configPath) && !*force {
		fmt.Fprintf(os.Stderr, "%s already exists at %s\n", configFileName, configPath)
		fmt.Fprintln(os.Stderr, "Use --force to overwrite.")
		os.Exit(1)
	}

	suitePath, err := initProject(projectRoot, *force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	fmt.Println("Initialized failshot:")
	fmt.Printf("  Config: %s\n", configPath)
	fmt.Printf("  Suite: %s\n", suitePath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Set baseUrl in " + configFileName)
	fmt.Println("  2. Run 'failshot run' to execute the suite")
}

// initProject writes the default config, an example suite (unless one exists)
// and the state directory. Returns the suite path.
func initProject(projectRoot string, force bool) (string, error) {
	if err := WriteDefaultConfig(projectRoot); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}

	cfg := DefaultConfig()
	suitePath := filepath.Join(projectRoot, cfg.Suite)
	if !fileExists(suitePath) || force {
		if err := WriteExampleSuite(suitePath); err != nil {
			return "", fmt.Errorf("failed to write example suite: %w", err)
		}
	}

	stateDir := StateDir(projectRoot)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", stateDir, err)
	}
	gitignore := "# failshot local state\nrun.lock\nlogs/\n"
	if err := os.WriteFile(filepath.Join(stateDir, ".gitignore"), []byte(gitignore), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write .gitignore: %v\n", err)
	}
	return suitePath, nil
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	noReport := fs.Bool("no-report", false, "Persist results without synthesizing reports")
	baseURL := fs.String("base-url", "", "Override baseUrl from config")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: failshot run [suite] [options]")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}

	// Suite argument may come before flags
	var suiteArg string
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		suiteArg = args[0]
		args = args[1:]
	}
	fs.Parse(args)
	if suiteArg == "" && fs.NArg() > 0 {
		suiteArg = fs.Arg(0)
	}

	cfg := loadConfigOrExit()
	if suiteArg != "" {
		abs, err := filepath.Abs(suiteArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.Config.Suite = abs
	}
	if *baseURL != "" {
		cfg.Config.BaseURL = *baseURL
		if err := validateConfig(&cfg.Config); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	suite, err := LoadSuite(cfg.SuitePath(), cfg.ProjectRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if suite.BaseURL == "" {
		suite.BaseURL = cfg.Config.BaseURL
	}
	if !cfg.Config.Browser.Enabled {
		fmt.Fprintln(os.Stderr, "Error: browser.enabled is false in "+configFileName)
		os.Exit(1)
	}

	cleanup := NewCleanupCoordinator()

	logger, err := NewRunLogger(StateDir(cfg.ProjectRoot), cfg.Config.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	cleanup.SetLogger(logger)
	defer cleanup.Cleanup("")

	lock := NewRunLock(cfg.ProjectRoot)
	if err := lock.Acquire(suite.Module, cfg.ResultPath()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cleanup.SetLock(lock)

	server := NewAppServer(cfg.ProjectRoot, *cfg.Config.Server)
	if server.Configured() {
		cleanup.SetServer(server)
		if err := server.EnsureRunning(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			cleanup.Cleanup("server not ready")
			os.Exit(1)
		}
	}

	session := NewChromeSession(cfg.Config.Browser, suite.BaseURL)
	cleanup.SetSession(session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nInterrupted. Cleaning up and exiting...")
		cancel()
		cleanup.Cleanup("interrupted by signal")
		os.Exit(130)
	}()

	var stage ReportStage
	if !*noReport {
		stage = NewSynthesizer(cfg.ReportOptions(), logger)
	}

	result, err := runPipeline(ctx, cfg, suite, session, stage, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cleanup.Cleanup("")
		os.Exit(1)
	}

	if result.Totals.Failed > 0 || result.Totals.Errored > 0 {
		cleanup.Cleanup("")
		os.Exit(1)
	}
}

func cmdReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	docPath := fs.String("doc", "", "Run-result document (default: report.resultPath from config)")
	outDir := fs.String("out", "", "Output directory (default: report.outputDir from config)")
	noPDF := fs.Bool("no-pdf", false, "Only write the markdown report")
	fs.Parse(args)

	cfg := loadConfigOrExit()
	opts := cfg.ReportOptions()
	if *outDir != "" {
		opts.OutputDir = *outDir
	}
	if *noPDF {
		opts.PDF = false
	}

	path := cfg.ResultPath()
	if *docPath != "" {
		path = *docPath
	}

	if info, _ := ReadLockStatus(cfg.ProjectRoot); info != nil && info.PID != os.Getpid() {
		fmt.Printf("⚠️ A run is in progress (PID %d); %s may be from the previous run\n", info.PID, filepath.Base(path))
	}

	synth := NewSynthesizer(opts, nil)
	if _, err := synth.Synthesize(context.Background(), path); err != nil {
		// Missing or unreadable documents skip synthesis without failing the caller
		if !errors.Is(err, ErrPersistenceMissing) {
			var docErr *DocumentError
			if !errors.As(err, &docErr) {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}
	}
}

func cmdLogs(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	runNum := fs.Int("run", 0, "Show specific run number (default: latest)")
	listRuns := fs.Bool("list", false, "List all runs")
	tail := fs.Int("tail", 50, "Show last N events")
	eventType := fs.String("type", "", "Filter by event type")
	testID := fs.String("test", "", "Filter by test identity")
	jsonOutput := fs.Bool("json", false, "Output raw JSONL")
	captures := fs.Bool("captures", false, "Summarize screenshot captures")
	fs.Parse(args)

	projectRoot := GetProjectRoot()
	runs, err := ListRuns(StateDir(projectRoot))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading logs: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("No logs found")
		fmt.Println("Run 'failshot run' to create logs.")
		return
	}

	if *listRuns {
		writeRunTable(os.Stdout, runs)
		return
	}

	target := &runs[0]
	if *runNum > 0 {
		target = nil
		for i := range runs {
			if runs[i].RunNumber == *runNum {
				target = &runs[i]
				break
			}
		}
		if target == nil {
			fmt.Fprintf(os.Stderr, "Run #%d not found\n", *runNum)
			os.Exit(1)
		}
	}

	if *captures {
		summary, err := SummarizeCaptures(target.LogPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading log: %v\n", err)
			os.Exit(1)
		}
		writeCaptureSummary(os.Stdout, target.RunNumber, summary)
		return
	}

	events, err := ReadEvents(target.LogPath, &EventFilter{EventType: EventType(*eventType), TestID: *testID})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading log: %v\n", err)
		os.Exit(1)
	}
	if len(events) > *tail {
		events = events[len(events)-*tail:]
	}
	for _, e := range events {
		if *jsonOutput {
			data, _ := json.Marshal(e)
			fmt.Println(string(data))
		} else {
			printEvent(&e)
		}
	}
}

// writeCaptureSummary prints capture totals and the failures sorted by test
func writeCaptureSummary(w io.Writer, runNumber int, summary *CaptureSummary) {
	fmt.Fprintf(w, "Run #%d captures: %d attempted, %d written, %d recorded\n",
		runNumber, summary.Attempts, summary.Succeeded, summary.Recorded)
	ids := make([]string, 0, len(summary.Failures))
	for id := range summary.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "  ✗ %s: %s\n", id, summary.Failures[id])
	}
}

// writeRunTable prints one row per run log, most recent first
func writeRunTable(w io.Writer, runs []RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"", "Run", "Started", "Duration", "Summary"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Run", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Summary", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, run := range runs {
		status := "○"
		if run.Success != nil {
			if *run.Success {
				status = "✓"
			} else {
				status = "✗"
			}
		}
		duration := "-"
		if run.EndTime != nil {
			duration = FormatDuration(run.EndTime.Sub(run.StartTime))
		}
		t.AppendRow(table.Row{
			status,
			fmt.Sprintf("#%d", run.RunNumber),
			run.StartTime.Format("2006-01-02 15:04:05"),
			duration,
			run.Summary,
		})
	}
	t.Render()
}

func printEvent(e *Event) {
	timestamp := e.Timestamp.Format("15:04:05")
	status := "✗"
	if e.Success != nil && *e.Success {
		status = "✓"
	}
	duration := ""
	if e.Duration != nil {
		duration = fmt.Sprintf(" (%s)", FormatDuration(time.Duration(*e.Duration)))
	}

	switch e.Type {
	case EventRunStart:
		suite, _ := e.Data["suite"].(string)
		fmt.Printf("[%s] === Run started: %s ===\n", timestamp, suite)
	case EventRunEnd:
		fmt.Printf("[%s] === Run ended%s: %s ===\n", timestamp, duration, e.Message)
	case EventTestEnd:
		outcome, _ := e.Data["outcome"].(string)
		phase, _ := e.Data["phase"].(string)
		fmt.Printf("[%s] %s %s [%s/%s]%s\n", timestamp, status, e.TestID, phase, outcome, duration)
		if e.Message != "" {
			fmt.Printf("         %s\n", e.Message)
		}
	case EventCaptureStart:
		path, _ := e.Data["path"].(string)
		fmt.Printf("[%s]   → capturing %s\n", timestamp, path)
	case EventCaptureEnd:
		fmt.Printf("[%s]   %s capture%s\n", timestamp, status, duration)
		if msg, ok := e.Data["error"].(string); ok {
			fmt.Printf("         %s\n", msg)
		}
	case EventFinalize:
		path, _ := e.Data["path"].(string)
		fmt.Printf("[%s] ◆ Persisted %s\n", timestamp, path)
	case EventStateChange:
		from, _ := e.Data["from"].(string)
		to, _ := e.Data["to"].(string)
		fmt.Printf("[%s] ↔ State: %s → %s\n", timestamp, from, to)
	case EventWarning:
		fmt.Printf("[%s] ! Warning: %s\n", timestamp, e.Message)
	case EventError:
		fmt.Printf("[%s] ✗ Error: %s\n", timestamp, e.Message)
		if errMsg, ok := e.Data["error"].(string); ok {
			fmt.Printf("         %s\n", errMsg)
		}
	default:
		fmt.Printf("[%s] %s", timestamp, e.Type)
		if e.TestID != "" && e.TestID != "-" {
			fmt.Printf(" [%s]", e.TestID)
		}
		if e.Message != "" {
			fmt.Printf(": %s", e.Message)
		}
		fmt.Println()
	}
}
