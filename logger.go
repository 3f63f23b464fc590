package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of log event
type EventType string

const (
	EventRunStart     EventType = "run_start"
	EventRunEnd       EventType = "run_end"
	EventTestStart    EventType = "test_start"
	EventTestEnd      EventType = "test_end"
	EventBrowserStart EventType = "browser_start"
	EventBrowserEnd   EventType = "browser_end"
	EventBrowserStep  EventType = "browser_step"
	EventCaptureStart EventType = "capture_start"
	EventCaptureEnd   EventType = "capture_end"
	EventIndexRecord  EventType = "index_record"
	EventFinalize     EventType = "finalize"
	EventReportStart  EventType = "report_start"
	EventReportEnd    EventType = "report_end"
	EventStateChange  EventType = "state_change"
	EventWarning      EventType = "warning"
	EventError        EventType = "error"
)

// Event represents a single log event
type Event struct {
	Timestamp time.Time              `json:"ts"`
	Type      EventType              `json:"type"`
	TestID    string                 `json:"test,omitempty"`
	Duration  *int64                 `json:"duration,omitempty"` // nanoseconds
	Success   *bool                  `json:"success,omitempty"`
	Message   string                 `json:"msg,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// RunLogger writes the JSONL event log of one failshot run
type RunLogger struct {
	file        *os.File
	encoder     *json.Encoder
	mu          sync.Mutex
	runNumber   int
	runID       string
	currentTest string
	startTime   time.Time
	dir         string
	enabled     bool
	config      *LoggingConfig

	testStart time.Time
}

// LoggingConfig configures the logging system
type LoggingConfig struct {
	Enabled           bool `json:"enabled"`
	MaxRuns           int  `json:"maxRuns"`
	ConsoleTimestamps bool `json:"consoleTimestamps"`
}

// DefaultLoggingConfig returns sensible defaults
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Enabled:           true,
		MaxRuns:           10,
		ConsoleTimestamps: true,
	}
}

// NopLogger returns a logger that records nothing
func NopLogger() *RunLogger {
	return &RunLogger{startTime: time.Now(), config: &LoggingConfig{}}
}

// NewRunLogger creates a new logger writing under stateDir/logs
func NewRunLogger(stateDir string, config *LoggingConfig) (*RunLogger, error) {
	if config == nil {
		config = DefaultLoggingConfig()
	}

	logger := &RunLogger{
		runID:     uuid.New().String(),
		dir:       stateDir,
		startTime: time.Now(),
		enabled:   config.Enabled,
		config:    config,
	}

	if !config.Enabled {
		return logger, nil
	}

	logsDir := LogsDir(stateDir)
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	runNumber := nextRunNumber(logsDir)
	logger.runNumber = runNumber

	// Keep room for the run being created
	if config.MaxRuns > 0 {
		rotateOldRuns(logsDir, config.MaxRuns-1)
	}

	logPath := filepath.Join(logsDir, fmt.Sprintf("run-%03d.jsonl", runNumber))
	file, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger.file = file
	logger.encoder = json.NewEncoder(file)

	return logger, nil
}

// Close closes the log file
func (l *RunLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// RunID returns the unique identifier recorded in run_start
func (l *RunLogger) RunID() string {
	return l.runID
}

// RunNumber returns the current run number
func (l *RunLogger) RunNumber() int {
	return l.runNumber
}

// LogPath returns the path to the current log file
func (l *RunLogger) LogPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Name()
	}
	return ""
}

func (l *RunLogger) logEvent(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || l.file == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.TestID == "" {
		event.TestID = l.currentTest
	}

	l.encoder.Encode(event)
}

// RunStart logs the start of a run
func (l *RunLogger) RunStart(suite string, testCount int) {
	l.logEvent(Event{
		Type: EventRunStart,
		Data: map[string]interface{}{
			"suite":      suite,
			"tests":      testCount,
			"run_number": l.runNumber,
			"run_id":     l.runID,
		},
	})
}

// RunEnd logs the end of a run
func (l *RunLogger) RunEnd(success bool, summary string) {
	duration := time.Since(l.startTime).Nanoseconds()
	l.logEvent(Event{
		Type:     EventRunEnd,
		Duration: &duration,
		Success:  &success,
		Message:  summary,
	})
}

// TestStart logs the start of a test
func (l *RunLogger) TestStart(id string) {
	l.mu.Lock()
	l.testStart = time.Now()
	l.currentTest = id
	l.mu.Unlock()

	l.logEvent(Event{Type: EventTestStart, TestID: id})
}

// TestEnd logs a test's terminal event
func (l *RunLogger) TestEnd(ev TestEvent) {
	duration := ev.Duration.Nanoseconds()
	success := ev.Outcome == OutcomePassed || ev.Outcome == OutcomeSkipped
	l.logEvent(Event{
		Type:     EventTestEnd,
		TestID:   ev.Identity,
		Duration: &duration,
		Success:  &success,
		Message:  ev.Message,
		Data: map[string]interface{}{
			"phase":   string(ev.Phase),
			"outcome": string(ev.Outcome),
		},
	})
}

// BrowserStart logs the browser session coming up
func (l *RunLogger) BrowserStart(success bool) {
	l.logEvent(Event{
		Type:    EventBrowserStart,
		TestID:  "-",
		Success: &success,
	})
}

// BrowserEnd logs browser session teardown
func (l *RunLogger) BrowserEnd(success bool, consoleErrors int) {
	l.logEvent(Event{
		Type:    EventBrowserEnd,
		Success: &success,
		Data: map[string]interface{}{
			"console_errors": consoleErrors,
		},
	})
}

// BrowserStep logs a browser step execution
func (l *RunLogger) BrowserStep(action string, success bool, details map[string]interface{}) {
	l.logEvent(Event{
		Type:    EventBrowserStep,
		Success: &success,
		Data: map[string]interface{}{
			"action":  action,
			"details": details,
		},
	})
}

// CaptureStart logs a screenshot attempt
func (l *RunLogger) CaptureStart(id, path string) {
	l.logEvent(Event{
		Type:   EventCaptureStart,
		TestID: id,
		Data: map[string]interface{}{
			"path": path,
		},
	})
}

// CaptureEnd logs the result of a screenshot attempt
func (l *RunLogger) CaptureEnd(id string, success bool, durationNs int64, err error) {
	event := Event{
		Type:     EventCaptureEnd,
		TestID:   id,
		Duration: &durationNs,
		Success:  &success,
	}
	if err != nil {
		event.Data = map[string]interface{}{"error": err.Error()}
	}
	l.logEvent(event)
}

// IndexRecord logs an artifact entering the correlation index
func (l *RunLogger) IndexRecord(id, path string) {
	l.logEvent(Event{
		Type:   EventIndexRecord,
		TestID: id,
		Data: map[string]interface{}{
			"path": path,
		},
	})
}

// Finalize logs the persisted document
func (l *RunLogger) Finalize(path string, tests, attached int) {
	l.logEvent(Event{
		Type:   EventFinalize,
		TestID: "-",
		Data: map[string]interface{}{
			"path":     path,
			"tests":    tests,
			"attached": attached,
		},
	})
}

// ReportStart logs the start of report synthesis
func (l *RunLogger) ReportStart(docPath string) {
	l.logEvent(Event{
		Type:   EventReportStart,
		TestID: "-",
		Data: map[string]interface{}{
			"doc": docPath,
		},
	})
}

// ReportEnd logs what synthesis produced
func (l *RunLogger) ReportEnd(success bool, result *SynthesisResult) {
	event := Event{
		Type:    EventReportEnd,
		TestID:  "-",
		Success: &success,
	}
	if result != nil {
		event.Data = map[string]interface{}{
			"text":         result.TextPath,
			"pdf":          result.PDFPath,
			"error_file":   result.ErrorPath,
			"embed_errors": len(result.EmbedErrors),
		}
	}
	l.logEvent(event)
}

// StateChange logs a pipeline state transition
func (l *RunLogger) StateChange(from, to string) {
	l.logEvent(Event{
		Type:   EventStateChange,
		TestID: "-",
		Data: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	})
}

// Warning logs a warning message
func (l *RunLogger) Warning(msg string) {
	l.logEvent(Event{
		Type:    EventWarning,
		Message: msg,
	})
}

// Error logs an error message
func (l *RunLogger) Error(msg string, err error) {
	data := make(map[string]interface{})
	if err != nil {
		data["error"] = err.Error()
	}
	l.logEvent(Event{
		Type:    EventError,
		Message: msg,
		Data:    data,
	})
}

// LogPrint prints a timestamped message to stdout
func (l *RunLogger) LogPrint(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.config != nil && l.config.ConsoleTimestamps {
		timestamp := time.Now().Format("15:04:05")
		fmt.Printf("[%s] %s", timestamp, msg)
	} else {
		fmt.Print(msg)
	}
}

// LogPrintln prints a timestamped message with newline to stdout
func (l *RunLogger) LogPrintln(args ...interface{}) {
	msg := fmt.Sprint(args...)
	if l.config != nil && l.config.ConsoleTimestamps {
		timestamp := time.Now().Format("15:04:05")
		fmt.Printf("[%s] %s\n", timestamp, msg)
	} else {
		fmt.Println(msg)
	}
}

// FormatDuration formats a duration for display
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.0fms", float64(d.Milliseconds()))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

func runLogNames(logsDir string) []string {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, "run-") && strings.HasSuffix(name, ".jsonl") {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return extractRunNumber(names[i]) < extractRunNumber(names[j])
	})
	return names
}

// nextRunNumber determines the next run number based on existing logs
func nextRunNumber(logsDir string) int {
	names := runLogNames(logsDir)
	if len(names) == 0 {
		return 1
	}
	return extractRunNumber(names[len(names)-1]) + 1
}

// rotateOldRuns deletes the oldest runs so that at most keep remain
func rotateOldRuns(logsDir string, keep int) {
	names := runLogNames(logsDir)
	if keep < 0 || len(names) <= keep {
		return
	}
	for _, name := range names[:len(names)-keep] {
		os.Remove(filepath.Join(logsDir, name))
	}
}

// extractRunNumber extracts the run number from a filename like "run-001.jsonl"
func extractRunNumber(filename string) int {
	numStr := strings.TrimPrefix(filename, "run-")
	numStr = strings.TrimSuffix(numStr, ".jsonl")
	num, _ := strconv.Atoi(numStr)
	return num
}

// LogsDir returns the path to the logs directory
func LogsDir(stateDir string) string {
	return filepath.Join(stateDir, "logs")
}

// RunSummary contains summary info about a run
type RunSummary struct {
	RunNumber int
	LogPath   string
	StartTime time.Time
	RunID     string
	EndTime   *time.Time
	Success   *bool
	Summary   string
}

// ListRuns returns all run logs, most recent first
func ListRuns(stateDir string) ([]RunSummary, error) {
	logsDir := LogsDir(stateDir)
	if _, err := os.Stat(logsDir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []RunSummary
	for _, name := range runLogNames(logsDir) {
		logPath := filepath.Join(logsDir, name)
		summary := RunSummary{
			RunNumber: extractRunNumber(name),
			LogPath:   logPath,
		}

		if first, last := readFirstLastEvents(logPath); first != nil {
			summary.StartTime = first.Timestamp
			summary.RunID, _ = first.Data["run_id"].(string)
			if last != nil && last.Type == EventRunEnd {
				summary.EndTime = &last.Timestamp
				summary.Success = last.Success
				summary.Summary = last.Message
			}
		}

		runs = append(runs, summary)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].RunNumber > runs[j].RunNumber
	})

	return runs, nil
}

// readFirstLastEvents reads the first and last events from a log file
func readFirstLastEvents(logPath string) (*Event, *Event) {
	events, err := ReadEvents(logPath, nil)
	if err != nil || len(events) == 0 {
		return nil, nil
	}
	return &events[0], &events[len(events)-1]
}

// ReadEvents reads events from a log file with optional filtering
func ReadEvents(logPath string, filter *EventFilter) ([]Event, error) {
	file, err := os.Open(logPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ReadEventsFromReader(file, filter)
}

// ReadEventsFromReader reads events from an io.Reader with optional filtering.
// Malformed lines are skipped.
func ReadEventsFromReader(r io.Reader, filter *EventFilter) ([]Event, error) {
	var events []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}

		if filter != nil && !filter.Match(&event) {
			continue
		}

		events = append(events, event)
	}

	return events, scanner.Err()
}

// EventFilter filters events when reading logs
type EventFilter struct {
	EventType EventType
	TestID    string
}

// Match returns true if the event matches the filter
func (f *EventFilter) Match(event *Event) bool {
	if f.EventType != "" && event.Type != f.EventType {
		return false
	}
	if f.TestID != "" && event.TestID != f.TestID {
		return false
	}
	return true
}

// CaptureSummary tallies screenshot activity in a run log
type CaptureSummary struct {
	Attempts  int
	Succeeded int
	Recorded  int
	Failures  map[string]string // test -> error
}

// SummarizeCaptures reads a run log and tallies capture events
func SummarizeCaptures(logPath string) (*CaptureSummary, error) {
	events, err := ReadEvents(logPath, nil)
	if err != nil {
		return nil, err
	}

	summary := &CaptureSummary{Failures: make(map[string]string)}
	for _, e := range events {
		switch e.Type {
		case EventCaptureStart:
			summary.Attempts++
		case EventCaptureEnd:
			if e.Success != nil && *e.Success {
				summary.Succeeded++
			} else if msg, ok := e.Data["error"].(string); ok {
				summary.Failures[e.TestID] = msg
			}
		case EventIndexRecord:
			summary.Recorded++
		}
	}
	return summary, nil
}
