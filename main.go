package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		showHelp()
		os.Exit(0)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd != "upgrade" {
		startUpdateCheck()
		defer printUpdateNotice()
	}

	switch cmd {
	case "-h", "--help", "help":
		showHelp()
	case "-v", "--version", "version":
		fmt.Printf("failshot v%s\n", version)
	case "init":
		cmdInit(args)
	case "run":
		cmdRun(args)
	case "report":
		cmdReport(args)
	case "logs":
		cmdLogs(args)
	case "upgrade":
		cmdUpgrade(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprintln(os.Stderr, "Run 'failshot --help' for usage.")
		os.Exit(1)
	}
}

func showHelp() {
	fmt.Printf(`failshot v%s - browser test runs with failure screenshots and reports

Usage: failshot <command> [options]

Commands:
  init [--force]        Create failshot.config.json and an example suite
  run [suite]           Run a suite, capture failures, write report.json and reports
  report                Build TEST_REPORT.md / TEST_REPORT.pdf from report.json
  logs                  View run logs (--list, --run N, --captures, --type, --test)
  upgrade [--check]     Upgrade failshot to the latest version

Options:
  -h, --help            Show this help message
  -v, --version         Show version number

Examples:
  failshot init
  failshot run                          # uses suite from config
  failshot run e2e/login.suite.yaml --no-report
  failshot report --doc report.json --out build/

File Structure:
  failshot.config.json
  report.json                           # persisted run results
  screenshots/                          # one PNG per failed test
  TEST_REPORT.md, TEST_REPORT.pdf
  .failshot/
    logs/run-001.jsonl                  # pipeline event log
`, version)
}
