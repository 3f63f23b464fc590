package main

import (
	"context"
	"fmt"
	"strings"
)

// PipelineResult is what one `failshot run` produced
type PipelineResult struct {
	Totals   RunTotals
	Document *RunResultDocument
	Report   *SynthesisResult
}

// runPipeline runs the suite on session, persists the run-result document
// and, if stage is non-nil, synthesizes reports from it. Report failures are
// printed and never returned; a failed persist skips reporting.
func runPipeline(ctx context.Context, cfg *ResolvedConfig, suite *Suite, session BrowserSession, stage ReportStage, logger *RunLogger) (*PipelineResult, error) {
	store := NewArtifactStore(cfg.ScreenshotDir())
	rs := NewRunSession(cfg.ProjectRoot, cfg.ResultPath(), store, logger)
	defer rs.Close()

	bus, err := rs.Start()
	if err != nil {
		return nil, err
	}

	planned := suite.Plan()
	logger.RunStart(suite.Module, len(planned))

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println(" failshot - browser suite run")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf(" Suite: %s (%d tests)\n", suite.Module, len(planned))
	fmt.Printf(" Results: %s\n", cfg.ResultPath())
	fmt.Printf(" Screenshots: %s\n", store.Dir())
	if logger.LogPath() != "" {
		fmt.Printf(" Run: #%d (logs: %s)\n", logger.RunNumber(), logger.LogPath())
	}
	fmt.Println(strings.Repeat("=", 60))

	runner := NewRunner(session, bus, logger)
	totals := runner.Run(ctx, planned, cfg.ProjectRoot)

	pageErrors := consoleErrors(session)
	terminateErr := session.Terminate()
	if terminateErr != nil {
		logger.Warning(fmt.Sprintf("browser teardown: %v", terminateErr))
	}
	logger.BrowserEnd(terminateErr == nil, len(pageErrors))
	if len(pageErrors) > 0 {
		logger.LogPrint("⚠️ %d uncaught page error(s) during the run\n", len(pageErrors))
	}

	result := &PipelineResult{Totals: totals}

	doc, err := rs.Finalize()
	result.Document = doc
	if err != nil {
		logger.RunEnd(false, "persist failed")
		return result, err
	}
	fmt.Printf("✔️ %s written (%d passed, %d failed, %d error, %d skipped)\n",
		cfg.Config.Report.ResultPath, totals.Passed, totals.Failed, totals.Errored, totals.Skipped)

	if stage != nil {
		report, err := rs.Report(ctx, stage)
		if err != nil {
			logger.Warning(fmt.Sprintf("report synthesis: %v", err))
		}
		result.Report = report
	}

	summary := fmt.Sprintf("%d passed, %d failed", totals.Passed, totals.Failed)
	logger.RunEnd(totals.Failed == 0 && totals.Errored == 0, summary)
	return result, nil
}
