package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"httpbench/internal/runner"
	"httpbench/internal/stats"
	"httpbench/internal/storage"
	"httpbench/internal/tui/live"
)

// Start runs a benchmark to completion and renders the report. With
// liveUI it shows the bubbletea dashboard, otherwise a progress line.
func Start(cfg runner.Config, liveUI bool) error {
	updates := make(runner.SnapshotChan, 100)
	r, err := runner.NewRunner(cfg, updates)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	printHeader(cfg)

	type outcome struct {
		report *stats.Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := r.Run(ctx)
		done <- outcome{report, err}
	}()

	var result outcome
	if liveUI {
		result = monitorLive(ctx, cancel, cfg, updates, done)
	} else {
		result = monitorHeadless(ctx, cfg, updates, done)
	}

	if result.err != nil && result.report == nil {
		return result.err
	}
	if result.err != nil {
		fmt.Printf("\n\nRun aborted: %v\n", result.err)
	}

	printReport(result.report)
	saveReport(cfg, result.report)
	saveHistory(cfg, result.report)
	return nil
}

func monitorHeadless[T any](ctx context.Context, cfg runner.Config, updates runner.SnapshotChan, done chan T) T {
	start := time.Now()
	for {
		select {
		case s := <-updates:
			printProgress(cfg, s, start)
		case result := <-done:
			return result
		case <-ctx.Done():
			// The runner drains and reports through done.
			result := <-done
			return result
		}
	}
}

func monitorLive[T any](ctx context.Context, cancel context.CancelFunc, cfg runner.Config, updates runner.SnapshotChan, done chan T) T {
	quota := 0
	var deadline time.Duration
	if cfg.QuotaKind == runner.QuotaCount {
		quota = cfg.QuotaValue
	} else {
		deadline = time.Duration(cfg.QuotaValue) * time.Second
	}

	m := live.NewModel(updates, quota, deadline)
	p := tea.NewProgram(m)

	var result T
	finished := make(chan struct{})
	go func() {
		result = <-done
		p.Send(live.RunFinished())
		close(finished)
	}()

	if _, err := p.Run(); err != nil {
		fmt.Printf("UI error: %v\n", err)
	}

	select {
	case <-finished:
	default:
		// UI quit before the run ended: abort and wait for the drain.
		cancel()
		<-finished
	}
	return result
}

func printHeader(cfg runner.Config) {
	fmt.Printf("\nSTARTING HTTP BENCHMARK\n")
	fmt.Printf("======================================================================\n")
	for _, t := range cfg.Targets {
		method := t.Method
		if method == "" {
			method = "GET"
		}
		fmt.Printf("Target     : %s %s\n", method, t.URL)
	}
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	if cfg.QuotaKind == runner.QuotaCount {
		fmt.Printf("Requests   : %d\n", cfg.QuotaValue)
	} else {
		fmt.Printf("Duration   : %ds\n", cfg.QuotaValue)
	}
	fmt.Printf("======================================================================\n\n")
}

func printProgress(cfg runner.Config, s stats.Snapshot, start time.Time) {
	var pct float64
	if cfg.QuotaKind == runner.QuotaCount {
		pct = float64(s.Done) / float64(cfg.QuotaValue)
	} else {
		pct = time.Since(start).Seconds() / float64(cfg.QuotaValue)
	}
	if pct > 1.0 {
		pct = 1.0
	}

	fmt.Printf("\r%s %3.0f%% | Inf: %3d | OK: %d | Err: %d | P99: %.1f ms",
		progressBar(pct, 20), pct*100,
		s.Inflight, s.Succeeded, s.Failed, s.P99TotalMs,
	)
}

func progressBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "]"
}

func printReport(report *stats.Report) {
	fmt.Printf("\n\nBENCHMARK RESULTS\n")
	fmt.Printf("======================================================================\n")
	fmt.Printf("Test took          : %.2f seconds\n", report.TotalTime.Seconds())
	fmt.Printf("Requests done      : %d\n", report.RequestsDone)
	fmt.Printf("Successful requests: %d\n", report.Succeeded)
	fmt.Printf("Failed requests    : %d\n", report.Failed)
	fmt.Printf("Requests per second: %.2f\n", report.RequestsPerSecond)
	fmt.Printf("\nSummary:\n")

	for _, ep := range report.Endpoints {
		fmt.Println(ep.Key)
		fmt.Printf(" - Number of requests: %d\n", ep.Count)
		fmt.Printf(" - Average request: %.2f sec\n", ep.AverageTotal.Seconds())
		fmt.Printf(" - Completed request timing percentiles (ms)\n")

		marks := make([]int, 0, len(ep.Percentiles))
		for p := range ep.Percentiles {
			marks = append(marks, p)
		}
		sort.Ints(marks)
		for _, p := range marks {
			fmt.Printf("   %3d%% %6d\n", p, int(ep.Percentiles[p]))
		}
		fmt.Println()
	}
	fmt.Printf("======================================================================\n")
}

func saveReport(cfg runner.Config, report *stats.Report) {
	if cfg.OutPrefix == "" {
		return
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err == nil {
		err = os.WriteFile(cfg.OutPrefix+"_report.json", data, 0644)
	}
	if err != nil {
		logrus.WithError(err).Warn("failed to write report file")
		return
	}
	fmt.Printf("\nSaved report to %s_report.json\n", cfg.OutPrefix)
}

func saveHistory(cfg runner.Config, report *stats.Report) {
	store, err := storage.NewStore()
	if err != nil {
		logrus.WithError(err).Warn("failed to open history store")
		return
	}
	defer store.Close()

	rec := storage.RunRecord{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Config:    cfg,
		Report:    *report,
	}
	if err := store.Save(rec); err != nil {
		logrus.WithError(err).Warn("failed to save run history")
	}
}
