package runner

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"httpbench/internal/stats"
)

// SnapshotChan carries live stats to a progress UI. Sends are
// non-blocking; a slow consumer just misses updates.
type SnapshotChan chan stats.Snapshot

// Runner owns one run: the clock, the scheduler, and the frozen
// report once the run has finalized.
type Runner struct {
	Cfg  Config
	Exec Executor
	Live *stats.Live

	agg     *stats.Aggregator
	updates SnapshotChan
	log     *logrus.Entry

	startTime time.Time
	report    *stats.Report
}

// NewRunner validates the configuration and builds a runner. A nil
// updates channel is allowed for headless use without a UI.
func NewRunner(cfg Config, updates SnapshotChan) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if updates == nil {
		updates = make(SnapshotChan, 10)
	}

	return &Runner{
		Cfg:     cfg,
		Exec:    NewHTTPExecutor(cfg.timeout()),
		Live:    stats.NewLive(),
		agg:     stats.NewAggregator(),
		updates: updates,
		log:     logrus.WithField("component", "runner"),
	}, nil
}

// Run drives the run to completion and finalizes the report. On
// cancellation the outstanding requests are drained before the
// report is built, so the accounting still balances; the context
// error is returned alongside the partial report.
func (r *Runner) Run(ctx context.Context) (*stats.Report, error) {
	r.log.WithFields(logrus.Fields{
		"concurrency": r.Cfg.Concurrency,
		"quota":       r.Cfg.QuotaValue,
		"mode":        r.Cfg.QuotaKind,
	}).Info("starting run")

	tickCtx, stopTicks := context.WithCancel(context.Background())
	defer stopTicks()
	r.startTickLoop(tickCtx, 200*time.Millisecond)

	r.startTime = time.Now()
	sched := newScheduler(&r.Cfg, r.Exec, r.agg, r.Live)
	err := sched.run(ctx, r.startTime)
	totalTime := time.Since(r.startTime)

	if err != nil && (ctx.Err() == nil || errors.Is(err, ErrConsistency)) {
		// Consistency failure: the counters can't be trusted, so no
		// report is produced.
		return nil, err
	}

	r.report = r.buildReport(sched, totalTime)
	return r.report, err
}

// Report returns the finalized report. Stable across calls: the
// aggregation table is frozen once the run ends.
func (r *Runner) Report() *stats.Report {
	return r.report
}

func (r *Runner) buildReport(sched *scheduler, totalTime time.Duration) *stats.Report {
	rps := 0.0
	switch r.Cfg.QuotaKind {
	case QuotaCount:
		if totalTime > 0 {
			rps = float64(sched.done) / totalTime.Seconds()
		}
	case QuotaDuration:
		rps = float64(sched.done) / float64(r.Cfg.QuotaValue)
	}

	return &stats.Report{
		TotalTime:         totalTime,
		RequestsDone:      sched.done,
		Succeeded:         sched.succeeded,
		Failed:            sched.failed,
		RequestsPerSecond: rps,
		Endpoints:         r.agg.Endpoints(),
	}
}

// startTickLoop pushes snapshots for the progress UI until the run
// finishes.
func (r *Runner) startTickLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case r.updates <- r.Live.Snapshot():
				default:
					// Drop the update if the UI is behind.
				}
			}
		}
	}()
}
