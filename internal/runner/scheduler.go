package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"httpbench/internal/stats"
)

type phase int

const (
	phaseIdle phase = iota
	phaseRunning
	phaseDraining
	phaseCompleted
)

// completion is the single message a unit of work sends back when it
// reaches a terminal outcome.
type completion struct {
	unit    uuid.UUID
	key     string
	attempt *Attempt // nil on transport failure
	err     error    // nil on success
}

// scheduler owns all run state. It is the only goroutine that
// mutates the counters and writes to the aggregator; admitted units
// run concurrently but report back through the completions channel,
// so completions are processed strictly one at a time.
type scheduler struct {
	cfg  *Config
	exec Executor
	agg  *stats.Aggregator
	live *stats.Live
	tmpl *TemplateEngine
	log  *logrus.Entry

	completions chan completion
	outstanding map[uuid.UUID]struct{}

	phase     phase
	running   int
	done      int
	succeeded int
	failed    int

	quota    int       // count mode
	deadline time.Time // duration mode

	stepPermille int
	lastStep     int

	nextTarget int
}

func newScheduler(cfg *Config, exec Executor, agg *stats.Aggregator, live *stats.Live) *scheduler {
	s := &scheduler{
		cfg:         cfg,
		exec:        exec,
		agg:         agg,
		live:        live,
		tmpl:        NewTemplateEngine(),
		log:         logrus.WithField("component", "scheduler"),
		completions: make(chan completion, cfg.Concurrency),
		outstanding: make(map[uuid.UUID]struct{}),
		phase:       phaseIdle,
	}

	if cfg.QuotaKind == QuotaCount {
		s.quota = cfg.QuotaValue
		s.stepPermille = statusStepPermille(cfg.QuotaValue)
	} else {
		s.stepPermille = 100 // 10% of elapsed time
	}
	return s
}

// statusStepPermille picks the progress step for a request quota, in
// thousandths so the 2.5% band stays integral.
func statusStepPermille(quota int) int {
	switch {
	case quota < 100:
		return 500 // 50%
	case quota < 1000:
		return 200 // 20%
	case quota < 10000:
		return 100 // 10%
	case quota < 25000:
		return 50 // 5%
	default:
		return 25 // 2.5%
	}
}

// run drives the scheduler to completion. The returned error is nil
// on a normal finish, the context error on abort, or a consistency
// error if the accounting invariants break.
func (s *scheduler) run(ctx context.Context, start time.Time) error {
	s.phase = phaseRunning
	if s.cfg.QuotaKind == QuotaDuration {
		s.deadline = start.Add(time.Duration(s.cfg.QuotaValue) * time.Second)
	}

	// The ticker re-evaluates admission while idle and notices the
	// deadline passing in duration mode.
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for s.phase != phaseCompleted {
		s.admitAvailable(ctx)

		select {
		case c := <-s.completions:
			if err := s.complete(c); err != nil {
				return err
			}
		case <-tick.C:
			s.reportElapsed(start)
		case <-ctx.Done():
			return s.abort(ctx)
		}
		s.advancePhase()
	}
	return nil
}

// canAdmit is the admission predicate: stay under the concurrency
// limit, and in count mode never have more work outstanding than is
// still needed to satisfy the quota.
func (s *scheduler) canAdmit() bool {
	if s.phase != phaseRunning || s.running >= s.cfg.Concurrency {
		return false
	}
	if s.cfg.QuotaKind == QuotaCount {
		return s.quota-s.done > s.running
	}
	return time.Now().Before(s.deadline)
}

func (s *scheduler) admitAvailable(ctx context.Context) {
	for s.canAdmit() {
		s.admitOne(ctx)
	}
}

func (s *scheduler) admitOne(ctx context.Context) {
	tgt, err := s.resolveTarget()
	if err != nil {
		// A broken template fails the unit without a transfer.
		s.log.WithError(err).Warn("failed to build request")
		s.done++
		s.failed++
		s.live.AddCompletion(false, 0, false)
		return
	}

	key := stats.EndpointKey(tgt.URL, s.cfg.IncludeQueryInKey)
	id := uuid.New()
	s.outstanding[id] = struct{}{}
	s.running++
	s.live.AddInflight(1)

	queuedAt := time.Now()
	go func() {
		att, err := s.exec.Execute(ctx, tgt, queuedAt)
		if err == nil && att.Status != tgt.WantStatus {
			err = &StatusMismatchError{Want: tgt.WantStatus, Got: att.Status}
		}
		s.completions <- completion{unit: id, key: key, attempt: att, err: err}
	}()
}

// resolveTarget picks the next target round-robin and expands its
// templates for this admission.
func (s *scheduler) resolveTarget() (Target, error) {
	tgt := s.cfg.Targets[s.nextTarget%len(s.cfg.Targets)]
	s.nextTarget++

	var err error
	if tgt.URL, err = s.tmpl.Expand("url", tgt.URL); err != nil {
		return Target{}, err
	}
	if tgt.Body, err = s.tmpl.Expand("body", tgt.Body); err != nil {
		return Target{}, err
	}
	if tgt.WantStatus == 0 {
		tgt.WantStatus = 200
	}
	return tgt, nil
}

// complete processes exactly one completion event.
func (s *scheduler) complete(c completion) error {
	if _, ok := s.outstanding[c.unit]; !ok {
		return fmt.Errorf("%w: duplicate completion for unit %s", ErrConsistency, c.unit)
	}
	delete(s.outstanding, c.unit)

	s.running--
	s.done++
	s.live.AddInflight(-1)

	if s.cfg.QuotaKind == QuotaCount && s.done > s.quota {
		return fmt.Errorf("%w: %d requests done with a quota of %d", ErrConsistency, s.done, s.quota)
	}

	// The sample is stored for every resolved transfer, before the
	// pass/fail decision: latency reporting covers failures too.
	measured := c.attempt != nil
	if measured {
		s.agg.RecordSample(c.key, c.attempt.Sample)
	}

	var total time.Duration
	if measured {
		total = c.attempt.Sample.Total
	}
	if c.err == nil {
		s.succeeded++
	} else {
		s.failed++
		s.log.WithError(c.err).WithField("endpoint", c.key).Debug("request failed")
	}
	s.live.AddCompletion(c.err == nil, total, measured)

	if s.cfg.QuotaKind == QuotaCount {
		s.reportProgress()
	}
	return nil
}

// reportProgress emits a status line each time the completion
// percentage crosses a step boundary. The step index is integer
// arithmetic in permille, never floating-point modulo.
func (s *scheduler) reportProgress() {
	idx := s.done * 1000 / s.quota / s.stepPermille
	if idx > s.lastStep {
		s.lastStep = idx
		s.log.Infof("Completed %d requests (%g%%)", s.done, float64(idx*s.stepPermille)/10)
	}
}

// reportElapsed is the duration-mode progress line, stepped on
// elapsed wall-clock time.
func (s *scheduler) reportElapsed(start time.Time) {
	if s.cfg.QuotaKind != QuotaDuration {
		return
	}
	total := time.Duration(s.cfg.QuotaValue) * time.Second
	idx := int(time.Since(start) * 1000 / total / time.Duration(s.stepPermille))
	if idx > s.lastStep && idx*s.stepPermille <= 1000 {
		s.lastStep = idx
		s.log.Infof("Elapsed %d%%, %d requests completed", idx*s.stepPermille/10, s.done)
	}
}

// advancePhase moves the state machine forward: Running until no
// further admissions are possible, Draining while outstanding work
// finishes, Completed once everything has landed.
func (s *scheduler) advancePhase() {
	switch s.cfg.QuotaKind {
	case QuotaCount:
		if s.phase == phaseRunning && s.quota-s.done <= s.running {
			s.phase = phaseDraining
		}
		if s.done == s.quota && s.running == 0 {
			s.phase = phaseCompleted
		}
	case QuotaDuration:
		if s.phase == phaseRunning && !time.Now().Before(s.deadline) {
			s.phase = phaseDraining
		}
		if s.phase == phaseDraining && s.running == 0 {
			s.phase = phaseCompleted
		}
	}
}

// abort stops admitting and drains outstanding work. In-flight
// requests see the canceled context and resolve quickly as transport
// failures; every admitted unit still reports exactly once, so the
// counters stay consistent.
func (s *scheduler) abort(ctx context.Context) error {
	s.phase = phaseDraining
	for s.running > 0 {
		if err := s.complete(<-s.completions); err != nil {
			return err
		}
	}
	s.phase = phaseCompleted
	return ctx.Err()
}
