package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"httpbench/internal/stats"
)

// fakeExecutor resolves every request after a fixed delay, tracking
// how many calls were in flight at once.
type fakeExecutor struct {
	delay  time.Duration
	status int
	err    error

	calls       int64
	inflight    int64
	maxInflight int64
}

func (f *fakeExecutor) Execute(ctx context.Context, tgt Target, queuedAt time.Time) (*Attempt, error) {
	atomic.AddInt64(&f.calls, 1)
	cur := atomic.AddInt64(&f.inflight, 1)
	for {
		max := atomic.LoadInt64(&f.maxInflight)
		if cur <= max || atomic.CompareAndSwapInt64(&f.maxInflight, max, cur) {
			break
		}
	}
	defer atomic.AddInt64(&f.inflight, -1)

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, &TransportError{Err: ctx.Err()}
	}

	if f.err != nil {
		return nil, f.err
	}

	status := f.status
	if status == 0 {
		status = 200
	}
	return &Attempt{
		Sample: stats.Sample{Total: f.delay + time.Millisecond},
		Status: status,
		Body:   []byte("ok"),
	}, nil
}

func countConfig(concurrency, quota int, urls ...string) Config {
	if len(urls) == 0 {
		urls = []string{"http://test.invalid/x"}
	}
	targets := make([]Target, 0, len(urls))
	for _, u := range urls {
		targets = append(targets, Target{URL: u, WantStatus: 200})
	}
	return Config{
		Concurrency: concurrency,
		QuotaKind:   QuotaCount,
		QuotaValue:  quota,
		Targets:     targets,
	}
}

func runWithExecutor(t *testing.T, cfg Config, exec Executor) (*stats.Report, error) {
	t.Helper()
	r, err := NewRunner(cfg, nil)
	require.NoError(t, err)
	r.Exec = exec
	return r.Run(context.Background())
}

func TestSchedulerAdmissionBound(t *testing.T) {
	exec := &fakeExecutor{delay: 10 * time.Millisecond}
	report, err := runWithExecutor(t, countConfig(3, 5), exec)
	require.NoError(t, err)

	assert.EqualValues(t, 5, exec.calls, "exactly quota requests issued")
	assert.LessOrEqual(t, exec.maxInflight, int64(3), "concurrency bound held")
	assert.Equal(t, 5, report.RequestsDone)
	assert.Equal(t, 5, report.Succeeded)
	assert.Equal(t, 0, report.Failed)
}

func TestSchedulerCountersBalance(t *testing.T) {
	exec := &fakeExecutor{delay: time.Millisecond}
	report, err := runWithExecutor(t, countConfig(4, 23), exec)
	require.NoError(t, err)

	assert.Equal(t, 23, report.RequestsDone)
	assert.Equal(t, report.RequestsDone, report.Succeeded+report.Failed)
	assert.Positive(t, report.RequestsPerSecond)
}

func TestSchedulerStatusMismatchStillMeasured(t *testing.T) {
	// Every response resolves with the wrong status: all ten fail,
	// but all ten transfers completed and must be in the table.
	exec := &fakeExecutor{delay: time.Millisecond, status: 500}
	report, err := runWithExecutor(t, countConfig(2, 10), exec)
	require.NoError(t, err)

	assert.Equal(t, 10, report.RequestsDone)
	assert.Equal(t, 0, report.Succeeded)
	assert.Equal(t, 10, report.Failed)

	require.Len(t, report.Endpoints, 1)
	assert.Equal(t, 10, report.Endpoints[0].Count)
}

func TestSchedulerTransportFailureNotMeasured(t *testing.T) {
	exec := &fakeExecutor{
		delay: time.Millisecond,
		err:   &TransportError{Err: errors.New("connection refused")},
	}
	report, err := runWithExecutor(t, countConfig(2, 4), exec)
	require.NoError(t, err)

	assert.Equal(t, 4, report.RequestsDone)
	assert.Equal(t, 4, report.Failed)
	assert.Empty(t, report.Endpoints, "nothing was measured")
}

func TestSchedulerEndpointKeying(t *testing.T) {
	urls := []string{"http://test.invalid/x?a=1", "http://test.invalid/x?a=2"}

	t.Run("query stripped", func(t *testing.T) {
		cfg := countConfig(2, 2, urls...)
		report, err := runWithExecutor(t, cfg, &fakeExecutor{delay: time.Millisecond})
		require.NoError(t, err)

		require.Len(t, report.Endpoints, 1)
		assert.Equal(t, "http://test.invalid/x", report.Endpoints[0].Key)
		assert.Equal(t, 2, report.Endpoints[0].Count)
	})

	t.Run("query kept", func(t *testing.T) {
		cfg := countConfig(2, 2, urls...)
		cfg.IncludeQueryInKey = true
		report, err := runWithExecutor(t, cfg, &fakeExecutor{delay: time.Millisecond})
		require.NoError(t, err)

		require.Len(t, report.Endpoints, 2)
		assert.Equal(t, 1, report.Endpoints[0].Count)
		assert.Equal(t, 1, report.Endpoints[1].Count)
	})
}

func TestSchedulerDuplicateCompletionFatal(t *testing.T) {
	cfg := countConfig(1, 2)
	s := newScheduler(&cfg, &fakeExecutor{}, stats.NewAggregator(), stats.NewLive())

	id := uuid.New()
	s.outstanding[id] = struct{}{}
	s.running = 1

	c := completion{unit: id, key: "k", attempt: &Attempt{Status: 200}}
	require.NoError(t, s.complete(c))

	err := s.complete(c)
	require.ErrorIs(t, err, ErrConsistency)
}

func TestSchedulerDoneBeyondQuotaFatal(t *testing.T) {
	cfg := countConfig(1, 1)
	s := newScheduler(&cfg, &fakeExecutor{}, stats.NewAggregator(), stats.NewLive())

	first := uuid.New()
	s.outstanding[first] = struct{}{}
	s.running = 1
	require.NoError(t, s.complete(completion{unit: first, key: "k", attempt: &Attempt{Status: 200}}))

	second := uuid.New()
	s.outstanding[second] = struct{}{}
	s.running = 1
	err := s.complete(completion{unit: second, key: "k", attempt: &Attempt{Status: 200}})
	require.ErrorIs(t, err, ErrConsistency)
}

func TestStatusStepPermille(t *testing.T) {
	cases := map[int]int{
		10:     500,
		99:     500,
		100:    200,
		999:    200,
		1000:   100,
		9999:   100,
		10000:  50,
		24999:  50,
		25000:  25,
		100000: 25,
	}
	for quota, want := range cases {
		assert.Equal(t, want, statusStepPermille(quota), "quota %d", quota)
	}
}

func TestSchedulerDurationMode(t *testing.T) {
	cfg := Config{
		Concurrency: 3,
		QuotaKind:   QuotaDuration,
		QuotaValue:  1,
		Targets:     []Target{{URL: "http://test.invalid/x", WantStatus: 200}},
	}
	exec := &fakeExecutor{delay: 5 * time.Millisecond}
	report, err := runWithExecutor(t, cfg, exec)
	require.NoError(t, err)

	assert.LessOrEqual(t, exec.maxInflight, int64(3))
	assert.Positive(t, report.RequestsDone)
	assert.Equal(t, report.RequestsDone, report.Succeeded+report.Failed)
	// Duration mode computes req/s over the configured window.
	assert.InDelta(t, float64(report.RequestsDone), report.RequestsPerSecond, 0.001)
}

func TestSchedulerCancellationDrains(t *testing.T) {
	cfg := countConfig(5, 1000)
	exec := &fakeExecutor{delay: 50 * time.Millisecond}

	r, err := NewRunner(cfg, nil)
	require.NoError(t, err)
	r.Exec = exec

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	report, err := r.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, report)

	assert.Less(t, report.RequestsDone, 1000)
	assert.Equal(t, report.RequestsDone, report.Succeeded+report.Failed)
	assert.EqualValues(t, 0, exec.inflight, "all admitted work drained")
}
