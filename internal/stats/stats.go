package stats

import (
	"sync/atomic"
	"time"
)

// Live holds the counters and histograms read by the progress UI
// while a run is in flight. The scheduler is the only writer of the
// counters; the histogram has its own lock so snapshot reads are safe
// from other goroutines.
type Live struct {
	Done      uint64
	Succeeded uint64
	Failed    uint64
	Inflight  int64

	// Total-phase latency (microseconds)
	TotalTime *LatencyHistogram
}

func NewLive() *Live {
	return &Live{
		TotalTime: NewLatencyHistogram(),
	}
}

func (l *Live) AddCompletion(success bool, total time.Duration, measured bool) {
	atomic.AddUint64(&l.Done, 1)
	if success {
		atomic.AddUint64(&l.Succeeded, 1)
	} else {
		atomic.AddUint64(&l.Failed, 1)
	}
	if measured {
		l.TotalTime.Record(total)
	}
}

func (l *Live) AddInflight(delta int64) {
	atomic.AddInt64(&l.Inflight, delta)
}

func (l *Live) ErrorRate() float64 {
	done := atomic.LoadUint64(&l.Done)
	if done == 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&l.Failed)) / float64(done) * 100
}

// Snapshot is a cheap copy of the live state sent over the updates
// channel.
type Snapshot struct {
	Done      uint64
	Succeeded uint64
	Failed    uint64
	Inflight  int64

	P50TotalMs float64
	P90TotalMs float64
	P99TotalMs float64
	MaxTotalMs int64
}

func (l *Live) Snapshot() Snapshot {
	return Snapshot{
		Done:       atomic.LoadUint64(&l.Done),
		Succeeded:  atomic.LoadUint64(&l.Succeeded),
		Failed:     atomic.LoadUint64(&l.Failed),
		Inflight:   atomic.LoadInt64(&l.Inflight),
		P50TotalMs: l.TotalTime.QuantileMs(50),
		P90TotalMs: l.TotalTime.QuantileMs(90),
		P99TotalMs: l.TotalTime.QuantileMs(99),
		MaxTotalMs: l.TotalTime.MaxMs(),
	}
}
