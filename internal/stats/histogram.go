package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// LatencyHistogram is a thread-safe hdrhistogram recording request
// durations in microseconds. It backs the live snapshot path only;
// the final report uses exact order statistics over the raw samples.
type LatencyHistogram struct {
	hist *hdrhistogram.Histogram
	mu   sync.Mutex
}

func NewLatencyHistogram() *LatencyHistogram {
	// 1us to 10min, 3 significant figures
	h := hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
	return &LatencyHistogram{hist: h}
}

func (h *LatencyHistogram) Record(d time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.RecordValue(d.Microseconds())
}

// QuantileMs returns the value at quantile q in milliseconds.
func (h *LatencyHistogram) QuantileMs(q float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return float64(h.hist.ValueAtQuantile(q)) / 1000.0
}

func (h *LatencyHistogram) MeanMs() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.Mean() / 1000.0
}

func (h *LatencyHistogram) MaxMs() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.Max() / 1000
}

func (h *LatencyHistogram) TotalCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount()
}
