package stats

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PercentileMarks are the fixed report percentiles.
var PercentileMarks = []int{0, 50, 66, 75, 80, 90, 95, 98, 99, 100}

// Aggregator accumulates timing samples keyed by endpoint.
// Writes must be serialized by the caller (the scheduler handles
// completions one at a time); reads are only valid after the run
// is finalized.
type Aggregator struct {
	samples map[string][]Sample
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		samples: make(map[string][]Sample),
	}
}

// RecordSample appends a sample to the endpoint's sequence.
func (a *Aggregator) RecordSample(key string, s Sample) {
	a.samples[key] = append(a.samples[key], s)
}

// Count returns the number of samples stored for key.
func (a *Aggregator) Count(key string) int {
	return len(a.samples[key])
}

// TotalSamples returns the number of samples across all endpoints.
func (a *Aggregator) TotalSamples() int {
	n := 0
	for _, seq := range a.samples {
		n += len(seq)
	}
	return n
}

// EndpointReport is the per-endpoint summary over Total timings.
type EndpointReport struct {
	Key          string          `json:"key"`
	Count        int             `json:"count"`
	AverageTotal time.Duration   `json:"average_total"`
	Percentiles  map[int]float64 `json:"percentiles_ms"`
}

// Report is the final run summary handed to the rendering layer.
type Report struct {
	TotalTime         time.Duration    `json:"total_time"`
	RequestsDone      int              `json:"requests_done"`
	Succeeded         int              `json:"succeeded"`
	Failed            int              `json:"failed"`
	RequestsPerSecond float64          `json:"requests_per_second"`
	Endpoints         []EndpointReport `json:"endpoints"`
}

// Endpoints returns the per-endpoint summaries in lexicographic key
// order. An endpoint with zero samples cannot occur here (keys only
// exist once a sample is recorded), but an explicitly requested empty
// key is rejected via EndpointReportFor.
func (a *Aggregator) Endpoints() []EndpointReport {
	keys := make([]string, 0, len(a.samples))
	for k := range a.samples {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	reports := make([]EndpointReport, 0, len(keys))
	for _, k := range keys {
		r, _ := a.EndpointReportFor(k)
		reports = append(reports, r)
	}
	return reports
}

// EndpointReportFor computes the summary for one endpoint key.
// Reporting over zero samples is undefined and returns an error.
func (a *Aggregator) EndpointReportFor(key string) (EndpointReport, error) {
	seq := a.samples[key]
	if len(seq) == 0 {
		return EndpointReport{}, fmt.Errorf("no samples recorded for endpoint %q", key)
	}

	totals := make([]float64, len(seq))
	sum := 0.0
	for i, s := range seq {
		totals[i] = s.Total.Seconds()
		sum += totals[i]
	}
	sort.Float64s(totals)

	pcts := make(map[int]float64, len(PercentileMarks))
	for _, p := range PercentileMarks {
		pcts[p] = percentile(totals, float64(p)) * 1000 // ms
	}

	return EndpointReport{
		Key:          key,
		Count:        len(seq),
		AverageTotal: time.Duration((sum / float64(len(seq))) * float64(time.Second)),
		Percentiles:  pcts,
	}, nil
}

// percentile computes the p-th percentile of sorted using linear
// interpolation between order statistics: rank r = p/100*(n-1),
// interpolated between floor(r) and ceil(r) by the fractional part.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	r := p / 100 * float64(n-1)
	lo := int(math.Floor(r))
	hi := int(math.Ceil(r))
	if lo == hi {
		return sorted[lo]
	}
	frac := r - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
