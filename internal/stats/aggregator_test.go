package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWithTotal(d time.Duration) Sample {
	return Sample{Total: d}
}

func TestEndpointKey(t *testing.T) {
	assert.Equal(t, "/x", EndpointKey("/x?a=1", false))
	assert.Equal(t, "/x", EndpointKey("/x?a=2", false))
	assert.Equal(t, "/x?a=1", EndpointKey("/x?a=1", true))
	assert.Equal(t, "/x", EndpointKey("/x", false))
	assert.Equal(t, "http://h/p", EndpointKey("http://h/p?q=1&r=2", false))
}

func TestPercentileBounds(t *testing.T) {
	a := NewAggregator()
	for _, ms := range []int{30, 10, 50, 20, 40} {
		a.RecordSample("/x", sampleWithTotal(time.Duration(ms)*time.Millisecond))
	}

	r, err := a.EndpointReportFor("/x")
	require.NoError(t, err)

	assert.Equal(t, 5, r.Count)
	// 0th percentile is the minimum, 100th the maximum, and the 50th
	// of an odd-length sequence its exact middle element.
	assert.InDelta(t, 10.0, r.Percentiles[0], 1e-9)
	assert.InDelta(t, 50.0, r.Percentiles[100], 1e-9)
	assert.InDelta(t, 30.0, r.Percentiles[50], 1e-9)
}

func TestPercentileLinearInterpolation(t *testing.T) {
	a := NewAggregator()
	// Two samples: 10ms and 20ms. p50 interpolates to 15ms, p75 to 17.5ms.
	a.RecordSample("/x", sampleWithTotal(10*time.Millisecond))
	a.RecordSample("/x", sampleWithTotal(20*time.Millisecond))

	r, err := a.EndpointReportFor("/x")
	require.NoError(t, err)

	assert.InDelta(t, 15.0, r.Percentiles[50], 1e-9)
	assert.InDelta(t, 17.5, r.Percentiles[75], 1e-9)
	assert.InDelta(t, 10.0, r.Percentiles[0], 1e-9)
	assert.InDelta(t, 20.0, r.Percentiles[100], 1e-9)
}

func TestPercentileSingleSample(t *testing.T) {
	a := NewAggregator()
	a.RecordSample("/x", sampleWithTotal(42*time.Millisecond))

	r, err := a.EndpointReportFor("/x")
	require.NoError(t, err)

	for _, p := range PercentileMarks {
		assert.InDelta(t, 42.0, r.Percentiles[p], 1e-9, "p%d", p)
	}
}

func TestAverageTotal(t *testing.T) {
	a := NewAggregator()
	a.RecordSample("/x", sampleWithTotal(10*time.Millisecond))
	a.RecordSample("/x", sampleWithTotal(30*time.Millisecond))

	r, err := a.EndpointReportFor("/x")
	require.NoError(t, err)
	assert.InDelta(t, 0.020, r.AverageTotal.Seconds(), 1e-9)
}

func TestEmptyEndpointRejected(t *testing.T) {
	a := NewAggregator()
	_, err := a.EndpointReportFor("/missing")
	require.Error(t, err)
}

func TestEndpointsDeterministicOrder(t *testing.T) {
	a := NewAggregator()
	a.RecordSample("/c", sampleWithTotal(time.Millisecond))
	a.RecordSample("/a", sampleWithTotal(time.Millisecond))
	a.RecordSample("/b", sampleWithTotal(time.Millisecond))

	first := a.Endpoints()
	second := a.Endpoints()

	require.Len(t, first, 3)
	assert.Equal(t, "/a", first[0].Key)
	assert.Equal(t, "/b", first[1].Key)
	assert.Equal(t, "/c", first[2].Key)

	// Reporting twice with no intervening writes is idempotent.
	assert.Equal(t, first, second)
}

func TestAggregatorCounts(t *testing.T) {
	a := NewAggregator()
	a.RecordSample("/a", sampleWithTotal(time.Millisecond))
	a.RecordSample("/a", sampleWithTotal(time.Millisecond))
	a.RecordSample("/b", sampleWithTotal(time.Millisecond))

	assert.Equal(t, 2, a.Count("/a"))
	assert.Equal(t, 1, a.Count("/b"))
	assert.Equal(t, 0, a.Count("/c"))
	assert.Equal(t, 3, a.TotalSamples())
}

func TestLiveSnapshot(t *testing.T) {
	l := NewLive()
	l.AddInflight(2)
	l.AddCompletion(true, 10*time.Millisecond, true)
	l.AddCompletion(false, 0, false)
	l.AddInflight(-1)

	s := l.Snapshot()
	assert.EqualValues(t, 2, s.Done)
	assert.EqualValues(t, 1, s.Succeeded)
	assert.EqualValues(t, 1, s.Failed)
	assert.EqualValues(t, 1, s.Inflight)
	assert.InDelta(t, 50.0, l.ErrorRate(), 1e-9)

	// Only the measured completion reached the histogram.
	assert.EqualValues(t, 1, l.TotalTime.TotalCount())
}
