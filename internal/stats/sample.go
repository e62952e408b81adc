package stats

import (
	"strings"
	"time"
)

// Sample is the timing breakdown of one completed request.
// Phases are cumulative offsets from the start of the transfer
// (curl time_info semantics): NameLookup <= Connect <= PreTransfer
// <= StartTransfer <= Total. Queue is the lag between admission and
// the transfer actually starting. Immutable once recorded.
type Sample struct {
	NameLookup    time.Duration `json:"namelookup"`
	Connect       time.Duration `json:"connect"`
	PreTransfer   time.Duration `json:"pretransfer"`
	StartTransfer time.Duration `json:"starttransfer"`
	Total         time.Duration `json:"total"`
	Redirect      time.Duration `json:"redirect"`
	Queue         time.Duration `json:"queue"`
}

// EndpointKey derives the grouping key for a request URL.
// With includeQuery=false, "/x?a=1" and "/x?a=2" collapse to "/x".
// Pure function of its inputs.
func EndpointKey(url string, includeQuery bool) string {
	if includeQuery {
		return url
	}
	base, _, _ := strings.Cut(url, "?")
	return base
}
