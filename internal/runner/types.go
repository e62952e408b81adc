package runner

import "time"

// QuotaKind selects the stopping criterion for a run.
type QuotaKind string

const (
	QuotaCount    QuotaKind = "count"    // run a fixed number of requests
	QuotaDuration QuotaKind = "duration" // run for a fixed number of seconds
)

// Target describes one request the run issues. URL and Body may
// contain template expressions, expanded once per admission.
type Target struct {
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Body       string            `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	WantStatus int               `json:"want_status"`
}

type Config struct {
	Concurrency int       `json:"concurrency"`
	QuotaKind   QuotaKind `json:"quota_kind"`
	QuotaValue  int       `json:"quota_value"`
	Targets     []Target  `json:"targets"`

	// IncludeQueryInKey keeps query strings in the endpoint key, so
	// "/x?a=1" and "/x?a=2" report separately.
	IncludeQueryInKey bool `json:"include_query_in_key"`

	TimeoutSec int    `json:"timeout_sec"`
	OutPrefix  string `json:"out_prefix,omitempty"`
}

// Validate rejects invalid or conflicting run parameters before any
// request is issued.
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return configErrorf("concurrency must be positive, got %d", c.Concurrency)
	}
	switch c.QuotaKind {
	case QuotaCount, QuotaDuration:
	case "":
		return configErrorf("exactly one of request count or duration must be set")
	default:
		return configErrorf("unknown quota kind %q", c.QuotaKind)
	}
	if c.QuotaValue <= 0 {
		return configErrorf("quota must be positive, got %d", c.QuotaValue)
	}
	if len(c.Targets) == 0 {
		return configErrorf("at least one target URL is required")
	}
	for i, t := range c.Targets {
		if t.URL == "" {
			return configErrorf("target %d has an empty URL", i)
		}
	}
	return nil
}

func (c *Config) timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}
