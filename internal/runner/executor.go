package runner

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"httpbench/internal/stats"
)

// Attempt is one resolved request: the transfer completed and was
// measured, regardless of whether the status code matched.
type Attempt struct {
	Sample      stats.Sample
	Status      int
	Body        []byte
	ContentType string
}

// Executor performs a single request and reports either a measured
// attempt or a transport failure (*TransportError).
type Executor interface {
	Execute(ctx context.Context, tgt Target, queuedAt time.Time) (*Attempt, error)
}

// HTTPExecutor is the net/http implementation of the Executor
// boundary. One instance is shared by all in-flight requests.
type HTTPExecutor struct {
	Client *http.Client
}

type traceKey struct{}

// traceClock collects the phase timestamps of one request. Callbacks
// fire sequentially for a single request, so no locking is needed.
type traceClock struct {
	start        time.Time
	dnsDone      time.Time
	connectDone  time.Time
	wroteRequest time.Time
	firstByte    time.Time
	lastRedirect time.Time
}

func NewHTTPExecutor(timeout time.Duration) *HTTPExecutor {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxConnsPerHost = 2000
	t.MaxIdleConnsPerHost = 2000
	t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	client := &http.Client{
		Timeout:   timeout,
		Transport: t,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if tc, ok := req.Context().Value(traceKey{}).(*traceClock); ok {
				tc.lastRedirect = time.Now()
			}
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}

	return &HTTPExecutor{Client: client}
}

func (e *HTTPExecutor) Execute(ctx context.Context, tgt Target, queuedAt time.Time) (*Attempt, error) {
	var body io.Reader
	if tgt.Body != "" {
		body = strings.NewReader(tgt.Body)
	}

	method := tgt.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, tgt.URL, body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	for k, v := range tgt.Headers {
		req.Header.Set(k, v)
	}

	tc := &traceClock{}
	trace := &httptrace.ClientTrace{
		DNSDone: func(httptrace.DNSDoneInfo) {
			if tc.dnsDone.IsZero() {
				tc.dnsDone = time.Now()
			}
		},
		ConnectDone: func(network, addr string, err error) {
			if tc.connectDone.IsZero() {
				tc.connectDone = time.Now()
			}
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			tc.wroteRequest = time.Now()
		},
		GotFirstResponseByte: func() {
			if tc.firstByte.IsZero() {
				tc.firstByte = time.Now()
			}
		},
	}
	reqCtx := context.WithValue(req.Context(), traceKey{}, tc)
	req = req.WithContext(httptrace.WithClientTrace(reqCtx, trace))

	tc.start = time.Now()
	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	end := time.Now()

	queue := tc.start.Sub(queuedAt)
	if queue < 0 {
		queue = 0
	}

	return &Attempt{
		Sample: stats.Sample{
			NameLookup:    offset(tc.start, tc.dnsDone),
			Connect:       offset(tc.start, tc.connectDone),
			PreTransfer:   offset(tc.start, tc.wroteRequest),
			StartTransfer: offset(tc.start, tc.firstByte),
			Total:         end.Sub(tc.start),
			Redirect:      offset(tc.start, tc.lastRedirect),
			Queue:         queue,
		},
		Status:      resp.StatusCode,
		Body:        respBody,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// offset converts an absolute phase timestamp to a cumulative offset
// from the start of the transfer. Phases that never fired (reused
// connection, no redirect) stay zero.
func offset(start, at time.Time) time.Duration {
	if at.IsZero() {
		return 0
	}
	d := at.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

// DecodeJSON decodes an attempt's body into v. A non-JSON content
// type or an unparsable body yields a *ContentMismatchError with the
// raw response retained; the run itself is not affected.
func DecodeJSON(att *Attempt, v any) error {
	mt, _, err := mime.ParseMediaType(att.ContentType)
	if err != nil || mt != "application/json" {
		debugAttempt(att)
		return &ContentMismatchError{
			Reason: "content type " + att.ContentType + " is not application/json",
			Raw:    att.Body,
		}
	}
	if err := json.Unmarshal(att.Body, v); err != nil {
		debugAttempt(att)
		return &ContentMismatchError{
			Reason: "body is not valid JSON: " + err.Error(),
			Raw:    att.Body,
		}
	}
	return nil
}

func debugAttempt(att *Attempt) {
	logrus.WithFields(logrus.Fields{
		"status":       att.Status,
		"content_type": att.ContentType,
		"length":       len(att.Body),
		"total":        att.Sample.Total,
	}).Debug("unexpected response")
}
