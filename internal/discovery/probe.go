// Package discovery locates the companion download server by probing
// candidate TCP ports on the loopback interface.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ProbeStatus classifies the outcome of a single bounded health probe.
type ProbeStatus int

const (
	StatusAvailable ProbeStatus = iota
	StatusUnavailable
	StatusTimeout
	StatusFailed
)

func (s ProbeStatus) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusUnavailable:
		return "unavailable"
	case StatusTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

// ProbeResult is the settled outcome of one probe. Probers never return
// errors to callers; failures are folded into the result.
type ProbeResult struct {
	Status ProbeStatus
	Err    error
}

func (r ProbeResult) Available() bool {
	return r.Status == StatusAvailable
}

// Prober performs one bounded-time health check against a candidate port.
type Prober interface {
	Probe(ctx context.Context, port int) ProbeResult
}

type healthResponse struct {
	App    string `json:"app_name"`
	Status string `json:"status"`
}

// HTTPProber checks candidate ports with an authenticated health request:
// HTTP 200 alone is not enough, the body must identify the expected app.
// An unrelated service squatting on a candidate port stays "unavailable".
type HTTPProber struct {
	Client      *http.Client
	Scheme      string
	Host        string
	HealthPath  string
	ExpectedApp string
	Timeout     time.Duration
}

func NewHTTPProber(host, healthPath, expectedApp string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		Client:      &http.Client{},
		Scheme:      "http",
		Host:        host,
		HealthPath:  healthPath,
		ExpectedApp: expectedApp,
		Timeout:     timeout,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, port int) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s://%s:%d%s", p.Scheme, p.Host, port, p.HealthPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ProbeResult{Status: StatusFailed, Err: err}
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		// A response arriving after the deadline is abandoned by the
		// transport; it can never flip a port to available.
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return ProbeResult{Status: StatusTimeout, Err: err}
		}
		return ProbeResult{Status: StatusUnavailable, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return ProbeResult{Status: StatusUnavailable}
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return ProbeResult{Status: StatusUnavailable, Err: err}
	}
	if health.App != p.ExpectedApp {
		return ProbeResult{Status: StatusUnavailable}
	}
	return ProbeResult{Status: StatusAvailable}
}
