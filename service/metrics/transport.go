package metrics

import (
	"net/http"
	"time"
)

// Transport wraps an http.RoundTripper and records outbound request metrics.
// The client parameter should be a constant identifier for the upstream (e.g., "birdeye").
type Transport struct {
	Base    http.RoundTripper
	Metrics *Metrics
	Client  string
}

// NewHTTPClient returns an http.Client whose requests are recorded under the given client name.
// If m is nil the returned client records nothing.
func NewHTTPClient(m *Metrics, client string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &Transport{Base: http.DefaultTransport, Metrics: m, Client: client},
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)

	if t.Metrics != nil {
		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		t.Metrics.RecordHTTPRequest(t.Client, req.Method, statusCode, time.Since(start).Seconds())
	}
	return resp, err
}

// Timer is a helper for timing operations.
// Usage:
//
//	defer Timer(start, func(duration float64) {
//	    metrics.RecordSomething(duration)
//	})()
//
// Or simpler pattern:
//
//	start := time.Now()
//	defer func() {
//	    metrics.RecordSomething(time.Since(start).Seconds())
//	}()
func Timer(start time.Time, recordFunc func(float64)) func() {
	return func() {
		recordFunc(time.Since(start).Seconds())
	}
}
