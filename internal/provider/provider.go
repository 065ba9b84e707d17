// Package provider fetches raw outage schedules from the configured energy
// provider and parses them into per-day interval sets. Each provider is a
// variant behind the Client interface; adding a provider means adding a
// variant, not touching shared logic.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/clambin/go-common/http/metrics"
	"github.com/clambin/go-common/http/roundtripper"
	"github.com/omelnyk/svitlo/internal/schedule"
	"github.com/prometheus/client_golang/prometheus"
)

// Client fetches and parses the published schedule for one group. The
// returned days are anchored to the provider's time zone and cover each
// published day in full.
type Client interface {
	GetSchedule(ctx context.Context, group string) ([]schedule.Day, error)
}

// ErrNotPublished means the provider has not (yet) published a schedule for
// the group. It is a recoverable condition, distinct from a malformed
// payload.
var ErrNotPublished = errors.New("schedule not published")

// FetchError kinds.
const (
	KindTimeout    = "timeout"
	KindTransport  = "transport"
	KindHTTPStatus = "http_status"
	KindMalformed  = "malformed"
)

// FetchError is a network or transport failure while retrieving the raw
// payload.
type FetchError struct {
	Kind       string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch failed: %s %d", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("fetch failed: %s: %s", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError means the payload did not have the expected shape. A partial
// day is never returned: the whole refresh is rejected instead.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse failed: " + e.Reason
}

// New returns the Client variant for the named provider, with an HTTP client
// instrumented through m.
func New(name, url string, timeout time.Duration, loc *time.Location, m metrics.RequestMetrics) (Client, error) {
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: roundtripper.New(roundtripper.WithRequestMetrics(m)),
	}
	switch name {
	case "yasno":
		return &Yasno{URL: url, HTTPClient: httpClient, Location: loc}, nil
	case "oblenergo":
		return &Oblenergo{URL: url, HTTPClient: httpClient, Location: loc}, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// NewRequestMetrics creates the request metrics for a provider's HTTP calls.
func NewRequestMetrics(namespace, subsystem string, labels prometheus.Labels) metrics.RequestMetrics {
	return metrics.NewRequestMetrics(metrics.Options{
		Namespace:   namespace,
		Subsystem:   subsystem,
		ConstLabels: labels,
	})
}

func fetchPayload(ctx context.Context, httpClient *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Err: err}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		kind := KindTransport
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			kind = KindTimeout
		}
		return nil, &FetchError{Kind: kind, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Kind: KindHTTPStatus, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: KindMalformed, Err: err}
	}
	return body, nil
}
