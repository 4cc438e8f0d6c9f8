package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
)

// ErrCircuitOpen is returned without calling the provider while its breaker
// is open or while a half-open probe is already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig configures a provider client. Zero durations and retry
// counts take the defaults from DefaultClientConfig.
type ClientConfig struct {
	// Name identifies the provider in the registry, logs and metrics.
	Name string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after the first.
	MaxRetries uint64
	// DisableRetry sends each request exactly once.
	DisableRetry bool

	InitialInterval time.Duration
	MaxInterval     time.Duration

	Breaker BreakerPolicy

	// Registry, when set, receives the outcome of every call.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the settings every provider starts from.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Breaker:         DefaultBreakerPolicy(),
		Logger:          zerolog.Nop(),
	}
}

// Client calls one upstream provider. Network errors, 5xx and 429 are
// retried with exponential backoff. Network errors and 5xx also count
// against the circuit breaker; a 429 means the provider is healthy but busy.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	metrics *providerMetrics
}

// NewClient creates a Client and registers it with cfg.Registry.
func NewClient(cfg ClientConfig) *Client {
	defaults := DefaultClientConfig(cfg.Name)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	switch {
	case cfg.DisableRetry:
		cfg.MaxRetries = 0
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = defaults.MaxInterval
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker[*http.Response](cfg.Name, cfg.Breaker, cfg.Logger), //nolint:bodyclose // type parameter
		metrics: newProviderMetrics(otel.Meter(meterName)),
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Do sends req using its own context. See DoWithContext.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext sends req under ctx. When retries run out on a 5xx or 429
// the last response is returned with a nil error so callers can map the
// status; only transport failures and ErrCircuitOpen come back as errors.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	var last *http.Response
	keep := func(resp *http.Response) {
		if last != nil && last != resp {
			_ = last.Body.Close()
		}
		last = resp
	}

	err := backoff.Retry(func() error {
		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // kept in last
			r, err := c.http.Do(cloneRequest(ctx, req))
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &StatusError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		if resp != nil {
			keep(resp)
		}
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &StatusError{StatusCode: resp.StatusCode}
		}
		return nil
	}, policy)

	c.report(err, last)
	c.metrics.record(ctx, c.cfg.Name, time.Since(start), err, last)

	if err != nil && last == nil {
		return nil, err
	}
	return last, nil
}

// report updates the registry. 404 is an answer, not a provider fault.
func (c *Client) report(err error, resp *http.Response) {
	reg := c.cfg.Registry
	switch {
	case reg == nil:
	case err != nil:
		reg.RecordFailure(c.cfg.Name, err)
	case resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound:
		reg.RecordFailure(c.cfg.Name, &StatusError{StatusCode: resp.StatusCode})
	default:
		reg.RecordSuccess(c.cfg.Name)
	}
}

// cloneRequest copies req for one attempt and rewinds its body when it can.
func cloneRequest(ctx context.Context, req *http.Request) *http.Request {
	clone := req.Clone(ctx)
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			clone.Body = body
		}
	}
	return clone
}

// StatusError is a retryable status returned by a provider.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// CircuitBreakerState returns the breaker state.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.breaker.State()
}

// CircuitBreakerCounts returns the breaker counters for the current
// generation.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}
