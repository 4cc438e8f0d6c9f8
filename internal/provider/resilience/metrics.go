package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/mradl/mradl/internal/provider/resilience"

// Request outcomes recorded on provider.request.total.
const (
	outcomeOK          = "ok"
	outcomeHTTPError   = "http_error"
	outcomeError       = "error"
	outcomeCircuitOpen = "circuit_open"
)

// providerMetrics records upstream calls made through a Client. Clients use
// the global meter provider, so telemetry must be initialized before they
// are built for the data to be exported.
type providerMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
}

func newProviderMetrics(meter metric.Meter) *providerMetrics {
	// The names are constant and valid, so creation errors are ignored.
	requestDuration, _ := meter.Float64Histogram( //nolint:errcheck // see above
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests including retries in seconds"),
		metric.WithUnit("s"),
	)
	requestTotal, _ := meter.Int64Counter( //nolint:errcheck // see above
		"provider.request.total",
		metric.WithDescription("Total number of provider requests by outcome"),
		metric.WithUnit("{request}"),
	)

	return &providerMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
	}
}

func (m *providerMetrics) record(ctx context.Context, provider string, elapsed time.Duration, err error, resp *http.Response) {
	attrs := metric.WithAttributes(
		attribute.String("provider.name", provider),
		attribute.String("outcome", outcome(err, resp)),
	)

	// Recording must survive a cancelled request context.
	ctx = context.WithoutCancel(ctx)
	if m.requestDuration != nil {
		m.requestDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if m.requestTotal != nil {
		m.requestTotal.Add(ctx, 1, attrs)
	}
}

func outcome(err error, resp *http.Response) string {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return outcomeCircuitOpen
	case err != nil:
		return outcomeError
	case resp != nil && resp.StatusCode >= 400:
		return outcomeHTTPError
	default:
		return outcomeOK
	}
}
