package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Plan outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeNoRoute = "no_route"
	OutcomeError   = "error"
)

// DomainMetrics records rider-facing activity: planned routes, trip roles
// taken and reports submitted. A nil *DomainMetrics records nothing.
type DomainMetrics struct {
	routesPlanned    metric.Int64Counter
	planDuration     metric.Float64Histogram
	tripsStarted     metric.Int64Counter
	reportsSubmitted metric.Int64Counter
}

// NewDomainMetrics creates the instruments on meter.
func NewDomainMetrics(meter metric.Meter) (*DomainMetrics, error) {
	routesPlanned, err := meter.Int64Counter(
		"mradl.routes.planned",
		metric.WithDescription("Route plan requests by mode, chosen profile and outcome"),
		metric.WithUnit("{plan}"),
	)
	if err != nil {
		return nil, err
	}

	planDuration, err := meter.Float64Histogram(
		"mradl.routes.plan.duration",
		metric.WithDescription("Time from plan request to selection in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tripsStarted, err := meter.Int64Counter(
		"mradl.trips.started",
		metric.WithDescription("Trip roles taken by clients"),
		metric.WithUnit("{trip}"),
	)
	if err != nil {
		return nil, err
	}

	reportsSubmitted, err := meter.Int64Counter(
		"mradl.reports.submitted",
		metric.WithDescription("Map reports stored by collection"),
		metric.WithUnit("{report}"),
	)
	if err != nil {
		return nil, err
	}

	return &DomainMetrics{
		routesPlanned:    routesPlanned,
		planDuration:     planDuration,
		tripsStarted:     tripsStarted,
		reportsSubmitted: reportsSubmitted,
	}, nil
}

// RoutePlanned records one plan request. profile is empty unless the
// outcome is OutcomeOK.
func (m *DomainMetrics) RoutePlanned(ctx context.Context, mode, profile, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("profile", profile),
		attribute.String("outcome", outcome),
	)
	m.routesPlanned.Add(ctx, 1, attrs)
	m.planDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
}

// TripStarted records a client starting to share or watch a trip.
func (m *DomainMetrics) TripStarted(ctx context.Context, role string) {
	if m == nil {
		return
	}
	m.tripsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// ReportSubmitted records a stored report.
func (m *DomainMetrics) ReportSubmitted(ctx context.Context, collection string) {
	if m == nil {
		return
	}
	m.reportsSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("collection", collection)))
}
