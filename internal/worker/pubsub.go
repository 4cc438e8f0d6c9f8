package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/mradl/mradl/internal/environment"
	"github.com/mradl/mradl/internal/geo"
)

// Job types accepted on the subscription.
const (
	JobFeatureRefresh = "feature_refresh"
	JobHealthCheck    = "health_check"
)

// errUnknownJob marks messages that will never succeed.
var errUnknownJob = errors.New("unknown job type")

// healthCheckArea is a single tile around Marienplatz.
var healthCheckArea = geo.BoundingBox{South: 48.12, West: 11.56, North: 48.14, East: 11.58}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	RefreshJob       *RefreshJob
	Logger           zerolog.Logger
}

// RefreshMessage represents a worker job message.
type RefreshMessage struct {
	JobType string `json:"job_type"`
	// Targets limits a feature refresh to the named areas. Empty means all.
	Targets []string `json:"targets,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings. A full refresh can take minutes
	// against a busy Overpass instance.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 2
	subscriber.ReceiveSettings.MaxExtension = 15 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       NewDispatcher(cfg.RefreshJob, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.dispatcher.Handle(ctx, msg.Data)
	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, errUnknownJob):
		// Ack unknown messages to prevent redelivery
		logger.Warn().Err(err).Msg("dropping message")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	}
}

// Dispatcher decodes job messages and runs them.
type Dispatcher struct {
	refreshJob *RefreshJob
	logger     zerolog.Logger
}

// NewDispatcher creates a dispatcher for job messages.
func NewDispatcher(job *RefreshJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{refreshJob: job, logger: logger}
}

// Handle runs the job encoded in data. Malformed and unknown messages
// return an error wrapping errUnknownJob.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) error {
	startTime := time.Now()

	var msg RefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: malformed message: %v", errUnknownJob, err)
	}

	var err error
	switch msg.JobType {
	case JobFeatureRefresh:
		err = d.handleFeatureRefresh(ctx, msg)
	case JobHealthCheck:
		err = d.handleHealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", errUnknownJob, msg.JobType)
	}
	if err != nil {
		return err
	}

	d.logger.Info().
		Str("job_type", msg.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return nil
}

func (d *Dispatcher) handleFeatureRefresh(ctx context.Context, msg RefreshMessage) error {
	job := d.refreshJob
	if len(msg.Targets) > 0 {
		job = d.refreshJob.only(msg.Targets)
		if job == nil {
			return fmt.Errorf("%w: no configured target in %v", errUnknownJob, msg.Targets)
		}
	}

	result := job.Run(ctx)

	// Consider it successful if more than half succeeded.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.TotalTasks)
	}
	return nil
}

func (d *Dispatcher) handleHealthCheck(ctx context.Context) error {
	d.logger.Debug().Msg("running health check")

	// Prewarm one tile and fetch weather once to verify provider connectivity.
	healthCheckJob := NewRefreshJob(RefreshJobConfig{
		Config: RefreshConfig{
			Targets:        []RefreshTarget{{Name: "health-check", Priority: 1, Area: healthCheckArea}},
			Kinds:          []environment.Kind{environment.KindLight},
			Concurrency:    1,
			Timeout:        20 * time.Second,
			RefreshWeather: true,
		},
		Logger:  d.logger,
		Tiles:   d.refreshJob.tiles,
		Weather: d.refreshJob.weather,
	})

	result := healthCheckJob.Run(ctx)
	if result.Failed > 0 {
		return fmt.Errorf("health check failed: %d errors", result.Failed)
	}

	d.logger.Debug().Msg("health check passed")
	return nil
}

// only returns a job restricted to the named targets, sharing this job's
// services and metrics, or nil if none match.
func (j *RefreshJob) only(names []string) *RefreshJob {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	cfg := j.config
	cfg.Targets = nil
	for _, t := range j.config.Targets {
		if want[t.Name] {
			cfg.Targets = append(cfg.Targets, t)
		}
	}
	if len(cfg.Targets) == 0 {
		return nil
	}

	return &RefreshJob{
		config:  cfg,
		logger:  j.logger,
		tiles:   j.tiles,
		weather: j.weather,
		metrics: j.metrics,
	}
}
