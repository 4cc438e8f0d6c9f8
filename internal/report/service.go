package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the report service.
type ServiceConfig struct {
	Store  Store
	Logger zerolog.Logger
}

// Service validates and persists reports.
type Service struct {
	store    Store
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewService creates a new report service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:    cfg.Store,
		validate: validator.New(),
		logger:   cfg.Logger,
	}
}

// Submit validates the submission and stores it in its category's
// collection. Store failures are logged and returned as ErrPersistence;
// they are not retried.
func (s *Service) Submit(ctx context.Context, sub Submission) (Report, error) {
	if err := s.validate.Struct(sub); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			if verrs[0].Field() == "Category" {
				return Report{}, fmt.Errorf("%w: %q", ErrUnknownCategory, sub.Category)
			}
			return Report{}, fmt.Errorf("%w: %s failed %s", ErrInvalidSubmission, verrs[0].Field(), verrs[0].Tag())
		}
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}

	collection, err := CollectionFor(sub.Category)
	if err != nil {
		return Report{}, err
	}

	r, err := s.store.Insert(ctx, collection, sub.Lat, sub.Lng, sub.Reporter)
	if err != nil {
		s.logger.Error().Err(err).
			Str("collection", string(collection)).
			Str("reporter", sub.Reporter).
			Msg("failed to persist report")
		return Report{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.logger.Info().
		Str("report_id", r.ID).
		Str("collection", string(collection)).
		Float64("lat", r.Lat).
		Float64("lng", r.Lng).
		Msg("report submitted")

	return r, nil
}

// List returns every report of a collection.
func (s *Service) List(ctx context.Context, collection Collection) ([]Report, error) {
	if _, err := ParseCollection(string(collection)); err != nil {
		return nil, err
	}

	reports, err := s.store.List(ctx, collection)
	if err != nil {
		s.logger.Error().Err(err).
			Str("collection", string(collection)).
			Msg("failed to list reports")
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return reports, nil
}
