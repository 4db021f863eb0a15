package analyzer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/telemetry"
)

// Service implements the URL submission and check workflows on top of the
// stores and the Checker.
type Service struct {
	urls    URLStore
	checks  CheckStore
	checker *Checker
	logger  *zap.Logger
}

// URLDetail is a URL with its full check history, newest first.
type URLDetail struct {
	URL    URLRecord     `json:"url"`
	Checks []CheckRecord `json:"checks"`
}

// NewService builds a Service.
func NewService(urls URLStore, checks CheckStore, checker *Checker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{urls: urls, checks: checks, checker: checker, logger: logger}
}

// Submit normalizes raw and registers it. created is false when the canonical
// URL was already registered, in which case the existing record is returned.
func (s *Service) Submit(ctx context.Context, raw string) (record URLRecord, created bool, err error) {
	name, err := Normalize(raw)
	if err != nil {
		s.logger.Debug("url rejected", zap.String("input", raw), zap.Error(err))
		return URLRecord{}, false, err
	}

	existing, err := s.urls.FindURLByName(ctx, name)
	if err != nil {
		return URLRecord{}, false, fmt.Errorf("find url by name: %w", err)
	}
	if existing != nil {
		return *existing, false, nil
	}

	record, err = s.urls.CreateURL(ctx, name)
	switch {
	case errors.Is(err, ErrDuplicateURL):
		// Lost a race with a concurrent submission of the same URL.
		existing, findErr := s.urls.FindURLByName(ctx, name)
		if findErr != nil {
			return URLRecord{}, false, fmt.Errorf("find url by name: %w", findErr)
		}
		if existing == nil {
			return URLRecord{}, false, fmt.Errorf("create url: %w", err)
		}
		return *existing, false, nil
	case err != nil:
		return URLRecord{}, false, fmt.Errorf("create url: %w", err)
	}

	telemetry.ObserveURLCreated()
	s.logger.Info("url registered", zap.Int64("url_id", record.ID), zap.String("name", record.Name))
	return record, true, nil
}

// List returns every URL, newest first, each with its latest check.
func (s *Service) List(ctx context.Context) ([]URLWithLatestCheck, error) {
	items, err := s.urls.ListURLsWithLatestCheck(ctx)
	if err != nil {
		return nil, fmt.Errorf("list urls: %w", err)
	}
	return items, nil
}

// Detail returns a URL and all of its checks, or ErrURLNotFound.
func (s *Service) Detail(ctx context.Context, id int64) (URLDetail, error) {
	record, err := s.find(ctx, id)
	if err != nil {
		return URLDetail{}, err
	}
	checks, err := s.checks.ListChecksByURLID(ctx, id)
	if err != nil {
		return URLDetail{}, fmt.Errorf("list checks: %w", err)
	}
	return URLDetail{URL: record, Checks: checks}, nil
}

// Latest returns a URL with only its most recent check, or ErrURLNotFound.
func (s *Service) Latest(ctx context.Context, id int64) (URLWithLatestCheck, error) {
	record, err := s.find(ctx, id)
	if err != nil {
		return URLWithLatestCheck{}, err
	}
	latest, err := s.checks.FindLatestCheckByURLID(ctx, id)
	if err != nil {
		return URLWithLatestCheck{}, fmt.Errorf("find latest check: %w", err)
	}
	return URLWithLatestCheck{URL: record, LatestCheck: latest}, nil
}

// Check runs and persists a check for the URL with the given id.
func (s *Service) Check(ctx context.Context, id int64) (CheckRecord, error) {
	record, err := s.find(ctx, id)
	if err != nil {
		return CheckRecord{}, err
	}
	check, err := s.checker.RunCheck(ctx, record.ID, record.Name)
	if err != nil {
		return CheckRecord{}, err
	}
	s.logger.Info("check completed",
		zap.Int64("url_id", record.ID),
		zap.Int64("check_id", check.ID),
		zap.Int("status", check.StatusCode),
	)
	return check, nil
}

func (s *Service) find(ctx context.Context, id int64) (URLRecord, error) {
	record, err := s.urls.FindURLByID(ctx, id)
	if err != nil {
		return URLRecord{}, fmt.Errorf("find url: %w", err)
	}
	if record == nil {
		return URLRecord{}, ErrURLNotFound
	}
	return *record, nil
}
