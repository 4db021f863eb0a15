package analyzer

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/telemetry"
)

// CheckerConfig holds optional Checker settings.
type CheckerConfig struct {
	// Topic receives a CheckNotification after each persisted check. Empty
	// disables publishing.
	Topic string
}

// Checker runs a single check: fetch, extract on exact 200, persist.
type Checker struct {
	fetcher   Fetcher
	extractor Extractor
	checks    CheckStore
	limiter   Limiter
	publisher Publisher
	cfg       CheckerConfig
	logger    *zap.Logger
}

// Inspection is the unpersisted result of fetching and parsing a page.
type Inspection struct {
	URL        string `json:"url"`
	Connected  bool   `json:"connected"`
	StatusCode int    `json:"status_code"`
	Fields
}

// NewChecker wires a Checker. limiter and publisher may be nil.
func NewChecker(
	fetcher Fetcher,
	extractor Extractor,
	checks CheckStore,
	limiter Limiter,
	publisher Publisher,
	cfg CheckerConfig,
	logger *zap.Logger,
) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		fetcher:   fetcher,
		extractor: extractor,
		checks:    checks,
		limiter:   limiter,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Inspect fetches url and extracts its fields without persisting anything.
// Connect failures are reported through Inspection.Connected, never as errors.
func (c *Checker) Inspect(ctx context.Context, url string) Inspection {
	result := Inspection{URL: url, StatusCode: StatusConnectFailure}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, url); err != nil {
			c.logger.Warn("rate limit wait aborted", zap.String("url", url), zap.Error(err))
			telemetry.ObserveCheck(StatusConnectFailure, 0)
			return result
		}
	}

	outcome := c.fetcher.Fetch(ctx, url)
	telemetry.ObserveCheck(outcome.StatusCode, outcome.Duration)
	if !outcome.Connected {
		c.logger.Warn("connect failed",
			zap.String("url", url),
			zap.Duration("duration", outcome.Duration),
			zap.Error(outcome.Err),
		)
		return result
	}

	result.Connected = true
	result.StatusCode = outcome.StatusCode
	// Anything other than an exact 200 with a body is recorded without parsing.
	if outcome.StatusCode == http.StatusOK && len(outcome.Body) > 0 {
		result.Fields = c.extractor.Extract(outcome.Body)
	}
	c.logger.Debug("page fetched",
		zap.String("url", url),
		zap.Int("status", outcome.StatusCode),
		zap.Int("bytes", len(outcome.Body)),
		zap.Duration("duration", outcome.Duration),
	)
	return result
}

// RunCheck inspects url and stores the result against urlID. Only storage
// failures are returned as errors.
func (c *Checker) RunCheck(ctx context.Context, urlID int64, url string) (CheckRecord, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "analyzer.RunCheck")
	defer span.End()
	span.SetAttributes(attribute.Int64("url.id", urlID), attribute.String("url.full", url))

	inspection := c.Inspect(ctx, url)
	span.SetAttributes(attribute.Int("http.response.status_code", inspection.StatusCode))

	record, err := c.checks.CreateCheck(ctx, NewCheck{
		URLID:       urlID,
		StatusCode:  inspection.StatusCode,
		H1:          inspection.H1,
		Title:       inspection.Title,
		Description: inspection.Description,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist check")
		return CheckRecord{}, fmt.Errorf("persist check: %w", err)
	}

	c.notify(ctx, url, record)
	return record, nil
}

func (c *Checker) notify(ctx context.Context, url string, record CheckRecord) {
	if c.publisher == nil || c.cfg.Topic == "" {
		return
	}
	msg := CheckNotification{
		URLID:      record.URLID,
		CheckID:    record.ID,
		URL:        url,
		StatusCode: record.StatusCode,
		CreatedAt:  record.CreatedAt,
	}
	id, err := c.publisher.Publish(ctx, c.cfg.Topic, msg)
	if err != nil {
		c.logger.Warn("publish check notification failed",
			zap.Int64("check_id", record.ID),
			zap.String("topic", c.cfg.Topic),
			zap.Error(err),
		)
		return
	}
	c.logger.Debug("check notification published",
		zap.Int64("check_id", record.ID),
		zap.String("message_id", id),
	)
}
