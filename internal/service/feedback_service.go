package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Guizzs26/go-saksstatistikk/internal/jobs"
	"github.com/Guizzs26/go-saksstatistikk/internal/models"
)

type FeedbackRepository interface {
	MarkAsErrorByCorrelationID(ctx context.Context, correlationID string, errLog string) error
}

// FeedbackService records jobs the consumer gave up on. The broker dead-letters them and this
// service flags the matching outbox row so an operator can find it
type FeedbackService struct {
	repo   FeedbackRepository
	logger *slog.Logger
}

func NewFeedbackService(r FeedbackRepository, l *slog.Logger) *FeedbackService {
	return &FeedbackService{repo: r, logger: l}
}

func (s *FeedbackService) HandleDeadLetter(ctx context.Context, body []byte, reason string) error {
	var entry jobs.Entry
	if err := json.Unmarshal(body, &entry); err != nil {
		s.logger.Error("Feedback: failed to unmarshal dead letter", "error", err)
		return models.NewValidationError("body", "is not a job record: %v", err)
	}

	s.logger.Warn("Feedback: caught dead letter, updating database",
		"correlation_id", entry.CorrelationID,
		"kind", entry.Kind,
		"reason", reason,
	)

	if reason == "" {
		reason = "fatal error reported by sync consumer"
	}
	err := s.repo.MarkAsErrorByCorrelationID(ctx, entry.CorrelationID, reason)
	if err != nil {
		s.logger.Error("Feedback: failed to update postgres", "correlation_id", entry.CorrelationID, "error", err)
		return err
	}

	return nil
}
