// Package notification delivers ticket notifications to the external
// delivery collaborator and guards against duplicate delivery.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/inquirydesk/inquiry-service/internal/domain"
)

// Sink accepts a notification with at-least-once semantics.
type Sink interface {
	Deliver(ctx context.Context, n domain.Notification) error
	Name() string
}

// WebhookSink POSTs the notification as JSON.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink builds a webhook sink with the given per-request timeout.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Deliver(ctx context.Context, n domain.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.IdempotencyKey())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// StreamSink appends notifications to a Redis stream for downstream
// consumers.
type StreamSink struct {
	client *redis.Client
	key    string
}

// NewStreamSink builds a stream sink writing to key.
func NewStreamSink(client *redis.Client, key string) *StreamSink {
	return &StreamSink{client: client, key: key}
}

func (s *StreamSink) Name() string { return "redis_stream" }

func (s *StreamSink) Deliver(ctx context.Context, n domain.Notification) error {
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key,
		Values: map[string]interface{}{
			"id":           n.ID,
			"recipient_id": n.RecipientID,
			"ticket_id":    n.TicketID,
			"message_id":   n.MessageID,
			"kind":         string(n.Kind),
			"created_at":   n.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}

// LogSink only logs; used when no delivery collaborator is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a log-only sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, n domain.Notification) error {
	s.logger.Info("notification",
		zap.String("recipient_id", n.RecipientID),
		zap.String("ticket_id", n.TicketID),
		zap.String("message_id", n.MessageID),
		zap.String("kind", string(n.Kind)))
	return nil
}

// SelectSink picks webhook, then Redis stream, then log.
func SelectSink(webhookURL, streamKey string, timeout time.Duration, client *redis.Client, logger *zap.Logger) Sink {
	switch {
	case webhookURL != "":
		return NewWebhookSink(webhookURL, timeout)
	case client != nil && streamKey != "":
		return NewStreamSink(client, streamKey)
	default:
		return NewLogSink(logger)
	}
}
