// Package sink delivers finished batch results outside the process: a signed
// webhook per job and, optionally, a Kafka topic.
package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/maprank/metrics"
)

// SignatureHeader carries "sha256=<hex>" of the body when a secret is set.
const SignatureHeader = "X-Maprank-Signature"

// EventBatchCompleted is sent when a batch job reaches a terminal status.
const EventBatchCompleted = "batch.completed"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Webhook posts events to caller-supplied URLs.
type Webhook struct {
	Client *http.Client

	// Delays are waited before each retry. The first attempt is immediate.
	Delays []time.Duration

	Metrics *metrics.Metrics
}

// NewWebhook returns a Webhook retrying after 1s, 5s and 30s.
func NewWebhook(m *metrics.Metrics) *Webhook {
	return &Webhook{
		Client:  &http.Client{Timeout: 10 * time.Second},
		Delays:  []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
		Metrics: m,
	}
}

// Deliver sends one event synchronously.
func (w *Webhook) Deliver(ctx context.Context, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Maprank-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverWithRetry tries once, then once after each of w.Delays, until a
// delivery succeeds or ctx is done.
func (w *Webhook) DeliverWithRetry(ctx context.Context, url, secret string, event *Event) error {
	delays := append([]time.Duration{0}, w.Delays...)
	var err error
	for attempt, delay := range delays {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = w.Deliver(attemptCtx, url, secret, event)
		cancel()
		w.Metrics.ObserveDelivery("webhook", err)
		if err == nil {
			slog.Info("webhook delivered",
				"url", url,
				"event", event.Type,
				"job_id", event.JobID,
				"attempt", attempt+1,
			)
			return nil
		}
		slog.Warn("webhook delivery failed",
			"url", url,
			"event", event.Type,
			"job_id", event.JobID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	slog.Error("webhook delivery exhausted all retries",
		"url", url,
		"event", event.Type,
		"job_id", event.JobID,
	)
	return err
}

// DeliverAsync runs DeliverWithRetry in the background.
func (w *Webhook) DeliverAsync(url, secret string, event *Event) {
	go func() {
		_ = w.DeliverWithRetry(context.Background(), url, secret, event)
	}()
}
