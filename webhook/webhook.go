// Package webhook posts the outcome of finished exports to an HTTP endpoint.
package webhook

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
	"sync"
	"time"

	"github.com/use-agent/plugscrape/popup"
)

// SignatureHeader carries "sha256=<hex>" of the body when a secret is set.
const SignatureHeader = "X-Plugscrape-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string       `json:"type"` // "export.done", "export.error" or "export.nothing-found"
	Session   string       `json:"session"`
	Timestamp int64        `json:"timestamp"`
	Data      popup.Notice `json:"data"`
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func Deliver(ctx context.Context, client *http.Client, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Plugscrape-Webhook/1.0")

	if secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notifier forwards terminal export outcomes of every session to URL.
// Running notices and language changes are not sent.
type Notifier struct {
	URL    string
	Secret string

	// RetryDelays are waited before each attempt; default 0s, 1s, 5s, 30s.
	RetryDelays []time.Duration
	Client      *http.Client
	Logger      *slog.Logger
	Now         func() time.Time

	wg sync.WaitGroup
}

var defaultDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Notify implements popup.Notifier. Delivery runs in the background.
func (n *Notifier) Notify(e popup.Event) {
	if e.Type != popup.EventStatus || e.Notice == nil {
		return
	}
	switch e.Notice.Outcome {
	case popup.OutcomeDone, popup.OutcomeError, popup.OutcomeNothingFound:
	default:
		return
	}
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	event := &Event{
		Type:      "export." + string(e.Notice.Outcome),
		Session:   e.Session,
		Timestamp: now().Unix(),
		Data:      *e.Notice,
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliverWithRetry(event)
	}()
}

// Wait blocks until every pending delivery has finished or given up.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliverWithRetry(event *Event) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	delays := n.RetryDelays
	if len(delays) == 0 {
		delays = defaultDelays
	}

	for attempt, delay := range delays {
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := Deliver(ctx, client, n.URL, n.Secret, event)
		cancel()
		if err == nil {
			logger.Info("webhook delivered",
				"url", n.URL,
				"event", event.Type,
				"session", event.Session,
				"attempt", attempt+1,
			)
			return
		}
		logger.Warn("webhook delivery failed",
			"url", n.URL,
			"event", event.Type,
			"session", event.Session,
			"attempt", attempt+1,
			"error", err,
		)
	}
	logger.Error("webhook delivery exhausted all retries",
		"url", n.URL,
		"event", event.Type,
		"session", event.Session,
	)
}

// Multi fans one event out to several notifiers; nil entries are skipped.
func Multi(notifiers ...popup.Notifier) popup.Notifier {
	var out []popup.Notifier
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return popup.NotifierFunc(func(e popup.Event) {
		for _, n := range out {
			n.Notify(e)
		}
	})
}
