package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	maxAttempts    = 3
	initialBackoff = 1 * time.Second
	attemptTimeout = 10 * time.Second
)

// Payload is the resolution event delivered to the caller-facing channel.
type Payload struct {
	RequestID   string `json:"requestId"`
	Answer      string `json:"answer"`
	CallerID    string `json:"callerId,omitempty"`
	CallerPhone string `json:"callerPhone,omitempty"`
	ResolvedBy  string `json:"resolvedBy"`
	Timestamp   string `json:"timestamp"`
}

// Notifier posts signed resolution events with at-least-once retry
// semantics: up to 3 attempts with 1s/2s/4s backoff, 10s per attempt.
// 4xx responses and permanently unreachable hosts are not retried; 5xx and
// timeouts are. Exhausted retries return false, never an error, so the
// triggering operation is unaffected.
type Notifier struct {
	url    string
	secret string
	client *http.Client
	sleep  func(time.Duration)
}

func NewNotifier(url, secret string) *Notifier {
	return &Notifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: attemptTimeout},
		sleep:  time.Sleep,
	}
}

// NewNotifierWithClient creates a Notifier with a custom http client and
// sleep function (for testing).
func NewNotifierWithClient(url, secret string, client *http.Client, sleep func(time.Duration)) *Notifier {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Notifier{url: url, secret: secret, client: client, sleep: sleep}
}

// Send delivers the payload. Returns true when the receiver accepted it.
func (n *Notifier) Send(ctx context.Context, payload Payload) bool {
	if n.url == "" {
		return false
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("webhook payload marshal failed: %v", err)
		return false
	}

	signature := Sign(n.secret, body)
	backoff := initialBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, err := n.attempt(ctx, body, signature)
		if err == nil && status >= 200 && status < 300 {
			return true
		}

		if status >= 400 && status < 500 {
			log.Printf("webhook rejected with status %d, not retrying", status)
			return false
		}
		if err != nil && isPermanent(err) {
			log.Printf("webhook unreachable, not retrying: %v", err)
			return false
		}

		if attempt < maxAttempts {
			log.Printf("webhook attempt %d/%d failed (status=%d err=%v), retrying in %s", attempt, maxAttempts, status, err, backoff)
			n.sleep(backoff)
			backoff *= 2
		}
	}

	log.Printf("webhook delivery failed after %d attempts", maxAttempts)
	return false
}

func (n *Notifier) attempt(ctx context.Context, body []byte, signature string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set(TimestampHeader, strconv.FormatInt(time.Now().UTC().Unix(), 10))

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// isPermanent classifies network errors that a retry will not fix.
func isPermanent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return !dnsErr.IsTemporary && !dnsErr.IsTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return !netErr.Timeout()
	}
	return false
}
