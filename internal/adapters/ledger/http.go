package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/okian/awardtally/pkg/logger"
)

// HTTPLedger calls the wallet service over HTTP.
type HTTPLedger struct {
	baseURL         string
	client          *http.Client
	initialInterval time.Duration
	maxInterval     time.Duration
	maxRetries      uint64
}

// HTTPOption configures an HTTPLedger.
type HTTPOption func(*HTTPLedger)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(l *HTTPLedger) {
		if c != nil {
			l.client = c
		}
	}
}

// WithRetry tunes the retry schedule for transient failures.
func WithRetry(initial, max time.Duration, retries uint64) HTTPOption {
	return func(l *HTTPLedger) {
		if initial > 0 {
			l.initialInterval = initial
		}
		if max > 0 {
			l.maxInterval = max
		}
		l.maxRetries = retries
	}
}

// NewHTTPLedger creates a client for the ledger at baseURL.
func NewHTTPLedger(baseURL string, opts ...HTTPOption) *HTTPLedger {
	l := &HTTPLedger{
		baseURL:         strings.TrimRight(baseURL, "/"),
		client:          &http.Client{Timeout: 5 * time.Second},
		initialInterval: 50 * time.Millisecond,
		maxInterval:     500 * time.Millisecond,
		maxRetries:      3,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// VerifyAndConsume posts to /v1/transactions/{txn}/consume. 5xx answers and
// network errors are retried inside the caller's deadline; 402, 404, and 409
// are definitive.
func (l *HTTPLedger) VerifyAndConsume(ctx context.Context, txnID string, p Purpose) (Consumed, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Consumed{}, fmt.Errorf("encode purpose: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/transactions/%s/consume", l.baseURL, url.PathEscape(txnID))

	var out Consumed
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := l.client.Do(req)
		if err != nil {
			// Network errors are retryable
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return backoff.Permanent(fmt.Errorf("%w: decode receipt: %v", ErrUnavailable, err))
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrUnknownTransaction)
		case resp.StatusCode == http.StatusPaymentRequired:
			return backoff.Permanent(ErrInsufficientFunds)
		case resp.StatusCode == http.StatusConflict:
			return backoff.Permanent(ErrPurposeMismatch)
		case resp.StatusCode >= http.StatusInternalServerError:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
		default:
			return backoff.Permanent(fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode))
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.initialInterval
	b.MaxInterval = l.maxInterval
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5

	attempt := 0
	notify := func(err error, next time.Duration) {
		attempt++
		logger.Get().Warn(ctx, "ledger call failed, retrying",
			logger.String("txn_id", txnID),
			logger.Int("attempt", attempt),
			logger.Duration("next_retry_in", next),
			logger.Error(err),
		)
	}

	err = backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, l.maxRetries), ctx), notify)
	if err != nil {
		if errors.Is(err, ErrRejected) || errors.Is(err, ErrUnavailable) {
			return Consumed{}, err
		}
		return Consumed{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}
