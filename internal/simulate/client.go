package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// healthWait bounds how long a run waits for the service to come up.
const healthWait = 30 * time.Second

// client is a thin JSON client for the tally API.
type client struct {
	base string
	http *http.Client
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{base: baseURL, http: &http.Client{Timeout: timeout}}
}

// do sends a request with an optional JSON body and returns the status and
// the raw response body.
func (c *client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, out, nil
}

// getJSON fetches path and decodes a 200 answer into v.
func (c *client) getJSON(ctx context.Context, path string, v any) error {
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: GET %s: HTTP %d: %s", ErrUnexpectedReply, path, status, body)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrUnexpectedReply, path, err)
	}
	return nil
}

// waitHealthy polls /healthz with exponential backoff until it answers 200.
func (c *client) waitHealthy(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxElapsedTime = healthWait

	err := backoff.Retry(func() error {
		status, _, err := c.do(ctx, http.MethodGet, "/healthz", nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("healthz answered %d", status)
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	return nil
}

func (c *client) registerNominee(ctx context.Context, req registerRequest) error {
	status, body, err := c.do(ctx, http.MethodPost, "/v1/nominees", req)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return fmt.Errorf("%w: register %s: HTTP %d: %s", ErrUnexpectedReply, req.NomineeID, status, body)
	}
	return nil
}

// submit posts one fact and classifies the answer. The fact id is returned
// for accepted facts.
func (c *client) submit(ctx context.Context, f Fact) (Outcome, string) {
	path := "/v1/nominations"
	if f.Kind == kindVote {
		path = "/v1/votes"
	}
	status, body, err := c.do(ctx, http.MethodPost, path, ingestRequest{
		NomineeID: f.NomineeID,
		ActorRole: f.ActorRole,
		AGCTxnID:  f.AGCTxnID,
	})
	if err != nil {
		return OutcomeFailed, ""
	}
	return classify(status, body)
}

func (c *client) retract(ctx context.Context, factID string) (Outcome, string) {
	status, body, err := c.do(ctx, http.MethodPost, "/v1/facts/"+url.PathEscape(factID)+"/retract", nil)
	if err != nil {
		return OutcomeFailed, ""
	}
	return classify(status, body)
}

func classify(status int, body []byte) (Outcome, string) {
	switch status {
	case http.StatusCreated:
		var id idResponse
		if err := json.Unmarshal(body, &id); err != nil || id.ID == "" {
			return OutcomeFailed, ""
		}
		return OutcomeAccepted, id.ID
	case http.StatusConflict:
		return OutcomeDuplicate, ""
	case http.StatusPaymentRequired:
		return OutcomeRejected, ""
	case http.StatusServiceUnavailable:
		return OutcomeUnavailable, ""
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return OutcomeInvalid, ""
	default:
		return OutcomeFailed, ""
	}
}

func (c *client) tally(ctx context.Context, subcategoryID string) ([]tallyEntry, error) {
	var resp tallyResponse
	if err := c.getJSON(ctx, "/v1/subcategories/"+url.PathEscape(subcategoryID)+"/tally", &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *client) eligibility(ctx context.Context, nomineeID string) (eligibilityResponse, error) {
	var resp eligibilityResponse
	err := c.getJSON(ctx, "/v1/nominees/"+url.PathEscape(nomineeID)+"/eligibility", &resp)
	return resp, err
}
