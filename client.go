package dispatch

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchrun/dispatch-go/dispatchproto"
)

// DefaultEndpointURL is used when neither DISPATCH_ENDPOINT_URL nor
// WithEndpointURL supplies one.
const DefaultEndpointURL = "https://api.dispatch.run"

const dispatchPath = "/dispatch.sdk.v1.DispatchService/Dispatch"

// Client is the Local Client (spec.md §4.H): it originates work by posting
// Calls to the Dispatch API and getting back the dispatch IDs the
// scheduler assigned them, in the same order (original_source/client.py's
// Client.dispatch).
//
// The real Dispatch API speaks gRPC; this port speaks plain HTTP, posting
// the same protowire-encoded request/response bodies this SDK already
// hand-rolls for the Run protocol, since nothing in this pack pulls in a
// gRPC or Connect client to model that transport on.
type Client struct {
	EndpointURL string
	APIKey      string
	HTTPClient  *http.Client

	// MaxRetries bounds the hand-rolled exponential backoff BatchDispatch
	// applies to transient (5xx, network) failures. Zero disables retries.
	MaxRetries int
}

// NewClient builds a Client from cfg.
func NewClient(cfg *Config) *Client {
	endpoint := cfg.EndpointURL
	if endpoint == "" {
		endpoint = DefaultEndpointURL
	}
	return &Client{
		EndpointURL: endpoint,
		APIKey:      cfg.APIKey,
		HTTPClient:  http.DefaultClient,
		MaxRetries:  3,
	}
}

// Dispatch originates a single call, returning its dispatch ID.
func (c *Client) Dispatch(ctx context.Context, call dispatchproto.Call) (ID, error) {
	ids, err := c.BatchDispatch(ctx, []dispatchproto.Call{call})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// BatchDispatch originates every call in a single request, returning their
// dispatch IDs in the same order (spec.md §4.H's batching guarantee).
func (c *Client) BatchDispatch(ctx context.Context, calls []dispatchproto.Call) ([]ID, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if c.APIKey == "" {
		return nil, newError("dispatch", dispatchproto.StatusUnauthenticated, fmt.Errorf("missing API key: set it with the DISPATCH_API_KEY environment variable"))
	}

	body := dispatchproto.MarshalDispatchRequest(nil, dispatchproto.DispatchRequest{Calls: calls})
	idempotencyKey := newDispatchID()

	var resp dispatchproto.DispatchResponse
	err := retryWithBackoff(ctx, c.MaxRetries, func() error {
		r, err := c.post(ctx, body, idempotencyKey)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.DispatchIDs) != len(calls) {
		return nil, newError("dispatch", dispatchproto.StatusInvalidResponse,
			fmt.Errorf("expected %d dispatch ids, got %d", len(calls), len(resp.DispatchIDs)))
	}

	ids := make([]ID, len(resp.DispatchIDs))
	for i, s := range resp.DispatchIDs {
		ids[i] = ID(s)
	}
	return ids, nil
}

func (c *Client) post(ctx context.Context, body []byte, idempotencyKey string) (dispatchproto.DispatchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.EndpointURL+dispatchPath, bytes.NewReader(body))
	if err != nil {
		return dispatchproto.DispatchResponse{}, newError("dispatch", dispatchproto.StatusInvalidArgument, err)
	}
	req.Header.Set("Content-Type", "application/proto")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return dispatchproto.DispatchResponse{}, &transientError{err: newError("dispatch", dispatchproto.StatusTCPError, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return dispatchproto.DispatchResponse{}, &transientError{err: newError("dispatch", dispatchproto.StatusHTTPError, err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return dispatchproto.DispatchResponse{}, newError("dispatch", dispatchproto.StatusUnauthenticated,
			fmt.Errorf("Dispatch received an invalid authentication token (check DISPATCH_API_KEY is correct)"))
	case resp.StatusCode >= 500:
		return dispatchproto.DispatchResponse{}, &transientError{err: newError("dispatch", dispatchproto.StatusHTTPError,
			fmt.Errorf("dispatch API returned status %d", resp.StatusCode))}
	case resp.StatusCode >= 400:
		return dispatchproto.DispatchResponse{}, newError("dispatch", dispatchproto.StatusInvalidArgument,
			fmt.Errorf("dispatch API returned status %d", resp.StatusCode))
	}

	out, err := dispatchproto.UnmarshalDispatchResponse(respBody)
	if err != nil {
		return dispatchproto.DispatchResponse{}, newError("dispatch", dispatchproto.StatusInvalidResponse, err)
	}
	return out, nil
}

// transientError marks an *Error as retryable without changing its Status,
// so retryWithBackoff can tell a network hiccup from a genuine permanent
// rejection carrying the same HTTP-derived status.
type transientError struct{ err *Error }

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

func (e *transientError) DispatchStatus() dispatchproto.Status { return e.err.DispatchStatus() }

func (e *transientError) Transient() bool { return true }

// retryWithBackoff retries op up to maxRetries times on a transient
// failure, with exponential backoff and jitter. It gives up immediately on
// a non-transient error.
func retryWithBackoff(ctx context.Context, maxRetries int, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		var te dispatchproto.TransientError
		if !asTransient(lastErr, &te) || !te.Transient() || attempt == maxRetries {
			return lastErr
		}

		delay := backoffDelay(attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func asTransient(err error, target *dispatchproto.TransientError) bool {
	for err != nil {
		if te, ok := err.(dispatchproto.TransientError); ok {
			*target = te
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func backoffDelay(attempt int) time.Duration {
	base := 100 * time.Millisecond
	backoff := time.Duration(math.Pow(2, float64(attempt))) * base
	if backoff > 5*time.Second {
		backoff = 5 * time.Second
	}
	return backoff + jitter(backoff/4)
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	n := int64(b[0]) | int64(b[1])<<8 | int64(b[2])<<16 | int64(b[3])<<24
	if n < 0 {
		n = -n
	}
	return time.Duration(n) % max
}

// newDispatchID generates a locally-unique correlation token for cases
// where a Call needs one before the scheduler has assigned a real dispatch
// ID (e.g. idempotency keys on retried dispatch requests).
func newDispatchID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
