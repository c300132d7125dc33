package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchrun/dispatch-go/dispatchproto"
)

func newTestCall(t *testing.T, function string) dispatchproto.Call {
	t.Helper()
	env, err := dispatchproto.Box("payload")
	require.NoError(t, err)
	return dispatchproto.Call{Function: function, Input: env}
}

func TestClientDispatchReturnsDispatchIDs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		body := dispatchproto.MarshalDispatchResponse(nil, dispatchproto.DispatchResponse{DispatchIDs: []string{"dispatch-1"}})
		w.Write(body)
	}))
	defer server.Close()

	client := &Client{EndpointURL: server.URL, APIKey: "test-key", HTTPClient: server.Client()}

	id, err := client.Dispatch(context.Background(), newTestCall(t, "f"))
	require.NoError(t, err)
	assert.Equal(t, ID("dispatch-1"), id)
}

func TestClientBatchDispatchReusesIdempotencyKeyAcrossRetries(t *testing.T) {
	var attempts int32
	var keys []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body := dispatchproto.MarshalDispatchResponse(nil, dispatchproto.DispatchResponse{DispatchIDs: []string{"a", "b"}})
		w.Write(body)
	}))
	defer server.Close()

	client := &Client{EndpointURL: server.URL, APIKey: "test-key", HTTPClient: server.Client(), MaxRetries: 3}

	ids, err := client.BatchDispatch(context.Background(), []dispatchproto.Call{
		newTestCall(t, "f"),
		newTestCall(t, "g"),
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, ID("a"), ids[0])
	assert.Equal(t, ID("b"), ids[1])

	require.Len(t, keys, 3)
	assert.Equal(t, keys[0], keys[1])
	assert.Equal(t, keys[1], keys[2])
}

func TestClientDispatchMissingAPIKeyFails(t *testing.T) {
	client := &Client{EndpointURL: "https://example.com"}
	_, err := client.Dispatch(context.Background(), newTestCall(t, "f"))
	require.Error(t, err)
}

func TestClientDispatchPermanentErrorDoesNotRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := &Client{EndpointURL: server.URL, APIKey: "bad-key", HTTPClient: server.Client(), MaxRetries: 3}

	_, err := client.Dispatch(context.Background(), newTestCall(t, "f"))
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestClientBatchDispatchEmptyIsNoop(t *testing.T) {
	client := &Client{EndpointURL: "https://example.com", APIKey: "test-key"}
	ids, err := client.BatchDispatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, ids)
}
