package dispatch

import (
	"crypto/ed25519"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRequestRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	body := []byte(`{"hello":"world"}`)
	req, err := http.NewRequest(http.MethodPost, "https://example.com/dispatch.sdk.v1.DispatchService/Dispatch", nil)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/proto")

	SignRequest(req, body, priv, time.Unix(1700000000, 0))

	assert.NotEmpty(t, req.Header.Get("Content-Digest"))
	assert.NotEmpty(t, req.Header.Get("Signature-Input"))
	assert.NotEmpty(t, req.Header.Get("Signature"))

	require.NoError(t, VerifyRequest(req, body, pub, 0))
}

func TestVerifyRequestRejectsTamperedBody(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, "https://example.com/path", nil)
	require.NoError(t, err)

	SignRequest(req, []byte("original"), priv, time.Now())

	err = VerifyRequest(req, []byte("tampered"), pub, 0)
	require.Error(t, err)
}

func TestVerifyRequestRejectsWrongKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	body := []byte("payload")
	req, err := http.NewRequest(http.MethodPost, "https://example.com/path", nil)
	require.NoError(t, err)
	SignRequest(req, body, priv, time.Now())

	err = VerifyRequest(req, body, otherPub, 0)
	require.Error(t, err)
}

func TestVerifyRequestRejectsExpiredSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	body := []byte("payload")
	req, err := http.NewRequest(http.MethodPost, "https://example.com/path", nil)
	require.NoError(t, err)
	SignRequest(req, body, priv, time.Now().Add(-time.Hour))

	err = VerifyRequest(req, body, pub, time.Minute)
	require.Error(t, err)
}

func TestContentDigestIsDeterministic(t *testing.T) {
	body := []byte("same bytes")
	assert.Equal(t, ContentDigest(body), ContentDigest(body))
	assert.NotEqual(t, ContentDigest(body), ContentDigest([]byte("different bytes")))
}
