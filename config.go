package dispatch

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
)

// Config carries the options recognized by this SDK (spec.md §6). Each
// field is read from an identically-named, DISPATCH_-prefixed environment
// variable and may be overridden programmatically via the With* options.
type Config struct {
	EndpointURL     string
	APIKey          string
	VerificationKey ed25519.PublicKey
	Trace           bool
	Logger          *slog.Logger
}

// Option configures a Config, applied in order after environment
// variables have been read.
type Option func(*Config)

// WithEndpointURL overrides DISPATCH_ENDPOINT_URL.
func WithEndpointURL(url string) Option {
	return func(c *Config) { c.EndpointURL = url }
}

// WithAPIKey overrides DISPATCH_API_KEY.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithVerificationKey overrides DISPATCH_VERIFICATION_KEY, taking a PEM
// encoded Ed25519 public key.
func WithVerificationKey(pemBytes []byte) Option {
	return func(c *Config) {
		key, err := parseVerificationKey(pemBytes)
		if err != nil {
			panic(fmt.Errorf("dispatch: WithVerificationKey: %w", err))
		}
		c.VerificationKey = key
	}
}

// WithTrace overrides DISPATCH_TRACE.
func WithTrace(trace bool) Option {
	return func(c *Config) { c.Trace = trace }
}

// WithLogger sets Config.Logger, which defaults to slog.Default() when
// unset. The Client, Registry and Engine do not read it; nothing in this
// package logs through it.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// NewConfig builds a Config from DISPATCH_-prefixed environment variables,
// then applies opts in order.
func NewConfig(opts ...Option) (*Config, error) {
	c := &Config{
		EndpointURL: os.Getenv("DISPATCH_ENDPOINT_URL"),
		APIKey:      os.Getenv("DISPATCH_API_KEY"),
		Trace:       os.Getenv("DISPATCH_TRACE") == "true" || os.Getenv("DISPATCH_TRACE") == "1",
	}
	if pemStr := os.Getenv("DISPATCH_VERIFICATION_KEY"); pemStr != "" {
		key, err := parseVerificationKey([]byte(pemStr))
		if err != nil {
			return nil, fmt.Errorf("dispatch: DISPATCH_VERIFICATION_KEY: %w", err)
		}
		c.VerificationKey = key
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}

func parseVerificationKey(pemBytes []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("not a PEM block")
	}
	if len(block.Bytes) == ed25519.PublicKeySize {
		return ed25519.PublicKey(block.Bytes), nil
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unexpected public key type %T", pub)
	}
	return key, nil
}
