// Package transport builds the HTTP clients workers use to reach the
// payments API. Every worker owns exactly one client with its own
// connection pool, so nothing on the transport layer is shared across
// workers.
package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Config holds the transport configuration shared by all clients.
type Config struct {
	// Token is the bearer token sent with every request.
	Token string

	// Proxy is an optional explicit proxy URL. When nil, the standard
	// proxy environment variables apply.
	Proxy *url.URL

	// Timeout bounds each request end to end.
	Timeout time.Duration

	// PoolSize is the connection pool size of each client.
	PoolSize int

	// UserAgent identifies this tool to the API.
	UserAgent string
}

// DefaultConfig returns a configuration matching the tool defaults.
func DefaultConfig(token string) Config {
	return Config{
		Token:     token,
		Timeout:   15 * time.Second,
		PoolSize:  20,
		UserAgent: "mp-resolve/1.0",
	}
}

// NewClient builds a client for exclusive use by a single worker.
// The client carries its own connection pool and injects the
// authentication headers on every request it sends.
func NewClient(cfg Config) *http.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "mp-resolve/1.0"
	}

	proxy := http.ProxyFromEnvironment
	if cfg.Proxy != nil {
		proxy = http.ProxyURL(cfg.Proxy)
	}

	base := &http.Transport{
		Proxy:               proxy,
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &authTransport{
			token:     cfg.Token,
			userAgent: cfg.UserAgent,
			base:      base,
		},
	}
}

// authTransport injects the authentication headers expected by the
// payments API on every outgoing request.
type authTransport struct {
	token     string
	userAgent string
	base      http.RoundTripper
}

// RoundTrip implements http.RoundTripper. The request is cloned before
// modification, as required by the RoundTripper contract.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.token))
	clone.Header.Set("Accept", "application/json")
	clone.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(clone)
}
