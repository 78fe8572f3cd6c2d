// Package httputil provides shared HTTP plumbing for the mirage gateway:
// a pooled transport, timeout-tiered clients, and safe response handling
// for the webhook and LLM collaborator paths.
package httputil

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize bounds response body reads from external collaborators.
const MaxResponseSize = 10 * 1024 * 1024 // 10MB

// sharedTransport reuses TCP connections across all outbound calls
// (webhook targets, LLM providers, embedding backend).
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier defines standard timeout categories for outbound calls.
type TimeoutTier int

const (
	// TierFast for webhook deliveries and health probes (10s)
	TierFast TimeoutTier = iota
	// TierMedium for embedding and standard API calls (30s)
	TierMedium
	// TierSlow for LLM reply synthesis (60s)
	TierSlow
)

var tierTimeouts = map[TimeoutTier]time.Duration{
	TierFast:   10 * time.Second,
	TierMedium: 30 * time.Second,
	TierSlow:   60 * time.Second,
}

var (
	tierClients map[TimeoutTier]*http.Client
	clientOnce  sync.Once
)

// Client returns the shared HTTP client for a timeout tier. All tiers share
// one connection pool; use these instead of building http.Client per call.
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(func() {
		tierClients = make(map[TimeoutTier]*http.Client, len(tierTimeouts))
		for t, d := range tierTimeouts {
			tierClients[t] = &http.Client{Timeout: d, Transport: sharedTransport}
		}
	})
	if c, ok := tierClients[tier]; ok {
		return c
	}
	return tierClients[TierMedium]
}

// FastClient returns the 10s-timeout client (webhooks, health probes).
func FastClient() *http.Client { return Client(TierFast) }

// MediumClient returns the 30s-timeout client (embeddings, standard APIs).
func MediumClient() *http.Client { return Client(TierMedium) }

// SlowClient returns the 60s-timeout client (LLM synthesis).
func SlowClient() *http.Client { return Client(TierSlow) }

// NewHTTPClient builds a client with a custom timeout on the shared pool.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: sharedTransport}
}

// ReadResponseBody reads a response body with a size limit so a
// misbehaving collaborator cannot exhaust memory.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// ReadErrorBody reads a response body for error reporting with a tight
// limit; error messages should never be large.
func ReadErrorBody(r io.Reader) ([]byte, error) {
	const maxErrorSize = 1 * 1024 * 1024
	return io.ReadAll(io.LimitReader(r, maxErrorSize))
}

// DrainAndClose drains and closes a response body so the underlying
// connection returns to the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
