package executor

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// ClientConfig tunes the shared transport.
type ClientConfig struct {
	DialTimeout     time.Duration
	ReadIdleTimeout time.Duration
	PingTimeout     time.Duration
}

// DefaultClientConfig suits long-lived streaming responses.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DialTimeout:     10 * time.Second,
		ReadIdleTimeout: 30 * time.Second,
		PingTimeout:     15 * time.Second,
	}
}

// NewHTTPClient builds a client whose HTTP/2 connections are health-checked
// with pings, so a stream that silently stalls is torn down instead of
// waiting for the attempt timeout. The client sets no overall timeout;
// Execute bounds each attempt.
func NewHTTPClient(cfg ClientConfig) (*http.Client, error) {
	def := DefaultClientConfig()
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.ReadIdleTimeout <= 0 {
		cfg.ReadIdleTimeout = def.ReadIdleTimeout
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = def.PingTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	h2, err := http2.ConfigureTransports(transport)
	if err != nil {
		return nil, err
	}
	h2.ReadIdleTimeout = cfg.ReadIdleTimeout
	h2.PingTimeout = cfg.PingTimeout

	return &http.Client{Transport: transport}, nil
}
