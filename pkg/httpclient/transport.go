package httpclient

import (
	"net"
	"net/http"
	"time"
)

// TransportConfig holds connection pool settings for outbound HTTP.
type TransportConfig struct {
	DialTimeout     time.Duration
	MaxConnsPerHost int
	IdleConnTimeout time.Duration
}

// DefaultTransportConfig returns sensible defaults for a pooled transport.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		DialTimeout:     10 * time.Second,
		MaxConnsPerHost: 100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// NewTransport creates an http.Transport with connection pooling.
func NewTransport(cfg TransportConfig) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
