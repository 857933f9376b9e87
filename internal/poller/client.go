package poller

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxResponseBodySize = 8 << 20 // 8MB

// connection pooling limits to prevent resource exhaustion when polling many nodes
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// Response holds the result of a query sent by [Client].
type Response struct {
	// Body contains the HTTP response body, limited to 8MB.
	Body []byte

	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the request.
	// nil indicates the request completed (though status may indicate an error).
	Error error
}

// transportKey identifies the TLS identity of a transport. Requests sharing
// a key share a connection pool.
type transportKey struct {
	insecure bool
	certFile string
	keyFile  string
}

// Client is an HTTP client wrapper for sending node queries.
//
// Client uses per-request timeouts via context rather than a global timeout,
// allowing different nodes to have different timeout configurations.
// Requests with different TLS settings (certificate verification, client
// certificate) get separate transports, each with its own connection pool.
type Client struct {
	mu         sync.Mutex
	transports map[transportKey]*http.Transport
}

// NewClient creates a new query [Client].
//
// Each transport is configured with connection pooling limits:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func NewClient() *Client {
	return &Client{transports: make(map[transportKey]*http.Transport)}
}

// Do sends req and returns a structured [Response].
//
// The timeout of req is applied via context cancellation. Basic
// authentication is added from req.Credentials; the password is decrypted
// only for the duration of this call. Client certificates are read from disk
// on every new TLS handshake, so a replaced certificate pair is picked up
// without restarting.
//
// Do always returns a Response; errors are captured in the Error field
// rather than returned separately. A body larger than the size limit is an
// error.
func (c *Client) Do(ctx context.Context, req Request) Response {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, strings.NewReader(req.Body))
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if req.Auth == AuthBasic {
		password, err := req.Credentials.Password()
		if err != nil {
			return Response{
				Latency: time.Since(start),
				Error:   fmt.Errorf("failed to read credentials: %w", err),
			}
		}
		httpReq.SetBasicAuth(req.Credentials.Username(), password)
	}

	httpClient := &http.Client{Transport: c.transport(req)}

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	// read one byte past the limit to detect oversized bodies
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize+1))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}
	if len(body) > maxResponseBodySize {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("response body exceeds %d bytes", maxResponseBodySize),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
		Error:      nil,
	}
}

// transport returns the cached transport for the TLS identity of req,
// creating it on first use.
func (c *Client) transport(req Request) *http.Transport {
	key := transportKey{insecure: !req.VerifyCert}
	if req.Auth == AuthClientCert {
		key.certFile = req.ClientCert.CertFile
		key.keyFile = req.ClientCert.KeyFile
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.transports[key]; ok {
		return t
	}
	t := newTransport(key)
	c.transports[key] = t
	return t
}

func newTransport(key transportKey) *http.Transport {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: key.insecure, //nolint:gosec // operator opt-out via verify_cert: false
	}
	if key.certFile != "" {
		certFile, keyFile := key.certFile, key.keyFile
		tlsConfig.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) {
			cert, err := tls.LoadX509KeyPair(certFile, keyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			return &cert, nil
		}
	}

	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     defaultMaxConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		DisableKeepAlives:   false, // explicitly enable connection reuse
	}
}

// Close closes all idle connections in the client's connection pools.
//
// This should be called when the client is no longer needed to release
// resources immediately rather than waiting for the idle connection timeout.
// Safe to call multiple times. After Close, the client remains usable but
// new connections will be established as needed.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.transports {
		t.CloseIdleConnections()
	}
}
