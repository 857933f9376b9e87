package poller

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/feedminer/internal/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClient_ConnectionReuse verifies that the HTTP client reuses connections
// when making sequential requests to the same host. This validates that the
// Transport is configured with keep-alives enabled and connection pooling active.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := NewClient()

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5

	// make sequential requests to ensure pool has opportunity to reuse
	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		resp := client.Do(ctx, Request{URL: server.URL, Timeout: 5 * time.Second})
		require.NoError(t, resp.Error, "request %d", i)
	}

	// with connection pooling enabled, we expect at least some reuse
	// (all requests after the first should reuse the connection)
	expectedMinReuse := numRequests - 2 // allow some tolerance
	assert.GreaterOrEqual(t, reusedCount, expectedMinReuse, "reused connections out of %d requests", numRequests)
}

// TestClient_Close verifies that Close() is safe to call and idempotent.
func TestClient_Close(t *testing.T) {
	client := NewClient()

	// should not panic
	client.Close()

	// calling Close multiple times should be safe (idempotent)
	client.Close()
	client.Close()
}

// TestClient_Close_NilClient verifies that Close() handles nil receiver safely.
func TestClient_Close_NilClient(t *testing.T) {
	var client *Client

	// should not panic on nil receiver
	client.Close()
}

// TestClient_Close_ActuallyClosesConnections verifies that Close closes idle
// connections, but the client remains usable for new requests.
func TestClient_Close_ActuallyClosesConnections(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := NewClient()

	for i := 0; i < 5; i++ {
		resp := client.Do(context.Background(), Request{URL: server.URL, Timeout: time.Second})
		require.NoError(t, resp.Error, "request %d", i)
	}

	client.Close()

	// subsequent requests should still work (new connections established)
	resp := client.Do(context.Background(), Request{URL: server.URL, Timeout: time.Second})
	assert.NoError(t, resp.Error, "request after Close")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_SendsQuery(t *testing.T) {
	var gotMethod, gotBody, gotHeader, gotUser, gotPass string
	var gotAuth bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotHeader = r.Header.Get("X-Tenant")
		gotUser, gotPass, gotAuth = r.BasicAuth()
		_, _ = w.Write([]byte(`[{"indicator":"1.2.3.4"}]`))
	}))
	defer server.Close()

	client := NewClient()
	defer client.Close()

	req := BuildRequest(QueryConfig{
		URL:         server.URL,
		QueryString: `{"queryString":"*"}`,
		Headers:     map[string]string{"X-Tenant": "blue"},
		Timeout:     time.Second,
	}, credentials.New("analyst", "s3cret"))

	resp := client.Do(context.Background(), req)
	require.NoError(t, resp.Error)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, `{"queryString":"*"}`, gotBody)
	assert.Equal(t, "blue", gotHeader)
	assert.True(t, gotAuth)
	assert.Equal(t, "analyst", gotUser)
	assert.Equal(t, "s3cret", gotPass)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"indicator":"1.2.3.4"}]`, string(resp.Body))
}

func TestClient_NoAuthHeaderWithoutCredentials(t *testing.T) {
	var hasAuth bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, hasAuth = r.BasicAuth()
	}))
	defer server.Close()

	resp := NewClient().Do(context.Background(), BuildRequest(QueryConfig{URL: server.URL}, credentials.New("analyst", "")))
	require.NoError(t, resp.Error)
	assert.False(t, hasAuth)
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	start := time.Now()
	resp := NewClient().Do(context.Background(), Request{URL: server.URL, Timeout: 100 * time.Millisecond})

	require.Error(t, resp.Error)
	assert.True(t, errors.Is(resp.Error, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(w, io.LimitReader(zeroReader{}, maxResponseBodySize+10))
	}))
	defer server.Close()

	resp := NewClient().Do(context.Background(), Request{URL: server.URL, Timeout: 5 * time.Second})

	require.Error(t, resp.Error)
	assert.Contains(t, resp.Error.Error(), "exceeds")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = '0'
	}
	return len(p), nil
}

func TestClient_VerifyCert(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := NewClient()
	defer client.Close()

	// the test server's certificate is not trusted by the system pool
	verified := client.Do(context.Background(), Request{URL: server.URL, Timeout: time.Second, VerifyCert: true})
	require.Error(t, verified.Error)
	assert.Zero(t, verified.StatusCode)

	unverified := client.Do(context.Background(), Request{URL: server.URL, Timeout: time.Second, VerifyCert: false})
	require.NoError(t, unverified.Error)
	assert.Equal(t, http.StatusOK, unverified.StatusCode)

	assert.Len(t, client.transports, 2, "one transport per TLS identity")
}

func TestClient_ClientCertificate(t *testing.T) {
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
			http.Error(w, "client certificate required", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(r.TLS.PeerCertificates[0].Subject.CommonName))
	}))
	server.TLS = &tls.Config{ClientAuth: tls.RequestClientCert}
	server.StartTLS()
	defer server.Close()

	dir := t.TempDir()
	certFile, keyFile := writeClientCert(t, dir, "edge", "edge-node")

	client := NewClient()
	defer client.Close()

	req := BuildRequest(QueryConfig{
		URL:                server.URL,
		ClientCertRequired: true,
		CertFile:           certFile,
		KeyFile:            keyFile,
	}, credentials.New("ignored", "ignored"))
	require.Equal(t, AuthClientCert, req.Auth)

	resp := client.Do(context.Background(), req)
	require.NoError(t, resp.Error)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "edge-node", strings.TrimSpace(string(resp.Body)))

	// without the certificate the server refuses
	resp = client.Do(context.Background(), Request{URL: server.URL, Timeout: time.Second})
	require.NoError(t, resp.Error)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
