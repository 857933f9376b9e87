package poller

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	utilnet "k8s.io/apimachinery/pkg/util/net"
)

// maxErrorBodySize bounds the response body quoted in a TransportError message.
const maxErrorBodySize = 256

// ConfigError reports a node configuration problem that only surfaces when a
// poll tries to use it, such as an extractor that failed to compile. It fails
// that poll only.
type ConfigError struct {
	Node string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("node %s: configuration error: %v", e.Node, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// TransportError reports a failed query: the request could not be sent, timed
// out, or the server answered with a non-2xx status. StatusCode and Body are
// set in the last case.
type TransportError struct {
	Node       string
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		body := e.Body
		if len(body) > maxErrorBodySize {
			body = body[:maxErrorBodySize]
		}
		return fmt.Sprintf("node %s: query to %s returned status %d: %q", e.Node, e.URL, e.StatusCode, body)
	}
	return fmt.Sprintf("node %s: query to %s failed: %v", e.Node, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Network reports whether the failure happened at the network level.
func (e *TransportError) Network() bool {
	return IsNetworkError(e.Err)
}

// Timeout reports whether the query ran out of time.
func (e *TransportError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded) || utilnet.IsTimeout(e.Err)
}

// IsNetworkError checks if the error is a network-level error (connection
// issues, DNS, timeouts, broken connections).
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	if utilnet.IsConnectionRefused(err) ||
		utilnet.IsConnectionReset(err) ||
		utilnet.IsTimeout(err) ||
		utilnet.IsProbableEOF(err) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH, syscall.ECONNABORTED, syscall.EPIPE:
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return IsNetworkError(opErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
