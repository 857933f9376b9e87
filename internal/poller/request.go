package poller

import (
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/feedminer/internal/credentials"
)

// DefaultTimeout is the query timeout used when none is configured.
const DefaultTimeout = 20 * time.Second

// AuthMode is the authentication a request carries.
type AuthMode int

const (
	// AuthNone sends no credentials.
	AuthNone AuthMode = iota
	// AuthBasic sends HTTP basic authentication.
	AuthBasic
	// AuthClientCert presents a client certificate during the TLS handshake.
	AuthClientCert
)

func (m AuthMode) String() string {
	switch m {
	case AuthBasic:
		return "basic"
	case AuthClientCert:
		return "client-cert"
	default:
		return "none"
	}
}

// QueryConfig is the request side of a node's configuration. It does not
// change between polls; a reconfiguration builds a new one.
type QueryConfig struct {
	URL         string
	QueryString string
	Headers     map[string]string
	Timeout     time.Duration
	VerifyCert  bool

	// ClientCertRequired enables client certificate authentication with the
	// pair at CertFile and KeyFile.
	ClientCertRequired bool
	CertFile           string
	KeyFile            string
}

// ClientCert locates a PEM encoded client certificate and its private key.
type ClientCert struct {
	CertFile string
	KeyFile  string
}

// Request describes one outbound query. It is built fresh for every poll by
// [BuildRequest] and sent by [Client.Do].
type Request struct {
	Method     string
	URL        string
	Body       string
	Headers    map[string]string
	Timeout    time.Duration
	VerifyCert bool

	Auth AuthMode
	// Credentials is set when Auth is AuthBasic. The password stays
	// encrypted until the request is sent.
	Credentials *credentials.Credentials
	// ClientCert is set when Auth is AuthClientCert.
	ClientCert ClientCert
}

// BuildRequest assembles the query for cfg authenticated with creds.
//
// The query string is sent verbatim as a POST body. Authentication is chosen
// in this order:
//  1. a client certificate, if one is required and both files are readable
//  2. basic authentication, if creds holds a username and a password
//  3. nothing
func BuildRequest(cfg QueryConfig, creds *credentials.Credentials) Request {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	req := Request{
		Method:     http.MethodPost,
		URL:        cfg.URL,
		Body:       cfg.QueryString,
		Headers:    cfg.Headers,
		Timeout:    timeout,
		VerifyCert: cfg.VerifyCert,
		Auth:       AuthNone,
	}

	switch {
	case cfg.ClientCertRequired && readable(cfg.CertFile) && readable(cfg.KeyFile):
		req.Auth = AuthClientCert
		req.ClientCert = ClientCert{CertFile: cfg.CertFile, KeyFile: cfg.KeyFile}
	case creds.Complete():
		req.Auth = AuthBasic
		req.Credentials = creds
	}
	return req
}

// readable reports whether path names a regular file that can be opened.
func readable(path string) bool {
	if path == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	return err == nil && info.Mode().IsRegular()
}
