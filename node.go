package feedminer

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/jpalmerr/feedminer/internal/lifecycle"
	"github.com/jpalmerr/feedminer/internal/poller"
)

// Node defaults.
const (
	DefaultTimeout   = poller.DefaultTimeout
	DefaultExtractor = "@"
	DefaultIndicator = poller.DefaultIndicator
	DefaultPrefix    = poller.DefaultPrefix
)

// Node is a remote query API polled for records.
//
// Node is immutable after creation via [NewNode]. Getters return copies of
// mutable data.
type Node struct {
	name               string
	url                string
	queryString        string
	headers            map[string]string
	timeout            time.Duration
	verifyCert         bool
	extractor          string
	indicator          string
	prefix             string
	fields             []string
	username           string
	password           string
	clientCertRequired bool
	certFile           string
	keyFile            string
	sideConfig         string
	interval           time.Duration
}

// NewNode creates a [Node] with the given name, query URL and options.
//
// The name identifies the node in logs, metrics and the API, and names its
// side files (credentials side config, client certificate and key), so it
// must not contain path separators.
//
// Example:
//
//	n, err := feedminer.NewNode("edge-logins", "https://search.example.com/api/v1/query",
//	    feedminer.WithQueryString(`#type=login | groupBy(src_ip)`),
//	    feedminer.WithExtractor("events"),
//	    feedminer.WithIndicator("src_ip"),
//	)
func NewNode(name, rawURL string, opts ...NodeOption) (Node, error) {
	if err := validateName(name); err != nil {
		return Node{}, err
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Node{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Node{}, errors.New("URL must have an http:// or https:// scheme")
	}

	cfg := &nodeConfig{
		headers:    make(map[string]string),
		timeout:    DefaultTimeout,
		verifyCert: true,
		extractor:  DefaultExtractor,
		indicator:  DefaultIndicator,
		prefix:     DefaultPrefix,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Node{}, fmt.Errorf("node %q: %w", name, err)
		}
	}

	return Node{
		name:               name,
		url:                rawURL,
		queryString:        cfg.queryString,
		headers:            cfg.headers,
		timeout:            cfg.timeout,
		verifyCert:         cfg.verifyCert,
		extractor:          cfg.extractor,
		indicator:          cfg.indicator,
		prefix:             cfg.prefix,
		fields:             cfg.fields,
		username:           cfg.username,
		password:           cfg.password,
		clientCertRequired: cfg.clientCertRequired,
		certFile:           cfg.certFile,
		keyFile:            cfg.keyFile,
		sideConfig:         cfg.sideConfig,
		interval:           cfg.interval,
	}, nil
}

// validateName rejects names that cannot name side files.
func validateName(name string) error {
	if name == "" {
		return errors.New("node name cannot be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("node name %q cannot be used as a file name", name)
	}
	return nil
}

// Name returns the node name.
func (n Node) Name() string {
	return n.name
}

// URL returns the query URL.
func (n Node) URL() string {
	return n.url
}

// QueryString returns the request body sent verbatim with every poll.
func (n Node) QueryString() string {
	return n.queryString
}

// Headers returns a copy of the extra request headers.
func (n Node) Headers() map[string]string {
	return maps.Clone(n.headers)
}

// Timeout returns the request timeout. Defaults to 20 seconds.
func (n Node) Timeout() time.Duration {
	return n.timeout
}

// VerifyCert reports whether the server certificate is verified.
func (n Node) VerifyCert() bool {
	return n.verifyCert
}

// Extractor returns the JMESPath expression selecting items from a response.
func (n Node) Extractor() string {
	return n.extractor
}

// Indicator returns the item field used as record indicator.
func (n Node) Indicator() string {
	return n.indicator
}

// Prefix returns the attribute name prefix.
func (n Node) Prefix() string {
	return n.prefix
}

// Fields returns a copy of the attribute whitelist. nil means every field.
func (n Node) Fields() []string {
	return slices.Clone(n.fields)
}

// Username returns the configured username. The password is never exposed.
func (n Node) Username() string {
	return n.username
}

// ClientCertRequired reports whether the node authenticates with a client
// certificate.
func (n Node) ClientCertRequired() bool {
	return n.clientCertRequired
}

// Interval returns the node's polling interval, 0 for the global default.
func (n Node) Interval() time.Duration {
	return n.interval
}

// Files returns the node's side file locations resolved against configDir.
func (n Node) Files(configDir string) (sideConfig, certFile, keyFile string) {
	r := lifecycle.Layout{ConfigDir: configDir}.Resolve(n.name, n.lifecycleFiles())
	return r.SideConfig, r.CertFile, r.KeyFile
}

func (n Node) lifecycleFiles() lifecycle.Files {
	return lifecycle.Files{
		SideConfig:         n.sideConfig,
		CertFile:           n.certFile,
		KeyFile:            n.keyFile,
		ClientCertRequired: n.clientCertRequired,
	}
}

// toPollerInfo converts n to the poller representation.
func (n Node) toPollerInfo(layout lifecycle.Layout) poller.NodeInfo {
	return poller.NodeInfo{
		Name: n.name,
		Query: poller.QueryConfig{
			URL:                n.url,
			QueryString:        n.queryString,
			Headers:            maps.Clone(n.headers),
			Timeout:            n.timeout,
			VerifyCert:         n.verifyCert,
			ClientCertRequired: n.clientCertRequired,
		},
		Extractor: n.extractor,
		Indicator: n.indicator,
		Prefix:    n.prefix,
		Fields:    slices.Clone(n.fields),
		Username:  n.username,
		Password:  n.password,
		Files:     layout.Resolve(n.name, n.lifecycleFiles()),
		Interval:  n.interval,
	}
}
