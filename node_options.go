package feedminer

import (
	"errors"
	"slices"
	"time"
)

// nodeConfig holds mutable state during node construction.
type nodeConfig struct {
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

// NodeOption is a function that configures a [Node] during construction.
// Options return an error if validation fails.
type NodeOption func(*nodeConfig) error

// WithQueryString sets the request body sent verbatim with every poll.
func WithQueryString(q string) NodeOption {
	return func(cfg *nodeConfig) error {
		cfg.queryString = q
		return nil
	}
}

// WithHeaders adds extra request headers as key-value pairs.
//
// Returns an error if an odd number of arguments is provided.
func WithHeaders(keyValues ...string) NodeOption {
	return func(cfg *nodeConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the request timeout. Defaults to 20 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) NodeOption {
	return func(cfg *nodeConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithVerifyCert controls server certificate verification. Defaults to true.
func WithVerifyCert(verify bool) NodeOption {
	return func(cfg *nodeConfig) error {
		cfg.verifyCert = verify
		return nil
	}
}

// WithExtractor sets the JMESPath expression selecting the items of a
// response. Defaults to "@", which passes a top-level array through.
//
// The expression is compiled when the node is polled; a malformed expression
// fails every poll of the node instead of failing construction.
func WithExtractor(expr string) NodeOption {
	return func(cfg *nodeConfig) error {
		if expr == "" {
			return errors.New("extractor cannot be empty")
		}
		cfg.extractor = expr
		return nil
	}
}

// WithIndicator sets the item field used as record indicator. Defaults to
// "indicator".
func WithIndicator(field string) NodeOption {
	return func(cfg *nodeConfig) error {
		if field == "" {
			return errors.New("indicator cannot be empty")
		}
		cfg.indicator = field
		return nil
	}
}

// WithPrefix sets the attribute name prefix. Defaults to "json".
func WithPrefix(prefix string) NodeOption {
	return func(cfg *nodeConfig) error {
		cfg.prefix = prefix
		return nil
	}
}

// WithFields restricts the projected attributes to the given fields. Calling
// it with no fields projects no attributes at all.
func WithFields(fields ...string) NodeOption {
	return func(cfg *nodeConfig) error {
		if fields == nil {
			fields = []string{}
		}
		cfg.fields = slices.Clone(fields)
		return nil
	}
}

// WithCredentials sets the basic auth credentials. A complete credentials
// side config overrides them.
func WithCredentials(username, password string) NodeOption {
	return func(cfg *nodeConfig) error {
		cfg.username = username
		cfg.password = password
		return nil
	}
}

// WithClientCertRequired makes the node authenticate with a client
// certificate. Unless set explicitly, the certificate and key are read from
// {config_dir}/{name}.crt and {config_dir}/{name}.pem.
func WithClientCertRequired(required bool) NodeOption {
	return func(cfg *nodeConfig) error {
		cfg.clientCertRequired = required
		return nil
	}
}

// WithClientCert sets explicit client certificate and key files. An empty
// path keeps its derived location.
func WithClientCert(certFile, keyFile string) NodeOption {
	return func(cfg *nodeConfig) error {
		cfg.certFile = certFile
		cfg.keyFile = keyFile
		return nil
	}
}

// WithSideConfig sets an explicit credentials side config location. Defaults
// to {config_dir}/{name}_side_config.yml.
func WithSideConfig(path string) NodeOption {
	return func(cfg *nodeConfig) error {
		cfg.sideConfig = path
		return nil
	}
}

// WithInterval sets a custom polling interval for this node, overriding the
// global interval set by [WithPollInterval].
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) NodeOption {
	return func(cfg *nodeConfig) error {
		if d <= 0 {
			return errors.New("interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}
