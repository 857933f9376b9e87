// Package config provides YAML configuration parsing for feedminer.
//
// This package enables running feedminer as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//	poll_interval: 5m
//
//	nodes:
//	  - name: edge-logins
//	    url: https://search.example.com/api/v1/repositories/edge/query
//	    query_string: '{"queryString": "#type=login | groupBy(src_ip)", "start": "1h"}'
//	    polling_timeout: 20
//	    extractor: events
//	    indicator: src_ip
//	    prefix: logins
//	    fields: [country, asn]
//	    username: ${EDGE_USER}
//	    password: ${EDGE_PASSWORD:-}
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// minPollInterval is the minimum allowed polling interval.
	minPollInterval = 1 * time.Second

	defaultPort           = 8080
	defaultPollInterval   = 60 * time.Second
	defaultMaxConcurrency = 10
)

// Config is the root configuration structure for feedminer.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// PollInterval is the time between polls of nodes without their own
	// interval. Accepts duration strings like "30s" or a number of seconds.
	// Defaults to 60s.
	PollInterval Duration `yaml:"poll_interval"`

	// MaxConcurrency bounds the number of queries in flight. Defaults to 10.
	MaxConcurrency int `yaml:"max_concurrency" validate:"min=1"`

	// ConfigDir holds the nodes' side files. Empty means the directory of
	// the configuration file.
	ConfigDir string `yaml:"config_dir"`

	// Metrics enables the Prometheus endpoint at /metrics.
	Metrics bool `yaml:"metrics"`

	// ControlToken enables the control endpoints of the API, which then
	// require it as a bearer token. Supports ${VAR} expansion.
	ControlToken string `yaml:"control_token"`

	// Nodes defines the queries to poll.
	Nodes []NodeConfig `yaml:"nodes" validate:"required,min=1,unique=Name,dive"`
}

// NodeConfig defines a single node.
type NodeConfig struct {
	// Name identifies the node and names its side files.
	Name string `yaml:"name" validate:"required,excludesall=/"`

	// URL is the query API endpoint.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url" validate:"required,http_url"`

	// QueryString is the request body sent verbatim. Supports environment
	// variable substitution.
	QueryString string `yaml:"query_string"`

	// Headers are extra request headers. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers"`

	// PollingTimeout is the request timeout, in seconds or as a duration
	// string. Defaults to 20s.
	PollingTimeout Duration `yaml:"polling_timeout"`

	// VerifyCert controls server certificate verification. Defaults to true.
	VerifyCert *bool `yaml:"verify_cert"`

	// Extractor is the JMESPath expression selecting items. Defaults to "@".
	Extractor string `yaml:"extractor"`

	// Indicator is the item field holding the indicator. Defaults to
	// "indicator".
	Indicator string `yaml:"indicator"`

	// Prefix is the attribute name prefix. Defaults to "json".
	Prefix *string `yaml:"prefix"`

	// Fields is the attribute whitelist. Absent means every field; an empty
	// list means none.
	Fields []string `yaml:"fields"`

	// Username and Password are the basic auth credentials. A complete side
	// config overrides them. Both support environment variable substitution.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// ClientCertRequired enables client certificate authentication.
	ClientCertRequired bool `yaml:"client_cert_required"`

	// CertFile and KeyFile override the derived {config_dir}/{name}.crt and
	// {config_dir}/{name}.pem, each on its own.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// SideConfig overrides the derived {config_dir}/{name}_side_config.yml.
	SideConfig string `yaml:"side_config"`

	// Interval is the custom polling interval for this node.
	// If not specified, uses the global poll_interval.
	// Must be between 1s and 24h.
	Interval Duration `yaml:"interval"`
}

// Duration wraps time.Duration for YAML unmarshalling.
//
// It accepts duration strings ("20s", "5m") and plain numbers, which are
// taken as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ParseDuration parses a duration string or a number of seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return parsed, nil
}

// ValidationError is a single invalid configuration value.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors holds every problem found in a configuration.
type ValidationErrors struct {
	Errors []ValidationError
}

func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, e := range ve.Errors {
		msgs = append(msgs, e.Error())
	}
	return fmt.Sprintf("validation failed with %d error(s):\n  - %s", len(ve.Errors), strings.Join(msgs, "\n  - "))
}

// Add records a problem at path.
func (ve *ValidationErrors) Add(path, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Path: path, Message: message})
}

// HasErrors reports whether any problem was recorded.
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		// submatches[2] is ":-..." (non-empty if default syntax was used)
		// submatches[3] is the actual default value (may be empty for ${VAR:-})
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Unknown keys are rejected. Environment variables are expanded in URL,
// query string, header and credential values. Defaults are applied for Port
// (8080), PollInterval (60s) and MaxConcurrency (10).
func Parse(data []byte) (*Config, error) {
	var cfg Config

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(defaultPollInterval)
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expand substitutes environment variables in node values.
func (c *Config) expand() error {
	token, err := expandEnvVars(c.ControlToken)
	if err != nil {
		return fmt.Errorf("control_token: %w", err)
	}
	c.ControlToken = token

	for i := range c.Nodes {
		n := &c.Nodes[i]
		where := fmt.Sprintf("nodes[%d] (%s)", i, n.Name)

		for _, field := range []struct {
			key string
			val *string
		}{
			{"url", &n.URL},
			{"query_string", &n.QueryString},
			{"username", &n.Username},
			{"password", &n.Password},
		} {
			expanded, err := expandEnvVars(*field.val)
			if err != nil {
				return fmt.Errorf("%s: %s: %w", where, field.key, err)
			}
			*field.val = expanded
		}

		for k, v := range n.Headers {
			expanded, err := expandEnvVars(v)
			if err != nil {
				return fmt.Errorf("%s: headers[%s]: %w", where, k, err)
			}
			n.Headers[k] = expanded
		}
	}
	return nil
}

// newValidator returns a validator reporting fields by their YAML names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the configuration and reports every problem found as
// *ValidationErrors.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if err := newValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs.Add(fieldPath(fe), describe(fe))
		}
	}

	if c.PollInterval.Duration() < minPollInterval {
		errs.Add("poll_interval", fmt.Sprintf("must be at least %s, got %s", minPollInterval, c.PollInterval.Duration()))
	}

	for i, n := range c.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if n.Name == "." || n.Name == ".." {
			errs.Add(path+".name", "cannot be used as a file name")
		}
		if n.PollingTimeout < 0 {
			errs.Add(path+".polling_timeout", fmt.Sprintf("cannot be negative, got %s", n.PollingTimeout.Duration()))
		}
		if n.Interval != 0 {
			if n.Interval.Duration() < time.Second {
				errs.Add(path+".interval", fmt.Sprintf("must be at least 1s, got %s", n.Interval.Duration()))
			}
			if n.Interval.Duration() > 24*time.Hour {
				errs.Add(path+".interval", fmt.Sprintf("must not exceed 24h, got %s", n.Interval.Duration()))
			}
		}
		if n.Extractor != "" && strings.TrimSpace(n.Extractor) == "" {
			errs.Add(path+".extractor", "cannot be blank")
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// fieldPath turns a validator namespace such as "Config.nodes[0].url" into
// "nodes[0].url".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "http_url":
		return "must be an http:// or https:// URL"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "at least " + fe.Param() + " entry is required"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "unique":
		return "node names must be unique"
	case "excludesall":
		return "must not contain " + strconv.Quote(fe.Param())
	}
	return "failed " + fe.Tag() + " validation"
}

// Node returns the configuration of node name.
func (c *Config) Node(name string) (NodeConfig, bool) {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeConfig{}, false
}
