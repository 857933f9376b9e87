package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_MinimalConfig(t *testing.T) {
	yaml := `
nodes:
  - name: edge
    url: https://search.example.com/query
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	// check defaults applied
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 60*time.Second, cfg.PollInterval.Duration())
	assert.Equal(t, 10, cfg.MaxConcurrency)
	assert.Empty(t, cfg.ControlToken)
	require.Len(t, cfg.Nodes, 1)

	n := cfg.Nodes[0]
	assert.Nil(t, n.Fields, "absent whitelist")
	assert.Nil(t, n.VerifyCert)
	assert.Nil(t, n.Prefix)
}

func TestParse_FullNodeConfig(t *testing.T) {
	yaml := `
port: 9090
poll_interval: 5m
max_concurrency: 4
config_dir: /var/lib/feedminer
metrics: true
control_token: hunter2

nodes:
  - name: edge
    url: https://search.example.com/query
    query_string: '{"queryString": "#type=login"}'
    headers:
      X-Tenant: blue
    polling_timeout: 30
    verify_cert: false
    extractor: events
    indicator: src_ip
    prefix: logins
    fields: [country, asn]
    username: analyst
    password: s3cret
    client_cert_required: true
    cert_file: /etc/feedminer/edge.crt
    key_file: /etc/feedminer/edge.key
    side_config: /etc/feedminer/edge.yml
    interval: 10m
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval.Duration())
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, "/var/lib/feedminer", cfg.ConfigDir)
	assert.True(t, cfg.Metrics)
	assert.Equal(t, "hunter2", cfg.ControlToken)

	n := cfg.Nodes[0]
	assert.Equal(t, `{"queryString": "#type=login"}`, n.QueryString)
	assert.Equal(t, map[string]string{"X-Tenant": "blue"}, n.Headers)
	assert.Equal(t, 30*time.Second, n.PollingTimeout.Duration())
	require.NotNil(t, n.VerifyCert)
	assert.False(t, *n.VerifyCert)
	assert.Equal(t, "events", n.Extractor)
	assert.Equal(t, "src_ip", n.Indicator)
	require.NotNil(t, n.Prefix)
	assert.Equal(t, "logins", *n.Prefix)
	assert.Equal(t, []string{"country", "asn"}, n.Fields)
	assert.Equal(t, "analyst", n.Username)
	assert.Equal(t, "s3cret", n.Password)
	assert.True(t, n.ClientCertRequired)
	assert.Equal(t, "/etc/feedminer/edge.crt", n.CertFile)
	assert.Equal(t, "/etc/feedminer/edge.key", n.KeyFile)
	assert.Equal(t, "/etc/feedminer/edge.yml", n.SideConfig)
	assert.Equal(t, 10*time.Minute, n.Interval.Duration())
}

func TestParse_EmptyFieldsDifferFromAbsent(t *testing.T) {
	yaml := `
nodes:
  - name: edge
    url: https://search.example.com/query
    fields: []
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	assert.NotNil(t, cfg.Nodes[0].Fields)
	assert.Empty(t, cfg.Nodes[0].Fields)
}

func TestParse_CertOrKeyAlone(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"cert only", `
nodes:
  - name: edge
    url: https://a.example.com
    client_cert_required: true
    cert_file: /etc/edge.crt
`},
		{"key only", `
nodes:
  - name: edge
    url: https://a.example.com
    client_cert_required: true
    key_file: /etc/edge.key
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.NoError(t, err)
		})
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("FM_TEST_HOST", "search.internal")
	t.Setenv("FM_TEST_USER", "svc")
	t.Setenv("FM_TEST_TOKEN", "abc")

	yaml := `
control_token: ${FM_TEST_TOKEN}
nodes:
  - name: edge
    url: https://${FM_TEST_HOST}/query
    query_string: '#user=${FM_TEST_USER}'
    username: ${FM_TEST_USER}
    password: ${FM_TEST_MISSING:-fallback}
    headers:
      X-Token: ${FM_TEST_TOKEN}
`
	cfg, err := Parse([]byte(yaml))
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.ControlToken)
	n := cfg.Nodes[0]
	assert.Equal(t, "https://search.internal/query", n.URL)
	assert.Equal(t, "#user=svc", n.QueryString)
	assert.Equal(t, "svc", n.Username)
	assert.Equal(t, "fallback", n.Password)
	assert.Equal(t, "abc", n.Headers["X-Token"])
}

func TestParse_EnvVarMissing(t *testing.T) {
	yaml := `
nodes:
  - name: edge
    url: https://${FM_TEST_DEFINITELY_UNSET}/query
`
	_, err := Parse([]byte(yaml))
	require.Error(t, err, "unset variable without default")
	assert.Contains(t, err.Error(), "FM_TEST_DEFINITELY_UNSET")
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no nodes",
			yaml:    "port: 8080\n",
			wantErr: "nodes: is required",
		},
		{
			name:    "empty document",
			yaml:    "",
			wantErr: "nodes: is required",
		},
		{
			name: "missing name",
			yaml: `
nodes:
  - url: https://a.example.com
`,
			wantErr: "nodes[0].name: is required",
		},
		{
			name: "missing url",
			yaml: `
nodes:
  - name: edge
`,
			wantErr: "nodes[0].url: is required",
		},
		{
			name: "non http url",
			yaml: `
nodes:
  - name: edge
    url: ftp://a.example.com
`,
			wantErr: "nodes[0].url: must be an http:// or https:// URL",
		},
		{
			name: "name with slash",
			yaml: `
nodes:
  - name: a/b
    url: https://a.example.com
`,
			wantErr: "nodes[0].name: must not contain",
		},
		{
			name: "duplicate names",
			yaml: `
nodes:
  - name: edge
    url: https://a.example.com
  - name: edge
    url: https://b.example.com
`,
			wantErr: "node names must be unique",
		},
		{
			name: "port out of range",
			yaml: `
port: 70000
nodes:
  - name: edge
    url: https://a.example.com
`,
			wantErr: "port: must be at most 65535",
		},
		{
			name: "poll interval too short",
			yaml: `
poll_interval: 100ms
nodes:
  - name: edge
    url: https://a.example.com
`,
			wantErr: "poll_interval: must be at least 1s",
		},
		{
			name: "interval too short",
			yaml: `
nodes:
  - name: edge
    url: https://a.example.com
    interval: 500ms
`,
			wantErr: "nodes[0].interval: must be at least 1s",
		},
		{
			name: "negative timeout",
			yaml: `
nodes:
  - name: edge
    url: https://a.example.com
    polling_timeout: -5
`,
			wantErr: "nodes[0].polling_timeout: cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_ReportsEveryProblem(t *testing.T) {
	yaml := `
nodes:
  - name: edge
  - url: https://a.example.com
`
	_, err := Parse([]byte(yaml))

	var verrs *ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs.Errors, 2, err.Error())
}

func TestParse_UnknownKey(t *testing.T) {
	yaml := `
nodes:
  - name: edge
    url: https://a.example.com
    polling_timeot: 5
`
	_, err := Parse([]byte(yaml))
	assert.Error(t, err)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("nodes: ["))
	assert.Error(t, err)
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
		err   bool
	}{
		{"20", 20 * time.Second, false},
		{"1.5", 1500 * time.Millisecond, false},
		{"20s", 20 * time.Second, false},
		{"5m", 5 * time.Minute, false},
		{`"45"`, 45 * time.Second, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			yaml := "nodes:\n  - name: edge\n    url: https://a.example.com\n    polling_timeout: " + tt.input + "\n"
			cfg, err := Parse([]byte(yaml))
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Nodes[0].PollingTimeout.Duration())
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedminer.yml")
	content := "nodes:\n  - name: edge\n    url: https://a.example.com\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "edge", cfg.Nodes[0].Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FM_EXPAND_SET", "value")
	t.Setenv("FM_EXPAND_EMPTY", "")

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"plain", "plain", false},
		{"${FM_EXPAND_SET}", "value", false},
		{"a-${FM_EXPAND_SET}-b", "a-value-b", false},
		{"${FM_EXPAND_EMPTY}", "", false},
		{"${FM_EXPAND_UNSET:-default}", "default", false},
		{"${FM_EXPAND_UNSET:-}", "", false},
		{"${FM_EXPAND_UNSET}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
