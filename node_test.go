package feedminer

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNode_Defaults(t *testing.T) {
	n, err := NewNode("edge", "https://search.example.com/query")
	require.NoError(t, err)

	assert.Equal(t, "edge", n.Name())
	assert.Equal(t, "https://search.example.com/query", n.URL())
	assert.Equal(t, 20*time.Second, n.Timeout())
	assert.True(t, n.VerifyCert())
	assert.Equal(t, "@", n.Extractor())
	assert.Equal(t, "indicator", n.Indicator())
	assert.Equal(t, "json", n.Prefix())
	assert.Nil(t, n.Fields())
	assert.Empty(t, n.QueryString())
	assert.Empty(t, n.Headers())
	assert.False(t, n.ClientCertRequired())
	assert.Zero(t, n.Interval())
}

func TestNewNode_Options(t *testing.T) {
	n, err := NewNode("edge", "https://search.example.com/query",
		WithQueryString(`#type=login`),
		WithHeaders("X-Tenant", "blue"),
		WithTimeout(5*time.Second),
		WithVerifyCert(false),
		WithExtractor("events"),
		WithIndicator("src_ip"),
		WithPrefix("p"),
		WithFields("country", "asn"),
		WithCredentials("analyst", "s3cret"),
		WithInterval(time.Minute),
	)
	require.NoError(t, err)

	assert.Equal(t, `#type=login`, n.QueryString())
	assert.Equal(t, map[string]string{"X-Tenant": "blue"}, n.Headers())
	assert.Equal(t, 5*time.Second, n.Timeout())
	assert.False(t, n.VerifyCert())
	assert.Equal(t, "events", n.Extractor())
	assert.Equal(t, "src_ip", n.Indicator())
	assert.Equal(t, "p", n.Prefix())
	assert.Equal(t, []string{"country", "asn"}, n.Fields())
	assert.Equal(t, "analyst", n.Username())
	assert.Equal(t, time.Minute, n.Interval())
}

func TestNewNode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		node    string
		url     string
		opts    []NodeOption
		wantErr string
	}{
		{"empty name", "", "https://a.example.com", nil, "name cannot be empty"},
		{"name with separator", "a/b", "https://a.example.com", nil, "file name"},
		{"dot dot name", "..", "https://a.example.com", nil, "file name"},
		{"no scheme", "a", "a.example.com/query", nil, "scheme"},
		{"ftp scheme", "a", "ftp://a.example.com", nil, "scheme"},
		{"odd headers", "a", "https://a.example.com", []NodeOption{WithHeaders("X")}, "even number"},
		{"zero timeout", "a", "https://a.example.com", []NodeOption{WithTimeout(0)}, "timeout must be positive"},
		{"empty extractor", "a", "https://a.example.com", []NodeOption{WithExtractor("")}, "extractor cannot be empty"},
		{"empty indicator", "a", "https://a.example.com", []NodeOption{WithIndicator("")}, "indicator cannot be empty"},
		{"negative interval", "a", "https://a.example.com", []NodeOption{WithInterval(-time.Second)}, "interval must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNode(tt.node, tt.url, tt.opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewNode_MalformedExtractorIsAccepted(t *testing.T) {
	// compile failures surface on every poll instead
	n, err := NewNode("edge", "https://a.example.com", WithExtractor("events[?"))
	require.NoError(t, err)
	assert.Equal(t, "events[?", n.Extractor())
}

func TestNewNode_EmptyFieldsProjectNothing(t *testing.T) {
	n, err := NewNode("edge", "https://a.example.com", WithFields())
	require.NoError(t, err)
	assert.NotNil(t, n.Fields())
	assert.Empty(t, n.Fields())
}

func TestNode_GettersReturnCopies(t *testing.T) {
	fields := []string{"country"}
	n, err := NewNode("edge", "https://a.example.com",
		WithHeaders("X-Tenant", "blue"),
		WithFields(fields...),
	)
	require.NoError(t, err)

	fields[0] = "mutated"
	n.Headers()["X-Tenant"] = "red"
	n.Fields()[0] = "mutated"

	assert.Equal(t, "blue", n.Headers()["X-Tenant"])
	assert.Equal(t, []string{"country"}, n.Fields())
}

func TestNode_Files(t *testing.T) {
	dir := t.TempDir()

	plain, err := NewNode("edge", "https://a.example.com")
	require.NoError(t, err)
	side, cert, key := plain.Files(dir)
	assert.Equal(t, filepath.Join(dir, "edge_side_config.yml"), side)
	assert.Empty(t, cert)
	assert.Empty(t, key)

	mtls, err := NewNode("edge", "https://a.example.com", WithClientCertRequired(true))
	require.NoError(t, err)
	_, cert, key = mtls.Files(dir)
	assert.Equal(t, filepath.Join(dir, "edge.crt"), cert)
	assert.Equal(t, filepath.Join(dir, "edge.pem"), key)

	explicit, err := NewNode("edge", "https://a.example.com",
		WithClientCert("/etc/feedminer/c.crt", "/etc/feedminer/c.key"),
		WithSideConfig("/etc/feedminer/side.yml"),
	)
	require.NoError(t, err)
	side, cert, key = explicit.Files(dir)
	assert.Equal(t, "/etc/feedminer/side.yml", side)
	assert.Equal(t, "/etc/feedminer/c.crt", cert)
	assert.Equal(t, "/etc/feedminer/c.key", key)
}
