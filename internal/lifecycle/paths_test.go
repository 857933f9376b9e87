package lifecycle

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayout_DerivedPaths(t *testing.T) {
	l := Layout{ConfigDir: "/etc/feedminer"}

	assert.Equal(t, "/etc/feedminer/edge-threats_side_config.yml", l.SideConfigPath("edge-threats"))
	assert.Equal(t, "/etc/feedminer/edge-threats.crt", l.CertPath("edge-threats"))
	assert.Equal(t, "/etc/feedminer/edge-threats.pem", l.KeyPath("edge-threats"))
}

func TestLayout_EmptyConfigDir(t *testing.T) {
	var l Layout

	assert.Equal(t, "node_side_config.yml", l.SideConfigPath("node"))
	assert.Equal(t, "node.crt", l.CertPath("node"))
	assert.Equal(t, filepath.Join(".", "node.pem"), l.KeyPath("node"))
}

func TestLayout_Resolve(t *testing.T) {
	l := Layout{ConfigDir: "/cfg"}

	tests := []struct {
		name  string
		files Files
		want  Resolved
	}{
		{
			name:  "nothing configured, no client cert",
			files: Files{},
			want:  Resolved{SideConfig: "/cfg/n_side_config.yml"},
		},
		{
			name:  "client cert required derives both paths",
			files: Files{ClientCertRequired: true},
			want: Resolved{
				SideConfig: "/cfg/n_side_config.yml",
				CertFile:   "/cfg/n.crt",
				KeyFile:    "/cfg/n.pem",
			},
		},
		{
			name: "explicit paths win",
			files: Files{
				SideConfig:         "/secrets/side.yml",
				CertFile:           "/secrets/client.crt",
				KeyFile:            "/secrets/client.key",
				ClientCertRequired: true,
			},
			want: Resolved{
				SideConfig: "/secrets/side.yml",
				CertFile:   "/secrets/client.crt",
				KeyFile:    "/secrets/client.key",
			},
		},
		{
			name:  "explicit cert without requirement is kept",
			files: Files{CertFile: "/secrets/client.crt"},
			want: Resolved{
				SideConfig: "/cfg/n_side_config.yml",
				CertFile:   "/secrets/client.crt",
			},
		},
		{
			name:  "one explicit path, other derived",
			files: Files{KeyFile: "/secrets/client.key", ClientCertRequired: true},
			want: Resolved{
				SideConfig: "/cfg/n_side_config.yml",
				CertFile:   "/cfg/n.crt",
				KeyFile:    "/secrets/client.key",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Resolve("n", tt.files))
		})
	}
}
