package lifecycle

import "path/filepath"

const (
	sideConfigSuffix = "_side_config.yml"
	certExt          = ".crt"
	keyExt           = ".pem"
)

// Layout derives conventional per-node file locations under ConfigDir.
// An empty ConfigDir means the current working directory.
type Layout struct {
	ConfigDir string
}

// SideConfigPath returns {ConfigDir}/{name}_side_config.yml.
func (l Layout) SideConfigPath(name string) string {
	return filepath.Join(l.dir(), name+sideConfigSuffix)
}

// CertPath returns {ConfigDir}/{name}.crt.
func (l Layout) CertPath(name string) string {
	return filepath.Join(l.dir(), name+certExt)
}

// KeyPath returns {ConfigDir}/{name}.pem.
func (l Layout) KeyPath(name string) string {
	return filepath.Join(l.dir(), name+keyExt)
}

func (l Layout) dir() string {
	if l.ConfigDir == "" {
		return "."
	}
	return l.ConfigDir
}

// Files holds the explicitly configured file locations of a node. Empty
// fields are derived from the node name by [Layout.Resolve].
type Files struct {
	SideConfig         string
	CertFile           string
	KeyFile            string
	ClientCertRequired bool
}

// Resolved holds the effective file locations of a node. CertFile and
// KeyFile are empty when the node uses no client certificate material.
type Resolved struct {
	SideConfig string
	CertFile   string
	KeyFile    string
}

// Resolve returns the effective locations for node name. The side config
// always has a location. The certificate and key fall back to derived paths
// only when a client certificate is required.
func (l Layout) Resolve(name string, f Files) Resolved {
	r := Resolved{
		SideConfig: f.SideConfig,
		CertFile:   f.CertFile,
		KeyFile:    f.KeyFile,
	}
	if r.SideConfig == "" {
		r.SideConfig = l.SideConfigPath(name)
	}
	if f.ClientCertRequired {
		if r.CertFile == "" {
			r.CertFile = l.CertPath(name)
		}
		if r.KeyFile == "" {
			r.KeyFile = l.KeyPath(name)
		}
	}
	return r
}
