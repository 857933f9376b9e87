package lifecycle

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
)

// Reloader re-reads a credentials source. It reports whether the active
// credentials changed. *credentials.Store implements it.
type Reloader interface {
	Reload() bool
}

// Manager handles the reload ("hup") and teardown ("gc") signals of a node.
type Manager struct {
	name     string
	resolved Resolved
	creds    Reloader
	logger   *slog.Logger
}

// NewManager creates a Manager for node name whose effective file locations
// are resolved. A nil logger uses slog.Default().
func NewManager(name string, resolved Resolved, creds Reloader, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		name:     name,
		resolved: resolved,
		creds:    creds,
		logger:   logger.With("node", name),
	}
}

// Files returns the node's effective file locations.
func (m *Manager) Files() Resolved {
	return m.resolved
}

// OnReload re-reads the credentials side config. The source hint names what
// triggered the reload and is only logged. OnReload is idempotent and reports
// whether the credentials were replaced.
func (m *Manager) OnReload(source string) bool {
	m.logger.Info("hup received, reloading side config", "source", source)
	if m.creds == nil {
		return false
	}
	return m.creds.Reload()
}

// OnTeardown removes the node's side files. See [Teardown].
func (m *Manager) OnTeardown() []string {
	return removeAll(m.logger, m.resolved)
}

// Teardown removes the side config and any client certificate material of
// node name. Locations are the configured ones or, where unset, the ones
// [Layout] derives. It returns the paths that were actually removed.
//
// Teardown never fails: missing files are skipped and other removal errors
// are logged.
func Teardown(logger *slog.Logger, name string, layout Layout, files Files) []string {
	if logger == nil {
		logger = slog.Default()
	}
	return removeAll(logger.With("node", name), layout.Resolve(name, files))
}

func removeAll(logger *slog.Logger, r Resolved) []string {
	var removed []string
	for _, path := range []string{r.SideConfig, r.CertFile, r.KeyFile} {
		if path == "" {
			continue
		}
		if removeFile(logger, path) {
			removed = append(removed, path)
		}
	}
	return removed
}

func removeFile(logger *slog.Logger, path string) bool {
	err := os.Remove(path)
	switch {
	case err == nil:
		logger.Info("removed node file", "path", path)
		return true
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("node file not present", "path", path)
	default:
		logger.Warn("failed to remove node file", "path", path, "error", err.Error())
	}
	return false
}
