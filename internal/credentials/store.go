package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ErrNoSideConfig is returned by [Load] when the side-config file does not
// exist. A missing side config is normal and means "keep what you have".
var ErrNoSideConfig = errors.New("side config not found")

// sideConfig is the on-disk side-config document.
type sideConfig struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// Load reads the side-config file at path. Either field may be absent from the
// returned snapshot; [Store.Reload] decides whether it is usable.
func Load(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoSideConfig, path)
		}
		return nil, fmt.Errorf("failed to read side config: %w", err)
	}

	var sc sideConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse side config %s: %w", path, err)
	}

	return New(sc.Username, sc.Password), nil
}

// Save writes a side-config file holding username and password. The file is
// written with owner-only permissions and replaced atomically.
func Save(path, username, password string) error {
	if path == "" {
		return errors.New("side config path is empty")
	}

	data, err := yaml.Marshal(sideConfig{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("failed to encode side config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create side config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".side-config-*")
	if err != nil {
		return fmt.Errorf("failed to create side config: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write side config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set side config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write side config: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace side config: %w", err)
	}
	return nil
}

// Store holds the credentials a node currently authenticates with.
//
// Readers call [Store.Current] and always receive a complete snapshot; the
// snapshot is replaced as a whole by [Store.Reload]. Store is safe for
// concurrent use.
type Store struct {
	path    string
	current atomic.Pointer[Credentials]
	logger  *slog.Logger
}

// NewStore creates a Store seeded with initial (typically the username and
// password from the node's main configuration) and immediately applies the
// side config at path, which takes precedence when it is complete.
//
// An empty path disables the side channel. A nil logger uses slog.Default().
func NewStore(initial *Credentials, path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if initial == nil {
		initial = &Credentials{}
	}

	s := &Store{path: path, logger: logger}
	s.current.Store(initial)
	s.Reload()
	return s
}

// Path returns the side-config path the store reloads from.
func (s *Store) Path() string {
	return s.path
}

// Current returns the active credentials snapshot. Never nil.
func (s *Store) Current() *Credentials {
	return s.current.Load()
}

// Reload re-reads the side config and swaps in its credentials only if both
// username and password are present. In every other case, including a
// missing or malformed file, the current credentials are kept.
//
// Reload never fails; it reports whether the credentials were replaced.
func (s *Store) Reload() bool {
	if s.path == "" {
		return false
	}

	creds, err := Load(s.path)
	switch {
	case errors.Is(err, ErrNoSideConfig):
		s.logger.Debug("no side config present, keeping current credentials", "path", s.path)
		return false
	case err != nil:
		s.logger.Error("error loading side config, keeping current credentials",
			"path", s.path,
			"error", err.Error(),
		)
		return false
	case !creds.Complete():
		s.logger.Error("side config lacks username or password, keeping current credentials",
			"path", s.path,
		)
		return false
	}

	s.current.Store(creds)
	s.logger.Info("loaded credentials from side config",
		"path", s.path,
		"username", creds.Username(),
	)
	return true
}
