// Package credentials holds the username/password pair a node authenticates
// with, and the side-config file that can override it without touching the
// node's main configuration.
//
// Credentials are immutable snapshots. A [Store] swaps whole snapshots
// atomically, so a poll in flight always sees a complete pair.
package credentials

import (
	"fmt"
	"log/slog"

	"github.com/awnumar/memguard"
)

const redacted = "[REDACTED]"

// Credentials is an immutable username/password snapshot. The password is
// kept encrypted in memory and only decrypted when a request is signed.
//
// An empty string marks a field as absent. The nil *Credentials has neither.
type Credentials struct {
	username string
	password *memguard.Enclave
}

// New creates a snapshot from username and password.
func New(username, password string) *Credentials {
	c := &Credentials{username: username}
	if password != "" {
		// NewEnclave wipes its input, so hand it a private copy
		c.password = memguard.NewEnclave([]byte(password))
	}
	return c
}

// Username returns the username, or "" if absent.
func (c *Credentials) Username() string {
	if c == nil {
		return ""
	}
	return c.username
}

// HasPassword reports whether a password is present.
func (c *Credentials) HasPassword() bool {
	return c != nil && c.password != nil
}

// Password decrypts and returns the password, or "" if absent.
func (c *Credentials) Password() (string, error) {
	if !c.HasPassword() {
		return "", nil
	}
	buf, err := c.password.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open password enclave: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// Complete reports whether both username and password are present.
func (c *Credentials) Complete() bool {
	return c.Username() != "" && c.HasPassword()
}

// String implements fmt.Stringer without revealing the password.
func (c *Credentials) String() string {
	if c == nil {
		return "Credentials{}"
	}
	pw := ""
	if c.HasPassword() {
		pw = redacted
	}
	return fmt.Sprintf("Credentials{username: %q, password: %q}", c.username, pw)
}

// GoString implements fmt.GoStringer so %#v is redacted too.
func (c *Credentials) GoString() string {
	return c.String()
}

// LogValue implements slog.LogValuer so structured logs stay redacted.
func (c *Credentials) LogValue() slog.Value {
	return slog.StringValue(c.String())
}
