// Package state keeps the small pieces of local client state that live next
// to the job mirror: the login session and the uploaded audio library.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNoSession is returned when nobody is logged in.
var ErrNoSession = errors.New("not logged in")

// Session is the persisted login.
type Session struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType,omitempty"`
	Email     string    `json:"email,omitempty"`
	ServerURL string    `json:"serverUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionStore reads and writes the session file.
type SessionStore struct {
	path string
}

// NewSessionStore creates a store backed by path.
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Load returns the saved session or ErrNoSession.
func (s *SessionStore) Load() (Session, error) {
	var sess Session
	if err := readJSON(s.path, &sess); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	if sess.Token == "" {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// Save persists sess. The file is only readable by the owner.
func (s *SessionStore) Save(sess Session) error {
	if sess.Token == "" {
		return errors.New("save session: empty token")
	}
	if err := writeJSON(s.path, sess, 0o600); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the session. Clearing an absent session is not an error.
func (s *SessionStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
