package portal

import (
	"encoding/json"
	"os"
)

// SessionCookie is one persisted session cookie
type SessionCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SessionStore persists the portal session cookies as a JSON file so a
// restart can reuse a still-valid session instead of logging in again.
type SessionStore struct {
	path string
}

// NewSessionStore creates a store backed by the given file path
func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// Load reads the persisted cookies. A missing or unreadable file returns
// an empty session, not an error worth acting on.
func (s *SessionStore) Load() ([]SessionCookie, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var cookies []SessionCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, err
	}
	return cookies, nil
}

// Save writes the cookies to the file
func (s *SessionStore) Save(cookies []SessionCookie) error {
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}
