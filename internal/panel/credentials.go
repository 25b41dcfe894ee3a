package panel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Credential is a signed-in identity and, once linked, its Trello key and token.
type Credential struct {
	Identity string
	APIKey   string
	Token    string
}

func (c Credential) TrelloLinked() bool {
	return c.APIKey != "" && c.Token != ""
}

// LocalState is what survives between runs: the signed-in identity and the session cookie that
// lets the next run reuse the backend session without signing in again.
type LocalState struct {
	IsAuthenticated bool   `mapstructure:"is_authenticated"`
	UserEmail       string `mapstructure:"user_email"`
	SessionCookie   string `mapstructure:"session_cookie"`
}

// CredentialStore holds the active credential. Its lifecycle follows login and logout; the Trello
// key and token are kept in memory only and forwarded to the backend once.
type CredentialStore struct {
	mu    sync.RWMutex
	cred  Credential
	state LocalState
	path  string
}

// NewCredentialStore loads the local state file at path. A missing file is an empty state; an
// empty path keeps everything in memory.
func NewCredentialStore(path string) (*CredentialStore, error) {
	s := &CredentialStore{path: path}
	if path == "" {
		return s, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return s, nil
		}
		return nil, fmt.Errorf("reading local state: %w", err)
	}
	if err := v.Unmarshal(&s.state); err != nil {
		return nil, fmt.Errorf("decoding local state: %w", err)
	}
	if s.state.IsAuthenticated {
		s.cred.Identity = s.state.UserEmail
	}
	return s, nil
}

func (s *CredentialStore) Current() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

func (s *CredentialStore) State() LocalState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Login records identity as signed in along with the backend session cookie.
func (s *CredentialStore) Login(identity, sessionCookie string) error {
	if identity == "" {
		return &ValidationError{Field: "identity", Reason: "required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = Credential{Identity: identity}
	s.state = LocalState{IsAuthenticated: true, UserEmail: identity, SessionCookie: sessionCookie}
	return s.save()
}

// SetTrello attaches a Trello key and token to the signed-in identity.
func (s *CredentialStore) SetTrello(apiKey, token string) error {
	if apiKey == "" || token == "" {
		return &ValidationError{Reason: "Please provide both API Key and Token"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred.Identity == "" {
		return &ValidationError{Field: "identity", Reason: "log in first"}
	}
	s.cred.APIKey = apiKey
	s.cred.Token = token
	return nil
}

// Logout clears the credential and the local state file.
func (s *CredentialStore) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = Credential{}
	s.state = LocalState{}
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing local state: %w", err)
	}
	return nil
}

func (s *CredentialStore) save() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("is_authenticated", s.state.IsAuthenticated)
	v.Set("user_email", s.state.UserEmail)
	v.Set("session_cookie", s.state.SessionCookie)
	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("writing local state: %w", err)
	}
	return os.Chmod(s.path, 0o600)
}
