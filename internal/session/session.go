package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// ErrSessionExpired is returned when the stored token is past its expiry.
var ErrSessionExpired = errors.New("session expired; run csr login")

// ErrNoSession is returned when no session file exists for the workspace.
var ErrNoSession = errors.New("not logged in; run csr login")

// Session is the persisted identity: a worker-issued JWT plus the realm
// (domain) the user selected. All mission operations are gated on it.
type Session struct {
	Token  string `yaml:"token"`
	Wallet string `yaml:"wallet"`
	Realm  string `yaml:"realm,omitempty"`
}

type claims struct {
	jwt.RegisteredClaims
	Wallet string `json:"wallet,omitempty"`
}

func sessionPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".corsair", "session.yml")
}

// Save writes the session to the workspace.
func Save(workspace string, s Session) error {
	dir := filepath.Dir(sessionPath(workspace))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(sessionPath(workspace), data, 0o600)
}

// Load reads the session and rejects expired tokens.
func Load(workspace string) (Session, error) {
	data, err := os.ReadFile(sessionPath(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}
	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("invalid session file: %w", err)
	}
	if s.Token == "" {
		return Session{}, ErrNoSession
	}
	if expired, err := Expired(s.Token, time.Now()); err != nil {
		return Session{}, err
	} else if expired {
		return Session{}, ErrSessionExpired
	}
	return s, nil
}

// Clear removes the persisted session.
func Clear(workspace string) error {
	err := os.Remove(sessionPath(workspace))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WalletFromToken extracts the wallet address from token claims without
// verifying the signature. Verification is the worker's job; the client
// only inspects claims it was handed.
func WalletFromToken(token string) (string, error) {
	c, err := parseClaims(token)
	if err != nil {
		return "", err
	}
	if c.Wallet != "" {
		return c.Wallet, nil
	}
	if c.Subject != "" {
		return c.Subject, nil
	}
	return "", errors.New("token has no wallet claim")
}

// Expired reports whether the token's exp claim is in the past.
func Expired(token string, now time.Time) (bool, error) {
	c, err := parseClaims(token)
	if err != nil {
		return false, err
	}
	if c.ExpiresAt == nil {
		return false, nil
	}
	return c.ExpiresAt.Before(now), nil
}

func parseClaims(token string) (*claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("empty token")
	}
	c := &claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, c); err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return c, nil
}
