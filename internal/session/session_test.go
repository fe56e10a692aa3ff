package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"corsair/internal/session"
)

func signToken(t *testing.T, wallet string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":    wallet,
		"wallet": wallet,
		"exp":    exp.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	token := signToken(t, "0xabc", time.Now().Add(time.Hour))
	s := session.Session{Token: token, Wallet: "0xabc", Realm: "tortuga"}
	if err := session.Save(dir, s); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := session.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Wallet != "0xabc" || got.Realm != "tortuga" || got.Token != token {
		t.Fatalf("unexpected session %+v", got)
	}
}

func TestLoadMissingSession(t *testing.T) {
	_, err := session.Load(t.TempDir())
	if !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestLoadRejectsExpiredToken(t *testing.T) {
	dir := t.TempDir()
	token := signToken(t, "0xabc", time.Now().Add(-time.Minute))
	if err := session.Save(dir, session.Session{Token: token, Wallet: "0xabc"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, err := session.Load(dir)
	if !errors.Is(err, session.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	token := signToken(t, "0xabc", time.Now().Add(time.Hour))
	if err := session.Save(dir, session.Session{Token: token, Wallet: "0xabc"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := session.Clear(dir); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := session.Clear(dir); err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if _, err := session.Load(dir); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after clear, got %v", err)
	}
}

func TestWalletFromToken(t *testing.T) {
	token := signToken(t, "0xdeadbeef", time.Now().Add(time.Hour))
	wallet, err := session.WalletFromToken(token)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if wallet != "0xdeadbeef" {
		t.Fatalf("expected wallet claim, got %q", wallet)
	}
	if _, err := session.WalletFromToken("not-a-token"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}
