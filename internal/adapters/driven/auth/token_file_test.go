package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
)

func writeTokens(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write tokens: %v", err)
	}
}

// TestTokenFile_Lookup tests token retrieval and the missing-account error
func TestTokenFile_Lookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.toml")
	writeTokens(t, path, `
[accounts."acc-1"]
access_token = "tok-gmail"

[accounts."acc-2"]
access_token = "tok-outlook"
`)

	p, err := NewTokenFile(path, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	token, err := p.GetValidAccessToken(ctx, "acc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if token != "tok-gmail" {
		t.Errorf("expected tok-gmail, got %q", token)
	}

	_, err = p.GetValidAccessToken(ctx, "acc-unknown")
	if !errors.Is(err, domain.ErrReauthRequired) {
		t.Errorf("expected ErrReauthRequired, got %v", err)
	}
}

// TestTokenFile_MissingFile tests that a missing file leaves every account
// unauthenticated rather than failing startup
func TestTokenFile_MissingFile(t *testing.T) {
	p, err := NewTokenFile(filepath.Join(t.TempDir(), "absent.toml"), nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := p.GetValidAccessToken(context.Background(), "acc-1"); !errors.Is(err, domain.ErrReauthRequired) {
		t.Errorf("expected ErrReauthRequired, got %v", err)
	}
}

// TestTokenFile_Refresh tests that Refresh picks up a rewritten file and
// reports re-auth when the token did not change
func TestTokenFile_Refresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.toml")
	writeTokens(t, path, "[accounts.\"acc-1\"]\naccess_token = \"old\"\n")

	p, err := NewTokenFile(path, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()

	// Same content: no renewal happened
	if _, err := p.Refresh(ctx, "acc-1"); !errors.Is(err, domain.ErrReauthRequired) {
		t.Errorf("expected ErrReauthRequired for unchanged token, got %v", err)
	}

	writeTokens(t, path, "[accounts.\"acc-1\"]\naccess_token = \"new\"\n")
	token, err := p.Refresh(ctx, "acc-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if token != "new" {
		t.Errorf("expected new, got %q", token)
	}

	// The refreshed token is now served by lookups too
	token, _ = p.GetValidAccessToken(ctx, "acc-1")
	if token != "new" {
		t.Errorf("expected new from lookup, got %q", token)
	}
}

// TestTokenFile_Malformed tests that a corrupt file fails construction
func TestTokenFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.toml")
	writeTokens(t, path, "[accounts\n")

	if _, err := NewTokenFile(path, nil); err == nil {
		t.Error("expected error for malformed file")
	}
}
