// Package auth implements the credential provider over a provisioned token
// file. OAuth flows happen outside this process; the companion client writes
// fresh tokens to the file and this adapter serves them.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/custodia-labs/mailsync-core/internal/core/domain"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CredentialProvider = (*TokenFile)(nil)

// tokenEntry is one account's credentials in the file.
type tokenEntry struct {
	AccessToken string `toml:"access_token"`
}

// tokenDocument is the file layout:
//
//	[accounts."acc-1"]
//	access_token = "ya29...."
type tokenDocument struct {
	Accounts map[string]tokenEntry `toml:"accounts"`
}

// TokenFile serves access tokens from a TOML file. Refresh re-reads the
// file; a token that did not change means the user must re-authenticate in
// the companion client.
type TokenFile struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	tokens map[string]string
}

// NewTokenFile creates the provider and loads the file. A missing file is
// not an error; every account then needs re-authentication.
func NewTokenFile(path string, logger *slog.Logger) (*TokenFile, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &TokenFile{
		path:   path,
		logger: logger,
		tokens: make(map[string]string),
	}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// reload re-reads the token file. Caller must not hold the lock.
func (p *TokenFile) reload() error {
	var doc tokenDocument
	if _, err := toml.DecodeFile(p.path, &doc); err != nil {
		if os.IsNotExist(err) {
			p.logger.Warn("token file missing, accounts need authentication", "path", p.path)
			return nil
		}
		return fmt.Errorf("decode token file %s: %w", p.path, err)
	}

	tokens := make(map[string]string, len(doc.Accounts))
	for accountID, entry := range doc.Accounts {
		if entry.AccessToken != "" {
			tokens[accountID] = entry.AccessToken
		}
	}

	p.mu.Lock()
	p.tokens = tokens
	p.mu.Unlock()
	return nil
}

// GetValidAccessToken returns the provisioned token for the account.
func (p *TokenFile) GetValidAccessToken(ctx context.Context, accountID string) (string, error) {
	p.mu.RLock()
	token, ok := p.tokens[accountID]
	p.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no token for account %s: %w", accountID, domain.ErrReauthRequired)
	}
	return token, nil
}

// Refresh re-reads the file and returns the account's token if it changed.
// An unchanged or missing token means the companion client has not completed
// a new OAuth flow yet.
func (p *TokenFile) Refresh(ctx context.Context, accountID string) (string, error) {
	p.mu.RLock()
	before := p.tokens[accountID]
	p.mu.RUnlock()

	if err := p.reload(); err != nil {
		return "", err
	}

	p.mu.RLock()
	after, ok := p.tokens[accountID]
	p.mu.RUnlock()
	if !ok || after == before {
		return "", fmt.Errorf("token for account %s not renewed: %w", accountID, domain.ErrReauthRequired)
	}
	return after, nil
}
