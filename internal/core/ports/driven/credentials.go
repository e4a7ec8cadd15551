package driven

import "context"

// CredentialProvider supplies valid access tokens for provider calls.
// Token storage, OAuth flows, and refresh mechanics live behind this port.
type CredentialProvider interface {
	// GetValidAccessToken returns a usable access token for the account
	GetValidAccessToken(ctx context.Context, accountID string) (string, error)

	// Refresh forces a token refresh. Failure means the user must
	// re-authenticate; callers surface domain.ErrReauthRequired.
	Refresh(ctx context.Context, accountID string) (string, error)
}
