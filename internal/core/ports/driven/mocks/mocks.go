// Package mocks provides hand-written in-memory implementations of the
// driven ports for tests.
package mocks

import "github.com/custodia-labs/mailsync-core/internal/core/ports/driven"

var (
	_ driven.EmailStore         = (*MockEmailStore)(nil)
	_ driven.AccountStore       = (*MockAccountStore)(nil)
	_ driven.SyncStateStore     = (*MockSyncStateStore)(nil)
	_ driven.AdaptiveStateStore = (*MockAdaptiveStateStore)(nil)
	_ driven.FailureStore       = (*MockFailureStore)(nil)
	_ driven.ConflictAuditStore = (*MockAuditStore)(nil)
	_ driven.PreferenceStore    = (*MockPreferenceStore)(nil)
	_ driven.EventBus           = (*MockEventBus)(nil)
	_ driven.CredentialProvider = (*MockCredentialProvider)(nil)
	_ driven.NetworkMonitor     = (*MockNetworkMonitor)(nil)
	_ driven.ProviderAdapter    = (*MockProviderAdapter)(nil)
	_ driven.DistributedLock    = (*MockDistributedLock)(nil)
)
