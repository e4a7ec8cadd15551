package driven

// NetworkMonitor reports connectivity. The orchestrator checks it before
// every scheduled attempt and skips silently while offline.
type NetworkMonitor interface {
	// IsOnline reports current reachability
	IsOnline() bool

	// Subscribe registers a callback for online/offline transitions and
	// returns an unsubscribe function. Unsubscribing must be safe to call
	// more than once.
	Subscribe(fn func(online bool)) (unsubscribe func())
}
