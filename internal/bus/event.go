package bus

import "time"

// Topics published by the client and the daemon.
const (
	TopicConnectivityOnline  = "connectivity.online"
	TopicConnectivityOffline = "connectivity.offline"
	TopicSyncCompleted       = "sync.completed"
	TopicCacheRefreshed      = "cache.refreshed"
	TopicDaemonStatus        = "daemon.status_changed"
)

// Event is a notification published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
