package domain

// SessionState is the lifecycle state of the session controller.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionRunning  SessionState = "running"
	SessionStopping SessionState = "stopping"
	SessionStopped  SessionState = "stopped"
)

// ListenerState is the connection state of the feed listener.
type ListenerState string

const (
	ListenerDisconnected ListenerState = "disconnected"
	ListenerConnecting   ListenerState = "connecting"
	ListenerConnected    ListenerState = "connected"
	ListenerStopped      ListenerState = "stopped"
)
