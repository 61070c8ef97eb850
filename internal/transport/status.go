package transport

// Status is the connectivity state of a document's sync channel.
// Transitions are driven only by transport events; UI code observes them
// through subscriptions and never sets them directly.
type Status int

const (
	StatusOffline Status = iota
	StatusConnecting
	StatusSynced
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusSynced:
		return "synced"
	default:
		return "offline"
	}
}
