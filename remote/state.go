package remote

// State is the connection state of a remote endpoint. Transmit is only
// ever permitted in StateConnected; every other state forces the transmit
// decision false regardless of PTT or VOX activity.
type State int

const (
	// StateDisconnected means no connection exists.
	StateDisconnected State = iota
	// StateConnecting means a connect request is outstanding.
	StateConnecting
	// StateConnected means bidirectional audio is established.
	StateConnected
	// StateByeReceived means the peer ended the call; local teardown is
	// pending.
	StateByeReceived
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateByeReceived:
		return "BYE_RECEIVED"
	default:
		return "UNKNOWN"
	}
}
