package halcyon

// ConnectionStage is the stage of a shard's connection lifecycle. A shard is
// in exactly one stage at a time.
type ConnectionStage int32

const (
	// StageDisconnected is the rest state after exhausting retries or a
	// deliberate shutdown.
	StageDisconnected ConnectionStage = iota

	// StageConnecting means the shard is acquiring a URL and opening the
	// socket.
	StageConnecting

	// StageHandshake means the shard is waiting for the gateway's Hello.
	StageHandshake

	// StageIdentifying means an Identify was sent and a Ready is awaited.
	StageIdentifying

	// StageResuming means a Resume was sent and a Resumed is awaited.
	StageResuming

	// StageConnected is the steady state.
	StageConnected
)

func (stage ConnectionStage) String() string {
	switch stage {
	case StageDisconnected:
		return "disconnected"
	case StageConnecting:
		return "connecting"
	case StageHandshake:
		return "handshaking"
	case StageIdentifying:
		return "identifying"
	case StageResuming:
		return "resuming"
	case StageConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// IsConnecting reports whether the stage is a form of connecting.
func (stage ConnectionStage) IsConnecting() bool {
	switch stage {
	case StageConnecting, StageHandshake, StageIdentifying, StageResuming:
		return true
	default:
		return false
	}
}
