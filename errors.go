package halcyon

import (
	"errors"
	"fmt"

	"nhooyr.io/websocket"
)

var (
	// ErrBuildingURL is returned when a gateway URL could not be built.
	ErrBuildingURL = errors.New("error building gateway url")

	// ErrExpectedHello is returned when the first frame of a handshake is
	// not a Hello.
	ErrExpectedHello = errors.New("expected a hello")

	// ErrInvalidHandshake is returned when the handshake ends without a
	// Ready, Resumed or InvalidSession.
	ErrInvalidHandshake = errors.New("expected a valid handshake")

	// ErrHeartbeatFailed is returned when a heartbeat could not be sent or
	// was not acknowledged within the failure interval.
	ErrHeartbeatFailed = errors.New("failed sending a heartbeat")

	// ErrNoAuthentication is returned when an Identify is attempted without
	// a token.
	ErrNoAuthentication = errors.New("no authentication provided")

	// ErrInvalidAuthentication is returned when the gateway rejects the
	// token. It is fatal and never retried.
	ErrInvalidAuthentication = errors.New("invalid authentication provided")

	// ErrNoSessionID is returned when a Resume is attempted without a
	// session id.
	ErrNoSessionID = errors.New("no session id present when required")

	// ErrReconnectFailure is returned when the retry ceiling is exceeded.
	ErrReconnectFailure = errors.New("failed to reconnect")

	ErrShardStopping            = errors.New("shard is stopping")
	ErrInvalidHeartbeatInterval = errors.New("invalid heartbeat interval")

	ErrMissingToken      = errors.New("config missing token")
	ErrShardIDOutOfRange = errors.New("shard id out of range")

	ErrUnknownProducer = errors.New("unknown producer type")

	ErrChunkFilterExclusive = errors.New("chunk filter query and user ids are mutually exclusive")
	ErrMemberChunkTimeout   = errors.New("timed out waiting for guild member chunks")
	ErrNoGatewayHandler     = errors.New("no gateway handler found")
)

// CloseError carries the close code and reason of a gateway closure.
type CloseError struct {
	Code   websocket.StatusCode
	Reason string
}

func (e CloseError) Error() string {
	return fmt.Sprintf("connection closed: %d %s", e.Code, e.Reason)
}

// control-flow sentinels used between the gateway op handlers and the read
// loop. They never surface to callers.
var (
	errReconnectRequested = errors.New("gateway requested reconnect")
	errSessionInvalidated = errors.New("gateway invalidated session")
)
