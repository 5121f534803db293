package halcyon

import (
	"go.uber.org/atomic"
)

// ReconnectType is the kind of reconnection a shard should perform.
type ReconnectType int32

const (
	// ReconnectTypeReidentify starts a fresh session with an Identify.
	ReconnectTypeReidentify ReconnectType = iota

	// ReconnectTypeResume re-attaches to the previous session with a Resume.
	ReconnectTypeResume
)

func (t ReconnectType) String() string {
	if t == ReconnectTypeResume {
		return "resume"
	}

	return "reidentify"
}

// SessionState holds a shard's session identity between connections. It is
// exclusively owned by the shard task running that shard's state machine.
type SessionState struct {
	shardID    int32
	shardCount int32

	sessionID        *atomic.String
	sequence         *atomic.Int64
	resumeGatewayURL *atomic.String
	resumable        *atomic.Bool
}

func NewSessionState(shardID, shardCount int32) *SessionState {
	return &SessionState{
		shardID:    shardID,
		shardCount: shardCount,

		sessionID:        atomic.NewString(""),
		sequence:         atomic.NewInt64(0),
		resumeGatewayURL: atomic.NewString(""),
		resumable:        atomic.NewBool(false),
	}
}

func (s *SessionState) ShardID() int32    { return s.shardID }
func (s *SessionState) ShardCount() int32 { return s.shardCount }

func (s *SessionState) SessionID() string { return s.sessionID.Load() }
func (s *SessionState) Sequence() int64   { return s.sequence.Load() }

func (s *SessionState) ResumeGatewayURL() string { return s.resumeGatewayURL.Load() }
func (s *SessionState) Resumable() bool          { return s.resumable.Load() }

// ObserveSequence records a sequence number from a Dispatch frame. Sequence
// numbers are monotonically non-decreasing whilst connected; stale values
// are ignored.
func (s *SessionState) ObserveSequence(sequence int64) {
	for {
		current := s.sequence.Load()
		if sequence <= current {
			return
		}

		if s.sequence.CompareAndSwap(current, sequence) {
			return
		}
	}
}

// SessionEstablished records a fresh session from a Ready.
func (s *SessionState) SessionEstablished(sessionID, resumeGatewayURL string) {
	s.sessionID.Store(sessionID)
	s.resumeGatewayURL.Store(resumeGatewayURL)
	s.resumable.Store(true)
}

// MarkResumable flags whether the current session may be resumed after the
// next closure. Marking a session non-resumable clears the session id,
// resume URL and sequence.
func (s *SessionState) MarkResumable(resumable bool) {
	s.resumable.Store(resumable)

	if !resumable {
		s.sessionID.Store("")
		s.resumeGatewayURL.Store("")
		s.sequence.Store(0)
	}
}

// ReconnectType decides whether the next connection should Resume or
// Reidentify. The decision depends only on the recorded session state,
// never on the error that caused the drop.
func (s *SessionState) ReconnectType() ReconnectType {
	return DecideReconnectType(s.resumable.Load(), s.sessionID.Load())
}

// DecideReconnectType is the pure reconnect decision: a Resume is only ever
// issued when the session is resumable and a session id is present.
func DecideReconnectType(resumable bool, sessionID string) ReconnectType {
	if resumable && sessionID != "" {
		return ReconnectTypeResume
	}

	return ReconnectTypeReidentify
}
