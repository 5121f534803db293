package halcyon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/WelcomerTeam/czlib"
	"github.com/halcyon-dev/halcyon/discord"
	"github.com/halcyon-dev/halcyon/halcyonjson"
	"github.com/halcyon-dev/halcyon/pkg/limiter"
	"github.com/rs/zerolog"
	gotils_strconv "github.com/savsgio/gotils/strconv"
	"go.uber.org/atomic"
	"nhooyr.io/websocket"
)

var (
	// Number of connect attempts before a shard gives up.
	ShardConnectRetries = int32(3)

	// Number of heartbeat intervals without an ack before the connection is
	// considered dead.
	MaxHeartbeatFailures = int32(2)

	GatewayLargeThreshold = int32(250)

	// Outbound frames per minute. Kept under the gateway's 120/minute
	// budget so heartbeats always fit.
	ShardWSRateLimit = int32(110)

	HandshakeTimeout = 15 * time.Second
	ReadyTimeout     = 30 * time.Second

	// Close code used when the library closes the socket intending to
	// resume.
	WebsocketReconnectCloseCode = websocket.StatusCode(4000)
)

// Shard is one gateway connection, responsible for a disjoint slice of the
// remote service's events. It owns its SessionState and Heartbeater; no
// other component mutates them.
type Shard struct {
	client *Client
	logger zerolog.Logger

	shardID int32

	session *SessionState

	policy  ReconnectPolicy
	attempt *atomic.Int32

	stage     *atomic.Int32
	startedAt *atomic.Time

	heartbeater *Heartbeater

	wsConnMu sync.RWMutex
	wsConn   *websocket.Conn

	// writeMu guarantees a single writer at a time so heartbeat frames and
	// protocol frames never interleave bytes.
	writeMu     sync.Mutex
	wsRatelimit *limiter.DurationLimiter

	ready chan struct{}
}

func newShard(client *Client, shardID, shardCount int32) *Shard {
	return &Shard{
		client: client,
		logger: client.logger.With().Int32("shard_id", shardID).Logger(),

		shardID: shardID,

		session: NewSessionState(shardID, shardCount),

		policy:  client.config.ReconnectPolicy,
		attempt: atomic.NewInt32(0),

		stage:     atomic.NewInt32(int32(StageDisconnected)),
		startedAt: atomic.NewTime(time.Time{}),

		wsRatelimit: limiter.NewDurationLimiter(ShardWSRateLimit, time.Minute),

		ready: make(chan struct{}, 1),
	}
}

// ShardID returns the shard's index.
func (shard *Shard) ShardID() int32 { return shard.shardID }

// Session returns the shard's session state. Read-only outside the shard
// task.
func (shard *Shard) Session() *SessionState { return shard.session }

// Latency returns the last heartbeat round trip, or zero before the first
// ack.
func (shard *Shard) Latency() time.Duration {
	if hb := shard.heartbeater; hb != nil {
		return hb.Latency()
	}

	return 0
}

// Stage returns the shard's current connection stage.
func (shard *Shard) Stage() ConnectionStage {
	return ConnectionStage(shard.stage.Load())
}

func (shard *Shard) setStage(stage ConnectionStage) {
	shard.stage.Store(int32(stage))
	UpdateShardStage(shard.client.config.Identifier, shard.shardID, stage)

	shard.logger.Debug().Stringer("stage", stage).Msg("Shard stage changed")
}

// Run connects the shard and processes events until the context is
// cancelled. It returns nil on clean shutdown; ErrInvalidAuthentication and
// ErrReconnectFailure are the terminal failure conditions.
func (shard *Shard) Run(ctx context.Context) error {
	defer shard.teardown()

	if err := shard.connectWithBackoff(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	}

	return shard.listen(ctx)
}

func (shard *Shard) teardown() {
	if hb := shard.heartbeater; hb != nil {
		hb.Stop()
	}

	shard.closeWS(websocket.StatusNormalClosure)
	shard.setStage(StageDisconnected)
}

// connectWithBackoff drives connect through the reconnect policy until it
// succeeds, a fatal error occurs or the attempt ceiling is exceeded.
func (shard *Shard) connectWithBackoff(ctx context.Context) error {
	for {
		err := shard.connect(ctx)
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return context.Canceled
		}

		if errors.Is(err, ErrInvalidAuthentication) || errors.Is(err, ErrNoAuthentication) {
			return err
		}

		attempt := shard.attempt.Inc() - 1

		if shard.policy.ShouldGiveUp(attempt + 1) {
			return fmt.Errorf("%w: %w", ErrReconnectFailure, err)
		}

		delay := shard.policy.NextDelay(attempt)

		shard.logger.Warn().Err(err).
			Int32("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Failed to connect to gateway")

		select {
		case <-ctx.Done():
			return context.Canceled
		case <-time.After(delay):
		}
	}
}

// connect performs one full bring-up: open the socket, handshake, identify
// or resume, and wait until the session is live.
func (shard *Shard) connect(ctx context.Context) (err error) {
	shard.setStage(StageConnecting)

	// Empty the ready channel.
readyConsumer:
	for {
		select {
		case <-shard.ready:
		default:
			break readyConsumer
		}
	}

	defer func() {
		if err != nil {
			if hb := shard.heartbeater; hb != nil {
				hb.Stop()
			}

			shard.closeWS(websocket.StatusNormalClosure)
		}
	}()

	gatewayURL, err := shard.connectionURL(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingURL, err)
	}

	shard.closeWS(websocket.StatusNormalClosure)

	shard.logger.Debug().Str("url", gatewayURL).Msg("Dialing gateway")

	dialCtx, dialCancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, gatewayURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}

	conn.SetReadLimit(-1)

	shard.wsConnMu.Lock()
	shard.wsConn = conn
	shard.wsConnMu.Unlock()

	shard.setStage(StageHandshake)

	helloCtx, helloCancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer helloCancel()

	payload, err := shard.read(helloCtx, conn)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExpectedHello, err)
	}

	if payload.Op != discord.GatewayOpHello {
		return fmt.Errorf("%w: received op %d", ErrExpectedHello, payload.Op)
	}

	var hello discord.Hello

	if err = halcyonjson.Unmarshal(payload.Data, &hello); err != nil {
		return fmt.Errorf("%w: %w", ErrExpectedHello, err)
	}

	if hello.HeartbeatInterval <= 0 {
		return ErrInvalidHeartbeatInterval
	}

	now := time.Now().UTC()
	shard.startedAt.Store(now)

	shard.heartbeater = NewHeartbeater(
		shard.logger,
		time.Duration(hello.HeartbeatInterval)*time.Millisecond,
	)

	go shard.heartbeater.Run(ctx, shard.sendHeartbeat, shard.onHeartbeatFailure)

	switch shard.session.ReconnectType() {
	case ReconnectTypeResume:
		shard.setStage(StageResuming)

		err = shard.resume(ctx)
		if errors.Is(err, ErrNoSessionID) {
			// Programming error: a resume was forced without a session.
			// Surface it and fall back to a fresh identify.
			shard.logger.Error().Err(err).Msg("Resume attempted without session id")
			shard.session.MarkResumable(false)

			shard.setStage(StageIdentifying)
			err = shard.identify(ctx)
		}
	default:
		shard.setStage(StageIdentifying)

		err = shard.identify(ctx)
	}

	if err != nil {
		return err
	}

	return shard.awaitSession(ctx, conn)
}

// awaitSession processes frames until the gateway confirms the session with
// a Ready or Resumed, bounded by ReadyTimeout. Replayed dispatch frames
// arriving before a Resumed are processed normally.
func (shard *Shard) awaitSession(ctx context.Context, conn *websocket.Conn) error {
	readyCtx, cancel := context.WithTimeout(ctx, ReadyTimeout)
	defer cancel()

	for {
		payload, err := shard.read(readyCtx, conn)
		if err != nil {
			if fatal := shard.fatalCloseError(err); fatal != nil {
				return fatal
			}

			return fmt.Errorf("%w: %w", ErrInvalidHandshake, err)
		}

		err = shard.onEvent(ctx, payload)
		if err != nil {
			if errors.Is(err, errSessionInvalidated) || errors.Is(err, errReconnectRequested) {
				return fmt.Errorf("%w: %w", ErrInvalidHandshake, err)
			}

			if !errors.Is(err, ErrNoGatewayHandler) {
				shard.logger.Error().Err(err).Msg("Failed to handle event")
			}
		}

		if shard.Stage() == StageConnected {
			return nil
		}
	}
}

// listen is the connected read loop. It only returns on shutdown (nil) or a
// terminal failure.
func (shard *Shard) listen(ctx context.Context) error {
	for {
		conn := shard.conn()
		if conn == nil {
			return nil
		}

		payload, err := shard.read(ctx, conn)

		select {
		case <-ctx.Done():
			shard.sendCloseFrame()

			return nil
		default:
		}

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			if fatal := shard.fatalCloseError(err); fatal != nil {
				shard.logger.Error().Err(err).Msg("Shard received unrecoverable close")

				return fatal
			}

			resumable := true

			var closeError websocket.CloseError

			if errors.As(err, &closeError) {
				resumable = isCloseResumable(closeError.Code)

				shard.logger.Warn().
					Int("code", int(closeError.Code)).
					Bool("resumable", resumable).
					Msg("Gateway closed connection")

				if !resumable && shard.client.config.FailOnNonResumableClose {
					shard.session.MarkResumable(false)

					return CloseError{Code: closeError.Code, Reason: closeError.Reason}
				}
			} else {
				shard.logger.Warn().Err(err).Msg("Error reading from gateway")
			}

			shard.session.MarkResumable(resumable)

			if err = shard.reconnect(ctx); err != nil {
				return err
			}

			continue
		}

		err = shard.onEvent(ctx, payload)

		switch {
		case errors.Is(err, errReconnectRequested), errors.Is(err, errSessionInvalidated):
			if err = shard.reconnect(ctx); err != nil {
				return err
			}
		case err != nil && !errors.Is(err, ErrNoGatewayHandler):
			shard.logger.Error().Err(err).Msg("Failed to handle event")
		}
	}
}

// reconnect tears the connection down and brings it back up through the
// reconnect policy.
func (shard *Shard) reconnect(ctx context.Context) error {
	shard.logger.Info().
		Stringer("reconnect_type", shard.session.ReconnectType()).
		Msg("Shard is reconnecting")

	RecordReconnect(shard.client.config.Identifier, shard.session.ReconnectType())

	if hb := shard.heartbeater; hb != nil {
		hb.Stop()
	}

	shard.closeWS(WebsocketReconnectCloseCode)

	if err := shard.connectWithBackoff(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	}

	return nil
}

// fatalCloseError maps unrecoverable close codes onto their terminal error
// kinds, or returns nil when the closure may be retried.
func (shard *Shard) fatalCloseError(err error) error {
	var closeError websocket.CloseError

	if !errors.As(err, &closeError) {
		return nil
	}

	switch int(closeError.Code) {
	case discord.CloseAuthenticationFailed:
		return fmt.Errorf("%w: %w", ErrInvalidAuthentication, err)
	case discord.CloseInvalidShard,
		discord.CloseShardingRequired,
		discord.CloseInvalidAPIVersion,
		discord.CloseInvalidIntents,
		discord.CloseDisallowedIntents:
		return CloseError{Code: closeError.Code, Reason: closeError.Reason}
	default:
		return nil
	}
}

// isCloseResumable reports whether a session survives the given close code.
func isCloseResumable(code websocket.StatusCode) bool {
	switch int(code) {
	case discord.CloseNotAuthenticated,
		discord.CloseAlreadyAuthenticated,
		discord.CloseInvalidSeq,
		discord.CloseRateLimited,
		discord.CloseSessionTimeout:
		return false
	default:
		return true
	}
}

// connectionURL picks the session's resume URL when resuming, falling back
// to the client's shared gateway URL cache.
func (shard *Shard) connectionURL(ctx context.Context) (string, error) {
	gatewayURL := ""

	if shard.session.ReconnectType() == ReconnectTypeResume {
		gatewayURL = shard.session.ResumeGatewayURL()
	}

	if gatewayURL == "" {
		var err error

		gatewayURL, err = shard.client.gatewayURL(ctx)
		if err != nil {
			return "", err
		}
	}

	return gatewayURL + "?v=10&encoding=json", nil
}

func (shard *Shard) identify(ctx context.Context) error {
	config := shard.client.config

	identify, err := BuildIdentify(
		config.Token,
		shard.shardID,
		shard.session.ShardCount(),
		config.Intents,
		config.Presence,
		config.LargeThreshold,
	)
	if err != nil {
		return err
	}

	if err := shard.client.waitForIdentify(ctx, shard); err != nil {
		return fmt.Errorf("failed to wait for identify: %w", err)
	}

	shard.logger.Debug().
		Int32("shard_count", shard.session.ShardCount()).
		Msg("Shard is identifying")

	return shard.SendEvent(ctx, discord.GatewayOpIdentify, identify)
}

func (shard *Shard) resume(ctx context.Context) error {
	resume, err := BuildResume(
		shard.client.config.Token,
		shard.session.SessionID(),
		shard.session.Sequence(),
	)
	if err != nil {
		return err
	}

	shard.logger.Debug().
		Int64("sequence", resume.Sequence).
		Msg("Shard is resuming")

	return shard.SendEvent(ctx, discord.GatewayOpResume, resume)
}

func (shard *Shard) sendHeartbeat(ctx context.Context) error {
	return shard.SendEvent(ctx, discord.GatewayOpHeartbeat, shard.session.Sequence())
}

// onHeartbeatFailure closes the transport so the read loop reconnects; the
// engine does not wait for the remote side to notice the dead connection.
func (shard *Shard) onHeartbeatFailure(err error) {
	shard.logger.Warn().Err(err).Msg("Heartbeat failed, forcing reconnect")

	shard.session.MarkResumable(true)
	shard.closeWS(WebsocketReconnectCloseCode)
}

// UpdatePresence updates the presence of the current user on this shard.
func (shard *Shard) UpdatePresence(ctx context.Context, status discord.UpdateStatus) error {
	return shard.SendEvent(ctx, discord.GatewayOpPresenceUpdate, status)
}

// UpdateVoiceState moves the current user between voice channels.
func (shard *Shard) UpdateVoiceState(ctx context.Context, state discord.UpdateVoiceState) error {
	return shard.SendEvent(ctx, discord.GatewayOpVoiceStateUpdate, state)
}

// SendEvent wraps data in the outbound envelope and sends it.
func (shard *Shard) SendEvent(ctx context.Context, op discord.GatewayOp, data any) error {
	return shard.send(ctx, op, discord.SentPayload{
		Op:   op,
		Data: data,
	})
}

func (shard *Shard) send(ctx context.Context, op discord.GatewayOp, data any) error {
	payload, err := halcyonjson.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Heartbeats skip the ratelimit so a saturated window cannot delay them.
	if op != discord.GatewayOpHeartbeat {
		shard.wsRatelimit.Lock()
	}

	conn := shard.conn()
	if conn == nil {
		return ErrShardStopping
	}

	shard.logger.Trace().Msg("<<< " + gotils_strconv.B2S(payload))

	shard.writeMu.Lock()
	defer shard.writeMu.Unlock()

	if err = conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}

	return nil
}

// read returns the next decoded envelope. Binary frames are
// zlib-compressed.
func (shard *Shard) read(ctx context.Context, conn *websocket.Conn) (*discord.GatewayPayload, error) {
	messageType, data, err := conn.Read(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}

		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	if messageType == websocket.MessageBinary {
		data, err = czlib.Decompress(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress payload: %w", err)
		}
	}

	payload := &discord.GatewayPayload{}

	if err = halcyonjson.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return payload, nil
}

func (shard *Shard) onEvent(ctx context.Context, payload *discord.GatewayPayload) error {
	handler, ok := gatewayEvents[payload.Op]
	if !ok {
		return fmt.Errorf("%w: op %d", ErrNoGatewayHandler, payload.Op)
	}

	return handler(ctx, shard, payload)
}

func (shard *Shard) conn() *websocket.Conn {
	shard.wsConnMu.RLock()
	defer shard.wsConnMu.RUnlock()

	return shard.wsConn
}

// sendCloseFrame performs the clean close on shutdown.
func (shard *Shard) sendCloseFrame() {
	shard.closeWS(websocket.StatusNormalClosure)
}

func (shard *Shard) closeWS(code websocket.StatusCode) {
	shard.wsConnMu.Lock()
	conn := shard.wsConn
	shard.wsConn = nil
	shard.wsConnMu.Unlock()

	if conn == nil {
		return
	}

	shard.logger.Debug().Int("code", int(code)).Msg("Closing websocket connection")

	if err := conn.Close(code, ""); err != nil && !errors.Is(err, context.Canceled) {
		shard.logger.Debug().Err(err).Msg("Failed to close websocket connection")
	}
}

func (shard *Shard) signalReady() {
	select {
	case shard.ready <- struct{}{}:
	default:
	}
}

// WaitForReady blocks until the shard reaches Connected or the context is
// cancelled.
func (shard *Shard) WaitForReady(ctx context.Context) error {
	if shard.Stage() == StageConnected {
		return nil
	}

	select {
	case <-shard.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
