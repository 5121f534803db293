package halcyon

import (
	"context"
	"fmt"

	"github.com/halcyon-dev/halcyon/discord"
	"github.com/halcyon-dev/halcyon/halcyonjson"
)

// GatewayHandler handles a single inbound gateway op. Handlers may return
// the control sentinels errReconnectRequested and errSessionInvalidated to
// instruct the read loop to cycle the connection.
type GatewayHandler func(ctx context.Context, shard *Shard, msg *discord.GatewayPayload) error

var gatewayEvents = make(map[discord.GatewayOp]GatewayHandler)

// RegisterGatewayEvent registers the handler for a gateway op.
func RegisterGatewayEvent(op discord.GatewayOp, handler GatewayHandler) {
	gatewayEvents[op] = handler
}

func gatewayOpDispatch(ctx context.Context, shard *Shard, msg *discord.GatewayPayload) error {
	shard.session.ObserveSequence(msg.Sequence)

	// A dispatch proves the connection is healthy again.
	shard.attempt.Store(0)

	RecordDispatch(shard.client.config.Identifier, msg.Type)

	switch msg.Type {
	case discord.EventTypeReady:
		var ready discord.Ready

		if err := halcyonjson.Unmarshal(msg.Data, &ready); err != nil {
			return fmt.Errorf("failed to unmarshal ready: %w", err)
		}

		shard.session.SessionEstablished(ready.SessionID, ready.ResumeGatewayURL)
		shard.client.user.Store(&ready.User)

		shard.logger.Info().
			Str("session_id", ready.SessionID).
			Int("guilds", len(ready.Guilds)).
			Msg("Received READY payload")

		shard.setStage(StageConnected)
		shard.signalReady()
	case discord.EventTypeResumed:
		shard.logger.Info().Msg("Received RESUMED payload")

		shard.setStage(StageConnected)
		shard.signalReady()
	case discord.EventTypeGuildMembersChunk:
		shard.observeGuildChunk(msg)
	}

	shard.client.dispatch(ctx, shard, msg)

	return nil
}

// gatewayOpHeartbeat answers a server-requested heartbeat immediately.
func gatewayOpHeartbeat(ctx context.Context, shard *Shard, _ *discord.GatewayPayload) error {
	return shard.sendHeartbeat(ctx)
}

// gatewayOpReconnect is the server asking us to reconnect and resume.
func gatewayOpReconnect(_ context.Context, shard *Shard, _ *discord.GatewayPayload) error {
	shard.logger.Info().Msg("Gateway requested reconnect")

	shard.session.MarkResumable(true)

	return errReconnectRequested
}

// gatewayOpInvalidSession carries a boolean indicating whether the session
// may still be resumed.
func gatewayOpInvalidSession(_ context.Context, shard *Shard, msg *discord.GatewayPayload) error {
	resumable := false

	if err := halcyonjson.Unmarshal(msg.Data, &resumable); err != nil {
		shard.logger.Warn().Err(err).Msg("Failed to unmarshal invalid session payload")
	}

	shard.logger.Warn().Bool("resumable", resumable).Msg("Gateway invalidated session")

	shard.session.MarkResumable(resumable)

	return errSessionInvalidated
}

// gatewayOpHello outside of the handshake means the connection was cycled
// underneath us; the handshake path consumes the expected Hello itself.
func gatewayOpHello(_ context.Context, shard *Shard, _ *discord.GatewayPayload) error {
	shard.logger.Debug().Msg("Received unexpected HELLO payload")

	return nil
}

func gatewayOpHeartbeatACK(_ context.Context, shard *Shard, _ *discord.GatewayPayload) error {
	if hb := shard.heartbeater; hb != nil {
		hb.Ack()

		RecordGatewayLatency(shard.client.config.Identifier, shard.shardID, hb.Latency())
	}

	return nil
}

func init() {
	RegisterGatewayEvent(discord.GatewayOpDispatch, gatewayOpDispatch)
	RegisterGatewayEvent(discord.GatewayOpHeartbeat, gatewayOpHeartbeat)
	RegisterGatewayEvent(discord.GatewayOpReconnect, gatewayOpReconnect)
	RegisterGatewayEvent(discord.GatewayOpInvalidSession, gatewayOpInvalidSession)
	RegisterGatewayEvent(discord.GatewayOpHello, gatewayOpHello)
	RegisterGatewayEvent(discord.GatewayOpHeartbeatACK, gatewayOpHeartbeatACK)
}
