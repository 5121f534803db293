package halcyon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/halcyon-dev/halcyon/discord"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// gatewayScript drives one accepted gateway connection.
type gatewayScript func(ctx context.Context, conn *websocket.Conn)

// newGatewayServer runs a fake gateway. Each accepted connection runs the
// next script; the last script is reused for any further connections.
func newGatewayServer(t *testing.T, scripts ...gatewayScript) string {
	t.Helper()

	var mu sync.Mutex
	connections := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}

		mu.Lock()
		index := connections
		connections++
		mu.Unlock()

		if index >= len(scripts) {
			index = len(scripts) - 1
		}

		scripts[index](r.Context(), conn)
	}))

	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func writeGatewayPayload(ctx context.Context, conn *websocket.Conn, op discord.GatewayOp, data any, sequence int64, eventType string) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(discord.GatewayPayload{
		Op:       op,
		Data:     body,
		Sequence: sequence,
		Type:     eventType,
	})
	if err != nil {
		return err
	}

	return conn.Write(ctx, websocket.MessageText, payload)
}

func writeHello(ctx context.Context, conn *websocket.Conn, interval int32) error {
	return writeGatewayPayload(ctx, conn, discord.GatewayOpHello, discord.Hello{HeartbeatInterval: interval}, 0, "")
}

func readSentPayload(ctx context.Context, conn *websocket.Conn) (discord.GatewayOp, json.RawMessage, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return 0, nil, err
	}

	var sent struct {
		Op   discord.GatewayOp `json:"op"`
		Data json.RawMessage   `json:"d"`
	}

	if err = json.Unmarshal(data, &sent); err != nil {
		return 0, nil, err
	}

	return sent.Op, sent.Data, nil
}

func newTestClient(t *testing.T, gatewayURL string) *Client {
	t.Helper()

	client, err := NewClient(zerolog.Nop(), Config{
		Token:      "token",
		GatewayURL: gatewayURL,
		ReconnectPolicy: ReconnectPolicy{
			BaseDelay:   10 * time.Millisecond,
			MaxDelay:    50 * time.Millisecond,
			MaxAttempts: 5,
		},
		IdentifyRatelimit: time.Millisecond,
	})
	require.NoError(t, err)

	return client
}

func runShard(t *testing.T, client *Client) (*Shard, context.CancelFunc, chan error) {
	t.Helper()

	shard := newShard(client, 0, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- shard.Run(ctx)
	}()

	t.Cleanup(cancel)

	return shard, cancel, done
}

func waitForStage(t *testing.T, shard *Shard, stage ConnectionStage) {
	t.Helper()

	assert.Eventually(t, func() bool {
		return shard.Stage() == stage
	}, 5*time.Second, 10*time.Millisecond)
}

func TestShardIdentifyAndReady(t *testing.T) {
	identified := make(chan discord.Identify, 1)

	gatewayURL := newGatewayServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if writeHello(ctx, conn, 45000) != nil {
			return
		}

		for {
			op, data, err := readSentPayload(ctx, conn)
			if err != nil {
				return
			}

			switch op {
			case discord.GatewayOpHeartbeat:
				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpHeartbeatACK, nil, 0, "")
			case discord.GatewayOpIdentify:
				var identify discord.Identify
				_ = json.Unmarshal(data, &identify)

				select {
				case identified <- identify:
				default:
				}

				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpDispatch, discord.Ready{
					SessionID: "session-id",
					User:      discord.User{Username: "testbot", Bot: true},
				}, 1, discord.EventTypeReady)
			}
		}
	})

	client := newTestClient(t, gatewayURL)
	shard, cancel, done := runShard(t, client)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	require.NoError(t, shard.WaitForReady(waitCtx))
	assert.Equal(t, StageConnected, shard.Stage())

	identify := <-identified
	assert.Equal(t, "token", identify.Token)
	assert.Equal(t, [2]int32{0, 1}, identify.Shard)
	assert.True(t, identify.Compress)

	assert.Equal(t, "session-id", shard.Session().SessionID())
	assert.Equal(t, int64(1), shard.Session().Sequence())

	require.NotNil(t, client.User())
	assert.Equal(t, "testbot", client.User().Username)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("expected shard to shut down")
	}
}

func TestShardResumesAfterRecoverableClose(t *testing.T) {
	resumed := make(chan discord.Resume, 1)

	first := func(ctx context.Context, conn *websocket.Conn) {
		if writeHello(ctx, conn, 45000) != nil {
			return
		}

		for {
			op, _, err := readSentPayload(ctx, conn)
			if err != nil {
				return
			}

			switch op {
			case discord.GatewayOpHeartbeat:
				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpHeartbeatACK, nil, 0, "")
			case discord.GatewayOpIdentify:
				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpDispatch, discord.Ready{
					SessionID: "session-id",
				}, 1, discord.EventTypeReady)

				// Recoverable closure straight after the session settles.
				_ = conn.Close(websocket.StatusCode(4000), "reconnecting")

				return
			}
		}
	}

	second := func(ctx context.Context, conn *websocket.Conn) {
		if writeHello(ctx, conn, 45000) != nil {
			return
		}

		for {
			op, data, err := readSentPayload(ctx, conn)
			if err != nil {
				return
			}

			switch op {
			case discord.GatewayOpHeartbeat:
				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpHeartbeatACK, nil, 0, "")
			case discord.GatewayOpResume:
				var resume discord.Resume
				_ = json.Unmarshal(data, &resume)

				select {
				case resumed <- resume:
				default:
				}

				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpDispatch, discord.Resumed{}, 2, discord.EventTypeResumed)
			}
		}
	}

	gatewayURL := newGatewayServer(t, first, second)

	client := newTestClient(t, gatewayURL)
	shard, _, _ := runShard(t, client)

	select {
	case resume := <-resumed:
		assert.Equal(t, "token", resume.Token)
		assert.Equal(t, "session-id", resume.SessionID)
		assert.Equal(t, int64(1), resume.Sequence)
	case <-time.After(5 * time.Second):
		t.Fatal("expected shard to resume")
	}

	waitForStage(t, shard, StageConnected)
}

func TestShardReidentifiesAfterInvalidSession(t *testing.T) {
	identifies := make(chan struct{}, 2)

	first := func(ctx context.Context, conn *websocket.Conn) {
		if writeHello(ctx, conn, 45000) != nil {
			return
		}

		for {
			op, _, err := readSentPayload(ctx, conn)
			if err != nil {
				return
			}

			if op == discord.GatewayOpIdentify {
				identifies <- struct{}{}

				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpInvalidSession, false, 0, "")
			}
		}
	}

	second := func(ctx context.Context, conn *websocket.Conn) {
		if writeHello(ctx, conn, 45000) != nil {
			return
		}

		for {
			op, _, err := readSentPayload(ctx, conn)
			if err != nil {
				return
			}

			switch op {
			case discord.GatewayOpHeartbeat:
				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpHeartbeatACK, nil, 0, "")
			case discord.GatewayOpIdentify:
				identifies <- struct{}{}

				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpDispatch, discord.Ready{
					SessionID: "fresh-session",
				}, 1, discord.EventTypeReady)
			}
		}
	}

	gatewayURL := newGatewayServer(t, first, second)

	client := newTestClient(t, gatewayURL)
	shard, _, _ := runShard(t, client)

	for i := 0; i < 2; i++ {
		select {
		case <-identifies:
		case <-time.After(5 * time.Second):
			t.Fatal("expected shard to identify again")
		}
	}

	waitForStage(t, shard, StageConnected)
	assert.Equal(t, "fresh-session", shard.Session().SessionID())
}

func TestShardFailsOnInvalidAuthentication(t *testing.T) {
	gatewayURL := newGatewayServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if writeHello(ctx, conn, 45000) != nil {
			return
		}

		for {
			op, _, err := readSentPayload(ctx, conn)
			if err != nil {
				return
			}

			if op == discord.GatewayOpIdentify {
				_ = conn.Close(websocket.StatusCode(discord.CloseAuthenticationFailed), "Authentication failed.")

				return
			}
		}
	})

	client := newTestClient(t, gatewayURL)
	_, _, done := runShard(t, client)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrInvalidAuthentication)
	case <-time.After(5 * time.Second):
		t.Fatal("expected shard to fail")
	}
}

func TestShardFailsOnNonResumableCloseWhenConfigured(t *testing.T) {
	gatewayURL := newGatewayServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if writeHello(ctx, conn, 45000) != nil {
			return
		}

		for {
			op, _, err := readSentPayload(ctx, conn)
			if err != nil {
				return
			}

			if op == discord.GatewayOpIdentify {
				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpDispatch, discord.Ready{
					SessionID: "session-id",
				}, 1, discord.EventTypeReady)

				_ = conn.Close(websocket.StatusCode(discord.CloseSessionTimeout), "Session timed out.")

				return
			}
		}
	})

	client, err := NewClient(zerolog.Nop(), Config{
		Token:                   "token",
		GatewayURL:              gatewayURL,
		FailOnNonResumableClose: true,
		IdentifyRatelimit:       time.Millisecond,
	})
	require.NoError(t, err)

	shard, _, done := runShard(t, client)

	select {
	case err := <-done:
		var closeError CloseError

		require.ErrorAs(t, err, &closeError)
		assert.Equal(t, websocket.StatusCode(discord.CloseSessionTimeout), closeError.Code)
	case <-time.After(5 * time.Second):
		t.Fatal("expected shard to fail")
	}

	assert.False(t, shard.Session().Resumable())
	assert.Empty(t, shard.Session().SessionID())
}

func TestShardReconnectsOnMissedHeartbeatAcks(t *testing.T) {
	resumed := make(chan struct{}, 1)

	// Never acks heartbeats, so the failure window forces a reconnect.
	first := func(ctx context.Context, conn *websocket.Conn) {
		if writeHello(ctx, conn, 50) != nil {
			return
		}

		for {
			op, _, err := readSentPayload(ctx, conn)
			if err != nil {
				return
			}

			if op == discord.GatewayOpIdentify {
				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpDispatch, discord.Ready{
					SessionID: "session-id",
				}, 1, discord.EventTypeReady)
			}
		}
	}

	second := func(ctx context.Context, conn *websocket.Conn) {
		if writeHello(ctx, conn, 45000) != nil {
			return
		}

		for {
			op, _, err := readSentPayload(ctx, conn)
			if err != nil {
				return
			}

			switch op {
			case discord.GatewayOpHeartbeat:
				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpHeartbeatACK, nil, 0, "")
			case discord.GatewayOpResume:
				select {
				case resumed <- struct{}{}:
				default:
				}

				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpDispatch, discord.Resumed{}, 2, discord.EventTypeResumed)
			}
		}
	}

	gatewayURL := newGatewayServer(t, first, second)

	client := newTestClient(t, gatewayURL)
	shard, _, _ := runShard(t, client)

	select {
	case <-resumed:
	case <-time.After(10 * time.Second):
		t.Fatal("expected shard to resume after missed acks")
	}

	waitForStage(t, shard, StageConnected)
}

func TestShardChunkGuild(t *testing.T) {
	guildID := discord.Snowflake(1000)

	gatewayURL := newGatewayServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if writeHello(ctx, conn, 45000) != nil {
			return
		}

		for {
			op, data, err := readSentPayload(ctx, conn)
			if err != nil {
				return
			}

			switch op {
			case discord.GatewayOpHeartbeat:
				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpHeartbeatACK, nil, 0, "")
			case discord.GatewayOpIdentify:
				_ = writeGatewayPayload(ctx, conn, discord.GatewayOpDispatch, discord.Ready{
					SessionID: "session-id",
				}, 1, discord.EventTypeReady)
			case discord.GatewayOpRequestGuildMembers:
				var request discord.RequestGuildMembers
				_ = json.Unmarshal(data, &request)

				for index := int32(0); index < 2; index++ {
					_ = writeGatewayPayload(ctx, conn, discord.GatewayOpDispatch, discord.GuildMembersChunk{
						GuildID:    request.GuildID,
						ChunkIndex: index,
						ChunkCount: 2,
						Nonce:      request.Nonce,
					}, int64(2+index), discord.EventTypeGuildMembersChunk)
				}
			}
		}
	})

	client := newTestClient(t, gatewayURL)
	shard, _, _ := runShard(t, client)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()

	require.NoError(t, shard.WaitForReady(waitCtx))

	chunkCtx, chunkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer chunkCancel()

	require.NoError(t, shard.ChunkGuild(chunkCtx, guildID, ChunkGuildFilter{}))
}

func TestShardChunkGuildFilterValidation(t *testing.T) {
	client := newTestClient(t, "ws://localhost:1")
	shard := newShard(client, 0, 1)

	query := "name"

	err := shard.ChunkGuild(context.Background(), discord.Snowflake(1), ChunkGuildFilter{
		Query:   &query,
		UserIDs: []discord.Snowflake{discord.Snowflake(2)},
	})
	assert.ErrorIs(t, err, ErrChunkFilterExclusive)
}
