package halcyon

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/halcyon-dev/halcyon/discord"
	"github.com/halcyon-dev/halcyon/halcyonjson"
	"go.uber.org/atomic"
)

var (
	// MemberChunkLimit is the maximum number of user ids in one request.
	MemberChunkLimit = 100

	// MemberChunkTimeout is how long ChunkGuild waits between chunks before
	// giving up. The timer resets on every received chunk.
	MemberChunkTimeout = 10 * time.Second
)

// ChunkGuildFilter selects which members a ChunkGuild call requests. Query
// and UserIDs are mutually exclusive; the zero value requests every member.
type ChunkGuildFilter struct {
	// Query matches members whose username starts with it. An empty query
	// with no UserIDs matches everyone.
	Query *string

	// UserIDs requests specific members, at most MemberChunkLimit of them.
	UserIDs []discord.Snowflake

	// Limit caps how many members are returned for a Query. Zero means no
	// cap.
	Limit int32

	// Presences includes presence data in the chunks.
	Presences bool
}

type guildChunk struct {
	complete    *atomic.Bool
	chunks      chan chunkProgress
	startedAt   *atomic.Time
	completedAt *atomic.Time
}

type chunkProgress struct {
	index int32
	count int32
	nonce string
}

func newGuildChunk() *guildChunk {
	return &guildChunk{
		complete:    atomic.NewBool(false),
		chunks:      make(chan chunkProgress, 16),
		startedAt:   atomic.NewTime(time.Time{}),
		completedAt: atomic.NewTime(time.Time{}),
	}
}

// ChunkGuild requests members for a guild and blocks until every chunk has
// arrived, the timeout between chunks elapses or the context is cancelled.
// The decoded chunks themselves are delivered through the event dispatcher.
func (shard *Shard) ChunkGuild(ctx context.Context, guildID discord.Snowflake, filter ChunkGuildFilter) error {
	if filter.Query != nil && len(filter.UserIDs) > 0 {
		return ErrChunkFilterExclusive
	}

	userIDs := filter.UserIDs
	if len(userIDs) > MemberChunkLimit {
		userIDs = userIDs[:MemberChunkLimit]
	}

	query := filter.Query
	if query == nil && len(userIDs) == 0 {
		empty := ""
		query = &empty
	}

	gc, _ := shard.client.guildChunks.LoadOrStore(guildID, newGuildChunk())

	gc.complete.Store(false)
	gc.startedAt.Store(time.Now().UTC())

	nonce := strconv.FormatInt(time.Now().UnixNano(), 36)

	err := shard.SendEvent(ctx, discord.GatewayOpRequestGuildMembers, discord.RequestGuildMembers{
		GuildID:   guildID,
		Query:     query,
		Limit:     filter.Limit,
		Presences: filter.Presences,
		UserIDs:   userIDs,
		Nonce:     nonce,
	})
	if err != nil {
		return err
	}

	timeout := time.NewTimer(MemberChunkTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case progress := <-gc.chunks:
			// Chunks from a concurrent request carry a different nonce.
			if progress.nonce != "" && progress.nonce != nonce {
				continue
			}

			if !timeout.Stop() {
				select {
				case <-timeout.C:
				default:
				}
			}

			timeout.Reset(MemberChunkTimeout)

			if progress.index+1 >= progress.count {
				gc.complete.Store(true)
				gc.completedAt.Store(time.Now().UTC())

				shard.logger.Debug().
					Str("guild_id", guildID.String()).
					Int32("chunks", progress.count).
					Dur("elapsed", gc.completedAt.Load().Sub(gc.startedAt.Load())).
					Msg("Finished chunking guild")

				return nil
			}
		case <-timeout.C:
			return fmt.Errorf("%w: guild %s", ErrMemberChunkTimeout, guildID)
		}
	}
}

// observeGuildChunk feeds a received member chunk to any waiting ChunkGuild
// call. It never blocks the read loop.
func (shard *Shard) observeGuildChunk(msg *discord.GatewayPayload) {
	var chunk discord.GuildMembersChunk

	if err := halcyonjson.Unmarshal(msg.Data, &chunk); err != nil {
		shard.logger.Warn().Err(err).Msg("Failed to unmarshal guild members chunk")

		return
	}

	gc, ok := shard.client.guildChunks.Load(chunk.GuildID)
	if !ok || gc.complete.Load() {
		return
	}

	select {
	case gc.chunks <- chunkProgress{index: chunk.ChunkIndex, count: chunk.ChunkCount, nonce: chunk.Nonce}:
	default:
	}
}
