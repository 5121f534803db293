package halcyon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/halcyon-dev/halcyon/discord"
	"github.com/halcyon-dev/halcyon/pkg/limiter"
	"github.com/halcyon-dev/halcyon/pkg/syncmap"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const Version = "1.2.0"

var (
	DefaultAPIBaseURL = "https://discord.com/api/v10"
	DefaultGatewayURL = "wss://gateway.discord.gg"

	// Minimum spacing between Identify payloads sharing a concurrency
	// bucket.
	IdentifyRatelimit = 5 * time.Second
)

// Config configures a Client. Zero values fall back to sensible defaults;
// only Token is mandatory.
type Config struct {
	// Identifier names this client in logs and metrics.
	Identifier string

	Token   string
	Intents discord.GatewayIntent

	// ShardCount is the total number of shards the bot runs across all
	// processes. ShardIDs lists the shards this client owns; when empty the
	// client runs every shard.
	ShardCount int32
	ShardIDs   []int32

	Presence       *discord.UpdateStatus
	LargeThreshold int32

	// APIBaseURL overrides the HTTP API used to discover the gateway URL.
	// GatewayURL skips discovery entirely.
	APIBaseURL string
	GatewayURL string

	HTTPClient *http.Client

	ReconnectPolicy ReconnectPolicy

	// IdentifyRatelimit overrides the spacing between Identify payloads
	// sharing a concurrency bucket.
	IdentifyRatelimit time.Duration

	// FailOnNonResumableClose makes a shard fail instead of re-identifying
	// when the gateway closes with a code that kills the session.
	FailOnNonResumableClose bool
}

// Client owns a set of shards and the resources they share: the gateway URL
// cache, identify ratelimits, the event dispatcher and the optional event
// producer.
type Client struct {
	logger zerolog.Logger
	config Config

	dispatcher *Dispatcher
	store      *Store
	producer   Producer

	retriever GatewayURLRetriever

	gatewayMu        sync.Mutex
	cachedGatewayURL string
	maxConcurrency   int32

	identifyLimiterMu sync.Mutex
	identifyLimiter   *limiter.ConcurrencyLimiter
	identifyBucket    *limiter.DurationLimiter

	shards syncmap.Map[int32, *Shard]

	guildChunks syncmap.Map[discord.Snowflake, *guildChunk]

	user *atomic.Pointer[discord.User]

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	errCh  chan error
}

// NewClient validates config and builds a client. No connection is made
// until Start.
func NewClient(logger zerolog.Logger, config Config) (*Client, error) {
	if config.Token == "" {
		return nil, ErrMissingToken
	}

	if config.Identifier == "" {
		config.Identifier = "halcyon"
	}

	if config.ShardCount < 1 {
		config.ShardCount = 1
	}

	if len(config.ShardIDs) == 0 {
		config.ShardIDs = make([]int32, 0, config.ShardCount)
		for shardID := int32(0); shardID < config.ShardCount; shardID++ {
			config.ShardIDs = append(config.ShardIDs, shardID)
		}
	}

	for _, shardID := range config.ShardIDs {
		if shardID < 0 || shardID >= config.ShardCount {
			return nil, fmt.Errorf("%w: shard %d of %d", ErrShardIDOutOfRange, shardID, config.ShardCount)
		}
	}

	if config.APIBaseURL == "" {
		config.APIBaseURL = DefaultAPIBaseURL
	}

	if config.ReconnectPolicy == (ReconnectPolicy{}) {
		config.ReconnectPolicy = DefaultReconnectPolicy()
	}

	if config.IdentifyRatelimit <= 0 {
		config.IdentifyRatelimit = IdentifyRatelimit
	}

	logger = logger.With().Str("identifier", config.Identifier).Logger()

	client := &Client{
		logger: logger,
		config: config,

		dispatcher: NewDispatcher(logger),
		store:      NewStore(),

		identifyBucket: limiter.NewDurationLimiter(1, config.IdentifyRatelimit),

		user: atomic.NewPointer[discord.User](nil),
	}

	client.retriever = NewHTTPGatewayRetriever(logger, config.HTTPClient, config.APIBaseURL, config.Token)

	return client, nil
}

// SetGatewayURLRetriever replaces the HTTP retriever. Must be called before
// Start.
func (c *Client) SetGatewayURLRetriever(retriever GatewayURLRetriever) {
	c.retriever = retriever
}

// WithProducer attaches an event producer; every dispatch frame is
// published to it. Must be called before Start.
func (c *Client) WithProducer(producer Producer) *Client {
	c.producer = producer

	return c
}

// AddEventHandler registers a decoded event handler.
func (c *Client) AddEventHandler(handler EventHandler) {
	c.dispatcher.AddHandler(handler)
}

// AddRawEventHandler registers a raw dispatch handler.
func (c *Client) AddRawEventHandler(handler RawEventHandler) {
	c.dispatcher.AddRawHandler(handler)
}

// AddRatelimitHandler registers an observer for HTTP ratelimit
// notifications.
func (c *Client) AddRatelimitHandler(handler func(RatelimitInfo)) {
	c.dispatcher.AddRatelimitHandler(handler)
}

// SetPanicHandler replaces the default event handler panic handler.
func (c *Client) SetPanicHandler(handler PanicHandler) {
	c.dispatcher.SetPanicHandler(handler)
}

// User returns the bot user from the last READY, or nil before the first.
func (c *Client) User() *discord.User {
	return c.user.Load()
}

// Shard returns the shard with the given id.
func (c *Client) Shard(shardID int32) (*Shard, bool) {
	return c.shards.Load(shardID)
}

// ShardStages returns the current stage of every shard.
func (c *Client) ShardStages() map[int32]ConnectionStage {
	stages := make(map[int32]ConnectionStage, c.shards.Count())

	c.shards.Range(func(shardID int32, shard *Shard) bool {
		stages[shardID] = shard.Stage()

		return true
	})

	return stages
}

// Start launches every configured shard. It returns immediately; use Wait
// to block until the client stops.
func (c *Client) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.cancel != nil {
		return errors.New("client already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.errCh = make(chan error, len(c.config.ShardIDs))

	c.logger.Info().
		Int32("shard_count", c.config.ShardCount).
		Int("shards", len(c.config.ShardIDs)).
		Msg("Starting client")

	if retriever, ok := c.retriever.(*HTTPGatewayRetriever); ok {
		go c.forwardRatelimits(ctx, retriever)
	}

	for _, shardID := range c.config.ShardIDs {
		shard := newShard(c, shardID, c.config.ShardCount)
		c.shards.Store(shardID, shard)

		c.wg.Add(1)

		go func() {
			defer c.wg.Done()

			if err := shard.Run(ctx); err != nil {
				shard.logger.Error().Err(err).Msg("Shard stopped with error")

				select {
				case c.errCh <- err:
				default:
				}

				cancel()
			}
		}()
	}

	return nil
}

// Wait blocks until every shard has stopped and returns the first fatal
// shard error, if any.
func (c *Client) Wait() error {
	c.wg.Wait()

	select {
	case err := <-c.errCh:
		return err
	default:
		return nil
	}
}

// Stop cancels every shard and waits for clean shutdown.
func (c *Client) Stop() error {
	c.runMu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.runMu.Unlock()

	if cancel == nil {
		return nil
	}

	c.logger.Info().Msg("Stopping client")

	cancel()

	return c.Wait()
}

// WaitForReady blocks until every shard reaches Connected.
func (c *Client) WaitForReady(ctx context.Context) error {
	var err error

	c.shards.Range(func(_ int32, shard *Shard) bool {
		err = shard.WaitForReady(ctx)

		return err == nil
	})

	return err
}

// gatewayURL returns the websocket URL shards should dial, fetching and
// caching it on first use.
func (c *Client) gatewayURL(ctx context.Context) (string, error) {
	if c.config.GatewayURL != "" {
		return c.config.GatewayURL, nil
	}

	c.gatewayMu.Lock()
	defer c.gatewayMu.Unlock()

	if c.cachedGatewayURL != "" {
		return c.cachedGatewayURL, nil
	}

	botGateway, err := c.retriever.GetGatewayBot(ctx)
	if err != nil {
		if errors.Is(err, ErrInvalidAuthentication) || errors.Is(err, ErrNoAuthentication) {
			return "", err
		}

		c.logger.Warn().Err(err).
			Str("fallback", DefaultGatewayURL).
			Msg("Failed to fetch gateway, using fallback URL")

		return DefaultGatewayURL, nil
	}

	c.cachedGatewayURL = botGateway.URL
	c.maxConcurrency = botGateway.SessionStartLimit.MaxConcurrency

	c.logger.Debug().
		Str("url", botGateway.URL).
		Int32("recommended_shards", botGateway.Shards).
		Int32("max_concurrency", botGateway.SessionStartLimit.MaxConcurrency).
		Int32("remaining_starts", botGateway.SessionStartLimit.Remaining).
		Msg("Fetched gateway")

	return c.cachedGatewayURL, nil
}

// waitForIdentify blocks the shard until an identify slot is free.
func (c *Client) waitForIdentify(ctx context.Context, shard *Shard) error {
	identifyLimiter := c.getIdentifyLimiter()

	ticket := identifyLimiter.Wait()
	defer identifyLimiter.FreeTicket(ticket)

	c.identifyBucket.Lock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (c *Client) getIdentifyLimiter() *limiter.ConcurrencyLimiter {
	c.identifyLimiterMu.Lock()
	defer c.identifyLimiterMu.Unlock()

	if c.identifyLimiter == nil {
		c.gatewayMu.Lock()
		maxConcurrency := c.maxConcurrency
		c.gatewayMu.Unlock()

		if maxConcurrency < 1 {
			maxConcurrency = 1
		}

		c.identifyLimiter = limiter.NewConcurrencyLimiter(int(maxConcurrency))
	}

	return c.identifyLimiter
}

// dispatch fans a dispatch frame out to event handlers and, when attached,
// the producer. The read loop does not wait for either.
func (c *Client) dispatch(ctx context.Context, shard *Shard, msg *discord.GatewayPayload) {
	eventCtx := shard.NewContext(ctx)

	c.dispatcher.Dispatch(eventCtx, msg)

	if c.producer != nil {
		go func() {
			if err := c.producer.Publish(ctx, shard, msg); err != nil {
				shard.logger.Warn().Err(err).
					Str("type", msg.Type).
					Msg("Failed to publish event")
			}
		}()
	}
}

func (c *Client) forwardRatelimits(ctx context.Context, retriever *HTTPGatewayRetriever) {
	for {
		select {
		case <-ctx.Done():
			return
		case info := <-retriever.Ratelimits():
			c.dispatcher.DispatchRatelimit(info)
		}
	}
}
