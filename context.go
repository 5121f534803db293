package halcyon

import (
	"context"

	"github.com/rs/zerolog"
)

// Context is passed to every event handler invocation. It carries the shard
// the event arrived on, the owning client and the client's shared store.
type Context struct {
	context.Context

	Logger zerolog.Logger

	Shard  *Shard
	Client *Client
	Store  *Store
}

// NewContext builds the handler context for an event received on this
// shard.
func (shard *Shard) NewContext(ctx context.Context) *Context {
	return &Context{
		Context: ctx,

		Logger: shard.logger,

		Shard:  shard,
		Client: shard.client,
		Store:  shard.client.store,
	}
}
