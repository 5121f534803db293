package halcyon

import (
	"runtime/debug"
	"sync"

	"github.com/halcyon-dev/halcyon/discord"
	"github.com/halcyon-dev/halcyon/halcyonjson"
	"github.com/rs/zerolog"
)

// EventHandler receives decoded gateway events. Each invocation runs on its
// own goroutine, so the gateway read loop is never blocked by a slow
// handler. Embed NoopEventHandler to implement only the events you care
// about.
type EventHandler interface {
	OnReady(ctx *Context, ready discord.Ready)
	OnResumed(ctx *Context)
	OnGuildCreate(ctx *Context, guild discord.Guild)
	OnGuildDelete(ctx *Context, guild discord.UnavailableGuild)
	OnGuildMembersChunk(ctx *Context, chunk discord.GuildMembersChunk)
	OnMessageCreate(ctx *Context, message discord.Message)
}

// NoopEventHandler implements EventHandler with empty methods.
type NoopEventHandler struct{}

func (NoopEventHandler) OnReady(*Context, discord.Ready)                         {}
func (NoopEventHandler) OnResumed(*Context)                                      {}
func (NoopEventHandler) OnGuildCreate(*Context, discord.Guild)                   {}
func (NoopEventHandler) OnGuildDelete(*Context, discord.UnavailableGuild)        {}
func (NoopEventHandler) OnGuildMembersChunk(*Context, discord.GuildMembersChunk) {}
func (NoopEventHandler) OnMessageCreate(*Context, discord.Message)               {}

// RawEventHandler receives every dispatch frame before decoding. The
// payload must be treated as read-only; it is shared between handlers.
type RawEventHandler interface {
	OnRawEvent(ctx *Context, msg *discord.GatewayPayload)
}

// PanicHandler is invoked when an event handler panics. The default logs
// the panic with a stack trace.
type PanicHandler func(ctx *Context, recovered any)

// Dispatcher fans decoded events out to registered handlers. Registration
// is safe at any time, including whilst shards are connected.
type Dispatcher struct {
	logger zerolog.Logger

	mu                sync.RWMutex
	handlers          []EventHandler
	rawHandlers       []RawEventHandler
	ratelimitHandlers []func(RatelimitInfo)

	panicHandler PanicHandler
}

func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logger,
	}
}

// AddHandler registers a decoded event handler.
func (d *Dispatcher) AddHandler(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers = append(d.handlers, handler)
}

// AddRawHandler registers a raw dispatch handler.
func (d *Dispatcher) AddRawHandler(handler RawEventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rawHandlers = append(d.rawHandlers, handler)
}

// AddRatelimitHandler registers an observer for ratelimit notifications
// from the HTTP gateway endpoint.
func (d *Dispatcher) AddRatelimitHandler(handler func(RatelimitInfo)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ratelimitHandlers = append(d.ratelimitHandlers, handler)
}

// SetPanicHandler replaces the default panic handler.
func (d *Dispatcher) SetPanicHandler(handler PanicHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.panicHandler = handler
}

// Dispatch decodes the frame once per event type and invokes every
// registered handler on its own goroutine.
func (d *Dispatcher) Dispatch(ctx *Context, msg *discord.GatewayPayload) {
	d.mu.RLock()
	handlers := d.handlers
	rawHandlers := d.rawHandlers
	d.mu.RUnlock()

	for _, handler := range rawHandlers {
		handler := handler

		go d.invoke(ctx, func() { handler.OnRawEvent(ctx, msg) })
	}

	if len(handlers) == 0 {
		return
	}

	switch msg.Type {
	case discord.EventTypeReady:
		var ready discord.Ready

		if !d.decode(ctx, msg, &ready) {
			return
		}

		for _, handler := range handlers {
			handler := handler

			go d.invoke(ctx, func() { handler.OnReady(ctx, ready) })
		}
	case discord.EventTypeResumed:
		for _, handler := range handlers {
			handler := handler

			go d.invoke(ctx, func() { handler.OnResumed(ctx) })
		}
	case discord.EventTypeGuildCreate:
		var guild discord.Guild

		if !d.decode(ctx, msg, &guild) {
			return
		}

		for _, handler := range handlers {
			handler := handler

			go d.invoke(ctx, func() { handler.OnGuildCreate(ctx, guild) })
		}
	case discord.EventTypeGuildDelete:
		var guild discord.UnavailableGuild

		if !d.decode(ctx, msg, &guild) {
			return
		}

		for _, handler := range handlers {
			handler := handler

			go d.invoke(ctx, func() { handler.OnGuildDelete(ctx, guild) })
		}
	case discord.EventTypeGuildMembersChunk:
		var chunk discord.GuildMembersChunk

		if !d.decode(ctx, msg, &chunk) {
			return
		}

		for _, handler := range handlers {
			handler := handler

			go d.invoke(ctx, func() { handler.OnGuildMembersChunk(ctx, chunk) })
		}
	case discord.EventTypeMessageCreate:
		var message discord.Message

		if !d.decode(ctx, msg, &message) {
			return
		}

		for _, handler := range handlers {
			handler := handler

			go d.invoke(ctx, func() { handler.OnMessageCreate(ctx, message) })
		}
	}
}

// DispatchRatelimit forwards a ratelimit notification to registered
// observers.
func (d *Dispatcher) DispatchRatelimit(info RatelimitInfo) {
	d.mu.RLock()
	handlers := d.ratelimitHandlers
	d.mu.RUnlock()

	for _, handler := range handlers {
		handler := handler

		go d.invoke(nil, func() { handler(info) })
	}
}

func (d *Dispatcher) decode(ctx *Context, msg *discord.GatewayPayload, out any) bool {
	if err := halcyonjson.Unmarshal(msg.Data, out); err != nil {
		d.logger.Error().Err(err).
			Str("type", msg.Type).
			Msg("Failed to unmarshal dispatch payload")

		return false
	}

	return true
}

func (d *Dispatcher) invoke(ctx *Context, fn func()) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}

		d.mu.RLock()
		panicHandler := d.panicHandler
		d.mu.RUnlock()

		if panicHandler != nil {
			panicHandler(ctx, recovered)

			return
		}

		d.logger.Error().
			Interface("panic", recovered).
			Str("stack", string(debug.Stack())).
			Msg("Recovered panic in event handler")
	}()

	fn()
}
