package halcyon

import (
	"context"
	"testing"
	"time"

	"github.com/halcyon-dev/halcyon/discord"
	"github.com/halcyon-dev/halcyon/halcyonjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	NoopEventHandler

	ready    chan discord.Ready
	messages chan discord.Message
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		ready:    make(chan discord.Ready, 1),
		messages: make(chan discord.Message, 1),
	}
}

func (h *recordingHandler) OnReady(_ *Context, ready discord.Ready) {
	h.ready <- ready
}

func (h *recordingHandler) OnMessageCreate(_ *Context, message discord.Message) {
	h.messages <- message
}

type recordingRawHandler struct {
	events chan *discord.GatewayPayload
}

func (h *recordingRawHandler) OnRawEvent(_ *Context, msg *discord.GatewayPayload) {
	h.events <- msg
}

func dispatchPayload(t *testing.T, eventType string, data any) *discord.GatewayPayload {
	t.Helper()

	body, err := halcyonjson.Marshal(data)
	require.NoError(t, err)

	return &discord.GatewayPayload{
		Op:   discord.GatewayOpDispatch,
		Data: body,
		Type: eventType,
	}
}

func testContext() *Context {
	return &Context{Context: context.Background()}
}

func TestDispatcherDecodesOnceAndFansOut(t *testing.T) {
	dispatcher := NewDispatcher(zerolog.Nop())

	first := newRecordingHandler()
	second := newRecordingHandler()

	dispatcher.AddHandler(first)
	dispatcher.AddHandler(second)

	dispatcher.Dispatch(testContext(), dispatchPayload(t, discord.EventTypeMessageCreate, discord.Message{
		ID:      discord.Snowflake(123),
		Content: "hello",
	}))

	for _, handler := range []*recordingHandler{first, second} {
		select {
		case message := <-handler.messages:
			assert.Equal(t, "hello", message.Content)
			assert.Equal(t, discord.Snowflake(123), message.ID)
		case <-time.After(time.Second):
			t.Fatal("expected handler to receive message")
		}
	}
}

func TestDispatcherRawHandler(t *testing.T) {
	dispatcher := NewDispatcher(zerolog.Nop())

	raw := &recordingRawHandler{events: make(chan *discord.GatewayPayload, 1)}
	dispatcher.AddRawHandler(raw)

	payload := dispatchPayload(t, "SOME_UNKNOWN_EVENT", map[string]string{"a": "b"})
	dispatcher.Dispatch(testContext(), payload)

	select {
	case received := <-raw.events:
		assert.Equal(t, "SOME_UNKNOWN_EVENT", received.Type)
	case <-time.After(time.Second):
		t.Fatal("expected raw handler to receive event")
	}
}

type panickingHandler struct {
	NoopEventHandler
}

func (panickingHandler) OnResumed(*Context) {
	panic("handler exploded")
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	dispatcher := NewDispatcher(zerolog.Nop())

	recovered := make(chan any, 1)
	dispatcher.SetPanicHandler(func(_ *Context, r any) {
		recovered <- r
	})

	dispatcher.AddHandler(panickingHandler{})
	dispatcher.Dispatch(testContext(), &discord.GatewayPayload{
		Op:   discord.GatewayOpDispatch,
		Type: discord.EventTypeResumed,
	})

	select {
	case r := <-recovered:
		assert.Equal(t, "handler exploded", r)
	case <-time.After(time.Second):
		t.Fatal("expected panic handler to be invoked")
	}
}

func TestDispatcherRatelimitObservers(t *testing.T) {
	dispatcher := NewDispatcher(zerolog.Nop())

	notified := make(chan RatelimitInfo, 1)
	dispatcher.AddRatelimitHandler(func(info RatelimitInfo) {
		notified <- info
	})

	dispatcher.DispatchRatelimit(RatelimitInfo{Remaining: 3, Global: true})

	select {
	case info := <-notified:
		assert.Equal(t, 3, info.Remaining)
		assert.True(t, info.Global)
	case <-time.After(time.Second):
		t.Fatal("expected ratelimit observer to be invoked")
	}
}
