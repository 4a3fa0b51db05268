package core

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listener struct {
	name  string
	calls []string
}

func (l *listener) onEvent(code SystemEventCode, sender interface{}, inst interface{}, data EventContext) bool {
	l.calls = append(l.calls, data.Data.C[0])
	return l.name == "consumer"
}

func TestEventBusDispatchOrder(t *testing.T) {
	SetLogOutput(io.Discard)
	bus := NewEventBus()

	var order []string
	first := &listener{name: "first"}
	second := &listener{name: "second"}
	require.True(t, bus.Register(EVENT_CODE_RESIZED, first, func(c SystemEventCode, s, l interface{}, d EventContext) bool {
		order = append(order, "first")
		return false
	}))
	require.True(t, bus.Register(EVENT_CODE_RESIZED, second, func(c SystemEventCode, s, l interface{}, d EventContext) bool {
		order = append(order, "second")
		return false
	}))

	var ctx EventContext
	ctx.Data.U32[0] = 640
	ctx.Data.U32[1] = 480
	assert.False(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, []string{"first", "second"}, order)
	assert.False(t, bus.Fire(EVENT_CODE_KEY_PRESSED, nil, ctx))
}

func TestEventBusHandledStopsPropagation(t *testing.T) {
	SetLogOutput(io.Discard)
	bus := NewEventBus()

	consumer := &listener{name: "consumer"}
	late := &listener{name: "late"}
	require.True(t, bus.Register(EVENT_CODE_VISIBILITY, consumer, consumer.onEvent))
	require.True(t, bus.Register(EVENT_CODE_VISIBILITY, late, late.onEvent))

	var ctx EventContext
	ctx.Data.C[0] = "game"
	assert.True(t, bus.Fire(EVENT_CODE_VISIBILITY, nil, ctx))
	assert.Equal(t, []string{"game"}, consumer.calls)
	assert.Empty(t, late.calls)
}

func TestEventBusRegistration(t *testing.T) {
	SetLogOutput(io.Discard)
	bus := NewEventBus()

	l := &listener{name: "l"}
	require.True(t, bus.Register(EVENT_CODE_APPLICATION_QUIT, l, l.onEvent))
	assert.False(t, bus.Register(EVENT_CODE_APPLICATION_QUIT, l, l.onEvent), "duplicate listener")
	assert.False(t, bus.Register(EVENT_CODE_APPLICATION_QUIT, l, nil))

	other := &listener{name: "other"}
	assert.False(t, bus.Unregister(EVENT_CODE_APPLICATION_QUIT, other, other.onEvent))
	assert.True(t, bus.Unregister(EVENT_CODE_APPLICATION_QUIT, l, l.onEvent))
	assert.False(t, bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
	assert.Empty(t, l.calls)

	require.True(t, bus.Register(EVENT_CODE_APPLICATION_QUIT, l, l.onEvent))
	bus.Reset()
	assert.False(t, bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
}
