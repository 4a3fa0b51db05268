package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameMetricsZeroDelta(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < 100; i++ {
		assert.False(t, m.Update(0))
	}
	fps, avg := m.Frame()
	assert.Zero(t, fps)
	assert.Zero(t, avg)
}

func TestFrameMetricsSixtyHertz(t *testing.T) {
	m := NewFrameMetrics()
	delta := time.Second / 60

	refreshed := false
	for i := 0; i < 61; i++ {
		if m.Update(delta) {
			refreshed = true
		}
	}
	require.True(t, refreshed)

	fps, avg := m.Frame()
	assert.InDelta(t, 60.0, fps, 1.0)
	assert.InDelta(t, 16.67, avg, 0.1)
}

func TestTickSub(t *testing.T) {
	a := Tick(10 * time.Millisecond)
	b := Tick(26 * time.Millisecond)

	assert.Equal(t, 16*time.Millisecond, b.Sub(a))
	assert.Zero(t, a.Sub(b))
	assert.Zero(t, a.Sub(a))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(5), Clamp(uint32(1), 5, 10))
	assert.Equal(t, uint32(10), Clamp(uint32(11), 5, 10))
	assert.Equal(t, 7.5, Clamp(7.5, 5, 10))
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		" error ": ErrorLevel,
	} {
		got, ok := ParseLogLevel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseLogLevel("verbose")
	assert.False(t, ok)
}
