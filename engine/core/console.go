package core

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-editor/engine/containers"
)

const DefaultConsoleCapacity = 128

// Console is the bounded text sink shown in the editor's output pane.
// Writers append; the UI snapshots it with Lines.
type Console struct {
	mu    sync.Mutex
	lines *containers.RingQueue[string]
}

func NewConsole(capacity int) *Console {
	if capacity <= 0 {
		capacity = DefaultConsoleCapacity
	}
	return &Console{
		lines: containers.NewRingQueue[string](capacity),
	}
}

func (c *Console) Printf(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	c.mu.Lock()
	c.lines.Push(line)
	c.mu.Unlock()
	LogDebug("console: %s", line)
}

func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines.Items()
}
