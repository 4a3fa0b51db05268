package core

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleKeepsLastEntries(t *testing.T) {
	SetLogOutput(io.Discard)

	c := NewConsole(4)
	for i := 0; i < 10; i++ {
		c.Printf("line %d", i)
	}
	lines := c.Lines()
	require.Len(t, lines, 4)
	assert.Equal(t, "line 6", lines[0])
	assert.Equal(t, "line 9", lines[3])
}

func TestConsoleDefaultCapacity(t *testing.T) {
	SetLogOutput(io.Discard)

	c := NewConsole(0)
	for i := 0; i < DefaultConsoleCapacity+5; i++ {
		c.Printf("%s", fmt.Sprint(i))
	}
	assert.Len(t, c.Lines(), DefaultConsoleCapacity)
}
