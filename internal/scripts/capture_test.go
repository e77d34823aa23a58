package scripts

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineCaptureSplitsAndOrders(t *testing.T) {
	c := newLineCapture(100)

	fmt.Fprint(c.Stdout(), "first\nsecond\n")
	fmt.Fprint(c.Stderr(), "warn\n")
	fmt.Fprint(c.Stdout(), "third\n")

	lines, truncated := c.Lines()
	assert.False(t, truncated)
	assert.Equal(t, []string{"first", "second", "stderr| warn", "third"}, lines)
}

func TestLineCaptureBuffersPartialWrites(t *testing.T) {
	c := newLineCapture(100)

	fmt.Fprint(c.Stdout(), "hel")
	fmt.Fprint(c.Stdout(), "lo\nwor")

	lines, _ := c.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "hello", lines[0])
	assert.Equal(t, "wor", lines[1], "partial line is flushed on read")
}

func TestLineCaptureTrimsCRLF(t *testing.T) {
	c := newLineCapture(100)

	fmt.Fprint(c.Stdout(), "windows\r\n")

	lines, _ := c.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "windows", lines[0])
}

func TestLineCaptureTruncatesAtCap(t *testing.T) {
	c := newLineCapture(2)

	for i := 0; i < 5; i++ {
		fmt.Fprintf(c.Stdout(), "line %d\n", i)
	}

	lines, truncated := c.Lines()
	assert.Equal(t, []string{"line 0", "line 1"}, lines)
	assert.True(t, truncated)
}
