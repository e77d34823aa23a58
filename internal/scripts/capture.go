package scripts

import (
	"bytes"
	"io"
	"sync"
)

// stderrTag prefixes captured stderr lines so operators can tell the streams
// apart in a single ordered transcript.
const stderrTag = "stderr| "

// lineCapture collects stdout and stderr lines incrementally into one
// bounded, ordered transcript. Both stream writers may be written from
// separate goroutines by the demuxer.
type lineCapture struct {
	mu        sync.Mutex
	lines     []string
	max       int
	truncated bool

	stdout streamWriter
	stderr streamWriter
}

func newLineCapture(maxLines int) *lineCapture {
	c := &lineCapture{max: maxLines}
	c.stdout = streamWriter{capture: c}
	c.stderr = streamWriter{capture: c, tag: stderrTag}
	return c
}

// Stdout returns the writer for the stdout stream.
func (c *lineCapture) Stdout() io.Writer { return &c.stdout }

// Stderr returns the writer for the stderr stream.
func (c *lineCapture) Stderr() io.Writer { return &c.stderr }

// Lines returns the captured transcript. Any buffered partial line is
// flushed first.
func (c *lineCapture) Lines() ([]string, bool) {
	c.stdout.flush()
	c.stderr.flush()

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out, c.truncated
}

// add appends a complete line, dropping it once the cap is reached.
func (c *lineCapture) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) >= c.max {
		c.truncated = true
		return
	}
	c.lines = append(c.lines, line)
}

// streamWriter splits a byte stream into lines, buffering partials.
type streamWriter struct {
	capture *lineCapture
	tag     string

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf.Write(p)
	var complete []string
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line: keep it buffered for the next write.
			w.buf.WriteString(line)
			break
		}
		complete = append(complete, trimEOL(line))
	}
	w.mu.Unlock()

	for _, line := range complete {
		w.capture.add(w.tag + line)
	}
	return len(p), nil
}

// flush emits any buffered partial line as a final line.
func (w *streamWriter) flush() {
	w.mu.Lock()
	rest := w.buf.String()
	w.buf.Reset()
	w.mu.Unlock()

	if rest != "" {
		w.capture.add(w.tag + rest)
	}
}

func trimEOL(s string) string {
	s = s[:len(s)-1] // trailing \n
	if len(s) > 0 && s[len(s)-1] == '\r' {
		s = s[:len(s)-1]
	}
	return s
}
