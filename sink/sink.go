// Package sink captures the text an execution engine emits into an ordered
// line buffer, independent of the real process console.
package sink

import (
	"bytes"
	"strings"
	"sync"
)

// Sink is an ordered, concurrency-safe line buffer.
type Sink struct {
	mu    sync.Mutex
	lines []string
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{}
}

// Append adds one line.
func (s *Sink) Append(line string) {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
}

// Lines returns a copy of the captured lines.
func (s *Sink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// Join concatenates the captured lines with sep.
func (s *Sink) Join(sep string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, sep)
}

// Text returns the lines joined by newlines, or placeholder when the joined
// text is empty.
func (s *Sink) Text(placeholder string) string {
	if text := s.Join("\n"); text != "" {
		return text
	}
	return placeholder
}

func (s *Sink) Reset() {
	s.mu.Lock()
	s.lines = nil
	s.mu.Unlock()
}

// LineWriter adapts a byte stream to a line callback, one call per newline.
// A trailing partial line is held until the next write or Flush.
type LineWriter struct {
	emit func(string)
	mu   sync.Mutex
	buf  bytes.Buffer
}

// NewLineWriter returns a writer feeding s.
func NewLineWriter(s *Sink) *LineWriter {
	return &LineWriter{emit: s.Append}
}

// NewLineFunc returns a writer that calls emit for every completed line.
func NewLineFunc(emit func(string)) *LineWriter {
	return &LineWriter{emit: emit}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx == -1 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.emit(strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"))
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

// CharBuffer accumulates raw text exactly as written, for engines that emit
// output a few characters at a time.
type CharBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (c *CharBuffer) WriteString(s string) {
	c.mu.Lock()
	c.buf.WriteString(s)
	c.mu.Unlock()
}

func (c *CharBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *CharBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}
