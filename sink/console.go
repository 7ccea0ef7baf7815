package sink

import (
	"log/slog"
	"sync"
)

// Printer is a process-level logging channel: the place a hosted VM sends
// its standard output and standard error lines.
type Printer interface {
	Log(msg string)
	Error(msg string)
}

// ErrorPrefix marks lines that arrived on the error channel.
const ErrorPrefix = "Error: "

// Console routes Log and Error to the currently installed Printer.
// Capture temporarily layers a tee over the current printer and hands back
// the function that puts the previous one back.
type Console struct {
	mu      sync.Mutex
	current Printer
}

// NewConsole returns a Console forwarding to p.
func NewConsole(p Printer) *Console {
	return &Console{current: p}
}

var (
	defaultConsole     *Console
	defaultConsoleOnce sync.Once
)

// Default returns the process-wide Console, which forwards to slog.Default().
func Default() *Console {
	defaultConsoleOnce.Do(func() {
		defaultConsole = NewConsole(SlogPrinter{})
	})
	return defaultConsole
}

// Current returns the installed printer. Comparing the values returned
// before and after a Capture/release pair shows the release restored it.
func (c *Console) Current() Printer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Console) Log(msg string) {
	if p := c.Current(); p != nil {
		p.Log(msg)
	}
}

func (c *Console) Error(msg string) {
	if p := c.Current(); p != nil {
		p.Error(msg)
	}
}

// Capture installs a printer that appends every message to s and then
// forwards it to the printer that was installed before. Error messages are
// recorded with ErrorPrefix.
//
// The returned release restores the previous printer; it is safe to call
// more than once and must be deferred by the caller.
func (c *Console) Capture(s *Sink) (release func()) {
	c.mu.Lock()
	prev := c.current
	tee := &teePrinter{sink: s, next: prev}
	c.current = tee
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.current = prev
			c.mu.Unlock()
		})
	}
}

type teePrinter struct {
	sink *Sink
	next Printer
}

func (t *teePrinter) Log(msg string) {
	t.sink.Append(msg)
	if t.next != nil {
		t.next.Log(msg)
	}
}

func (t *teePrinter) Error(msg string) {
	t.sink.Append(ErrorPrefix + msg)
	if t.next != nil {
		t.next.Error(msg)
	}
}

// SlogPrinter forwards console lines to a structured logger.
// A nil Logger means slog.Default() at the time of the call.
type SlogPrinter struct {
	Logger *slog.Logger
}

func (p SlogPrinter) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p SlogPrinter) Log(msg string) {
	p.logger().Info(msg, "component", "console")
}

func (p SlogPrinter) Error(msg string) {
	p.logger().Error(msg, "component", "console")
}
