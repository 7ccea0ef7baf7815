package engine

import (
	"context"
	"time"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
	"github.com/caffeineduck/runsheet/sink"
)

// RuntimeErrorPrefix precedes interpreter failures in the output.
const RuntimeErrorPrefix = "Runtime Error: "

// NativePrompt is the message shown when the interpreter reads stdin.
const NativePrompt = "Input for C++ program:"

// NativeOptions configures the native-interpreter adapter.
type NativeOptions struct {
	// Yield is a pause before the interpreter takes over, so observers get
	// to render the running state. Zero disables it.
	Yield time.Duration
}

// DefaultNativeOptions returns the options used when none are given.
func DefaultNativeOptions() NativeOptions {
	return NativeOptions{Yield: 100 * time.Millisecond}
}

// Native hands C and C++ source to Runtimes.Interpreter with a
// character-level output buffer and a blocking prompt for input.
type Native struct {
	opts NativeOptions
}

func NewNative(opts NativeOptions) *Native {
	return &Native{opts: opts}
}

func (n *Native) Kind() catalog.Kind { return catalog.KindNative }

func (n *Native) Available(rt Runtimes) error {
	if rt.Interpreter == nil {
		return &UnavailableError{Engine: NativeEngineName}
	}
	return nil
}

func (n *Native) Run(ctx context.Context, f batch.SourceFile, rt Runtimes) (out Outcome) {
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	if rt.Interpreter == nil {
		return unavailable(NativeEngineName)
	}

	if n.opts.Yield > 0 {
		t := time.NewTimer(n.opts.Yield)
		select {
		case <-ctx.Done():
			t.Stop()
			return failure(RuntimeErrorPrefix+ctx.Err().Error(), ctx.Err())
		case <-t.C:
		}
	}

	var buf sink.CharBuffer
	stdio := Stdio{
		Write: buf.WriteString,
		Read:  func() string { return prompt(rt.Prompter, NativePrompt) },
	}

	if err := interpret(ctx, rt.Interpreter, f.Content, stdio); err != nil {
		return failure(RuntimeErrorPrefix+err.Error(), err)
	}

	if text := buf.String(); text != "" {
		return success(text)
	}
	return success(Placeholder)
}

func interpret(ctx context.Context, in Interpreter, source string, stdio Stdio) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return in.Interpret(ctx, source, stdio)
}

// prompt returns "" when there is no prompter or it fails.
func prompt(p Prompter, message string) string {
	if p == nil {
		return ""
	}
	line, err := p.Prompt(message)
	if err != nil {
		return ""
	}
	return line
}
