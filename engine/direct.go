package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
	"github.com/caffeineduck/runsheet/sink"
)

// Console prefixes for the non-log channels of the injected console.
const (
	WarnPrefix  = "Warning: "
	ErrorPrefix = sink.ErrorPrefix
)

// DirectOptions configures the direct-evaluation adapter.
type DirectOptions struct {
	// Timeout interrupts a script that runs longer. Zero means no limit
	// beyond the context.
	Timeout time.Duration
}

// Direct evaluates JavaScript in-process. Every file gets a fresh goja
// runtime and its own console object; nothing else is isolated.
type Direct struct {
	opts DirectOptions
}

func NewDirect(opts DirectOptions) *Direct {
	return &Direct{opts: opts}
}

func (d *Direct) Kind() catalog.Kind { return catalog.KindDirect }

func (d *Direct) Available(Runtimes) error { return nil }

func (d *Direct) Run(ctx context.Context, f batch.SourceFile, _ Runtimes) (out Outcome) {
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	logs := sink.New()
	rt := goja.New()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			rt.Interrupt(context.Cause(ctx))
		case <-stop:
		}
	}()

	if err := evaluate(rt, f.Content, newConsole(rt, logs)); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return failure(fmt.Sprintf("Error: execution interrupted: %v", interrupted.Value()), err)
		}
		return failure(err.Error(), fmt.Errorf("%w: %v", ErrUserCode, err))
	}
	return success(logs.Text(Placeholder))
}

// evaluate compiles content as the body of function(console) and calls it.
func evaluate(rt *goja.Runtime, content string, console *goja.Object) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()

	fn, err := rt.RunString("(function(console){" + content + "\n})")
	if err != nil {
		return scriptError(err)
	}
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return errors.New("script did not compile to a function")
	}
	if _, err := call(goja.Undefined(), console); err != nil {
		return scriptError(err)
	}
	return nil
}

// scriptError reduces a thrown JS value to its toString() form.
func scriptError(err error) error {
	var exc *goja.Exception
	if errors.As(err, &exc) && exc.Value() != nil {
		return errors.New(exc.Value().String())
	}
	return err
}

func newConsole(rt *goja.Runtime, logs *sink.Sink) *goja.Object {
	console := rt.NewObject()
	channel := func(prefix string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			logs.Append(prefix + joinArgs(call.Arguments))
			return goja.Undefined()
		}
	}
	console.Set("log", channel(""))
	console.Set("warn", channel(WarnPrefix))
	console.Set("error", channel(ErrorPrefix))
	return console
}

// joinArgs mirrors Array.prototype.join(" "): null and undefined become "".
func joinArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a == nil || goja.IsUndefined(a) || goja.IsNull(a) {
			continue
		}
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}
