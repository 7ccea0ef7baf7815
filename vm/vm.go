// Package vm hosts a separately booted Java virtual machine that runs script
// interpreters such as BeanShell. The VM is booted at most once per Runtime;
// its standard streams are routed to a sink.Console line by line.
package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/caffeineduck/runsheet/sink"
)

var (
	// ErrAlreadyBooted is reported by a Launcher whose VM is already up.
	// Boot treats it as success.
	ErrAlreadyBooted = errors.New("vm: already booted")

	// ErrNotReady is returned by RunMain before a successful Boot.
	ErrNotReady = errors.New("vm: runtime not booted")
)

// State is the boot state of a Runtime.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ScriptMode selects how script text reaches the interpreter's main class.
type ScriptMode int

const (
	// ScriptModeEval passes the script inline: `-e <content>`.
	ScriptModeEval ScriptMode = iota
	// ScriptModeFile writes the script to a temp file and passes its path.
	ScriptModeFile
)

func (m ScriptMode) String() string {
	if m == ScriptModeFile {
		return "file"
	}
	return "eval"
}

// ParseScriptMode maps "eval" and "file" onto a ScriptMode.
func ParseScriptMode(s string) (ScriptMode, error) {
	switch s {
	case "", "eval":
		return ScriptModeEval, nil
	case "file":
		return ScriptModeFile, nil
	}
	return ScriptModeEval, fmt.Errorf("unknown script mode %q", s)
}

// Invocation is one `java -cp Classpath MainClass Args...` call.
type Invocation struct {
	MainClass string
	Classpath string
	Args      []string
}

// Launcher starts JVM processes.
type Launcher interface {
	Name() string
	// Boot prepares the launcher; it is called once per Runtime.
	Boot(ctx context.Context) error
	// Run executes inv and returns its exit code. A non-nil error means the
	// VM could not run the invocation at all.
	Run(ctx context.Context, inv Invocation, stdout, stderr io.Writer) (int, error)
}

// Options configures a Runtime.
type Options struct {
	// Classpath is the local archive holding the script interpreter.
	Classpath string
	// MainClass is the interpreter entry point, bsh.Interpreter by default.
	MainClass  string
	ScriptMode ScriptMode
	// FailOnExitCode makes a non-zero exit an error outcome instead of a
	// trailer on otherwise successful output.
	FailOnExitCode bool
	Logger         *slog.Logger
}

// DefaultMainClass is the BeanShell interpreter entry point.
const DefaultMainClass = "bsh.Interpreter"

// Runtime is a boot-once handle on a Launcher.
type Runtime struct {
	mu       sync.Mutex
	state    State
	bootErr  error
	launcher Launcher
	console  *sink.Console
	opts     Options
}

// New returns an uninitialized Runtime. A nil console means sink.Default().
func New(l Launcher, console *sink.Console, opts Options) *Runtime {
	if console == nil {
		console = sink.Default()
	}
	if opts.MainClass == "" {
		opts.MainClass = DefaultMainClass
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runtime{launcher: l, console: console, opts: opts}
}

// Boot starts the VM once. A failed boot is remembered and returned on every
// later call without retrying. A boot cut short by ctx is not remembered; the
// next call tries again.
func (r *Runtime) Boot(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateReady:
		return nil
	case StateFailed:
		return r.bootErr
	}

	err := r.launcher.Boot(ctx)
	if err != nil && !errors.Is(err, ErrAlreadyBooted) {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.opts.Logger.Warn("vm boot interrupted", "launcher", r.launcher.Name(), "error", err)
			return fmt.Errorf("boot %s: %w", r.launcher.Name(), err)
		}
		r.state = StateFailed
		r.bootErr = fmt.Errorf("boot %s: %w", r.launcher.Name(), err)
		r.opts.Logger.Error("vm boot failed", "launcher", r.launcher.Name(), "error", err)
		return r.bootErr
	}

	r.state = StateReady
	r.opts.Logger.Info("vm ready", "launcher", r.launcher.Name())
	return nil
}

func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runtime) Options() Options {
	return r.opts
}

// Console returns the channel the VM's output lines are written to.
func (r *Runtime) Console() *sink.Console {
	return r.console
}

// RunMain runs mainClass on the booted VM. Each stdout line goes to
// Console().Log and each stderr line to Console().Error.
func (r *Runtime) RunMain(ctx context.Context, mainClass, classpath string, args ...string) (int, error) {
	if r.State() != StateReady {
		return 0, ErrNotReady
	}

	stdout := sink.NewLineFunc(r.console.Log)
	stderr := sink.NewLineFunc(r.console.Error)

	code, err := r.launcher.Run(ctx, Invocation{
		MainClass: mainClass,
		Classpath: classpath,
		Args:      args,
	}, stdout, stderr)

	stdout.Flush()
	stderr.Flush()
	return code, err
}
