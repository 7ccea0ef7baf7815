// Package engine holds the four execution strategies runsheet dispatches
// source files to. Each adapter turns one file into an Outcome and never
// returns an error: failures are reported as error outcomes carrying the text
// a user should see.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
	"github.com/caffeineduck/runsheet/executor"
	"github.com/caffeineduck/runsheet/vm"
)

// Sentinel errors classifying an Outcome.
var (
	// ErrEngineUnavailable means the runtime an adapter needs was not supplied.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrInitFailed means the runtime was supplied but could not start.
	ErrInitFailed = errors.New("engine init failed")

	// ErrUserCode means the submitted source raised or failed to compile.
	ErrUserCode = errors.New("user code error")

	// ErrCapture means the adapter itself failed while output was captured.
	ErrCapture = errors.New("output capture failed")
)

// UnavailableError names the engine that was not loaded. Its text is the
// message shown in place of output.
type UnavailableError struct {
	Engine string
}

func (e *UnavailableError) Error() string {
	return "Error: " + e.Engine + " not loaded."
}

// Is reports whether target is ErrEngineUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrEngineUnavailable
}

// Engine names used in UnavailableError.
const (
	NativeEngineName   = "C++ Engine (picoc)"
	VMEngineName       = "Java VM runtime"
	EmbeddedEngineName = "Python runtime"
)

// Placeholder is the output recorded when a run printed nothing.
const Placeholder = batch.Placeholder

// Outcome is the terminal result of running one file.
type Outcome struct {
	Status batch.Status
	Output string
	// Skipped means the adapter did not touch the file; it keeps its
	// previous status and output.
	Skipped  bool
	Duration time.Duration
	// Err classifies an error outcome for logging. It is never shown.
	Err error
}

func success(output string) Outcome {
	return Outcome{Status: batch.StatusSuccess, Output: output}
}

func failure(output string, err error) Outcome {
	return Outcome{Status: batch.StatusError, Output: output, Err: err}
}

func unavailable(engine string) Outcome {
	err := &UnavailableError{Engine: engine}
	return failure(err.Error(), err)
}

// Adapter runs files of one catalog.Kind.
type Adapter interface {
	Kind() catalog.Kind
	// Available returns nil or an *UnavailableError.
	Available(rt Runtimes) error
	Run(ctx context.Context, f batch.SourceFile, rt Runtimes) Outcome
}

// Stdio is the character-level I/O contract of the native interpreter.
type Stdio struct {
	Write func(string)
	Read  func() string
}

// Interpreter runs C-family source synchronously.
type Interpreter interface {
	Interpret(ctx context.Context, source string, stdio Stdio) error
}

// Prompter asks the operator for one line of input, blocking until it arrives.
type Prompter interface {
	Prompt(message string) (string, error)
}

// PromptFunc adapts a function to Prompter.
type PromptFunc func(message string) (string, error)

func (f PromptFunc) Prompt(message string) (string, error) { return f(message) }

// Handle is a long-lived interpreter owned by the caller. *executor.Session
// satisfies it.
type Handle interface {
	Run(ctx context.Context, code string) executor.Result
	Language() executor.Language
}

// Runtimes is everything the adapters may need from the host. Every field is
// optional; an adapter whose runtime is missing reports it per file.
type Runtimes struct {
	// Interpreter backs the native adapter.
	Interpreter Interpreter
	// VM backs the foreign VM adapter. Its console is the channel the VM's
	// output is captured from.
	VM *vm.Runtime
	// Handles are embedded interpreters keyed by language.
	Handles map[catalog.ID]Handle
	// Prompter answers the native interpreter's reads.
	Prompter Prompter
}

// Handle returns the embedded interpreter for id, if any.
func (rt Runtimes) Handle(id catalog.ID) (Handle, bool) {
	h, ok := rt.Handles[id]
	return h, ok && h != nil
}

func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
