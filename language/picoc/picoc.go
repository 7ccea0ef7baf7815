// Package picoc provides the C language adapter backed by a WASI build of the
// picoc interpreter.
package picoc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caffeineduck/runsheet/engine"
	"github.com/caffeineduck/runsheet/executor"
)

const (
	srcDir  = "/src"
	srcFile = "main.c"
)

// Picoc implements executor.Language. Source is read from a mounted file
// rather than passed on the command line.
type Picoc struct {
	module []byte
}

// New returns a picoc language adapter around a WASI binary.
func New(module []byte) *Picoc {
	return &Picoc{module: module}
}

// Load reads the picoc WASI binary from path.
func Load(path string) (*Picoc, error) {
	module, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load picoc wasm: %w", err)
	}
	return New(module), nil
}

func (p *Picoc) Name() string { return "picoc" }

func (p *Picoc) Module() []byte { return p.module }

func (p *Picoc) WrapCode(code string) string { return code }

func (p *Picoc) Args(string) []string {
	return []string{"picoc", srcDir + "/" + srcFile}
}

// SessionInit returns "": picoc has no session loop.
func (p *Picoc) SessionInit() string { return "" }

// InputOverride returns "": picoc input goes through stdin.
func (p *Picoc) InputOverride(string) string { return "" }

// Interpreter runs C source through picoc on an executor. It satisfies
// engine.Interpreter.
type Interpreter struct {
	exec    *executor.Executor
	lang    *Picoc
	timeout time.Duration
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithTimeout bounds a single Interpret call.
func WithTimeout(d time.Duration) Option {
	return func(i *Interpreter) { i.timeout = d }
}

// NewInterpreter returns an Interpreter that runs lang on exec.
func NewInterpreter(exec *executor.Executor, lang *Picoc, opts ...Option) *Interpreter {
	i := &Interpreter{exec: exec, lang: lang, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Interpret writes source to a scratch directory mounted at /src, streams the
// guest's stdout to stdio.Write and feeds its stdin from stdio.Read.
func (i *Interpreter) Interpret(ctx context.Context, source string, stdio engine.Stdio) error {
	dir, err := os.MkdirTemp("", "runsheet-picoc-")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, srcFile), []byte(source), 0o644); err != nil {
		return fmt.Errorf("write source: %w", err)
	}

	result := i.exec.Run(ctx, i.lang, source,
		executor.WithTimeout(i.timeout),
		executor.WithDirMount(dir, srcDir, true),
		executor.WithStdin(&promptReader{read: stdio.Read}),
		executor.WithStdout(writeFunc(stdio.Write)),
	)
	if result.Error == nil {
		return nil
	}
	if msg := strings.TrimSpace(result.Stderr); msg != "" {
		return errors.New(msg)
	}
	return result.Error
}

type writeFunc func(string)

func (f writeFunc) Write(p []byte) (int, error) {
	if f != nil {
		f(string(p))
	}
	return len(p), nil
}

// promptReader asks for a fresh line every time the guest drains its buffer.
// An empty answer is end of input.
type promptReader struct {
	read func() string
	buf  []byte
}

func (r *promptReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		if r.read == nil {
			return 0, io.EOF
		}
		line := r.read()
		if line == "" {
			return 0, io.EOF
		}
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		r.buf = []byte(line)
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
