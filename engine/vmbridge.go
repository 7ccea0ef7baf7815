package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
	"github.com/caffeineduck/runsheet/sink"
	"github.com/caffeineduck/runsheet/vm"
)

// VMErrorPrefix precedes failures reported by the VM itself.
const VMErrorPrefix = "Java VM Error: "

// VM runs Java source as a BeanShell script on Runtimes.VM. The VM's console
// is captured for exactly one file at a time.
type VM struct{}

func NewVM() *VM { return &VM{} }

func (a *VM) Kind() catalog.Kind { return catalog.KindVM }

func (a *VM) Available(rt Runtimes) error {
	if rt.VM == nil {
		return &UnavailableError{Engine: VMEngineName}
	}
	return nil
}

func (a *VM) Run(ctx context.Context, f batch.SourceFile, rt Runtimes) (out Outcome) {
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	if rt.VM == nil {
		return unavailable(VMEngineName)
	}
	if err := rt.VM.Boot(ctx); err != nil {
		return failure(err.Error(), fmt.Errorf("%w: %w", ErrInitFailed, err))
	}
	return a.capture(ctx, f, rt.VM)
}

func (a *VM) capture(ctx context.Context, f batch.SourceFile, r *vm.Runtime) (out Outcome) {
	logs := sink.New()
	release := r.Console().Capture(logs)
	defer release()
	defer func() {
		if p := recover(); p != nil {
			err := panicError(p)
			out = failure(VMErrorPrefix+err.Error(), fmt.Errorf("%w: %w", ErrCapture, err))
		}
	}()

	opts := r.Options()
	args, cleanup, err := scriptArgs(opts.ScriptMode, f.Content)
	if err != nil {
		return failure(VMErrorPrefix+err.Error(), fmt.Errorf("%w: %w", ErrCapture, err))
	}
	defer cleanup()

	code, err := r.RunMain(ctx, opts.MainClass, opts.Classpath, args...)
	if err != nil {
		return failure(VMErrorPrefix+err.Error(), err)
	}

	if code != 0 {
		logs.Append(fmt.Sprintf("\n(Process exited with code %d)", code))
		if opts.FailOnExitCode {
			return failure(logs.Text(Placeholder), fmt.Errorf("%w: exit code %d", ErrUserCode, code))
		}
	}
	return success(logs.Text(Placeholder))
}

func scriptArgs(mode vm.ScriptMode, content string) ([]string, func(), error) {
	if mode != vm.ScriptModeFile {
		return []string{"-e", content}, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "runsheet-bsh-")
	if err != nil {
		return nil, nil, fmt.Errorf("create script dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	path := filepath.Join(dir, "main.bsh")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("write script: %w", err)
	}
	return []string{path}, cleanup, nil
}
