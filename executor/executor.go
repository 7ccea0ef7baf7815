package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caffeineduck/runsheet/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// ErrExecutorClosed is returned by Run after Close.
var ErrExecutorClosed = errors.New("executor closed")

// Result holds the output and metadata from code execution.
type Result struct {
	// Output is stdout followed by any stderr that was not protocol traffic.
	Output   string
	Stderr   string
	Duration time.Duration
	// ExitCode is the guest's proc_exit code; 0 when it returned normally.
	ExitCode int
	Error    error
}

// Executor manages WASM runtimes and compiled module caching.
type Executor struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]wazero.CompiledModule
	registry *hostfunc.Registry
	mu       sync.RWMutex
	closed   bool
}

// New creates an Executor with the given host function registry.
func New(registry *hostfunc.Registry, opts ...ExecutorOption) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	var err error

	if cfg.diskCache {
		cacheDir := cfg.cacheDir
		if cacheDir == "" {
			cacheDir = defaultCacheDir()
		}
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	if registry == nil {
		registry = hostfunc.NewRegistry()
	}

	e := &Executor{
		runtime:  rt,
		cache:    cache,
		compiled: make(map[string]wazero.CompiledModule),
		registry: registry,
	}

	for _, lang := range cfg.precompile {
		if _, err := e.getCompiled(ctx, lang); err != nil {
			e.Close()
			return nil, fmt.Errorf("precompile %s: %w", lang.Name(), err)
		}
	}

	return e, nil
}

// Run executes code in the specified language.
func (e *Executor) Run(ctx context.Context, lang Language, code string, opts ...Option) Result {
	start := time.Now()

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return Result{Error: ErrExecutorClosed, Duration: time.Since(start)}
	}

	compiled, err := e.getCompiled(ctx, lang)
	if err != nil {
		return Result{Error: err, Duration: time.Since(start)}
	}

	registry := e.registry.Clone()
	registerBuiltins(registry)

	var stdout bytes.Buffer
	var stdoutW io.Writer = &stdout
	if cfg.stdout != nil {
		stdoutW = io.MultiWriter(&stdout, cfg.stdout)
	}

	stdinReader, stdinWriter := io.Pipe()
	protocol := newProtocolHandler(ctx, registry, stdinWriter)

	var stdin io.Reader = stdinReader
	if cfg.stdin != nil {
		stdin = cfg.stdin
	}

	args := cfg.args
	if len(args) == 0 {
		args = lang.Args(lang.WrapCode(code))
	}

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(stdoutW).
		WithStderr(protocol).
		WithStdin(stdin).
		WithArgs(args...).
		WithName("")

	for k, v := range cfg.env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}
	if len(cfg.mounts) > 0 {
		moduleConfig = moduleConfig.WithFSConfig(fsConfig(cfg.mounts))
	}

	errCh := make(chan error, 1)
	go func() {
		mod, err := e.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		if mod != nil {
			mod.Close(context.Background())
		}
		stdinWriter.Close()
		errCh <- err
	}()

	err = <-errCh
	stdinReader.Close()

	stderr := protocol.Stderr()
	result := Result{
		Output:   stdout.String() + stderr,
		Stderr:   stderr,
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *sys.ExitError
		switch {
		case ctx.Err() == context.DeadlineExceeded:
			result.Error = fmt.Errorf("timeout after %v", cfg.timeout)
		case errors.As(err, &exitErr):
			result.ExitCode = int(exitErr.ExitCode())
			if result.ExitCode != 0 {
				result.Error = fmt.Errorf("exited with code %d", result.ExitCode)
			}
		default:
			result.Error = fmt.Errorf("execution failed: %w", err)
		}
	}

	return result
}

func fsConfig(mounts []DirMount) wazero.FSConfig {
	fs := wazero.NewFSConfig()
	for _, m := range mounts {
		if m.ReadOnly {
			fs = fs.WithReadOnlyDirMount(m.HostPath, m.GuestPath)
		} else {
			fs = fs.WithDirMount(m.HostPath, m.GuestPath)
		}
	}
	return fs
}

func registerBuiltins(registry *hostfunc.Registry) {
	registry.Register("time_now", func(ctx context.Context, args map[string]any) (any, error) {
		return float64(time.Now().UnixNano()) / 1e9, nil
	})
}

// getCompiled returns a cached compiled module, compiling if necessary.
func (e *Executor) getCompiled(ctx context.Context, lang Language) (wazero.CompiledModule, error) {
	name := lang.Name()

	e.mu.RLock()
	if compiled, ok := e.compiled[name]; ok {
		e.mu.RUnlock()
		return compiled, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if compiled, ok := e.compiled[name]; ok {
		return compiled, nil
	}

	module := lang.Module()
	if len(module) == 0 {
		return nil, fmt.Errorf("compile %s: no wasm module loaded", name)
	}

	compiled, err := e.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	e.compiled[name] = compiled
	return compiled, nil
}

// Close releases all resources held by the Executor.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	ctx := context.Background()

	var errs []error
	if err := e.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.cache != nil {
		if err := e.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "runsheet")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "runsheet")
	}
	return filepath.Join(os.TempDir(), "runsheet-cache")
}
