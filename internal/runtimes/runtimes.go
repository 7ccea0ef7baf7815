// Package runtimes boots the engine runtimes described by a config.Config.
// A runtime that cannot be built is logged and left nil; the dispatcher then
// reports it on every file that needed it.
package runtimes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/caffeineduck/runsheet/catalog"
	"github.com/caffeineduck/runsheet/engine"
	"github.com/caffeineduck/runsheet/executor"
	"github.com/caffeineduck/runsheet/hostfunc"
	"github.com/caffeineduck/runsheet/internal/config"
	"github.com/caffeineduck/runsheet/language/picoc"
	"github.com/caffeineduck/runsheet/language/python"
	"github.com/caffeineduck/runsheet/sink"
	"github.com/caffeineduck/runsheet/vm"
)

// Set is a booted collection of runtimes. Close releases all of them.
type Set struct {
	Runtimes engine.Runtimes
	Executor *executor.Executor

	// Problems records why a requested engine kind is missing.
	Problems map[catalog.Kind]error

	closers []io.Closer
}

// Option adjusts Build.
type Option func(*buildConfig)

type buildConfig struct {
	kinds    []catalog.Kind
	console  *sink.Console
	registry *hostfunc.Registry
	prompter engine.Prompter
	boot     bool
}

// ForKinds limits Build to the engines that run the given kinds. Direct
// evaluation needs no runtime and is always available.
func ForKinds(kinds ...catalog.Kind) Option {
	return func(c *buildConfig) { c.kinds = kinds }
}

// WithConsole sets the console the VM's output is captured from.
func WithConsole(console *sink.Console) Option {
	return func(c *buildConfig) { c.console = console }
}

// WithRegistry supplies host functions for the embedded interpreter.
func WithRegistry(r *hostfunc.Registry) Option {
	return func(c *buildConfig) { c.registry = r }
}

// WithPrompter answers the native interpreter's reads.
func WithPrompter(p engine.Prompter) Option {
	return func(c *buildConfig) { c.prompter = p }
}

// WithEagerBoot boots the VM during Build instead of on its first file.
func WithEagerBoot() Option {
	return func(c *buildConfig) { c.boot = true }
}

func (c *buildConfig) wants(k catalog.Kind) bool {
	return len(c.kinds) == 0 || slices.Contains(c.kinds, k)
}

// Build creates the runtimes. Only a failure to create the wasm executor
// itself is returned as an error.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Set, error) {
	bc := buildConfig{}
	for _, opt := range opts {
		opt(&bc)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Set{Problems: make(map[catalog.Kind]error)}
	s.Runtimes.Prompter = bc.prompter

	if bc.wants(catalog.KindNative) || bc.wants(catalog.KindEmbedded) {
		exec, err := newExecutor(cfg, bc.registry)
		if err != nil {
			return nil, err
		}
		s.Executor = exec
	}

	if bc.wants(catalog.KindNative) {
		s.record(logger, catalog.KindNative, s.buildNative(cfg))
	}
	if bc.wants(catalog.KindEmbedded) {
		s.record(logger, catalog.KindEmbedded, s.buildEmbedded(cfg))
	}
	if bc.wants(catalog.KindVM) {
		s.record(logger, catalog.KindVM, s.buildVM(ctx, cfg, &bc, logger))
	}
	return s, nil
}

func (s *Set) record(logger *slog.Logger, k catalog.Kind, err error) {
	if err == nil {
		logger.Debug("runtime ready", "engine", k.String())
		return
	}
	s.Problems[k] = err
	logger.Warn("runtime unavailable", "engine", k.String(), "error", err)
}

func newExecutor(cfg *config.Config, registry *hostfunc.Registry) (*executor.Executor, error) {
	var opts []executor.ExecutorOption
	if cfg.Embedded.DiskCache {
		opts = append(opts, executor.WithDiskCache())
	}
	if pages := executor.ParseMemoryLimit(cfg.Embedded.MemoryLimit); pages > 0 {
		opts = append(opts, executor.WithMemoryLimit(pages))
	}
	exec, err := executor.New(registry, opts...)
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}
	return exec, nil
}

func (s *Set) buildNative(cfg *config.Config) error {
	lang, err := picoc.Load(cfg.Native.Wasm)
	if err != nil {
		return err
	}
	s.Runtimes.Interpreter = picoc.NewInterpreter(s.Executor, lang, picoc.WithTimeout(cfg.Embedded.Timeout))
	return nil
}

func (s *Set) buildEmbedded(cfg *config.Config) error {
	lang, err := python.Load(cfg.Embedded.Wasm)
	if err != nil {
		return err
	}
	opts := []executor.SessionOption{executor.WithSessionTimeout(cfg.Embedded.Timeout)}
	if cfg.Embedded.Packages != "" {
		opts = append(opts, executor.WithPackages(cfg.Embedded.Packages))
	}
	session, err := s.Executor.NewSession(lang, opts...)
	if err != nil {
		return fmt.Errorf("start python session: %w", err)
	}
	s.closers = append(s.closers, session)
	s.Runtimes.Handles = map[catalog.ID]engine.Handle{catalog.Python: session}
	return nil
}

func (s *Set) buildVM(ctx context.Context, cfg *config.Config, bc *buildConfig, logger *slog.Logger) error {
	if cfg.VM.Classpath != "" {
		if _, err := os.Stat(cfg.VM.Classpath); err != nil {
			return fmt.Errorf("script interpreter archive: %w", err)
		}
	}

	launcher, err := newLauncher(cfg)
	if err != nil {
		return err
	}
	if c, ok := launcher.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}

	rt := vm.New(launcher, bc.console, vm.Options{
		Classpath:      cfg.VM.Classpath,
		MainClass:      cfg.VM.MainClass,
		ScriptMode:     cfg.VM.ScriptMode,
		FailOnExitCode: cfg.VM.FailOnExitCode,
		Logger:         logger,
	})
	if bc.boot {
		if err := rt.Boot(ctx); err != nil {
			return err
		}
	}
	s.Runtimes.VM = rt
	return nil
}

func newLauncher(cfg *config.Config) (vm.Launcher, error) {
	switch cfg.VM.Launcher {
	case config.LauncherDocker:
		l, err := vm.NewDockerLauncher(cfg.VM.Image)
		if err != nil {
			return nil, err
		}
		l.Memory = cfg.VM.Memory
		return l, nil
	case config.LauncherExec, "":
		return &vm.ExecLauncher{Java: cfg.VM.Java, JVMArgs: cfg.VM.JVMArgs}, nil
	}
	return nil, fmt.Errorf("unknown launcher %q", cfg.VM.Launcher)
}

// Close stops sessions and launchers, then the executor.
func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if s.Executor != nil {
		if err := s.Executor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
