package executor

import (
	"io"
	"time"
)

// Option configures execution behavior.
type Option func(*runConfig)

type runConfig struct {
	timeout time.Duration
	stdin   io.Reader
	stdout  io.Writer
	args    []string
	mounts  []DirMount
	env     map[string]string
}

// DirMount exposes a host directory to the guest at GuestPath.
type DirMount struct {
	HostPath  string
	GuestPath string
	ReadOnly  bool
}

func defaultRunConfig() runConfig {
	return runConfig{
		timeout: 30 * time.Second,
	}
}

// WithTimeout sets the maximum execution time.
func WithTimeout(d time.Duration) Option {
	return func(c *runConfig) {
		c.timeout = d
	}
}

// WithStdin feeds the guest's standard input from r instead of the
// host-call response pipe. Host functions are unavailable when set.
func WithStdin(r io.Reader) Option {
	return func(c *runConfig) {
		c.stdin = r
	}
}

// WithStdout streams the guest's standard output to w as it is produced.
// The Result still carries the full output.
func WithStdout(w io.Writer) Option {
	return func(c *runConfig) {
		c.stdout = w
	}
}

// WithArgs overrides the argv produced by Language.Args.
func WithArgs(args ...string) Option {
	return func(c *runConfig) {
		c.args = args
	}
}

// WithDirMount mounts a host directory into the guest filesystem.
//
// Examples:
//
//	executor.WithDirMount("/tmp/run-123", "/src", true)
//	executor.WithDirMount("./packages", "/packages", true)
func WithDirMount(hostPath, guestPath string, readOnly bool) Option {
	return func(c *runConfig) {
		c.mounts = append(c.mounts, DirMount{
			HostPath:  hostPath,
			GuestPath: guestPath,
			ReadOnly:  readOnly,
		})
	}
}

// WithEnv sets a guest environment variable.
func WithEnv(key, value string) Option {
	return func(c *runConfig) {
		if c.env == nil {
			c.env = make(map[string]string)
		}
		c.env[key] = value
	}
}

// ExecutorOption configures the Executor at creation time.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	diskCache        bool
	cacheDir         string
	precompile       []Language // Languages to precompile at startup
	memoryLimitPages uint32     // Max memory pages (each page = 64KB), 0 = default (4GB)
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		diskCache:        false,
		memoryLimitPages: 0, // 0 means use wazero default (65536 pages = 4GB)
	}
}

// WithDiskCache enables persistent compilation cache for faster CLI startup.
// Optionally provide a custom directory; otherwise uses ~/.cache/runsheet or XDG_CACHE_HOME/runsheet.
//
// Examples:
//
//	executor.New(registry, executor.WithDiskCache())            // default dir
//	executor.New(registry, executor.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) ExecutorOption {
	return func(c *executorConfig) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the specified languages at Executor creation time.
// This moves the compilation cost to startup rather than first execution.
func WithPrecompile(langs ...Language) ExecutorOption {
	return func(c *executorConfig) {
		c.precompile = langs
	}
}

// WithMemoryLimit sets the maximum memory available to WASM modules.
// Each page is 64KB. Examples:
//   - WithMemoryLimit(16) = 1MB max
//   - WithMemoryLimit(1024) = 64MB max
//   - WithMemoryLimit(4096) = 256MB max
//
// Default is 0 (no limit, up to 4GB).
func WithMemoryLimit(pages uint32) ExecutorOption {
	return func(c *executorConfig) {
		c.memoryLimitPages = pages
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)

// ParseMemoryLimit maps "1mb".."1gb" onto page counts. Unknown values yield 0.
func ParseMemoryLimit(s string) uint32 {
	switch s {
	case "1mb", "1MB":
		return MemoryLimit1MB
	case "16mb", "16MB":
		return MemoryLimit16MB
	case "64mb", "64MB":
		return MemoryLimit64MB
	case "256mb", "256MB":
		return MemoryLimit256MB
	case "1gb", "1GB":
		return MemoryLimit1GB
	default:
		return 0
	}
}
