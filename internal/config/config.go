// Package config loads runsheet settings from defaults, an optional HCL file,
// a .env file and RUNSHEET_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
	"github.com/zclconf/go-cty/cty"

	"github.com/caffeineduck/runsheet/engine"
	"github.com/caffeineduck/runsheet/executor"
	"github.com/caffeineduck/runsheet/vm"
)

// Environment variables that override file values.
const (
	EnvLogLevel    = "RUNSHEET_LOG_LEVEL"
	EnvLogFormat   = "RUNSHEET_LOG_FORMAT"
	EnvPicocWasm   = "RUNSHEET_PICOC_WASM"
	EnvPythonWasm  = "RUNSHEET_PYTHON_WASM"
	EnvBshJar      = "RUNSHEET_BSH_JAR"
	EnvVMLauncher  = "RUNSHEET_VM_LAUNCHER"
	EnvAddr        = "RUNSHEET_ADDR"
	EnvInputAnswer = "RUNSHEET_INPUT_ANSWER"
	EnvFailOnExit  = "RUNSHEET_VM_FAIL_ON_EXIT_CODE"
)

// Launcher names accepted by vm.launcher.
const (
	LauncherExec   = "exec"
	LauncherDocker = "docker"
)

type Config struct {
	Log      Log
	Native   Native
	VM       VM
	Embedded Embedded
	Direct   Direct
	Server   Server
}

type Log struct {
	Level  string
	Format string
}

type Native struct {
	Wasm  string
	Yield time.Duration
}

type VM struct {
	Launcher       string
	Java           string
	JVMArgs        []string
	Classpath      string
	MainClass      string
	Image          string
	Memory         int64
	ScriptMode     vm.ScriptMode
	FailOnExitCode bool
}

type Embedded struct {
	Wasm        string
	InputAnswer string
	Timeout     time.Duration
	MemoryLimit string
	Packages    string
	DiskCache   bool
}

type Direct struct {
	Timeout time.Duration
}

type Server struct {
	Addr           string
	CORS           bool
	AllowedOrigins []string
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		Log: Log{Level: "info", Format: "text"},
		Native: Native{
			Wasm:  "libs/picoc.wasm",
			Yield: engine.DefaultNativeOptions().Yield,
		},
		VM: VM{
			Launcher:  LauncherExec,
			Java:      "java",
			Classpath: "libs/bsh.jar",
			MainClass: vm.DefaultMainClass,
			Image:     vm.DefaultImage,
		},
		Embedded: Embedded{
			Wasm:        "libs/python.wasm",
			InputAnswer: engine.DefaultInputAnswer,
			Timeout:     30 * time.Second,
			DiskCache:   true,
		},
		Direct: Direct{Timeout: 10 * time.Second},
		Server: Server{Addr: ":8080", CORS: true, AllowedOrigins: []string{"*"}},
	}
}

// Load builds a Config from defaults, the HCL file at path (skipped when path
// is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(path, src); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads the given .env files (".env" when none are named) into the
// process environment. Missing files are ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Validate reports the first setting no runtime could honour.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json", "plain":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	switch c.VM.Launcher {
	case LauncherExec, LauncherDocker:
	default:
		return fmt.Errorf("vm.launcher: unknown launcher %q", c.VM.Launcher)
	}
	if c.Native.Yield < 0 {
		return errors.New("native.yield: must not be negative")
	}
	if c.VM.Memory < 0 {
		return errors.New("vm.memory: must not be negative")
	}
	if c.Embedded.Timeout < 0 || c.Direct.Timeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Embedded.MemoryLimit != "" && executor.ParseMemoryLimit(c.Embedded.MemoryLimit) == 0 {
		return fmt.Errorf("embedded.memory_limit: unknown limit %q", c.Embedded.MemoryLimit)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr: must not be empty")
	}
	return nil
}

// file mirrors the HCL schema. Every attribute is optional so unset values
// keep their defaults.
type file struct {
	Log      *logBlock      `hcl:"log,block"`
	Native   *nativeBlock   `hcl:"native,block"`
	VM       *vmBlock       `hcl:"vm,block"`
	Embedded *embeddedBlock `hcl:"embedded,block"`
	Direct   *directBlock   `hcl:"direct,block"`
	Server   *serverBlock   `hcl:"server,block"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

type nativeBlock struct {
	Wasm  *string `hcl:"wasm,optional"`
	Yield *string `hcl:"yield,optional"`
}

type vmBlock struct {
	Launcher       *string  `hcl:"launcher,optional"`
	Java           *string  `hcl:"java,optional"`
	JVMArgs        []string `hcl:"jvm_args,optional"`
	Classpath      *string  `hcl:"classpath,optional"`
	MainClass      *string  `hcl:"main_class,optional"`
	Image          *string  `hcl:"image,optional"`
	Memory         *int64   `hcl:"memory,optional"`
	ScriptMode     *string  `hcl:"script_mode,optional"`
	FailOnExitCode *bool    `hcl:"fail_on_exit_code,optional"`
}

type embeddedBlock struct {
	Wasm        *string `hcl:"wasm,optional"`
	InputAnswer *string `hcl:"input_answer,optional"`
	Timeout     *string `hcl:"timeout,optional"`
	MemoryLimit *string `hcl:"memory_limit,optional"`
	Packages    *string `hcl:"packages,optional"`
	DiskCache   *bool   `hcl:"disk_cache,optional"`
}

type directBlock struct {
	Timeout *string `hcl:"timeout,optional"`
}

type serverBlock struct {
	Addr           *string  `hcl:"addr,optional"`
	CORS           *bool    `hcl:"cors,optional"`
	AllowedOrigins []string `hcl:"allowed_origins,optional"`
}

// evalContext exposes the process environment as env.NAME inside the file.
func evalContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			vars[k] = cty.StringVal(v)
		}
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{Variables: map[string]cty.Value{"env": env}}
}

func (c *Config) decode(filename string, src []byte) error {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var root file
	if diags := gohcl.DecodeBody(f.Body, evalContext(), &root); diags.HasErrors() {
		return fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}
	return c.merge(root)
}

func (c *Config) merge(f file) error {
	if b := f.Log; b != nil {
		setString(&c.Log.Level, b.Level)
		setString(&c.Log.Format, b.Format)
	}
	if b := f.Native; b != nil {
		setString(&c.Native.Wasm, b.Wasm)
		if err := setDuration(&c.Native.Yield, b.Yield, "native.yield"); err != nil {
			return err
		}
	}
	if b := f.VM; b != nil {
		setString(&c.VM.Launcher, b.Launcher)
		setString(&c.VM.Java, b.Java)
		setString(&c.VM.Classpath, b.Classpath)
		setString(&c.VM.MainClass, b.MainClass)
		setString(&c.VM.Image, b.Image)
		if b.JVMArgs != nil {
			c.VM.JVMArgs = b.JVMArgs
		}
		if b.Memory != nil {
			c.VM.Memory = *b.Memory
		}
		if b.FailOnExitCode != nil {
			c.VM.FailOnExitCode = *b.FailOnExitCode
		}
		if b.ScriptMode != nil {
			mode, err := vm.ParseScriptMode(*b.ScriptMode)
			if err != nil {
				return fmt.Errorf("vm.script_mode: %w", err)
			}
			c.VM.ScriptMode = mode
		}
	}
	if b := f.Embedded; b != nil {
		setString(&c.Embedded.Wasm, b.Wasm)
		setString(&c.Embedded.InputAnswer, b.InputAnswer)
		setString(&c.Embedded.MemoryLimit, b.MemoryLimit)
		setString(&c.Embedded.Packages, b.Packages)
		if b.DiskCache != nil {
			c.Embedded.DiskCache = *b.DiskCache
		}
		if err := setDuration(&c.Embedded.Timeout, b.Timeout, "embedded.timeout"); err != nil {
			return err
		}
	}
	if b := f.Direct; b != nil {
		if err := setDuration(&c.Direct.Timeout, b.Timeout, "direct.timeout"); err != nil {
			return err
		}
	}
	if b := f.Server; b != nil {
		setString(&c.Server.Addr, b.Addr)
		if b.CORS != nil {
			c.Server.CORS = *b.CORS
		}
		if b.AllowedOrigins != nil {
			c.Server.AllowedOrigins = b.AllowedOrigins
		}
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for key, dst := range map[string]*string{
		EnvLogLevel:    &c.Log.Level,
		EnvLogFormat:   &c.Log.Format,
		EnvPicocWasm:   &c.Native.Wasm,
		EnvPythonWasm:  &c.Embedded.Wasm,
		EnvBshJar:      &c.VM.Classpath,
		EnvVMLauncher:  &c.VM.Launcher,
		EnvAddr:        &c.Server.Addr,
		EnvInputAnswer: &c.Embedded.InputAnswer,
	} {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	if v, ok := lookup(EnvFailOnExit); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFailOnExit, err)
		}
		c.VM.FailOnExitCode = b
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, field string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
