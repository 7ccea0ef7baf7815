package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/runsheet/catalog"
	"github.com/caffeineduck/runsheet/dispatch"
	"github.com/caffeineduck/runsheet/engine"
	"github.com/caffeineduck/runsheet/internal/config"
	"github.com/caffeineduck/runsheet/internal/logging"
)

// cli holds what the root command's pre-run resolves for its subcommands.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "runsheet",
		Short: "Run batches of source files and collect their output",
		Long: `runsheet - run a batch of source files and collect each file's output
into a submission document.

Every language runs on its own engine:
  javascript  evaluated in-process
  c, cpp      picoc compiled to WebAssembly
  java        BeanShell on a JVM (local java or a docker container)
  python      RustPython compiled to WebAssembly, one session per process

Settings come from an optional HCL file (--config), a .env file and
RUNSHEET_* environment variables.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "HCL config file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Log format: text, json, plain")

	root.AddCommand(
		newRunCmd(c),
		newServeCmd(c),
		newLanguagesCmd(c),
		newDepsCmd(c),
	)
	return root
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	slog.SetDefault(c.logger)
	cmd.SetContext(logging.WithLogger(cmd.Context(), c.logger))
	return nil
}

// dispatcher returns a Dispatcher configured from c.cfg.
func (c *cli) dispatcher(opts ...dispatch.Option) *dispatch.Dispatcher {
	base := []dispatch.Option{
		dispatch.WithLogger(c.logger),
		dispatch.WithDirectOptions(engine.DirectOptions{Timeout: c.cfg.Direct.Timeout}),
		dispatch.WithNativeOptions(engine.NativeOptions{Yield: c.cfg.Native.Yield}),
		dispatch.WithEmbeddedOptions(engine.EmbeddedOptions{InputAnswer: c.cfg.Embedded.InputAnswer}),
	}
	return dispatch.New(append(base, opts...)...)
}

// resolveLanguage picks the language from the flag, or from the first file's
// extension when the flag is empty.
func resolveLanguage(flag string, files []string) (catalog.ID, error) {
	if flag != "" {
		return catalog.Resolve(flag), nil
	}
	for _, f := range files {
		if lang, ok := catalog.Default().ByExtension(f); ok {
			return lang.ID, nil
		}
	}
	if len(files) > 0 {
		return "", fmt.Errorf("language required: cannot detect one from %q, use --lang", filepath.Base(files[0]))
	}
	return "", fmt.Errorf("language required: use --lang")
}
