package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
	"github.com/caffeineduck/runsheet/dispatch"
	"github.com/caffeineduck/runsheet/engine"
	"github.com/caffeineduck/runsheet/export"
	"github.com/caffeineduck/runsheet/internal/runtimes"
)

type runOptions struct {
	lang   string
	export string
	title  string
	answer string
}

func newRunCmd(c *cli) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Run source files and print each file's output",
		Long: `Run every file through the engine for its language, in order, and print
the outcome of each one.

The language comes from --lang or the first file's extension. All files in
one invocation share it.

  runsheet run -l cpp a.cpp b.cpp
  runsheet run --export out.md *.py
  runsheet run --export reports/ Main.java

--export writes a Markdown (.md) or HTML (.html) submission document. Given a
directory, the file is named Submission_<lang>_<date>.md inside it.

The command fails when any file ends in error or is left unexecuted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.lang, "lang", "l", "", "Language: c, cpp, java, javascript, python (default: from extension)")
	cmd.Flags().StringVar(&opts.export, "export", "", "Write a submission document (.md, .html, or a directory)")
	cmd.Flags().StringVar(&opts.title, "title", "", "Document title (default: Code Submission - <LANG>)")
	cmd.Flags().StringVar(&opts.answer, "input-answer", "", "Answer given to input() in Python files")
	return cmd
}

func (c *cli) run(cmd *cobra.Command, paths []string, opts runOptions) error {
	id, err := resolveLanguage(opts.lang, paths)
	if err != nil {
		return err
	}
	b, err := readBatch(paths)
	if err != nil {
		return err
	}

	kind := catalog.KindUnknown
	if lang, ok := catalog.Default().Lookup(id); ok {
		kind = lang.Kind
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	set, err := runtimes.Build(ctx, c.cfg, c.logger,
		runtimes.ForKinds(kind),
		runtimes.WithPrompter(newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())),
	)
	if err != nil {
		return err
	}
	defer set.Close()

	var extra []dispatch.Option
	if opts.answer != "" {
		extra = append(extra, dispatch.WithEmbeddedOptions(engine.EmbeddedOptions{InputAnswer: opts.answer}))
	}
	out := c.dispatcher(extra...).Dispatch(ctx, b, id, set.Runtimes)

	printBatch(cmd.OutOrStdout(), out)

	if opts.export != "" {
		if err := writeExport(opts.export, out, id, opts.title); err != nil {
			return err
		}
	}
	return batchErr(out, set.Problems[kind])
}

func readBatch(paths []string) (batch.Batch, error) {
	b := make(batch.Batch, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		b = append(b, batch.New(filepath.Base(p), string(data)))
	}
	return b, nil
}

func printBatch(w io.Writer, b batch.Batch) {
	for i, f := range b {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "== %s [%s]\n", f.Name, f.Status)
		out := f.Output
		if out == "" {
			out = batch.NotExecuted
		}
		fmt.Fprintln(w, strings.TrimSuffix(out, "\n"))
	}
}

// exportPath resolves --export to a file: a directory (existing, or named
// with a trailing separator) gets the dated default name.
func exportPath(target string, id catalog.ID, now time.Time) (string, export.Format, error) {
	info, err := os.Stat(target)
	isDir := err == nil && info.IsDir()
	if isDir || strings.HasSuffix(target, string(os.PathSeparator)) {
		return filepath.Join(target, export.FileName(id, export.FormatMarkdown, now)), export.FormatMarkdown, nil
	}
	f, err := export.ParseFormat(strings.TrimPrefix(filepath.Ext(target), "."))
	if err != nil {
		return "", "", fmt.Errorf("--export %s: %w", target, err)
	}
	return target, f, nil
}

func writeExport(target string, b batch.Batch, id catalog.ID, title string) error {
	path, format, err := exportPath(target, id, time.Now())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	lang, ok := catalog.Default().Lookup(id)
	if !ok {
		lang = catalog.Language{ID: id, Name: string(id)}
	}
	var opts []export.Option
	if title != "" {
		opts = append(opts, export.WithTitle(title))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, format, b, lang, opts...); err != nil {
		f.Close()
		return fmt.Errorf("export %s: %w", path, err)
	}
	return f.Close()
}

var errFilesFailed = errors.New("files failed")

// batchErr summarizes what went wrong, or returns nil when every file succeeded.
func batchErr(b batch.Batch, problem error) error {
	s := b.Summary()
	switch {
	case s.Error > 0:
		return fmt.Errorf("%w: %d of %d", errFilesFailed, s.Error, s.Total)
	case s.Pending > 0 && problem != nil:
		return fmt.Errorf("%d of %d files not executed: %w", s.Pending, s.Total, problem)
	case s.Pending > 0:
		return fmt.Errorf("%d of %d files not executed", s.Pending, s.Total)
	}
	return nil
}
