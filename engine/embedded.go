package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
	"github.com/caffeineduck/runsheet/sink"
)

// DefaultInputAnswer is what input() returns inside embedded interpreters.
const DefaultInputAnswer = "10"

// EmbeddedOptions configures the embedded-interpreter adapter.
type EmbeddedOptions struct {
	// InputAnswer replaces interactive input. Empty means DefaultInputAnswer.
	InputAnswer string
}

// Embedded runs source on the caller's long-lived interpreter handle for one
// language. A missing handle leaves files untouched.
type Embedded struct {
	lang catalog.ID
	opts EmbeddedOptions
}

func NewEmbedded(lang catalog.ID, opts EmbeddedOptions) *Embedded {
	if opts.InputAnswer == "" {
		opts.InputAnswer = DefaultInputAnswer
	}
	return &Embedded{lang: lang, opts: opts}
}

func (e *Embedded) Kind() catalog.Kind { return catalog.KindEmbedded }

func (e *Embedded) Available(rt Runtimes) error {
	if _, ok := rt.Handle(e.lang); !ok {
		return &UnavailableError{Engine: EmbeddedEngineName}
	}
	return nil
}

func (e *Embedded) Run(ctx context.Context, f batch.SourceFile, rt Runtimes) (out Outcome) {
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	h, ok := rt.Handle(e.lang)
	if !ok {
		return Outcome{Skipped: true}
	}

	defer func() {
		if r := recover(); r != nil {
			err := panicError(r)
			out = failure(err.Error(), err)
		}
	}()

	if setup := h.Language().InputOverride(e.opts.InputAnswer); setup != "" {
		if res := h.Run(ctx, setup); res.Error != nil {
			return failure(res.Error.Error(), fmt.Errorf("%w: %w", ErrInitFailed, res.Error))
		}
	}

	res := h.Run(ctx, f.Content)

	// Output printed before the exception is dropped; the traceback is
	// the whole report.
	if res.Error != nil {
		return failure(res.Error.Error(), fmt.Errorf("%w: %w", ErrUserCode, res.Error))
	}

	lines := sink.New()
	w := sink.NewLineWriter(lines)
	io.WriteString(w, res.Output)
	w.Flush()
	return success(lines.Text(Placeholder))
}
