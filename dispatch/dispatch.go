// Package dispatch runs a batch of source files through the execution engine
// that matches their declared language and merges the outcomes back into a
// fresh batch.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
	"github.com/caffeineduck/runsheet/engine"
)

// Runtimes is the caller-owned set of engine runtimes a dispatch may use.
type Runtimes = engine.Runtimes

// Observer is told about every status change, in order.
type Observer func(batch.SourceFile)

// Dispatcher selects an adapter per language and drives files through it one
// at a time. Concurrent Dispatch calls on one Dispatcher are serialized, since
// the runtimes they share are not reentrant.
type Dispatcher struct {
	mu       sync.Mutex
	logger   *slog.Logger
	observer Observer
	catalog  *catalog.Catalog
	adapters map[catalog.Kind]engine.Adapter

	direct   engine.DirectOptions
	native   engine.NativeOptions
	embedded engine.EmbeddedOptions
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

func WithCatalog(c *catalog.Catalog) Option {
	return func(d *Dispatcher) { d.catalog = c }
}

// WithAdapters replaces the built-in adapter for each kind present in m.
func WithAdapters(m map[catalog.Kind]engine.Adapter) Option {
	return func(d *Dispatcher) {
		for k, a := range m {
			d.adapters[k] = a
		}
	}
}

func WithDirectOptions(o engine.DirectOptions) Option {
	return func(d *Dispatcher) { d.direct = o }
}

func WithNativeOptions(o engine.NativeOptions) Option {
	return func(d *Dispatcher) { d.native = o }
}

func WithEmbeddedOptions(o engine.EmbeddedOptions) Option {
	return func(d *Dispatcher) { d.embedded = o }
}

// New returns a Dispatcher over the default catalog.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:   slog.Default(),
		catalog:  catalog.Default(),
		adapters: make(map[catalog.Kind]engine.Adapter),
		native:   engine.DefaultNativeOptions(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) adapter(lang catalog.Language) engine.Adapter {
	if a, ok := d.adapters[lang.Kind]; ok {
		return a
	}
	switch lang.Kind {
	case catalog.KindDirect:
		return engine.NewDirect(d.direct)
	case catalog.KindNative:
		return engine.NewNative(d.native)
	case catalog.KindVM:
		return engine.NewVM()
	case catalog.KindEmbedded:
		return engine.NewEmbedded(lang.ID, d.embedded)
	}
	return nil
}

// Dispatch runs every file of b that has not already succeeded and returns
// the updated batch. b itself is never modified.
//
// Engine problems never surface as a Go error: an unknown language or a
// missing runtime marks each pending file as failed with an explanatory
// output, except for embedded interpreters, whose files are left untouched
// when no handle is supplied. Cancelling ctx stops the loop before the next
// file; a file that has started always runs to a terminal status.
func (d *Dispatcher) Dispatch(ctx context.Context, b batch.Batch, id catalog.ID, rt Runtimes) batch.Batch {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := b.Clone()
	log := d.logger.With("language", string(id))

	if err := out.Validate(); err != nil {
		log.Warn("batch failed validation", "error", err)
	}

	lang, ok := d.catalog.Lookup(id)
	var a engine.Adapter
	if ok {
		a = d.adapter(lang)
	}
	if a == nil {
		msg := fmt.Sprintf("Error: unsupported language %q.", string(id))
		log.Warn("unsupported language")
		d.failPending(out, msg)
		return out
	}
	log = log.With("engine", a.Kind().String())

	if err := a.Available(rt); err != nil {
		if a.Kind() == catalog.KindEmbedded {
			log.Warn("no interpreter handle; files left as they are")
			return out
		}
		log.Warn("engine unavailable", "error", err)
		d.failPending(out, err.Error())
		return out
	}

	for i := range out {
		if err := ctx.Err(); err != nil {
			log.Info("dispatch cancelled", "remaining", len(out)-i, "error", err)
			break
		}
		if out[i].Status == batch.StatusSuccess {
			continue
		}
		out[i] = d.runFile(ctx, log, a, out[i], rt)
	}

	summary := out.Summary()
	log.Info("dispatch complete",
		"files", summary.Total,
		"success", summary.Success,
		"error", summary.Error,
		"pending", summary.Pending,
	)
	return out
}

func (d *Dispatcher) runFile(ctx context.Context, log *slog.Logger, a engine.Adapter, f batch.SourceFile, rt Runtimes) batch.SourceFile {
	before := f
	running, err := f.Rearm().Advance(batch.StatusRunning)
	if err != nil {
		log.Error("cannot start file", "file", f.Name, "error", err)
		return before
	}
	d.notify(running)

	outcome := safeRun(ctx, a, running, rt)
	if outcome.Skipped {
		// The observer only ever sees forward transitions, so it is not
		// told about the rollback.
		log.Debug("file skipped", "file", f.Name)
		return before
	}

	done, err := running.Finish(outcome.Status, outcome.Output)
	if err != nil {
		done, _ = running.Finish(batch.StatusError, "Error: "+err.Error())
	}
	d.notify(done)

	attrs := []any{
		"file", done.Name,
		"status", string(done.Status),
		"duration", outcome.Duration,
	}
	if outcome.Err != nil {
		attrs = append(attrs, "error", outcome.Err)
	}
	log.Info("file finished", attrs...)
	return done
}

// failPending marks every non-successful file as failed with msg, stepping
// through running so observers see the usual sequence.
func (d *Dispatcher) failPending(b batch.Batch, msg string) {
	for i, f := range b {
		if f.Status == batch.StatusSuccess {
			continue
		}
		running, err := f.Rearm().Advance(batch.StatusRunning)
		if err != nil {
			continue
		}
		d.notify(running)
		done, _ := running.Finish(batch.StatusError, msg)
		d.notify(done)
		b[i] = done
	}
}

func (d *Dispatcher) notify(f batch.SourceFile) {
	if d.observer != nil {
		d.observer(f)
	}
}

// safeRun converts a panic escaping the adapter into an error outcome.
func safeRun(ctx context.Context, a engine.Adapter, f batch.SourceFile, rt Runtimes) (out engine.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = engine.Outcome{
				Status: batch.StatusError,
				Output: fmt.Sprintf("Error: %v", r),
				Err:    fmt.Errorf("adapter panic: %v", r),
			}
		}
	}()
	return a.Run(ctx, f, rt)
}
