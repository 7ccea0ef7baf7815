package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
	"github.com/caffeineduck/runsheet/dispatch"
	"github.com/caffeineduck/runsheet/engine"
	"github.com/caffeineduck/runsheet/export"
	"github.com/caffeineduck/runsheet/internal/runtimes"
)

const maxRequestBody = 4 << 20

func newServeCmd(c *cli) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start an HTTP server that dispatches batches on request.

Endpoints:
  GET  /health                  Engine availability
  GET  /languages               Supported languages
  POST /dispatch                Run {"language":"...","files":[...]}, returns {"files":[...],"summary":{...}}
  POST /export?format=md|html   Render {"language":"...","files":[...]} as a submission document

Input requests from C programs are answered with an empty line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Server.Addr = addr
			}
			return c.serve(cmd)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, :8080)")
	return cmd
}

func (c *cli) serve(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The VM boots here, on the server's context, so a request that goes
	// away mid-boot cannot take Java down with it.
	set, err := runtimes.Build(ctx, c.cfg, c.logger, runtimes.WithPrompter(silentPrompter), runtimes.WithEagerBoot())
	if err != nil {
		return err
	}
	defer set.Close()

	s := &server{
		dispatcher: c.dispatcher(),
		runtimes:   set.Runtimes,
		problems:   set.Problems,
		catalog:    catalog.Default(),
		logger:     c.logger,
	}

	srv := &http.Server{
		Addr:              c.cfg.Server.Addr,
		Handler:           s.routes(c.cfg.Server.CORS, c.cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("runsheet server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	c.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type server struct {
	dispatcher *dispatch.Dispatcher
	runtimes   engine.Runtimes
	problems   map[catalog.Kind]error
	catalog    *catalog.Catalog
	logger     *slog.Logger
}

func (s *server) routes(allowCORS bool, origins []string) http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)

	if allowCORS {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{"Content-Disposition"},
			MaxAge:         300,
		}))
	}

	mux.Get("/health", s.handleHealth)
	mux.Get("/languages", s.handleLanguages)
	mux.Post("/dispatch", s.handleDispatch)
	mux.Post("/export", s.handleExport)
	return mux
}

type batchRequest struct {
	Language string             `json:"language"`
	Files    []batch.SourceFile `json:"files"`
}

type dispatchResponse struct {
	Files   batch.Batch   `json:"files"`
	Summary batch.Summary `json:"summary"`
}

type healthResponse struct {
	Status  string            `json:"status"`
	Engines map[string]string `json:"engines"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	engines := map[string]string{catalog.KindDirect.String(): "ready"}
	for _, k := range []catalog.Kind{catalog.KindNative, catalog.KindVM, catalog.KindEmbedded} {
		if err := s.problems[k]; err != nil {
			engines[k.String()] = "unavailable: " + err.Error()
			continue
		}
		engines[k.String()] = "ready"
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Engines: engines})
}

func (s *server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.All())
}

func (s *server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	out := s.dispatcher.Dispatch(r.Context(), batch.Batch(req.Files), catalog.Resolve(req.Language), s.runtimes)
	writeJSON(w, http.StatusOK, dispatchResponse{Files: out, Summary: out.Summary()})
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(queryDefault(r, "format", "md"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	lang, found := s.catalog.Lookup(catalog.Resolve(req.Language))
	if !found {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported language %q", req.Language))
		return
	}

	var opts []export.Option
	if title := r.URL.Query().Get("title"); title != "" {
		opts = append(opts, export.WithTitle(title))
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(lang.ID, format, time.Now())))
	if err := export.Write(w, format, batch.Batch(req.Files), lang, opts...); err != nil {
		s.logger.Error("export failed", "error", err)
	}
}

// decodeBatch reads a batchRequest, assigning ids and pending status to files
// that arrive without them.
func (s *server) decodeBatch(w http.ResponseWriter, r *http.Request) (batchRequest, bool) {
	var req batchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return req, false
	}
	if req.Language == "" {
		writeError(w, http.StatusBadRequest, "language required")
		return req, false
	}
	for i := range req.Files {
		f := &req.Files[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if f.Status == "" {
			f.Status = batch.StatusPending
		}
		if !f.Status.Valid() {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("file %d: invalid status %q", i, f.Status))
			return req, false
		}
	}
	return req, true
}

func queryDefault(r *http.Request, key, def string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
