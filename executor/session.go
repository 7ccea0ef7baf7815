package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/caffeineduck/runsheet/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ErrSessionClosed is returned by Run after Close.
var ErrSessionClosed = errors.New("session closed")

// Session is a long-lived interpreter instance. Globals persist between Run
// calls; Run calls are serialized.
type Session struct {
	exec     *Executor
	lang     Language
	cfg      sessionConfig
	registry *hostfunc.Registry

	stdin       *io.PipeWriter
	stdinReader *io.PipeReader
	stdout      *sessionOutput
	protocol    *sessionProtocol
	module      api.Module
	modMu       sync.Mutex

	mu       sync.Mutex
	execMu   sync.Mutex
	closed   bool
	started  bool
	startErr error
}

type sessionConfig struct {
	timeout      time.Duration
	startTimeout time.Duration
	mounts       []DirMount
	packagesPath string
	env          map[string]string
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{
		timeout:      30 * time.Second,
		startTimeout: 30 * time.Second,
		env:          make(map[string]string),
	}
}

// SessionOption configures a Session at creation time.
type SessionOption func(*sessionConfig)

// WithSessionTimeout bounds each Session.Run call.
func WithSessionTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.timeout = d
	}
}

// WithSessionStartTimeout bounds how long NewSession waits for the
// interpreter to report ready.
func WithSessionStartTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.startTimeout = d
	}
}

// WithSessionMount mounts a host directory into the session's filesystem.
func WithSessionMount(hostPath, guestPath string, readOnly bool) SessionOption {
	return func(c *sessionConfig) {
		c.mounts = append(c.mounts, DirMount{HostPath: hostPath, GuestPath: guestPath, ReadOnly: readOnly})
	}
}

// WithPackages mounts path read-only at /packages and puts it on PYTHONPATH.
func WithPackages(path string) SessionOption {
	return func(c *sessionConfig) {
		c.packagesPath = path
	}
}

// WithSessionEnv sets a guest environment variable.
func WithSessionEnv(key, value string) SessionOption {
	return func(c *sessionConfig) {
		c.env[key] = value
	}
}

// NewSession boots a long-lived interpreter and waits for it to report ready.
func (e *Executor) NewSession(lang Language, opts ...SessionOption) (*Session, error) {
	cfg := defaultSessionConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cfg.env["RUNSHEET_SESSION"] = "1"

	if cfg.packagesPath != "" {
		cfg.mounts = append(cfg.mounts, DirMount{
			HostPath:  cfg.packagesPath,
			GuestPath: "/packages",
			ReadOnly:  true,
		})
		cfg.env["PYTHONPATH"] = "/packages"
	}

	registry := e.registry.Clone()
	registerBuiltins(registry)

	s := &Session{
		exec:     e,
		lang:     lang,
		cfg:      cfg,
		registry: registry,
	}

	if err := s.start(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Language returns the language the session was started with.
func (s *Session) Language() Language {
	return s.lang
}

func (s *Session) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	e := s.exec
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		s.startErr = ErrExecutorClosed
		return s.startErr
	}

	ctx := context.Background()

	compiled, err := e.getCompiled(ctx, s.lang)
	if err != nil {
		s.startErr = err
		return err
	}

	s.stdinReader, s.stdin = io.Pipe()
	s.stdout = newSessionOutput()
	s.protocol = newSessionProtocol(ctx, s.registry, s.stdin)

	initCode := s.lang.SessionInit() + s.lang.WrapCode("")
	args := s.lang.Args(initCode)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(s.stdout).
		WithStderr(s.protocol).
		WithStdin(s.stdinReader).
		WithArgs(args...).
		WithName("")

	for k, v := range s.cfg.env {
		moduleConfig = moduleConfig.WithEnv(k, v)
	}
	if len(s.cfg.mounts) > 0 {
		moduleConfig = moduleConfig.WithFSConfig(fsConfig(s.cfg.mounts))
	}

	exited := make(chan error, 1)
	go func() {
		mod, err := e.runtime.InstantiateModule(ctx, compiled, moduleConfig)
		if mod != nil {
			s.modMu.Lock()
			s.module = mod
			s.modMu.Unlock()
		}
		if err == nil {
			err = errors.New("interpreter exited")
		}
		exited <- err
	}()

	select {
	case <-s.protocol.Ready():
		s.started = true
		return nil
	case err := <-exited:
		s.startErr = fmt.Errorf("start session: %w", err)
		return s.startErr
	case <-time.After(s.cfg.startTimeout):
		s.startErr = errors.New("session start timeout")
		return s.startErr
	}
}

type execCommand struct {
	Type string `json:"type"`
	Code string `json:"code,omitempty"`
}

// Run executes code in the session and waits for it to finish.
func (s *Session) Run(ctx context.Context, code string) Result {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	start := time.Now()

	s.mu.Lock()
	closed, started, startErr := s.closed, s.started, s.startErr
	s.mu.Unlock()

	if closed {
		return Result{Error: ErrSessionClosed, Duration: time.Since(start)}
	}
	if !started {
		return Result{Error: startErr, Duration: time.Since(start)}
	}

	if s.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.timeout)
		defer cancel()
	}

	s.stdout.Reset()
	s.protocol.ResetExec()

	cmd := execCommand{Type: "exec", Code: code}
	cmdBytes, _ := json.Marshal(cmd)
	cmdBytes = append(cmdBytes, '\n')

	if _, err := s.stdin.Write(cmdBytes); err != nil {
		return Result{Error: fmt.Errorf("write command: %w", err), Duration: time.Since(start)}
	}

	select {
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timeout after %v", s.cfg.timeout)
		}
		return Result{
			Output:   s.stdout.String() + s.protocol.Stderr(),
			Error:    err,
			Duration: time.Since(start),
		}
	case execErr := <-s.protocol.Done():
		return Result{
			Output:   s.stdout.String() + s.protocol.Stderr(),
			Error:    execErr,
			Duration: time.Since(start),
		}
	}
}

// Close stops the interpreter. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// EOF on stdin ends the session loop even if the guest is mid-read.
	if s.stdinReader != nil {
		s.stdinReader.Close()
	}
	if s.stdin != nil {
		s.stdin.Close()
	}

	s.modMu.Lock()
	if s.module != nil {
		s.module.Close(context.Background())
	}
	s.modMu.Unlock()

	return nil
}

type sessionOutput struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func newSessionOutput() *sessionOutput {
	return &sessionOutput{}
}

func (o *sessionOutput) Write(data []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Write(data)
}

func (o *sessionOutput) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

func (o *sessionOutput) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.Reset()
}

const (
	sessionDoneSignal  = "\x00RUNSHEET_DONE\x00"
	sessionErrorPrefix = "\x00RUNSHEET_ERROR:"
	sessionReadySignal = "\x00RUNSHEET_READY\x00"
)

type sessionProtocol struct {
	ctx         context.Context
	registry    *hostfunc.Registry
	stdinWriter *io.PipeWriter

	buf        bytes.Buffer
	realStderr bytes.Buffer
	pending    []callRequest

	readyCh chan struct{}
	doneCh  chan error
	ready   bool

	mu      sync.Mutex
	writeMu sync.Mutex
}

func newSessionProtocol(ctx context.Context, registry *hostfunc.Registry, stdinWriter *io.PipeWriter) *sessionProtocol {
	return &sessionProtocol{
		ctx:         ctx,
		registry:    registry,
		stdinWriter: stdinWriter,
		pending:     make([]callRequest, 0),
		readyCh:     make(chan struct{}),
		doneCh:      make(chan error, 1),
	}
}

func (p *sessionProtocol) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(data)
	p.buf.Write(data)

	for {
		content := p.buf.String()

		if p.checkSessionSignals(content) {
			continue
		}

		if p.processProtocolMessages(content) {
			continue
		}

		break
	}

	return n, nil
}

func (p *sessionProtocol) checkSessionSignals(content string) bool {
	if idx := strings.Index(content, sessionReadySignal); idx != -1 {
		if idx > 0 {
			p.realStderr.WriteString(content[:idx])
		}
		p.buf.Reset()
		p.buf.WriteString(content[idx+len(sessionReadySignal):])

		if !p.ready {
			p.ready = true
			close(p.readyCh)
		}
		return true
	}

	if idx := strings.Index(content, sessionDoneSignal); idx != -1 {
		if idx > 0 {
			p.realStderr.WriteString(content[:idx])
		}
		p.buf.Reset()
		p.buf.WriteString(content[idx+len(sessionDoneSignal):])

		select {
		case p.doneCh <- nil:
		default:
		}
		return true
	}

	if idx := strings.Index(content, sessionErrorPrefix); idx != -1 {
		afterPrefix := content[idx+len(sessionErrorPrefix):]
		if endIdx := strings.Index(afterPrefix, "\x00"); endIdx != -1 {
			errMsg := afterPrefix[:endIdx]
			if idx > 0 {
				p.realStderr.WriteString(content[:idx])
			}
			p.buf.Reset()
			p.buf.WriteString(afterPrefix[endIdx+1:])

			select {
			case p.doneCh <- errors.New(errMsg):
			default:
			}
			return true
		}
	}

	return false
}

func (p *sessionProtocol) processProtocolMessages(content string) bool {
	idx, msgType := findNextMessage(content)
	if msgType == messageNone {
		return false
	}

	if idx > 0 {
		p.realStderr.WriteString(content[:idx])
		p.buf.Reset()
		p.buf.WriteString(content[idx:])
		content = p.buf.String()
		idx = 0
	}

	switch msgType {
	case messageFlush:
		payload, remaining, ok := extractMessage(content, idx, protocolFlushPrefix)
		if !ok {
			return false
		}
		p.buf.Reset()
		p.buf.WriteString(remaining)
		p.handleFlush(payload)
		return true

	case messageCall:
		payload, remaining, ok := extractMessage(content, idx, protocolPrefix)
		if !ok {
			return false
		}
		p.buf.Reset()
		p.buf.WriteString(remaining)
		p.handleCall(payload)
		return true
	}

	return false
}

func (p *sessionProtocol) handleFlush(payload string) {
	count := 0
	fmt.Sscanf(payload, "%d", &count)
	if count <= 0 || count > len(p.pending) {
		count = len(p.pending)
	}
	if count == 0 {
		return
	}

	requests := p.pending[:count]
	p.pending = p.pending[count:]

	var wg sync.WaitGroup
	wg.Add(len(requests))

	for _, req := range requests {
		go func(r callRequest) {
			defer wg.Done()
			resp := executeCall(p.ctx, p.registry, r)
			resp.ID = r.ID
			p.respond(resp)
		}(req)
	}

	wg.Wait()
}

func (p *sessionProtocol) handleCall(payload string) {
	var req callRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		go p.respond(callResponse{Error: "invalid call format"})
		return
	}

	if req.ID != "" {
		p.pending = append(p.pending, req)
	} else {
		// Execute and respond in goroutine to avoid blocking Write()
		go func() {
			resp := executeCall(p.ctx, p.registry, req)
			p.respond(resp)
		}()
	}
}

func (p *sessionProtocol) respond(resp callResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"error":"internal: failed to marshal response"}`)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.stdinWriter.Write(append(data, '\n'))
}

func (p *sessionProtocol) Ready() <-chan struct{} {
	return p.readyCh
}

func (p *sessionProtocol) Done() <-chan error {
	return p.doneCh
}

func (p *sessionProtocol) ResetExec() {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.doneCh:
	default:
	}
	p.doneCh = make(chan error, 1)
	p.realStderr.Reset()
}

func (p *sessionProtocol) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String()
}
