package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/caffeineduck/runsheet/hostfunc"
)

// Protocol constants - used by language stdlibs to communicate with the host.
// Format: \x00RUNSHEET:{json}\x00 for calls, \x00RUNSHEET_FLUSH:n\x00 to resolve
// n queued async calls.
const (
	protocolPrefix      = "\x00RUNSHEET:"
	protocolFlushPrefix = "\x00RUNSHEET_FLUSH:"
	protocolSuffix      = "\x00"
)

type messageType int

const (
	messageNone messageType = iota
	messageCall
	messageFlush
)

type callRequest struct {
	ID   string         `json:"id,omitempty"`
	Fn   string         `json:"fn"`
	Args map[string]any `json:"args"`
}

type callResponse struct {
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// findNextMessage returns the index and type of the earliest protocol
// message in content.
func findNextMessage(content string) (int, messageType) {
	callIdx := strings.Index(content, protocolPrefix)
	flushIdx := strings.Index(content, protocolFlushPrefix)

	switch {
	case callIdx == -1 && flushIdx == -1:
		return -1, messageNone
	case callIdx == -1:
		return flushIdx, messageFlush
	case flushIdx == -1:
		return callIdx, messageCall
	case flushIdx < callIdx:
		return flushIdx, messageFlush
	default:
		return callIdx, messageCall
	}
}

// extractMessage cuts the message starting at idx. When the terminator has not
// arrived yet ok is false and remaining holds the partial message.
func extractMessage(content string, idx int, prefix string) (payload, remaining string, ok bool) {
	body := content[idx+len(prefix):]
	end := strings.Index(body, protocolSuffix)
	if end == -1 {
		return "", content[idx:], false
	}
	return body[:end], body[end+len(protocolSuffix):], true
}

func executeCall(ctx context.Context, registry *hostfunc.Registry, req callRequest) callResponse {
	fn, ok := registry.Get(req.Fn)
	if !ok {
		return callResponse{Error: "unknown function: " + req.Fn}
	}

	result, err := fn(ctx, req.Args)
	if err != nil {
		return callResponse{Error: err.Error()}
	}
	return callResponse{Data: result}
}

// protocolHandler intercepts stderr to handle host function calls.
// Regular stderr output passes through; protocol messages trigger host calls.
type protocolHandler struct {
	ctx         context.Context
	registry    *hostfunc.Registry
	stdinWriter *io.PipeWriter
	realStderr  bytes.Buffer
	buf         bytes.Buffer
	mu          sync.Mutex
	writeMu     sync.Mutex
}

func newProtocolHandler(ctx context.Context, registry *hostfunc.Registry, stdinWriter *io.PipeWriter) *protocolHandler {
	return &protocolHandler{
		ctx:         ctx,
		registry:    registry,
		stdinWriter: stdinWriter,
	}
}

func (p *protocolHandler) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)

	for {
		content := p.buf.String()
		idx, msgType := findNextMessage(content)
		if msgType == messageNone {
			p.realStderr.WriteString(content)
			p.buf.Reset()
			break
		}

		p.realStderr.WriteString(content[:idx])

		prefix := protocolPrefix
		if msgType == messageFlush {
			prefix = protocolFlushPrefix
		}

		payload, remaining, ok := extractMessage(content, idx, prefix)
		p.buf.Reset()
		p.buf.WriteString(remaining)
		if !ok {
			break
		}

		// One-shot runs resolve calls synchronously, so flushes have nothing queued.
		if msgType == messageFlush {
			continue
		}

		var req callRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			go p.respond(callResponse{Error: "invalid call format"})
			continue
		}

		resp := executeCall(p.ctx, p.registry, req)
		resp.ID = req.ID
		go p.respond(resp)
	}

	return len(data), nil
}

func (p *protocolHandler) respond(resp callResponse) {
	data, _ := json.Marshal(resp)
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.stdinWriter.Write(append(data, '\n'))
}

func (p *protocolHandler) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String()
}
