// Package batch holds the uniform per-file result model shared by every
// execution engine.
//
// A Batch is an ordered list of SourceFile values. Engines never mutate a
// caller's Batch; the dispatcher works on a Clone and hands the clone back.
package batch

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Placeholder is the output recorded for a successful run that printed nothing.
const Placeholder = "(No output)"

// NotExecuted is the output shown by exporters for a file that never ran.
const NotExecuted = "(Not executed)"

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicateID       = errors.New("duplicate file id")
	ErrEmptyID           = errors.New("empty file id")
)

// SourceFile is one uploaded file and the result of running it.
type SourceFile struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Output  string `json:"output"`
	Status  Status `json:"status"`
}

// New returns a pending file with a freshly assigned id.
func New(name, content string) SourceFile {
	return SourceFile{
		ID:      uuid.NewString(),
		Name:    name,
		Content: content,
		Status:  StatusPending,
	}
}

// Advance returns a copy of f moved to the given status.
func (f SourceFile) Advance(to Status) (SourceFile, error) {
	if !f.Status.CanTransition(to) {
		return f, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.Status, to)
	}
	f.Status = to
	return f, nil
}

// Finish moves a running file to a terminal status with the given output.
func (f SourceFile) Finish(status Status, output string) (SourceFile, error) {
	if !status.Terminal() {
		return f, fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}
	next, err := f.Advance(status)
	if err != nil {
		return f, err
	}
	next.Output = output
	return next, nil
}

// Rearm returns f back in the pending state so a new run can start it.
// Terminal states only hold for the run that produced them; a file that
// errored last time is eligible again. Output is kept until the run
// overwrites it.
func (f SourceFile) Rearm() SourceFile {
	if f.Status != StatusSuccess {
		f.Status = StatusPending
	}
	return f
}

// Batch is an ordered set of files submitted together.
type Batch []SourceFile

// Clone returns a copy that shares no backing array with b.
func (b Batch) Clone() Batch {
	if b == nil {
		return nil
	}
	out := make(Batch, len(b))
	copy(out, b)
	return out
}

// IDs returns the file ids in batch order.
func (b Batch) IDs() []string {
	ids := make([]string, len(b))
	for i, f := range b {
		ids[i] = f.ID
	}
	return ids
}

// Validate reports the first empty or repeated id.
func (b Batch) Validate() error {
	seen := make(map[string]struct{}, len(b))
	for i, f := range b {
		if f.ID == "" {
			return fmt.Errorf("%w at index %d", ErrEmptyID, i)
		}
		if _, ok := seen[f.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateID, f.ID)
		}
		seen[f.ID] = struct{}{}
	}
	return nil
}

// Summary counts files per status.
type Summary struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Running int `json:"running"`
	Success int `json:"success"`
	Error   int `json:"error"`
}

// Summary counts the files in b by status.
func (b Batch) Summary() Summary {
	s := Summary{Total: len(b)}
	for _, f := range b {
		switch f.Status {
		case StatusPending:
			s.Pending++
		case StatusRunning:
			s.Running++
		case StatusSuccess:
			s.Success++
		case StatusError:
			s.Error++
		}
	}
	return s
}
