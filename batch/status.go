package batch

// Status is the lifecycle state of a SourceFile.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Terminal reports whether no further automatic transition follows s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusSuccess, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether s may move to the given status.
// The only legal moves are pending -> running -> {success, error}.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusSuccess || to == StatusError
	}
	return false
}
