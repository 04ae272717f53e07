package pipeline

// State is a lifecycle state of a Pipeline or Session.
type State int

const (
	// StateIdle is a pipeline that has not ingested anything.
	StateIdle State = iota
	// StateLoading is a pipeline resolving paths and extracting text.
	StateLoading
	// StateIndexing is a pipeline splitting, enriching and indexing.
	StateIndexing
	// StateReady accepts questions.
	StateReady
	// StateAnswering is a session handling a question.
	StateAnswering
	// StateClosed is a session that no longer accepts questions.
	StateClosed
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateIndexing:
		return "indexing"
	case StateReady:
		return "ready"
	case StateAnswering:
		return "answering"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
