package crawler

import "fmt"

// State is the lifecycle state of a crawl.
type State int32

const (
	// StateIdle is the state before Run.
	StateIdle State = iota
	// StateSeeding validates the root URL, loads the checkpoint and fills
	// the frontier.
	StateSeeding
	// StateCrawling processes pages.
	StateCrawling
	// StateCompleted means the frontier or the page budget was exhausted.
	StateCompleted
	// StateInterrupted means the context was cancelled. The checkpoint is kept.
	StateInterrupted
	// StateFailed means a fatal error stopped the run. The checkpoint is kept.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSeeding:
		return "seeding"
	case StateCrawling:
		return "crawling"
	case StateCompleted:
		return "completed"
	case StateInterrupted:
		return "interrupted"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateInterrupted || s == StateFailed
}
