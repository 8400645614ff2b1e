package matchmaking

import "github.com/PromptLogic1/Arcadia-sub004/internal/store"

// MatchStrategy picks an opponent for a newcomer from the waiting pool.
// Implementations must not mutate the entries; the manager guarantees no
// entry is offered once it has been matched.
type MatchStrategy interface {
	Match(newcomer store.QueueEntry, waiting []store.QueueEntry) (entryID string, ok bool)
}

// FIFOStrategy pairs the newcomer with the oldest compatible waiting
// entry. Zero-valued criteria fields act as wildcards.
type FIFOStrategy struct{}

func (FIFOStrategy) Match(newcomer store.QueueEntry, waiting []store.QueueEntry) (string, bool) {
	for _, e := range waiting {
		if e.PlayerID == newcomer.PlayerID {
			continue
		}
		if compatible(newcomer.Criteria, e.Criteria) {
			return e.ID, true
		}
	}
	return "", false
}

func compatible(a, b store.Criteria) bool {
	if a.BoardSize != 0 && b.BoardSize != 0 && a.BoardSize != b.BoardSize {
		return false
	}
	if a.Mode != "" && b.Mode != "" && a.Mode != b.Mode {
		return false
	}
	return true
}

// boardSizeFor resolves the grid for a matched pair: the first explicit
// request wins, otherwise the default.
func boardSizeFor(a, b store.Criteria) int {
	if a.BoardSize != 0 {
		return a.BoardSize
	}
	return b.BoardSize
}
