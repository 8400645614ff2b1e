package board

import (
	"errors"
	"fmt"

	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
)

var (
	ErrNotFound      = errors.New("session_not_found")
	ErrInvalidState  = errors.New("invalid_state")
	ErrColorTaken    = errors.New("color_taken")
	ErrInvalidCell   = errors.New("invalid_cell")
	ErrInvalidAction = errors.New("invalid_action")
)

// VersionConflict is returned when a mutation carries a stale expected
// version. It carries the authoritative state so the caller can rebase
// instead of blindly retrying.
type VersionConflict struct {
	Cells   []store.Cell
	Version int64
}

func (e *VersionConflict) Error() string {
	return fmt.Sprintf("version_conflict: authoritative version %d", e.Version)
}
