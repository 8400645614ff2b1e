package store

import "time"

// Session statuses.
const (
	SessionWaiting   = "waiting"
	SessionActive    = "active"
	SessionPaused    = "paused"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

// Queue entry statuses.
const (
	QueueWaiting  = "waiting"
	QueueAccepted = "accepted"
	QueueRejected = "rejected"
	QueueExpired  = "expired"
)

type Session struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	HostID    string    `json:"host_id"`
	BoardSize int       `json:"board_size"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cell is one square of a session's shared board. CompletedBy holds the
// IDs of every player who marked the cell; IsMarked is derived from it.
type Cell struct {
	Position       int       `json:"position"`
	IsMarked       bool      `json:"is_marked"`
	CompletedBy    []string  `json:"completed_by"`
	LastModifiedBy string    `json:"last_modified_by,omitempty"`
	LastUpdated    time.Time `json:"last_updated,omitempty"`
}

type Player struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Color       string    `json:"color"`
	Team        string    `json:"team,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Criteria describes what a queued player is willing to be matched into.
// Zero-valued fields are wildcards.
type Criteria struct {
	BoardSize int    `json:"board_size,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Team      string `json:"team,omitempty"`
}

type QueueEntry struct {
	ID          string    `json:"id"`
	PlayerID    string    `json:"player_id"`
	DisplayName string    `json:"display_name"`
	Criteria    Criteria  `json:"criteria"`
	Status      string    `json:"status"`
	SessionID   string    `json:"session_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func TerminalSessionStatus(status string) bool {
	return status == SessionCompleted || status == SessionCancelled
}

func TerminalQueueStatus(status string) bool {
	switch status {
	case QueueAccepted, QueueRejected, QueueExpired:
		return true
	}
	return false
}
