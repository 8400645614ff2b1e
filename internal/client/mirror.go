package client

import (
	"sync"
	"time"
)

// Kind partitions the mirror keyspace by resource type.
type Kind string

const (
	KindBoard    Kind = "board"
	KindSession  Kind = "session"
	KindPlayers  Kind = "players"
	KindQueue    Kind = "queue"
	KindPresence Kind = "presence"
)

type Key struct {
	Kind Kind
	ID   string
}

type Entry struct {
	Value     any
	Version   int64
	UpdatedAt time.Time
}

// Mirror is the client's explicit keyed store: (kind, id) to the last
// known snapshot plus its version and staleness metadata. Snapshots are
// replaced whole, never merged field by field.
type Mirror struct {
	mu      sync.Mutex
	entries map[Key]Entry
}

func NewMirror() *Mirror {
	return &Mirror{entries: map[Key]Entry{}}
}

func (m *Mirror) Get(key Key) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok
}

// Apply installs value under the version gate: strictly newer versions
// replace the entry, an equal version is a no-op skip (the snapshot is
// identical by construction), and older versions are discarded. Returns
// whether the entry changed.
func (m *Mirror) Apply(key Key, value any, version int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[key]; ok && version <= cur.Version {
		return false
	}
	m.entries[key] = Entry{Value: value, Version: version, UpdatedAt: time.Now()}
	return true
}

// Put replaces the entry unconditionally. Used for speculative applies,
// conflict resyncs and rollbacks, where the version gate must not apply.
func (m *Mirror) Put(key Key, value any, version int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = Entry{Value: value, Version: version, UpdatedAt: time.Now()}
}

func (m *Mirror) Drop(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}
