package stream

import (
	"strconv"
	"sync"
	"time"
)

// Event is one push event on a session or queue channel. Version carries
// the channel's monotonic state version for snapshot events and is zero
// for informational events (pings, notices).
type Event struct {
	EventID  string `json:"event_id"`
	Event    string `json:"event"`
	Channel  string `json:"channel"`
	Version  int64  `json:"version,omitempty"`
	ServerTS int64  `json:"server_ts"`
	Data     any    `json:"data"`
}

// Buffer is an append-only ring of events with watcher fan-out. Event IDs
// are monotonic per buffer, so a reconnecting consumer can replay
// everything after its Last-Event-ID.
type Buffer struct {
	mu       sync.Mutex
	nextID   int64
	max      int
	events   []Event
	watchers map[chan Event]struct{}
	closed   bool
}

func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = 500
	}
	return &Buffer{
		max:      max,
		watchers: map[chan Event]struct{}{},
	}
}

func (b *Buffer) Append(event, channel string, version int64, data any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Event{}
	}
	b.nextID++
	ev := Event{
		EventID:  strconv.FormatInt(b.nextID, 10),
		Event:    event,
		Channel:  channel,
		Version:  version,
		ServerTS: time.Now().UnixMilli(),
		Data:     data,
	}
	b.events = append(b.events, ev)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
	for ch := range b.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

func (b *Buffer) ReplayAfter(lastEventID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	last, err := strconv.ParseInt(lastEventID, 10, 64)
	if lastEventID == "" || err != nil {
		out := make([]Event, len(b.events))
		copy(out, b.events)
		return out
	}
	out := make([]Event, 0, len(b.events))
	for _, ev := range b.events {
		id, _ := strconv.ParseInt(ev.EventID, 10, 64)
		if id > last {
			out = append(out, ev)
		}
	}
	return out
}

func (b *Buffer) Subscribe() chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.watchers[ch] = struct{}{}
	return ch
}

func (b *Buffer) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watchers[ch]; ok {
		delete(b.watchers, ch)
		close(ch)
	}
}

func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.watchers {
		close(ch)
		delete(b.watchers, ch)
	}
}
