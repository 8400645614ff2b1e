package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/PromptLogic1/Arcadia-sub004/internal/board"
	"github.com/PromptLogic1/Arcadia-sub004/internal/matchmaking"
	"github.com/PromptLogic1/Arcadia-sub004/internal/stream"
)

// ChannelState is the push-path state of one synchronized channel.
type ChannelState string

const (
	StateDisconnected ChannelState = "disconnected"
	StateSubscribing  ChannelState = "subscribing"
	StateLive         ChannelState = "live"
)

type ChannelKind int

const (
	SessionChannel ChannelKind = iota
	QueueChannel
	PresenceChannel
)

const (
	defaultPollInterval   = 5 * time.Second
	defaultRetryDelay     = 2 * time.Second
	defaultRequestTimeout = 10 * time.Second
)

type Options struct {
	PollInterval   time.Duration
	RetryDelay     time.Duration
	RequestTimeout time.Duration
	// OnMatch fires when the queue channel reports a completed match.
	OnMatch func(matchmaking.MatchNotice)
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaultRequestTimeout
	}
	return o
}

// Synchronizer keeps one channel's mirror entries fresh through the dual
// push/poll design: a push subscription when the channel is healthy, a
// fixed-interval poll whenever it is not, both feeding the same
// version-gated snapshot replace. The poll path is always armed; it is
// only suppressed, never torn down, while the push path is live.
type Synchronizer struct {
	backend Backend
	mirror  *Mirror
	channel string
	kind    ChannelKind
	opts    Options

	mu          sync.Mutex
	state       ChannelState
	lastEventID string
	pollCancel  context.CancelFunc
}

func NewSessionSynchronizer(backend Backend, mirror *Mirror, sessionID string, opts Options) *Synchronizer {
	return newSynchronizer(backend, mirror, sessionID, SessionChannel, opts)
}

func NewQueueSynchronizer(backend Backend, mirror *Mirror, opts Options) *Synchronizer {
	return newSynchronizer(backend, mirror, matchmaking.QueueChannel, QueueChannel, opts)
}

// NewPresenceSynchronizer is poll-only: presence has no push stream, its
// liveness is derived server-side from heartbeat recency.
func NewPresenceSynchronizer(backend Backend, mirror *Mirror, channel string, opts Options) *Synchronizer {
	return newSynchronizer(backend, mirror, channel, PresenceChannel, opts)
}

func newSynchronizer(backend Backend, mirror *Mirror, channel string, kind ChannelKind, opts Options) *Synchronizer {
	return &Synchronizer{
		backend: backend,
		mirror:  mirror,
		channel: channel,
		kind:    kind,
		opts:    opts.withDefaults(),
		state:   StateDisconnected,
	}
}

func (s *Synchronizer) State() ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run drives the state machine until ctx is cancelled:
// disconnected -> subscribing -> live, back to disconnected on any drop,
// with polling active in every non-live state.
func (s *Synchronizer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		if s.kind == PresenceChannel {
			s.startPoll(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}

		s.setState(StateSubscribing)
		subCtx, cancel := context.WithCancel(ctx)
		events, err := s.backend.Subscribe(subCtx, s.channel, s.currentEventID())
		if err != nil {
			cancel()
			s.setState(StateDisconnected)
			s.startPoll(ctx)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.opts.RetryDelay):
			}
			continue
		}

		s.setState(StateLive)
	live:
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case ev, ok := <-events:
				if !ok {
					break live
				}
				s.handleEvent(ev)
			case <-ticker.C:
				// Polling stays armed but suppressed while live.
			}
		}
		cancel()
		s.setState(StateDisconnected)
		// Immediate refetch covers whatever the dropped stream lost.
		s.startPoll(ctx)
	}
}

func (s *Synchronizer) handleEvent(ev stream.Event) {
	applied := false
	switch ev.Event {
	case board.EventBoardUpdated:
		var snap board.BoardSnapshot
		if !decodePayload(ev.Data, &snap) {
			return
		}
		applied = s.mirror.Apply(Key{Kind: KindBoard, ID: ev.Channel}, snap, ev.Version)
	case board.EventSessionUpdated:
		var snap board.SessionSnapshot
		if !decodePayload(ev.Data, &snap) {
			return
		}
		applied = s.mirror.Apply(Key{Kind: KindSession, ID: ev.Channel}, snap, ev.Version)
	case board.EventPlayersUpdated:
		var snap board.PlayersSnapshot
		if !decodePayload(ev.Data, &snap) {
			return
		}
		applied = s.mirror.Apply(Key{Kind: KindPlayers, ID: ev.Channel}, snap, ev.Version)
	case matchmaking.EventQueueUpdated:
		var snap matchmaking.QueueSnapshot
		if !decodePayload(ev.Data, &snap) {
			return
		}
		applied = s.mirror.Apply(Key{Kind: KindQueue, ID: matchmaking.QueueChannel}, snap, ev.Version)
	case matchmaking.EventQueueMatched:
		var notice matchmaking.MatchNotice
		if decodePayload(ev.Data, &notice) && s.opts.OnMatch != nil {
			s.opts.OnMatch(notice)
		}
	default:
		return
	}
	if ev.EventID != "" {
		s.mu.Lock()
		s.lastEventID = ev.EventID
		s.mu.Unlock()
	}
	if applied {
		// A fresher push supersedes any in-flight refetch.
		s.cancelInflightPoll()
	}
}

// pollOnce re-fetches the channel's state and applies it under the same
// version gate the push path uses.
func (s *Synchronizer) pollOnce(ctx context.Context) error {
	switch s.kind {
	case SessionChannel:
		cells, version, err := s.backend.GetBoardState(ctx, s.channel)
		if err != nil {
			return err
		}
		s.mirror.Apply(Key{Kind: KindBoard, ID: s.channel}, board.BoardSnapshot{Cells: cells, Version: version}, version)
		sess, err := s.backend.GetSessionState(ctx, s.channel)
		if err != nil {
			return err
		}
		s.mirror.Apply(Key{Kind: KindSession, ID: s.channel}, board.SessionSnapshot{Session: sess}, sess.Version)
		return nil
	case QueueChannel:
		snap, err := s.backend.GetQueueState(ctx)
		if err != nil {
			return err
		}
		s.mirror.Apply(Key{Kind: KindQueue, ID: matchmaking.QueueChannel}, snap, snap.Version)
		return nil
	case PresenceChannel:
		snap, err := s.backend.GetPresenceSnapshot(ctx, s.channel)
		if err != nil {
			return err
		}
		// Presence has no mutation version; heartbeat recency is the
		// only ordering, so the snapshot timestamp gates staleness.
		s.mirror.Apply(Key{Kind: KindPresence, ID: s.channel}, snap, snap.TakenAt.UnixMilli())
		return nil
	}
	return nil
}

func (s *Synchronizer) startPoll(ctx context.Context) {
	s.mu.Lock()
	if s.pollCancel != nil {
		s.mu.Unlock()
		return
	}
	pollCtx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	s.pollCancel = cancel
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			s.pollCancel = nil
			s.mu.Unlock()
		}()
		if err := s.pollOnce(pollCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Str("channel", s.channel).Msg("poll refetch failed")
		}
	}()
}

func (s *Synchronizer) cancelInflightPoll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollCancel != nil {
		s.pollCancel()
	}
}

func (s *Synchronizer) currentEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

func (s *Synchronizer) setState(state ChannelState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// decodePayload accepts either an in-process typed payload or the JSON
// form it takes on the wire.
func decodePayload[T any](data any, target *T) bool {
	if v, ok := data.(T); ok {
		*target = v
		return true
	}
	switch v := data.(type) {
	case json.RawMessage:
		return json.Unmarshal(v, target) == nil
	case []byte:
		return json.Unmarshal(v, target) == nil
	default:
		raw, err := json.Marshal(data)
		if err != nil {
			return false
		}
		return json.Unmarshal(raw, target) == nil
	}
}
