package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/PromptLogic1/Arcadia-sub004/internal/board"
	"github.com/PromptLogic1/Arcadia-sub004/internal/matchmaking"
	"github.com/PromptLogic1/Arcadia-sub004/internal/presence"
	"github.com/PromptLogic1/Arcadia-sub004/internal/store"
	"github.com/PromptLogic1/Arcadia-sub004/internal/stream"
)

// HTTPBackend implements Backend against the sync server's REST and SSE
// surface.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (b *HTTPBackend) GetSessionState(ctx context.Context, sessionID string) (store.Session, error) {
	var sess store.Session
	err := b.doJSON(ctx, http.MethodGet, "/api/sessions/"+sessionID, nil, &sess)
	return sess, err
}

func (b *HTTPBackend) GetBoardState(ctx context.Context, sessionID string) ([]store.Cell, int64, error) {
	var snap board.BoardSnapshot
	if err := b.doJSON(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/board", nil, &snap); err != nil {
		return nil, 0, err
	}
	return snap.Cells, snap.Version, nil
}

func (b *HTTPBackend) SubmitCellMutation(ctx context.Context, sessionID string, position int, playerID, action string, expectedVersion int64) ([]store.Cell, int64, error) {
	body := map[string]any{
		"player_id":        playerID,
		"action":           action,
		"expected_version": expectedVersion,
	}
	var snap board.BoardSnapshot
	err := b.doJSON(ctx, http.MethodPost, fmt.Sprintf("/api/sessions/%s/board/%d", sessionID, position), body, &snap)
	if err != nil {
		return nil, 0, err
	}
	return snap.Cells, snap.Version, nil
}

func (b *HTTPBackend) GetSessionPlayers(ctx context.Context, sessionID string) ([]store.Player, error) {
	var out struct {
		Players []store.Player `json:"players"`
	}
	if err := b.doJSON(ctx, http.MethodGet, "/api/sessions/"+sessionID+"/players", nil, &out); err != nil {
		return nil, err
	}
	return out.Players, nil
}

func (b *HTTPBackend) JoinQueue(ctx context.Context, player store.Player, criteria store.Criteria) (store.QueueEntry, error) {
	body := map[string]any{
		"player_id":    player.ID,
		"display_name": player.DisplayName,
		"criteria":     criteria,
	}
	var entry store.QueueEntry
	err := b.doJSON(ctx, http.MethodPost, "/api/queue", body, &entry)
	return entry, err
}

func (b *HTTPBackend) LeaveQueue(ctx context.Context, entryID string) error {
	return b.doJSON(ctx, http.MethodDelete, "/api/queue/"+entryID, nil, nil)
}

func (b *HTTPBackend) AcceptQueueEntry(ctx context.Context, entryID, sessionID string) error {
	return b.doJSON(ctx, http.MethodPost, "/api/queue/"+entryID+"/accept", map[string]any{"session_id": sessionID}, nil)
}

func (b *HTTPBackend) RejectQueueEntry(ctx context.Context, entryID string) error {
	return b.doJSON(ctx, http.MethodPost, "/api/queue/"+entryID+"/reject", nil, nil)
}

func (b *HTTPBackend) CleanupExpiredQueue(ctx context.Context) (int, error) {
	var out struct {
		Removed int `json:"removed"`
	}
	err := b.doJSON(ctx, http.MethodPost, "/api/queue/cleanup", nil, &out)
	return out.Removed, err
}

func (b *HTTPBackend) GetQueueState(ctx context.Context) (matchmaking.QueueSnapshot, error) {
	var snap matchmaking.QueueSnapshot
	err := b.doJSON(ctx, http.MethodGet, "/api/queue", nil, &snap)
	return snap, err
}

func (b *HTTPBackend) Heartbeat(ctx context.Context, channel, playerID string, metadata map[string]any) error {
	body := map[string]any{"player_id": playerID, "metadata": metadata}
	return b.doJSON(ctx, http.MethodPost, "/api/presence/"+channel+"/heartbeat", body, nil)
}

func (b *HTTPBackend) GetPresenceSnapshot(ctx context.Context, channel string) (presence.Snapshot, error) {
	var snap presence.Snapshot
	err := b.doJSON(ctx, http.MethodGet, "/api/presence/"+channel, nil, &snap)
	return snap, err
}

// Subscribe opens the channel's SSE stream and decodes it back into
// stream.Events. The returned channel closes when the stream ends for any
// reason; the synchronizer treats that as a drop and falls back to
// polling.
func (b *HTTPBackend) Subscribe(ctx context.Context, channel, lastEventID string) (<-chan stream.Event, error) {
	path := "/api/sessions/" + channel + "/events"
	if channel == matchmaking.QueueChannel {
		path = "/api/queue/events"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	res, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, fmt.Errorf("subscribe %s: status %d", channel, res.StatusCode)
	}

	out := make(chan stream.Event, 32)
	go func() {
		defer close(out)
		defer res.Body.Close()
		scanner := bufio.NewScanner(res.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev wireEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				log.Debug().Err(err).Str("channel", channel).Msg("bad stream event")
				continue
			}
			select {
			case <-ctx.Done():
				return
			case out <- stream.Event{
				EventID:  ev.EventID,
				Event:    ev.Event,
				Channel:  ev.Channel,
				Version:  ev.Version,
				ServerTS: ev.ServerTS,
				Data:     ev.Data,
			}:
			}
		}
	}()
	return out, nil
}

// wireEvent keeps the payload raw so the synchronizer can decode it into
// the right snapshot type.
type wireEvent struct {
	EventID  string          `json:"event_id"`
	Event    string          `json:"event"`
	Channel  string          `json:"channel"`
	Version  int64           `json:"version"`
	ServerTS int64           `json:"server_ts"`
	Data     json.RawMessage `json:"data"`
}

func (b *HTTPBackend) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return decodeAPIError(res)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func decodeAPIError(res *http.Response) error {
	var payload struct {
		Error   string       `json:"error"`
		Cells   []store.Cell `json:"cells"`
		Version int64        `json:"version"`
	}
	_ = json.NewDecoder(res.Body).Decode(&payload)
	switch payload.Error {
	case "version_conflict":
		return &board.VersionConflict{Cells: payload.Cells, Version: payload.Version}
	case "session_not_found":
		return board.ErrNotFound
	case "entry_not_found":
		return matchmaking.ErrNotFound
	case "already_queued":
		return matchmaking.ErrAlreadyQueued
	case "invalid_state":
		if res.Request != nil && strings.Contains(res.Request.URL.Path, "/queue") {
			return matchmaking.ErrInvalidState
		}
		return board.ErrInvalidState
	case "color_taken":
		return board.ErrColorTaken
	case "invalid_cell":
		return board.ErrInvalidCell
	case "":
		return fmt.Errorf("status %d", res.StatusCode)
	default:
		return fmt.Errorf("%s (status %d)", payload.Error, res.StatusCode)
	}
}
