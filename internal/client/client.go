package client

import (
	"github.com/PromptLogic1/Arcadia-sub004/internal/config"
	"github.com/PromptLogic1/Arcadia-sub004/internal/matchmaking"
)

// Client bundles a backend with one shared mirror and hands out
// synchronizers and mutators configured from the sync tunables: board
// channels poll on the tighter cadence, queue and presence channels on
// the slower one.
type Client struct {
	backend Backend
	mirror  *Mirror
	cfg     config.SyncConfig
}

func New(backend Backend, cfg config.SyncConfig) *Client {
	return &Client{
		backend: backend,
		mirror:  NewMirror(),
		cfg:     cfg,
	}
}

func (c *Client) Mirror() *Mirror {
	return c.mirror
}

func (c *Client) SessionSynchronizer(sessionID string) *Synchronizer {
	return NewSessionSynchronizer(c.backend, c.mirror, sessionID, Options{
		PollInterval:   c.cfg.BoardPoll(),
		RequestTimeout: c.cfg.MutationTimeout(),
	})
}

func (c *Client) QueueSynchronizer(onMatch func(matchmaking.MatchNotice)) *Synchronizer {
	return NewQueueSynchronizer(c.backend, c.mirror, Options{
		PollInterval:   c.cfg.ChannelPoll(),
		RequestTimeout: c.cfg.MutationTimeout(),
		OnMatch:        onMatch,
	})
}

func (c *Client) PresenceSynchronizer(channel string) *Synchronizer {
	return NewPresenceSynchronizer(c.backend, c.mirror, channel, Options{
		PollInterval:   c.cfg.ChannelPoll(),
		RequestTimeout: c.cfg.MutationTimeout(),
	})
}

func (c *Client) BoardMutator(sessionID, playerID string) *BoardMutator {
	return NewBoardMutator(c.backend, c.mirror, sessionID, playerID, c.cfg.MutationTimeout())
}
