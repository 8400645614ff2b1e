package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// SyncConfig holds the live-session tunables: liveness windows, queue
// expiry and the poll cadences of the fallback path.
type SyncConfig struct {
	PresenceTTLSeconds    int `env:"PRESENCE_TTL_SECONDS" envDefault:"30"`
	QueueTTLSeconds       int `env:"QUEUE_TTL_SECONDS" envDefault:"60"`
	JanitorIntervalSecs   int `env:"JANITOR_INTERVAL_SECONDS" envDefault:"5"`
	BoardPollSeconds      int `env:"BOARD_POLL_SECONDS" envDefault:"5"`
	ChannelPollSeconds    int `env:"CHANNEL_POLL_SECONDS" envDefault:"15"`
	MutationTimeoutSecs   int `env:"MUTATION_TIMEOUT_SECONDS" envDefault:"10"`
	EventBufferSize       int `env:"EVENT_BUFFER_SIZE" envDefault:"500"`
	DefaultBoardCellCount int `env:"DEFAULT_BOARD_CELLS" envDefault:"25"`
}

func LoadSync() (SyncConfig, error) {
	var cfg SyncConfig
	err := env.Parse(&cfg)
	return cfg, err
}

func (c SyncConfig) PresenceTTL() time.Duration {
	return time.Duration(c.PresenceTTLSeconds) * time.Second
}

func (c SyncConfig) QueueTTL() time.Duration {
	return time.Duration(c.QueueTTLSeconds) * time.Second
}

func (c SyncConfig) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorIntervalSecs) * time.Second
}

func (c SyncConfig) BoardPoll() time.Duration {
	return time.Duration(c.BoardPollSeconds) * time.Second
}

func (c SyncConfig) ChannelPoll() time.Duration {
	return time.Duration(c.ChannelPollSeconds) * time.Second
}

func (c SyncConfig) MutationTimeout() time.Duration {
	return time.Duration(c.MutationTimeoutSecs) * time.Second
}
