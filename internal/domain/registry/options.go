package registry

import "log/slog"

type hubConfig struct {
	mailboxSize int
}

func defaultConfig() hubConfig {
	return hubConfig{mailboxSize: 2048}
}

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithMailboxSize sets the [BACKPRESSURE] threshold: the buffer capacity of
// each room cell's mailbox.
func WithMailboxSize(size int) Option {
	return func(h *Hub) {
		h.config.mailboxSize = size
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}
