package bus

import (
	"log/slog"
	"sync"
	"time"

	"mangabot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based event bus between channels and the bot loop.
type InMemoryBus struct {
	inbound chan domain.InboundEvent
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.InboundEvent, bufferSize),
		logger:  logger,
	}
}

// Publish blocks up to publishTimeout when the buffer is full, then drops.
func (b *InMemoryBus) Publish(evt domain.InboundEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("publish on closed bus", "channel", evt.Channel, "sender", evt.SenderID)
		return
	}

	select {
	case b.inbound <- evt:
		return
	default:
	}

	b.logger.Warn("inbound bus full, waiting", "channel", evt.Channel, "sender", evt.SenderID)
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case b.inbound <- evt:
	case <-timer.C:
		b.logger.Error("event dropped: bus full",
			"channel", evt.Channel,
			"sender", evt.SenderID,
			"waited", publishTimeout,
		)
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.InboundEvent {
	return b.inbound
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
