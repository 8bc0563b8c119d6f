// Package delivery sends a batch of outbound actions to one recipient in order.
package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mangabot/internal/domain"
	"mangabot/internal/metrics"
)

const DefaultImageDelay = 500 * time.Millisecond

// Report summarizes one Deliver call.
type Report struct {
	BatchID string
	Texts   int // texts delivered
	Images  int // images delivered
	Failed  int // sends that failed, were skipped, or were abandoned on cancellation
}

// Sequencer spaces consecutive image sends by a fixed delay. Text sends are
// never delayed. A failed send never aborts the batch.
type Sequencer struct {
	delay  time.Duration
	logger *slog.Logger
}

type SequencerConfig struct {
	ImageDelay time.Duration // zero selects DefaultImageDelay, negative disables the gate
	Logger     *slog.Logger
}

func NewSequencer(cfg SequencerConfig) *Sequencer {
	if cfg.ImageDelay == 0 {
		cfg.ImageDelay = DefaultImageDelay
	}
	if cfg.ImageDelay < 0 {
		cfg.ImageDelay = 0
	}
	return &Sequencer{delay: cfg.ImageDelay, logger: cfg.Logger}
}

func (s *Sequencer) ImageDelay() time.Duration { return s.delay }

// Deliver runs actions strictly in order against m. It returns once every
// action has been attempted or ctx is cancelled.
func (s *Sequencer) Deliver(ctx context.Context, m domain.Messenger, recipientID string, actions []domain.OutboundAction) Report {
	rep := Report{BatchID: uuid.NewString()}
	if len(actions) == 0 {
		return rep
	}

	metrics.ActiveDeliveries.Inc()
	defer metrics.ActiveDeliveries.Dec()

	log := s.logger.With("batch", rep.BatchID, "recipient", recipientID)
	log.Debug("delivery started", "actions", len(actions))

	var lastImage time.Time
	for i, action := range actions {
		if ctx.Err() != nil {
			rep.Failed += len(actions) - i
			log.Warn("delivery cancelled", "remaining", len(actions)-i, "error", ctx.Err())
			break
		}

		switch action.Kind {
		case domain.ActionText:
			if err := m.SendText(ctx, recipientID, action.Text); err != nil {
				rep.Failed++
				metrics.SendFailures.Inc()
				log.Warn("send failed", "index", i, "kind", action.Kind, "error", err)
				continue
			}
			rep.Texts++
			metrics.TextsSent.Inc()

		case domain.ActionImage:
			if action.ImageURL == "" {
				rep.Failed++
				log.Warn("skipping image without url", "index", i)
				continue
			}
			if !lastImage.IsZero() {
				if err := waitUntil(ctx, lastImage.Add(s.delay)); err != nil {
					rep.Failed += len(actions) - i
					log.Warn("delivery cancelled", "remaining", len(actions)-i, "error", err)
					return rep
				}
			}
			lastImage = time.Now()
			if err := m.SendImage(ctx, recipientID, action.ImageURL); err != nil {
				rep.Failed++
				metrics.SendFailures.Inc()
				log.Warn("send failed", "index", i, "kind", action.Kind, "url", action.ImageURL, "error", err)
				continue
			}
			rep.Images++
			metrics.ImagesSent.Inc()

		default:
			rep.Failed++
			log.Warn("unknown action kind", "index", i, "kind", action.Kind)
		}
	}

	log.Debug("delivery finished", "texts", rep.Texts, "images", rep.Images, "failed", rep.Failed)
	return rep
}

// waitUntil blocks until deadline or ctx is done.
func waitUntil(ctx context.Context, deadline time.Time) error {
	d := time.Until(deadline)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
