// Package bot wires inbound events through the conversation engine to the
// delivery sequencer.
package bot

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"mangabot/internal/conversation"
	"mangabot/internal/delivery"
	"mangabot/internal/domain"
	"mangabot/internal/history"
	"mangabot/internal/metrics"
	"mangabot/internal/session"
)

const (
	defaultConcurrency = 10
	historyTimeout     = 5 * time.Second
)

// History receives a record of every search and chapter delivery.
type History interface {
	RecordSearch(ctx context.Context, rec history.SearchRecord) error
	RecordDelivery(ctx context.Context, rec history.DeliveryRecord) error
}

// Loop consumes the bus. Different users are handled in parallel up to the
// concurrency limit; one user's events are handled one at a time in arrival order.
type Loop struct {
	bus         domain.MessageBus
	engine      *conversation.Engine
	sequencer   *delivery.Sequencer
	locker      *session.Locker
	sessions    interface{ Len() int }
	messengers  map[string]domain.Messenger
	history     History
	logger      *slog.Logger
	concurrency int

	wg sync.WaitGroup
}

type LoopConfig struct {
	Bus        domain.MessageBus
	Engine     *conversation.Engine
	Sequencer  *delivery.Sequencer
	Locker     *session.Locker             // optional
	Sessions   interface{ Len() int }      // optional, feeds the active sessions gauge
	Messengers map[string]domain.Messenger // keyed by channel name
	History    History                     // optional
	Logger     *slog.Logger

	// Concurrency is the max number of events handled at once (default 10).
	Concurrency int
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Locker == nil {
		cfg.Locker = session.NewLocker()
	}
	return &Loop{
		bus:         cfg.Bus,
		engine:      cfg.Engine,
		sequencer:   cfg.Sequencer,
		locker:      cfg.Locker,
		sessions:    cfg.Sessions,
		messengers:  cfg.Messengers,
		history:     cfg.History,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
	}
}

// Run processes inbound events until ctx is cancelled or the bus closes, then
// waits for in-flight events to finish.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("bot loop started", "concurrency", l.concurrency)
	defer l.wg.Wait()

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("bot loop stopping")
			return
		case evt, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound bus closed, bot loop stopping")
				return
			}
			// Reserve the user's turn before spawning so arrival order survives.
			turn := l.locker.Enqueue(evt.UserKey())
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				turn.Release()
				return
			}
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				defer func() { <-sem }()
				defer turn.Release()
				turn.Wait()
				l.Process(ctx, evt)
			}()
		}
	}
}

// Process handles one event synchronously. It never panics.
func (l *Loop) Process(ctx context.Context, evt domain.InboundEvent) {
	start := time.Now()
	log := l.logger.With("channel", evt.Channel, "sender", evt.SenderID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling message", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	messenger, ok := l.messengers[evt.Channel]
	if !ok {
		log.Warn("no messenger for channel, dropping message")
		return
	}

	metrics.MessagesTotal.Inc()
	out := l.engine.Handle(ctx, evt)
	l.count(out)
	if out.Kind == conversation.OutcomeIgnored {
		return
	}

	rep := l.sequencer.Deliver(ctx, messenger, evt.SenderID, out.Actions)
	l.record(ctx, evt, out, rep)

	log.Info("message handled",
		"outcome", out.Kind,
		"batch", rep.BatchID,
		"texts", rep.Texts,
		"images", rep.Images,
		"failed", rep.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (l *Loop) count(out conversation.Outcome) {
	switch out.Kind {
	case conversation.OutcomeReset:
		metrics.ResetsTotal.Inc()
	case conversation.OutcomeSearch:
		metrics.SearchesTotal.Inc()
		if !out.Found {
			metrics.NotFoundTotal.Inc()
		}
	case conversation.OutcomeChapter:
		metrics.ChapterRequests.Inc()
	}
	if l.sessions != nil {
		metrics.ActiveSessions.Set(int64(l.sessions.Len()))
	}
}

func (l *Loop) record(ctx context.Context, evt domain.InboundEvent, out conversation.Outcome, rep delivery.Report) {
	if l.history == nil {
		return
	}
	// Record even when shutdown cancelled the delivery.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancel()

	var err error
	switch {
	case out.Kind == conversation.OutcomeSearch:
		err = l.history.RecordSearch(ctx, history.SearchRecord{
			UserKey:  evt.UserKey(),
			Query:    out.Query,
			Title:    out.Title,
			Chapters: out.Chapters,
			Found:    out.Found,
		})
	case out.Kind == conversation.OutcomeChapter && out.Images > 0:
		err = l.history.RecordDelivery(ctx, history.DeliveryRecord{
			BatchID: rep.BatchID,
			UserKey: evt.UserKey(),
			Title:   out.Title,
			Chapter: out.Chapter,
			Images:  out.Images,
			Sent:    rep.Texts + rep.Images,
			Failed:  rep.Failed,
		})
	}
	if err != nil {
		l.logger.Warn("history write failed", "user", evt.UserKey(), "err", err)
	}
}
