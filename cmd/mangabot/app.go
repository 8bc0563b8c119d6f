package main

import (
	"fmt"
	"log/slog"

	"mangabot/internal/bot"
	"mangabot/internal/config"
	"mangabot/internal/conversation"
	"mangabot/internal/delivery"
	"mangabot/internal/domain"
	"mangabot/internal/history"
	"mangabot/internal/scraper"
	"mangabot/internal/session"

	"github.com/samber/lo"
)

// app holds the components shared by serve and chat.
type app struct {
	cfg       *config.Config
	texts     *conversation.Catalog
	sessions  *session.Store
	engine    *conversation.Engine
	sequencer *delivery.Sequencer
	history   *history.Store // nil when history is disabled
	logger    *slog.Logger
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	texts, err := conversation.Messages(cfg.Bot.Locale)
	if err != nil {
		return nil, err
	}

	site := scraper.NewSite(scraper.SiteConfig{
		BaseURL: cfg.Site.BaseURL,
		Fetcher: newFetcher(cfg, logger),
		Selectors: scraper.Selectors{
			Title:        cfg.Site.Selectors.Title,
			Cover:        cfg.Site.Selectors.Cover,
			ChapterLinks: cfg.Site.Selectors.ChapterLinks,
			Images:       cfg.Site.Selectors.Images,
		},
		ListingTimeout: cfg.Site.ListingTimeoutDuration(),
		ChapterTimeout: cfg.Site.ChapterTimeoutDuration(),
		Logger:         logger,
	})

	sessions := session.NewStore(logger)
	a := &app{
		cfg:      cfg,
		texts:    texts,
		sessions: sessions,
		engine: conversation.NewEngine(conversation.EngineConfig{
			Store:        sessions,
			Extractor:    site,
			Texts:        texts,
			ResetKeyword: cfg.Bot.ResetKeyword,
			Logger:       logger,
		}),
		sequencer: delivery.NewSequencer(delivery.SequencerConfig{
			ImageDelay: cfg.Delivery.ImageDelay(),
			Logger:     logger,
		}),
		logger: logger,
	}

	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("history store: %w", err)
		}
		a.history = store
	}
	return a, nil
}

func newFetcher(cfg *config.Config, logger *slog.Logger) scraper.Fetcher {
	if cfg.Site.Renderer == "browser" {
		return scraper.NewBrowserFetcher(scraper.BrowserConfig{
			ProfileDir: cfg.Browser.ProfileDir,
			Headless:   cfg.Browser.Headless,
			UserAgent:  cfg.Site.UserAgent,
			Logger:     logger,
		})
	}
	return scraper.NewHTTPFetcher(scraper.SharedHTTPClient(), cfg.Site.UserAgent)
}

// newLoop builds the bot loop that replies over the given channels.
func (a *app) newLoop(messageBus domain.MessageBus, channels []domain.Channel) *bot.Loop {
	messengers := lo.SliceToMap(channels, func(ch domain.Channel) (string, domain.Messenger) {
		return ch.Name(), ch
	})

	var hist bot.History
	if a.history != nil {
		hist = a.history
	}

	return bot.NewLoop(bot.LoopConfig{
		Bus:         messageBus,
		Engine:      a.engine,
		Sequencer:   a.sequencer,
		Locker:      session.NewLocker(),
		Sessions:    a.sessions,
		Messengers:  messengers,
		History:     hist,
		Logger:      a.logger,
		Concurrency: a.cfg.General.MaxConcurrentMessages,
	})
}

func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("close history store", "err", err)
		}
	}
}
