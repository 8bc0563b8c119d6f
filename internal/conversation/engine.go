// Package conversation decides what to reply to each inbound message.
//
// Every user is either Idle (no session) or Browsing (a successful search
// stored a title and its chapters). The transitions are:
//
//	any      + reset keyword -> delete session, prompt for a title   -> Idle
//	any      + empty text    -> nothing                               -> unchanged
//	Browsing + integer n     -> send chapter n's images or a notice   -> Browsing
//	any      + other text    -> search; on success replace session    -> Browsing
//	                            on failure send not-found             -> unchanged
//
// An integer sent while Idle is searched like any other text.
package conversation

import (
	"context"
	"log/slog"

	"mangabot/internal/domain"
)

type OutcomeKind int

const (
	OutcomeIgnored OutcomeKind = iota
	OutcomeReset
	OutcomeSearch
	OutcomeChapter
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReset:
		return "reset"
	case OutcomeSearch:
		return "search"
	case OutcomeChapter:
		return "chapter"
	default:
		return "ignored"
	}
}

// Outcome is what the engine decided for one event. Actions are in delivery order.
type Outcome struct {
	Kind    OutcomeKind
	Actions []domain.OutboundAction

	Query    string // search text, for OutcomeSearch
	Found    bool   // search succeeded
	Title    string // session title after a search, or the browsed title
	Chapters int    // chapter count of a successful search

	Chapter int // requested chapter number, for OutcomeChapter
	Images  int // image actions emitted
}

// Engine runs the per-user state machine.
type Engine struct {
	store        domain.SessionStore
	extractor    domain.Extractor
	texts        *Catalog
	resetKeyword string
	logger       *slog.Logger
}

type EngineConfig struct {
	Store        domain.SessionStore
	Extractor    domain.Extractor
	Texts        *Catalog // nil selects English
	ResetKeyword string   // empty selects DefaultResetKeyword
	Logger       *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Texts == nil {
		cfg.Texts = catalogs["en"]
	}
	if cfg.ResetKeyword == "" {
		cfg.ResetKeyword = DefaultResetKeyword
	}
	return &Engine{
		store:        cfg.Store,
		extractor:    cfg.Extractor,
		texts:        cfg.Texts,
		resetKeyword: cfg.ResetKeyword,
		logger:       cfg.Logger,
	}
}

// State reports the user's current state.
func (e *Engine) State(userKey string) State {
	if sess, ok := e.store.Get(userKey); ok {
		return Browsing{Session: sess}
	}
	return Idle{}
}

// Handle processes one inbound event end to end, including any page fetches.
func (e *Engine) Handle(ctx context.Context, evt domain.InboundEvent) Outcome {
	key := evt.UserKey()
	in := ParseInput(evt.Text, e.resetKeyword)

	switch in.Kind {
	case InputEmpty:
		return Outcome{Kind: OutcomeIgnored}
	case InputReset:
		e.store.Delete(key)
		e.logger.Info("session reset", "user", key)
		return Outcome{
			Kind:    OutcomeReset,
			Actions: []domain.OutboundAction{domain.TextAction(e.texts.ResetPrompt)},
		}
	}

	if browsing, ok := e.State(key).(Browsing); ok && in.Kind == InputNumber {
		return e.selectChapter(ctx, key, browsing.Session, in.Number)
	}
	return e.search(ctx, key, in.Text)
}

func (e *Engine) search(ctx context.Context, key, query string) Outcome {
	out := Outcome{Kind: OutcomeSearch, Query: query}

	listingURL := e.extractor.ListingURL(query)
	info, ok := e.extractor.FetchListing(ctx, listingURL)
	if !ok {
		e.logger.Info("title not found", "user", key, "query", query, "url", listingURL)
		out.Actions = []domain.OutboundAction{domain.TextAction(e.texts.NotFound)}
		return out
	}

	e.store.Set(key, domain.Session{Title: info.Title, Chapters: info.Chapters})
	e.logger.Info("title found",
		"user", key,
		"query", query,
		"title", info.Title,
		"chapters", len(info.Chapters),
	)

	out.Found = true
	out.Title = info.Title
	out.Chapters = len(info.Chapters)
	out.Actions = append(out.Actions,
		domain.TextAction(e.texts.Summary(info.Title, len(info.Chapters), info.HasCover(), e.resetKeyword)))
	if info.HasCover() {
		out.Actions = append(out.Actions, domain.ImageAction(info.CoverImage))
	}
	return out
}

func (e *Engine) selectChapter(ctx context.Context, key string, sess domain.Session, n int) Outcome {
	out := Outcome{Kind: OutcomeChapter, Title: sess.Title, Chapter: n}

	chapter, ok := sess.Chapter(n)
	if !ok {
		e.logger.Info("invalid chapter number", "user", key, "chapter", n, "available", len(sess.Chapters))
		out.Actions = []domain.OutboundAction{domain.TextAction(e.texts.InvalidChapter)}
		return out
	}
	if chapter.URL == "" {
		e.logger.Warn("chapter has no link", "user", key, "title", sess.Title, "chapter", n)
		out.Actions = []domain.OutboundAction{domain.TextAction(e.texts.ChapterError)}
		return out
	}

	images := e.extractor.FetchChapterImages(ctx, chapter.URL)
	if len(images) == 0 {
		e.logger.Info("chapter has no images", "user", key, "title", sess.Title, "chapter", n)
		out.Actions = []domain.OutboundAction{domain.TextAction(e.texts.NoImages)}
		return out
	}

	out.Images = len(images)
	out.Actions = make([]domain.OutboundAction, 0, len(images)+1)
	out.Actions = append(out.Actions, domain.TextAction(e.texts.Progress(n)))
	for _, img := range images {
		out.Actions = append(out.Actions, domain.ImageAction(img))
	}
	return out
}
