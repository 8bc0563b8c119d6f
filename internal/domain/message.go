package domain

import "time"

// InboundEvent is one verified text message from a messaging platform.
type InboundEvent struct {
	Channel   string
	SenderID  string
	MessageID string // platform message id, empty when the platform has none
	Text      string
	Timestamp time.Time
}

// UserKey identifies the conversation owner across platforms.
func (e InboundEvent) UserKey() string {
	return e.Channel + ":" + e.SenderID
}

type ActionKind int

const (
	ActionText ActionKind = iota
	ActionImage
)

func (k ActionKind) String() string {
	switch k {
	case ActionText:
		return "text"
	case ActionImage:
		return "image"
	default:
		return "unknown"
	}
}

// OutboundAction is a single message to deliver. Order within a batch is significant.
type OutboundAction struct {
	Kind     ActionKind
	Text     string
	ImageURL string
}

func TextAction(text string) OutboundAction {
	return OutboundAction{Kind: ActionText, Text: text}
}

func ImageAction(url string) OutboundAction {
	return OutboundAction{Kind: ActionImage, ImageURL: url}
}
