package conversation

import (
	"errors"
	"strconv"
	"strings"

	"mangabot/internal/domain"
)

const DefaultResetKeyword = "list"

// State is either Idle or Browsing.
type State interface {
	isState()
}

// Idle means the user has no session.
type Idle struct{}

// Browsing means a search succeeded and its chapter list is selectable.
type Browsing struct {
	Session domain.Session
}

func (Idle) isState()     {}
func (Browsing) isState() {}

type InputKind int

const (
	InputEmpty InputKind = iota
	InputReset
	InputNumber
	InputText
)

func (k InputKind) String() string {
	switch k {
	case InputEmpty:
		return "empty"
	case InputReset:
		return "reset"
	case InputNumber:
		return "number"
	default:
		return "text"
	}
}

// Input is a classified inbound text.
type Input struct {
	Kind   InputKind
	Text   string // trimmed
	Number int    // set for InputNumber
}

// ParseInput classifies raw text. Numbers use strict integer syntax, so
// "3" and "-1" are numbers while "3a" and "1.5" are plain text. Integers
// too large for int stay numbers, clamped to the int range.
func ParseInput(raw, resetKeyword string) Input {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Input{Kind: InputEmpty}
	}
	if strings.EqualFold(text, resetKeyword) {
		return Input{Kind: InputReset, Text: text}
	}
	// Atoi clamps out-of-range values, and no chapter list reaches either bound.
	if n, err := strconv.Atoi(text); err == nil || errors.Is(err, strconv.ErrRange) {
		return Input{Kind: InputNumber, Text: text, Number: n}
	}
	return Input{Kind: InputText, Text: text}
}
