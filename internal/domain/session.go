package domain

// Session is the per-user browsing state created by a successful search.
type Session struct {
	Title    string
	Chapters []Chapter
}

// Chapter returns the chapter the user addressed with number n (1-based).
func (s Session) Chapter(n int) (Chapter, bool) {
	if n < 1 || n > len(s.Chapters) {
		return Chapter{}, false
	}
	return s.Chapters[n-1], true
}

// SessionStore maps a user key to its session.
type SessionStore interface {
	Get(userKey string) (Session, bool)
	Set(userKey string, s Session)
	Delete(userKey string)
}
