package domain

import "context"

// Chapter is one entry of a title's chapter list. Number is the 1-based
// position the user types to select it.
type Chapter struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// MangaInfo is the result of a successful listing extraction.
type MangaInfo struct {
	Title      string    `json:"title"`
	CoverImage string    `json:"cover_image,omitempty"` // empty when the page has no cover
	Chapters   []Chapter `json:"chapters"`
}

func (m *MangaInfo) HasCover() bool {
	return m.CoverImage != ""
}

// Extractor turns site pages into structured data. Implementations never
// return errors: a failed or empty listing is reported as ok=false and a
// failed chapter as an empty slice.
type Extractor interface {
	ListingURL(query string) string
	FetchListing(ctx context.Context, url string) (info *MangaInfo, ok bool)
	FetchChapterImages(ctx context.Context, url string) []string
}
