package conversation

import (
	"fmt"
	"sort"
)

// Catalog holds the user-visible texts for one locale.
type Catalog struct {
	ResetPrompt    string
	NotFound       string
	InvalidChapter string
	NoImages       string
	ChapterError   string

	summary    string // title, chapter count, cover line
	coverFound string
	coverNone  string
	usage      string // reset keyword
	progress   string // chapter number
}

func (c *Catalog) Summary(title string, chapters int, hasCover bool, resetKeyword string) string {
	cover := c.coverNone
	if hasCover {
		cover = c.coverFound
	}
	return fmt.Sprintf(c.summary, title, chapters, cover) + "\n\n" + fmt.Sprintf(c.usage, resetKeyword)
}

func (c *Catalog) Progress(chapter int) string {
	return fmt.Sprintf(c.progress, chapter)
}

var catalogs = map[string]*Catalog{
	"en": {
		ResetPrompt:    "🔍 Type a manga title to search",
		NotFound:       "⚠️ Could not find that manga",
		InvalidChapter: "⚠️ That chapter number is not available!",
		NoImages:       "❌ No images found for this chapter",
		ChapterError:   "❌ Something went wrong while fetching the images",
		summary:        "📖 %s\n📚 Chapters: %d\n🖼️ %s",
		coverFound:     "Cover found",
		coverNone:      "No cover",
		usage:          "Send a chapter number (e.g. 1) to get its images\nor '%s' to go back",
		progress:       "📂 Sending images for chapter %d...",
	},
	"ar": {
		ResetPrompt:    "🔍 اكتب اسم المانجا للبحث",
		NotFound:       "⚠️ لم أتمكن من العثور على المانجا",
		InvalidChapter: "⚠️ رقم الفصل غير متاح!",
		NoImages:       "❌ لم أجد صوراً لهذا الفصل",
		ChapterError:   "❌ حدث خطأ أثناء جلب الصور",
		summary:        "📖 %s\n📚 عدد الفصول: %d\n🖼️ %s",
		coverFound:     "تم جلب الغلاف",
		coverNone:      "لا يوجد غلاف",
		usage:          "أرسل رقم الفصل (مثال: 1) للحصول على الصور\nأو '%s' للعودة",
		progress:       "📂 جاري إرسال صور الفصل %d...",
	},
}

// Messages returns the catalog for locale.
func Messages(locale string) (*Catalog, error) {
	c, ok := catalogs[locale]
	if !ok {
		return nil, fmt.Errorf("unknown locale %q (available: %v)", locale, Locales())
	}
	return c, nil
}

func Locales() []string {
	out := make([]string, 0, len(catalogs))
	for k := range catalogs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
