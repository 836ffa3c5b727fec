package splitter

import "strings"

// metadataKeywords is the closed list of front-matter/back-matter/
// navigation/legal keywords a chapter title is checked against.
var metadataKeywords = []string{
	"table of contents", "toc", "index", "contents", "copyright",
	"foreword", "preface", "acknowledgments", "introduction", "prologue",
	"epilogue", "afterword", "appendix", "dedication", "about the author",
	"bibliography", "glossary", "colophon", "cover", "isbn", "edition",
	"front matter", "back matter",
}

const (
	minChapterTextLen       = 100
	maxNonAlphanumericRatio = 0.30
	maxURLOccurrences       = 5
)

// isMetadata reports whether title/text look like front matter, back
// matter, navigation or legal boilerplate rather than chapter content.
func isMetadata(title, text string) bool {
	normalizedTitle := strings.ToLower(strings.Join(strings.Fields(title), " "))
	for _, kw := range metadataKeywords {
		if strings.Contains(normalizedTitle, kw) {
			return true
		}
	}

	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minChapterTextLen {
		return true
	}

	if nonAlphanumericRatio(trimmed) > maxNonAlphanumericRatio {
		return true
	}

	lower := strings.ToLower(trimmed)
	if strings.Count(lower, "http") > maxURLOccurrences || strings.Count(lower, "www.") > maxURLOccurrences {
		return true
	}

	return false
}

func nonAlphanumericRatio(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	var nonAlnum int
	total := 0
	for _, r := range text {
		total++
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			nonAlnum++
		}
	}
	return float64(nonAlnum) / float64(total)
}
