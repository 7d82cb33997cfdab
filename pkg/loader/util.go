package loader

import (
	"strings"
)

// pageBreak separates pages in extracted text, as written by pdftotext and
// most document converters.
const pageBreak = "\f"

// CacheKey generates a unique cache key for a Source based on its kind and path.
func CacheKey(src Source) string {
	return string(src.Kind) + ":" + src.Path
}

// SplitPages splits text on form feeds into numbered pages. Text without a
// page break is returned as a single unnumbered page. Blank pages keep their
// number but are dropped from the result.
func SplitPages(text string) []Page {
	text = NormalizeNewlines(text)
	if !strings.Contains(text, pageBreak) {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []Page{{Text: text}}
	}

	parts := strings.Split(text, pageBreak)
	pages := make([]Page, 0, len(parts))
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: p})
	}
	return pages
}

// NormalizeNewlines converts CRLF and lone CR line endings to LF.
func NormalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
