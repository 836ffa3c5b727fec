package splitter

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var noiseSelectors = []string{
	"script", "style", "nav", "header", "footer", "aside", "iframe",
}

// extractPlainText turns one spine document's markup into the plain
// chapter text the chunker will later split into chunks.
func extractPlainText(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return "", err
	}

	for _, sel := range noiseSelectors {
		doc.Find(sel).Remove()
	}

	var paragraphs []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := paragraphText(p)
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	joined := strings.Join(paragraphs, "\n\n")
	return normalize(joined), nil
}

// paragraphText reconstructs drop-cap runs: if the paragraph's first
// child is a styled initial-letter element, its text is prepended to
// the remainder and the element itself removed so its letter isn't
// also picked up by the surrounding paragraph text.
func paragraphText(p *goquery.Selection) string {
	first := p.Children().First()
	if isDropCap(first) {
		letter := strings.TrimSpace(first.Text())
		first.Remove()
		return strings.TrimSpace(letter + p.Text())
	}
	return strings.TrimSpace(p.Text())
}

func isDropCap(sel *goquery.Selection) bool {
	if sel.Length() == 0 {
		return false
	}
	name := goquery.NodeName(sel)
	if name != "span" && name != "div" {
		return false
	}
	class := strings.ToLower(attrOrEmpty(sel, "class"))
	style := strings.ToLower(attrOrEmpty(sel, "style"))
	return strings.Contains(class, "dropcap") ||
		strings.Contains(class, "drop-cap") ||
		strings.Contains(class, "initial") ||
		strings.Contains(style, "float") ||
		strings.Contains(style, "font-size")
}

func attrOrEmpty(sel *goquery.Selection, name string) string {
	v, _ := sel.Attr(name)
	return v
}

// normalize collapses soft-hyphen line breaks and non-breaking spaces
// left over from the source markup.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "-\n", "")
	text = strings.ReplaceAll(text, "­\n", "")
	text = strings.ReplaceAll(text, " ", " ")
	return text
}
