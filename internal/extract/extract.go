// Package extract pulls SEO fields (h1, title, meta description) out of HTML
// documents using goquery.
package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
)

// Extractor implements analyzer.Extractor.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the first h1 and title texts (trimmed) and the content of
// the first meta description. Malformed or empty input yields absent fields.
func (Extractor) Extract(html []byte) (fields analyzer.Fields) {
	if len(bytes.TrimSpace(html)) == 0 {
		return analyzer.Fields{}
	}
	defer func() {
		if recover() != nil {
			fields = analyzer.Fields{}
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return analyzer.Fields{}
	}
	return analyzer.Fields{
		H1:          firstText(doc, "h1"),
		Title:       firstText(doc, "title"),
		Description: metaDescription(doc),
	}
}

func firstText(doc *goquery.Document, selector string) *string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	text := strings.TrimSpace(sel.Text())
	return &text
}

// metaDescription matches the name attribute case-insensitively, which a CSS
// attribute selector cannot do portably.
func metaDescription(doc *goquery.Document) *string {
	var content *string
	doc.Find("meta[name]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(name), "description") {
			return true
		}
		if v, ok := s.Attr("content"); ok {
			content = &v
		}
		return false
	})
	return content
}
