package extract

import (
	"html"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// minParagraphLen is the shortest <p> accepted as a fallback snippet.
const minParagraphLen = 80

var (
	tagRe   = regexp.MustCompile(`<[^>]*>`)
	spaceRe = regexp.MustCompile(`\s+`)
)

type Page struct {
	Title   string
	Snippet string
}

// ParseHTML pulls a title and snippet out of an HTML document.
//
// Title order: og:title, twitter:title or title meta, <title>, first <h1>.
// Snippet order: og:description, description meta, first long paragraph.
func ParseHTML(r io.Reader) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Page{}, err
	}

	title := firstNonEmpty(
		metaContent(doc, `meta[property="og:title"]`),
		metaContent(doc, `meta[name="twitter:title"], meta[property="twitter:title"], meta[name="title"]`),
		CleanText(doc.Find("title").First().Text()),
		CleanText(doc.Find("h1").First().Text()),
	)

	snippet := firstNonEmpty(
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="description"]`),
		firstLongParagraph(doc),
	)

	return Page{Title: title, Snippet: snippet}, nil
}

// CleanText decodes HTML entities, strips inline tags and collapses whitespace.
func CleanText(s string) string {
	s = html.UnescapeString(s)
	s = tagRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func metaContent(doc *goquery.Document, selector string) string {
	var out string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("content"); ok {
			if v = CleanText(v); v != "" {
				out = v
				return false
			}
		}
		return true
	})
	return out
}

func firstLongParagraph(doc *goquery.Document) string {
	var out string
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := CleanText(s.Text())
		if utf8.RuneCountInString(text) >= minParagraphLen {
			out = text
			return false
		}
		return true
	})
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
