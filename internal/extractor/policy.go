package extractor

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
)

// Policy selects which parts of a page count as article text.
type Policy string

const (
	// PolicyParagraphs keeps the text of every <p>.
	PolicyParagraphs Policy = "paragraphs"
	// PolicyParagraphsHeadings also keeps h1-h6, which often carry the lede.
	PolicyParagraphsHeadings Policy = "paragraphs_headings"
	// PolicyReadability runs the readability article detector over the page.
	PolicyReadability Policy = "readability"
)

func (p Policy) selector() string {
	if p == PolicyParagraphsHeadings {
		return "h1, h2, h3, h4, h5, h6, p"
	}
	return "p"
}

// fragments returns the non-empty text fragments of an HTML page in document order.
func (p Policy) fragments(pg *page) ([]string, error) {
	r := decodedReader(pg)

	if p == PolicyReadability {
		article, err := readability.FromReader(r, pg.url)
		if err != nil {
			return nil, fmt.Errorf("readability failed: %w", err)
		}
		return splitLines(article.TextContent), nil
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var out []string
	doc.Find(p.selector()).Each(func(i int, s *goquery.Selection) {
		if text := normalize(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	return out, nil
}

// decodedReader converts the body to UTF-8 using the declared or sniffed charset.
func decodedReader(pg *page) io.Reader {
	r, err := charset.NewReader(bytes.NewReader(pg.body), pg.contentType)
	if err != nil {
		return bytes.NewReader(pg.body)
	}
	return r
}

// normalize collapses whitespace runs to a single space and trims the ends.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func splitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = normalize(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
