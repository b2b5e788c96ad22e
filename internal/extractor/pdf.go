package extractor

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/unidoc/unipdf/v3/common/license"
	pdftext "github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// maxPDFPages bounds the work done on a single linked document.
const maxPDFPages = 200

var licenseOnce sync.Once

func setPDFLicense(key string) {
	if key == "" {
		return
	}
	licenseOnce.Do(func() {
		if err := license.SetMeteredKey(key); err != nil {
			log.Printf("[Extractor] WARNING: unipdf license rejected: %v", err)
		}
	})
}

func isPDF(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/pdf")
}

// pdfFragments extracts page text from a PDF body, one fragment per non-empty line.
func pdfFragments(body []byte) ([]string, error) {
	reader, err := model.NewPdfReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("failed to count PDF pages: %w", err)
	}
	if numPages > maxPDFPages {
		log.Printf("[Extractor] PDF has %d pages, reading the first %d", numPages, maxPDFPages)
		numPages = maxPDFPages
	}

	var out []string
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			log.Printf("[Extractor] Warning: failed to load PDF page %d: %v", i, err)
			continue
		}
		ex, err := pdftext.New(page)
		if err != nil {
			log.Printf("[Extractor] Warning: no extractor for PDF page %d: %v", i, err)
			continue
		}
		text, err := ex.ExtractText()
		if err != nil {
			log.Printf("[Extractor] Warning: failed to extract text from page %d: %v", i, err)
			continue
		}
		out = append(out, splitLines(text)...)
	}
	return out, nil
}
