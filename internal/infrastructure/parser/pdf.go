package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

// PDFParser extracts text page by page. Pages that yield no text (for
// example scanned images with no OCR layer) lower the confidence score
// and produce a warning each, so noisy scans land in needs_review.
type PDFParser struct{}

func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

func (p *PDFParser) Parse(_ context.Context, raw []byte, _ string) (result domain.ParseResult, err error) {
	defer func() {
		// The pdf library panics on some malformed files.
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrParse, "parse pdf", fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return domain.ParseResult{}, domain.WrapError(domain.ErrParse, "parse pdf", err)
	}

	totalPages := reader.NumPage()
	if totalPages == 0 {
		return domain.ParseResult{}, domain.WrapError(domain.ErrParse, "parse pdf", fmt.Errorf("document has no pages"))
	}

	var (
		builder    strings.Builder
		warnings   []string
		emptyPages int
	)
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			emptyPages++
			warnings = append(warnings, fmt.Sprintf("page %d: unreadable", i))
			continue
		}
		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			emptyPages++
			warnings = append(warnings, fmt.Sprintf("page %d: %v", i, pageErr))
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			emptyPages++
			warnings = append(warnings, fmt.Sprintf("page %d: no extractable text", i))
			continue
		}
		builder.WriteString(pageText)
		builder.WriteString("\n\n")
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return domain.ParseResult{}, domain.WrapError(domain.ErrParse, "parse pdf", fmt.Errorf("no extractable text in %d pages", totalPages))
	}

	// Confidence reflects how much of the document actually yielded
	// text: all pages readable scores near 100, a half-scanned file
	// drops below the review threshold.
	readable := float64(totalPages-emptyPages) / float64(totalPages)
	confidence := readable * 100
	if confidence < 5 {
		confidence = 5
	}

	return domain.ParseResult{
		Text:       text,
		Confidence: confidence,
		WordCount:  len(strings.Fields(text)),
		Warnings:   warnings,
	}, nil
}
