package parser

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

// PlaintextParser handles text-like MIME types. Confidence degrades
// with the share of bytes that are not valid UTF-8.
type PlaintextParser struct{}

func NewPlaintextParser() *PlaintextParser {
	return &PlaintextParser{}
}

func (p *PlaintextParser) Parse(_ context.Context, raw []byte, _ string) (domain.ParseResult, error) {
	if len(raw) == 0 {
		return domain.ParseResult{}, domain.WrapError(domain.ErrParse, "parse plaintext", fmt.Errorf("empty file"))
	}

	var warnings []string
	confidence := 100.0

	text := string(raw)
	if !utf8.ValidString(text) {
		invalid := countInvalidRunes(text)
		text = strings.ToValidUTF8(text, "�")
		share := float64(invalid) / float64(len(raw))
		confidence -= share * 100
		if confidence < 10 {
			confidence = 10
		}
		warnings = append(warnings, fmt.Sprintf("replaced %d invalid byte sequences", invalid))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ParseResult{}, domain.WrapError(domain.ErrParse, "parse plaintext", fmt.Errorf("no textual content"))
	}

	return domain.ParseResult{
		Text:       text,
		Confidence: confidence,
		WordCount:  len(strings.Fields(text)),
		Warnings:   warnings,
	}, nil
}

func countInvalidRunes(s string) int {
	invalid := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			invalid++
		}
		i += size
	}
	return invalid
}
