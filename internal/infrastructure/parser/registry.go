package parser

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/grantsignal/grantsignal/internal/core/domain"
	"github.com/grantsignal/grantsignal/internal/core/ports"
)

// Registry routes a declared MIME type to a concrete parser.
type Registry struct {
	pdf  ports.DocumentParser
	xlsx ports.DocumentParser
	text ports.DocumentParser
}

func NewRegistry() *Registry {
	return &Registry{
		pdf:  NewPDFParser(),
		xlsx: NewXLSXParser(),
		text: NewPlaintextParser(),
	}
}

func (r *Registry) Parse(ctx context.Context, raw []byte, mimeType string) (domain.ParseResult, error) {
	mediaType := mimeType
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mediaType = parsed
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	switch {
	case mediaType == "application/pdf":
		return r.pdf.Parse(ctx, raw, mediaType)
	// Browsers commonly label .xlsx uploads with the legacy Excel type.
	case mediaType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		mediaType == "application/vnd.ms-excel":
		return r.xlsx.Parse(ctx, raw, mediaType)
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/json",
		mediaType == "application/rtf":
		return r.text.Parse(ctx, raw, mediaType)
	default:
		return domain.ParseResult{}, domain.WrapError(
			domain.ErrParse,
			"select parser",
			fmt.Errorf("unsupported mime type %q", mimeType),
		)
	}
}
