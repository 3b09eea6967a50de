package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

// XLSXParser flattens workbook cells into tab-separated rows, one block
// per sheet. Budget spreadsheets carry their meaning in cell values, so
// sheets that hold no values lower the confidence score and produce a
// warning each.
type XLSXParser struct{}

func NewXLSXParser() *XLSXParser {
	return &XLSXParser{}
}

func (p *XLSXParser) Parse(_ context.Context, raw []byte, _ string) (domain.ParseResult, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return domain.ParseResult{}, domain.WrapError(domain.ErrParse, "parse xlsx", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return domain.ParseResult{}, domain.WrapError(domain.ErrParse, "parse xlsx", fmt.Errorf("workbook has no sheets"))
	}

	var (
		builder     strings.Builder
		warnings    []string
		emptySheets int
	)
	for _, sheet := range sheets {
		rows, rowsErr := workbook.GetRows(sheet)
		if rowsErr != nil {
			emptySheets++
			warnings = append(warnings, fmt.Sprintf("sheet %q: %v", sheet, rowsErr))
			continue
		}
		sheetText := flattenRows(rows)
		if sheetText == "" {
			emptySheets++
			warnings = append(warnings, fmt.Sprintf("sheet %q: no cell values", sheet))
			continue
		}
		builder.WriteString(sheet)
		builder.WriteString("\n")
		builder.WriteString(sheetText)
		builder.WriteString("\n\n")
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return domain.ParseResult{}, domain.WrapError(domain.ErrParse, "parse xlsx", fmt.Errorf("no cell values in %d sheets", len(sheets)))
	}

	// Same shape as the PDF score: confidence reflects how much of the
	// workbook actually yielded values.
	readable := float64(len(sheets)-emptySheets) / float64(len(sheets))
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

func flattenRows(rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cell = strings.TrimSpace(cell)
			if cell != "" {
				cells = append(cells, cell)
			}
		}
		if len(cells) == 0 {
			continue
		}
		b.WriteString(strings.Join(cells, "\t"))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
