package ingest

import (
	"regexp"
	"strings"

	"github.com/david/tender-scout/internal/sheets"
)

var textURLRe = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s"'<>()]+`)

// extractLink resolves the tender link for one row. Sources are tried in
// order: the brief cell's own hyperlink, the sheet-wide registry at the
// brief (or title) address, the title cell's hyperlink when no brief column
// exists, and finally a URL written out in the cell text.
func extractLink(sheet sheets.Sheet, registry map[string]string, rowIdx int, row []string, fm FieldMap) *string {
	titleCol, hasTitle := fm.Index(FieldTitle)

	if fm.Brief >= 0 && sheet != nil {
		if link, ok := sheet.Hyperlink(rowIdx, fm.Brief); ok {
			return &link
		}
	}

	if col := fm.LinkColumn(); col >= 0 {
		if link := strings.TrimSpace(registry[sheets.CellAddress(rowIdx, col)]); link != "" {
			return &link
		}
	}

	if fm.Brief < 0 && hasTitle && sheet != nil {
		if link, ok := sheet.Hyperlink(rowIdx, titleCol); ok {
			return &link
		}
	}

	for _, col := range []int{fm.LinkColumn(), titleCol} {
		if !hasTitle && col == titleCol {
			continue
		}
		if link := textURLRe.FindString(cellAt(row, col)); link != "" {
			link = strings.TrimRight(link, ".,;")
			return &link
		}
	}
	return nil
}
