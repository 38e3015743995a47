package ingest

import (
	"strings"
	"unicode/utf8"
)

// normalizeSpace collapses runs of whitespace, newlines included, into one space.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

// cellAt returns row[idx] or "" when the row is too short or idx is negative.
func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// foldKey is the comparison form used for dedup keys and header matching.
func foldKey(s string) string {
	return strings.ToLower(normalizeSpace(s))
}

// rowIsBlank reports whether every cell is whitespace.
func rowIsBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
