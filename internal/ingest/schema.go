package ingest

import (
	"fmt"
	"strings"
)

// Field is a canonical tender attribute a spreadsheet column can map to.
type Field string

const (
	FieldTitle        Field = "title"
	FieldOrganization Field = "organization"
	FieldValue        Field = "value"
	FieldDeadline     Field = "deadline"
	FieldTurnover     Field = "turnover"
	FieldLocation     Field = "location"
	FieldReference    Field = "reference_number"
)

type synonymSet struct {
	field    Field
	synonyms []string
}

// fieldSynonyms is tested in order; a header maps to the first set with a
// synonym contained in it.
var fieldSynonyms = []synonymSet{
	{FieldTitle, []string{"title", "name", "work", "description", "brief"}},
	{FieldOrganization, []string{"organization", "dept", "department", "ministry"}},
	{FieldValue, []string{"value", "amount", "cost", "estimated"}},
	{FieldDeadline, []string{"deadline", "date", "last", "submission"}},
	{FieldTurnover, []string{"turnover", "eligibility", "qualification", "criteria", "minimum average annual"}},
	{FieldLocation, []string{"location", "place", "site", "address"}},
	{FieldReference, []string{"reference", "ref", "t247 id"}},
}

// extraSynonyms only apply to headers no entry of fieldSynonyms matched,
// and only fill fields that fieldSynonyms left unresolved in the row.
var extraSynonyms = []synonymSet{
	{FieldOrganization, []string{"authority"}},
	{FieldValue, []string{"budget", "price"}},
	{FieldDeadline, []string{"closing"}},
	{FieldTurnover, []string{"financial"}},
	{FieldLocation, []string{"city", "district"}},
	{FieldReference, []string{"tender no", "tender id"}},
}

// FieldMap records which column each canonical field was resolved to.
type FieldMap struct {
	Columns map[Field]int `json:"columns"`
	// Brief is the last column whose header mentions "brief", or -1.
	Brief int `json:"brief"`
	// Headers keeps the trimmed original header text by column.
	Headers []string `json:"headers"`
}

// Index returns the column resolved for f.
func (m FieldMap) Index(f Field) (int, bool) {
	idx, ok := m.Columns[f]
	return idx, ok
}

// Has reports whether f was resolved.
func (m FieldMap) Has(f Field) bool {
	_, ok := m.Columns[f]
	return ok
}

// LinkColumn is the brief column when present, else the title column, else -1.
func (m FieldMap) LinkColumn() int {
	if m.Brief >= 0 {
		return m.Brief
	}
	if idx, ok := m.Columns[FieldTitle]; ok {
		return idx
	}
	return -1
}

// Unmapped lists the header-bearing columns that no field ended up owning,
// keyed by a unique display name.
func (m FieldMap) Unmapped() map[int]string {
	owned := make(map[int]struct{}, len(m.Columns)+1)
	for _, idx := range m.Columns {
		owned[idx] = struct{}{}
	}
	if m.Brief >= 0 {
		owned[m.Brief] = struct{}{}
	}
	out := make(map[int]string)
	seen := make(map[string]int)
	for i, h := range m.Headers {
		if h == "" {
			continue
		}
		if _, ok := owned[i]; ok {
			continue
		}
		name := h
		seen[strings.ToLower(h)]++
		if n := seen[strings.ToLower(h)]; n > 1 {
			name = fmt.Sprintf("%s (%d)", h, n)
		}
		out[i] = name
	}
	return out
}

// ResolveSchema maps header cells onto canonical fields. When several
// headers match the same field the right-most one wins.
func ResolveSchema(header []string) FieldMap {
	fm := FieldMap{
		Columns: make(map[Field]int),
		Brief:   -1,
		Headers: make([]string, len(header)),
	}
	var fallback []int
	for i, raw := range header {
		fm.Headers[i] = normalizeSpace(raw)
		h := foldKey(raw)
		if h == "" {
			continue
		}
		if strings.Contains(h, "brief") {
			fm.Brief = i
		}
		if f, ok := matchField(fieldSynonyms, h); ok {
			fm.Columns[f] = i
		} else {
			fallback = append(fallback, i)
		}
	}

	primary := make(map[Field]bool, len(fm.Columns))
	for f := range fm.Columns {
		primary[f] = true
	}
	for _, i := range fallback {
		if f, ok := matchField(extraSynonyms, foldKey(header[i])); ok && !primary[f] {
			fm.Columns[f] = i
		}
	}
	return fm
}

func matchField(sets []synonymSet, header string) (Field, bool) {
	for _, set := range sets {
		for _, syn := range set.synonyms {
			if strings.Contains(header, syn) {
				return set.field, true
			}
		}
	}
	return "", false
}

// DetectHeader picks the first row among the first depth rows that resolves
// a title column. Rows are only skipped while they look like a banner above
// the table: blank, or a single filled cell. Row 0 is used when nothing
// qualifies.
func DetectHeader(rows [][]string, depth int) (int, FieldMap) {
	if depth <= 0 {
		depth = 1
	}
	for i := 0; i < len(rows) && i < depth; i++ {
		fm := ResolveSchema(rows[i])
		if fm.Has(FieldTitle) {
			return i, fm
		}
		if !isBannerRow(rows[i]) {
			break
		}
	}
	if len(rows) == 0 {
		return 0, ResolveSchema(nil)
	}
	return 0, ResolveSchema(rows[0])
}

func isBannerRow(row []string) bool {
	filled := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			filled++
		}
	}
	return filled <= 1
}
