package sheets

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"
)

var hyperlinkFormula = regexp.MustCompile(`(?i)^\s*=?\s*HYPERLINK\(\s*"([^"]+)"`)

type excelWorkbook struct {
	f      *excelize.File
	sheets []Sheet
}

// OpenExcel decodes an Office Open XML workbook.
func OpenExcel(r io.Reader) (Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	wb := &excelWorkbook{f: f}
	for _, name := range f.GetSheetList() {
		wb.sheets = append(wb.sheets, &excelSheet{f: f, name: name})
	}
	return wb, nil
}

func (w *excelWorkbook) Sheets() []Sheet { return w.sheets }

func (w *excelWorkbook) Close() error { return w.f.Close() }

type excelSheet struct {
	f    *excelize.File
	name string

	once     sync.Once
	rows     [][]string
	rowsErr  error
	regOnce  sync.Once
	registry map[string]string
	regErr   error
}

func (s *excelSheet) Name() string { return s.name }

func (s *excelSheet) Rows() ([][]string, error) {
	s.once.Do(func() {
		s.rows, s.rowsErr = s.f.GetRows(s.name, excelize.Options{RawCellValue: true})
	})
	return s.rows, s.rowsErr
}

func (s *excelSheet) Hyperlink(row, col int) (string, bool) {
	addr := CellAddress(row, col)
	if addr == "" {
		return "", false
	}
	return s.cellLink(addr)
}

func (s *excelSheet) cellLink(addr string) (string, bool) {
	ok, target, err := s.f.GetCellHyperLink(s.name, addr)
	if err != nil || !ok {
		return "", false
	}
	target = strings.TrimSpace(target)
	if !isExternalTarget(target) {
		return "", false
	}
	return target, true
}

// Hyperlinks collects HYPERLINK() formulas and spreads any link found on
// the anchor of a merged range across the whole range.
func (s *excelSheet) Hyperlinks() (map[string]string, error) {
	s.regOnce.Do(func() {
		s.registry, s.regErr = s.buildRegistry()
	})
	return s.registry, s.regErr
}

func (s *excelSheet) buildRegistry() (map[string]string, error) {
	rows, err := s.Rows()
	if err != nil {
		return nil, err
	}

	registry := make(map[string]string)
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	for r := range rows {
		for c := 0; c < width; c++ {
			addr := CellAddress(r, c)
			if target, ok := s.formulaLink(addr); ok {
				registry[addr] = target
			}
		}
	}

	merges, err := s.f.GetMergeCells(s.name)
	if err == nil {
		for _, mc := range merges {
			anchor := mc.GetStartAxis()
			target, ok := registry[anchor]
			if !ok {
				target, ok = s.cellLink(anchor)
			}
			if !ok {
				continue
			}
			for _, addr := range expandRange(anchor, mc.GetEndAxis()) {
				if _, exists := registry[addr]; !exists {
					registry[addr] = target
				}
			}
		}
	}

	return registry, nil
}

func (s *excelSheet) formulaLink(addr string) (string, bool) {
	formula, err := s.f.GetCellFormula(s.name, addr)
	if err != nil || formula == "" {
		return "", false
	}
	m := hyperlinkFormula.FindStringSubmatch(formula)
	if len(m) != 2 {
		return "", false
	}
	target := strings.TrimSpace(m[1])
	if !isExternalTarget(target) {
		return "", false
	}
	return target, true
}

func expandRange(start, end string) []string {
	c1, r1, err := excelize.CellNameToCoordinates(start)
	if err != nil {
		return nil
	}
	c2, r2, err := excelize.CellNameToCoordinates(end)
	if err != nil {
		return nil
	}
	var out []string
	for r := r1; r <= r2; r++ {
		for c := c1; c <= c2; c++ {
			if name, err := excelize.CoordinatesToCellName(c, r); err == nil {
				out = append(out, name)
			}
		}
	}
	return out
}

func isExternalTarget(target string) bool {
	lower := strings.ToLower(target)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "www.") ||
		strings.HasPrefix(lower, "mailto:")
}
