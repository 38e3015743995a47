package sheets

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
)

type csvWorkbook struct {
	sheet *csvSheet
}

// OpenCSV reads a single-sheet CSV file. CSV carries no hyperlinks, so links
// can only be recovered from cell text.
func OpenCSV(name string, r io.Reader) (Workbook, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return &csvWorkbook{sheet: &csvSheet{name: name, rows: rows}}, nil
}

func (w *csvWorkbook) Sheets() []Sheet { return []Sheet{w.sheet} }

func (w *csvWorkbook) Close() error { return nil }

type csvSheet struct {
	name string
	rows [][]string
}

func (s *csvSheet) Name() string { return s.name }
func (s *csvSheet) Rows() ([][]string, error) { return s.rows, nil }
func (s *csvSheet) Hyperlink(int, int) (string, bool) { return "", false }
func (s *csvSheet) Hyperlinks() (map[string]string, error) { return map[string]string{}, nil }
