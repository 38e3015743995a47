package ingest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/david/tender-scout/internal/sheets"
)

type cell struct{ row, col int }

type fakeSheet struct {
	name     string
	rows     [][]string
	links    map[cell]string
	registry map[string]string
	rowsErr  error
	panicMsg string
}

func (s *fakeSheet) Name() string { return s.name }

func (s *fakeSheet) Rows() ([][]string, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.rows, s.rowsErr
}

func (s *fakeSheet) Hyperlink(row, col int) (string, bool) {
	l, ok := s.links[cell{row, col}]
	return l, ok
}

func (s *fakeSheet) Hyperlinks() (map[string]string, error) {
	if s.registry == nil {
		return map[string]string{}, nil
	}
	return s.registry, nil
}

type fakeWorkbook []sheets.Sheet

func (w fakeWorkbook) Sheets() []sheets.Sheet { return w }
func (w fakeWorkbook) Close() error           { return nil }

// xlsxBytes builds an in-memory workbook. build receives the default sheet
// name.
func xlsxBytes(t *testing.T, build func(f *excelize.File, sheet string)) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	build(f, f.GetSheetName(0))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func setRows(t *testing.T, f *excelize.File, sheet string, rows ...[]any) {
	t.Helper()
	for i, r := range rows {
		addr, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow(sheet, addr, &row))
	}
}
