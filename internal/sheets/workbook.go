// Package sheets decodes uploaded spreadsheets into sheets of raw cell text
// and exposes the hyperlinks attached to cells.
package sheets

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

// Sheet is one tab of a workbook. Row and column indexes are zero-based and
// match the slices returned by Rows.
type Sheet interface {
	Name() string
	// Rows returns raw cell values; numeric cells (including dates) keep
	// their stored number rather than the display format.
	Rows() ([][]string, error)
	// Hyperlink returns the hyperlink attached directly to a cell.
	Hyperlink(row, col int) (string, bool)
	// Hyperlinks returns every hyperlink the sheet declares outside of the
	// cell relationship table, keyed by A1 address.
	Hyperlinks() (map[string]string, error)
}

type Workbook interface {
	Sheets() []Sheet
	Close() error
}

// Open picks a decoder from the file extension.
func Open(fileName string, r io.Reader) (Workbook, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return OpenExcel(r)
	case ".csv":
		return OpenCSV(strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName)), r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

// CellAddress converts zero-based indexes to an A1 reference.
func CellAddress(row, col int) string {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return ""
	}
	return name
}
