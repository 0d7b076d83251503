package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/serviceline/serviceline/internal/platform/httpx"
)

// ErrUnsupportedFile is returned for extensions other than csv/xlsx.
var ErrUnsupportedFile = fmt.Errorf("unsupported file type: %w", httpx.ErrValidation)

// ErrNoHeader is returned when the sheet has no header row.
var ErrNoHeader = errors.New("file has no header row")

// Sheet is the parsed content of an upload: the header row and one map per
// non-empty data row keyed by header.
type Sheet struct {
	Header []string
	Rows   []map[string]string
}

// SupportedExtension reports whether name has an extension ReadFile accepts.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// ReadFile parses the first worksheet of an xlsx file, or a csv file.
func ReadFile(path string) (*Sheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadCSV(f)
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()
		return readWorkbook(f)
	default:
		return nil, fmt.Errorf("%s: %w", filepath.Ext(path), ErrUnsupportedFile)
	}
}

// ReadWorkbook parses the first worksheet of an xlsx stream.
func ReadWorkbook(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(f)
}

func readWorkbook(f *excelize.File) (*Sheet, error) {
	sheet := f.GetSheetName(0)
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	defer rows.Close()

	b := &sheetBuilder{}
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		b.add(cols)
	}
	if err := rows.Error(); err != nil {
		return nil, err
	}
	return b.sheet()
}

// ReadCSV parses a csv stream whose first record is the header.
func ReadCSV(r io.Reader) (*Sheet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	b := &sheetBuilder{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		b.add(rec)
	}
	return b.sheet()
}

type sheetBuilder struct {
	header []string
	rows   []map[string]string
}

func (b *sheetBuilder) add(cells []string) {
	if blank(cells) {
		return
	}
	if b.header == nil {
		b.header = headerFrom(cells)
		return
	}
	row := make(map[string]string, len(b.header))
	for i, h := range b.header {
		if i < len(cells) {
			row[h] = strings.TrimSpace(cells[i])
		} else {
			row[h] = ""
		}
	}
	b.rows = append(b.rows, row)
}

func (b *sheetBuilder) sheet() (*Sheet, error) {
	if b.header == nil {
		return nil, ErrNoHeader
	}
	return &Sheet{Header: b.header, Rows: b.rows}, nil
}

func headerFrom(cells []string) []string {
	header := make([]string, len(cells))
	seen := make(map[string]int, len(cells))
	for i, c := range cells {
		h := strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = fmt.Sprintf("%s_%d", h, n+1)
		} else {
			seen[h] = 1
		}
		header[i] = h
	}
	return header
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
