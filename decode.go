package uabean

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// DecodeWin1251 converts the windows-1251 bytes used by Ukrainian bank
// exports into UTF-8.
func DecodeWin1251(data []byte) ([]byte, error) {
	out, _, err := transform.Bytes(charmap.Windows1251.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("cannot decode windows-1251: %w", err)
	}
	return out, nil
}

// CSVRows reads a delimited file into header-keyed rows, the row model the
// importers map into Records. Rows shorter than the header keep the missing
// fields empty; fully empty rows are skipped.
func CSVRows(data []byte, comma rune) ([]map[string]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read csv header: %w", err)
	}
	// Strip a BOM left by spreadsheet exports.
	if len(header) > 0 {
		header[0] = string(bytes.TrimPrefix([]byte(header[0]), []byte("\ufeff")))
	}

	var rows []map[string]string
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		empty := true
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				row[name] = record[i]
				if record[i] != "" {
					empty = false
				}
			} else {
				row[name] = ""
			}
		}
		if !empty {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// CSVRecords reads a delimited file into raw positional records, header
// included, for statements addressed by column index. Fully empty rows are
// skipped and a leading BOM is stripped.
func CSVRecords(data []byte, comma rune) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for line := 1; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if len(records) == 0 && len(record) > 0 {
			record[0] = string(bytes.TrimPrefix([]byte(record[0]), []byte("\ufeff")))
		}
		empty := true
		for _, field := range record {
			if field != "" {
				empty = false
				break
			}
		}
		if !empty {
			records = append(records, record)
		}
	}
	return records, nil
}

// Win1251CSVRows combines DecodeWin1251 and CSVRows, the common case for the
// business-bank exports.
func Win1251CSVRows(f *File, comma rune) ([]map[string]string, error) {
	data, err := f.Contents()
	if err != nil {
		return nil, err
	}
	decoded, err := DecodeWin1251(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	return CSVRows(decoded, comma)
}
