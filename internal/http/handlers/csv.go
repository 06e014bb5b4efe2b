package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// decodeCSV reads a header row plus data rows and returns the rows keyed by
// header name, the shape LoadOpen stages into bronze. Ragged rows are
// tolerated: short rows leave trailing columns unset, extra cells past the
// header row are dropped.
func decodeCSV(r io.Reader) ([]string, []map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	first, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header row: %w", err)
	}
	headers := make([]string, 0, len(first))
	for i, h := range first {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		headers = append(headers, strings.TrimSpace(h))
	}

	var rows []map[string]string
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", line, err)
		}
		if isBlankRecord(record) {
			continue
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(record) {
				row[h] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
