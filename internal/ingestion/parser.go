package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rpattn/drillops/internal/domain"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

type fileFormat int

const (
	formatUnknown fileFormat = iota
	formatCSV
	formatTSV
	formatXLSX
)

// sheet is the parsed content of an upload: the header row and every non-empty
// data row in source order.
type sheet struct {
	headers []string
	rows    []domain.RawPayload
}

func parseUpload(fileName string, payload []byte) (sheet, error) {
	format := detectFormat(fileName, payload)

	var (
		records [][]string
		err     error
	)
	switch format {
	case formatCSV:
		records, err = readDelimited(payload, ',')
	case formatTSV:
		records, err = readDelimited(payload, '\t')
	case formatXLSX:
		records, err = readFirstSheet(payload)
	default:
		return sheet{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, describeUpload(fileName, payload))
	}
	if err != nil {
		return sheet{}, err
	}

	return buildSheet(records)
}

func detectFormat(fileName string, payload []byte) fileFormat {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".txt":
		return formatCSV
	case ".tsv":
		return formatTSV
	case ".xlsx", ".xlsm":
		return formatXLSX
	}

	detected := mimetype.Detect(payload)
	switch {
	case detected.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"):
		return formatXLSX
	case detected.Is("text/tab-separated-values"):
		return formatTSV
	case detected.Is("text/csv"), detected.Is("text/plain"):
		return formatCSV
	default:
		return formatUnknown
	}
}

func describeUpload(fileName string, payload []byte) string {
	if ext := filepath.Ext(fileName); ext != "" {
		return ext
	}
	return mimetype.Detect(payload).String()
}

func readDelimited(payload []byte, comma rune) ([][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = comma
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	return records, nil
}

// readFirstSheet returns raw cell values so date cells keep their serial number.
func readFirstSheet(payload []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: not a valid xlsx workbook: %v", ErrUnreadableFile, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrEmptyFile)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read rows from %q: %v", ErrUnreadableFile, sheets[0], err)
	}
	return rows, nil
}

// buildSheet treats the first non-empty record as the header row.
// Blank rows are skipped without taking a row number.
func buildSheet(records [][]string) (sheet, error) {
	var (
		headers []string
		rows    []domain.RawPayload
	)

	for _, record := range records {
		if isBlankRow(record) {
			continue
		}
		if headers == nil {
			headers = sanitizeHeaders(record)
			continue
		}

		payload := make(domain.RawPayload, len(headers))
		for i, header := range headers {
			value := ""
			if i < len(record) {
				value = record[i]
			}
			payload[i] = domain.RawField{Header: header, Value: value}
		}
		rows = append(rows, payload)
	}

	if headers == nil {
		return sheet{}, fmt.Errorf("%w: no header row found", ErrEmptyFile)
	}
	return sheet{headers: headers, rows: rows}, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for idx, value := range raw {
		name := strings.TrimSpace(value)
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}
		headers[idx] = name
	}
	return headers
}
