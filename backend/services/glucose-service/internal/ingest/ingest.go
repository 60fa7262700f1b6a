// Package ingest turns an uploaded device export into a lazy stream of raw rows.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

const (
	// Extension is the only accepted upload file extension (case-insensitive).
	Extension = ".csv"
	// BannerMarker identifies the vendor banner line that precedes the header.
	BannerMarker = "Glukose-Werte"
)

var (
	// ErrWrongFormat is returned for uploads that are not CSV files.
	ErrWrongFormat = errors.New("ingest: only CSV files are allowed")
	// ErrMalformedCSV is returned when the delimited content cannot be read.
	ErrMalformedCSV = errors.New("ingest: malformed csv")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one data line of the export keyed by header name. Line is the 1-based line
// number in the uploaded file.
type Row struct {
	Line   int
	Values map[string]string
}

// Upload is a parsed export ready for validation.
type Upload struct {
	OwnerID  string
	Checksum string
	Rows     *RowReader
}

// OwnerIDFromFilename validates the extension and strips it. Any directory part a
// client may have sent is dropped first. A name that is only the extension has no
// owner and is rejected.
func OwnerIDFromFilename(filename string) (string, error) {
	name := filename
	if idx := strings.LastIndexAny(name, `/\`); idx >= 0 {
		name = name[idx+1:]
	}
	if len(name) <= len(Extension) || !strings.EqualFold(name[len(name)-len(Extension):], Extension) {
		return "", ErrWrongFormat
	}
	return name[:len(name)-len(Extension)], nil
}

// Checksum returns the hex xxhash64 digest of content.
func Checksum(content []byte) string {
	digest := xxhash.New()
	_, _ = digest.Write(content)
	return hex.EncodeToString(digest.Sum(nil))
}

// Parse validates the file name, strips banner and blank lines and prepares a reader
// over the remaining rows using the first surviving line as header.
func Parse(filename string, content []byte) (*Upload, error) {
	ownerID, err := OwnerIDFromFilename(filename)
	if err != nil {
		return nil, err
	}

	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrWrongFormat)
	}

	data, lines := filterLines(string(content))
	rows, err := newRowReader(data, lines)
	if err != nil {
		return nil, err
	}

	return &Upload{
		OwnerID:  ownerID,
		Checksum: Checksum(content),
		Rows:     rows,
	}, nil
}

// filterLines drops blank and banner lines. It returns the kept text and, for each
// kept line, its original line number.
func filterLines(text string) (string, []int) {
	var (
		kept    []string
		lineNos []int
	)
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" || strings.Contains(line, BannerMarker) {
			continue
		}
		kept = append(kept, line)
		lineNos = append(lineNos, i+1)
	}
	return strings.Join(kept, "\n"), lineNos
}

// RowReader yields rows one at a time. It is single-pass: once drained it keeps
// returning io.EOF.
type RowReader struct {
	reader  *csv.Reader
	header  []string
	lineNos []int
	done    bool
}

func newRowReader(data string, lineNos []int) (*RowReader, error) {
	reader := csv.NewReader(strings.NewReader(data))
	reader.FieldsPerRecord = -1
	// Free-text columns such as notes carry unescaped quotes.
	reader.LazyQuotes = true

	r := &RowReader{reader: reader, lineNos: lineNos}

	header, err := reader.Read()
	if err == io.EOF {
		r.done = true
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedCSV, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	r.header = header
	return r, nil
}

// Header returns the column names of the export.
func (r *RowReader) Header() []string {
	return append([]string(nil), r.header...)
}

// Next returns the next row or io.EOF when there are none left.
func (r *RowReader) Next() (Row, error) {
	if r.done {
		return Row{}, io.EOF
	}

	record, err := r.reader.Read()
	if err == io.EOF {
		r.done = true
		return Row{}, io.EOF
	}
	if err != nil {
		r.done = true
		return r.malformed(err)
	}

	line, _ := r.reader.FieldPos(0)
	values := make(map[string]string, len(r.header))
	for i, name := range r.header {
		if i >= len(record) {
			break
		}
		values[name] = record[i]
	}

	return Row{Line: r.originalLine(line), Values: values}, nil
}

// malformed reports a read failure against the line of the uploaded file. The
// reader's own line numbers count filtered lines only, so they are not echoed.
func (r *RowReader) malformed(err error) (Row, error) {
	var parseErr *csv.ParseError
	if !errors.As(err, &parseErr) {
		return Row{}, fmt.Errorf("%w: %v", ErrMalformedCSV, err)
	}
	line := r.originalLine(parseErr.Line)
	return Row{Line: line}, fmt.Errorf("%w: column %d: %v", ErrMalformedCSV, parseErr.Column, parseErr.Err)
}

func (r *RowReader) originalLine(line int) int {
	if line >= 1 && line <= len(r.lineNos) {
		return r.lineNos[line-1]
	}
	return line
}
