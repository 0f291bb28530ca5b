package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
)

// Row maps a CSV header to the cell value of one data line.
type Row map[string]string

// Field is a logical column of the imported data table.
type Field int

const (
	FieldFullName Field = iota
	FieldEmail
	FieldPhone
	FieldToken
)

// Aliases lists, per logical field, the accepted header spellings in priority order.
type Aliases map[Field][]string

// DefaultAliases are the header spellings accepted by the upload endpoint.
var DefaultAliases = Aliases{
	FieldFullName: {"full name", "Full Name", "name", "Name"},
	FieldEmail:    {"email", "Email"},
	FieldPhone:    {"phone no", "Phone No", "phone", "Phone", "contact no", "Contact No", "contact", "Contact"},
	FieldToken:    {"token_url", "Token URL", "token url", "tokenUrl"},
}

// Resolve returns the first present, non-blank (after trimming) value among the aliases of f.
func (a Aliases) Resolve(row Row, f Field) string {
	for _, key := range a[f] {
		if v := strings.TrimSpace(row[key]); v != "" {
			return v
		}
	}
	return ""
}

// Rows lazily decodes r: the first line is the header, each following line becomes a Row.
// Iteration stops after the first error.
func Rows(r io.Reader) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true

		header, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("read csv header: %w", err))
			return
		}
		for i, h := range header {
			if i == 0 {
				h = strings.TrimPrefix(h, "\ufeff")
			}
			header[i] = strings.TrimSpace(h)
		}

		for n := 1; ; n++ {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("read csv record %d: %w", n, err))
				return
			}
			row := make(Row, len(header))
			for i, h := range header {
				if i < len(record) {
					row[h] = record[i]
				} else {
					row[h] = ""
				}
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// ReadAll materializes Rows.
func ReadAll(r io.Reader) ([]Row, error) {
	var rows []Row
	for row, err := range Rows(r) {
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
