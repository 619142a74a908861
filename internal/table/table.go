package table

import (
	"fmt"
	"io"
	"strings"
)

const (
	// ColumnReview is the preferred review column name.
	ColumnReview = "review"
	// ColumnText is the fallback review column name.
	ColumnText = "text"
)

// Table is a parsed input batch: a lower-cased header plus ordered rows.
type Table struct {
	header    []string
	rows      []Row
	reviewIdx int
}

// Row is one input record. Values are aligned with the table header.
type Row struct {
	Line int

	header    []string
	values    []string
	reviewIdx int
}

// Header returns a copy of the lower-cased header.
func (t *Table) Header() []string {
	return append([]string(nil), t.header...)
}

// Rows returns the data rows in input order.
func (t *Table) Rows() []Row {
	return t.rows
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// ReviewColumn returns the name of the column used as review text.
func (t *Table) ReviewColumn() string {
	return t.header[t.reviewIdx]
}

// Values returns a copy of the row values in header order.
func (r Row) Values() []string {
	return append([]string(nil), r.values...)
}

// Review returns the value of the review column.
func (r Row) Review() string {
	if r.reviewIdx < 0 || r.reviewIdx >= len(r.values) {
		return ""
	}
	return r.values[r.reviewIdx]
}

// Get returns the value for a column name (case-insensitive) and whether the column exists.
func (r Row) Get(column string) (string, bool) {
	column = strings.ToLower(strings.TrimSpace(column))
	for i, h := range r.header {
		if h == column {
			return r.values[i], true
		}
	}
	return "", false
}

// Read reads all of r and parses it. Read failures are reported as *IOError.
func Read(r io.Reader) (*Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, &IOError{Op: "read csv", Err: err}
	}
	return Parse(string(b))
}

// Parse parses CSV text into a Table.
//
// The first non-blank record is the header. At least one data record is required.
// The header must contain a "review" or "text" column (case-insensitive).
func Parse(text string) (*Table, error) {
	text = strings.TrimPrefix(text, "\ufeff")

	records, err := tokenize(text)
	if err != nil {
		return nil, err
	}

	nonBlank := records[:0]
	for _, rec := range records {
		if rec.blank {
			continue
		}
		nonBlank = append(nonBlank, rec)
	}
	if len(nonBlank) < 2 {
		return nil, &MalformedInputError{Reason: "CSV must contain a header and at least one review"}
	}

	header := make([]string, len(nonBlank[0].cells))
	for i, h := range nonBlank[0].cells {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	reviewIdx := indexOf(header, ColumnReview)
	if reviewIdx < 0 {
		reviewIdx = indexOf(header, ColumnText)
	}
	if reviewIdx < 0 {
		return nil, &SchemaError{Header: header}
	}

	rows := make([]Row, 0, len(nonBlank)-1)
	for _, rec := range nonBlank[1:] {
		values := make([]string, len(header))
		// Short rows are padded with ""; cells beyond the header are dropped.
		copy(values, rec.cells)
		rows = append(rows, Row{
			Line:      rec.line,
			header:    header,
			values:    values,
			reviewIdx: reviewIdx,
		})
	}

	return &Table{header: header, rows: rows, reviewIdx: reviewIdx}, nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func (r Row) String() string {
	return fmt.Sprintf("line %d: %v", r.Line, r.values)
}
