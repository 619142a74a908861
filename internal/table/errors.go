package table

import "fmt"

// MalformedInputError reports input that has no header+data or cannot be tokenized.
type MalformedInputError struct {
	Line   int
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e == nil {
		return "malformed csv input"
	}
	if e.Line > 0 {
		return fmt.Sprintf("malformed csv input: line %d: %s", e.Line, e.Reason)
	}
	return "malformed csv input: " + e.Reason
}

// SchemaError reports a header without a usable review column.
type SchemaError struct {
	Header []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("CSV file must contain a column named %q or %q (header: %v)", ColumnReview, ColumnText, e.Header)
}

// IOError wraps failures reading or writing a batch artifact.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	if e == nil || e.Err == nil {
		return "csv io error"
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
