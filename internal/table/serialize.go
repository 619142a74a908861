package table

import (
	"io"
	"strings"
)

// Format renders a header and records as CSV text.
//
// Cells containing a delimiter, quote, CR or LF, or with leading/trailing whitespace are
// quoted, with inner quotes doubled. Rows are joined by "\n" without a trailing newline.
func Format(header []string, records [][]string) string {
	var b strings.Builder
	writeRecord(&b, header)
	for _, rec := range records {
		b.WriteByte('\n')
		writeRecord(&b, rec)
	}
	return b.String()
}

// Write writes Format(header, records) to w.
func Write(w io.Writer, header []string, records [][]string) error {
	_, err := io.WriteString(w, Format(header, records))
	return err
}

func writeRecord(b *strings.Builder, cells []string) {
	if len(cells) == 1 && cells[0] == "" {
		// A lone empty cell would otherwise read back as a blank line.
		b.WriteString(`""`)
		return
	}
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(escapeCell(c))
	}
}

func escapeCell(s string) string {
	if !needsQuotes(s) {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func needsQuotes(s string) bool {
	if s == "" {
		return false
	}
	if strings.ContainsAny(s, ",\"\n\r") {
		return true
	}
	return strings.TrimSpace(s) != s
}
