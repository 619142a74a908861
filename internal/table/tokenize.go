package table

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type tokenState int

const (
	stateUnquoted tokenState = iota
	stateQuoted
	stateQuoteInQuoted
)

// record is one tokenized line (or multi-line record when a quoted cell spans newlines).
type record struct {
	line  int
	cells []string
	blank bool
}

type cellBuilder struct {
	buf    strings.Builder
	quoted bool
	// closed is set once the closing quote of a quoted cell was consumed.
	closed bool
}

func (c *cellBuilder) value() string {
	if c.quoted {
		return c.buf.String()
	}
	return strings.TrimSpace(c.buf.String())
}

func (c *cellBuilder) reset() {
	c.buf.Reset()
	c.quoted = false
	c.closed = false
}

// tokenize splits text into records using a quote-aware state machine.
//
// Delimiter is ',', quote is '"', and a doubled quote inside a quoted cell is a literal quote.
// Quoted cells may contain delimiters and newlines. An unterminated quoted cell, or text
// after a closing quote, is reported as a MalformedInputError, as is invalid UTF-8.
func tokenize(text string) ([]record, error) {
	var (
		out      []record
		cells    []string
		cell     cellBuilder
		state    = stateUnquoted
		line     = 1
		recLine  = 1
		openLine = 0
		sawQuote bool
	)

	endCell := func() {
		cells = append(cells, cell.value())
		cell.reset()
	}
	endRecord := func() {
		endCell()
		blank := !sawQuote && len(cells) == 1 && cells[0] == ""
		out = append(out, record{line: recLine, cells: cells, blank: blank})
		cells = nil
		sawQuote = false
	}

	var size int
	for i := 0; i < len(text); i += size {
		var r rune
		r, size = utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size == 1 {
			return nil, &MalformedInputError{Line: line, Reason: fmt.Sprintf("invalid UTF-8 byte 0x%02x", text[i])}
		}
		switch state {
		case stateUnquoted:
			switch r {
			case ',':
				endCell()
			case '\r':
				if i+1 < len(text) && text[i+1] == '\n' {
					continue
				}
				endRecord()
				line++
				recLine = line
			case '\n':
				endRecord()
				line++
				recLine = line
			case '"':
				if cell.closed {
					return nil, &MalformedInputError{Line: line, Reason: "unexpected quote after closed quoted field"}
				}
				if strings.TrimSpace(cell.buf.String()) != "" {
					return nil, &MalformedInputError{Line: line, Reason: "quote inside unquoted field"}
				}
				cell.buf.Reset()
				cell.quoted = true
				sawQuote = true
				openLine = line
				state = stateQuoted
			default:
				if cell.closed {
					if r == ' ' || r == '\t' {
						continue
					}
					return nil, &MalformedInputError{Line: line, Reason: "unexpected text after closing quote"}
				}
				cell.buf.WriteRune(r)
			}
		case stateQuoted:
			switch r {
			case '"':
				state = stateQuoteInQuoted
			case '\n':
				line++
				cell.buf.WriteRune(r)
			default:
				cell.buf.WriteRune(r)
			}
		case stateQuoteInQuoted:
			if r == '"' {
				cell.buf.WriteRune('"')
				state = stateQuoted
				continue
			}
			// The previous quote closed the cell; reprocess r as unquoted input.
			cell.closed = true
			state = stateUnquoted
			size = 0
		}
	}

	switch state {
	case stateQuoted:
		return nil, &MalformedInputError{Line: openLine, Reason: "unterminated quoted field"}
	case stateQuoteInQuoted:
		cell.closed = true
	}
	if len(cells) > 0 || cell.quoted || cell.buf.Len() > 0 {
		endRecord()
	}
	return out, nil
}
