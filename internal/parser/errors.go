package parser

import "fmt"

// ParseError records one field that could not be read. Parsing continues
// past it with a default value.
type ParseError struct {
	Line  int
	Field string
	Msg   string
}

func (e ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse: line %d: %s: %s", e.Line, e.Field, e.Msg)
	}
	return fmt.Sprintf("parse: %s: %s", e.Field, e.Msg)
}
