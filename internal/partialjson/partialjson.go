// Package partialjson parses JSON documents that may be cut off mid-stream,
// such as tool call arguments assembled from deltas.
//
// Repair keeps the longest prefix that ends on a complete token and closes
// whatever strings, literals, arrays and objects are still open. Anything
// after the first complete top-level value is dropped.
package partialjson

import (
	"encoding/json"
	"strings"
)

// State describes how a document was parsed.
type State int

const (
	// StateUndefined means the input was empty.
	StateUndefined State = iota
	// StateSuccessful means the input was valid JSON as-is.
	StateSuccessful
	// StateRepaired means the input was valid after repair.
	StateRepaired
	// StateFailed means the input could not be parsed even after repair.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUndefined:
		return "undefined-input"
	case StateSuccessful:
		return "successful-parse"
	case StateRepaired:
		return "repaired-parse"
	default:
		return "failed-parse"
	}
}

// Parse decodes text, repairing it first if it is not valid JSON.
// The value is nil unless the state is StateSuccessful or StateRepaired.
func Parse(text string) (any, State) {
	if strings.TrimSpace(text) == "" {
		return nil, StateUndefined
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return v, StateSuccessful
	}

	if err := json.Unmarshal([]byte(Repair(text)), &v); err == nil {
		return v, StateRepaired
	}
	return nil, StateFailed
}

// Unmarshal is Parse into a typed destination.
func Unmarshal(text string, dst any) (State, error) {
	if strings.TrimSpace(text) == "" {
		return StateUndefined, nil
	}
	if err := json.Unmarshal([]byte(text), dst); err == nil {
		return StateSuccessful, nil
	}
	if err := json.Unmarshal([]byte(Repair(text)), dst); err != nil {
		return StateFailed, err
	}
	return StateRepaired, nil
}

type scanState int

const (
	scanRoot scanState = iota
	scanFinish
	scanString
	scanStringEscape
	scanLiteral
	scanNumber
	scanObjectStart
	scanObjectKey
	scanObjectAfterKey
	scanObjectBeforeValue
	scanObjectAfterValue
	scanObjectAfterComma
	scanArrayStart
	scanArrayAfterValue
	scanArrayAfterComma
)

var literals = [...]string{"true", "false", "null"}

func isLiteralPrefix(s string) bool {
	for _, lit := range literals {
		if strings.HasPrefix(lit, s) {
			return true
		}
	}
	return false
}

// scanner tracks the nesting of a partial document.
type scanner struct {
	input        string
	stack        []scanState
	lastValid    int
	literalStart int
}

func (s *scanner) top() scanState {
	return s.stack[len(s.stack)-1]
}

func (s *scanner) pop() {
	s.stack = s.stack[:len(s.stack)-1]
}

func (s *scanner) push(st scanState) {
	s.stack = append(s.stack, st)
}

// swap replaces the top state with next and pushes inner.
func (s *scanner) swap(next, inner scanState) {
	s.pop()
	s.push(next)
	s.push(inner)
}

func (s *scanner) valueStart(c byte, i int, next scanState) {
	switch {
	case c == '"':
		s.lastValid = i
		s.swap(next, scanString)
	case c == 't' || c == 'f' || c == 'n':
		s.lastValid = i
		s.literalStart = i
		s.swap(next, scanLiteral)
	case c == '-':
		s.swap(next, scanNumber)
	case c >= '0' && c <= '9':
		s.lastValid = i
		s.swap(next, scanNumber)
	case c == '{':
		s.lastValid = i
		s.swap(next, scanObjectStart)
	case c == '[':
		s.lastValid = i
		s.swap(next, scanArrayStart)
	}
}

func (s *scanner) afterObjectValue(c byte, i int) {
	switch c {
	case ',':
		s.pop()
		s.push(scanObjectAfterComma)
	case '}':
		s.lastValid = i
		s.pop()
	}
}

func (s *scanner) afterArrayValue(c byte, i int) {
	switch c {
	case ',':
		s.pop()
		s.push(scanArrayAfterComma)
	case ']':
		s.lastValid = i
		s.pop()
	}
}

// afterScalar hands the byte that ended a number or literal to the enclosing container.
func (s *scanner) afterScalar(c byte, i int) {
	switch s.top() {
	case scanObjectAfterValue:
		s.afterObjectValue(c, i)
	case scanArrayAfterValue:
		s.afterArrayValue(c, i)
	}
}

func (s *scanner) step(c byte, i int) {
	switch s.top() {
	case scanRoot:
		s.valueStart(c, i, scanFinish)

	case scanObjectStart:
		switch c {
		case '"':
			s.pop()
			s.push(scanObjectKey)
		case '}':
			s.lastValid = i
			s.pop()
		}

	case scanObjectAfterComma:
		if c == '"' {
			s.pop()
			s.push(scanObjectKey)
		}

	case scanObjectKey:
		if c == '"' {
			s.pop()
			s.push(scanObjectAfterKey)
		}

	case scanObjectAfterKey:
		if c == ':' {
			s.pop()
			s.push(scanObjectBeforeValue)
		}

	case scanObjectBeforeValue:
		s.valueStart(c, i, scanObjectAfterValue)

	case scanObjectAfterValue:
		s.afterObjectValue(c, i)

	case scanString:
		switch c {
		case '"':
			s.pop()
			s.lastValid = i
		case '\\':
			s.push(scanStringEscape)
		default:
			s.lastValid = i
		}

	case scanStringEscape:
		s.pop()
		s.lastValid = i

	case scanArrayStart:
		if c == ']' {
			s.lastValid = i
			s.pop()
			return
		}
		s.lastValid = i
		s.valueStart(c, i, scanArrayAfterValue)

	case scanArrayAfterValue:
		switch c {
		case ',':
			s.pop()
			s.push(scanArrayAfterComma)
		case ']':
			s.lastValid = i
			s.pop()
		default:
			s.lastValid = i
		}

	case scanArrayAfterComma:
		s.valueStart(c, i, scanArrayAfterValue)

	case scanNumber:
		switch {
		case c >= '0' && c <= '9':
			s.lastValid = i
		case c == 'e' || c == 'E' || c == '-' || c == '.':
		case c == ',' || c == '}' || c == ']':
			s.pop()
			s.afterScalar(c, i)
		default:
			s.pop()
		}

	case scanLiteral:
		if isLiteralPrefix(s.input[s.literalStart : i+1]) {
			s.lastValid = i
			return
		}
		s.pop()
		s.afterScalar(c, i)
	}
}

// Repair returns text truncated to its last complete token with every open
// construct closed. The result is not guaranteed to be valid JSON: a repaired
// prefix can still be malformed if the input was malformed before the cut.
func Repair(text string) string {
	s := &scanner{
		input:     text,
		stack:     []scanState{scanRoot},
		lastValid: -1,
	}

	for i := 0; i < len(text); i++ {
		s.step(text[i], i)
		if s.top() == scanFinish {
			// Nothing after a complete top-level value is kept.
			if len(s.stack) == 1 {
				break
			}
		}
	}

	var b strings.Builder
	b.WriteString(text[:s.lastValid+1])

	for i := len(s.stack) - 1; i >= 0; i-- {
		switch s.stack[i] {
		case scanString:
			b.WriteByte('"')
		case scanObjectKey, scanObjectAfterKey, scanObjectAfterComma,
			scanObjectStart, scanObjectBeforeValue, scanObjectAfterValue:
			b.WriteByte('}')
		case scanArrayStart, scanArrayAfterComma, scanArrayAfterValue:
			b.WriteByte(']')
		case scanLiteral:
			partial := text[s.literalStart:]
			for _, lit := range literals {
				if strings.HasPrefix(lit, partial) {
					b.WriteString(lit[len(partial):])
					break
				}
			}
		}
	}

	return b.String()
}
