// Package kicadsexp provides a lightweight streaming S-expression parser
// for KiCad board files. The whole file is read through a buffered lexer so
// multi-megabyte boards with large zone fills parse without reading the file
// into memory first.
package kicadsexp

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Sexp is an S-expression node: a Symbol or a *List
type Sexp interface {
	// IsLeaf returns true if this is an atom (not a list)
	IsLeaf() bool
	String() string
}

// Symbol is an atom. Quoted strings and bare words both parse to Symbol.
type Symbol string

func (s Symbol) IsLeaf() bool   { return true }
func (s Symbol) String() string { return string(s) }

// List is a parenthesised list. Line is the line of the opening parenthesis.
type List struct {
	Items []Sexp
	Line  int
}

func (l *List) IsLeaf() bool { return false }

func (l *List) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, it := range l.Items {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if sym, ok := it.(Symbol); ok && needsQuote(string(sym)) {
			sb.WriteString(strconv.Quote(string(sym)))
			continue
		}
		sb.WriteString(it.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func needsQuote(s string) bool {
	return s == "" || strings.ContainsAny(s, " ()\"\t\n")
}

// Len returns the number of elements, key included
func (l *List) Len() int { return len(l.Items) }

// Key returns the leading symbol of the list, e.g. "at" for (at 1 2)
func (l *List) Key() string {
	if len(l.Items) == 0 {
		return ""
	}
	if sym, ok := l.Items[0].(Symbol); ok {
		return string(sym)
	}
	return ""
}

// Atom returns the symbol at index i. Index 0 is the key.
func (l *List) Atom(i int) (string, bool) {
	if i < 0 || i >= len(l.Items) {
		return "", false
	}
	sym, ok := l.Items[i].(Symbol)
	return string(sym), ok
}

// Str returns the symbol at index i, or "" when there is none
func (l *List) Str(i int) string {
	s, _ := l.Atom(i)
	return s
}

// Float parses the symbol at index i as a float
func (l *List) Float(i int) (float64, error) {
	s, ok := l.Atom(i)
	if !ok {
		return 0, fmt.Errorf("line %d: (%s): no number at index %d", l.Line, l.Key(), i)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: (%s): %w", l.Line, l.Key(), err)
	}
	return v, nil
}

// Int parses the symbol at index i as an integer
func (l *List) Int(i int) (int, error) {
	s, ok := l.Atom(i)
	if !ok {
		return 0, fmt.Errorf("line %d: (%s): no integer at index %d", l.Line, l.Key(), i)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("line %d: (%s): %w", l.Line, l.Key(), err)
	}
	return v, nil
}

// Child returns the first sub-list whose key is key
func (l *List) Child(key string) (*List, bool) {
	for _, it := range l.Items {
		if sub, ok := it.(*List); ok && sub.Key() == key {
			return sub, true
		}
	}
	return nil, false
}

// Children returns every sub-list whose key is key, in file order
func (l *List) Children(key string) []*List {
	var out []*List
	for _, it := range l.Items {
		if sub, ok := it.(*List); ok && sub.Key() == key {
			out = append(out, sub)
		}
	}
	return out
}

// Lists returns every sub-list in file order
func (l *List) Lists() []*List {
	var out []*List
	for _, it := range l.Items {
		if sub, ok := it.(*List); ok {
			out = append(out, sub)
		}
	}
	return out
}

// HasSymbol reports whether a bare symbol appears among the list arguments
func (l *List) HasSymbol(s string) bool {
	for _, it := range l.Items[min(1, len(l.Items)):] {
		if sym, ok := it.(Symbol); ok && string(sym) == s {
			return true
		}
	}
	return false
}

// Flag reads a boolean option written either as a bare symbol (hide) or as
// a list (hide yes). A missing option is false.
func (l *List) Flag(name string) bool {
	if l.HasSymbol(name) {
		return true
	}
	if c, ok := l.Child(name); ok {
		v := c.Str(1)
		return v == "" || v == "yes" || v == "true"
	}
	return false
}

// Parse parses every top-level S-expression from r
func Parse(r io.Reader) ([]Sexp, error) {
	return NewParser(r).ParseAll()
}

// ParseString parses S-expressions from a string
func ParseString(s string) ([]Sexp, error) {
	return Parse(strings.NewReader(s))
}

// ParseList parses r and returns its single top-level list
func ParseList(r io.Reader) (*List, error) {
	all, err := Parse(r)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	root, ok := all[0].(*List)
	if !ok {
		return nil, fmt.Errorf("expected a list, got atom %q", all[0].String())
	}
	return root, nil
}
