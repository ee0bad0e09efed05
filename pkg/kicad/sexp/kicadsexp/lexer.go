package kicadsexp

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// TokenType represents the type of a token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenLeftParen
	TokenRightParen
	TokenSymbol
	TokenString
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenLeftParen:
		return "'('"
	case TokenRightParen:
		return "')'"
	case TokenSymbol:
		return "symbol"
	case TokenString:
		return "string"
	}
	return "unknown"
}

// Token is a lexical token and the line it starts on
type Token struct {
	Type  TokenType
	Value string
	Line  int
}

// Lexer tokenizes S-expressions from an io.Reader
type Lexer struct {
	reader *bufio.Reader
	line   int
	buf    strings.Builder
}

// NewLexer creates a new lexer
func NewLexer(r io.Reader) *Lexer {
	return &Lexer{
		reader: bufio.NewReaderSize(r, 64*1024),
		line:   1,
	}
}

// NextToken reads the next token from the input
func (l *Lexer) NextToken() (Token, error) {
	for {
		ch, _, err := l.reader.ReadRune()
		if err == io.EOF {
			return Token{Type: TokenEOF, Line: l.line}, nil
		}
		if err != nil {
			return Token{}, err
		}

		switch {
		case ch == '\n':
			l.line++
		case unicode.IsSpace(ch):
		case ch == '(':
			return Token{Type: TokenLeftParen, Value: "(", Line: l.line}, nil
		case ch == ')':
			return Token{Type: TokenRightParen, Value: ")", Line: l.line}, nil
		case ch == '"':
			return l.readString()
		default:
			return l.readSymbol(ch)
		}
	}
}

// readString reads a quoted string, the opening quote already consumed
func (l *Lexer) readString() (Token, error) {
	start := l.line
	l.buf.Reset()
	for {
		ch, _, err := l.reader.ReadRune()
		if err == io.EOF {
			return Token{}, fmt.Errorf("line %d: unexpected EOF in string", start)
		}
		if err != nil {
			return Token{}, err
		}

		switch ch {
		case '"':
			return Token{Type: TokenString, Value: l.buf.String(), Line: start}, nil
		case '\n':
			l.line++
		case '\\':
			next, _, err := l.reader.ReadRune()
			if err != nil {
				return Token{}, fmt.Errorf("line %d: unexpected EOF after backslash", l.line)
			}
			switch next {
			case 'n':
				ch = '\n'
			case 't':
				ch = '\t'
			case 'r':
				ch = '\r'
			default:
				ch = next
			}
		}
		l.buf.WriteRune(ch)
	}
}

// readSymbol reads an unquoted symbol (keyword, number, layer name)
func (l *Lexer) readSymbol(first rune) (Token, error) {
	l.buf.Reset()
	l.buf.WriteRune(first)
	for {
		ch, _, err := l.reader.ReadRune()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Token{}, err
		}
		if unicode.IsSpace(ch) || ch == '(' || ch == ')' || ch == '"' {
			if err := l.reader.UnreadRune(); err != nil {
				return Token{}, err
			}
			break
		}
		l.buf.WriteRune(ch)
	}
	return Token{Type: TokenSymbol, Value: l.buf.String(), Line: l.line}, nil
}
