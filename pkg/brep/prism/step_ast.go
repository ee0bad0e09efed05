package prism

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// part21Lexer tokenises ISO 10303-21 exchange files
var part21Lexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `/\*(?:[^*]|\*+[^*/])*\*+/`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Binary", Pattern: `"[0-9A-Fa-f]*"`},
	{Name: "Ref", Pattern: `#[0-9]+`},
	{Name: "Enum", Pattern: `\.[A-Za-z_][A-Za-z0-9_]*\.`},
	{Name: "Number", Pattern: `[-+]?[0-9]+(?:\.[0-9]*)?(?:[eE][-+]?[0-9]+)?`},
	{Name: "Keyword", Pattern: `[A-Za-z_][A-Za-z0-9_\-]*`},
	{Name: "Punct", Pattern: `[=;(),$*]`},
})

// part21File is a whole exchange file
type part21File struct {
	Header []*part21Entity   `parser:"\"ISO-10303-21\" \";\" \"HEADER\" \";\" ( @@ \";\" )* \"ENDSEC\" \";\""`
	Data   []*part21Instance `parser:"\"DATA\" \";\" @@* \"ENDSEC\" \";\" \"END-ISO-10303-21\" \";\""`
}

// part21Instance is "#id = ENTITY(...);" or a complex "#id = (A(...) B(...));"
type part21Instance struct {
	ID      string          `parser:"@Ref \"=\""`
	Simple  *part21Entity   `parser:"( @@"`
	Complex []*part21Entity `parser:"| \"(\" @@+ \")\" ) \";\""`
}

// part21Entity is a keyword applied to a parameter list
type part21Entity struct {
	Name   string         `parser:"@Keyword \"(\""`
	Params []*part21Param `parser:"( @@ ( \",\" @@ )* )? \")\""`
}

// part21Param is one parameter value
type part21Param struct {
	Typed  *part21Entity `parser:"  @@"`
	List   *part21List   `parser:"| @@"`
	String *string       `parser:"| @String"`
	Binary *string       `parser:"| @Binary"`
	Ref    *string       `parser:"| @Ref"`
	Enum   *string       `parser:"| @Enum"`
	Number *float64      `parser:"| @Number"`
	Unset  bool          `parser:"| @( \"$\" | \"*\" )"`
}

type part21List struct {
	Items []*part21Param `parser:"\"(\" ( @@ ( \",\" @@ )* )? \")\""`
}

var part21Parser = participle.MustBuild[part21File](
	participle.Lexer(part21Lexer),
	participle.Elide("Comment", "Whitespace"),
	participle.UseLookahead(2),
)
