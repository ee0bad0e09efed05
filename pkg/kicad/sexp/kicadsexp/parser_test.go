package kicadsexp

import (
	"strings"
	"testing"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "nested",
			input: `(kicad_pcb (version 20240108) (general (thickness 1.6)))`,
			want:  `(kicad_pcb (version 20240108) (general (thickness 1.6)))`,
		},
		{
			name:  "quoted strings keep spaces",
			input: `(title_block (title "Example Board"))`,
			want:  `(title_block (title "Example Board"))`,
		},
		{
			name:  "empty string",
			input: `(net 0 "")`,
			want:  `(net 0 "")`,
		},
		{
			name:  "escapes",
			input: `(property "Note" "a \"b\"\n")`,
			want:  `(property Note "a \"b\"\n")`,
		},
		{
			name:  "hash is not a comment",
			input: `(ref #PWR01)`,
			want:  `(ref #PWR01)`,
		},
		{
			name:    "unbalanced",
			input:   `(kicad_pcb (version 1)`,
			wantErr: true,
		},
		{
			name:    "stray close",
			input:   `)`,
			wantErr: true,
		},
		{
			name:    "open string",
			input:   `(title "abc`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseString(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseString(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseString(%q) unexpected error: %v", tt.input, err)
			}
			if len(got) != 1 {
				t.Fatalf("got %d expressions, want 1", len(got))
			}
			if s := got[0].String(); s != tt.want {
				t.Errorf("String() = %s, want %s", s, tt.want)
			}
		})
	}
}

func TestListAccessors(t *testing.T) {
	root, err := ParseList(strings.NewReader(`(pad "1" smd roundrect
		(at 1.5 -2 90)
		(size 1 0.5)
		(layers "F.Cu" "F.Paste")
		(net 3 "GND")
		(net 4 "VCC")
		locked
		(hide yes))`))
	if err != nil {
		t.Fatal(err)
	}

	if root.Key() != "pad" || root.Str(1) != "1" || root.Str(3) != "roundrect" {
		t.Errorf("unexpected header %s", root)
	}
	at, ok := root.Child("at")
	if !ok {
		t.Fatal("missing (at)")
	}
	if at.Line != 2 {
		t.Errorf("(at) line = %d, want 2", at.Line)
	}
	if y, err := at.Float(2); err != nil || y != -2 {
		t.Errorf("Float(2) = %v, %v", y, err)
	}
	if _, err := at.Float(4); err == nil {
		t.Error("Float past the end should fail")
	}
	if _, err := root.Int(3); err == nil {
		t.Error("Int of a word should fail")
	}
	if n := len(root.Children("net")); n != 2 {
		t.Errorf("Children(net) = %d, want 2", n)
	}
	if !root.HasSymbol("locked") || root.HasSymbol("pad") {
		t.Error("HasSymbol must look at arguments only")
	}
	if !root.Flag("hide") || !root.Flag("locked") || root.Flag("dnp") {
		t.Error("Flag mismatch")
	}
	if n := len(root.Lists()); n != 6 {
		t.Errorf("Lists() = %d, want 6", n)
	}
}

func TestErrorsCarryLine(t *testing.T) {
	_, err := ParseString("(a\n(b\n(c")
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Errorf("error %v should name line 3", err)
	}
}

func TestDepthLimit(t *testing.T) {
	deep := strings.Repeat("(", MaxDepth+1) + strings.Repeat(")", MaxDepth+1)
	if _, err := ParseString(deep); err == nil {
		t.Error("expected nesting error")
	}
}
