package odb

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// System attribute names
const (
	AttrSMD          = ".smd"
	AttrPadUsage     = ".pad_usage"
	AttrDrill        = ".drill"
	AttrGeometry     = ".geometry"
	AttrNomenclature = ".nomenclature"
	AttrCompMount    = ".comp_mount_type"
	AttrCompHeight   = ".comp_height"
	AttrNoPop        = ".no_pop"
)

// Option values of .pad_usage
const (
	PadUsageToeprint = iota
	PadUsageVia
	PadUsageGlobalFiducial
	PadUsageLocalFiducial
	PadUsageToolingHole
)

// Option values of .drill
const (
	DrillPlated = iota
	DrillNonPlated
	DrillVia
)

// Option values of .comp_mount_type
const (
	MountOther = iota
	MountSMT
	MountTHMT
)

// Attr is one attribute assignment of a feature or record. Value is empty
// for boolean attributes.
type Attr struct {
	ID    int
	Value string
}

// AttrTable interns attribute names (@ lines) and text values (& lines)
// for one file
type AttrTable struct {
	kind      string
	names     map[string]int
	nameList  []string
	texts     map[string]int
	textsList []string
}

// NewAttrTable returns an empty table. kind names the section headers,
// "Feature" or "Component".
func NewAttrTable(kind string) *AttrTable {
	return &AttrTable{kind: kind, names: map[string]int{}, texts: map[string]int{}}
}

func (t *AttrTable) name(n string) int {
	if i, ok := t.names[n]; ok {
		return i
	}
	i := len(t.nameList)
	t.names[n] = i
	t.nameList = append(t.nameList, n)
	return i
}

// Bool returns a boolean attribute
func (t *AttrTable) Bool(name string) Attr {
	return Attr{ID: t.name(name)}
}

// Option returns an option attribute set to the option index v
func (t *AttrTable) Option(name string, v int) Attr {
	return Attr{ID: t.name(name), Value: strconv.Itoa(v)}
}

// Number returns a numeric attribute
func (t *AttrTable) Number(name string, v float64) Attr {
	return Attr{ID: t.name(name), Value: Double2String(v, 4)}
}

// Text returns a text attribute; the value refers to an interned string
func (t *AttrTable) Text(name, text string) Attr {
	i, ok := t.texts[text]
	if !ok {
		i = len(t.textsList)
		t.texts[text] = i
		t.textsList = append(t.textsList, text)
	}
	return Attr{ID: t.name(name), Value: strconv.Itoa(i)}
}

// Empty reports whether nothing was interned
func (t *AttrTable) Empty() bool {
	return len(t.nameList) == 0
}

// WriteTo writes the name and text sections
func (t *AttrTable) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	if len(t.nameList) > 0 {
		fmt.Fprintf(&b, "#\n#%s attribute names\n#\n", t.kind)
		for i, n := range t.nameList {
			fmt.Fprintf(&b, "@%d %s\n", i, n)
		}
	}
	if len(t.textsList) > 0 {
		fmt.Fprintf(&b, "#\n#%s attribute text strings\n#\n", t.kind)
		for i, s := range t.textsList {
			fmt.Fprintf(&b, "&%d %s\n", i, s)
		}
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// attrSuffix formats the attribute part of a record, e.g. ";0,1=2"
func attrSuffix(attrs []Attr) string {
	if len(attrs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte(';')
	for i, a := range attrs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(a.ID))
		if a.Value != "" {
			b.WriteByte('=')
			b.WriteString(a.Value)
		}
	}
	return b.String()
}
