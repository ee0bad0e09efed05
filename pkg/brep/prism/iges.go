package prism

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
)

// IGES entity types
const (
	igesCopiousData = 106
	igesColor       = 314
	igesProperty    = 406
)

// property form carrying an entity name
const igesNameForm = 15

// copious data form for 3D polylines
const igesPolyline3D = 12

type igesEntity struct {
	typ   int
	form  int
	color int // negative DE pointer to a colour entity
	label string
	// subscript ties polylines to the name property of their instance
	subscript int
	status    string
	params    []string
}

// WriteIGES writes every face loop as a closed 3D polyline. Hole loops
// are marked as dependent on the preceding outline; loops carry the label
// name and colour of their instance.
func (k *Kernel) WriteIGES(w io.Writer, doc *brep.Document, h brep.Header) error {
	ts := h.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var ents []*igesEntity
	colors := map[brep.Color]int{}
	colorRef := func(c brep.Color) int {
		if de, ok := colors[c]; ok {
			return de
		}
		ents = append(ents, &igesEntity{
			typ:    igesColor,
			status: "00000200",
			params: []string{strconv.Itoa(igesColor), igesReal(c.R * 100), igesReal(c.G * 100), igesReal(c.B * 100)},
		})
		de := 2*len(ents) - 1
		colors[c] = de
		return de
	}
	polyline := func(loop []mgl64.Vec3, label string, sub, color int, hole bool) {
		params := []string{strconv.Itoa(igesCopiousData), "2", strconv.Itoa(len(loop) + 1)}
		for i := 0; i <= len(loop); i++ {
			p := loop[i%len(loop)]
			params = append(params, igesReal(p.X()), igesReal(p.Y()), igesReal(p.Z()))
		}
		status := "00000000"
		if hole {
			status = "00010000"
		}
		ents = append(ents, &igesEntity{
			typ: igesCopiousData, form: igesPolyline3D, color: color,
			label: label, subscript: sub, status: status, params: params,
		})
	}

	maxCoord := 0.0
	for n, in := range doc.Instances() {
		sub := n + 1
		ents = append(ents, &igesEntity{
			typ: igesProperty, form: igesNameForm, label: in.Label.Name, subscript: sub,
			status: "00010000", params: []string{strconv.Itoa(igesProperty), "1", hollerith(in.Label.Name)},
		})
		faceIdx := 0
		k.solids(in.Label.Shape, in.Location, func(leaf brep.Shape, m mgl64.Mat4) {
			for _, f := range k.facets(leaf, m) {
				color := 0
				if c, ok := in.Label.FaceColor(faceIdx); ok {
					color = -colorRef(c)
				}
				faceIdx++
				for _, p := range f.Outer {
					maxCoord = math.Max(maxCoord, math.Max(math.Abs(p.X()), math.Max(math.Abs(p.Y()), math.Abs(p.Z()))))
				}
				polyline(f.Outer, in.Label.Name, sub, color, false)
				for _, hl := range f.Holes {
					polyline(hl, in.Label.Name, sub, color, true)
				}
			}
		})
	}

	bw := bufio.NewWriter(w)
	iw := &igesWriter{w: bw}

	desc := h.Description
	if desc == "" {
		desc = "OpenTraceExport IGES output"
	}
	iw.line(desc, 'S')

	system := h.System
	if system == "" {
		system = "OpenTraceExport"
	}
	date := hollerith(ts.UTC().Format("20060102.150405"))
	global := []string{
		"1H,", "1H;", hollerith(doc.Name), hollerith(h.FileName), hollerith(system), hollerith(system),
		"32", "38", "6", "308", "15", hollerith(doc.Name), "1.", "2", "2HMM", "1", "1.",
		date, igesReal(k.opts.Tolerance), igesReal(math.Max(maxCoord, 1)),
		hollerith(h.Author), hollerith(h.Organization), "11", "0", date,
	}
	for _, l := range pack(global, 72) {
		iw.line(l, 'G')
	}

	// directory entries first to learn the parameter line pointers
	type span struct{ start, count int }
	spans := make([]span, len(ents))
	var plines [][]string
	next := 1
	for i, e := range ents {
		lines := pack(e.params, 64)
		spans[i] = span{next, len(lines)}
		next += len(lines)
		plines = append(plines, lines)
	}
	for i, e := range ents {
		iw.line(fmt.Sprintf("%8d%8d%8d%8d%8d%8d%8d%8d%8s",
			e.typ, spans[i].start, 0, 1, 0, 0, 0, 0, e.status), 'D')
		label := e.label
		if len(label) > 8 {
			label = label[:8]
		}
		iw.line(fmt.Sprintf("%8d%8d%8d%8d%8d%8s%8s%8s%8d",
			e.typ, 0, e.color, spans[i].count, e.form, "", "", label, e.subscript), 'D')
	}
	for i, lines := range plines {
		de := 2*i + 1
		for _, l := range lines {
			iw.pline(l, de)
		}
	}
	iw.terminate()
	return bw.Flush()
}

type igesWriter struct {
	w      *bufio.Writer
	counts map[byte]int
}

func (iw *igesWriter) line(data string, section byte) {
	if iw.counts == nil {
		iw.counts = map[byte]int{}
	}
	iw.counts[section]++
	fmt.Fprintf(iw.w, "%-72.72s%c%7d\n", data, section, iw.counts[section])
}

func (iw *igesWriter) pline(data string, de int) {
	if iw.counts == nil {
		iw.counts = map[byte]int{}
	}
	iw.counts['P']++
	fmt.Fprintf(iw.w, "%-64.64s%8d%c%7d\n", data, de, 'P', iw.counts['P'])
}

func (iw *igesWriter) terminate() {
	fmt.Fprintf(iw.w, "S%7dG%7dD%7dP%7d%40s%c%7d\n",
		iw.counts['S'], iw.counts['G'], iw.counts['D'], iw.counts['P'], "", 'T', 1)
}

// pack joins tokens with commas into lines of at most width characters,
// ending the record with a semicolon
func pack(tokens []string, width int) []string {
	var lines []string
	var cur strings.Builder
	for i, t := range tokens {
		sep := ","
		if i == len(tokens)-1 {
			sep = ";"
		}
		piece := t + sep
		if cur.Len()+len(piece) > width && cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		for len(piece) > width {
			lines = append(lines, piece[:width])
			piece = piece[width:]
		}
		cur.WriteString(piece)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}

func hollerith(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '_'
		}
		return r
	}, s)
	return strconv.Itoa(len(s)) + "H" + s
}

func igesReal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += "."
	}
	return s
}

// ReadIGES loads closed 3D polylines as planar faces, grouping them by
// entity label. Dependent polylines become holes of the preceding face.
func (k *Kernel) ReadIGES(r io.Reader) (*brep.Document, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1024), 1<<20)

	var global strings.Builder
	var dlines []string
	pdata := map[int]*strings.Builder{}
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if len(line) < 73 {
			continue
		}
		switch line[72] {
		case 'G':
			global.WriteString(line[:72])
		case 'D':
			dlines = append(dlines, line[:72])
		case 'P':
			de, err := strconv.Atoi(strings.TrimSpace(line[64:72]))
			if err != nil {
				return nil, fmt.Errorf("IGES parameter line %q: %w", strings.TrimSpace(line[73:]), err)
			}
			b, ok := pdata[de]
			if !ok {
				b = &strings.Builder{}
				pdata[de] = b
			}
			b.WriteString(line[:64])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read IGES: %w", err)
	}

	field := func(s string, i int) string {
		if len(s) < (i+1)*8 {
			return ""
		}
		return strings.TrimSpace(s[i*8 : (i+1)*8])
	}
	params := func(de int) []string {
		b, ok := pdata[de]
		if !ok {
			return nil
		}
		body := b.String()
		if i := strings.IndexByte(body, ';'); i >= 0 {
			body = body[:i]
		}
		return strings.Split(body, ",")
	}
	num := func(s string) float64 {
		s = strings.Replace(strings.TrimSpace(s), "D", "E", 1)
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}

	colors := map[int]brep.Color{}
	labels := map[string]string{}
	for i := 0; i+1 < len(dlines); i += 2 {
		de := i + 1
		switch t, _ := strconv.Atoi(field(dlines[i], 0)); t {
		case igesColor:
			p := params(de)
			if len(p) >= 4 {
				colors[de] = brep.Color{R: num(p[1]) / 100, G: num(p[2]) / 100, B: num(p[3]) / 100}
			}
		case igesProperty:
			if f, _ := strconv.Atoi(field(dlines[i+1], 4)); f != igesNameForm {
				continue
			}
			if p := globalFields(strings.Join(params(de), ",")); len(p) >= 3 {
				labels[field(dlines[i+1], 8)] = p[2]
			}
		}
	}

	type group struct {
		faces  []*Facet
		colors map[int]brep.Color
	}
	groups := map[string]*group{}
	var names []string
	var last *Facet
	for i := 0; i+1 < len(dlines); i += 2 {
		de := i + 1
		d1, d2 := dlines[i], dlines[i+1]
		if t, _ := strconv.Atoi(field(d1, 0)); t != igesCopiousData {
			continue
		}
		p := params(de)
		if len(p) < 3 || strings.TrimSpace(p[1]) != "2" {
			continue
		}
		n, _ := strconv.Atoi(strings.TrimSpace(p[2]))
		var loop []mgl64.Vec3
		for j := 0; j < n && 3+3*j+2 < len(p); j++ {
			loop = append(loop, mgl64.Vec3{num(p[3+3*j]), num(p[4+3*j]), num(p[5+3*j])})
		}
		if len(loop) > 1 && loop[0] == loop[len(loop)-1] {
			loop = loop[:len(loop)-1]
		}
		if len(loop) < 3 {
			continue
		}

		status := field(d1, 8)
		if len(status) == 8 && status[2:4] == "01" && last != nil {
			last.Holes = append(last.Holes, loop)
			continue
		}
		name, ok := labels[field(d2, 8)]
		if !ok {
			name = field(d2, 7)
		}
		if name == "" {
			name = "model"
		}
		g, ok := groups[name]
		if !ok {
			g = &group{colors: map[int]brep.Color{}}
			groups[name] = g
			names = append(names, name)
		}
		if ci, _ := strconv.Atoi(field(d2, 2)); ci < 0 {
			if c, ok := colors[-ci]; ok {
				g.colors[len(g.faces)] = c
			}
		}
		last = &Facet{Outer: loop}
		g.faces = append(g.faces, last)
	}
	if len(names) == 0 {
		return nil, ErrNoGeometry
	}

	docName := "model"
	if g := globalFields(global.String()); len(g) > 2 && g[2] != "" {
		docName = g[2]
	}
	doc := brep.NewDocument(docName)
	for _, n := range names {
		g := groups[n]
		l := doc.AddShape(n, &Polyhedron{Faces: g.faces}, nil)
		if len(g.colors) > 0 {
			l.FaceColors = g.colors
		}
	}
	return doc, nil
}

// globalFields splits a parameter record, honouring Hollerith strings
// which may contain delimiters, and returns Hollerith values without
// their length prefix
func globalFields(g string) []string {
	var out []string
	i := 0
	for i < len(g) {
		for i < len(g) && g[i] == ' ' {
			i++
		}
		j := i
		for j < len(g) && g[j] >= '0' && g[j] <= '9' {
			j++
		}
		if j > i && j < len(g) && g[j] == 'H' {
			n, _ := strconv.Atoi(g[i:j])
			end := min(j+1+n, len(g))
			out = append(out, g[j+1:end])
			i = end
		} else {
			end := i
			for end < len(g) && g[end] != ',' && g[end] != ';' {
				end++
			}
			out = append(out, strings.TrimSpace(g[i:end]))
			i = end
		}
		if i < len(g) && g[i] == ';' {
			break
		}
		i++
	}
	return out
}
