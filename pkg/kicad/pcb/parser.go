// Package pcb reads KiCad board files (.kicad_pcb, format 6.0 and later) into
// the board model used by the exporters.
package pcb

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/kicad/sexp/kicadsexp"
)

// Minimum supported KiCad version (6.0 = 20211014)
const MinSupportedVersion = 20211014

// DefaultChainTolerance joins Edge.Cuts end points closer than 0.01 mm
const DefaultChainTolerance = 10_000

var (
	ErrNotABoard          = errors.New("not a KiCad board file")
	ErrUnsupportedVersion = errors.New("unsupported KiCad board version")
)

// Parser handles parsing of KiCad board files
type Parser struct {
	log *zap.Logger
	// ChainTolerance is the largest gap closed when Edge.Cuts segments are
	// chained into the board outline
	ChainTolerance int64
}

// NewParser creates a parser logging skipped items to log
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log, ChainTolerance: DefaultChainTolerance}
}

// ParseFile reads a board file with a silent parser
func ParseFile(filename string) (*board.Board, error) {
	return NewParser(nil).ParseFile(filename)
}

// ParseFile reads and parses a KiCad board file. The board is named after
// the file.
func (p *Parser) ParseFile(filename string) (*board.Board, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	b, err := p.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	b.FileName = filename
	b.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return b, nil
}

// Parse reads a KiCad board from r
func (p *Parser) Parse(r io.Reader) (*board.Board, error) {
	root, err := kicadsexp.ParseList(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse s-expression: %w", err)
	}
	if root.Key() != "kicad_pcb" {
		return nil, fmt.Errorf("%w: root is %q", ErrNotABoard, root.Key())
	}

	st := &reader{
		p:     p,
		root:  root,
		b:     &board.Board{HolePlatingThickness: board.DefaultHolePlatingThickness},
		names: map[string]int{},
	}
	if err := st.read(); err != nil {
		return nil, err
	}
	return st.b, nil
}

// reader holds the state of one Parse call
type reader struct {
	p     *Parser
	root  *kicadsexp.List
	b     *board.Board
	names map[string]int
	// edges collects Edge.Cuts items, footprint ones included
	edges   []geom.Edge
	skipped int
}

func (r *reader) read() error {
	version, err := r.header()
	if err != nil {
		return err
	}
	r.general()
	r.layers()
	r.nets()

	var stackup *kicadsexp.List
	if setup, ok := r.root.Child("setup"); ok {
		stackup, _ = setup.Child("stackup")
		if n, ok := setup.Child("aux_axis_origin"); ok {
			r.b.AuxOrigin, _ = pointOf(n)
		}
		if n, ok := setup.Child("grid_origin"); ok {
			r.b.GridOrigin, _ = pointOf(n)
		}
	}
	r.b.Stackup = r.stackup(stackup)

	for _, n := range r.root.Lists() {
		switch n.Key() {
		case "gr_line", "gr_arc", "gr_circle", "gr_rect", "gr_poly":
			d, edges, err := parseDrawing(n)
			if err != nil {
				r.skip(n, err)
				continue
			}
			if d.Layer == board.EdgeCuts {
				r.edges = append(r.edges, edges...)
			}
			r.b.Drawings = append(r.b.Drawings, d)
		case "segment", "arc":
			t, err := r.track(n)
			if err != nil {
				r.skip(n, err)
				continue
			}
			r.b.Tracks = append(r.b.Tracks, t)
		case "via":
			v, err := r.via(n)
			if err != nil {
				r.skip(n, err)
				continue
			}
			r.b.Vias = append(r.b.Vias, v)
		case "footprint", "module":
			fp, err := r.footprint(n)
			if err != nil {
				r.skip(n, err)
				continue
			}
			r.b.Footprints = append(r.b.Footprints, fp)
		case "zone":
			z, err := r.zone(n)
			if err != nil {
				r.skip(n, err)
				continue
			}
			r.b.Zones = append(r.b.Zones, z)
		}
	}

	r.outline()

	r.p.log.Debug("board parsed",
		zap.Int("version", version),
		zap.Int("copper_layers", r.b.CopperCount),
		zap.Int("footprints", len(r.b.Footprints)),
		zap.Int("tracks", len(r.b.Tracks)),
		zap.Int("vias", len(r.b.Vias)),
		zap.Int("zones", len(r.b.Zones)),
		zap.Int("skipped", r.skipped))
	return nil
}

func (r *reader) skip(n *kicadsexp.List, err error) {
	r.skipped++
	r.p.log.Warn("skipping board item",
		zap.String("item", n.Key()),
		zap.Int("line", n.Line),
		zap.Error(err))
}

// header checks the format version
// Expected format: (kicad_pcb (version 20221018) (generator pcbnew) ...)
func (r *reader) header() (int, error) {
	vn, ok := r.root.Child("version")
	if !ok {
		return 0, fmt.Errorf("missing required 'version' field")
	}
	version, err := vn.Int(1)
	if err != nil {
		return 0, fmt.Errorf("failed to parse version: %w", err)
	}
	if version < MinSupportedVersion {
		return 0, fmt.Errorf("%w: %d (minimum required: %d / KiCad 6.0)", ErrUnsupportedVersion, version, MinSupportedVersion)
	}
	return version, nil
}

// general reads the board thickness and the title block. Files older than
// KiCad 7 keep the title fields inside (general).
func (r *reader) general() {
	r.b.Thickness = board.DefaultBoardThickness
	if g, ok := r.root.Child("general"); ok {
		if t, err := childMM(g, "thickness", 0); err == nil && t > 0 {
			r.b.Thickness = t
		}
		r.titleFrom(g)
	}
	if tb, ok := r.root.Child("title_block"); ok {
		r.titleFrom(tb)
	}
}

func (r *reader) titleFrom(n *kicadsexp.List) {
	set := func(dst *string, key string) {
		if v := childString(n, key); v != "" {
			*dst = v
		}
	}
	set(&r.b.Title.Title, "title")
	set(&r.b.Title.Date, "date")
	set(&r.b.Title.Revision, "rev")
	set(&r.b.Title.Company, "company")
}

// layers reads the enabled layer table
// Expected format: (layers (0 "F.Cu" signal) (31 "B.Cu" signal) ...)
func (r *reader) layers() {
	if n, ok := r.root.Child("layers"); ok {
		for _, l := range n.Lists() {
			id, ok := board.LayerByName(l.Str(1))
			if !ok {
				continue
			}
			r.b.Enabled = r.b.Enabled.With(id)
		}
	}
	r.b.CopperCount = r.b.Enabled.Copper().Len()
	if r.b.CopperCount < 2 {
		r.b.CopperCount = 2
		r.b.Enabled = r.b.Enabled.With(board.FCu).With(board.BCu)
	}
}

// nets reads the top level net table
// Expected format: (net 0 "") (net 1 "GND") ...
func (r *reader) nets() {
	for _, n := range r.root.Children("net") {
		code, err := n.Int(1)
		if err != nil {
			r.skip(n, err)
			continue
		}
		name := n.Str(2)
		r.b.Nets = append(r.b.Nets, board.Net{Code: code, Name: name})
		r.names[name] = code
	}
}

// netOf resolves the (net ...) child of an item. Both (net 3 "GND") and
// the name-only (net "GND") forms are accepted; unknown names are added to
// the net table.
func (r *reader) netOf(n *kicadsexp.List) (int, string) {
	c, ok := n.Child("net")
	if !ok {
		if name := childString(n, "net_name"); name != "" {
			return r.netByName(name), name
		}
		return 0, ""
	}
	if code, err := c.Int(1); err == nil {
		name := c.Str(2)
		if name == "" {
			name = r.b.NetName(code)
		}
		return code, name
	}
	name := c.Str(1)
	return r.netByName(name), name
}

func (r *reader) netByName(name string) int {
	if name == "" {
		return 0
	}
	if code, ok := r.names[name]; ok {
		return code
	}
	code := 1
	for _, n := range r.b.Nets {
		code = max(code, n.Code+1)
	}
	r.b.Nets = append(r.b.Nets, board.Net{Code: code, Name: name})
	r.names[name] = code
	return code
}

// outline chains the collected Edge.Cuts items. Open contours are logged and
// dropped; the board keeps whatever did close.
func (r *reader) outline() {
	if len(r.edges) == 0 {
		r.p.log.Warn("board has no Edge.Cuts items")
		return
	}
	polys, err := geom.BuildOutline(r.edges, r.p.ChainTolerance)
	if err != nil {
		r.p.log.Warn("board outline is incomplete",
			zap.Int("edges", len(r.edges)),
			zap.Int("closed", len(polys)),
			zap.Error(err))
	}
	r.b.Outline = polys
}
