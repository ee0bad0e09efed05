package odb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceExport/internal/fsutil"
	"github.com/OpenTraceLab/OpenTraceExport/internal/logging"
	"github.com/OpenTraceLab/OpenTraceExport/internal/metrics"
	"github.com/OpenTraceLab/OpenTraceExport/internal/version"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// StepName is the single step of every job
const StepName = "pcb"

var errLayerNotExported = errors.New("layer not exported")

// Exporter writes boards as ODB++ jobs
type Exporter struct {
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics
	// Now stamps misc/info and archive entries
	Now func() time.Time
}

// NewExporter returns an exporter for cfg. log and m may be nil.
func NewExporter(cfg Config, log *zap.Logger, m *metrics.Metrics) *Exporter {
	return &Exporter{cfg: cfg, log: logging.OrNop(log), metrics: m, Now: time.Now}
}

// Stats counts what an export wrote
type Stats struct {
	Layers     int
	Features   int
	Nets       int
	Packages   int
	Components int
	Skipped    int
}

// Export writes b below dir and returns the path written: the job
// directory, or the .tgz or .zip archive.
func (e *Exporter) Export(b *board.Board, dir string) (string, error) {
	out, _, err := e.ExportStats(b, dir)
	return out, err
}

// ExportStats is Export returning the counters of the run
func (e *Exporter) ExportStats(b *board.Board, dir string) (string, Stats, error) {
	if err := e.cfg.Validate(); err != nil {
		return "", Stats{}, err
	}
	if len(b.Outline) == 0 {
		return "", Stats{}, ErrNoOutline
	}
	defer e.metrics.Stage("odb")()

	name := e.cfg.JobName
	if name == "" {
		name = b.Name
	}
	name = LegalEntityName(name)
	if name == "" {
		name = "board"
	}
	log := e.log.With(zap.String("job", name))

	j := newJob(b, NewFormatter(e.cfg), log, e.metrics)
	j.build()
	now := e.Now()
	files, err := j.files(name, now)
	if err != nil {
		return "", j.stats, err
	}

	var target string
	switch e.cfg.Compress {
	case CompressTGZ:
		target = filepath.Join(dir, name+".tgz")
		err = fsutil.WriteAtomic(target, "$tempfile$.tgz", func(w io.Writer) error {
			return writeTGZ(w, name, files, now)
		})
	case CompressZIP:
		target = filepath.Join(dir, name+".zip")
		err = fsutil.WriteAtomic(target, "$tempfile$.zip", func(w io.Writer) error {
			return writeZIP(w, name, files, now)
		})
	default:
		target = filepath.Join(dir, name)
		err = writeTree(target, files)
	}
	if err != nil {
		return "", j.stats, fmt.Errorf("write odb++ job: %w", err)
	}

	e.metrics.File("odb")
	log.Info("odb++ job written",
		zap.String("path", target),
		zap.Int("layers", j.stats.Layers),
		zap.Int("features", j.stats.Features),
		zap.Int("nets", j.stats.Nets),
		zap.Int("components", j.stats.Components),
		zap.Int("skipped", j.stats.Skipped))
	return target, j.stats, nil
}

// job is the state of one export while the board is walked
type job struct {
	b       *board.Board
	f       Formatter
	log     *zap.Logger
	metrics *metrics.Metrics

	matrix  *Matrix
	eda     *EdaData
	netlist *Netlist
	comps   [2]*Components
	tools   map[string]*ToolTable
	profile *FeaturesManager

	traces map[int]*Subnet
	stats  Stats
}

func newJob(b *board.Board, f Formatter, log *zap.Logger, m *metrics.Metrics) *job {
	return &job{
		b:       b,
		f:       f,
		log:     log,
		metrics: m,
		eda:     NewEdaData(f),
		netlist: NewNetlist(f),
		comps:   [2]*Components{NewComponents(f, board.Front), NewComponents(f, board.Back)},
		tools:   map[string]*ToolTable{},
		profile: NewFeaturesManager(f),
		traces:  map[int]*Subnet{},
	}
}

func (j *job) skip(what string, err error) {
	j.stats.Skipped++
	j.metrics.Failure("odb")
	j.log.Warn("odb++ item skipped", zap.String("item", what), zap.Error(err))
}

// build walks the board once and fills every table
func (j *job) build() {
	j.matrix = buildMatrix(j.b, j.f, StepName)
	for _, l := range j.matrix.Layers {
		if l.Board.IsCopper() {
			j.eda.LayerIndex(l.Name)
		}
	}

	j.eda.Net(0, "")
	for _, n := range j.b.Nets {
		j.eda.Net(n.Code, n.Name)
	}

	for _, fp := range j.b.Footprints {
		j.footprint(fp)
	}
	for _, t := range j.b.Tracks {
		j.track(t)
	}
	for _, v := range j.b.Vias {
		j.via(v)
	}
	for i, z := range j.b.Zones {
		j.zone(i, z)
	}
	for _, d := range j.b.Drawings {
		j.drawing(d, false)
	}
	for _, p := range j.b.Outline {
		j.profile.AddSurface(p)
	}

	names := make([]string, 0, len(j.eda.Nets()))
	for _, n := range j.eda.Nets() {
		names = append(names, n.Name)
	}
	j.netlist.SetNets(names)

	for _, l := range j.matrix.Layers {
		j.stats.Features += l.Features.Len()
	}
	j.stats.Layers = len(j.matrix.Layers)
	j.stats.Nets = len(j.eda.Nets())
	j.stats.Packages = len(j.eda.Packages())
	j.stats.Components = j.comps[0].Len() + j.comps[1].Len()
	j.log.Debug("odb++ job built",
		zap.Int("layers", j.stats.Layers),
		zap.Int("features", j.stats.Features),
		zap.Int("drill_layers", len(j.tools)))
}

// layer returns the matrix row of a board layer
func (j *job) layer(id board.LayerID) (*Layer, bool) {
	return j.matrix.Layer(LayerName(id))
}

// copperFIDs turns feature indexes of a copper layer into eda references
func (j *job) copperFIDs(s *Subnet, l *Layer, feats []int) {
	idx := j.eda.LayerIndex(l.Name)
	for _, f := range feats {
		s.Features = append(s.Features, FeatureID{Type: 'C', Layer: idx, Feature: f})
	}
}

// drill adds a hole to the drill layer of its span and counts its tool
func (j *job) drill(s *Subnet, top, bottom board.LayerID, a, b geom.Point, d int64, plated, via bool) {
	l := j.matrix.addDrill(j.f, top, bottom, plated)
	tools, ok := j.tools[l.Name]
	if !ok {
		tools = NewToolTable(j.f)
		j.tools[l.Name] = tools
	}
	tools.Add(d, plated, via)

	usage := DrillNonPlated
	switch {
	case via:
		usage = DrillVia
	case plated:
		usage = DrillPlated
	}
	f := l.Features.AddHole(a, b, d, l.Features.Attrs.Option(AttrDrill, usage))
	if s != nil {
		s.Features = append(s.Features, FeatureID{Type: 'H', Layer: j.eda.LayerIndex(l.Name), Feature: f})
	}
}

func (j *job) footprint(fp *board.Footprint) {
	pkg := j.eda.Package(fp)
	cmp := j.comps[fp.Side].Add(fp, pkg)
	front, back := board.FCu, board.BCu
	if copper := j.b.CopperSet().Layers(); len(copper) > 0 {
		front, back = copper[0], copper[len(copper)-1]
	}

	for _, pad := range fp.Pads {
		net := j.eda.Net(pad.Net, pad.NetName)
		sn, snIdx := net.AddSubnet(SubnetToeprint)
		sn.Side, sn.Component = fp.Side, cmp.Index
		if pin, ok := pkg.PinIndex(pad.Number); ok {
			sn.Toeprint = pin
			cmp.Toeprints = append(cmp.Toeprints, Toeprint{
				Pin:    pin,
				Name:   pad.Number,
				Pos:    pad.Pos,
				Angle:  pad.Angle,
				Net:    net.Index,
				Subnet: snIdx,
			})
		}

		for _, id := range pad.Layers.Layers() {
			l, ok := j.layer(id)
			if !ok {
				continue
			}
			switch {
			case id.IsCopper():
				attrs := []Attr{l.Features.Attrs.Option(AttrPadUsage, PadUsageToeprint)}
				if pad.Attr == board.PadSMD || pad.Attr == board.PadConnector {
					attrs = append(attrs, l.Features.Attrs.Bool(AttrSMD))
				}
				j.copperFIDs(sn, l, l.Features.AddPadShape(pad, 0, attrs...))
			case id == board.FMask || id == board.BMask:
				l.Features.AddPadShape(pad, pad.MaskMargin)
			case id == board.FPaste || id == board.BPaste:
				if !pad.HasHole() {
					l.Features.AddPadShape(pad, pad.PasteMargin)
				}
			}
		}

		if pad.HasHole() {
			a, b, w := pad.HoleSegment()
			j.drill(sn, front, back, a, b, w, pad.IsPlated(), false)
		}
		if pad.Attr != board.PadNPTH && pad.Net > 0 {
			j.netlist.Add(PadPoint(pad, net.Index))
		}
	}

	for _, d := range fp.Graphics {
		j.drawing(d, true)
	}
}

func (j *job) track(t board.Track) {
	l, ok := j.layer(t.Layer)
	if !ok {
		j.skip("track on "+t.Layer.Name(), errLayerNotExported)
		return
	}
	net := j.eda.Net(t.Net, j.b.NetName(t.Net))
	sn, ok := j.traces[net.Index]
	if !ok {
		sn, _ = net.AddSubnet(SubnetTrace)
		j.traces[net.Index] = sn
	}
	j.copperFIDs(sn, l, []int{l.Features.AddTrack(t)})
}

func (j *job) via(v board.Via) {
	net := j.eda.Net(v.Net, j.b.NetName(v.Net))
	sn, _ := net.AddSubnet(SubnetVia)
	for _, id := range v.Layers(j.b.CopperSet()).Layers() {
		l, ok := j.layer(id)
		if !ok {
			continue
		}
		sym := l.Features.Symbols.Round(v.Diameter)
		f := l.Features.AddPad(v.Pos, sym, 0, false, l.Features.Attrs.Option(AttrPadUsage, PadUsageVia))
		j.copperFIDs(sn, l, []int{f})
	}
	j.drill(sn, v.Top, v.Bottom, v.Pos, v.Pos, v.Drill, true, true)
	if v.Net > 0 {
		j.netlist.Add(ViaPoint(v, net.Index))
	}
}

func (j *job) zone(i int, z board.Zone) {
	if z.Keepout {
		return
	}
	var sn *Subnet
	for _, id := range z.Layers.Copper().Layers() {
		fills := z.Fills[id]
		if len(fills) == 0 {
			continue
		}
		l, ok := j.layer(id)
		if !ok {
			continue
		}
		if sn == nil {
			net := j.eda.Net(z.Net, j.b.NetName(z.Net))
			sn, _ = net.AddSubnet(SubnetPlane)
		}
		var feats []int
		for _, p := range fills {
			if len(p.Outline.Edges) < 2 {
				j.skip(fmt.Sprintf("zone %d %q", i, z.Name), geom.ErrDegenerate)
				continue
			}
			feats = append(feats, l.Features.AddSurface(p))
		}
		j.copperFIDs(sn, l, feats)
	}
}

// drawing adds a graphic item to its layer. Edge cuts go to the profile
// and layers that are not exported are ignored.
func (j *job) drawing(d board.Drawing, fromFootprint bool) {
	if d.Layer == board.EdgeCuts {
		return
	}
	l, ok := j.layer(d.Layer)
	if !ok {
		return
	}
	var attrs []Attr
	if l.Type == TypeSilkScreen {
		attrs = append(attrs, l.Features.Attrs.Bool(AttrNomenclature))
	}
	feats := l.Features.AddDrawing(d, attrs...)
	if d.Layer.IsCopper() && !fromFootprint {
		// board drawings on copper belong to no net
		net := j.eda.Net(0, "")
		sn, ok := j.traces[net.Index]
		if !ok {
			sn, _ = net.AddSubnet(SubnetTrace)
			j.traces[net.Index] = sn
		}
		j.copperFIDs(sn, l, feats)
	}
}

// files renders the job tree
func (j *job) files(name string, now time.Time) ([]jobFile, error) {
	var files []jobFile
	var err error
	add := func(p string, w io.WriterTo) {
		if err != nil {
			return
		}
		var buf bytes.Buffer
		if _, werr := w.WriteTo(&buf); werr != nil {
			err = fmt.Errorf("render %s: %w", p, werr)
			return
		}
		files = append(files, jobFile{Path: p, Data: buf.Bytes()})
	}
	text := func(p, s string) {
		files = append(files, jobFile{Path: p, Data: []byte(s)})
	}
	for _, d := range []string{"fonts", "symbols", "wheels", "input", "output", "user", "extension"} {
		files = append(files, jobFile{Path: d, Dir: true})
	}

	step := "steps/" + StepName
	add("matrix/matrix", j.matrix)
	text("misc/info", j.info(name, now))
	text(step+"/stephdr", j.stephdr())
	add(step+"/profile", j.profile)
	add(step+"/eda/data", j.eda)
	add(step+"/netlists/cadnet/netlist", j.netlist)

	for _, l := range j.matrix.Layers {
		dir := step + "/layers/" + l.Name
		add(dir+"/features", l.Features)
		text(dir+"/attrlist", layerAttrs(l, j.b.Stackup))
		switch {
		case l.Type == TypeDrill:
			if t, ok := j.tools[l.Name]; ok {
				add(dir+"/tools", t)
			}
		case l.Name == CompTop:
			add(dir+"/components", j.comps[board.Front])
		case l.Name == CompBottom:
			add(dir+"/components", j.comps[board.Back])
		}
	}
	return files, err
}

func (j *job) info(name string, now time.Time) string {
	stamp := now.Format("20060102.150405")
	var b strings.Builder
	fmt.Fprintf(&b, "JOB_NAME=%s\n", name)
	b.WriteString("ODB_VERSION_MAJOR=8\n")
	b.WriteString("ODB_VERSION_MINOR=1\n")
	fmt.Fprintf(&b, "ODB_SOURCE=%s\n", version.Generator())
	fmt.Fprintf(&b, "CREATION_DATE=%s\n", stamp)
	fmt.Fprintf(&b, "SAVE_DATE=%s\n", stamp)
	fmt.Fprintf(&b, "SAVE_APP=%s\n", version.Generator())
	b.WriteString("SAVE_USER=\n")
	fmt.Fprintf(&b, "UNITS=%s\n", j.f.Units)
	fmt.Fprintf(&b, "MAX_UID=%d\n", j.stats.Features)
	return b.String()
}

// stephdr puts the datum on the board's auxiliary origin
func (j *job) stephdr() string {
	var b strings.Builder
	fmt.Fprintf(&b, "UNITS=%s\n", j.f.Units)
	fmt.Fprintf(&b, "X_DATUM=%s\n", j.f.X(j.b.AuxOrigin.X))
	fmt.Fprintf(&b, "Y_DATUM=%s\n", j.f.Y(j.b.AuxOrigin.Y))
	b.WriteString("X_ORIGIN=0\nY_ORIGIN=0\n")
	b.WriteString("TOP_ACTIVE=0\nBOTTOM_ACTIVE=0\nRIGHT_ACTIVE=0\nLEFT_ACTIVE=0\n")
	b.WriteString("AFFECTING_BOM=\nAFFECTING_BOM_CHANGED=0\n")
	return b.String()
}
