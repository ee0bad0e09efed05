package pcb3d

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceExport/internal/logging"
	"github.com/OpenTraceLab/OpenTraceExport/internal/metrics"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/board"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// Bucket is a typed list of shapes waiting for the assembly
type Bucket int

const (
	BucketOutline Bucket = iota
	BucketCopper
	BucketTracks
	BucketZones
	BucketPads
	BucketSilk
	BucketMask
	bucketCount
)

// bucket names, also used as part name suffixes
var bucketNames = [bucketCount]string{"PCB", "copper", "tracks", "zones", "pads", "silkscreen", "soldermask"}

func (b Bucket) String() string {
	if b < 0 || b >= bucketCount {
		return "unknown"
	}
	return bucketNames[b]
}

// Item is a shape owned by a bucket. Source names the board item it came
// from, for diagnostics.
type Item struct {
	Shape  brep.Shape
	Source string
	Color  brep.Color
}

// TestPoint anchors a pad surface for XAO face grouping: Point lies on the
// pad's outer face and Shape is that face.
type TestPoint struct {
	Point mgl64.Vec3
	Shape brep.Shape
}

// Stats counts what a session produced
type Stats struct {
	Shapes        [bucketCount]int
	BoardCutouts  int
	CopperCutouts int
	Failures      int
	Components    int
	Models        int
}

// Session holds the state of one export run: the shape buckets, the
// cutouts, the model cache and the output document.
type Session struct {
	cfg     Config
	k       brep.Kernel
	log     *zap.Logger
	metrics *metrics.Metrics

	pcbName string
	origin  geom.Point
	enabled board.LayerSet
	plating int64

	z *ZPlacer
	b *Builder

	buckets       [bucketCount][]Item
	boardCutouts  []brep.Shape
	copperCutouts []brep.Shape
	padPoints     map[string]TestPoint

	models     *ModelResolver
	doc        *brep.Document
	sourceFile string

	stats Stats
}

// NewSession prepares an export of a board named pcbName. log and m may be
// nil.
func NewSession(k brep.Kernel, cfg Config, pcbName string, log *zap.Logger, m *metrics.Metrics) *Session {
	log = logging.OrNop(log)
	s := &Session{
		cfg:       cfg,
		k:         k,
		log:       log.With(zap.String("pcb", pcbName)),
		metrics:   m,
		pcbName:   pcbName,
		enabled:   board.AllCopper,
		plating:   geom.FromMM(0.025),
		z:         NewZPlacer(board.DefaultStackup(2, 0)),
		padPoints: map[string]TestPoint{},
		doc:       brep.NewDocument(pcbName),
	}
	s.b = NewBuilder(k, cfg, geom.Point{})
	s.models = NewModelResolver(k, s.doc, log, m)
	s.models.Substitute = cfg.SubstituteModels
	s.models.Aliases = cfg.ModelAliases
	return s
}

// Document returns the output document
func (s *Session) Document() *brep.Document { return s.doc }

// Models returns the session's model resolver
func (s *Session) Models() *ModelResolver { return s.models }

// Stats returns the counters of the run so far
func (s *Session) Stats() Stats { return s.stats }

// Items returns the shapes filed in bucket b
func (s *Session) Items(b Bucket) []Item { return s.buckets[b] }

// PadPoints returns the recorded pad test points
func (s *Session) PadPoints() map[string]TestPoint { return s.padPoints }

// SetStackup replaces the stackup used for layer heights
func (s *Session) SetStackup(st board.Stackup) { s.z = NewZPlacer(st) }

// SetOrigin moves the board point mapped to the model origin
func (s *Session) SetOrigin(o geom.Point) {
	s.origin = o
	s.b = NewBuilder(s.k, s.cfg, o)
}

// SetEnabledLayers limits which copper layers are exported
func (s *Session) SetEnabledLayers(l board.LayerSet) { s.enabled = l }

// SetPlatingThickness sets the copper thickness of plated holes
func (s *Session) SetPlatingThickness(t int64) {
	if t > 0 {
		s.plating = t
	}
}

// ZPlacer returns the layer height resolver
func (s *Session) ZPlacer() *ZPlacer { return s.z }

func (s *Session) push(b Bucket, it Item) {
	s.buckets[b] = append(s.buckets[b], it)
	s.stats.Shapes[b]++
	s.metrics.Shape(b.String())
}

func (s *Session) fail(stage, source string, err error, fields ...zap.Field) {
	s.stats.Failures++
	s.metrics.Failure(stage)
	s.log.Warn(stage+" failed", append([]zap.Field{zap.String("item", source), zap.Error(err)}, fields...)...)
}

// layerWanted applies the enabled mask and the inner copper option
func (s *Session) layerWanted(l board.LayerID) bool {
	if !l.IsCopper() {
		return false
	}
	if !s.enabled.Has(l) {
		return false
	}
	if l != board.FCu && l != board.BCu && !s.cfg.IncludeInnerCopper {
		return false
	}
	return true
}

// toModel converts a board position to model millimetres at height z
func (s *Session) toModel(p geom.Point, z float64) mgl64.Vec3 {
	d := p.Sub(s.origin)
	return mgl64.Vec3{geom.ToMM(d.X), -geom.ToMM(d.Y), z}
}

// fuse merges shapes into one. When the kernel reports errors the shapes
// are kept apart, and the intended and actual solid counts are logged.
func (s *Session) fuse(source string, shapes []brep.Shape) (out []brep.Shape) {
	if len(shapes) < 2 {
		return shapes
	}

	var res brep.Shape
	var rep brep.Report
	func() {
		defer func() {
			if r := recover(); r != nil {
				rep.Errorf("%v: %v", ErrKernelPanic, r)
			}
		}()
		res, rep = s.k.Fuse(shapes, brep.BooleanOptions{Parallel: true, Fuzzy: s.cfg.MinDistance / 10})
	}()
	s.metrics.Boolean("fuse", rep.OK())

	if len(rep.Errors) > 0 || res == nil {
		s.stats.Failures++
		s.metrics.Failure("fuse")
		s.log.Warn("fuse failed, keeping shapes unfused",
			zap.String("item", source),
			zap.Int("intended", 1),
			zap.Int("actual", len(shapes)),
			zap.Strings("errors", rep.Errors),
			zap.Strings("warnings", rep.Warnings))
		return shapes
	}
	if len(rep.Warnings) > 0 {
		s.log.Debug("fuse warnings", zap.String("item", source), zap.Strings("warnings", rep.Warnings))
	}
	return []brep.Shape{res}
}

// AddPadShape builds the copper of a pad on every enabled layer it is
// flashed on. Plated through pads on both outer layers also get a barrel
// spanning the board. Sub-shapes and layers of the pad are fused into one
// body when the kernel manages to.
func (s *Session) AddPadShape(pad *board.Pad, isVia bool) bool {
	source := padSource(pad)
	ok := true
	var shapes []brep.Shape

	for _, l := range pad.Layers.Copper().Layers() {
		if !s.layerWanted(l) {
			continue
		}
		z, t, err := s.z.LayerZPlacement(l)
		if err != nil {
			s.fail("pad", source, err, zap.Stringer("layer", l))
			ok = false
			continue
		}
		if !isVia {
			switch l {
			case board.FCu:
				t += PadSurfaceOffset
			case board.BCu:
				t -= PadSurfaceOffset
			}
		}

		sub := pad.SubShapes()
		for i, poly := range sub {
			var sh brep.Shape
			var err error
			if i == 0 && pad.IsRound() {
				sh, err = s.b.Cylinder(pad.ShapePos(), pad.Size.X/2, t, z)
			} else {
				var warn []error
				sh, warn, err = s.b.PolygonToSolid(poly, t, z, s.cfg.SimplifyShapes)
				for _, w := range warn {
					s.log.Debug("pad contour skipped", zap.String("item", source), zap.Error(w))
				}
			}
			if err != nil {
				s.fail("pad", source, err, zap.Stringer("layer", l))
				ok = false
				continue
			}
			shapes = append(shapes, sh)
		}

		if !isVia && (l == board.FCu || l == board.BCu) && len(sub) > 0 {
			s.addTestPoint(pad, l, sub[0], z+t)
		}
	}

	if pad.Attr == board.PadPTH && pad.HasHole() && pad.OnBothOuterLayers() {
		if barrel, err := s.platingBarrel(pad); err != nil {
			s.fail("plating", source, err)
			ok = false
		} else {
			shapes = append(shapes, barrel)
		}
	}

	for _, sh := range s.fuse(source, shapes) {
		s.push(BucketPads, Item{Shape: sh, Source: source, Color: s.cfg.PadColor})
	}
	return ok
}

// platingBarrel builds the copper barrel of a plated hole: a solid at the drill
// size from the bottom to the top of the outer copper. The copper-sized
// cutout later hollows it.
func (s *Session) platingBarrel(pad *board.Pad) (brep.Shape, error) {
	bottom, top, err := s.z.CopperSpan(board.FCu, board.BCu)
	if err != nil {
		return nil, err
	}
	a, b, _ := pad.HoleSegment()
	width := min(pad.Drill.X, pad.Drill.Y)
	return s.b.ThickSegment(a, b, width, top-bottom, bottom)
}

func (s *Session) addTestPoint(pad *board.Pad, l board.LayerID, poly geom.Polygon, z float64) {
	face, _, err := s.b.PolygonToSolid(geom.Polygon{Outline: poly.Outline}, 0, z, false)
	if err != nil {
		return
	}
	side := "F"
	if l == board.BCu {
		side = "B"
	}
	name := fmt.Sprintf("Pad_%s_%s_%s", side, pad.Footprint, pad.Number)
	if pad.NetName != "" {
		name += "_" + pad.NetName
	}
	s.padPoints[name] = TestPoint{Point: s.toModel(pad.ShapePos(), z), Shape: face}
}

// AddPadHole files the cutouts of a drilled pad
func (s *Session) AddPadHole(pad *board.Pad) bool {
	if !pad.HasHole() {
		return true
	}
	a, b, width := pad.HoleSegment()
	plating := int64(0)
	if pad.IsPlated() {
		plating = s.plating
	}
	if err := s.AddHole(a, b, width, plating, board.FCu, board.BCu); err != nil {
		s.fail("hole", padSource(pad), err)
		return false
	}
	return true
}

// AddHole files two cutouts for a hole between copper layers top and
// bottom: one at the copper drill size, drill minus twice the plating, for
// the copper bodies, and one at the drill size for the board body. Both
// stick out of the copper by HoleMargin.
func (s *Session) AddHole(a, b geom.Point, width, plating int64, top, bottom board.LayerID) error {
	lo, hi, err := s.z.CopperSpan(top, bottom)
	if err != nil {
		return err
	}
	if top == board.FCu {
		hi += PadSurfaceOffset
	}
	if bottom == board.BCu {
		lo -= PadSurfaceOffset
	}
	lo -= HoleMargin
	hi += HoleMargin

	copperDrill := width - 2*plating
	if copperDrill > 0 {
		cu, err := s.b.ThickSegment(a, b, copperDrill, hi-lo, lo)
		if err != nil {
			return fmt.Errorf("copper cutout: %w", err)
		}
		s.copperCutouts = append(s.copperCutouts, cu)
		s.stats.CopperCutouts++
	}

	body, err := s.b.ThickSegment(a, b, width, hi-lo, lo)
	if err != nil {
		return fmt.Errorf("board cutout: %w", err)
	}
	s.boardCutouts = append(s.boardCutouts, body)
	s.stats.BoardCutouts++
	return nil
}

// AddViaShape builds a via as a round pad on its copper span plus its
// hole
func (s *Session) AddViaShape(v board.Via, copper board.LayerSet) bool {
	span := v.Layers(copper)
	pad := &board.Pad{
		Number:    "via",
		Footprint: fmt.Sprintf("via@%s", v.Pos),
		Attr:      board.PadPTH,
		Shape:     board.PadCircle,
		Pos:       v.Pos,
		Size:      geom.Point{X: v.Diameter, Y: v.Diameter},
		Layers:    span,
		Net:       v.Net,
		Drill:     geom.Point{X: v.Drill, Y: v.Drill},
	}
	ok := s.AddPadShape(pad, true)

	if err := s.AddHole(v.Pos, v.Pos, v.Drill, s.plating, v.Top, v.Bottom); err != nil {
		s.fail("hole", pad.Footprint, err)
		ok = false
	}
	return ok
}

// AddTrack builds a straight or arc track on its layer
func (s *Session) AddTrack(t board.Track) bool {
	if !s.layerWanted(t.Layer) {
		return true
	}
	source := fmt.Sprintf("track %s-%s on %s", t.Start, t.End, t.Layer)
	z, th, err := s.z.LayerZPlacement(t.Layer)
	if err != nil {
		s.fail("track", source, err)
		return false
	}

	var sh brep.Shape
	if t.Kind == board.ArcTrack {
		sh, err = s.b.ThickArc(t.Start, t.Mid, t.End, t.Width, th, z)
	} else {
		sh, err = s.b.ThickSegment(t.Start, t.End, t.Width, th, z)
	}
	if err != nil {
		s.fail("track", source, err)
		return false
	}
	s.push(BucketTracks, Item{Shape: sh, Source: source, Color: s.cfg.CopperColor})
	return true
}

// AddZone builds the filled polygons of a zone on every enabled layer
func (s *Session) AddZone(zn board.Zone) bool {
	if zn.Keepout {
		return true
	}
	ok := true
	layers := make([]board.LayerID, 0, len(zn.Fills))
	for l := range zn.Fills {
		layers = append(layers, l)
	}
	sort.Slice(layers, func(i, j int) bool { return layers[i] < layers[j] })

	for _, l := range layers {
		if !s.layerWanted(l) {
			continue
		}
		source := fmt.Sprintf("zone %q on %s", zn.Name, l)
		z, t, err := s.z.LayerZPlacement(l)
		if err != nil {
			s.fail("zone", source, err)
			ok = false
			continue
		}
		shapes, errs := s.b.PolySetToSolids(zn.Fills[l], t, z, s.cfg.SimplifyShapes)
		for _, e := range errs {
			s.fail("zone", source, e)
			ok = false
		}
		for _, sh := range shapes {
			s.push(BucketZones, Item{Shape: sh, Source: source, Color: s.cfg.CopperColor})
		}
	}
	return ok
}

// AddFlatLayer files the polygons of a silkscreen or soldermask layer as
// zero-thickness faces
func (s *Session) AddFlatLayer(l board.LayerID, ps geom.PolySet) bool {
	bucket := BucketMask
	color := s.cfg.MaskColor
	if l == board.FSilkS || l == board.BSilkS {
		bucket = BucketSilk
		color = s.cfg.SilkColor
	}
	z, t, err := s.z.LayerZPlacement(l)
	if err != nil {
		s.fail(bucket.String(), l.Name(), err)
		return false
	}
	shapes, errs := s.b.PolySetToSolids(ps, t, z, false)
	for _, e := range errs {
		s.fail(bucket.String(), l.Name(), e)
	}
	for _, sh := range shapes {
		s.push(bucket, Item{Shape: sh, Source: l.Name(), Color: color})
	}
	return len(errs) == 0
}

// AddBoardOutline builds the board body from the outline polygons. A
// stackup whose body does not start at zero is fatal.
func (s *Session) AddBoardOutline(outline geom.PolySet) error {
	z, t, err := s.z.BoardBodyZPlacement()
	if err != nil {
		return err
	}
	for i, poly := range outline {
		source := fmt.Sprintf("outline %d", i)
		sh, warn, err := s.b.PolygonToSolid(poly, t, z, s.cfg.SimplifyShapes)
		for _, w := range warn {
			s.fail("outline", source, w)
		}
		if err != nil {
			s.fail("outline", source, err)
			continue
		}
		s.push(BucketOutline, Item{Shape: sh, Source: source, Color: s.cfg.BoardColor})
	}
	return nil
}

// IsBoardOutlineValid reports whether at least one board body was built
func (s *Session) IsBoardOutlineValid() bool {
	return len(s.buckets[BucketOutline]) > 0
}

// CreatePCB finishes the board: holes are subtracted, copper is fused if
// asked for, and every bucket is placed in the output document.
func (s *Session) CreatePCB(pushBoardBody bool) error {
	if !s.IsBoardOutlineValid() {
		return ErrNoBoardOutline
	}
	defer s.metrics.Stage("create_pcb")()

	s.buckets[BucketOutline] = s.subtract("board", s.buckets[BucketOutline], s.boardCutouts)

	if s.cfg.FuseShapes {
		var all []brep.Shape
		for _, b := range []Bucket{BucketTracks, BucketZones, BucketPads} {
			for _, it := range s.buckets[b] {
				all = append(all, it.Shape)
			}
			s.buckets[b] = nil
		}
		for _, sh := range s.fuse("copper", all) {
			s.push(BucketCopper, Item{Shape: sh, Source: "copper", Color: s.cfg.CopperColor})
		}
	}

	for _, b := range []Bucket{BucketCopper, BucketTracks, BucketZones, BucketPads} {
		s.buckets[b] = s.subtract(b.String(), s.buckets[b], s.copperCutouts)
	}

	order := []Bucket{BucketCopper, BucketTracks, BucketZones, BucketPads, BucketSilk, BucketMask}
	for _, b := range order {
		s.pushToAssembly(b)
	}
	if pushBoardBody {
		s.pushToAssembly(BucketOutline)
	}
	return nil
}

func (s *Session) subtract(what string, targets []Item, cutouts []brep.Shape) []Item {
	if len(targets) == 0 || len(cutouts) == 0 {
		return targets
	}
	res := SubtractHoles(s.k, what, targets, cutouts, s.log)
	for i := 0; i < res.Cuts-res.Degraded; i++ {
		s.metrics.Boolean("cut", true)
	}
	for i := 0; i < res.Degraded; i++ {
		s.metrics.Boolean("cut", false)
		s.metrics.Failure("holes")
		s.stats.Failures++
	}
	return res.Items
}

// pushToAssembly places every item of a bucket at the document root.
// Items are named <pcb>_<bucket>, numbered from 1 when there are several.
func (s *Session) pushToAssembly(b Bucket) []*brep.Label {
	items := s.buckets[b]
	out := make([]*brep.Label, 0, len(items))
	for i, it := range items {
		name := fmt.Sprintf("%s_%s", s.pcbName, b)
		if len(items) > 1 {
			name = fmt.Sprintf("%s_%s_%d", s.pcbName, b, i+1)
		}
		c := it.Color
		out = append(out, s.doc.AddShape(name, it.Shape, &c))
	}
	return out
}

// AddComponent places the models of a footprint. Missing or unreadable
// models are logged and skipped.
func (s *Session) AddComponent(fp *board.Footprint) int {
	if !s.cfg.wantsComponent(fp.Reference, fp.Attr.DNP, fp.Attr.Unspecified()) {
		return 0
	}
	top, bottom, err := boardTopBottom(s.z)
	if err != nil {
		s.fail("component", fp.Reference, err)
		return 0
	}

	placed := 0
	shown := 0
	for _, m := range fp.Models {
		if m.Show {
			shown++
		}
	}
	for _, m := range fp.Models {
		if !m.Show || m.Path == "" {
			continue
		}
		scale := m.Scale
		if scale == (mgl64.Vec3{}) {
			scale = mgl64.Vec3{1, 1, 1}
		}
		label, err := s.models.Resolve(m.Path, scale)
		if err != nil {
			s.fail("model", fp.Reference, err, zap.String("path", m.Path))
			continue
		}

		pos := fp.Pos.Sub(s.origin)
		loc := ModelLocation(fp.Side == board.Back,
			mgl64.Vec2{geom.ToMM(pos.X), geom.ToMM(pos.Y)},
			rad(fp.Angle),
			m.Offset,
			mgl64.Vec3{rad(m.Rotation.X()), rad(m.Rotation.Y()), rad(m.Rotation.Z())},
			top, bottom)

		name := fp.Reference
		if shown > 1 {
			name = fmt.Sprintf("%s_%d", fp.Reference, placed+1)
		}
		s.doc.Root.AddComponent(name, label, loc)
		placed++
		s.stats.Models++
	}
	if placed > 0 {
		s.stats.Components++
	}
	return placed
}

func padSource(p *board.Pad) string {
	return fmt.Sprintf("pad %s-%s", p.Footprint, p.Number)
}

// Build runs the whole shape pipeline for b: outline, pads, holes, vias,
// tracks, zones, flat layers, the assembly and finally the component
// models.
func (s *Session) Build(b *board.Board) error {
	if b.Name != "" {
		s.pcbName = b.Name
		s.doc.Name = b.Name
		s.doc.Root.Name = b.Name
	}
	s.sourceFile = b.FileName
	if len(b.Stackup.Items) > 0 {
		s.SetStackup(b.Stackup)
	} else {
		s.SetStackup(board.DefaultStackup(b.CopperCount, b.Thickness))
	}
	s.SetEnabledLayers(b.CopperSet())
	s.SetPlatingThickness(b.HolePlatingThickness)
	s.SetOrigin(s.resolveOrigin(b))
	if b.FileName != "" {
		s.models.BaseDir = filepath.Dir(b.FileName)
	}

	done := s.metrics.Stage("build")
	if err := s.AddBoardOutline(b.Outline); err != nil {
		done()
		return err
	}

	copper := b.CopperSet()
	for _, fp := range b.Footprints {
		for _, p := range fp.Pads {
			if s.cfg.IncludePads {
				s.AddPadShape(p, false)
			}
			s.AddPadHole(p)
		}
	}
	for _, v := range b.Vias {
		if s.cfg.IncludePads {
			s.AddViaShape(v, copper)
		} else if err := s.AddHole(v.Pos, v.Pos, v.Drill, s.plating, v.Top, v.Bottom); err != nil {
			s.fail("hole", "via", err)
		}
	}
	if s.cfg.IncludeTracks {
		for _, t := range b.Tracks {
			s.AddTrack(t)
		}
	}
	if s.cfg.IncludeZones {
		for _, zn := range b.Zones {
			s.AddZone(zn)
		}
	}
	if s.cfg.IncludeSilkscreen {
		for _, l := range []board.LayerID{board.FSilkS, board.BSilkS} {
			if ps := SilkscreenPolygons(b, l); len(ps) > 0 {
				s.AddFlatLayer(l, ps)
			}
		}
	}
	if s.cfg.IncludeSoldermask {
		for _, l := range []board.LayerID{board.FMask, board.BMask} {
			if ps := SoldermaskPolygons(b, l); len(ps) > 0 {
				s.AddFlatLayer(l, ps)
			}
		}
	}
	done()

	if err := s.CreatePCB(s.cfg.PushBoardBody); err != nil {
		return err
	}

	done = s.metrics.Stage("models")
	for _, fp := range b.Footprints {
		s.AddComponent(fp)
	}
	done()

	s.log.Info("board converted",
		zap.Int("bodies", s.stats.Shapes[BucketOutline]),
		zap.Int("pads", s.stats.Shapes[BucketPads]),
		zap.Int("tracks", s.stats.Shapes[BucketTracks]),
		zap.Int("zones", s.stats.Shapes[BucketZones]),
		zap.Int("components", s.stats.Components),
		zap.Int("failures", s.stats.Failures))
	return nil
}

func (s *Session) resolveOrigin(b *board.Board) geom.Point {
	switch s.cfg.Origin {
	case OriginBoardCenter:
		return b.Bounds().Center()
	case OriginAux:
		return b.AuxOrigin
	case OriginGrid:
		return b.GridOrigin
	case OriginUser:
		return geom.PtMM(s.cfg.UserOrigin[0], s.cfg.UserOrigin[1])
	}
	return geom.Point{}
}

// boardTopBottom returns the model heights of the board faces
func boardTopBottom(z *ZPlacer) (top, bottom float64, err error) {
	p, t, err := z.BoardBodyZPlacement()
	if err != nil {
		return 0, 0, err
	}
	return math.Max(p, p+t), math.Min(p, p+t), nil
}
