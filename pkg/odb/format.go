package odb

import (
	"math"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceExport/pkg/geom"
)

// Double2String formats v with at most digits decimals. Trailing zeros and
// a trailing point are dropped, and negative zero prints as "0" since the
// result is also used as a lookup key.
func Double2String(v float64, digits int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	s := strconv.FormatFloat(v, 'f', max(digits, 0), 64)
	if strings.IndexByte(s, '.') >= 0 {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" {
		s = "0"
	}
	return s
}

const nmPerInch = 25_400_000

// Formatter converts board units to job text
type Formatter struct {
	Units     Units
	Precision int
}

// NewFormatter returns a formatter for cfg
func NewFormatter(cfg Config) Formatter {
	return Formatter{Units: cfg.Units, Precision: cfg.Precision}
}

// Length formats a board distance in job units
func (f Formatter) Length(v int64) string {
	if f.Units == UnitsInch {
		return Double2String(float64(v)/nmPerInch, f.Precision)
	}
	return Double2String(geom.ToMM(v), f.Precision)
}

// X and Y format a board coordinate. Y is flipped.
func (f Formatter) X(v int64) string { return f.Length(v) }
func (f Formatter) Y(v int64) string { return f.Length(-v) }

// XY formats a point as "x y"
func (f Formatter) XY(p geom.Point) string {
	return f.X(p.X) + " " + f.Y(p.Y)
}

// Size formats a symbol dimension: microns in MM jobs, mils in INCH jobs.
// It keeps the same resolution as Length.
func (f Formatter) Size(v int64) string {
	digits := max(f.Precision-3, 0)
	if f.Units == UnitsInch {
		return Double2String(float64(v)/25_400, digits)
	}
	return Double2String(float64(v)/1000, digits)
}

// Angle formats a rotation in degrees, normalised to [0, 360)
func (f Formatter) Angle(deg float64) string {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	s := Double2String(deg, 3)
	if s == "360" {
		s = "0"
	}
	return s
}

// LegalEntityName maps s to the ODB++ entity name alphabet: lower case
// letters, digits and _+-. with everything else replaced by '_'.
func LegalEntityName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '+', c == '-', c == '.':
			b.WriteByte(c)
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + 'a' - 'A')
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NoNet is the name of the unconnected net
const NoNet = "$NONE$"

// LegalNetName makes a net name usable as a single token: whitespace and ';'
// become '_'. Empty names map to NoNet.
func LegalNetName(s string) string {
	if s == "" {
		return NoNet
	}
	return token(s)
}

// token replaces the separators of record fields
func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ';':
			return '_'
		}
		return r
	}, s)
}

// quote wraps a property value in single quotes as used by PRP records
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "_") + "'"
}
