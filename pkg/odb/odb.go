// Package odb writes a board as an ODB++ job.
//
// The job is an ASCII directory tree: a layer matrix, one features file per
// layer, the eda data with nets and packages, component placements, a drill
// tool table per drill span, the board profile and an IPC-D-356 style
// netlist. It can be written as a plain directory or packed as a .tgz or
// .zip archive.
//
// Everything is built from the same board model as the 3D export. Board
// coordinates are converted to the job units with the Y axis flipped so the
// job is seen from the top with Y pointing up.
package odb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoOutline is returned when the board has no closed outline to use
	// as the step profile
	ErrNoOutline = errors.New("board has no outline")
	// ErrPrecision reports a precision outside MinPrecision..MaxPrecision
	ErrPrecision = errors.New("precision out of range")
)

// Precision bounds, decimal digits of job coordinates
const (
	MinPrecision     = 2
	MaxPrecision     = 7
	DefaultPrecision = 4
)

// Units is the unit system of the job files
type Units int

const (
	UnitsMM Units = iota
	UnitsInch
)

func (u Units) String() string {
	if u == UnitsInch {
		return "INCH"
	}
	return "MM"
}

// ParseUnits reads "mm", "inch" or "in"
func ParseUnits(s string) (Units, error) {
	switch strings.ToLower(s) {
	case "mm", "":
		return UnitsMM, nil
	case "inch", "in":
		return UnitsInch, nil
	}
	return UnitsMM, fmt.Errorf("unknown odb units %q", s)
}

// Compression selects how the job is packaged
type Compression int

const (
	CompressNone Compression = iota
	CompressTGZ
	CompressZIP
)

func (c Compression) String() string {
	switch c {
	case CompressTGZ:
		return "tgz"
	case CompressZIP:
		return "zip"
	}
	return "none"
}

// ParseCompression reads "none", "tgz" or "zip"
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "none", "dir", "":
		return CompressNone, nil
	case "tgz", "tar.gz", "gz":
		return CompressTGZ, nil
	case "zip":
		return CompressZIP, nil
	}
	return CompressNone, fmt.Errorf("unknown odb compression %q", s)
}

// Config holds the options of an ODB++ export
type Config struct {
	Units Units
	// Precision is the number of decimals of coordinates
	Precision int
	Compress  Compression
	// JobName overrides the job name, which defaults to the board name
	JobName string
}

// DefaultConfig returns millimetres with four decimals, unpacked
func DefaultConfig() Config {
	return Config{Units: UnitsMM, Precision: DefaultPrecision}
}

// Validate checks the option ranges
func (c Config) Validate() error {
	if c.Precision < MinPrecision || c.Precision > MaxPrecision {
		return fmt.Errorf("%w: %d not in %d..%d", ErrPrecision, c.Precision, MinPrecision, MaxPrecision)
	}
	return nil
}
