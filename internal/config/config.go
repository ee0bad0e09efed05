// Package config loads the otx settings: built-in defaults, an optional
// otx.toml / otx.yaml / otx.json file, OTX_* environment variables and
// command line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/OpenTraceLab/OpenTraceExport/internal/logging"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/brep/prism"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/odb"
	"github.com/OpenTraceLab/OpenTraceExport/pkg/pcb3d"
)

// Setting keys
const (
	StepMinDistance        = "step.min_distance"
	StepFuseShapes         = "step.fuse_shapes"
	StepPushBoardBody      = "step.push_board_body"
	StepSubstituteModels   = "step.substitute_models"
	StepSimplifyShapes     = "step.simplify_shapes"
	StepBoardOnly          = "step.board_only"
	StepIncludeTracks      = "step.include_tracks"
	StepIncludeZones       = "step.include_zones"
	StepIncludePads        = "step.include_pads"
	StepIncludeInnerCopper = "step.include_inner_copper"
	StepIncludeSilkscreen  = "step.include_silkscreen"
	StepIncludeSoldermask  = "step.include_soldermask"
	StepExcludeDNP         = "step.exclude_dnp"
	StepExcludeUnspecified = "step.exclude_unspecified"
	StepComponentFilter    = "step.component_filter"
	StepOrigin             = "step.origin"
	StepOriginX            = "step.origin_x"
	StepOriginY            = "step.origin_y"
	StepBoardColor         = "step.board_color"
	StepCopperColor        = "step.copper_color"
	StepModelAliases       = "step.model_aliases"
	StepAuthor             = "step.author"
	StepOrganization       = "step.organization"

	KernelChordError     = "kernel.chord_error"
	KernelMinArcSegments = "kernel.min_arc_segments"

	ODBUnits     = "odb.units"
	ODBPrecision = "odb.precision"
	ODBCompress  = "odb.compress"
	ODBJobName   = "odb.job_name"

	LogLevel       = "log.level"
	LogFormat      = "log.format"
	LogOutput      = "log.output"
	LogDevelopment = "log.development"

	MetricsTextfile = "metrics.textfile"
)

// EnvPrefix prefixes environment overrides, e.g. OTX_ODB_UNITS
const EnvPrefix = "OTX"

// New returns a viper instance with every default set and the
// environment bound
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default of every key and the config file
// search path
func SetDefaults(v *viper.Viper) {
	v.SetConfigName("otx")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/otx")

	d := pcb3d.DefaultConfig()
	v.SetDefault(StepMinDistance, d.MinDistance)
	v.SetDefault(StepFuseShapes, d.FuseShapes)
	v.SetDefault(StepPushBoardBody, d.PushBoardBody)
	v.SetDefault(StepSubstituteModels, d.SubstituteModels)
	v.SetDefault(StepSimplifyShapes, d.SimplifyShapes)
	v.SetDefault(StepBoardOnly, d.BoardOnly)
	v.SetDefault(StepIncludeTracks, d.IncludeTracks)
	v.SetDefault(StepIncludeZones, d.IncludeZones)
	v.SetDefault(StepIncludePads, d.IncludePads)
	v.SetDefault(StepIncludeInnerCopper, d.IncludeInnerCopper)
	v.SetDefault(StepIncludeSilkscreen, d.IncludeSilkscreen)
	v.SetDefault(StepIncludeSoldermask, d.IncludeSoldermask)
	v.SetDefault(StepExcludeDNP, d.ExcludeDNP)
	v.SetDefault(StepExcludeUnspecified, d.ExcludeUnspecified)
	v.SetDefault(StepComponentFilter, []string{})
	v.SetDefault(StepOrigin, "absolute")
	v.SetDefault(StepOriginX, 0.0)
	v.SetDefault(StepOriginY, 0.0)
	v.SetDefault(StepBoardColor, FormatColor(d.BoardColor))
	v.SetDefault(StepCopperColor, FormatColor(d.CopperColor))
	v.SetDefault(StepModelAliases, map[string]string{})
	v.SetDefault(StepAuthor, d.Author)
	v.SetDefault(StepOrganization, d.Organization)

	v.SetDefault(KernelChordError, prism.DefaultOptions.ChordError)
	v.SetDefault(KernelMinArcSegments, prism.DefaultOptions.MinArcSegments)

	o := odb.DefaultConfig()
	v.SetDefault(ODBUnits, strings.ToLower(o.Units.String()))
	v.SetDefault(ODBPrecision, o.Precision)
	v.SetDefault(ODBCompress, o.Compress.String())
	v.SetDefault(ODBJobName, "")

	v.SetDefault(LogLevel, "info")
	v.SetDefault(LogFormat, "console")
	v.SetDefault(LogOutput, "")
	v.SetDefault(LogDevelopment, false)

	v.SetDefault(MetricsTextfile, "")
}

// Read loads file, or searches the default locations when file is empty.
// A missing file in the search path is not an error.
func Read(v *viper.Viper, file string) error {
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Export returns the 3D export options
func Export(v *viper.Viper) (pcb3d.Config, error) {
	c := pcb3d.DefaultConfig()
	c.MinDistance = v.GetFloat64(StepMinDistance)
	if c.MinDistance <= 0 {
		return c, fmt.Errorf("%s must be positive, got %g", StepMinDistance, c.MinDistance)
	}
	c.FuseShapes = v.GetBool(StepFuseShapes)
	c.PushBoardBody = v.GetBool(StepPushBoardBody)
	c.SubstituteModels = v.GetBool(StepSubstituteModels)
	c.SimplifyShapes = v.GetBool(StepSimplifyShapes)
	c.BoardOnly = v.GetBool(StepBoardOnly)
	c.IncludeTracks = v.GetBool(StepIncludeTracks)
	c.IncludeZones = v.GetBool(StepIncludeZones)
	c.IncludePads = v.GetBool(StepIncludePads)
	c.IncludeInnerCopper = v.GetBool(StepIncludeInnerCopper)
	c.IncludeSilkscreen = v.GetBool(StepIncludeSilkscreen)
	c.IncludeSoldermask = v.GetBool(StepIncludeSoldermask)
	c.ExcludeDNP = v.GetBool(StepExcludeDNP)
	c.ExcludeUnspecified = v.GetBool(StepExcludeUnspecified)
	if f := v.GetStringSlice(StepComponentFilter); len(f) > 0 {
		c.ComponentFilter = f
	}

	origin, err := pcb3d.ParseOrigin(v.GetString(StepOrigin))
	if err != nil {
		return c, err
	}
	c.Origin = origin
	c.UserOrigin = [2]float64{v.GetFloat64(StepOriginX), v.GetFloat64(StepOriginY)}

	if c.BoardColor, err = ParseColor(v.GetString(StepBoardColor)); err != nil {
		return c, fmt.Errorf("%s: %w", StepBoardColor, err)
	}
	if c.CopperColor, err = ParseColor(v.GetString(StepCopperColor)); err != nil {
		return c, fmt.Errorf("%s: %w", StepCopperColor, err)
	}
	if a := v.GetStringMapString(StepModelAliases); len(a) > 0 {
		c.ModelAliases = a
	}
	c.Author = v.GetString(StepAuthor)
	c.Organization = v.GetString(StepOrganization)
	return c, nil
}

// Kernel returns the options of the reference kernel
func Kernel(v *viper.Viper) prism.Options {
	return prism.Options{
		ChordError:     v.GetFloat64(KernelChordError),
		MinArcSegments: v.GetInt(KernelMinArcSegments),
		Tolerance:      prism.DefaultOptions.Tolerance,
	}
}

// ODB returns the ODB++ export options
func ODB(v *viper.Viper) (odb.Config, error) {
	c := odb.DefaultConfig()
	units, err := odb.ParseUnits(v.GetString(ODBUnits))
	if err != nil {
		return c, err
	}
	compress, err := odb.ParseCompression(v.GetString(ODBCompress))
	if err != nil {
		return c, err
	}
	c.Units, c.Compress = units, compress
	c.Precision = v.GetInt(ODBPrecision)
	c.JobName = v.GetString(ODBJobName)
	return c, c.Validate()
}

// Logging returns the logger settings
func Logging(v *viper.Viper) logging.Config {
	return logging.Config{
		Level:       v.GetString(LogLevel),
		Format:      v.GetString(LogFormat),
		OutputPath:  v.GetString(LogOutput),
		Development: v.GetBool(LogDevelopment),
	}
}

// ParseColor reads "#rrggbb" or three comma separated components in [0, 1]
func ParseColor(s string) (brep.Color, error) {
	s = strings.TrimSpace(s)
	if hex, ok := strings.CutPrefix(s, "#"); ok {
		if len(hex) != 6 {
			return brep.Color{}, fmt.Errorf("bad colour %q", s)
		}
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return brep.Color{}, fmt.Errorf("bad colour %q: %w", s, err)
		}
		return brep.Color{
			R: float64(n>>16&0xff) / 255,
			G: float64(n>>8&0xff) / 255,
			B: float64(n&0xff) / 255,
		}, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return brep.Color{}, fmt.Errorf("bad colour %q: want r,g,b", s)
	}
	var rgb [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return brep.Color{}, fmt.Errorf("bad colour %q: %w", s, err)
		}
		if f < 0 || f > 1 {
			return brep.Color{}, fmt.Errorf("bad colour %q: %g out of [0, 1]", s, f)
		}
		rgb[i] = f
	}
	return brep.Color{R: rgb[0], G: rgb[1], B: rgb[2]}, nil
}

// FormatColor is the inverse of ParseColor for the r,g,b form
func FormatColor(c brep.Color) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return f(c.R) + "," + f(c.G) + "," + f(c.B)
}
