package config

import (
	"github.com/spf13/viper"

	"mandexing/internal/crystal"
	"mandexing/internal/detector"
	"mandexing/internal/refine"
)

// Defaults not owned by one of the core packages.
const (
	DefaultLattice         = "P"
	DefaultDegreeStep      = 1.0 / 500.0 // radians per key press
	DefaultRepopulateEvery = 5
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
)

// DefaultCell is a 1 Å cubic cell.
var DefaultCell = []float64{1, 1, 1, 90, 90, 90}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crystal.cell", DefaultCell)
	v.SetDefault("crystal.lattice", DefaultLattice)
	v.SetDefault("crystal.wavelength", crystal.DefaultWavelength)
	v.SetDefault("crystal.rlp_size", crystal.DefaultRlpHalfWidth)
	v.SetDefault("crystal.resolution", crystal.DefaultResolution)
	v.SetDefault("crystal.buffer_factor", crystal.DefaultBufferFactor)
	v.SetDefault("crystal.max_search_volume", crystal.DefaultMaxSearchVolume)

	v.SetDefault("detector.distance", detector.DefaultDistance)
	v.SetDefault("detector.beam_x", 0.0)
	v.SetDefault("detector.beam_y", 0.0)

	v.SetDefault("index.leaf_size", detector.DefaultLeafSize)
	v.SetDefault("index.max_depth", detector.DefaultMaxDepth)
	v.SetDefault("index.tolerance", detector.DefaultTolerance)

	v.SetDefault("refine.cycles", refine.DefaultCycles)
	v.SetDefault("refine.step", refine.DefaultStep)
	v.SetDefault("refine.bound", refine.DefaultBound)

	v.SetDefault("interaction.degree_step", DefaultDegreeStep)
	v.SetDefault("interaction.repopulate_every", DefaultRepopulateEvery)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.output_paths", []string{"stderr"})
}

// Default returns the configuration used when no file or environment
// override is present.
func Default() *Config {
	cfg, err := unmarshalAndValidate(newViper())
	if err != nil {
		// the built-in defaults always validate
		panic(err)
	}
	return cfg
}
