// Package config defines the tunables of the indexing tools and loads them
// from an optional YAML file with MANDEX_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"math"

	"mandexing/internal/crystal"
	"mandexing/internal/logging"
	"mandexing/pkg/geometry"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// CrystalConfig holds the starting crystal model.
type CrystalConfig struct {
	// Cell is a, b, c (Å) and α, β, γ (degrees).
	Cell            []float64 `mapstructure:"cell"`
	Lattice         string    `mapstructure:"lattice"`
	Wavelength      float64   `mapstructure:"wavelength"`
	RlpSize         float64   `mapstructure:"rlp_size"`
	Resolution      float64   `mapstructure:"resolution"`
	BufferFactor    float64   `mapstructure:"buffer_factor"`
	MaxSearchVolume int       `mapstructure:"max_search_volume"`
}

// DetectorConfig holds the starting detector geometry in pixels.
type DetectorConfig struct {
	Distance float64 `mapstructure:"distance"`
	BeamX    float64 `mapstructure:"beam_x"`
	BeamY    float64 `mapstructure:"beam_y"`
}

// IndexConfig tunes the pick index.
type IndexConfig struct {
	LeafSize  int     `mapstructure:"leaf_size"`
	MaxDepth  int     `mapstructure:"max_depth"`
	Tolerance float64 `mapstructure:"tolerance"`
}

// RefineConfig tunes the orientation refiner.
type RefineConfig struct {
	Cycles int     `mapstructure:"cycles"`
	Step   float64 `mapstructure:"step"`
	Bound  float64 `mapstructure:"bound"`
}

// InteractionConfig tunes keyboard and mouse rotation.
type InteractionConfig struct {
	// DegreeStep is the key rotation step in radians.
	DegreeStep float64 `mapstructure:"degree_step"`
	// RepopulateEvery is how many key rotations pass between full
	// regenerations of the reflection list.
	RepopulateEvery int `mapstructure:"repopulate_every"`
}

// Config is the whole configuration.
type Config struct {
	Crystal     CrystalConfig     `mapstructure:"crystal"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	Index       IndexConfig       `mapstructure:"index"`
	Refine      RefineConfig      `mapstructure:"refine"`
	Interaction InteractionConfig `mapstructure:"interaction"`
	Log         logging.Config    `mapstructure:"log"`
}

// CellParams returns the configured cell as a fixed array. Validate
// guarantees six values.
func (c *Config) CellParams() geometry.CellParams {
	var p geometry.CellParams
	copy(p[:], c.Crystal.Cell)
	return p
}

// LatticeType parses the configured centring.
func (c *Config) LatticeType() (crystal.Lattice, error) {
	return crystal.ParseLattice(c.Crystal.Lattice)
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Validate checks the fully defaulted configuration and returns the first
// problem found.
func (c *Config) Validate() error {
	if len(c.Crystal.Cell) != 6 {
		return fmt.Errorf("%w: crystal.cell needs 6 values, got %d", ErrInvalidConfig, len(c.Crystal.Cell))
	}
	for i, v := range c.Crystal.Cell {
		if !positive(v) {
			return fmt.Errorf("%w: crystal.cell[%d] = %g must be positive", ErrInvalidConfig, i, v)
		}
		if i >= 3 && v >= 180 {
			return fmt.Errorf("%w: crystal.cell[%d] = %g must be below 180°", ErrInvalidConfig, i, v)
		}
	}
	if _, err := c.LatticeType(); err != nil {
		return fmt.Errorf("%w: crystal.lattice: %v", ErrInvalidConfig, err)
	}
	if !positive(c.Crystal.Wavelength) {
		return fmt.Errorf("%w: crystal.wavelength %g must be positive", ErrInvalidConfig, c.Crystal.Wavelength)
	}
	if c.Crystal.RlpSize < 0 {
		return fmt.Errorf("%w: crystal.rlp_size %g must not be negative", ErrInvalidConfig, c.Crystal.RlpSize)
	}
	if !positive(c.Crystal.Resolution) {
		return fmt.Errorf("%w: crystal.resolution %g must be positive", ErrInvalidConfig, c.Crystal.Resolution)
	}
	if c.Crystal.BufferFactor < 0 {
		return fmt.Errorf("%w: crystal.buffer_factor %g must not be negative", ErrInvalidConfig, c.Crystal.BufferFactor)
	}

	if !positive(c.Detector.Distance) {
		return fmt.Errorf("%w: detector.distance %g must be positive", ErrInvalidConfig, c.Detector.Distance)
	}

	if c.Index.LeafSize < 1 {
		return fmt.Errorf("%w: index.leaf_size must be ≥ 1, got %d", ErrInvalidConfig, c.Index.LeafSize)
	}
	if c.Index.MaxDepth < 1 {
		return fmt.Errorf("%w: index.max_depth must be ≥ 1, got %d", ErrInvalidConfig, c.Index.MaxDepth)
	}
	if c.Index.Tolerance < 0 {
		return fmt.Errorf("%w: index.tolerance %g must not be negative", ErrInvalidConfig, c.Index.Tolerance)
	}

	if c.Refine.Cycles < 1 {
		return fmt.Errorf("%w: refine.cycles must be ≥ 1, got %d", ErrInvalidConfig, c.Refine.Cycles)
	}
	if !positive(c.Refine.Step) || !positive(c.Refine.Bound) {
		return fmt.Errorf("%w: refine.step and refine.bound must be positive", ErrInvalidConfig)
	}

	if !positive(c.Interaction.DegreeStep) {
		return fmt.Errorf("%w: interaction.degree_step %g must be positive", ErrInvalidConfig, c.Interaction.DegreeStep)
	}
	if c.Interaction.RepopulateEvery < 1 {
		return fmt.Errorf("%w: interaction.repopulate_every must be ≥ 1, got %d", ErrInvalidConfig, c.Interaction.RepopulateEvery)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format %q; expected console|json", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}
