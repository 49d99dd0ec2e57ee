package geometry

import (
	"fmt"
	"math"
	"strconv"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloats(tokens []string, want int) ([]float64, error) {
	if len(tokens) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrMalformed, want, len(tokens))
	}
	out := make([]float64, want)
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d %q is not a number", ErrMalformed, i+1, tok)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: value %d %q is not finite", ErrMalformed, i+1, tok)
		}
		out[i] = v
	}
	return out, nil
}

// Fields encodes the matrix as 9 row-major decimal tokens that parse back
// to the identical values.
func (m Mat3) Fields() []string {
	out := make([]string, 9)
	for i, v := range m {
		out[i] = formatFloat(v)
	}
	return out
}

// ParseMat3 decodes exactly 9 row-major tokens.
func ParseMat3(tokens []string) (Mat3, error) {
	vals, err := parseFloats(tokens, 9)
	if err != nil {
		return Mat3{}, err
	}
	var m Mat3
	copy(m[:], vals)
	return m, nil
}

// Fields encodes the vector as 3 decimal tokens.
func (v Vec3) Fields() []string {
	return []string{formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z)}
}

// ParseVec3 decodes exactly 3 tokens.
func ParseVec3(tokens []string) (Vec3, error) {
	vals, err := parseFloats(tokens, 3)
	if err != nil {
		return Vec3{}, err
	}
	return Vec3{X: vals[0], Y: vals[1], Z: vals[2]}, nil
}

// ParseScalar decodes exactly 1 token.
func ParseScalar(tokens []string) (float64, error) {
	vals, err := parseFloats(tokens, 1)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// FormatScalar encodes a single value.
func FormatScalar(v float64) string {
	return formatFloat(v)
}
