// Package project reads and writes the saved indexing state: a small text
// file of tagged rows holding the orientation, cell matrix, detector
// geometry, wavelength and shell size.
//
//	rotation   <9 floats, row-major>
//	unitcell   <9 floats, row-major>
//	det_centre <beam x> <beam y> <distance>
//	wavelength <1 float>
//	rlp_size   <1 float>
package project

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mandexing/pkg/geometry"
)

// Row tags.
const (
	TagRotation   = "rotation"
	TagUnitCell   = "unitcell"
	TagDetCentre  = "det_centre"
	TagWavelength = "wavelength"
	TagRlpSize    = "rlp_size"

	// tagRlpSizeLegacy is what older files wrote for the shell size.
	tagRlpSizeLegacy = "rlpsize"
)

// ErrMalformedRow is returned when a recognised row cannot be decoded.
var ErrMalformedRow = errors.New("project: malformed row")

// State is one saved session. The Has* flags record which rows were present,
// so a partial file only overrides what it names.
type State struct {
	Rotation   geometry.Mat3 `json:"rotation"`
	UnitCell   geometry.Mat3 `json:"unit_cell"`
	DetCentre  geometry.Vec3 `json:"det_centre"`
	Wavelength float64       `json:"wavelength"`
	RlpSize    float64       `json:"rlp_size"`

	HasRotation   bool `json:"-"`
	HasUnitCell   bool `json:"-"`
	HasDetCentre  bool `json:"-"`
	HasWavelength bool `json:"-"`
	HasRlpSize    bool `json:"-"`
}

// Decode parses rows from r. Blank lines, '#' comments and unknown tags are
// skipped. A malformed recognised row fails the whole decode and nothing is
// returned, so callers never apply half a file.
func Decode(r io.Reader) (*State, error) {
	var st State
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		tag, args := fields[0], fields[1:]
		var err error
		switch tag {
		case TagRotation:
			st.Rotation, err = geometry.ParseMat3(args)
			st.HasRotation = true
		case TagUnitCell:
			st.UnitCell, err = geometry.ParseMat3(args)
			st.HasUnitCell = true
		case TagDetCentre:
			st.DetCentre, err = geometry.ParseVec3(args)
			st.HasDetCentre = true
		case TagWavelength:
			st.Wavelength, err = geometry.ParseScalar(args)
			st.HasWavelength = true
		case TagRlpSize, tagRlpSizeLegacy:
			st.RlpSize, err = geometry.ParseScalar(args)
			st.HasRlpSize = true
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d (%s): %w", ErrMalformedRow, line, tag, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("project: read state: %w", err)
	}
	return &st, nil
}

// Encode writes all five rows.
func Encode(w io.Writer, st *State) error {
	bw := bufio.NewWriter(w)
	rows := []struct {
		tag    string
		fields []string
	}{
		{TagRotation, st.Rotation.Fields()},
		{TagUnitCell, st.UnitCell.Fields()},
		{TagDetCentre, st.DetCentre.Fields()},
		{TagWavelength, []string{geometry.FormatScalar(st.Wavelength)}},
		{TagRlpSize, []string{geometry.FormatScalar(st.RlpSize)}},
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(bw, "%s %s\n", row.tag, strings.Join(row.fields, " ")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Load reads a state file.
func Load(path string) (*State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f)
}

// Save writes the state to path, replacing any existing file.
func (st *State) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, st); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
