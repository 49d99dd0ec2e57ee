package crystal

import (
	"fmt"
	"strings"
)

// Lattice identifies the Bravais lattice centring, which decides the
// systematic absences.
type Lattice int

const (
	Primitive   Lattice = iota // P
	BodyCentred                // I
	FaceCentred                // F
	BaseCentred                // C
)

// String returns the centring symbol.
func (l Lattice) String() string {
	switch l {
	case Primitive:
		return "P"
	case BodyCentred:
		return "I"
	case FaceCentred:
		return "F"
	case BaseCentred:
		return "C"
	default:
		return fmt.Sprintf("Lattice(%d)", int(l))
	}
}

// ParseLattice accepts a centring symbol (P, I, F, C) or the full name.
func ParseLattice(s string) (Lattice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "p", "primitive":
		return Primitive, nil
	case "i", "body", "bodycentred", "body-centred":
		return BodyCentred, nil
	case "f", "face", "facecentred", "face-centred":
		return FaceCentred, nil
	case "c", "base", "basecentred", "base-centred":
		return BaseCentred, nil
	}
	return Primitive, fmt.Errorf("%w: unknown lattice %q", ErrInvalidParameter, s)
}

func even(n int) bool { return n%2 == 0 }

// Absent reports whether (h, k, l) is systematically absent for the lattice.
func (l Lattice) Absent(h, k, m int) bool {
	switch l {
	case BodyCentred:
		return !even(h + k + m)
	case FaceCentred:
		return !(even(h+k) && even(k+m) && even(m+h))
	case BaseCentred:
		return !even(h + k)
	default:
		return false
	}
}
