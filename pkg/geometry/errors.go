package geometry

import "errors"

var (
	// ErrSingular indicates a matrix with no usable inverse.
	ErrSingular = errors.New("geometry: matrix is singular")
	// ErrZeroVector indicates a direction was required but the vector has no length.
	ErrZeroVector = errors.New("geometry: zero-length vector")
	// ErrMalformed indicates a numeric payload with the wrong token count or a non-numeric or non-finite token.
	ErrMalformed = errors.New("geometry: malformed numeric payload")
	// ErrInvalidCell indicates unit cell parameters that do not describe a cell.
	ErrInvalidCell = errors.New("geometry: invalid unit cell parameters")
)
