package crystal

import "errors"

var (
	// ErrInvalidParameter indicates a rejected setter value; the crystal is unchanged.
	ErrInvalidParameter = errors.New("crystal: invalid parameter")
	// ErrDegenerateAxis indicates an axis with no usable direction.
	ErrDegenerateAxis = errors.New("crystal: degenerate axis")
	// ErrReflectionIndex indicates a reflection id outside the current generation.
	ErrReflectionIndex = errors.New("crystal: reflection index out of range")
	// ErrSearchTooLarge indicates an index-space search box beyond the configured limit.
	ErrSearchTooLarge = errors.New("crystal: index search volume too large")
)
