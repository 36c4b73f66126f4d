package race

import "errors"

// Sentinel error kinds for this package. Callers translate via errors.Is.
var (
	ErrNotFound    = errors.New("unknown race id")
	ErrRunConflict = errors.New("agent run already registered")
)
