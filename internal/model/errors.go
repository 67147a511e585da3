package model

import "github.com/rotisserie/eris"

// Sentinel errors for the pipeline failure taxonomy. Stages wrap these with
// context (layer name, cell id, path) via eris; callers match with eris.Is.
var (
	// ErrInvalidGeometry indicates a malformed, empty, or zero-area boundary.
	ErrInvalidGeometry = eris.New("invalid geometry")

	// ErrCRSMismatch indicates a coordinate system inconsistency between the
	// grid and an input layer that could not be reconciled by reprojection.
	ErrCRSMismatch = eris.New("CRS mismatch")

	// ErrInvalidWeights indicates a criterion weight vector that does not sum
	// to 1.0 within tolerance.
	ErrInvalidWeights = eris.New("invalid weights")

	// ErrMissingLayer indicates a required input layer is absent or unreadable,
	// or a required normalized criterion is missing at aggregation time.
	ErrMissingLayer = eris.New("missing layer")

	// ErrDegenerateFeature indicates an extractor produced a NaN or infinite
	// raw value.
	ErrDegenerateFeature = eris.New("degenerate feature value")
)
