package pipeline

import (
	"errors"

	"github.com/backmassage/gdcbatch/internal/artifact"
)

// Error taxonomy. ErrConfiguration is fatal to the run; the others are
// recorded against a single index.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrArtifactMissing = artifact.ErrMissing
	ErrArtifactCorrupt = artifact.ErrCorrupt
	ErrCorrection      = errors.New("correction failed")
	ErrWrite           = errors.New("output write failed")
)

// FailureKind names the taxonomy entry a failed job falls under.
type FailureKind string

const (
	KindArtifactMissing FailureKind = "artifact-missing"
	KindArtifactCorrupt FailureKind = "artifact-corrupt"
	KindCorrection      FailureKind = "correction"
	KindWrite           FailureKind = "write"
	KindUnknown         FailureKind = "unknown"
)

// KindOf maps err onto a FailureKind.
func KindOf(err error) FailureKind {
	switch {
	case errors.Is(err, ErrArtifactMissing):
		return KindArtifactMissing
	case errors.Is(err, ErrArtifactCorrupt):
		return KindArtifactCorrupt
	case errors.Is(err, ErrCorrection):
		return KindCorrection
	case errors.Is(err, ErrWrite):
		return KindWrite
	default:
		return KindUnknown
	}
}
