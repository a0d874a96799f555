package corrector

import (
	"fmt"
	"regexp"
)

// FailureKind classifies why a correction call failed.
type FailureKind string

const (
	KindUnknown        FailureKind = "unknown"
	KindNonConvergence FailureKind = "non-convergence"
	KindCalibration    FailureKind = "malformed-calibration"
	KindShape          FailureKind = "shape-mismatch"
	KindResources      FailureKind = "out-of-resources"
	KindBadOutput      FailureKind = "bad-output"
)

// Failure is returned by [Exec] when the correction program fails. Stderr
// holds everything the program wrote, which usually ends in a traceback.
type Failure struct {
	Kind   FailureKind
	Stderr string
	Err    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("correction failed (%s): %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Pre-compiled regexes for classifying correction program stderr. Checked in
// order by [Classify]; the first match wins.
var (
	reResources = regexp.MustCompile(
		`MemoryError|out of memory|Cannot allocate memory|Killed`)

	reNonConvergence = regexp.MustCompile(
		`(?i)did not converge|failed to converge|no convergence|` +
			`ConvergenceWarning|maximum number of iterations|ArpackNoConvergence`)

	reCalibration = regexp.MustCompile(
		`KeyError: '(P[0-3]|R0_rect|Tr_velo_to_cam)'|` +
			`(?i)calib(ration)? (file|record)`)

	reShape = regexp.MustCompile(
		`(?i)could not be broadcast|cannot reshape|shape mismatch|` +
			`dimension mismatch|operands could not|index \d+ is out of bounds`)
)

// Classify maps correction program stderr onto a [FailureKind].
func Classify(stderr string) FailureKind {
	switch {
	case reResources.MatchString(stderr):
		return KindResources
	case reNonConvergence.MatchString(stderr):
		return KindNonConvergence
	case reCalibration.MatchString(stderr):
		return KindCalibration
	case reShape.MatchString(stderr):
		return KindShape
	default:
		return KindUnknown
	}
}
