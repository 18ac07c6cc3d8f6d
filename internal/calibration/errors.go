package calibration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/LimmatCapital/Verdict/internal/store"
)

// ErrNotFound marks a missing version, factor, bin, tier or rule. Wrapped
// errors carry the identifier.
var ErrNotFound = errors.New("not found")

// ErrConflict marks an attempt to create a version id that already exists.
var ErrConflict = errors.New("already exists")

// ValidationError carries every violation found in a draft configuration,
// not just the first.
type ValidationError struct {
	VersionID  string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("version %s failed validation: %s", e.VersionID, strings.Join(e.Violations, "; "))
}

// ImmutableVersionError rejects edits to versions that have left DRAFT.
// Published and archived calibrations are frozen; change goes through a new
// draft.
type ImmutableVersionError struct {
	VersionID string
	Status    store.VersionStatus
}

func (e *ImmutableVersionError) Error() string {
	return fmt.Sprintf("version %s is %s and cannot be modified", e.VersionID, e.Status)
}
