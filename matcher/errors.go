package matcher

import (
	"fmt"

	"imagedupes/types"
)

// InvariantViolation is an inconsistency between two records that should be
// impossible, such as equal content hashes with different file sizes. It is
// never treated as a non-match.
type InvariantViolation struct {
	Key      string
	OtherKey string
	Field    string
	Detail   string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on %s between %s and %s: %s", v.Field, v.Key, v.OtherKey, v.Detail)
}

// Violation converts v to its report form
func (v *InvariantViolation) Violation() types.Violation {
	return types.Violation{Key: v.Key, OtherKey: v.OtherKey, Field: v.Field, Message: v.Detail}
}
