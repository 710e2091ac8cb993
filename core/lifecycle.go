package core

// LifecycleState makes the soft-delete filter an explicit, non-optional part
// of every storage read. Records are never physically deleted; forgetting to
// filter on is_active is the bug class this parameter exists to prevent.
type LifecycleState int

const (
	StateActive LifecycleState = iota
	StateInactive
	StateAny
)

// Matches reports whether a record with the given is_active flag falls under
// the state filter.
func (s LifecycleState) Matches(isActive bool) bool {
	switch s {
	case StateActive:
		return isActive
	case StateInactive:
		return !isActive
	default:
		return true
	}
}
