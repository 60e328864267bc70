package creator

// State is the persistence state of a CreatedInstance.
type State int

const (
	// StateUnsaved means the instance exists only in memory.
	StateUnsaved State = iota

	// StatePersisted means the instance was written to the store by Create.
	StatePersisted

	// StateCollected means the instance was rebuilt from stored data.
	StateCollected

	// StateUpdated means changed data was written back to the store.
	StateUpdated

	// StateRemoved means the stored data and auxiliary nodes were deleted.
	StateRemoved
)

// String returns a human-readable string for the state.
func (s State) String() string {
	switch s {
	case StateUnsaved:
		return "unsaved"
	case StatePersisted:
		return "persisted"
	case StateCollected:
		return "collected"
	case StateUpdated:
		return "updated"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// IsStored reports whether the instance currently has stored data.
func (s State) IsStored() bool {
	return s == StatePersisted || s == StateCollected || s == StateUpdated
}
