package models

import "time"

// LockState is the advisory lock status of a record as last observed.
// It is always re-derived from the source payload, never toggled from a
// remembered previous value.
type LockState struct {
	Locked     bool      `json:"locked"`
	Holder     string    `json:"holder,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
}

// Same reports whether two observations describe the same lock status,
// ignoring observation time.
func (s LockState) Same(other LockState) bool {
	return s.Locked == other.Locked && s.Holder == other.Holder
}
