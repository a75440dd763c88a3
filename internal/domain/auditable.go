package domain

import "time"

// Auditable carries creation and modification timestamps.
// Entities embed it by value.
type Auditable struct {
	// CreatedAt is the timestamp when the record was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the record was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAuditable returns an Auditable stamped with now (UTC) for both fields.
func NewAuditable(now time.Time) Auditable {
	now = now.UTC()
	return Auditable{CreatedAt: now, UpdatedAt: now}
}

// Touch records a modification at now.
func (a *Auditable) Touch(now time.Time) {
	a.UpdatedAt = now.UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = a.UpdatedAt
	}
}
