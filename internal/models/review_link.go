package models

import "time"

// ReviewLink records a customer review invitation issued for a record.
// The access code, when set, is stored as a bcrypt hash only.
type ReviewLink struct {
	ID             string     `db:"id" json:"id"`
	RecordID       string     `db:"record_id" json:"record_id"`
	CustomerID     string     `db:"customer_id" json:"customer_id"`
	AccessCodeHash *string    `db:"access_code_hash" json:"-"`
	IssuedBy       string     `db:"issued_by" json:"issued_by"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	FirstUsedAt    *time.Time `db:"first_used_at" json:"first_used_at,omitempty"`
	Revoked        bool       `db:"revoked" json:"revoked"`
}
