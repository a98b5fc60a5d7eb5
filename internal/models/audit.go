package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionSessionOpen     = "SESSION_OPEN"
	AuditActionSessionClose    = "SESSION_CLOSE"
	AuditActionRecordSubmit    = "RECORD_SUBMIT"
	AuditActionReviewLinkIssue = "REVIEW_LINK_ISSUE"
	AuditActionReviewFinalize  = "REVIEW_FINALIZE"
	AuditActionLockDenied      = "LOCK_DENIED"
	AuditActionRegisterExport  = "REGISTER_EXPORT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Detail     []byte    `db:"detail" json:"detail,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
