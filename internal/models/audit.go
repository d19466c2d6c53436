package models

import "time"

// Audit actions emitted by the enrollment engine.
const (
	AuditActionEnroll         = "ENROLLMENT_CREATE"
	AuditActionDrop           = "ENROLLMENT_DROP"
	AuditActionWithdraw       = "ENROLLMENT_WITHDRAW"
	AuditActionPromote        = "ENROLLMENT_PROMOTE"
	AuditActionFinalizeGrades = "GRADES_FINALIZE"
)

// Audit severities. Withdraw and finalize are elevated since they are
// less reversible than a plain drop.
const (
	AuditSeverityInfo    = "INFO"
	AuditSeverityWarning = "WARNING"
)

// Audit entity types.
const (
	AuditEntityEnrollment = "Enrollment"
	AuditEntitySection    = "CourseSection"
)

// AuditEvent is the structured post-transition event handed to the
// audit collaborator.
type AuditEvent struct {
	ID         string    `db:"id" json:"id"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	EntityID   string    `db:"entity_id" json:"entity_id"`
	Summary    string    `db:"summary" json:"summary"`
	Severity   string    `db:"severity" json:"severity"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
