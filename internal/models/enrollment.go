package models

import "time"

// EnrollmentStatus represents the lifecycle state of an enrollment.
type EnrollmentStatus string

// Enrollment lifecycle states. ENROLLED and WAITLISTED are the only
// non-terminal states; everything else is permanent.
const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "ENROLLED"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusDropped    EnrollmentStatus = "DROPPED"
	EnrollmentStatusWithdrawn  EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
	EnrollmentStatusFailed     EnrollmentStatus = "FAILED"
	EnrollmentStatusIncomplete EnrollmentStatus = "INCOMPLETE"
)

// IsTerminal reports whether the status permits no further transition.
func (s EnrollmentStatus) IsTerminal() bool {
	switch s {
	case EnrollmentStatusDropped, EnrollmentStatusWithdrawn,
		EnrollmentStatusCompleted, EnrollmentStatusFailed, EnrollmentStatusIncomplete:
		return true
	}
	return false
}

// IsActive reports whether the record still occupies a seat or waitlist slot.
func (s EnrollmentStatus) IsActive() bool {
	return s == EnrollmentStatusEnrolled || s == EnrollmentStatusWaitlisted
}

// Enrollment captures one registration attempt of a student in a course
// section. EnrollmentDate doubles as the waitlist FIFO ordering key.
// Records are never physically deleted.
type Enrollment struct {
	ID               string           `db:"id" json:"id"`
	StudentID        string           `db:"student_id" json:"student_id"`
	SectionID        string           `db:"section_id" json:"section_id"`
	Status           EnrollmentStatus `db:"status" json:"status"`
	EnrollmentDate   time.Time        `db:"enrollment_date" json:"enrollment_date"`
	DropDate         *time.Time       `db:"drop_date" json:"drop_date,omitempty"`
	WithdrawalDate   *time.Time       `db:"withdrawal_date" json:"withdrawal_date,omitempty"`
	Grade            *string          `db:"grade" json:"grade,omitempty"`
	GradePoints      *float64         `db:"grade_points" json:"grade_points,omitempty"`
	NumericGrade     *float64         `db:"numeric_grade" json:"numeric_grade,omitempty"`
	IsGradeFinalized bool             `db:"is_grade_finalized" json:"is_grade_finalized"`
	Notes            string           `db:"notes" json:"notes,omitempty"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
