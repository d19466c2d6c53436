package models

import "time"

// Term models an academic period with its registration calendar. Terms
// are owned by the academic-calendar collaborator; this core only reads
// the deadlines.
type Term struct {
	ID                 string    `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	AcademicYear       string    `db:"academic_year" json:"academic_year"`
	StartDate          time.Time `db:"start_date" json:"start_date"`
	EndDate            time.Time `db:"end_date" json:"end_date"`
	AddDropDeadline    time.Time `db:"add_drop_deadline" json:"add_drop_deadline"`
	WithdrawalDeadline time.Time `db:"withdrawal_deadline" json:"withdrawal_deadline"`
	GradesDeadline     time.Time `db:"grades_deadline" json:"grades_deadline"`
	IsActive           bool      `db:"is_active" json:"is_active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// WithinAddDrop reports whether now is on or before the add/drop
// deadline. Deadlines are calendar dates: the deadline day itself passes.
func (t *Term) WithinAddDrop(now time.Time) bool {
	return !dateOf(now).After(dateOf(t.AddDropDeadline))
}

// WithinWithdrawal reports whether now is on or before the withdrawal deadline.
func (t *Term) WithinWithdrawal(now time.Time) bool {
	return !dateOf(now).After(dateOf(t.WithdrawalDeadline))
}

func dateOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
