package models

import "time"

// CourseSection is one offering of a course within a term. The capacity
// counter pair is exclusively mutated by the enrollment engine; catalog
// attributes belong to the catalog collaborator. Version backs the
// optimistic-concurrency check on counter writes.
type CourseSection struct {
	ID                string    `db:"id" json:"id"`
	CourseCode        string    `db:"course_code" json:"course_code"`
	SectionNumber     string    `db:"section_number" json:"section_number"`
	TermID            string    `db:"term_id" json:"term_id"`
	MaxEnrollment     int       `db:"max_enrollment" json:"max_enrollment"`
	CurrentEnrollment int       `db:"current_enrollment" json:"current_enrollment"`
	WaitlistCapacity  int       `db:"waitlist_capacity" json:"waitlist_capacity"`
	WaitlistCount     int       `db:"waitlist_count" json:"waitlist_count"`
	IsOpen            bool      `db:"is_open" json:"is_open"`
	IsCancelled       bool      `db:"is_cancelled" json:"is_cancelled"`
	Version           int       `db:"version" json:"-"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// SeatsLeft returns remaining regular seats.
func (s *CourseSection) SeatsLeft() int {
	return s.MaxEnrollment - s.CurrentEnrollment
}

// WaitlistSlotsLeft returns remaining waitlist slots.
func (s *CourseSection) WaitlistSlotsLeft() int {
	return s.WaitlistCapacity - s.WaitlistCount
}

// SectionAvailability is the read-side snapshot served to registration
// UIs and the billing/reporting collaborators.
type SectionAvailability struct {
	SectionID         string `json:"section_id"`
	MaxEnrollment     int    `json:"max_enrollment"`
	CurrentEnrollment int    `json:"current_enrollment"`
	SeatsLeft         int    `json:"seats_left"`
	WaitlistCapacity  int    `json:"waitlist_capacity"`
	WaitlistCount     int    `json:"waitlist_count"`
	WaitlistSlotsLeft int    `json:"waitlist_slots_left"`
	IsOpen            bool   `json:"is_open"`
	IsCancelled       bool   `json:"is_cancelled"`
}

// Availability builds the snapshot for a section.
func (s *CourseSection) Availability() SectionAvailability {
	return SectionAvailability{
		SectionID:         s.ID,
		MaxEnrollment:     s.MaxEnrollment,
		CurrentEnrollment: s.CurrentEnrollment,
		SeatsLeft:         s.SeatsLeft(),
		WaitlistCapacity:  s.WaitlistCapacity,
		WaitlistCount:     s.WaitlistCount,
		WaitlistSlotsLeft: s.WaitlistSlotsLeft(),
		IsOpen:            s.IsOpen,
		IsCancelled:       s.IsCancelled,
	}
}
