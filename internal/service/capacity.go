package service

import (
	"fmt"

	"github.com/fazi-university/registry-api/internal/models"
	appErrors "github.com/fazi-university/registry-api/pkg/errors"
)

// CapacityLedger owns the decision logic over a section's counter pair.
// It mutates the in-memory aggregate only; callers persist the result
// inside their transaction and hold the per-section write exclusivity.
type CapacityLedger struct{}

// ReserveSeat decides between ENROLLED and WAITLISTED for a new
// registration. A waitlist placement is only legal when the section is
// exactly full.
func (CapacityLedger) ReserveSeat(section *models.CourseSection) (models.EnrollmentStatus, error) {
	if !section.IsOpen || section.IsCancelled {
		return "", appErrors.Clone(appErrors.ErrSectionClosed,
			fmt.Sprintf("Section %s is closed or cancelled and not accepting registrations.", section.ID))
	}
	if section.CurrentEnrollment < section.MaxEnrollment {
		section.CurrentEnrollment++
		return models.EnrollmentStatusEnrolled, nil
	}
	if section.WaitlistCount < section.WaitlistCapacity {
		section.WaitlistCount++
		return models.EnrollmentStatusWaitlisted, nil
	}
	return "", appErrors.Clone(appErrors.ErrCapacityExceeded,
		fmt.Sprintf("Section %s has no seats left and the waitlist is full.", section.ID))
}

// ReleaseSeat returns one regular seat. The caller guarantees a prior
// reservation; going negative is a programming error and surfaces as a
// fatal error, not a business failure.
func (CapacityLedger) ReleaseSeat(section *models.CourseSection) error {
	if section.CurrentEnrollment <= 0 {
		return fmt.Errorf("section %s: enrollment counter underflow", section.ID)
	}
	section.CurrentEnrollment--
	return nil
}

// ReleaseWaitlistSlot returns one waitlist slot.
func (CapacityLedger) ReleaseWaitlistSlot(section *models.CourseSection) error {
	if section.WaitlistCount <= 0 {
		return fmt.Errorf("section %s: waitlist counter underflow", section.ID)
	}
	section.WaitlistCount--
	return nil
}

// ConsumeWaitlistSlotForPromotion moves one registration from the
// waitlist into a seat as a single state change; the two counters are
// never observable in between.
func (CapacityLedger) ConsumeWaitlistSlotForPromotion(section *models.CourseSection) error {
	if section.WaitlistCount <= 0 {
		return fmt.Errorf("section %s: waitlist counter underflow on promotion", section.ID)
	}
	if section.CurrentEnrollment >= section.MaxEnrollment {
		return fmt.Errorf("section %s: promotion would exceed max enrollment", section.ID)
	}
	section.WaitlistCount--
	section.CurrentEnrollment++
	return nil
}
