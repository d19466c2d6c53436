package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fazi-university/registry-api/internal/models"
	"github.com/fazi-university/registry-api/internal/repository"
	"github.com/fazi-university/registry-api/pkg/config"
	appErrors "github.com/fazi-university/registry-api/pkg/errors"
	"github.com/fazi-university/registry-api/pkg/lock"
)

type txRunner interface {
	WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type sectionStore interface {
	FindByIDTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.CourseSection, error)
	UpdateCounters(ctx context.Context, q sqlx.ExtContext, section *models.CourseSection) error
}

type enrollmentStore interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindByIDTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.Enrollment, error)
	ExistsActive(ctx context.Context, q sqlx.ExtContext, studentID, sectionID string) (bool, error)
	Create(ctx context.Context, q sqlx.ExtContext, enrollment *models.Enrollment) error
	MarkDropped(ctx context.Context, q sqlx.ExtContext, id string, at time.Time, note string) error
	MarkWithdrawn(ctx context.Context, q sqlx.ExtContext, id string, at time.Time, grade string, note string) error
	NextWaitlisted(ctx context.Context, q sqlx.ExtContext, sectionID string) (*models.Enrollment, error)
	Promote(ctx context.Context, q sqlx.ExtContext, id string, note string) error
}

type termStore interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

type auditRecorder interface {
	Record(event models.AuditEvent)
}

type availabilityInvalidator interface {
	Invalidate(ctx context.Context, sectionID string)
}

type transitionMetrics interface {
	EnrollmentDecision(status models.EnrollmentStatus)
	WaitlistPromotion()
	SectionContention()
}

// EnrollmentService drives the registration lifecycle: enroll with
// seat-or-waitlist placement, drop and withdraw with FIFO promotion, and
// the read side. Every capacity mutation runs under the per-section lock
// plus the optimistic version check, inside a single transaction.
type EnrollmentService struct {
	store        txRunner
	sections     sectionStore
	enrollments  enrollmentStore
	terms        termStore
	ledger       CapacityLedger
	locks        *lock.Keyed
	policy       *models.GradePolicy
	lockTimeout  time.Duration
	retries      int
	audit        auditRecorder
	availability availabilityInvalidator
	metrics      transitionMetrics
	validate     *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewEnrollmentService constructs the service.
func NewEnrollmentService(
	store txRunner,
	sections sectionStore,
	enrollments enrollmentStore,
	terms termStore,
	locks *lock.Keyed,
	policy *models.GradePolicy,
	locking config.LockingConfig,
	audit auditRecorder,
	availability availabilityInvalidator,
	metrics transitionMetrics,
	logger *zap.Logger,
) *EnrollmentService {
	if locks == nil {
		locks = lock.NewKeyed()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := locking.RetryAttempts
	if retries < 1 {
		retries = 1
	}
	timeout := locking.AcquireTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &EnrollmentService{
		store:        store,
		sections:     sections,
		enrollments:  enrollments,
		terms:        terms,
		locks:        locks,
		policy:       policy,
		lockTimeout:  timeout,
		retries:      retries,
		audit:        audit,
		availability: availability,
		metrics:      metrics,
		validate:     validator.New(),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// EnrollRequest is the payload for a new registration.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid4"`
	SectionID string `json:"section_id" validate:"required,uuid4"`
}

// Enroll registers a student in a section. The placement decision is
// made against live counters: a free seat yields ENROLLED, a full
// section with waitlist room yields WAITLISTED, otherwise the request
// is rejected.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	release, ok := s.locks.Acquire(ctx, req.SectionID, s.lockTimeout)
	if !ok {
		s.recordContention(req.SectionID)
		return nil, appErrors.Clone(appErrors.ErrContention, "")
	}
	defer release()

	var enrollment *models.Enrollment
	err := s.withCounterRetry(ctx, req.SectionID, func(tx *sqlx.Tx) error {
		section, err := s.loadSection(ctx, tx, req.SectionID)
		if err != nil {
			return err
		}
		term, err := s.terms.FindByID(ctx, section.TermID)
		if err != nil {
			return fmt.Errorf("load term %s: %w", section.TermID, err)
		}
		if !term.WithinAddDrop(s.now()) {
			return appErrors.Clone(appErrors.ErrDeadlinePassed,
				fmt.Sprintf("Registration closed: the add/drop deadline for %s was %s.",
					term.Name, term.AddDropDeadline.Format("2006-01-02")))
		}
		active, err := s.enrollments.ExistsActive(ctx, tx, req.StudentID, req.SectionID)
		if err != nil {
			return err
		}
		if active {
			return appErrors.Clone(appErrors.ErrConflict,
				"Student already has an active registration in this section.")
		}

		status, err := s.ledger.ReserveSeat(section)
		if err != nil {
			return err
		}
		record := &models.Enrollment{
			StudentID:      req.StudentID,
			SectionID:      req.SectionID,
			Status:         status,
			EnrollmentDate: s.now(),
		}
		if err := s.enrollments.Create(ctx, tx, record); err != nil {
			return err
		}
		if err := s.sections.UpdateCounters(ctx, tx, section); err != nil {
			return err
		}
		enrollment = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCapacityChange(ctx, req.SectionID)
	if s.metrics != nil {
		s.metrics.EnrollmentDecision(enrollment.Status)
	}
	s.record(models.AuditEvent{
		Action:     models.AuditActionEnroll,
		EntityType: models.AuditEntityEnrollment,
		EntityID:   enrollment.ID,
		Summary: fmt.Sprintf("Student %s registered in section %s as %s.",
			req.StudentID, req.SectionID, enrollment.Status),
		Severity: models.AuditSeverityInfo,
	})
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("section_id", req.SectionID),
		zap.String("status", string(enrollment.Status)))
	return enrollment, nil
}

// Drop releases a registration before the add/drop deadline. Dropping a
// seated student frees the seat and promotes the head of the waitlist in
// the same transaction; dropping a waitlisted student just frees the slot.
func (s *EnrollmentService) Drop(ctx context.Context, enrollmentID, reason string) (*models.Enrollment, error) {
	current, err := s.Get(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	release, ok := s.locks.Acquire(ctx, current.SectionID, s.lockTimeout)
	if !ok {
		s.recordContention(current.SectionID)
		return nil, appErrors.Clone(appErrors.ErrContention, "")
	}
	defer release()

	var promoted *models.Enrollment
	err = s.withCounterRetry(ctx, current.SectionID, func(tx *sqlx.Tx) error {
		promoted = nil
		enrollment, err := s.loadEnrollment(ctx, tx, enrollmentID)
		if err != nil {
			return err
		}
		if !enrollment.Status.IsActive() {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("Cannot drop an enrollment in status %s.", enrollment.Status))
		}
		section, err := s.loadSection(ctx, tx, enrollment.SectionID)
		if err != nil {
			return err
		}
		term, err := s.terms.FindByID(ctx, section.TermID)
		if err != nil {
			return fmt.Errorf("load term %s: %w", section.TermID, err)
		}
		if !term.WithinAddDrop(s.now()) {
			return appErrors.Clone(appErrors.ErrDeadlinePassed,
				fmt.Sprintf("The add/drop deadline for %s was %s; use withdrawal instead.",
					term.Name, term.AddDropDeadline.Format("2006-01-02")))
		}

		if err := s.enrollments.MarkDropped(ctx, tx, enrollmentID, s.now(), dropNote(reason)); err != nil {
			return err
		}
		if enrollment.Status == models.EnrollmentStatusEnrolled {
			if err := s.ledger.ReleaseSeat(section); err != nil {
				return err
			}
			if promoted, err = s.promoteNext(ctx, tx, section); err != nil {
				return err
			}
		} else {
			if err := s.ledger.ReleaseWaitlistSlot(section); err != nil {
				return err
			}
		}
		return s.sections.UpdateCounters(ctx, tx, section)
	})
	if err != nil {
		return nil, err
	}

	s.afterCapacityChange(ctx, current.SectionID)
	s.record(models.AuditEvent{
		Action:     models.AuditActionDrop,
		EntityType: models.AuditEntityEnrollment,
		EntityID:   enrollmentID,
		Summary:    fmt.Sprintf("Student %s dropped section %s.", current.StudentID, current.SectionID),
		Severity:   models.AuditSeverityInfo,
	})
	s.recordPromotion(promoted, current.SectionID)

	return s.Get(ctx, enrollmentID)
}

// Withdraw leaves a section after add/drop but before the withdrawal
// deadline. Only seated students withdraw; the W grade is recorded, the
// seat is freed and the waitlist head is promoted atomically.
func (s *EnrollmentService) Withdraw(ctx context.Context, enrollmentID, reason string) (*models.Enrollment, error) {
	current, err := s.Get(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	release, ok := s.locks.Acquire(ctx, current.SectionID, s.lockTimeout)
	if !ok {
		s.recordContention(current.SectionID)
		return nil, appErrors.Clone(appErrors.ErrContention, "")
	}
	defer release()

	var promoted *models.Enrollment
	err = s.withCounterRetry(ctx, current.SectionID, func(tx *sqlx.Tx) error {
		promoted = nil
		enrollment, err := s.loadEnrollment(ctx, tx, enrollmentID)
		if err != nil {
			return err
		}
		if enrollment.Status == models.EnrollmentStatusWaitlisted {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				"Waitlisted registrations are dropped, not withdrawn.")
		}
		if enrollment.Status != models.EnrollmentStatusEnrolled {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("Cannot withdraw an enrollment in status %s.", enrollment.Status))
		}
		section, err := s.loadSection(ctx, tx, enrollment.SectionID)
		if err != nil {
			return err
		}
		term, err := s.terms.FindByID(ctx, section.TermID)
		if err != nil {
			return fmt.Errorf("load term %s: %w", section.TermID, err)
		}
		if !term.WithinWithdrawal(s.now()) {
			return appErrors.Clone(appErrors.ErrDeadlinePassed,
				fmt.Sprintf("The withdrawal deadline for %s was %s.",
					term.Name, term.WithdrawalDeadline.Format("2006-01-02")))
		}

		if err := s.enrollments.MarkWithdrawn(ctx, tx, enrollmentID, s.now(), s.policy.Withdrawal(), dropNote(reason)); err != nil {
			return err
		}
		if err := s.ledger.ReleaseSeat(section); err != nil {
			return err
		}
		if promoted, err = s.promoteNext(ctx, tx, section); err != nil {
			return err
		}
		return s.sections.UpdateCounters(ctx, tx, section)
	})
	if err != nil {
		return nil, err
	}

	s.afterCapacityChange(ctx, current.SectionID)
	s.record(models.AuditEvent{
		Action:     models.AuditActionWithdraw,
		EntityType: models.AuditEntityEnrollment,
		EntityID:   enrollmentID,
		Summary: fmt.Sprintf("Student %s withdrew from section %s with grade %s.",
			current.StudentID, current.SectionID, s.policy.Withdrawal()),
		Severity: models.AuditSeverityWarning,
	})
	s.recordPromotion(promoted, current.SectionID)

	return s.Get(ctx, enrollmentID)
}

// Get returns one enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("Enrollment %s not found.", id))
		}
		return nil, err
	}
	return enrollment, nil
}

// List returns enrollments matching the filter with the total count.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	return s.enrollments.List(ctx, filter)
}

// promoteNext moves the FIFO head of the section's waitlist into the
// freed seat. A nil result means the waitlist was empty.
func (s *EnrollmentService) promoteNext(ctx context.Context, tx *sqlx.Tx, section *models.CourseSection) (*models.Enrollment, error) {
	next, err := s.enrollments.NextWaitlisted(ctx, tx, section.ID)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}
	if err := s.ledger.ConsumeWaitlistSlotForPromotion(section); err != nil {
		return nil, err
	}
	note := fmt.Sprintf("Promoted from waitlist on %s.", s.now().Format("2006-01-02"))
	if err := s.enrollments.Promote(ctx, tx, next.ID, note); err != nil {
		return nil, err
	}
	next.Status = models.EnrollmentStatusEnrolled
	return next, nil
}

// withCounterRetry runs fn in a transaction, re-running it from a fresh
// read when the optimistic counter write loses to a concurrent mutation.
func (s *EnrollmentService) withCounterRetry(ctx context.Context, sectionID string, fn func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		err = s.store.WithinTx(ctx, fn)
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		s.logger.Warn("section counter write lost race, retrying",
			zap.String("section_id", sectionID), zap.Int("attempt", attempt))
	}
	s.recordContention(sectionID)
	return appErrors.Clone(appErrors.ErrContention, "")
}

func (s *EnrollmentService) loadSection(ctx context.Context, tx *sqlx.Tx, id string) (*models.CourseSection, error) {
	section, err := s.sections.FindByIDTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("Section %s not found.", id))
		}
		return nil, err
	}
	return section, nil
}

func (s *EnrollmentService) loadEnrollment(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByIDTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("Enrollment %s not found.", id))
		}
		return nil, err
	}
	return enrollment, nil
}

func (s *EnrollmentService) afterCapacityChange(ctx context.Context, sectionID string) {
	if s.availability != nil {
		s.availability.Invalidate(ctx, sectionID)
	}
}

func (s *EnrollmentService) record(event models.AuditEvent) {
	if s.audit != nil {
		s.audit.Record(event)
	}
}

func (s *EnrollmentService) recordPromotion(promoted *models.Enrollment, sectionID string) {
	if promoted == nil {
		return
	}
	if s.metrics != nil {
		s.metrics.WaitlistPromotion()
	}
	s.record(models.AuditEvent{
		Action:     models.AuditActionPromote,
		EntityType: models.AuditEntityEnrollment,
		EntityID:   promoted.ID,
		Summary: fmt.Sprintf("Student %s promoted from the waitlist of section %s.",
			promoted.StudentID, sectionID),
		Severity: models.AuditSeverityInfo,
	})
}

func (s *EnrollmentService) recordContention(sectionID string) {
	if s.metrics != nil {
		s.metrics.SectionContention()
	}
	s.logger.Warn("section contention", zap.String("section_id", sectionID))
}

func dropNote(reason string) string {
	if reason == "" {
		return ""
	}
	return "Reason: " + reason
}
