package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fazi-university/registry-api/internal/models"
	"github.com/fazi-university/registry-api/pkg/config"
	appErrors "github.com/fazi-university/registry-api/pkg/errors"
	"github.com/fazi-university/registry-api/pkg/lock"
)

type gradeStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	UpdateGrade(ctx context.Context, id string, grade string, points float64, numeric *float64, notes string) error
	ListBySectionAndStatus(ctx context.Context, q sqlx.ExtContext, sectionID string, status models.EnrollmentStatus) ([]models.Enrollment, error)
	Finalize(ctx context.Context, q sqlx.ExtContext, id string, status models.EnrollmentStatus) error
}

// GradeService records in-progress grades and runs the all-or-nothing
// section finalization. Both paths take the same per-section lock as
// capacity mutations, so a grade write never interleaves with a
// finalization batch, a drop or a promotion on that section.
type GradeService struct {
	store       txRunner
	enrollments gradeStore
	policy      *models.GradePolicy
	locks       *lock.Keyed
	lockTimeout time.Duration
	audit       auditRecorder
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs the service.
func NewGradeService(
	store txRunner,
	enrollments gradeStore,
	policy *models.GradePolicy,
	locks *lock.Keyed,
	locking config.LockingConfig,
	audit auditRecorder,
	logger *zap.Logger,
) *GradeService {
	if locks == nil {
		locks = lock.NewKeyed()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := locking.AcquireTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &GradeService{
		store:       store,
		enrollments: enrollments,
		policy:      policy,
		locks:       locks,
		lockTimeout: timeout,
		audit:       audit,
		validate:    validator.New(),
		logger:      logger,
	}
}

// GradeRequest is the payload for recording a grade.
type GradeRequest struct {
	EnrollmentID string   `json:"-" validate:"required,uuid4"`
	Grade        string   `json:"grade" validate:"required"`
	NumericGrade *float64 `json:"numeric_grade,omitempty" validate:"omitempty,gte=0,lte=100"`
	Notes        string   `json:"notes,omitempty"`
}

// SubmitGrade records a provisional letter grade for a seated student.
// Grades stay mutable until the section is finalized; the write holds
// the section lock so it cannot slip into a running finalization.
func (s *GradeService) SubmitGrade(ctx context.Context, req GradeRequest) (*models.Enrollment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	enrollment, err := s.loadEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}

	release, ok := s.locks.Acquire(ctx, enrollment.SectionID, s.lockTimeout)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrContention, "")
	}
	defer release()

	// Re-read under the lock: a finalization batch may have closed the
	// section while we were waiting.
	enrollment, err = s.loadEnrollment(ctx, req.EnrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.IsGradeFinalized {
		return nil, appErrors.Clone(appErrors.ErrFinalized,
			"The grade for this enrollment is finalized and immutable.")
	}
	if enrollment.Status != models.EnrollmentStatusEnrolled {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("Grades can only be recorded for seated students, not %s.", enrollment.Status))
	}

	letter := strings.ToUpper(strings.TrimSpace(req.Grade))
	points, ok := s.policy.Points(letter)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidGrade,
			fmt.Sprintf("Grade %q is not part of the grading scale.", req.Grade))
	}

	if err := s.enrollments.UpdateGrade(ctx, req.EnrollmentID, letter, points, req.NumericGrade, req.Notes); err != nil {
		return nil, err
	}
	s.logger.Info("grade recorded",
		zap.String("enrollment_id", req.EnrollmentID), zap.String("grade", letter))

	return s.loadEnrollment(ctx, req.EnrollmentID)
}

func (s *GradeService) loadEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound,
				fmt.Sprintf("Enrollment %s not found.", id))
		}
		return nil, err
	}
	return enrollment, nil
}

// FinalizeResult summarizes one finalization batch.
type FinalizeResult struct {
	SectionID  string `json:"section_id"`
	Finalized  int    `json:"finalized"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Incomplete int    `json:"incomplete"`
}

// FinalizeGrades closes the books on a section: every seated student
// moves to the terminal status their letter grade implies, all in one
// transaction. A single missing grade aborts the whole batch so a
// section is never half finalized. Section capacity counters are left
// untouched; the term is over.
func (s *GradeService) FinalizeGrades(ctx context.Context, sectionID string) (*FinalizeResult, error) {
	release, ok := s.locks.Acquire(ctx, sectionID, s.lockTimeout)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrContention, "")
	}
	defer release()

	result := &FinalizeResult{SectionID: sectionID}
	err := s.store.WithinTx(ctx, func(tx *sqlx.Tx) error {
		seated, err := s.enrollments.ListBySectionAndStatus(ctx, tx, sectionID, models.EnrollmentStatusEnrolled)
		if err != nil {
			return err
		}

		missing := 0
		for _, e := range seated {
			if e.Grade == nil || *e.Grade == "" {
				missing++
			}
		}
		if missing > 0 {
			return appErrors.Clone(appErrors.ErrIncompleteGradeSet,
				fmt.Sprintf("%d of %d enrollments in section %s have no grade; none were finalized.",
					missing, len(seated), sectionID))
		}

		for _, e := range seated {
			status, ok := s.policy.TerminalStatus(*e.Grade)
			if !ok {
				return appErrors.Clone(appErrors.ErrInvalidGrade,
					fmt.Sprintf("Grade %s on enrollment %s cannot be finalized.", *e.Grade, e.ID))
			}
			if err := s.enrollments.Finalize(ctx, tx, e.ID, status); err != nil {
				return err
			}
			result.Finalized++
			switch status {
			case models.EnrollmentStatusCompleted:
				result.Completed++
			case models.EnrollmentStatusFailed:
				result.Failed++
			case models.EnrollmentStatusIncomplete:
				result.Incomplete++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.Record(models.AuditEvent{
			Action:     models.AuditActionFinalizeGrades,
			EntityType: models.AuditEntitySection,
			EntityID:   sectionID,
			Summary: fmt.Sprintf("Finalized %d grades for section %s (%d completed, %d failed, %d incomplete).",
				result.Finalized, sectionID, result.Completed, result.Failed, result.Incomplete),
			Severity: models.AuditSeverityWarning,
		})
	}
	s.logger.Info("section grades finalized",
		zap.String("section_id", sectionID), zap.Int("finalized", result.Finalized))
	return result, nil
}
