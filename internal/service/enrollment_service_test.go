package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fazi-university/registry-api/internal/models"
	"github.com/fazi-university/registry-api/pkg/config"
	appErrors "github.com/fazi-university/registry-api/pkg/errors"
	"github.com/fazi-university/registry-api/pkg/lock"
)

type enrollmentFixture struct {
	svc       *EnrollmentService
	store     *mockStore
	sections  *mockSectionRepo
	repo      *mockEnrollmentRepo
	audit     *mockAudit
	cache     *mockInvalidator
	metrics   *mockMetrics
	sectionID string
	now       time.Time
}

func newEnrollmentFixture(mutate func(*models.CourseSection)) *enrollmentFixture {
	now := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	sectionID := uuid.NewString()
	termID := uuid.NewString()

	section := &models.CourseSection{
		ID:               sectionID,
		CourseCode:       "CS101",
		SectionNumber:    "001",
		TermID:           termID,
		MaxEnrollment:    2,
		WaitlistCapacity: 2,
		IsOpen:           true,
		Version:          1,
	}
	if mutate != nil {
		mutate(section)
	}

	term := &models.Term{
		ID:                 termID,
		Name:               "Fall 2025",
		AddDropDeadline:    time.Date(2025, 9, 10, 0, 0, 0, 0, time.UTC),
		WithdrawalDeadline: time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC),
		IsActive:           true,
	}

	f := &enrollmentFixture{
		store:     &mockStore{},
		sections:  &mockSectionRepo{sections: map[string]*models.CourseSection{sectionID: section}},
		repo:      newMockEnrollmentRepo(),
		audit:     &mockAudit{},
		cache:     &mockInvalidator{},
		metrics:   newMockMetrics(),
		sectionID: sectionID,
		now:       now,
	}
	f.svc = NewEnrollmentService(
		f.store, f.sections, f.repo, &mockTermRepo{terms: map[string]*models.Term{termID: term}},
		lock.NewKeyed(), testGradePolicy(),
		config.LockingConfig{AcquireTimeout: 50 * time.Millisecond, RetryAttempts: 3},
		f.audit, f.cache, f.metrics, zap.NewNop(),
	)
	f.svc.now = func() time.Time { return now }
	return f
}

func (f *enrollmentFixture) seed(status models.EnrollmentStatus, enrolledAt time.Time) *models.Enrollment {
	e := models.Enrollment{
		ID:             uuid.NewString(),
		StudentID:      uuid.NewString(),
		SectionID:      f.sectionID,
		Status:         status,
		EnrollmentDate: enrolledAt,
		CreatedAt:      enrolledAt,
	}
	f.repo.put(e)
	return f.repo.records[e.ID]
}

func TestEnrollTakesFreeSeat(t *testing.T) {
	f := newEnrollmentFixture(nil)

	enrollment, err := f.svc.Enroll(context.Background(), EnrollRequest{
		StudentID: uuid.NewString(),
		SectionID: f.sectionID,
	})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.Equal(t, 1, f.sections.sections[f.sectionID].CurrentEnrollment)
	assert.Equal(t, 0, f.sections.sections[f.sectionID].WaitlistCount)
	assert.Equal(t, []string{models.AuditActionEnroll}, f.audit.actions())
	assert.Equal(t, []string{f.sectionID}, f.cache.keys)
	assert.Equal(t, 1, f.metrics.decisions[models.EnrollmentStatusEnrolled])
}

func TestEnrollFullSectionGoesToWaitlist(t *testing.T) {
	f := newEnrollmentFixture(func(s *models.CourseSection) {
		s.CurrentEnrollment = 2
	})

	enrollment, err := f.svc.Enroll(context.Background(), EnrollRequest{
		StudentID: uuid.NewString(),
		SectionID: f.sectionID,
	})
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusWaitlisted, enrollment.Status)
	assert.Equal(t, 2, f.sections.sections[f.sectionID].CurrentEnrollment)
	assert.Equal(t, 1, f.sections.sections[f.sectionID].WaitlistCount)
}

func TestEnrollRejectsWhenSectionAndWaitlistFull(t *testing.T) {
	f := newEnrollmentFixture(func(s *models.CourseSection) {
		s.CurrentEnrollment = 2
		s.WaitlistCount = 2
	})

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{
		StudentID: uuid.NewString(),
		SectionID: f.sectionID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCapacityExceeded.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.audit.events)
}

func TestEnrollRejectsClosedSection(t *testing.T) {
	f := newEnrollmentFixture(func(s *models.CourseSection) {
		s.IsOpen = false
	})

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{
		StudentID: uuid.NewString(),
		SectionID: f.sectionID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSectionClosed.Code, appErrors.FromError(err).Code)
}

func TestEnrollDeadlineBoundary(t *testing.T) {
	f := newEnrollmentFixture(nil)

	// The deadline day itself still accepts registrations.
	f.svc.now = func() time.Time { return time.Date(2025, 9, 10, 23, 59, 0, 0, time.UTC) }
	_, err := f.svc.Enroll(context.Background(), EnrollRequest{
		StudentID: uuid.NewString(),
		SectionID: f.sectionID,
	})
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Date(2025, 9, 11, 0, 1, 0, 0, time.UTC) }
	_, err = f.svc.Enroll(context.Background(), EnrollRequest{
		StudentID: uuid.NewString(),
		SectionID: f.sectionID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDeadlinePassed.Code, appErrors.FromError(err).Code)
}

func TestEnrollRejectsDuplicateActiveRegistration(t *testing.T) {
	f := newEnrollmentFixture(nil)
	existing := f.seed(models.EnrollmentStatusEnrolled, f.now)

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{
		StudentID: existing.StudentID,
		SectionID: f.sectionID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEnrollAllowedAfterPriorDrop(t *testing.T) {
	f := newEnrollmentFixture(nil)
	dropped := f.seed(models.EnrollmentStatusDropped, f.now.Add(-48*time.Hour))

	enrollment, err := f.svc.Enroll(context.Background(), EnrollRequest{
		StudentID: dropped.StudentID,
		SectionID: f.sectionID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.NotEqual(t, dropped.ID, enrollment.ID)
}

func TestEnrollRetriesVersionConflict(t *testing.T) {
	f := newEnrollmentFixture(nil)
	f.sections.conflicts = 1

	enrollment, err := f.svc.Enroll(context.Background(), EnrollRequest{
		StudentID: uuid.NewString(),
		SectionID: f.sectionID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollment.Status)
	assert.Equal(t, 2, f.store.txCount)
}

func TestEnrollGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newEnrollmentFixture(nil)
	f.sections.conflicts = 3

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{
		StudentID: uuid.NewString(),
		SectionID: f.sectionID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrContention.Code, appErrors.FromError(err).Code)
	assert.True(t, appErrors.Retryable(err))
	assert.Equal(t, 1, f.metrics.contention)
}

func TestEnrollFailsFastWhenSectionLockHeld(t *testing.T) {
	f := newEnrollmentFixture(nil)
	release, ok := f.svc.locks.Acquire(context.Background(), f.sectionID, time.Second)
	require.True(t, ok)
	defer release()

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{
		StudentID: uuid.NewString(),
		SectionID: f.sectionID,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrContention.Code, appErrors.FromError(err).Code)
}

func TestDropSeatedStudentPromotesWaitlistHead(t *testing.T) {
	f := newEnrollmentFixture(func(s *models.CourseSection) {
		s.CurrentEnrollment = 2
		s.WaitlistCount = 2
	})
	seated := f.seed(models.EnrollmentStatusEnrolled, f.now.Add(-72*time.Hour))
	f.seed(models.EnrollmentStatusEnrolled, f.now.Add(-71*time.Hour))
	first := f.seed(models.EnrollmentStatusWaitlisted, f.now.Add(-48*time.Hour))
	second := f.seed(models.EnrollmentStatusWaitlisted, f.now.Add(-24*time.Hour))

	dropped, err := f.svc.Drop(context.Background(), seated.ID, "schedule change")
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusDropped, dropped.Status)
	require.NotNil(t, dropped.DropDate)

	// The earliest waitlisted registration takes the freed seat.
	assert.Equal(t, models.EnrollmentStatusEnrolled, f.repo.records[first.ID].Status)
	assert.Equal(t, models.EnrollmentStatusWaitlisted, f.repo.records[second.ID].Status)

	section := f.sections.sections[f.sectionID]
	assert.Equal(t, 2, section.CurrentEnrollment)
	assert.Equal(t, 1, section.WaitlistCount)

	assert.Equal(t, []string{models.AuditActionDrop, models.AuditActionPromote}, f.audit.actions())
	assert.Equal(t, 1, f.metrics.promotions)
}

func TestDropWaitlistedStudentFreesSlotWithoutPromotion(t *testing.T) {
	f := newEnrollmentFixture(func(s *models.CourseSection) {
		s.CurrentEnrollment = 2
		s.WaitlistCount = 1
	})
	waiting := f.seed(models.EnrollmentStatusWaitlisted, f.now.Add(-time.Hour))

	dropped, err := f.svc.Drop(context.Background(), waiting.ID, "")
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusDropped, dropped.Status)
	section := f.sections.sections[f.sectionID]
	assert.Equal(t, 2, section.CurrentEnrollment)
	assert.Equal(t, 0, section.WaitlistCount)
	assert.Equal(t, 0, f.metrics.promotions)
}

func TestDropSeatedWithEmptyWaitlistJustFreesSeat(t *testing.T) {
	f := newEnrollmentFixture(func(s *models.CourseSection) {
		s.CurrentEnrollment = 1
	})
	seated := f.seed(models.EnrollmentStatusEnrolled, f.now.Add(-time.Hour))

	_, err := f.svc.Drop(context.Background(), seated.ID, "")
	require.NoError(t, err)

	section := f.sections.sections[f.sectionID]
	assert.Equal(t, 0, section.CurrentEnrollment)
	assert.Equal(t, 0, section.WaitlistCount)
}

func TestDropRejectsTerminalStatus(t *testing.T) {
	f := newEnrollmentFixture(nil)
	completed := f.seed(models.EnrollmentStatusCompleted, f.now.Add(-time.Hour))

	_, err := f.svc.Drop(context.Background(), completed.ID, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestDropAfterAddDropDeadlinePointsToWithdrawal(t *testing.T) {
	f := newEnrollmentFixture(func(s *models.CourseSection) {
		s.CurrentEnrollment = 1
	})
	seated := f.seed(models.EnrollmentStatusEnrolled, f.now)
	f.svc.now = func() time.Time { return time.Date(2025, 9, 20, 9, 0, 0, 0, time.UTC) }

	_, err := f.svc.Drop(context.Background(), seated.ID, "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDeadlinePassed.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "withdrawal")
}

func TestDropNotFound(t *testing.T) {
	f := newEnrollmentFixture(nil)

	_, err := f.svc.Drop(context.Background(), uuid.NewString(), "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestWithdrawRecordsGradeAndPromotes(t *testing.T) {
	f := newEnrollmentFixture(func(s *models.CourseSection) {
		s.CurrentEnrollment = 2
		s.WaitlistCount = 1
	})
	seated := f.seed(models.EnrollmentStatusEnrolled, f.now.Add(-72*time.Hour))
	waiting := f.seed(models.EnrollmentStatusWaitlisted, f.now.Add(-24*time.Hour))

	// Past add/drop, before the withdrawal deadline.
	f.svc.now = func() time.Time { return time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC) }

	withdrawn, err := f.svc.Withdraw(context.Background(), seated.ID, "medical")
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusWithdrawn, withdrawn.Status)
	require.NotNil(t, withdrawn.Grade)
	assert.Equal(t, "W", *withdrawn.Grade)
	require.NotNil(t, withdrawn.GradePoints)
	assert.Zero(t, *withdrawn.GradePoints)

	assert.Equal(t, models.EnrollmentStatusEnrolled, f.repo.records[waiting.ID].Status)
	section := f.sections.sections[f.sectionID]
	assert.Equal(t, 2, section.CurrentEnrollment)
	assert.Equal(t, 0, section.WaitlistCount)

	require.Len(t, f.audit.events, 2)
	assert.Equal(t, models.AuditSeverityWarning, f.audit.events[0].Severity)
}

func TestWithdrawRejectsWaitlisted(t *testing.T) {
	f := newEnrollmentFixture(func(s *models.CourseSection) {
		s.WaitlistCount = 1
	})
	waiting := f.seed(models.EnrollmentStatusWaitlisted, f.now)

	_, err := f.svc.Withdraw(context.Background(), waiting.ID, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestWithdrawAfterDeadline(t *testing.T) {
	f := newEnrollmentFixture(func(s *models.CourseSection) {
		s.CurrentEnrollment = 1
	})
	seated := f.seed(models.EnrollmentStatusEnrolled, f.now)
	f.svc.now = func() time.Time { return time.Date(2025, 10, 16, 9, 0, 0, 0, time.UTC) }

	_, err := f.svc.Withdraw(context.Background(), seated.ID, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDeadlinePassed.Code, appErrors.FromError(err).Code)
}

func TestConcurrentDropsPromoteEachWaiterExactlyOnce(t *testing.T) {
	f := newEnrollmentFixture(func(s *models.CourseSection) {
		s.CurrentEnrollment = 2
		s.WaitlistCount = 2
	})
	seatedA := f.seed(models.EnrollmentStatusEnrolled, f.now.Add(-96*time.Hour))
	seatedB := f.seed(models.EnrollmentStatusEnrolled, f.now.Add(-95*time.Hour))
	waiterA := f.seed(models.EnrollmentStatusWaitlisted, f.now.Add(-48*time.Hour))
	waiterB := f.seed(models.EnrollmentStatusWaitlisted, f.now.Add(-24*time.Hour))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, id := range []string{seatedA.ID, seatedB.ID} {
		wg.Add(1)
		go func(enrollmentID string) {
			defer wg.Done()
			_, err := f.svc.Drop(context.Background(), enrollmentID, "")
			errs <- err
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Two freed seats, two promotions, nobody double-promoted.
	assert.Equal(t, models.EnrollmentStatusEnrolled, f.repo.records[waiterA.ID].Status)
	assert.Equal(t, models.EnrollmentStatusEnrolled, f.repo.records[waiterB.ID].Status)
	section := f.sections.sections[f.sectionID]
	assert.Equal(t, 2, section.CurrentEnrollment)
	assert.Equal(t, 0, section.WaitlistCount)
	assert.Equal(t, 2, f.metrics.promotions)
}

func TestEnrollValidation(t *testing.T) {
	f := newEnrollmentFixture(nil)

	_, err := f.svc.Enroll(context.Background(), EnrollRequest{StudentID: "not-a-uuid", SectionID: f.sectionID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
