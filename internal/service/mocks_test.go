package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fazi-university/registry-api/internal/models"
	"github.com/fazi-university/registry-api/internal/repository"
)

type mockStore struct {
	txCount int
}

func (m *mockStore) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	m.txCount++
	return fn(nil)
}

type mockSectionRepo struct {
	mu        sync.Mutex
	sections  map[string]*models.CourseSection
	conflicts int
	updates   int
}

func (m *mockSectionRepo) FindByID(ctx context.Context, id string) (*models.CourseSection, error) {
	return m.FindByIDTx(ctx, nil, id)
}

func (m *mockSectionRepo) FindByIDTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.CourseSection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sections[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	section := *stored
	return &section, nil
}

func (m *mockSectionRepo) UpdateCounters(ctx context.Context, q sqlx.ExtContext, section *models.CourseSection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.conflicts > 0 {
		m.conflicts--
		return repository.ErrVersionConflict
	}
	stored := m.sections[section.ID]
	stored.CurrentEnrollment = section.CurrentEnrollment
	stored.WaitlistCount = section.WaitlistCount
	stored.Version++
	section.Version++
	return nil
}

type mockEnrollmentRepo struct {
	mu      sync.Mutex
	records map[string]*models.Enrollment
}

func newMockEnrollmentRepo() *mockEnrollmentRepo {
	return &mockEnrollmentRepo{records: make(map[string]*models.Enrollment)}
}

func (m *mockEnrollmentRepo) put(e models.Enrollment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.records[e.ID] = &e
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Enrollment
	for _, e := range m.records {
		if filter.StudentID != "" && filter.StudentID != e.StudentID {
			continue
		}
		if filter.SectionID != "" && filter.SectionID != e.SectionID {
			continue
		}
		if filter.Status != "" && filter.Status != e.Status {
			continue
		}
		result = append(result, *e)
	}
	return result, len(result), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	return m.FindByIDTx(ctx, nil, id)
}

func (m *mockEnrollmentRepo) FindByIDTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	enrollment := *stored
	return &enrollment, nil
}

func (m *mockEnrollmentRepo) ExistsActive(ctx context.Context, q sqlx.ExtContext, studentID, sectionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.records {
		if e.StudentID == studentID && e.SectionID == sectionID && e.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, q sqlx.ExtContext, enrollment *models.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = now
	}
	enrollment.CreatedAt = now
	stored := *enrollment
	m.records[enrollment.ID] = &stored
	return nil
}

func (m *mockEnrollmentRepo) MarkDropped(ctx context.Context, q sqlx.ExtContext, id string, at time.Time, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.records[id]
	stored.Status = models.EnrollmentStatusDropped
	stored.DropDate = &at
	return nil
}

func (m *mockEnrollmentRepo) MarkWithdrawn(ctx context.Context, q sqlx.ExtContext, id string, at time.Time, grade string, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.records[id]
	stored.Status = models.EnrollmentStatusWithdrawn
	stored.WithdrawalDate = &at
	stored.Grade = &grade
	zero := 0.0
	stored.GradePoints = &zero
	return nil
}

func (m *mockEnrollmentRepo) NextWaitlisted(ctx context.Context, q sqlx.ExtContext, sectionID string) (*models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var waiting []*models.Enrollment
	for _, e := range m.records {
		if e.SectionID == sectionID && e.Status == models.EnrollmentStatusWaitlisted {
			waiting = append(waiting, e)
		}
	}
	if len(waiting) == 0 {
		return nil, nil
	}
	sort.Slice(waiting, func(i, j int) bool {
		if !waiting[i].EnrollmentDate.Equal(waiting[j].EnrollmentDate) {
			return waiting[i].EnrollmentDate.Before(waiting[j].EnrollmentDate)
		}
		if !waiting[i].CreatedAt.Equal(waiting[j].CreatedAt) {
			return waiting[i].CreatedAt.Before(waiting[j].CreatedAt)
		}
		return waiting[i].ID < waiting[j].ID
	})
	head := *waiting[0]
	return &head, nil
}

func (m *mockEnrollmentRepo) Promote(ctx context.Context, q sqlx.ExtContext, id string, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id].Status = models.EnrollmentStatusEnrolled
	return nil
}

func (m *mockEnrollmentRepo) UpdateGrade(ctx context.Context, id string, grade string, points float64, numeric *float64, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.records[id]
	if stored.IsGradeFinalized {
		return nil
	}
	stored.Grade = &grade
	stored.GradePoints = &points
	stored.NumericGrade = numeric
	return nil
}

func (m *mockEnrollmentRepo) ListBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Enrollment
	for _, e := range m.records {
		if e.SectionID == sectionID {
			result = append(result, *e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EnrollmentDate.Before(result[j].EnrollmentDate) })
	return result, nil
}

func (m *mockEnrollmentRepo) ListBySectionAndStatus(ctx context.Context, q sqlx.ExtContext, sectionID string, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []models.Enrollment
	for _, e := range m.records {
		if e.SectionID == sectionID && e.Status == status {
			result = append(result, *e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockEnrollmentRepo) Finalize(ctx context.Context, q sqlx.ExtContext, id string, status models.EnrollmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.records[id]
	stored.Status = status
	stored.IsGradeFinalized = true
	return nil
}

type mockTermRepo struct {
	terms map[string]*models.Term
}

func (m *mockTermRepo) FindByID(ctx context.Context, id string) (*models.Term, error) {
	term, ok := m.terms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return term, nil
}

type mockAudit struct {
	events []models.AuditEvent
}

func (m *mockAudit) Record(event models.AuditEvent) {
	m.events = append(m.events, event)
}

func (m *mockAudit) actions() []string {
	var actions []string
	for _, e := range m.events {
		actions = append(actions, e.Action)
	}
	return actions
}

type mockInvalidator struct {
	keys []string
}

func (m *mockInvalidator) Invalidate(ctx context.Context, sectionID string) {
	m.keys = append(m.keys, sectionID)
}

type mockMetrics struct {
	decisions  map[models.EnrollmentStatus]int
	promotions int
	contention int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{decisions: make(map[models.EnrollmentStatus]int)}
}

func (m *mockMetrics) EnrollmentDecision(status models.EnrollmentStatus) {
	m.decisions[status]++
}

func (m *mockMetrics) WaitlistPromotion() {
	m.promotions++
}

func (m *mockMetrics) SectionContention() {
	m.contention++
}

func testGradePolicy() *models.GradePolicy {
	return models.NewGradePolicy(map[string]float64{
		"A": 4.0, "A-": 3.7, "B+": 3.3, "B": 3.0, "C": 2.0, "D": 1.0,
		"F": 0.0, "P": 0.0, "NP": 0.0, "I": 0.0, "W": 0.0,
	}, []string{"F", "NP"}, "I", "W", []string{"W", "I", "P", "NP"})
}
