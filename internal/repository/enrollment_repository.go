package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fazi-university/registry-api/internal/models"
)

const enrollmentColumns = `id, student_id, section_id, status, enrollment_date, drop_date, withdrawal_date,
        grade, grade_points, numeric_grade, is_grade_finalized, notes, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollment records.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	base := `FROM enrollments e`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrollment_date": "e.enrollment_date",
		"status":          "e.status",
		"student_id":      "e.student_id",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "enrollment_date"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.enrollment_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		enrollmentColumns, base+clause, orderBy, order, size, offset)

	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	return r.FindByIDTx(ctx, r.db, id)
}

// FindByIDTx returns an enrollment using the provided executor.
func (r *EnrollmentRepository) FindByIDTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, q, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ExistsActive checks for an ENROLLED or WAITLISTED record for the
// (student, section) pair. Re-enrollment after a drop is permitted, so
// terminal records do not count.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, q sqlx.ExtContext, studentID, sectionID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND section_id = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	err := sqlx.GetContext(ctx, q, &exists, query, studentID, sectionID,
		models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, q sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = now
	}
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, section_id, status, enrollment_date, drop_date,
        withdrawal_date, grade, grade_points, numeric_grade, is_grade_finalized, notes, created_at, updated_at)
        VALUES (:id, :student_id, :section_id, :status, :enrollment_date, :drop_date,
        :withdrawal_date, :grade, :grade_points, :numeric_grade, :is_grade_finalized, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// MarkDropped transitions a record to DROPPED stamping the drop date.
func (r *EnrollmentRepository) MarkDropped(ctx context.Context, q sqlx.ExtContext, id string, at time.Time, note string) error {
	const query = `UPDATE enrollments SET status = $2, drop_date = $3, notes = CONCAT(notes, $4), updated_at = NOW() WHERE id = $1`
	if _, err := q.ExecContext(ctx, query, id, models.EnrollmentStatusDropped, at, noteLine(note)); err != nil {
		return fmt.Errorf("mark enrollment dropped: %w", err)
	}
	return nil
}

// MarkWithdrawn transitions a record to WITHDRAWN, recording the W
// grade with zero points.
func (r *EnrollmentRepository) MarkWithdrawn(ctx context.Context, q sqlx.ExtContext, id string, at time.Time, grade string, note string) error {
	const query = `UPDATE enrollments SET status = $2, withdrawal_date = $3, grade = $4, grade_points = 0,
        notes = CONCAT(notes, $5), updated_at = NOW() WHERE id = $1`
	if _, err := q.ExecContext(ctx, query, id, models.EnrollmentStatusWithdrawn, at, grade, noteLine(note)); err != nil {
		return fmt.Errorf("mark enrollment withdrawn: %w", err)
	}
	return nil
}

// NextWaitlisted returns the earliest-queued WAITLISTED record for a
// section: FIFO by enrollment date, stable on creation order then id.
func (r *EnrollmentRepository) NextWaitlisted(ctx context.Context, q sqlx.ExtContext, sectionID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE section_id = $1 AND status = $2
        ORDER BY enrollment_date ASC, created_at ASC, id ASC LIMIT 1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, q, &enrollment, query, sectionID, models.EnrollmentStatusWaitlisted); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("next waitlisted enrollment: %w", err)
	}
	return &enrollment, nil
}

// Promote flips a waitlisted record to ENROLLED appending an audit note.
func (r *EnrollmentRepository) Promote(ctx context.Context, q sqlx.ExtContext, id string, note string) error {
	const query = `UPDATE enrollments SET status = $2, notes = CONCAT(notes, $3), updated_at = NOW() WHERE id = $1`
	if _, err := q.ExecContext(ctx, query, id, models.EnrollmentStatusEnrolled, noteLine(note)); err != nil {
		return fmt.Errorf("promote enrollment: %w", err)
	}
	return nil
}

// UpdateGrade writes an in-progress grade. Finalized records are guarded
// in SQL as well as in the service.
func (r *EnrollmentRepository) UpdateGrade(ctx context.Context, id string, grade string, points float64, numeric *float64, notes string) error {
	const query = `UPDATE enrollments SET grade = $2, grade_points = $3, numeric_grade = $4,
        notes = CONCAT(notes, $5), updated_at = NOW()
        WHERE id = $1 AND is_grade_finalized = FALSE`
	if _, err := r.db.ExecContext(ctx, query, id, grade, points, numeric, noteLine(notes)); err != nil {
		return fmt.Errorf("update enrollment grade: %w", err)
	}
	return nil
}

// ListBySection returns every record for a section in registration order.
func (r *EnrollmentRepository) ListBySection(ctx context.Context, sectionID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE section_id = $1
        ORDER BY enrollment_date ASC, created_at ASC, id ASC`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, sectionID); err != nil {
		return nil, fmt.Errorf("list section roster: %w", err)
	}
	return enrollments, nil
}

// ListBySectionAndStatus returns a section's records in one status.
func (r *EnrollmentRepository) ListBySectionAndStatus(ctx context.Context, q sqlx.ExtContext, sectionID string, status models.EnrollmentStatus) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE section_id = $1 AND status = $2
        ORDER BY enrollment_date ASC, created_at ASC, id ASC`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := sqlx.SelectContext(ctx, q, &enrollments, query, sectionID, status); err != nil {
		return nil, fmt.Errorf("list section enrollments: %w", err)
	}
	return enrollments, nil
}

// Finalize stamps the terminal academic status and the one-way
// finalized flag for a single enrollment within the finalize batch.
func (r *EnrollmentRepository) Finalize(ctx context.Context, q sqlx.ExtContext, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, is_grade_finalized = TRUE, updated_at = NOW() WHERE id = $1`
	if _, err := q.ExecContext(ctx, query, id, status); err != nil {
		return fmt.Errorf("finalize enrollment: %w", err)
	}
	return nil
}

func noteLine(note string) string {
	if note == "" {
		return ""
	}
	return "\n" + note
}
