package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/fazi-university/registry-api/internal/models"
)

const sectionColumns = `id, course_code, section_number, term_id, max_enrollment, current_enrollment,
        waitlist_capacity, waitlist_count, is_open, is_cancelled, version, created_at, updated_at`

// SectionRepository handles persistence of course sections. The counter
// pair is only written through UpdateCounters, which carries the
// optimistic version check.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByID returns a section by its ID.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.CourseSection, error) {
	return r.FindByIDTx(ctx, r.db, id)
}

// FindByIDTx returns a section using the provided executor so it can
// participate in a capacity transaction.
func (r *SectionRepository) FindByIDTx(ctx context.Context, q sqlx.ExtContext, id string) (*models.CourseSection, error) {
	query := fmt.Sprintf(`SELECT %s FROM course_sections WHERE id = $1`, sectionColumns)
	var section models.CourseSection
	if err := sqlx.GetContext(ctx, q, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// UpdateCounters persists the counter pair guarded by the version the
// caller read. Zero rows affected means a concurrent writer won and the
// caller must retry from a fresh read.
func (r *SectionRepository) UpdateCounters(ctx context.Context, q sqlx.ExtContext, section *models.CourseSection) error {
	const query = `UPDATE course_sections
        SET current_enrollment = $2, waitlist_count = $3, version = version + 1, updated_at = NOW()
        WHERE id = $1 AND version = $4`
	result, err := q.ExecContext(ctx, query, section.ID, section.CurrentEnrollment, section.WaitlistCount, section.Version)
	if err != nil {
		return fmt.Errorf("update section counters: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update section counters: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	section.Version++
	return nil
}
