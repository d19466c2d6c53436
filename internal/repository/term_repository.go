package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/fazi-university/registry-api/internal/models"
)

// TermRepository reads academic terms. Terms are maintained by the
// calendar collaborator; this core never writes them.
type TermRepository struct {
	db *sqlx.DB
}

// NewTermRepository constructs the repository.
func NewTermRepository(db *sqlx.DB) *TermRepository {
	return &TermRepository{db: db}
}

// FindByID returns a term by its ID.
func (r *TermRepository) FindByID(ctx context.Context, id string) (*models.Term, error) {
	const query = `SELECT id, name, academic_year, start_date, end_date, add_drop_deadline,
        withdrawal_deadline, grades_deadline, is_active, created_at, updated_at
        FROM terms WHERE id = $1`
	var term models.Term
	if err := r.db.GetContext(ctx, &term, query, id); err != nil {
		return nil, err
	}
	return &term, nil
}
