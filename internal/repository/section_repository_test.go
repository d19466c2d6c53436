package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sectionRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "course_code", "section_number", "term_id", "max_enrollment", "current_enrollment",
		"waitlist_capacity", "waitlist_count", "is_open", "is_cancelled", "version", "created_at", "updated_at",
	}).AddRow("sec-1", "CS101", "001", "term-1", 30, 29, 10, 0, true, false, 7, now, now)
}

func TestSectionRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM course_sections WHERE id = \$1`).
		WithArgs("sec-1").
		WillReturnRows(sectionRows())

	section, err := repo.FindByID(context.Background(), "sec-1")
	require.NoError(t, err)
	require.Equal(t, "CS101", section.CourseCode)
	require.Equal(t, 29, section.CurrentEnrollment)
	require.Equal(t, 7, section.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryUpdateCountersBumpsVersion(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM course_sections WHERE id = \$1`).
		WithArgs("sec-1").
		WillReturnRows(sectionRows())
	section, err := repo.FindByID(context.Background(), "sec-1")
	require.NoError(t, err)

	section.CurrentEnrollment = 30
	mock.ExpectExec(`UPDATE course_sections\s+SET current_enrollment = \$2, waitlist_count = \$3, version = version \+ 1`).
		WithArgs("sec-1", 30, 0, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateCounters(context.Background(), db, section))
	require.Equal(t, 8, section.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSectionRepositoryUpdateCountersVersionConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSectionRepository(db)

	mock.ExpectQuery(`SELECT (.+) FROM course_sections WHERE id = \$1`).
		WithArgs("sec-1").
		WillReturnRows(sectionRows())
	section, err := repo.FindByID(context.Background(), "sec-1")
	require.NoError(t, err)

	mock.ExpectExec(`UPDATE course_sections`).
		WithArgs("sec-1", 29, 0, 7).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateCounters(context.Background(), db, section)
	require.ErrorIs(t, err, ErrVersionConflict)
	require.Equal(t, 7, section.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}
