package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acadrec-api/internal/models"
)

func newRegistrationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func activeRegistration() *models.Registration {
	now := time.Now().UTC()
	return &models.Registration{
		ID:               "reg-1",
		StudentID:        "stu-1",
		ClassID:          "class-1",
		RegistrationDate: now,
		Status:           models.RegistrationStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestRegistrationRepositoryCountActive(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations WHERE class_id = $1 AND status = $2")).
		WithArgs("class-1", models.RegistrationStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(17))

	count, err := repo.CountActive(context.Background(), "class-1")
	require.NoError(t, err)
	require.Equal(t, 17, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery("SELECT 1 FROM registrations WHERE student_id").
		WithArgs("stu-1", "class-1", models.RegistrationStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsActive(context.Background(), "stu-1", "class-1")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery("SELECT 1 FROM registrations WHERE student_id").
		WithArgs("stu-2", "class-1", models.RegistrationStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err = repo.ExistsActive(context.Background(), "stu-2", "class-1")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateAtomicSuccess(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM classes WHERE id").
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("class-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations")).
		WithArgs("class-1", models.RegistrationStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT 1 FROM registrations").
		WithArgs("stu-1", "class-1", models.RegistrationStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectExec("INSERT INTO registrations").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.CreateAtomic(context.Background(), activeRegistration(), 30)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateAtomicClassFull(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM classes WHERE id").
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("class-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations")).
		WithArgs("class-1", models.RegistrationStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectRollback()

	err := repo.CreateAtomic(context.Background(), activeRegistration(), 30)
	require.ErrorIs(t, err, ErrClassFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryCreateAtomicDuplicate(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM classes WHERE id").
		WithArgs("class-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("class-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM registrations")).
		WithArgs("class-1", models.RegistrationStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("SELECT 1 FROM registrations").
		WithArgs("stu-1", "class-1", models.RegistrationStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.CreateAtomic(context.Background(), activeRegistration(), 30)
	require.ErrorIs(t, err, ErrDuplicateRegistration)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryListPassedCourseIDs(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	mock.ExpectQuery("SELECT DISTINCT co.id").
		WithArgs("stu-1", models.RegistrationStatusActive, models.PassingGrade).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("course-1").AddRow("course-2"))

	ids, err := repo.ListPassedCourseIDs(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Equal(t, []string{"course-1", "course-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegistrationRepositoryListGradedByStudent(t *testing.T) {
	db, mock, cleanup := newRegistrationRepoMock(t)
	defer cleanup()
	repo := NewRegistrationRepository(db)

	rows := sqlmock.NewRows([]string{"registration_id", "course_id", "course_code", "course_name", "credits", "grade"}).
		AddRow("reg-1", "course-1", "MATH101", "Calculus I", 3, 8.0).
		AddRow("reg-2", "course-2", "PHYS101", "Mechanics", 4, 6.0)
	mock.ExpectQuery("SELECT reg.id AS registration_id").
		WithArgs("stu-1", models.RegistrationStatusActive).
		WillReturnRows(rows)

	graded, err := repo.ListGradedByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, graded, 2)
	require.Equal(t, 3, graded[0].Credits)
	require.Equal(t, 8.0, graded[0].Grade)
	require.NoError(t, mock.ExpectationsWereMet())
}
