package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/acadrec-api/internal/models"
)

// Sentinel failures surfaced by the atomic registration path. The service
// layer maps them onto typed API errors.
var (
	ErrClassFull             = errors.New("class is full")
	ErrDuplicateRegistration = errors.New("duplicate active registration")
)

// uniqueViolation is the PostgreSQL error code backing the partial unique
// index on (student_id, class_id) WHERE status = 'ACTIVE'.
const uniqueViolation = "23505"

// RegistrationRepository handles persistence of course registrations.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// List returns registrations filtered by the provided criteria.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	base := `FROM registrations reg
LEFT JOIN students s ON s.id = reg.student_id
LEFT JOIN classes c ON c.id = reg.class_id
LEFT JOIN courses co ON co.id = c.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("reg.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("reg.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("reg.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Graded != nil {
		if *filter.Graded {
			conditions = append(conditions, "reg.grade IS NOT NULL")
		} else {
			conditions = append(conditions, "reg.grade IS NULL")
		}
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"registration_date": "reg.registration_date",
		"student_name":      "s.full_name",
		"course_name":       "co.name",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "registration_date"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "reg.registration_date"
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

	query := fmt.Sprintf(`SELECT reg.id, reg.student_id, reg.class_id, reg.registration_date, reg.grade,
        reg.status, reg.cancellation_date, reg.cancellation_reason, reg.created_at, reg.updated_at,
        s.full_name AS student_name, s.code AS student_code, c.name AS class_name,
        c.course_id AS course_id, co.name AS course_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var registrations []models.RegistrationDetail
	if err := r.db.SelectContext(ctx, &registrations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return registrations, total, nil
}

// FindByID returns a registration by its ID.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	const query = `SELECT id, student_id, class_id, registration_date, grade, status,
        cancellation_date, cancellation_reason, created_at, updated_at
        FROM registrations WHERE id = $1`
	var registration models.Registration
	if err := r.db.GetContext(ctx, &registration, query, id); err != nil {
		return nil, err
	}
	return &registration, nil
}

// ExistsActive checks if an active registration exists for the pair.
func (r *RegistrationRepository) ExistsActive(ctx context.Context, studentID, classID string) (bool, error) {
	const query = `SELECT 1 FROM registrations WHERE student_id = $1 AND class_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, classID, models.RegistrationStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active registration: %w", err)
	}
	return true, nil
}

// CountActive returns the number of active registrations for a class.
func (r *RegistrationRepository) CountActive(ctx context.Context, classID string) (int, error) {
	const query = `SELECT COUNT(*) FROM registrations WHERE class_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, classID, models.RegistrationStatusActive); err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

// CreateAtomic inserts a registration after re-validating seat capacity and
// duplicate rules against state isolated by a row lock on the class. The
// pre-checks done by the service are advisory; this transaction is what
// prevents two concurrent registrations from oversubscribing a class or
// doubling up on the same (student, class) pair.
func (r *RegistrationRepository) CreateAtomic(ctx context.Context, registration *models.Registration, maxStudents int) (err error) {
	if registration.ID == "" {
		registration.ID = uuid.NewString()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Serialise concurrent registrations into the same class.
	const lockQuery = `SELECT id FROM classes WHERE id = $1 FOR UPDATE`
	var lockedID string
	if err = tx.GetContext(ctx, &lockedID, lockQuery, registration.ClassID); err != nil {
		return fmt.Errorf("lock class row: %w", err)
	}

	const countQuery = `SELECT COUNT(*) FROM registrations WHERE class_id = $1 AND status = $2`
	var active int
	if err = tx.GetContext(ctx, &active, countQuery, registration.ClassID, models.RegistrationStatusActive); err != nil {
		return fmt.Errorf("recount active registrations: %w", err)
	}
	if active >= maxStudents {
		err = ErrClassFull
		return err
	}

	const dupQuery = `SELECT 1 FROM registrations WHERE student_id = $1 AND class_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err = tx.GetContext(ctx, &exists, dupQuery, registration.StudentID, registration.ClassID, models.RegistrationStatusActive); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("recheck duplicate registration: %w", err)
	}
	if err == nil {
		err = ErrDuplicateRegistration
		return err
	}
	err = nil

	const insertQuery = `INSERT INTO registrations (id, student_id, class_id, registration_date, grade,
        status, cancellation_date, cancellation_reason, created_at, updated_at)
        VALUES (:id, :student_id, :class_id, :registration_date, :grade,
        :status, :cancellation_date, :cancellation_reason, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insertQuery, registration); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			err = ErrDuplicateRegistration
			return err
		}
		return fmt.Errorf("insert registration: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

// Update persists the mutable state of a registration.
func (r *RegistrationRepository) Update(ctx context.Context, registration *models.Registration) error {
	registration.UpdatedAt = time.Now().UTC()
	const query = `UPDATE registrations SET grade = :grade, status = :status,
        cancellation_date = :cancellation_date, cancellation_reason = :cancellation_reason,
        updated_at = :updated_at WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, registration)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListGradedByStudent returns graded active registrations joined with their
// class and course for transcript generation. Inner joins drop orphaned
// class or course references.
func (r *RegistrationRepository) ListGradedByStudent(ctx context.Context, studentID string) ([]models.GradedRegistrationRow, error) {
	const query = `SELECT reg.id AS registration_id, co.id AS course_id, co.code AS course_code,
        co.name AS course_name, co.credits, reg.grade
        FROM registrations reg
        JOIN classes c ON c.id = reg.class_id
        JOIN courses co ON co.id = c.course_id
        WHERE reg.student_id = $1 AND reg.status = $2 AND reg.grade IS NOT NULL
        ORDER BY co.code`
	var rows []models.GradedRegistrationRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, models.RegistrationStatusActive); err != nil {
		return nil, fmt.Errorf("list graded registrations: %w", err)
	}
	return rows, nil
}

// ListPassedCourseIDs returns the distinct course IDs the student has passed
// through an active registration. Orphaned class or course references are
// excluded by the inner joins and therefore never count as completed.
func (r *RegistrationRepository) ListPassedCourseIDs(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT DISTINCT co.id
        FROM registrations reg
        JOIN classes c ON c.id = reg.class_id
        JOIN courses co ON co.id = c.course_id
        WHERE reg.student_id = $1 AND reg.status = $2 AND reg.grade >= $3`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, studentID, models.RegistrationStatusActive, models.PassingGrade); err != nil {
		return nil, fmt.Errorf("list passed courses: %w", err)
	}
	return ids, nil
}
