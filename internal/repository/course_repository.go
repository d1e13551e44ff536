package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/acadrec-api/internal/models"
)

// CourseRepository handles persistence of courses and their prerequisites.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, code, name, credits, program_id, active, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindDetailByID returns a course with its prerequisite course IDs.
func (r *CourseRepository) FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prerequisites, err := r.ListPrerequisites(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.CourseDetail{Course: *course, Prerequisites: prerequisites}, nil
}

// ListPrerequisites returns the prerequisite course IDs for a course.
func (r *CourseRepository) ListPrerequisites(ctx context.Context, courseID string) ([]string, error) {
	const query = `SELECT prerequisite_id FROM course_prerequisites WHERE course_id = $1 ORDER BY prerequisite_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, courseID); err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}
	return ids, nil
}

// AllPrerequisiteEdges returns the full prerequisite graph as adjacency
// lists keyed by course ID.
func (r *CourseRepository) AllPrerequisiteEdges(ctx context.Context) (map[string][]string, error) {
	const query = `SELECT course_id, prerequisite_id FROM course_prerequisites`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load prerequisite edges: %w", err)
	}
	defer rows.Close()

	edges := make(map[string][]string)
	for rows.Next() {
		var courseID, prerequisiteID string
		if err := rows.Scan(&courseID, &prerequisiteID); err != nil {
			return nil, fmt.Errorf("scan prerequisite edge: %w", err)
		}
		edges[courseID] = append(edges[courseID], prerequisiteID)
	}
	return edges, rows.Err()
}

// List returns courses filtered by the provided criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	base := `FROM courses`
	var conditions []string
	var args []interface{}

	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT id, code, name, credits, program_id, active, created_at, updated_at
        %s ORDER BY code %s LIMIT %d OFFSET %d`, base+clause, order, size, offset)

	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Create persists a new course record.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, code, name, credits, program_id, active, created_at, updated_at)
        VALUES (:id, :code, :name, :credits, :program_id, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update persists changes to a course record.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET code = :code, name = :name, credits = :credits,
        active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// SetPrerequisites replaces the prerequisite set for a course in one
// transaction.
func (r *CourseRepository) SetPrerequisites(ctx context.Context, courseID string, prerequisiteIDs []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin prerequisite transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM course_prerequisites WHERE course_id = $1`, courseID); err != nil {
		return fmt.Errorf("clear prerequisites: %w", err)
	}
	for _, prerequisiteID := range prerequisiteIDs {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO course_prerequisites (course_id, prerequisite_id) VALUES ($1, $2)`,
			courseID, prerequisiteID); err != nil {
			return fmt.Errorf("insert prerequisite: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit prerequisites: %w", err)
	}
	return nil
}
