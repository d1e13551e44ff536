package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/acadrec-api/internal/models"
	appErrors "github.com/noah-isme/acadrec-api/pkg/errors"
)

const maxPrerequisites = 10

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindDetailByID(ctx context.Context, id string) (*models.CourseDetail, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	SetPrerequisites(ctx context.Context, courseID string, prerequisiteIDs []string) error
	AllPrerequisiteEdges(ctx context.Context) (map[string][]string, error)
}

type programReader interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
}

// CreateCourseRequest describes course creation payload.
type CreateCourseRequest struct {
	Code      string `json:"code" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Credits   int    `json:"credits" validate:"required,min=2,max=6"`
	ProgramID string `json:"program_id" validate:"required"`
}

// UpdateCourseRequest describes course update payload.
type UpdateCourseRequest struct {
	Code    string `json:"code" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Credits int    `json:"credits" validate:"required,min=2,max=6"`
	Active  *bool  `json:"active"`
}

// SetPrerequisitesRequest replaces a course's prerequisite set.
type SetPrerequisitesRequest struct {
	Prerequisites []string `json:"prerequisites" validate:"required"`
}

// CourseService manages the course catalog and its prerequisite graph.
type CourseService struct {
	repo      courseRepository
	programs  programReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, programs programReader, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, programs: programs, validator: validate, logger: logger}
}

// Get returns a course with its prerequisites.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return detail, nil
}

// List returns courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create registers a new course in the catalog.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	if _, err := s.programs.FindByID(ctx, req.ProgramID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	course := &models.Course{Code: req.Code, Name: req.Name, Credits: req.Credits, ProgramID: req.ProgramID, Active: true}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update modifies course fields.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	course.Code = req.Code
	course.Name = req.Name
	course.Credits = req.Credits
	if req.Active != nil {
		course.Active = *req.Active
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// SetPrerequisites replaces the prerequisite set for a course. Self
// references, duplicates, unknown courses, oversized sets and edges that
// would close a cycle in the prerequisite graph are rejected.
func (s *CourseService) SetPrerequisites(ctx context.Context, id string, req SetPrerequisitesRequest) ([]string, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid prerequisites payload")
	}
	if len(req.Prerequisites) > maxPrerequisites {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a course cannot have more than 10 prerequisites")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	seen := make(map[string]struct{}, len(req.Prerequisites))
	for _, prerequisiteID := range req.Prerequisites {
		if prerequisiteID == id {
			return nil, appErrors.Clone(appErrors.ErrValidation, "a course cannot be its own prerequisite")
		}
		if _, dup := seen[prerequisiteID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate prerequisite")
		}
		seen[prerequisiteID] = struct{}{}
		if _, err := s.repo.FindByID(ctx, prerequisiteID); err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "prerequisite course not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite course")
		}
	}

	edges, err := s.repo.AllPrerequisiteEdges(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisite graph")
	}
	edges[id] = req.Prerequisites
	if hasCycle(edges, id) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "prerequisites would create a cycle")
	}

	if err := s.repo.SetPrerequisites(ctx, id, req.Prerequisites); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save prerequisites")
	}
	return req.Prerequisites, nil
}

// hasCycle walks the prerequisite graph from start looking for a path back
// to it.
func hasCycle(edges map[string][]string, start string) bool {
	visited := make(map[string]bool)
	var walk func(node string) bool
	walk = func(node string) bool {
		for _, next := range edges[node] {
			if next == start {
				return true
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			if walk(next) {
				return true
			}
		}
		return false
	}
	return walk(start)
}
