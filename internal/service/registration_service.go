package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/acadrec-api/internal/models"
	"github.com/noah-isme/acadrec-api/internal/repository"
	appErrors "github.com/noah-isme/acadrec-api/pkg/errors"
)

type registrationRepository interface {
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	ExistsActive(ctx context.Context, studentID, classID string) (bool, error)
	CreateAtomic(ctx context.Context, registration *models.Registration, maxStudents int) error
	Update(ctx context.Context, registration *models.Registration) error
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListPrerequisites(ctx context.Context, courseID string) ([]string, error)
}

type prerequisiteGate interface {
	HasCompletedAll(ctx context.Context, studentID string, prerequisiteIDs []string) (bool, error)
}

type seatGate interface {
	HasAvailableSeats(ctx context.Context, classID string) (bool, error)
	ActiveCount(ctx context.Context, classID string) (int, error)
}

// RegisterCourseRequest describes a registration creation payload.
type RegisterCourseRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

// CancelRegistrationRequest describes a cancellation payload.
type CancelRegistrationRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// GradeRequest carries a grade value for assign/update operations.
type GradeRequest struct {
	Grade float64 `json:"grade" validate:"min=0,max=10"`
}

// RegistrationService orchestrates course registration workflows: the atomic
// register sequence, the cancellation/grade state machine and reactivation.
type RegistrationService struct {
	repo          registrationRepository
	students      studentReader
	classes       classReader
	courses       courseReader
	prerequisites prerequisiteGate
	capacity      seatGate
	cache         *CacheService
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	txTimeout     time.Duration
}

// NewRegistrationService constructs RegistrationService.
func NewRegistrationService(
	repo registrationRepository,
	students studentReader,
	classes classReader,
	courses courseReader,
	prerequisites prerequisiteGate,
	capacity seatGate,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	txTimeout time.Duration,
) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if txTimeout <= 0 {
		txTimeout = 5 * time.Second
	}
	return &RegistrationService{
		repo:          repo,
		students:      students,
		classes:       classes,
		courses:       courses,
		prerequisites: prerequisites,
		capacity:      capacity,
		cache:         cache,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		txTimeout:     txTimeout,
	}
}

// Register enrolls a student into a class section. Prerequisite, capacity
// and duplicate rules are pre-checked here for fast failure, then re-checked
// inside the repository transaction which is authoritative under concurrency.
func (s *RegistrationService) Register(ctx context.Context, req RegisterCourseRequest) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student inactive")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	course, err := s.courses.FindByID(ctx, class.CourseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, "course inactive or missing")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course inactive or missing")
	}

	prerequisiteIDs, err := s.courses.ListPrerequisites(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load prerequisites")
	}
	completed, err := s.prerequisites.HasCompletedAll(ctx, req.StudentID, prerequisiteIDs)
	if err != nil {
		return nil, err
	}
	if !completed {
		return nil, appErrors.Clone(appErrors.ErrValidation, "prerequisites not met")
	}

	available, err := s.capacity.HasAvailableSeats(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class is full")
	}

	exists, err := s.repo.ExistsActive(ctx, req.StudentID, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate registration")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already registered for this class")
	}

	registration, err := models.NewRegistration(req.StudentID, req.ClassID)
	if err != nil {
		return nil, err
	}
	if err := registration.Validate(); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()
	start := time.Now()
	err = s.repo.CreateAtomic(txCtx, registration, class.MaxStudents)
	s.metrics.ObserveDBQuery("registration_create", time.Since(start))
	if err != nil {
		mapped := s.mapRegisterError(err)
		s.metrics.RecordRegistration(appErrors.FromError(mapped).Code)
		return nil, mapped
	}
	s.metrics.RecordRegistration("created")

	s.invalidateTranscript(ctx, req.StudentID)
	s.logger.Info("registration created",
		zap.String("registration_id", registration.ID),
		zap.String("student_id", req.StudentID),
		zap.String("class_id", req.ClassID),
	)
	return registration, nil
}

// mapRegisterError translates transactional outcomes into typed API errors.
// Deterministic rejections surface unmodified; timeouts become retryable
// because the duplicate check makes Register idempotent per (student, class).
func (s *RegistrationService) mapRegisterError(err error) error {
	switch {
	case errors.Is(err, repository.ErrClassFull):
		return appErrors.Clone(appErrors.ErrConflict, "class is full")
	case errors.Is(err, repository.ErrDuplicateRegistration):
		return appErrors.Clone(appErrors.ErrConflict, "student already registered for this class")
	case errors.Is(err, context.DeadlineExceeded):
		return appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "registration timed out, retry with the same inputs")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create registration")
	}
}

// Get returns a registration by ID.
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.Registration, error) {
	registration, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return registration, nil
}

// List returns registrations with pagination metadata.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, *models.Pagination, error) {
	registrations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return registrations, pagination, nil
}

// Cancel marks a registration cancelled with the provided reason.
func (s *RegistrationService) Cancel(ctx context.Context, id string, req CancelRegistrationRequest) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancellation payload")
	}
	registration, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := registration.Cancel(req.Reason); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, registration); err != nil {
		return nil, err
	}
	s.invalidateTranscript(ctx, registration.StudentID)
	return registration, nil
}

// AssignGrade sets the grade on an active registration.
func (s *RegistrationService) AssignGrade(ctx context.Context, id string, req GradeRequest) (*models.Registration, error) {
	return s.applyGrade(ctx, id, req, func(r *models.Registration) error {
		return r.AssignGrade(req.Grade)
	})
}

// UpdateGrade replaces an already assigned grade.
func (s *RegistrationService) UpdateGrade(ctx context.Context, id string, req GradeRequest) (*models.Registration, error) {
	return s.applyGrade(ctx, id, req, func(r *models.Registration) error {
		return r.UpdateGrade(req.Grade)
	})
}

func (s *RegistrationService) applyGrade(ctx context.Context, id string, req GradeRequest, mutate func(*models.Registration) error) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	registration, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(registration); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, registration); err != nil {
		return nil, err
	}
	s.invalidateTranscript(ctx, registration.StudentID)
	return registration, nil
}

// Reactivate returns a cancelled registration to ACTIVE. The single-active
// invariant and seat capacity are re-validated first.
func (s *RegistrationService) Reactivate(ctx context.Context, id string) (*models.Registration, error) {
	registration, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if registration.Status == models.RegistrationStatusActive {
		return nil, appErrors.Clone(appErrors.ErrValidation, "registration already active")
	}
	exists, err := s.repo.ExistsActive(ctx, registration.StudentID, registration.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate registration")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already registered for this class")
	}
	available, err := s.capacity.HasAvailableSeats(ctx, registration.ClassID)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, appErrors.Clone(appErrors.ErrConflict, "class is full")
	}
	if err := registration.Reactivate(); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, registration); err != nil {
		return nil, err
	}
	s.invalidateTranscript(ctx, registration.StudentID)
	return registration, nil
}

// ActiveCount exposes the number of occupied seats for a class.
func (s *RegistrationService) ActiveCount(ctx context.Context, classID string) (int, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return s.capacity.ActiveCount(ctx, classID)
}

func (s *RegistrationService) persist(ctx context.Context, registration *models.Registration) error {
	if err := s.repo.Update(ctx, registration); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update registration")
	}
	return nil
}

func (s *RegistrationService) invalidateTranscript(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, transcriptCacheKey(studentID)); err != nil {
		s.logger.Warn("transcript cache invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
}
