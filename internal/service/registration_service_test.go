package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/acadrec-api/internal/models"
	"github.com/noah-isme/acadrec-api/internal/repository"
	appErrors "github.com/noah-isme/acadrec-api/pkg/errors"
)

type mockRegistrationRepo struct {
	registrations map[string]models.Registration
	activePairs   map[string]bool
	created       *models.Registration
	createErr     error
	updated       []string
}

func (m *mockRegistrationRepo) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	return nil, 0, nil
}

func (m *mockRegistrationRepo) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	if r, ok := m.registrations[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRegistrationRepo) ExistsActive(ctx context.Context, studentID, classID string) (bool, error) {
	if m.activePairs == nil {
		return false, nil
	}
	return m.activePairs[studentID+"/"+classID], nil
}

func (m *mockRegistrationRepo) CreateAtomic(ctx context.Context, registration *models.Registration, maxStudents int) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.registrations == nil {
		m.registrations = make(map[string]models.Registration)
	}
	if registration.ID == "" {
		registration.ID = "new-reg"
	}
	m.registrations[registration.ID] = *registration
	m.created = registration
	return nil
}

func (m *mockRegistrationRepo) Update(ctx context.Context, registration *models.Registration) error {
	if _, ok := m.registrations[registration.ID]; !ok {
		return sql.ErrNoRows
	}
	m.registrations[registration.ID] = *registration
	m.updated = append(m.updated, registration.ID)
	return nil
}

type mockStudentReader struct {
	students map[string]*models.Student
}

func (m *mockStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

type mockClassReader struct {
	classes map[string]*models.Class
}

func (m *mockClassReader) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type mockCourseReader struct {
	courses       map[string]*models.Course
	prerequisites map[string][]string
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseReader) ListPrerequisites(ctx context.Context, courseID string) ([]string, error) {
	return m.prerequisites[courseID], nil
}

type fakePrerequisiteGate struct {
	satisfied bool
}

func (f *fakePrerequisiteGate) HasCompletedAll(ctx context.Context, studentID string, prerequisiteIDs []string) (bool, error) {
	if len(prerequisiteIDs) == 0 {
		return true, nil
	}
	return f.satisfied, nil
}

type fakeSeatGate struct {
	seats bool
	count int
}

func (f *fakeSeatGate) HasAvailableSeats(ctx context.Context, classID string) (bool, error) {
	return f.seats, nil
}

func (f *fakeSeatGate) ActiveCount(ctx context.Context, classID string) (int, error) {
	return f.count, nil
}

func newRegistrationFixture() (*mockRegistrationRepo, *RegistrationService) {
	repo := &mockRegistrationRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", FullName: "Ana Souza", Active: true},
		"stu-2": {ID: "stu-2", FullName: "Rui Costa", Active: false},
	}}
	classes := &mockClassReader{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", CourseID: "course-1", MaxStudents: 30},
		"class-2": {ID: "class-2", CourseID: "course-2", MaxStudents: 30},
	}}
	courses := &mockCourseReader{
		courses: map[string]*models.Course{
			"course-1": {ID: "course-1", Active: true, Credits: 4},
			"course-2": {ID: "course-2", Active: false, Credits: 3},
		},
		prerequisites: map[string][]string{},
	}
	svc := NewRegistrationService(repo, students, classes, courses,
		&fakePrerequisiteGate{satisfied: true}, &fakeSeatGate{seats: true},
		nil, nil, validator.New(), zap.NewNop(), time.Second)
	return repo, svc
}

func TestRegistrationServiceRegister(t *testing.T) {
	repo, svc := newRegistrationFixture()

	registration, err := svc.Register(context.Background(), RegisterCourseRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.NoError(t, err)
	require.NotNil(t, repo.created)
	assert.Equal(t, models.RegistrationStatusActive, registration.Status)
	assert.Equal(t, "stu-1", registration.StudentID)
	assert.Nil(t, registration.Grade)
}

func TestRegistrationServiceRegisterStudentNotFound(t *testing.T) {
	_, svc := newRegistrationFixture()

	_, err := svc.Register(context.Background(), RegisterCourseRequest{StudentID: "ghost", ClassID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceRegisterInactiveStudent(t *testing.T) {
	_, svc := newRegistrationFixture()

	_, err := svc.Register(context.Background(), RegisterCourseRequest{StudentID: "stu-2", ClassID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceRegisterInactiveCourse(t *testing.T) {
	_, svc := newRegistrationFixture()

	_, err := svc.Register(context.Background(), RegisterCourseRequest{StudentID: "stu-1", ClassID: "class-2"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "course inactive or missing", appErr.Message)
}

func TestRegistrationServiceRegisterPrerequisitesNotMet(t *testing.T) {
	repo := &mockRegistrationRepo{}
	students := &mockStudentReader{students: map[string]*models.Student{"stu-1": {ID: "stu-1", Active: true}}}
	classes := &mockClassReader{classes: map[string]*models.Class{"class-1": {ID: "class-1", CourseID: "course-1", MaxStudents: 5}}}
	courses := &mockCourseReader{
		courses:       map[string]*models.Course{"course-1": {ID: "course-1", Active: true}},
		prerequisites: map[string][]string{"course-1": {"course-0"}},
	}
	svc := NewRegistrationService(repo, students, classes, courses,
		&fakePrerequisiteGate{satisfied: false}, &fakeSeatGate{seats: true},
		nil, nil, validator.New(), zap.NewNop(), time.Second)

	_, err := svc.Register(context.Background(), RegisterCourseRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "prerequisites not met", appErr.Message)
	assert.Nil(t, repo.created)
}

func TestRegistrationServiceRegisterClassFull(t *testing.T) {
	repo, _ := newRegistrationFixture()
	students := &mockStudentReader{students: map[string]*models.Student{"stu-1": {ID: "stu-1", Active: true}}}
	classes := &mockClassReader{classes: map[string]*models.Class{"class-1": {ID: "class-1", CourseID: "course-1", MaxStudents: 1}}}
	courses := &mockCourseReader{courses: map[string]*models.Course{"course-1": {ID: "course-1", Active: true}}}
	svc := NewRegistrationService(repo, students, classes, courses,
		&fakePrerequisiteGate{satisfied: true}, &fakeSeatGate{seats: false, count: 1},
		nil, nil, validator.New(), zap.NewNop(), time.Second)

	_, err := svc.Register(context.Background(), RegisterCourseRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceRegisterDuplicate(t *testing.T) {
	repo, svc := newRegistrationFixture()
	repo.activePairs = map[string]bool{"stu-1/class-1": true}

	_, err := svc.Register(context.Background(), RegisterCourseRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "student already registered for this class", appErr.Message)
}

func TestRegistrationServiceRegisterMapsAtomicFailures(t *testing.T) {
	repo, svc := newRegistrationFixture()

	repo.createErr = repository.ErrClassFull
	_, err := svc.Register(context.Background(), RegisterCourseRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	repo.createErr = repository.ErrDuplicateRegistration
	_, err = svc.Register(context.Background(), RegisterCourseRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	repo.createErr = context.DeadlineExceeded
	_, err = svc.Register(context.Background(), RegisterCourseRequest{StudentID: "stu-1", ClassID: "class-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)
	assert.True(t, appErrors.IsRetryable(err))
}

func TestRegistrationServiceCancelClearsGrade(t *testing.T) {
	repo, svc := newRegistrationFixture()
	grade := 9.0
	repo.registrations = map[string]models.Registration{"reg-1": {
		ID: "reg-1", StudentID: "stu-1", ClassID: "class-1",
		RegistrationDate: time.Now().UTC(), Grade: &grade,
		Status: models.RegistrationStatusActive,
	}}

	cancelled, err := svc.Cancel(context.Background(), "reg-1", CancelRegistrationRequest{Reason: "withdrawn"})
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.Grade)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "withdrawn", *cancelled.CancellationReason)

	// Grading a cancelled registration is rejected.
	_, err = svc.AssignGrade(context.Background(), "reg-1", GradeRequest{Grade: 7})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceCancelNotFound(t *testing.T) {
	_, svc := newRegistrationFixture()

	_, err := svc.Cancel(context.Background(), "ghost", CancelRegistrationRequest{Reason: "whatever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRegistrationServiceAssignAndUpdateGrade(t *testing.T) {
	repo, svc := newRegistrationFixture()
	repo.registrations = map[string]models.Registration{"reg-1": {
		ID: "reg-1", StudentID: "stu-1", ClassID: "class-1",
		RegistrationDate: time.Now().UTC(), Status: models.RegistrationStatusActive,
	}}

	// UpdateGrade before any grade exists fails.
	_, err := svc.UpdateGrade(context.Background(), "reg-1", GradeRequest{Grade: 6})
	require.Error(t, err)

	graded, err := svc.AssignGrade(context.Background(), "reg-1", GradeRequest{Grade: 4.5})
	require.NoError(t, err)
	require.NotNil(t, graded.Grade)
	assert.Equal(t, 4.5, *graded.Grade)
	assert.Equal(t, models.GradeStatusFailed, graded.GradeStatus())

	updated, err := svc.UpdateGrade(context.Background(), "reg-1", GradeRequest{Grade: 8})
	require.NoError(t, err)
	assert.Equal(t, 8.0, *updated.Grade)
	assert.Equal(t, models.GradeStatusPassed, updated.GradeStatus())
}

func TestRegistrationServiceReactivate(t *testing.T) {
	repo, svc := newRegistrationFixture()
	now := time.Now().UTC()
	reason := "dropped"
	repo.registrations = map[string]models.Registration{"reg-1": {
		ID: "reg-1", StudentID: "stu-1", ClassID: "class-1",
		RegistrationDate: now, Status: models.RegistrationStatusCancelled,
		CancellationDate: &now, CancellationReason: &reason,
	}}

	reactivated, err := svc.Reactivate(context.Background(), "reg-1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStatusActive, reactivated.Status)
	assert.Nil(t, reactivated.CancellationDate)
	assert.Nil(t, reactivated.CancellationReason)

	// A fresh grade is allowed again.
	graded, err := svc.AssignGrade(context.Background(), "reg-1", GradeRequest{Grade: 9})
	require.NoError(t, err)
	assert.Equal(t, 9.0, *graded.Grade)
}

func TestRegistrationServiceReactivateBlockedByActiveDuplicate(t *testing.T) {
	repo, svc := newRegistrationFixture()
	now := time.Now().UTC()
	reason := "dropped"
	repo.registrations = map[string]models.Registration{"reg-1": {
		ID: "reg-1", StudentID: "stu-1", ClassID: "class-1",
		RegistrationDate: now, Status: models.RegistrationStatusCancelled,
		CancellationDate: &now, CancellationReason: &reason,
	}}
	repo.activePairs = map[string]bool{"stu-1/class-1": true}

	_, err := svc.Reactivate(context.Background(), "reg-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}
