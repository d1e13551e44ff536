package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acadrec-api/internal/models"
	"github.com/noah-isme/acadrec-api/internal/service"
	"github.com/noah-isme/acadrec-api/pkg/response"
)

type registrationRepoStub struct {
	registrations map[string]models.Registration
}

func (s *registrationRepoStub) List(ctx context.Context, filter models.RegistrationFilter) ([]models.RegistrationDetail, int, error) {
	return []models.RegistrationDetail{}, 0, nil
}

func (s *registrationRepoStub) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	if r, ok := s.registrations[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (s *registrationRepoStub) ExistsActive(ctx context.Context, studentID, classID string) (bool, error) {
	return false, nil
}

func (s *registrationRepoStub) CreateAtomic(ctx context.Context, registration *models.Registration, maxStudents int) error {
	if s.registrations == nil {
		s.registrations = make(map[string]models.Registration)
	}
	s.registrations[registration.ID] = *registration
	return nil
}

func (s *registrationRepoStub) Update(ctx context.Context, registration *models.Registration) error {
	if _, ok := s.registrations[registration.ID]; !ok {
		return sql.ErrNoRows
	}
	s.registrations[registration.ID] = *registration
	return nil
}

type studentReaderStub struct{ students map[string]*models.Student }

func (s *studentReaderStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if st, ok := s.students[id]; ok {
		return st, nil
	}
	return nil, sql.ErrNoRows
}

type classReaderStub struct{ classes map[string]*models.Class }

func (s *classReaderStub) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if cl, ok := s.classes[id]; ok {
		return cl, nil
	}
	return nil, sql.ErrNoRows
}

type courseReaderStub struct{ courses map[string]*models.Course }

func (s *courseReaderStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if co, ok := s.courses[id]; ok {
		return co, nil
	}
	return nil, sql.ErrNoRows
}

func (s *courseReaderStub) ListPrerequisites(ctx context.Context, courseID string) ([]string, error) {
	return nil, nil
}

type openGate struct{}

func (openGate) HasCompletedAll(ctx context.Context, studentID string, prerequisiteIDs []string) (bool, error) {
	return true, nil
}

type openSeats struct{}

func (openSeats) HasAvailableSeats(ctx context.Context, classID string) (bool, error) {
	return true, nil
}

func (openSeats) ActiveCount(ctx context.Context, classID string) (int, error) { return 3, nil }

func newRegistrationHandlerFixture(repo *registrationRepoStub) *RegistrationHandler {
	svc := service.NewRegistrationService(
		repo,
		&studentReaderStub{students: map[string]*models.Student{"stu-1": {ID: "stu-1", Active: true}}},
		&classReaderStub{classes: map[string]*models.Class{"class-1": {ID: "class-1", CourseID: "course-1", MaxStudents: 30}}},
		&courseReaderStub{courses: map[string]*models.Course{"course-1": {ID: "course-1", Active: true}}},
		openGate{}, openSeats{},
		nil, nil, nil, nil, time.Second,
	)
	return NewRegistrationHandler(svc)
}

func TestRegistrationHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &registrationRepoStub{}
	handler := newRegistrationHandlerFixture(repo)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.RegisterCourseRequest{StudentID: "stu-1", ClassID: "class-1"})
	req, _ := http.NewRequest(http.MethodPost, "/registrations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Data)
}

func TestRegistrationHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRegistrationHandlerFixture(&registrationRepoStub{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/registrations", bytes.NewReader([]byte(`not-json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistrationHandlerCreateUnknownStudent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRegistrationHandlerFixture(&registrationRepoStub{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.RegisterCourseRequest{StudentID: "ghost", ClassID: "class-1"})
	req, _ := http.NewRequest(http.MethodPost, "/registrations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegistrationHandlerCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &registrationRepoStub{registrations: map[string]models.Registration{"reg-1": {
		ID: "reg-1", StudentID: "stu-1", ClassID: "class-1",
		RegistrationDate: time.Now().UTC(), Status: models.RegistrationStatusActive,
	}}}
	handler := newRegistrationHandlerFixture(repo)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(service.CancelRegistrationRequest{Reason: "schedule conflict"})
	req, _ := http.NewRequest(http.MethodDelete, "/registrations/reg-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "reg-1"}}

	handler.Cancel(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RegistrationStatusCancelled, repo.registrations["reg-1"].Status)
}

func TestRegistrationHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRegistrationHandlerFixture(&registrationRepoStub{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/registrations/ghost", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRegistrationHandlerActiveCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newRegistrationHandlerFixture(&registrationRepoStub{})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/classes/class-1/registrations/count", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}

	handler.ActiveCount(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active_registrations":3`)
}
