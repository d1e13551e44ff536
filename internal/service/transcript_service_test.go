package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acadrec-api/internal/models"
	appErrors "github.com/noah-isme/acadrec-api/pkg/errors"
)

type mockGradedRegistrations struct {
	rows map[string][]models.GradedRegistrationRow
}

func (m *mockGradedRegistrations) ListGradedByStudent(ctx context.Context, studentID string) ([]models.GradedRegistrationRow, error) {
	return m.rows[studentID], nil
}

func newTranscriptFixture(rows []models.GradedRegistrationRow) *TranscriptService {
	registrations := &mockGradedRegistrations{rows: map[string][]models.GradedRegistrationRow{"stu-1": rows}}
	students := &mockStudentReader{students: map[string]*models.Student{
		"stu-1": {ID: "stu-1", Code: "20240101", FullName: "Ana Souza", Active: true},
	}}
	return NewTranscriptService(registrations, students, nil, 0, nil)
}

func TestTranscriptServiceWeightedGPA(t *testing.T) {
	svc := newTranscriptFixture([]models.GradedRegistrationRow{
		{RegistrationID: "reg-1", CourseID: "c-1", CourseCode: "MAT101", CourseName: "Calculus I", Credits: 3, Grade: 8},
		{RegistrationID: "reg-2", CourseID: "c-2", CourseCode: "PHY101", CourseName: "Physics I", Credits: 4, Grade: 6},
	})

	transcript, err := svc.Generate(context.Background(), "stu-1")
	require.NoError(t, err)
	// (3*8 + 4*6) / 7 = 48/7 = 6.857..., rounded to two decimals.
	assert.Equal(t, 6.86, transcript.GPA)
	assert.Equal(t, 7, transcript.TotalCredits)
	require.Len(t, transcript.Courses, 2)
	assert.Equal(t, models.GradeStatusPassed, transcript.Courses[0].Status)
	assert.Equal(t, models.GradeStatusPassed, transcript.Courses[1].Status)
}

func TestTranscriptServiceFailingGradeStillWeighted(t *testing.T) {
	svc := newTranscriptFixture([]models.GradedRegistrationRow{
		{RegistrationID: "reg-1", CourseID: "c-1", CourseCode: "MAT101", CourseName: "Calculus I", Credits: 2, Grade: 4},
		{RegistrationID: "reg-2", CourseID: "c-2", CourseCode: "PHY101", CourseName: "Physics I", Credits: 2, Grade: 10},
	})

	transcript, err := svc.Generate(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 7.0, transcript.GPA)
	assert.Equal(t, models.GradeStatusFailed, transcript.Courses[0].Status)
	assert.Equal(t, models.GradeStatusPassed, transcript.Courses[1].Status)
}

func TestTranscriptServiceEmptyRecord(t *testing.T) {
	svc := newTranscriptFixture(nil)

	transcript, err := svc.Generate(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Zero(t, transcript.GPA)
	assert.Zero(t, transcript.TotalCredits)
	assert.Empty(t, transcript.Courses)
}

func TestTranscriptServiceStudentNotFound(t *testing.T) {
	svc := NewTranscriptService(&mockGradedRegistrations{}, &mockStudentReader{}, nil, 0, nil)

	_, err := svc.Generate(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTranscriptServiceExportCSV(t *testing.T) {
	svc := newTranscriptFixture([]models.GradedRegistrationRow{
		{RegistrationID: "reg-1", CourseID: "c-1", CourseCode: "MAT101", CourseName: "Calculus I", Credits: 3, Grade: 8},
	})

	data, err := svc.ExportCSV(context.Background(), "stu-1")
	require.NoError(t, err)
	body := string(data)
	assert.True(t, strings.HasPrefix(body, "Code,Course,Credits,Grade,Status"))
	assert.Contains(t, body, "MAT101,Calculus I,3,8.00,PASSED")
}

func TestTranscriptServiceExportPDF(t *testing.T) {
	svc := newTranscriptFixture([]models.GradedRegistrationRow{
		{RegistrationID: "reg-1", CourseID: "c-1", CourseCode: "MAT101", CourseName: "Calculus I", Credits: 3, Grade: 8},
	})

	data, err := svc.ExportPDF(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))
}
