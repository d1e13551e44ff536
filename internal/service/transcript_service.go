package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/acadrec-api/internal/models"
	appErrors "github.com/noah-isme/acadrec-api/pkg/errors"
	"github.com/noah-isme/acadrec-api/pkg/export"
)

type gradedRegistrationsReader interface {
	ListGradedByStudent(ctx context.Context, studentID string) ([]models.GradedRegistrationRow, error)
}

func transcriptCacheKey(studentID string) string {
	return "transcript:" + studentID
}

// TranscriptService aggregates graded active registrations into a weighted
// GPA and per-course breakdown.
type TranscriptService struct {
	registrations gradedRegistrationsReader
	students      studentReader
	cache         *CacheService
	cacheTTL      time.Duration
	csv           *export.CSVExporter
	pdf           *export.PDFExporter
	logger        *zap.Logger
}

// NewTranscriptService constructs TranscriptService.
func NewTranscriptService(registrations gradedRegistrationsReader, students studentReader, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *TranscriptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TranscriptService{
		registrations: registrations,
		students:      students,
		cache:         cache,
		cacheTTL:      cacheTTL,
		csv:           export.NewCSVExporter(),
		pdf:           export.NewPDFExporter(),
		logger:        logger,
	}
}

// Generate builds the transcript for a student. GPA is the credit-weighted
// mean over graded active registrations, rounded to two decimals; an empty
// record yields GPA 0.
func (s *TranscriptService) Generate(ctx context.Context, studentID string) (*models.Transcript, error) {
	key := transcriptCacheKey(studentID)
	if s.cache != nil {
		var cached models.Transcript
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	rows, err := s.registrations.ListGradedByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load graded registrations")
	}

	courses := make([]models.TranscriptCourse, 0, len(rows))
	totalCredits := 0
	weighted := 0.0
	for _, row := range rows {
		status := models.GradeStatusFailed
		if row.Grade >= models.PassingGrade {
			status = models.GradeStatusPassed
		}
		courses = append(courses, models.TranscriptCourse{
			CourseID:   row.CourseID,
			CourseCode: row.CourseCode,
			CourseName: row.CourseName,
			Credits:    row.Credits,
			Grade:      row.Grade,
			Status:     status,
		})
		totalCredits += row.Credits
		weighted += row.Grade * float64(row.Credits)
	}

	gpa := 0.0
	if totalCredits > 0 {
		gpa = math.Round(weighted/float64(totalCredits)*100) / 100
	}

	transcript := &models.Transcript{
		Student:      *student,
		Courses:      courses,
		GPA:          gpa,
		TotalCredits: totalCredits,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, transcript, s.cacheTTL); err != nil {
			s.logger.Warn("transcript cache set failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return transcript, nil
}

// ExportCSV renders the transcript as a CSV document.
func (s *TranscriptService) ExportCSV(ctx context.Context, studentID string) ([]byte, error) {
	transcript, err := s.Generate(ctx, studentID)
	if err != nil {
		return nil, err
	}
	data, err := s.csv.Render(transcriptDataset(transcript))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript csv")
	}
	return data, nil
}

// ExportPDF renders the transcript as a PDF document.
func (s *TranscriptService) ExportPDF(ctx context.Context, studentID string) ([]byte, error) {
	transcript, err := s.Generate(ctx, studentID)
	if err != nil {
		return nil, err
	}
	summary := []string{
		fmt.Sprintf("Student: %s (%s)", transcript.Student.FullName, transcript.Student.Code),
		fmt.Sprintf("GPA: %.2f", transcript.GPA),
		fmt.Sprintf("Total credits: %d", transcript.TotalCredits),
	}
	data, err := s.pdf.Render(transcriptDataset(transcript), "Academic Transcript", summary)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render transcript pdf")
	}
	return data, nil
}

func transcriptDataset(transcript *models.Transcript) export.Dataset {
	headers := []string{"Code", "Course", "Credits", "Grade", "Status"}
	rows := make([]map[string]string, 0, len(transcript.Courses))
	for _, course := range transcript.Courses {
		rows = append(rows, map[string]string{
			"Code":    course.CourseCode,
			"Course":  course.CourseName,
			"Credits": fmt.Sprintf("%d", course.Credits),
			"Grade":   fmt.Sprintf("%.2f", course.Grade),
			"Status":  string(course.Status),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
