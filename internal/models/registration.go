package models

import (
	"time"

	appErrors "github.com/noah-isme/acadrec-api/pkg/errors"
)

// RegistrationStatus represents the lifecycle of a course registration.
type RegistrationStatus string

// Possible registration statuses.
const (
	RegistrationStatusActive    RegistrationStatus = "ACTIVE"
	RegistrationStatusCancelled RegistrationStatus = "CANCELLED"
)

// GradeStatus classifies a registration's grade outcome.
type GradeStatus string

// Possible grade statuses.
const (
	GradeStatusPending GradeStatus = "PENDING"
	GradeStatusPassed  GradeStatus = "PASSED"
	GradeStatusFailed  GradeStatus = "FAILED"
)

// PassingGrade is the minimum grade considered a pass.
const PassingGrade = 5.0

// registrationValidity is the business window within which a registration
// date is considered current.
const registrationValidity = 365 * 24 * time.Hour

// Registration captures a student's enrollment in a class section. Student
// and class references are immutable after creation; all state changes go
// through the transition methods so the cancellation and grade invariants
// hold at every point.
type Registration struct {
	ID                 string             `db:"id" json:"id"`
	StudentID          string             `db:"student_id" json:"student_id"`
	ClassID            string             `db:"class_id" json:"class_id"`
	RegistrationDate   time.Time          `db:"registration_date" json:"registration_date"`
	Grade              *float64           `db:"grade" json:"grade,omitempty"`
	Status             RegistrationStatus `db:"status" json:"status"`
	CancellationDate   *time.Time         `db:"cancellation_date" json:"cancellation_date,omitempty"`
	CancellationReason *string            `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// NewRegistration builds an active registration dated now.
func NewRegistration(studentID, classID string) (*Registration, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class id is required")
	}
	now := time.Now().UTC()
	return &Registration{
		StudentID:        studentID,
		ClassID:          classID,
		RegistrationDate: now,
		Status:           RegistrationStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Validate checks the structural invariants of the aggregate.
func (r *Registration) Validate() error {
	if r.StudentID == "" || r.ClassID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "registration requires student and class")
	}
	now := time.Now().UTC()
	if r.RegistrationDate.After(now) {
		return appErrors.Clone(appErrors.ErrValidation, "registration date cannot be in the future")
	}
	if now.Sub(r.RegistrationDate) > registrationValidity {
		return appErrors.Clone(appErrors.ErrValidation, "registration date is older than one year")
	}
	switch r.Status {
	case RegistrationStatusActive:
		if r.CancellationDate != nil || r.CancellationReason != nil {
			return appErrors.Clone(appErrors.ErrValidation, "active registration cannot carry cancellation data")
		}
		if r.Grade != nil && (*r.Grade < 0 || *r.Grade > 10) {
			return appErrors.Clone(appErrors.ErrValidation, "grade must be between 0 and 10")
		}
	case RegistrationStatusCancelled:
		if r.CancellationDate == nil || r.CancellationReason == nil {
			return appErrors.Clone(appErrors.ErrValidation, "cancelled registration requires cancellation date and reason")
		}
		if r.CancellationDate.Before(r.RegistrationDate) {
			return appErrors.Clone(appErrors.ErrValidation, "cancellation date cannot precede registration date")
		}
		if r.Grade != nil {
			return appErrors.Clone(appErrors.ErrValidation, "cancelled registration cannot carry a grade")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown registration status")
	}
	return nil
}

// AssignGrade sets the grade on an active registration.
func (r *Registration) AssignGrade(value float64) error {
	if r.Status != RegistrationStatusActive {
		return appErrors.Clone(appErrors.ErrValidation, "grade can only be assigned while registration is active")
	}
	if value < 0 || value > 10 {
		return appErrors.Clone(appErrors.ErrValidation, "grade must be between 0 and 10")
	}
	r.Grade = &value
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateGrade replaces an existing grade; unlike AssignGrade it requires a
// grade to already be present.
func (r *Registration) UpdateGrade(value float64) error {
	if r.Grade == nil {
		return appErrors.Clone(appErrors.ErrValidation, "no grade assigned yet")
	}
	return r.AssignGrade(value)
}

// Cancel transitions the registration to CANCELLED, recording the reason and
// clearing any grade.
func (r *Registration) Cancel(reason string) error {
	if r.Status == RegistrationStatusCancelled {
		return appErrors.Clone(appErrors.ErrValidation, "registration already cancelled")
	}
	if reason == "" {
		return appErrors.Clone(appErrors.ErrValidation, "cancellation reason is required")
	}
	now := time.Now().UTC()
	r.Status = RegistrationStatusCancelled
	r.CancellationDate = &now
	r.CancellationReason = &reason
	r.Grade = nil
	r.UpdatedAt = now
	return nil
}

// Reactivate returns a cancelled registration to ACTIVE, clearing the
// cancellation fields.
func (r *Registration) Reactivate() error {
	if r.Status == RegistrationStatusActive {
		return appErrors.Clone(appErrors.ErrValidation, "registration already active")
	}
	r.Status = RegistrationStatusActive
	r.CancellationDate = nil
	r.CancellationReason = nil
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// IsPassing reports whether the registration holds a passing grade.
func (r *Registration) IsPassing() bool {
	return r.Grade != nil && *r.Grade >= PassingGrade
}

// GradeStatus classifies the grade outcome of the registration.
func (r *Registration) GradeStatus() GradeStatus {
	if r.Grade == nil {
		return GradeStatusPending
	}
	if *r.Grade >= PassingGrade {
		return GradeStatusPassed
	}
	return GradeStatusFailed
}

// CanBeModified reports whether state changes are currently allowed.
func (r *Registration) CanBeModified() bool {
	return r.Status == RegistrationStatusActive
}

// RegistrationDetail enriches Registration with student, class and course info.
type RegistrationDetail struct {
	Registration
	StudentName string `db:"student_name" json:"student_name"`
	StudentCode string `db:"student_code" json:"student_code"`
	ClassName   string `db:"class_name" json:"class_name"`
	CourseID    string `db:"course_id" json:"course_id"`
	CourseName  string `db:"course_name" json:"course_name"`
}

// RegistrationFilter provides filters for listing registrations.
type RegistrationFilter struct {
	StudentID string
	ClassID   string
	Status    RegistrationStatus
	Graded    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
