package models

// TranscriptCourse is a single graded course entry on a transcript.
type TranscriptCourse struct {
	CourseID   string      `json:"course_id"`
	CourseCode string      `json:"course_code"`
	CourseName string      `json:"course_name"`
	Credits    int         `json:"credits"`
	Grade      float64     `json:"grade"`
	Status     GradeStatus `json:"status"`
}

// Transcript aggregates a student's graded, active registrations.
type Transcript struct {
	Student      Student            `json:"student"`
	Courses      []TranscriptCourse `json:"courses"`
	GPA          float64            `json:"gpa"`
	TotalCredits int                `json:"total_credits"`
}

// GradedRegistrationRow is the storage projection used to build transcripts.
type GradedRegistrationRow struct {
	RegistrationID string  `db:"registration_id"`
	CourseID       string  `db:"course_id"`
	CourseCode     string  `db:"course_code"`
	CourseName     string  `db:"course_name"`
	Credits        int     `db:"credits"`
	Grade          float64 `db:"grade"`
}
