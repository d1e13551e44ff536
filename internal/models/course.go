package models

import "time"

// Course represents a unit of study offered by a program.
type Course struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Credits   int       `db:"credits" json:"credits"`
	ProgramID string    `db:"program_id" json:"program_id"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail extends Course with its prerequisite course IDs.
type CourseDetail struct {
	Course
	Prerequisites []string `json:"prerequisites"`
}

// CourseFilter captures supported filters for listing courses.
type CourseFilter struct {
	ProgramID string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
