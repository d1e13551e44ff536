package models

import "time"

// Class represents a scheduled section of a course with limited seats.
type Class struct {
	ID          string    `db:"id" json:"id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	Name        string    `db:"name" json:"name"`
	Period      string    `db:"period" json:"period"`
	MaxStudents int       `db:"max_students" json:"max_students"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with course context.
type ClassDetail struct {
	Class
	CourseName string `db:"course_name" json:"course_name"`
	CourseCode string `db:"course_code" json:"course_code"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	CourseID  string
	Period    string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
