package models

import "time"

// Instructor represents a course instructor.
type Instructor struct {
	ID           string    `db:"id" json:"id"`
	InstructorNo string    `db:"instructor_no" json:"instructor_no"`
	FullName     string    `db:"full_name" json:"full_name"`
	Email        string    `db:"email" json:"email"`
	Department   string    `db:"department" json:"department"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
