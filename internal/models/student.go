package models

import "time"

// Student represents a learner registered on the platform.
type Student struct {
	ID        string    `db:"id" json:"id"`
	StudentNo string    `db:"student_no" json:"student_no"`
	FullName  string    `db:"full_name" json:"full_name"`
	Major     string    `db:"major" json:"major"`
	GradeYear int       `db:"grade_year" json:"grade_year"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Major     string
	GradeYear int
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
