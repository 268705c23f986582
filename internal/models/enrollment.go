package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusFailed    EnrollmentStatus = "FAILED"
)

// PassingGrade is the completion threshold: at or above it a graded
// enrollment completes, below it the enrollment fails.
const PassingGrade = 60.0

// Valid reports whether the status is one of the known values.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusEnrolled, EnrollmentStatusWithdrawn, EnrollmentStatusCompleted, EnrollmentStatusFailed:
		return true
	}
	return false
}

// Active reports whether the status still occupies a course seat. Only a
// withdrawal releases the seat; completed and failed enrollments keep it.
func (s EnrollmentStatus) Active() bool {
	return s != EnrollmentStatusWithdrawn && s.Valid()
}

// Terminal reports whether no further status-only transition is permitted.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusWithdrawn || s == EnrollmentStatusCompleted || s == EnrollmentStatusFailed
}

// Gradeable reports whether a grade may be assigned in this status.
// WITHDRAWN and FAILED are terminal for grading; COMPLETED may be re-graded.
func (s EnrollmentStatus) Gradeable() bool {
	return s == EnrollmentStatusEnrolled || s == EnrollmentStatusCompleted
}

// StatusForGrade derives the post-grading status from a grade value.
func StatusForGrade(grade float64) EnrollmentStatus {
	if grade >= PassingGrade {
		return EnrollmentStatusCompleted
	}
	return EnrollmentStatusFailed
}

// GradeLetter maps a numeric grade to its letter equivalent.
func GradeLetter(grade float64) string {
	switch {
	case grade >= 90:
		return "A"
	case grade >= 80:
		return "B"
	case grade >= 70:
		return "C"
	case grade >= 60:
		return "D"
	default:
		return "F"
	}
}

// Enrollment captures a student's registration to a course. A (course,
// student) pair may accumulate several historical records, but at most one
// of them is ENROLLED at any time.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	Grade      *float64         `db:"grade" json:"grade,omitempty"`
}

// CanWithdraw reports whether the record may transition to WITHDRAWN:
// only ungraded ENROLLED records are withdrawable.
func (e *Enrollment) CanWithdraw() bool {
	return e.Status == EnrollmentStatusEnrolled && e.Grade == nil
}

// GradeLetter returns the letter grade, or an empty string when ungraded.
func (e *Enrollment) GradeLetter() string {
	if e.Grade == nil {
		return ""
	}
	return GradeLetter(*e.Grade)
}

// Passed reports whether the enrollment carries a passing grade.
func (e *Enrollment) Passed() bool {
	return e.Grade != nil && *e.Grade >= PassingGrade
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	CourseID   string
	StudentID  string
	Status     EnrollmentStatus
	ActiveOnly bool
	Page       int
	PageSize   int
	SortOrder  string
}
