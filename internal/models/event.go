package models

import "time"

// EnrollmentEventType classifies entries of the enrollment audit trail.
type EnrollmentEventType string

// Recorded event types.
const (
	EventEnrolled  EnrollmentEventType = "ENROLLED"
	EventWithdrawn EnrollmentEventType = "WITHDRAWN"
	EventGraded    EnrollmentEventType = "GRADED"
)

// EnrollmentEvent is an append-only audit record of an admission,
// withdrawal, or grading decision.
type EnrollmentEvent struct {
	ID           string              `db:"id" json:"id"`
	EnrollmentID string              `db:"enrollment_id" json:"enrollment_id"`
	CourseID     string              `db:"course_id" json:"course_id"`
	StudentID    string              `db:"student_id" json:"student_id"`
	Type         EnrollmentEventType `db:"event_type" json:"event_type"`
	Grade        *float64            `db:"grade" json:"grade,omitempty"`
	OccurredAt   time.Time           `db:"occurred_at" json:"occurred_at"`
}
