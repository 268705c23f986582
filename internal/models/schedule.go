package models

import "time"

// ScheduleSlot represents a weekly time slot a course is taught in.
type ScheduleSlot struct {
	ID                 string    `db:"id" json:"id"`
	DayOfWeek          string    `db:"day_of_week" json:"day_of_week"`
	StartTime          string    `db:"start_time" json:"start_time"`
	EndTime            string    `db:"end_time" json:"end_time"`
	ExpectedAttendance *int      `db:"expected_attendance" json:"expected_attendance,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}
