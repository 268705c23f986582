package models

import "time"

// Course represents an offered course with a bounded number of seats.
// Enrolled is the occupancy counter; it is mutated only through the
// directory's atomic adjust operation and satisfies 0 <= enrolled <= capacity.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Title        string    `db:"title" json:"title"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	ScheduleID   string    `db:"schedule_id" json:"schedule_id"`
	Capacity     int       `db:"capacity" json:"capacity"`
	Enrolled     int       `db:"enrolled" json:"enrolled"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Full reports whether no seats remain.
func (c *Course) Full() bool {
	return c.Enrolled >= c.Capacity
}

// SeatsLeft returns the number of free seats.
func (c *Course) SeatsLeft() int {
	if left := c.Capacity - c.Enrolled; left > 0 {
		return left
	}
	return 0
}

// CourseFilter defines filter criteria for listing courses.
type CourseFilter struct {
	Search       string
	InstructorID string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
