package models

// RosterEntry pairs an active enrollment with its student record.
type RosterEntry struct {
	Enrollment Enrollment `json:"enrollment"`
	Student    Student    `json:"student"`
}

// CourseRoster is the printable view of a course's active enrollments.
type CourseRoster struct {
	Course  Course        `json:"course"`
	Entries []RosterEntry `json:"entries"`
}
