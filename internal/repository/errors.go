package repository

import "errors"

// ErrCourseFull is returned when a seat reservation would exceed capacity.
var ErrCourseFull = errors.New("course is at capacity")

// ErrDuplicateEnrollment is returned when an ENROLLED record already exists
// for the (course, student) pair.
var ErrDuplicateEnrollment = errors.New("student already has an active enrollment for this course")

// ErrStaleTransition is returned when a conditional status or grade update
// matched no row because the record changed concurrently.
var ErrStaleTransition = errors.New("enrollment changed concurrently")
