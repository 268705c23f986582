package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
	"github.com/zjgsu-ms/campus-course-api/internal/repository"
)

// courseEntry guards one course so occupancy adjustments on distinct
// courses never contend with each other.
type courseEntry struct {
	mu     sync.Mutex
	course models.Course
}

// CourseStore is the in-memory course directory.
type CourseStore struct {
	mu     sync.RWMutex
	byID   map[string]*courseEntry
	byCode map[string]string
}

// NewCourseStore constructs an empty course store.
func NewCourseStore() *CourseStore {
	return &CourseStore{
		byID:   make(map[string]*courseEntry),
		byCode: make(map[string]string),
	}
}

// List returns courses matching the filter with the total match count.
func (s *CourseStore) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	s.mu.RLock()
	matches := make([]models.Course, 0, len(s.byID))
	for _, entry := range s.byID {
		entry.mu.Lock()
		course := entry.course
		entry.mu.Unlock()

		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(course.Code), needle) &&
				!strings.Contains(strings.ToLower(course.Title), needle) {
				continue
			}
		}
		if filter.InstructorID != "" && course.InstructorID != filter.InstructorID {
			continue
		}
		matches = append(matches, course)
	}
	s.mu.RUnlock()

	asc := strings.EqualFold(filter.SortOrder, "asc")
	sort.Slice(matches, func(i, j int) bool {
		var less bool
		switch filter.SortBy {
		case "title":
			less = matches[i].Title < matches[j].Title
		case "created_at":
			less = matches[i].CreatedAt.Before(matches[j].CreatedAt)
		default:
			less = matches[i].Code < matches[j].Code
		}
		if asc {
			return less
		}
		return !less
	})

	total := len(matches)
	page, size := normalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start >= total {
		return []models.Course{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

func (s *CourseStore) entry(id string) (*courseEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.byID[id]
	return entry, ok
}

// FindByID returns a copy of the course.
func (s *CourseStore) FindByID(ctx context.Context, id string) (*models.Course, error) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := entry.course
	return &out, nil
}

// FindByCode returns a copy of the course with the given code.
func (s *CourseStore) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	s.mu.RLock()
	id, ok := s.byCode[code]
	s.mu.RUnlock()
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.FindByID(ctx, id)
}

// Create stores a new course with zero occupancy.
func (s *CourseStore) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	course.Enrolled = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byCode[course.Code]; exists {
		return fmt.Errorf("course code %q already exists", course.Code)
	}
	s.byID[course.ID] = &courseEntry{course: *course}
	s.byCode[course.Code] = course.ID
	return nil
}

// Update persists mutable course fields, leaving the occupancy counter
// untouched.
func (s *CourseStore) Update(ctx context.Context, course *models.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byID[course.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if other, exists := s.byCode[course.Code]; exists && other != course.ID {
		return fmt.Errorf("course code %q already exists", course.Code)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.course.Code != course.Code {
		delete(s.byCode, entry.course.Code)
		s.byCode[course.Code] = course.ID
	}
	entry.course.Code = course.Code
	entry.course.Title = course.Title
	entry.course.InstructorID = course.InstructorID
	entry.course.ScheduleID = course.ScheduleID
	entry.course.Capacity = course.Capacity
	course.Enrolled = entry.course.Enrolled
	course.CreatedAt = entry.course.CreatedAt
	return nil
}

// Delete removes a course.
func (s *CourseStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	delete(s.byCode, entry.course.Code)
	delete(s.byID, id)
	return nil
}

// AdjustOccupancy atomically moves the occupancy counter by delta.
// A positive delta is admitted only while seats remain; a negative delta
// never drops the counter below zero.
func (s *CourseStore) AdjustOccupancy(ctx context.Context, id string, delta int) (*models.Course, error) {
	entry, ok := s.entry(id)
	if !ok {
		return nil, sql.ErrNoRows
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if delta > 0 && entry.course.Enrolled+delta > entry.course.Capacity {
		return nil, repository.ErrCourseFull
	}
	entry.course.Enrolled += delta
	if entry.course.Enrolled < 0 {
		entry.course.Enrolled = 0
	}
	out := entry.course
	return &out, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
