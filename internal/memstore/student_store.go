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
)

// StudentStore is the in-memory student directory.
type StudentStore struct {
	mu      sync.RWMutex
	byID    map[string]models.Student
	byNo    map[string]string
	byEmail map[string]string
}

// NewStudentStore constructs an empty student store.
func NewStudentStore() *StudentStore {
	return &StudentStore{
		byID:    make(map[string]models.Student),
		byNo:    make(map[string]string),
		byEmail: make(map[string]string),
	}
}

// List returns students matching the filter with the total match count.
func (s *StudentStore) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	s.mu.RLock()
	matches := make([]models.Student, 0, len(s.byID))
	for _, student := range s.byID {
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(student.FullName), needle) &&
				!strings.Contains(strings.ToLower(student.StudentNo), needle) {
				continue
			}
		}
		if filter.Major != "" && student.Major != filter.Major {
			continue
		}
		if filter.GradeYear != 0 && student.GradeYear != filter.GradeYear {
			continue
		}
		matches = append(matches, student)
	}
	s.mu.RUnlock()

	asc := strings.EqualFold(filter.SortOrder, "asc")
	sort.Slice(matches, func(i, j int) bool {
		var less bool
		switch filter.SortBy {
		case "full_name":
			less = matches[i].FullName < matches[j].FullName
		case "created_at":
			less = matches[i].CreatedAt.Before(matches[j].CreatedAt)
		default:
			less = matches[i].StudentNo < matches[j].StudentNo
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
		return []models.Student{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}

// FindByID returns a copy of the student.
func (s *StudentStore) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	student, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

// FindByNumber returns the student with the given student number.
func (s *StudentStore) FindByNumber(ctx context.Context, studentNo string) (*models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNo[studentNo]
	if !ok {
		return nil, sql.ErrNoRows
	}
	student := s.byID[id]
	return &student, nil
}

// FindByEmail returns the student with the given email.
func (s *StudentStore) FindByEmail(ctx context.Context, email string) (*models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	student := s.byID[id]
	return &student, nil
}

// Create stores a new student.
func (s *StudentStore) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if student.CreatedAt.IsZero() {
		student.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byNo[student.StudentNo]; exists {
		return fmt.Errorf("student number %q already exists", student.StudentNo)
	}
	if _, exists := s.byEmail[student.Email]; exists {
		return fmt.Errorf("student email %q already exists", student.Email)
	}
	s.byID[student.ID] = *student
	s.byNo[student.StudentNo] = student.ID
	s.byEmail[student.Email] = student.ID
	return nil
}

// Update persists mutable student fields.
func (s *StudentStore) Update(ctx context.Context, student *models.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[student.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if other, exists := s.byNo[student.StudentNo]; exists && other != student.ID {
		return fmt.Errorf("student number %q already exists", student.StudentNo)
	}
	if other, exists := s.byEmail[student.Email]; exists && other != student.ID {
		return fmt.Errorf("student email %q already exists", student.Email)
	}
	if current.StudentNo != student.StudentNo {
		delete(s.byNo, current.StudentNo)
		s.byNo[student.StudentNo] = student.ID
	}
	if current.Email != student.Email {
		delete(s.byEmail, current.Email)
		s.byEmail[student.Email] = student.ID
	}
	student.CreatedAt = current.CreatedAt
	s.byID[student.ID] = *student
	return nil
}

// Delete removes a student.
func (s *StudentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	student, ok := s.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	delete(s.byNo, student.StudentNo)
	delete(s.byEmail, student.Email)
	delete(s.byID, id)
	return nil
}
