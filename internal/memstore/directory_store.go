package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
)

// InstructorStore is the in-memory instructor directory.
type InstructorStore struct {
	mu   sync.RWMutex
	byID map[string]models.Instructor
}

// NewInstructorStore constructs an empty instructor store.
func NewInstructorStore() *InstructorStore {
	return &InstructorStore{byID: make(map[string]models.Instructor)}
}

// List returns all instructors ordered by name.
func (s *InstructorStore) List(ctx context.Context) ([]models.Instructor, error) {
	s.mu.RLock()
	instructors := make([]models.Instructor, 0, len(s.byID))
	for _, instructor := range s.byID {
		instructors = append(instructors, instructor)
	}
	s.mu.RUnlock()

	sort.Slice(instructors, func(i, j int) bool {
		return instructors[i].FullName < instructors[j].FullName
	})
	return instructors, nil
}

// FindByID returns a copy of the instructor.
func (s *InstructorStore) FindByID(ctx context.Context, id string) (*models.Instructor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	instructor, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &instructor, nil
}

// Create stores a new instructor.
func (s *InstructorStore) Create(ctx context.Context, instructor *models.Instructor) error {
	if instructor.ID == "" {
		instructor.ID = uuid.NewString()
	}
	if instructor.CreatedAt.IsZero() {
		instructor.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[instructor.ID] = *instructor
	return nil
}

// Update persists mutable instructor fields.
func (s *InstructorStore) Update(ctx context.Context, instructor *models.Instructor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[instructor.ID]
	if !ok {
		return sql.ErrNoRows
	}
	instructor.CreatedAt = current.CreatedAt
	s.byID[instructor.ID] = *instructor
	return nil
}

// Delete removes an instructor.
func (s *InstructorStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.byID, id)
	return nil
}

// ScheduleStore is the in-memory schedule slot directory.
type ScheduleStore struct {
	mu   sync.RWMutex
	byID map[string]models.ScheduleSlot
}

// NewScheduleStore constructs an empty schedule store.
func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{byID: make(map[string]models.ScheduleSlot)}
}

// List returns all schedule slots ordered by day and start time.
func (s *ScheduleStore) List(ctx context.Context) ([]models.ScheduleSlot, error) {
	s.mu.RLock()
	slots := make([]models.ScheduleSlot, 0, len(s.byID))
	for _, slot := range s.byID {
		slots = append(slots, slot)
	}
	s.mu.RUnlock()

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].DayOfWeek != slots[j].DayOfWeek {
			return slots[i].DayOfWeek < slots[j].DayOfWeek
		}
		return slots[i].StartTime < slots[j].StartTime
	})
	return slots, nil
}

// FindByID returns a copy of the schedule slot.
func (s *ScheduleStore) FindByID(ctx context.Context, id string) (*models.ScheduleSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &slot, nil
}

// Create stores a new schedule slot.
func (s *ScheduleStore) Create(ctx context.Context, slot *models.ScheduleSlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[slot.ID] = *slot
	return nil
}

// Delete removes a schedule slot.
func (s *ScheduleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.byID, id)
	return nil
}
