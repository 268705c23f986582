// Package memstore provides an in-memory storage backend implementing the
// same contracts as the sqlx repositories. It backs the "memory" store
// driver and the admission engine's integration tests.
package memstore

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
	"github.com/zjgsu-ms/campus-course-api/internal/repository"
)

const ledgerShardCount = 32

// ledgerShard owns every record whose (course, student) pair hashes to it.
// All access to those records goes through the shard mutex, so operations
// on unrelated pairs proceed concurrently while pair-local invariants
// (active uniqueness, linearizable record updates) hold under one lock.
type ledgerShard struct {
	mu      sync.Mutex
	records map[string]*models.Enrollment
	byPair  map[string][]string
	active  map[string]string
}

// Ledger is the in-memory enrollment ledger.
type Ledger struct {
	shards [ledgerShardCount]*ledgerShard

	// pairIndex routes an enrollment id to its owning shard's pair key.
	pairIndex sync.Map

	// Maintained counters keep the active counts O(1).
	courseActive  sync.Map
	studentActive sync.Map
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	l := &Ledger{}
	for i := range l.shards {
		l.shards[i] = &ledgerShard{
			records: make(map[string]*models.Enrollment),
			byPair:  make(map[string][]string),
			active:  make(map[string]string),
		}
	}
	return l
}

func pairKey(courseID, studentID string) string {
	return courseID + "\x00" + studentID
}

func (l *Ledger) shardFor(pair string) *ledgerShard {
	h := fnv.New32a()
	h.Write([]byte(pair))
	return l.shards[h.Sum32()%ledgerShardCount]
}

func addCounter(m *sync.Map, key string, delta int64) {
	v, _ := m.LoadOrStore(key, new(int64))
	atomic.AddInt64(v.(*int64), delta)
}

func loadCounter(m *sync.Map, key string) int {
	v, ok := m.Load(key)
	if !ok {
		return 0
	}
	return int(atomic.LoadInt64(v.(*int64)))
}

// Create inserts a new ENROLLED record, rejecting a second active record
// for the same pair.
func (l *Ledger) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	enrollment.Status = models.EnrollmentStatusEnrolled
	enrollment.Grade = nil

	pair := pairKey(enrollment.CourseID, enrollment.StudentID)
	shard := l.shardFor(pair)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, exists := shard.active[pair]; exists {
		return repository.ErrDuplicateEnrollment
	}

	stored := *enrollment
	shard.records[stored.ID] = &stored
	shard.byPair[pair] = append(shard.byPair[pair], stored.ID)
	shard.active[pair] = stored.ID
	l.pairIndex.Store(stored.ID, pair)
	addCounter(&l.courseActive, stored.CourseID, 1)
	addCounter(&l.studentActive, stored.StudentID, 1)
	return nil
}

func (l *Ledger) locate(id string) (*ledgerShard, string, bool) {
	v, ok := l.pairIndex.Load(id)
	if !ok {
		return nil, "", false
	}
	pair := v.(string)
	return l.shardFor(pair), pair, true
}

// FindByID returns a copy of the record.
func (l *Ledger) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	shard, _, ok := l.locate(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()
	rec, ok := shard.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *rec
	return &out, nil
}

// FindActiveByPair returns the ENROLLED record for the pair, if any.
func (l *Ledger) FindActiveByPair(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	pair := pairKey(courseID, studentID)
	shard := l.shardFor(pair)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	id, ok := shard.active[pair]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *shard.records[id]
	return &out, nil
}

// FindLatestByPair returns the most recent record for the pair.
func (l *Ledger) FindLatestByPair(ctx context.Context, courseID, studentID string) (*models.Enrollment, error) {
	pair := pairKey(courseID, studentID)
	shard := l.shardFor(pair)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	ids := shard.byPair[pair]
	if len(ids) == 0 {
		return nil, sql.ErrNoRows
	}
	out := *shard.records[ids[len(ids)-1]]
	return &out, nil
}

// UpdateStatus performs a conditional from->to transition on an ungraded
// record, maintaining the active index and counters.
func (l *Ledger) UpdateStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) error {
	shard, pair, ok := l.locate(id)
	if !ok {
		return repository.ErrStaleTransition
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[id]
	if !ok || rec.Status != from || rec.Grade != nil {
		return repository.ErrStaleTransition
	}

	rec.Status = to
	if from == models.EnrollmentStatusEnrolled && to != models.EnrollmentStatusEnrolled {
		if shard.active[pair] == id {
			delete(shard.active, pair)
		}
	}
	if to == models.EnrollmentStatusEnrolled {
		shard.active[pair] = id
	}
	if from.Active() && !to.Active() {
		addCounter(&l.courseActive, rec.CourseID, -1)
		addCounter(&l.studentActive, rec.StudentID, -1)
	}
	if !from.Active() && to.Active() {
		addCounter(&l.courseActive, rec.CourseID, 1)
		addCounter(&l.studentActive, rec.StudentID, 1)
	}
	return nil
}

// UpdateGrade sets the grade and derived status on a gradeable record.
func (l *Ledger) UpdateGrade(ctx context.Context, id string, grade float64, status models.EnrollmentStatus) (*models.Enrollment, error) {
	shard, pair, ok := l.locate(id)
	if !ok {
		return nil, repository.ErrStaleTransition
	}
	shard.mu.Lock()
	defer shard.mu.Unlock()

	rec, ok := shard.records[id]
	if !ok || !rec.Status.Gradeable() {
		return nil, repository.ErrStaleTransition
	}

	if rec.Status == models.EnrollmentStatusEnrolled && shard.active[pair] == id {
		delete(shard.active, pair)
	}
	g := grade
	rec.Grade = &g
	rec.Status = status
	out := *rec
	return &out, nil
}

// CountActiveByCourse returns the number of seats held in the course.
func (l *Ledger) CountActiveByCourse(ctx context.Context, courseID string) (int, error) {
	return loadCounter(&l.courseActive, courseID), nil
}

// CountActiveByStudent returns the student's non-withdrawn enrollment count.
func (l *Ledger) CountActiveByStudent(ctx context.Context, studentID string) (int, error) {
	return loadCounter(&l.studentActive, studentID), nil
}

// HasActiveOrCompletedByStudent reports whether the student holds an
// enrollment that blocks directory removal.
func (l *Ledger) HasActiveOrCompletedByStudent(ctx context.Context, studentID string) (bool, error) {
	for _, shard := range l.shards {
		shard.mu.Lock()
		for _, rec := range shard.records {
			if rec.StudentID == studentID &&
				(rec.Status == models.EnrollmentStatusEnrolled || rec.Status == models.EnrollmentStatusCompleted) {
				shard.mu.Unlock()
				return true, nil
			}
		}
		shard.mu.Unlock()
	}
	return false, nil
}

// AverageCompletedGrade returns the mean grade over COMPLETED records.
func (l *Ledger) AverageCompletedGrade(ctx context.Context, studentID string) (*float64, error) {
	var sum float64
	var count int
	for _, shard := range l.shards {
		shard.mu.Lock()
		for _, rec := range shard.records {
			if rec.StudentID == studentID && rec.Status == models.EnrollmentStatusCompleted && rec.Grade != nil {
				sum += *rec.Grade
				count++
			}
		}
		shard.mu.Unlock()
	}
	if count == 0 {
		return nil, nil
	}
	avg := sum / float64(count)
	return &avg, nil
}

// List returns matching records sorted by enrollment time.
func (l *Ledger) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var matches []models.Enrollment
	for _, shard := range l.shards {
		shard.mu.Lock()
		for _, rec := range shard.records {
			if filter.CourseID != "" && rec.CourseID != filter.CourseID {
				continue
			}
			if filter.StudentID != "" && rec.StudentID != filter.StudentID {
				continue
			}
			if filter.Status != "" && rec.Status != filter.Status {
				continue
			}
			if filter.ActiveOnly && rec.Status == models.EnrollmentStatusWithdrawn {
				continue
			}
			matches = append(matches, *rec)
		}
		shard.mu.Unlock()
	}

	asc := filter.SortOrder == "asc" || filter.SortOrder == "ASC"
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].EnrolledAt.Equal(matches[j].EnrolledAt) {
			return matches[i].ID < matches[j].ID
		}
		if asc {
			return matches[i].EnrolledAt.Before(matches[j].EnrolledAt)
		}
		return matches[i].EnrolledAt.After(matches[j].EnrolledAt)
	})

	total := len(matches)
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return []models.Enrollment{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return matches[start:end], total, nil
}
