package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
)

// EventLog is the in-memory append-only audit trail.
type EventLog struct {
	mu     sync.Mutex
	events []models.EnrollmentEvent
}

// NewEventLog constructs an empty event log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Create appends an audit event.
func (l *EventLog) Create(ctx context.Context, event *models.EnrollmentEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, *event)
	return nil
}

// ListByEnrollment returns the audit trail of a single enrollment in
// append order.
func (l *EventLog) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.EnrollmentEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.EnrollmentEvent
	for _, event := range l.events {
		if event.EnrollmentID == enrollmentID {
			out = append(out, event)
		}
	}
	return out, nil
}
