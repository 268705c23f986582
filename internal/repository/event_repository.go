package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
)

const eventColumns = "id, enrollment_id, course_id, student_id, event_type, grade, occurred_at"

// EventRepository stores the append-only enrollment audit trail.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs the repository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create appends an audit event.
func (r *EventRepository) Create(ctx context.Context, event *models.EnrollmentEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollment_events (id, enrollment_id, course_id, student_id, event_type, grade, occurred_at)
        VALUES (:id, :enrollment_id, :course_id, :student_id, :event_type, :grade, :occurred_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create enrollment event: %w", err)
	}
	return nil
}

// ListByEnrollment returns the audit trail of a single enrollment.
func (r *EventRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.EnrollmentEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollment_events WHERE enrollment_id = $1 ORDER BY occurred_at ASC", eventColumns)
	var events []models.EnrollmentEvent
	if err := r.db.SelectContext(ctx, &events, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment events: %w", err)
	}
	return events, nil
}
