package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
	"github.com/zjgsu-ms/campus-course-api/pkg/config"
)

type mockEventSink struct {
	mu     sync.Mutex
	events []models.EnrollmentEvent
}

func (m *mockEventSink) Create(ctx context.Context, event *models.EnrollmentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *mockEventSink) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.EnrollmentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EnrollmentEvent
	for _, event := range m.events {
		if event.EnrollmentID == enrollmentID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (m *mockEventSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestAuditServicePersistsRecordedEvents(t *testing.T) {
	sink := &mockEventSink{}
	svc := NewAuditService(sink, config.AuditConfig{Enabled: true, Workers: 1, BufferSize: 8}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	grade := 88.0
	svc.Record(models.EnrollmentEvent{EnrollmentID: "enr-1", CourseID: "c1", StudentID: "s1", Type: models.EventEnrolled})
	svc.Record(models.EnrollmentEvent{EnrollmentID: "enr-1", CourseID: "c1", StudentID: "s1", Type: models.EventGraded, Grade: &grade})

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)

	trail, err := svc.Trail(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, models.EventEnrolled, trail[0].Type)
	assert.Equal(t, models.EventGraded, trail[1].Type)
}

func TestAuditServiceDisabledDropsEvents(t *testing.T) {
	sink := &mockEventSink{}
	svc := NewAuditService(sink, config.AuditConfig{Enabled: false}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Record(models.EnrollmentEvent{EnrollmentID: "enr-1", Type: models.EventEnrolled})
	assert.Equal(t, 0, sink.count())
}

func TestAuditServiceNilReceiverIsSafe(t *testing.T) {
	var svc *AuditService
	svc.Start(context.Background())
	svc.Record(models.EnrollmentEvent{EnrollmentID: "enr-1"})
	trail, err := svc.Trail(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Nil(t, trail)
	svc.Stop()
}
