package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjgsu-ms/campus-course-api/internal/models"
)

func TestRosterExporterRender(t *testing.T) {
	grade := 91.5
	roster := &models.CourseRoster{
		Course: models.Course{Code: "CS101", Title: "Programming", Capacity: 30, Enrolled: 2},
		Entries: []models.RosterEntry{
			{
				Enrollment: models.Enrollment{Status: models.EnrollmentStatusCompleted, Grade: &grade},
				Student:    models.Student{StudentNo: "2023001", FullName: "Alice", Major: "CS"},
			},
			{
				Enrollment: models.Enrollment{Status: models.EnrollmentStatusEnrolled},
				Student:    models.Student{StudentNo: "2023002", FullName: "Bob", Major: "SE"},
			},
		},
	}

	out, err := NewRosterExporter().Render(roster)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, "%PDF", string(out[:4]))
}

func TestRosterExporterRenderEmptyRoster(t *testing.T) {
	out, err := NewRosterExporter().Render(&models.CourseRoster{
		Course: models.Course{Code: "CS101", Title: "Programming", Capacity: 30},
	})
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(out[:4]))
}

func TestRosterExporterRenderNil(t *testing.T) {
	_, err := NewRosterExporter().Render(nil)
	require.Error(t, err)
}
