package incidents

import (
	"testing"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestReportStatusOf(t *testing.T) {
	assert.Equal(t, ReportOpen, ReportStatusOf(models.StatusReported))
	assert.Equal(t, ReportOpen, ReportStatusOf(models.StatusAcknowledged))
	assert.Equal(t, ReportInProgress, ReportStatusOf(models.StatusInProgress))
	assert.Equal(t, ReportResolved, ReportStatusOf(models.StatusResolved))
}

func TestTitleFrom(t *testing.T) {
	assert.Equal(t, "Overflowing bins", titleFrom("  Overflowing bins. Smells bad!"))
	assert.Equal(t, "No punctuation", titleFrom("No punctuation"))

	long := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	got := []rune(titleFrom(long))
	assert.Len(t, got, maxTitleRunes)
	assert.Equal(t, '…', got[len(got)-1])
}

func TestToReport(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	in := models.Incident{
		ID:          "i1",
		Description: "Litter in the park",
		Status:      models.StatusAcknowledged,
		Location:    models.Location{Lat: 40.78, Lng: -73.96, Address: "Central Park"},
		ReportedBy:  "u1",
		Images:      []string{"/media/a.png", "/media/b.png"},
		CreatedAt:   created,
	}
	rep := ToReport(in, "John Citizen")
	assert.Equal(t, Report{
		ID:          "i1",
		UserID:      "u1",
		UserName:    "John Citizen",
		Description: "Litter in the park",
		ImageURL:    "/media/a.png",
		Location:    Point{Lat: 40.78, Lng: -73.96},
		Status:      ReportOpen,
		CreatedAt:   created,
	}, rep)
}
