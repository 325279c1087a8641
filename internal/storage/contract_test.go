package storage

import (
	"context"
	"testing"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

// runContract exercises the behaviour every Store must share.
func runContract(t *testing.T, s Store) {
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	t.Run("users", func(t *testing.T) {
		u, err := s.CreateUser(ctx, models.User{
			Username:       "citizen_" + suffix,
			Email:          "citizen_" + suffix + "@example.com",
			HashedPassword: "x",
			Name:           "John Citizen",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, u.ID)
		assert.Equal(t, models.RoleCitizen, u.Role)
		assert.Nil(t, u.Organization)
		assert.False(t, u.CreatedAt.IsZero())

		got, err := s.GetUserByUsername(ctx, u.Username)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		_, err = s.CreateUser(ctx, models.User{
			Username: u.Username, Email: "other_" + suffix + "@example.com", HashedPassword: "x", Name: "Dup",
		})
		assert.ErrorIs(t, err, ErrConflict)

		updated, err := s.UpdateUser(ctx, u.ID, UserPatch{Phone: ptr("555-0101")})
		require.NoError(t, err)
		assert.Equal(t, "555-0101", *updated.Phone)
		assert.Equal(t, "John Citizen", updated.Name)

		_, err = s.UpdateUser(ctx, "missing-"+suffix, UserPatch{Name: ptr("x")})
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetUser(ctx, "missing-"+suffix)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("incidents", func(t *testing.T) {
		reporter := "reporter-" + suffix
		in, err := s.CreateIncident(ctx, models.Incident{
			Title:       "Building Fire",
			Description: "Commercial building fire on Main Street",
			Category:    "fire",
			Severity:    models.LevelHigh,
			Location:    models.Location{Lat: 40.7128, Lng: -74.006, Address: "123 Main St"},
			ReportedBy:  reporter,
		})
		require.NoError(t, err)
		assert.Equal(t, models.StatusReported, in.Status)
		assert.Equal(t, models.LevelMedium, in.Priority)
		assert.Nil(t, in.ResolvedAt)
		assert.Nil(t, in.AssignedTo)

		progress := models.StatusInProgress
		updated, err := s.UpdateIncident(ctx, in.ID, IncidentPatch{Status: &progress})
		require.NoError(t, err)
		assert.Equal(t, models.StatusInProgress, updated.Status)
		assert.Nil(t, updated.ResolvedAt)
		assert.Equal(t, "Building Fire", updated.Title)
		assert.False(t, updated.UpdatedAt.Before(in.UpdatedAt))

		resolved := models.StatusResolved
		updated, err = s.UpdateIncident(ctx, in.ID, IncidentPatch{Status: &resolved})
		require.NoError(t, err)
		require.NotNil(t, updated.ResolvedAt)

		// A later patch without a status keeps the resolution time.
		updated, err = s.UpdateIncident(ctx, in.ID, IncidentPatch{Title: ptr("Fire (contained)")})
		require.NoError(t, err)
		assert.NotNil(t, updated.ResolvedAt)

		// Clearing is ignored while the incident stays resolved.
		updated, err = s.UpdateIncident(ctx, in.ID, IncidentPatch{ClearResolvedAt: true})
		require.NoError(t, err)
		assert.NotNil(t, updated.ResolvedAt)

		list, err := s.ListIncidents(ctx, IncidentFilter{ReportedBy: reporter})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Fire (contained)", list[0].Title)

		list, err = s.ListIncidents(ctx, IncidentFilter{ReportedBy: reporter, Status: models.StatusReported})
		require.NoError(t, err)
		assert.Empty(t, list)

		reported := models.StatusReported
		updated, err = s.UpdateIncident(ctx, in.ID, IncidentPatch{Status: &reported, ClearResolvedAt: true})
		require.NoError(t, err)
		assert.Equal(t, models.StatusReported, updated.Status)
		assert.Nil(t, updated.ResolvedAt)

		ok, err := s.DeleteIncident(ctx, in.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.DeleteIncident(ctx, in.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.UpdateIncident(ctx, in.ID, IncidentPatch{Title: ptr("gone")})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("resources", func(t *testing.T) {
		org := "Fire Department " + suffix
		r, err := s.CreateResource(ctx, models.Resource{
			Name: "Fire Truck #1", Type: "vehicle", Category: "firefighting",
			Quantity: 1, Available: 1, Organization: org,
		})
		require.NoError(t, err)
		assert.Equal(t, models.ResourceAvailable, r.Status)
		assert.Nil(t, r.Description)
		assert.Nil(t, r.Location)

		deployed := models.ResourceDeployed
		r2, err := s.UpdateResource(ctx, r.ID, ResourcePatch{Available: ptr(0), Status: &deployed})
		require.NoError(t, err)
		assert.Equal(t, 0, r2.Available)
		assert.Equal(t, 1, r2.Quantity)

		list, err := s.ListResources(ctx, ResourceFilter{Organization: org, Status: models.ResourceDeployed})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		ok, err := s.DeleteResource(ctx, r.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("allocations", func(t *testing.T) {
		incidentID := "incident-" + suffix
		a, err := s.CreateAllocation(ctx, models.ResourceAllocation{
			ResourceID: "resource-" + suffix, IncidentID: incidentID, Quantity: 2, AllocatedBy: "coordinator",
		})
		require.NoError(t, err)
		assert.Equal(t, models.AllocationAllocated, a.Status)
		assert.Nil(t, a.ReturnedAt)

		returned := models.AllocationReturned
		now := time.Now().UTC()
		a2, err := s.UpdateAllocation(ctx, a.ID, AllocationPatch{Status: &returned, ReturnedAt: &now})
		require.NoError(t, err)
		assert.Equal(t, models.AllocationReturned, a2.Status)
		assert.NotNil(t, a2.ReturnedAt)

		list, err := s.ListAllocations(ctx, AllocationFilter{IncidentID: incidentID})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("alerts", func(t *testing.T) {
		a, err := s.CreateAlert(ctx, models.Alert{
			Title: "Flood Warning", Message: "Avoid River Rd", Type: models.AlertWarning,
			Priority: models.LevelHigh, CreatedBy: "coordinator-" + suffix,
		})
		require.NoError(t, err)
		assert.Nil(t, a.ExpiresAt)
		assert.Nil(t, a.IncidentID)

		a2, err := s.UpdateAlert(ctx, a.ID, AlertPatch{TargetUsers: []string{"citizen"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"citizen"}, []string(a2.TargetUsers))
		assert.Equal(t, "Flood Warning", a2.Title)

		_, err = s.UpdateAlert(ctx, "missing-"+suffix, AlertPatch{})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("notifications", func(t *testing.T) {
		userID := "user-" + suffix
		n, err := s.CreateNotification(ctx, models.Notification{
			UserID: userID, Title: "Status changed", Message: "Your report is in progress", Type: "incident_status",
			Data: models.JSONMap{"incident_id": "1"},
		})
		require.NoError(t, err)
		assert.False(t, n.Read)

		_, err = s.CreateNotification(ctx, models.Notification{
			UserID: "someone-else-" + suffix, Title: "x", Message: "y", Type: "info",
		})
		require.NoError(t, err)

		list, err := s.ListNotifications(ctx, userID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "1", list[0].Data["incident_id"])

		ok, err := s.MarkNotificationRead(ctx, n.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.MarkNotificationRead(ctx, "missing-"+suffix)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.GetNotification(ctx, n.ID)
		require.NoError(t, err)
		assert.True(t, got.Read)
	})

	t.Run("analytics", func(t *testing.T) {
		marker := "run-" + suffix
		_, err := s.CreateAnalyticsEntry(ctx, models.AnalyticsEntry{
			Type: models.AnalyticsResponseTime, Period: models.PeriodDaily, Data: models.JSONMap{"marker": marker},
		})
		require.NoError(t, err)
		_, err = s.CreateAnalyticsEntry(ctx, models.AnalyticsEntry{
			Type: models.AnalyticsResponseTime, Period: models.PeriodWeekly, Data: models.JSONMap{"marker": marker},
		})
		require.NoError(t, err)

		list, err := s.ListAnalytics(ctx, AnalyticsFilter{Type: models.AnalyticsResponseTime, Period: models.PeriodWeekly})
		require.NoError(t, err)
		found := 0
		for _, e := range list {
			assert.Equal(t, models.PeriodWeekly, e.Period)
			if e.Data["marker"] == marker {
				found++
			}
		}
		assert.Equal(t, 1, found)
	})

	t.Run("sessions", func(t *testing.T) {
		userID := "user-" + suffix
		first := models.Session{SessionID: uuid.NewString(), UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}
		require.NoError(t, s.CreateSession(ctx, first))
		second := models.Session{SessionID: uuid.NewString(), UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}
		require.NoError(t, s.CreateSession(ctx, second))

		_, err := s.FindSession(ctx, first.SessionID)
		assert.ErrorIs(t, err, ErrNotFound)
		got, err := s.FindSession(ctx, second.SessionID)
		require.NoError(t, err)
		assert.Equal(t, userID, got.UserID)

		ok, err := s.DeleteSession(ctx, second.SessionID)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
