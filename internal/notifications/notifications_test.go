package notifications_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/EcoWatch/EcoWatch-Backend/internal/apitest"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListUnreadFirst(t *testing.T) {
	env := apitest.NewEnv()
	ctx := context.Background()
	user := env.AddUser(t, models.RoleCitizen, "")
	other := env.AddUser(t, models.RoleCitizen, "")

	first, err := env.Store.CreateNotification(ctx, models.Notification{UserID: user.ID, Title: "a", Message: "a", Type: "info"})
	require.NoError(t, err)
	_, err = env.Store.CreateNotification(ctx, models.Notification{UserID: user.ID, Title: "b", Message: "b", Type: "info"})
	require.NoError(t, err)
	_, err = env.Store.CreateNotification(ctx, models.Notification{UserID: other.ID, Title: "x", Message: "x", Type: "info"})
	require.NoError(t, err)

	h := notifications.SetupRoutes(notifications.NewHandler(env.Store, zap.NewNop()), env.Fetcher)

	// Mark the older one read via the API; it should sink to the bottom.
	rec := env.Do(t, h, http.MethodPost, "/"+first.ID+"/read", &user, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, apitest.Decode[models.Notification](t, rec).Read)

	rec = env.Do(t, h, http.MethodGet, "/", &user, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := apitest.Decode[[]models.Notification](t, rec)
	require.Len(t, list, 2)
	assert.False(t, list[0].Read)
	assert.Equal(t, "b", list[0].Title)
	assert.True(t, list[1].Read)

	rec = env.Do(t, h, http.MethodGet, "/?unread=true", &user, nil)
	assert.Len(t, apitest.Decode[[]models.Notification](t, rec), 1)
}

func TestMarkReadOwnerOnly(t *testing.T) {
	env := apitest.NewEnv()
	owner := env.AddUser(t, models.RoleCitizen, "")
	intruder := env.AddUser(t, models.RoleCoordinator, "")
	n, err := env.Store.CreateNotification(context.Background(), models.Notification{UserID: owner.ID, Title: "t", Message: "m", Type: "info"})
	require.NoError(t, err)

	h := notifications.SetupRoutes(notifications.NewHandler(env.Store, zap.NewNop()), env.Fetcher)

	rec := env.Do(t, h, http.MethodPost, "/"+n.ID+"/read", &intruder, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.Do(t, h, http.MethodPost, "/missing/read", &owner, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.Do(t, h, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	got, err := env.Store.GetNotification(context.Background(), n.ID)
	require.NoError(t, err)
	assert.False(t, got.Read)
}

func TestAlertFanOut(t *testing.T) {
	env := apitest.NewEnv()
	ctx := context.Background()
	coord := env.AddUser(t, models.RoleCoordinator, "")
	citizen := env.AddUser(t, models.RoleCitizen, "")
	agency := env.AddUser(t, models.RoleAgency, "Fire Department")

	n := notifications.NewNotifier(env.Store, zap.NewNop())

	sent, err := n.AlertIssued(ctx, models.Alert{ID: "a1", Title: "Flood", Message: "Move uphill", Type: models.AlertEmergency, CreatedBy: coord.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, sent, "everyone but the author")

	sent, err = n.AlertIssued(ctx, models.Alert{ID: "a2", Title: "Crews", Message: "Stage at depot", Type: models.AlertInfo,
		CreatedBy: coord.ID, TargetUsers: []string{"agency"}})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	agencyNotes, _ := env.Store.ListNotifications(ctx, agency.ID)
	assert.Len(t, agencyNotes, 2)
	citizenNotes, _ := env.Store.ListNotifications(ctx, citizen.ID)
	require.Len(t, citizenNotes, 1)
	assert.Equal(t, "a1", citizenNotes[0].Data["alert_id"])
}

func TestTargets(t *testing.T) {
	a := models.Alert{TargetUsers: []string{"authority", "user-7"}}
	assert.True(t, notifications.Targets(a, "u1", models.RoleCoordinator))
	assert.True(t, notifications.Targets(a, "user-7", models.RoleCitizen))
	assert.False(t, notifications.Targets(a, "u2", models.RoleCitizen))
	assert.True(t, notifications.Targets(models.Alert{}, "anyone", models.RoleAgency))
}
