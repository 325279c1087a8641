package incidents_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/EcoWatch/EcoWatch-Backend/internal/apitest"
	"github.com/EcoWatch/EcoWatch-Backend/internal/geocoding"
	"github.com/EcoWatch/EcoWatch-Backend/internal/incidents"
	"github.com/EcoWatch/EcoWatch-Backend/internal/media"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/notifications"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGeocoder struct {
	calls int
	err   error
}

func (f *fakeGeocoder) Reverse(ctx context.Context, lat, lng float64) (*geocoding.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &geocoding.Result{Formatted: "1 Market Sq, London"}, nil
}

type fixture struct {
	env     *apitest.Env
	svc     *incidents.Service
	blobs   *media.Memory
	geo     *fakeGeocoder
	routes  http.Handler
	reports http.Handler

	citizen, other, coord, agency models.User
}

func newFixture(t *testing.T) *fixture {
	env := apitest.NewEnv()
	log := zap.NewNop()
	f := &fixture{env: env, blobs: media.NewMemory(), geo: &fakeGeocoder{}}
	f.svc = incidents.NewService(env.Store, notifications.NewNotifier(env.Store, log), f.blobs, log,
		incidents.WithGeocoder(f.geo))
	h := incidents.NewHandler(f.svc, log)
	f.routes = incidents.SetupRoutes(h, env.Fetcher, nil)
	f.reports = incidents.SetupReportRoutes(h, env.Fetcher, nil)

	f.citizen = env.AddUser(t, models.RoleCitizen, "")
	f.other = env.AddUser(t, models.RoleCitizen, "")
	f.coord = env.AddUser(t, models.RoleCoordinator, "")
	f.agency = env.AddUser(t, models.RoleAgency, "Fire Department")
	return f
}

func (f *fixture) create(t *testing.T, as models.User, title string) models.Incident {
	t.Helper()
	rec := f.env.Do(t, f.routes, http.MethodPost, "/", &as, map[string]interface{}{
		"title":       title,
		"description": title + " on Main Street",
		"category":    "fire",
		"severity":    "high",
		"location":    map[string]interface{}{"lat": 40.7128, "lng": -74.006, "address": "123 Main St"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return apitest.Decode[models.Incident](t, rec)
}

func TestCreateAndVisibility(t *testing.T) {
	f := newFixture(t)
	mine := f.create(t, f.citizen, "Building Fire")
	f.create(t, f.other, "Smoke")

	assert.Equal(t, models.StatusReported, mine.Status)
	assert.Equal(t, models.LevelMedium, mine.Priority)
	assert.Equal(t, f.citizen.ID, mine.ReportedBy)
	assert.Equal(t, 0, f.geo.calls, "address was supplied")

	rec := f.env.Do(t, f.routes, http.MethodGet, "/", &f.citizen, nil)
	list := apitest.Decode[[]models.Incident](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	rec = f.env.Do(t, f.routes, http.MethodGet, "/?reported_by="+f.other.ID, &f.citizen, nil)
	assert.Len(t, apitest.Decode[[]models.Incident](t, rec), 1, "citizens cannot widen the filter")

	rec = f.env.Do(t, f.routes, http.MethodGet, "/", &f.coord, nil)
	assert.Len(t, apitest.Decode[[]models.Incident](t, rec), 2)

	rec = f.env.Do(t, f.routes, http.MethodGet, "/"+mine.ID, &f.other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.env.Do(t, f.routes, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	cases := []map[string]interface{}{
		{"description": "no title", "location": map[string]float64{"lat": 1, "lng": 1}},
		{"title": "t", "description": "d", "category": "alien", "location": map[string]float64{"lat": 1, "lng": 1}},
		{"title": "t", "description": "d", "severity": "apocalyptic", "location": map[string]float64{"lat": 1, "lng": 1}},
		{"title": "t", "description": "d", "location": map[string]float64{"lat": 91, "lng": 1}},
	}
	for _, body := range cases {
		rec := f.env.Do(t, f.routes, http.MethodPost, "/", &f.citizen, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestReverseGeocodeFillsAddress(t *testing.T) {
	f := newFixture(t)
	in, err := f.svc.Create(context.Background(), incidents.Caller{ID: f.citizen.ID, Role: models.RoleCitizen}, incidents.CreateInput{
		Title: "Dumped tyres", Description: "Pile of tyres", Category: "waste",
		Location: models.Location{Lat: 51.505, Lng: -0.09},
	})
	require.NoError(t, err)
	assert.Equal(t, "1 Market Sq, London", in.Location.Address)

	f.geo.err = errors.New("quota")
	in, err = f.svc.Create(context.Background(), incidents.Caller{ID: f.citizen.ID, Role: models.RoleCitizen}, incidents.CreateInput{
		Title: "More tyres", Description: "Another pile", Location: models.Location{Lat: 51.5, Lng: -0.1},
	})
	require.NoError(t, err, "a failed lookup must not block the report")
	assert.Empty(t, in.Location.Address)
	assert.Equal(t, "other", in.Category)
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	in := f.create(t, f.citizen, "Building Fire")

	rec := f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/status", &f.citizen, map[string]string{"status": "resolved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/status", &f.coord, map[string]string{"status": "in-progress"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusInProgress, apitest.Decode[models.Incident](t, rec).Status)

	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/status", &f.coord, map[string]string{"status": "acknowledged"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/status", &f.agency, map[string]string{"status": "resolved"})
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := apitest.Decode[models.Incident](t, rec)
	assert.NotNil(t, resolved.ResolvedAt)

	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/status", &f.coord, map[string]string{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	notes, err := f.env.Store.ListNotifications(context.Background(), f.citizen.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	for _, n := range notes {
		assert.Equal(t, notifications.TypeIncidentStatus, n.Type)
		assert.Equal(t, in.ID, n.Data["incident_id"])
	}
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	in := f.create(t, f.citizen, "Flooded underpass")

	rec := f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/assign", &f.coord, map[string]string{"assigned_to": f.citizen.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "only agency users take assignments")

	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/assign", &f.coord, map[string]string{"assigned_to": f.agency.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := apitest.Decode[models.Incident](t, rec)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, f.agency.ID, *got.AssignedTo)

	notes, _ := f.env.Store.ListNotifications(context.Background(), f.agency.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, notifications.TypeIncidentAssigned, notes[0].Type)

	rec = f.env.Do(t, f.routes, http.MethodGet, "/?assigned_to="+f.agency.ID, &f.agency, nil)
	assert.Len(t, apitest.Decode[[]models.Incident](t, rec), 1)

	// A second agency user cannot take it over.
	rival := f.env.AddUser(t, models.RoleAgency, "Police")
	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/assign", &rival, map[string]string{"assigned_to": rival.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/assign", &rival, map[string]string{"assigned_to": f.agency.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Coordinator clears, then the rival claims it.
	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/assign", &f.coord, map[string]string{"assigned_to": ""})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, apitest.Decode[models.Incident](t, rec).AssignedTo)
	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/assign", &rival, map[string]string{"assigned_to": rival.ID})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/assign", &f.citizen, map[string]string{"assigned_to": f.agency.ID})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCitizenUpdateRules(t *testing.T) {
	f := newFixture(t)
	in := f.create(t, f.citizen, "Fire")

	rec := f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID, &f.citizen, map[string]string{"title": "Big fire"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Big fire", apitest.Decode[models.Incident](t, rec).Title)

	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID, &f.citizen, map[string]string{"priority": "critical"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID, &f.other, map[string]string{"title": "mine now"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID, &f.coord, map[string]string{"priority": "critical"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.LevelCritical, apitest.Decode[models.Incident](t, rec).Priority)

	f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/status", &f.coord, map[string]string{"status": "acknowledged"})
	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID, &f.citizen, map[string]string{"title": "too late"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	pending := f.create(t, f.citizen, "Pending")
	handled := f.create(t, f.citizen, "Handled")
	f.env.Do(t, f.routes, http.MethodPatch, "/"+handled.ID+"/status", &f.coord, map[string]string{"status": "acknowledged"})

	rec := f.env.Do(t, f.routes, http.MethodDelete, "/"+handled.ID, &f.citizen, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.env.Do(t, f.routes, http.MethodDelete, "/"+pending.ID, &f.agency, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.env.Do(t, f.routes, http.MethodDelete, "/"+pending.ID, &f.citizen, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.env.Do(t, f.routes, http.MethodDelete, "/"+handled.ID, &f.coord, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.env.Do(t, f.routes, http.MethodDelete, "/"+handled.ID, &f.coord, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func multipartImage(t *testing.T, path string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "photo.bin")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func TestUploadImage(t *testing.T) {
	f := newFixture(t)
	in := f.create(t, f.citizen, "Oil spill")

	rec := f.env.Send(t, f.routes, multipartImage(t, "/"+in.ID+"/images", pngBytes), &f.citizen)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := apitest.Decode[models.Incident](t, rec)
	require.Len(t, got.Images, 1)
	assert.True(t, strings.HasPrefix(got.Images[0], "/media/incidents/"+in.ID+"/"))
	assert.True(t, strings.HasSuffix(got.Images[0], ".png"))

	key, _ := media.KeyFromURL(got.Images[0])
	info, body, err := f.blobs.Get(context.Background(), key)
	require.NoError(t, err)
	body.Close()
	assert.Equal(t, "image/png", info.ContentType)

	rec = f.env.Send(t, f.routes, multipartImage(t, "/"+in.ID+"/images", []byte("just some text")), &f.citizen)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.env.Send(t, f.routes, multipartImage(t, "/"+in.ID+"/images", pngBytes), &f.other)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Deleting the incident removes its images.
	rec = f.env.Do(t, f.routes, http.MethodDelete, "/"+in.ID, &f.citizen, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, _, err = f.blobs.Get(context.Background(), key)
	assert.ErrorIs(t, err, media.ErrNotFound)
}

func TestFileExternalDedupes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	input := incidents.CreateInput{
		Title: "Graffiti", Description: "Tagged wall", Category: "other",
		Location: models.Location{Lat: 1, Lng: 2, Address: "Wall St"},
	}

	first, created, err := f.svc.FileExternal(ctx, f.coord.ID, "sub-1", input)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := f.svc.FileExternal(ctx, f.coord.ID, "sub-1", input)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = f.svc.FileExternal(ctx, f.coord.ID, "", input)
	var verr incidents.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestReportsView(t *testing.T) {
	f := newFixture(t)

	rec := f.env.Do(t, f.reports, http.MethodPost, "/", &f.citizen, map[string]interface{}{
		"description": "Overflowing bins behind the library. Been there a week.",
		"imageUrl":    "/media/reports/bins.jpg",
		"location":    map[string]float64{"lat": 40.71, "lng": -74.0},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rep := apitest.Decode[incidents.Report](t, rec)
	assert.Equal(t, incidents.ReportOpen, rep.Status)
	assert.Equal(t, f.citizen.Name, rep.UserName)
	assert.Equal(t, "/media/reports/bins.jpg", rep.ImageURL)

	in, err := f.env.Store.GetIncident(context.Background(), rep.ID)
	require.NoError(t, err)
	assert.Equal(t, "Overflowing bins behind the library", in.Title)
	assert.Equal(t, "waste", in.Category)

	rec = f.env.Do(t, f.reports, http.MethodPatch, "/"+rep.ID+"/status", &f.citizen, map[string]string{"status": "resolved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.env.Do(t, f.reports, http.MethodPatch, "/"+rep.ID+"/status", &f.coord, map[string]string{"status": "open"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, incidents.ReportOpen, apitest.Decode[incidents.Report](t, rec).Status)

	rec = f.env.Do(t, f.reports, http.MethodPatch, "/"+rep.ID+"/status", &f.coord, map[string]string{"status": "in-progress"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, incidents.ReportInProgress, apitest.Decode[incidents.Report](t, rec).Status)

	rec = f.env.Do(t, f.reports, http.MethodPatch, "/"+rep.ID+"/status", &f.coord, map[string]string{"status": "closed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.env.Do(t, f.reports, http.MethodGet, "/?status=in-progress", &f.coord, nil)
	assert.Len(t, apitest.Decode[[]incidents.Report](t, rec), 1)
	rec = f.env.Do(t, f.reports, http.MethodGet, "/?status=resolved", &f.coord, nil)
	assert.Empty(t, apitest.Decode[[]incidents.Report](t, rec))
	rec = f.env.Do(t, f.reports, http.MethodGet, "/", &f.other, nil)
	assert.Empty(t, apitest.Decode[[]incidents.Report](t, rec))
}

func TestReportsStatusMovesBothWays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.create(t, f.citizen, "Illegal dumping")

	set := func(status string) *httptest.ResponseRecorder {
		return f.env.Do(t, f.reports, http.MethodPatch, "/"+in.ID+"/status", &f.coord, map[string]string{"status": status})
	}

	rec := set("in-progress")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = set("open")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, incidents.ReportOpen, apitest.Decode[incidents.Report](t, rec).Status)
	stored, err := f.env.Store.GetIncident(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReported, stored.Status)

	rec = set("resolved")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err = f.env.Store.GetIncident(ctx, in.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ResolvedAt)

	rec = set("in-progress")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err = f.env.Store.GetIncident(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	assert.Nil(t, stored.ResolvedAt)

	set("resolved")
	rec = set("open")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err = f.env.Store.GetIncident(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReported, stored.Status)
	assert.Nil(t, stored.ResolvedAt)

	// The incident route keeps the forward-only graph.
	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/status", &f.coord, map[string]string{"status": "resolved"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+in.ID+"/status", &f.coord, map[string]string{"status": "in-progress"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteKeepsIncidentWithActiveAllocations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := f.create(t, f.citizen, "Chemical spill")

	truck, err := f.env.Store.CreateResource(ctx, models.Resource{
		Name: "Hazmat Truck", Type: "vehicle", Category: "hazmat",
		Quantity: 2, Available: 0, Status: models.ResourceDeployed, Organization: "Fire Department",
	})
	require.NoError(t, err)
	alloc, err := f.env.Store.CreateAllocation(ctx, models.ResourceAllocation{
		ResourceID: truck.ID, IncidentID: in.ID, Quantity: 2, AllocatedBy: f.coord.ID,
	})
	require.NoError(t, err)

	rec := f.env.Do(t, f.routes, http.MethodDelete, "/"+in.ID, &f.coord, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	_, err = f.env.Store.GetIncident(ctx, in.ID)
	require.NoError(t, err, "incident is kept")

	returned := models.AllocationReturned
	_, err = f.env.Store.UpdateAllocation(ctx, alloc.ID, storage.AllocationPatch{Status: &returned})
	require.NoError(t, err)

	rec = f.env.Do(t, f.routes, http.MethodDelete, "/"+in.ID, &f.coord, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
}
