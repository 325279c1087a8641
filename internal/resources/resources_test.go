package resources_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/EcoWatch/EcoWatch-Backend/internal/apitest"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/resources"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	env         *apitest.Env
	svc         *resources.Service
	routes      http.Handler
	allocations http.Handler

	citizen, coord, fire, police models.User
	incident                     models.Incident
}

func newFixture(t *testing.T) *fixture {
	env := apitest.NewEnv()
	svc := resources.NewService(env.Store, zap.NewNop())
	h := resources.NewHandler(svc, zap.NewNop())
	f := &fixture{
		env:         env,
		svc:         svc,
		routes:      resources.SetupRoutes(h, env.Fetcher),
		allocations: resources.SetupAllocationRoutes(h, env.Fetcher),
		citizen:     env.AddUser(t, models.RoleCitizen, ""),
		coord:       env.AddUser(t, models.RoleCoordinator, ""),
		fire:        env.AddUser(t, models.RoleAgency, "Fire Department"),
		police:      env.AddUser(t, models.RoleAgency, "Police"),
	}
	in, err := env.Store.CreateIncident(context.Background(), models.Incident{
		Title: "Building Fire", Description: "Smoke from the third floor", Category: "fire",
		Severity: models.LevelHigh, Location: models.Location{Lat: 40.7, Lng: -74}, ReportedBy: f.citizen.ID,
	})
	require.NoError(t, err)
	f.incident = in
	return f
}

func (f *fixture) addTruck(t *testing.T, quantity int) models.Resource {
	t.Helper()
	rec := f.env.Do(t, f.routes, http.MethodPost, "/", &f.fire, map[string]interface{}{
		"name": "Fire Truck", "type": "vehicle", "category": "fire", "quantity": quantity,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return apitest.Decode[models.Resource](t, rec)
}

func TestCreateResource(t *testing.T) {
	f := newFixture(t)
	truck := f.addTruck(t, 3)
	assert.Equal(t, "Fire Department", truck.Organization, "agency org is filled in")
	assert.Equal(t, 3, truck.Available)
	assert.Equal(t, models.ResourceAvailable, truck.Status)

	rec := f.env.Do(t, f.routes, http.MethodPost, "/", &f.citizen, map[string]interface{}{
		"name": "Shovels", "type": "equipment", "quantity": 5, "organization": "Parks",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.env.Do(t, f.routes, http.MethodPost, "/", &f.fire, map[string]interface{}{
		"name": "Patrol Car", "type": "vehicle", "quantity": 2, "organization": "Police",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.env.Do(t, f.routes, http.MethodPost, "/", &f.coord, map[string]interface{}{
		"name": "Sandbags", "type": "supplies", "quantity": 100,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "coordinators must name an organization")

	rec = f.env.Do(t, f.routes, http.MethodPost, "/", &f.coord, map[string]interface{}{
		"name": "Sandbags", "type": "supplies", "quantity": 100, "available": 120, "organization": "Public Works",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.env.Do(t, f.routes, http.MethodPost, "/", &f.coord, map[string]interface{}{
		"name": "Hovercraft", "type": "spaceship", "quantity": 1, "organization": "Public Works",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.env.Do(t, f.routes, http.MethodGet, "/?organization=Fire+Department", &f.citizen, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, apitest.Decode[[]models.Resource](t, rec), 1)
}

func TestUpdateAndDeleteScopedToOrganization(t *testing.T) {
	f := newFixture(t)
	truck := f.addTruck(t, 3)

	rec := f.env.Do(t, f.routes, http.MethodPatch, "/"+truck.ID, &f.police, map[string]interface{}{"name": "Mine"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+truck.ID, &f.fire, map[string]interface{}{"quantity": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "available would exceed quantity")

	rec = f.env.Do(t, f.routes, http.MethodPatch, "/"+truck.ID, &f.fire, map[string]interface{}{"quantity": 4, "status": "maintenance"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := apitest.Decode[models.Resource](t, rec)
	assert.Equal(t, 4, got.Quantity)
	assert.Equal(t, models.ResourceMaintenance, got.Status)

	rec = f.env.Do(t, f.routes, http.MethodDelete, "/"+truck.ID, &f.police, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = f.env.Do(t, f.routes, http.MethodDelete, "/"+truck.ID, &f.coord, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.env.Do(t, f.routes, http.MethodGet, "/"+truck.ID, &f.coord, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAllocationLifecycle(t *testing.T) {
	f := newFixture(t)
	truck := f.addTruck(t, 2)

	rec := f.env.Do(t, f.allocations, http.MethodPost, "/", &f.coord, map[string]interface{}{
		"resource_id": truck.ID, "incident_id": f.incident.ID, "quantity": 3,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.env.Do(t, f.allocations, http.MethodPost, "/", &f.coord, map[string]interface{}{
		"resource_id": truck.ID, "incident_id": "nope", "quantity": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.env.Do(t, f.allocations, http.MethodPost, "/", &f.coord, map[string]interface{}{
		"resource_id": truck.ID, "incident_id": f.incident.ID, "quantity": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.env.Do(t, f.allocations, http.MethodPost, "/", &f.police, map[string]interface{}{
		"resource_id": truck.ID, "incident_id": f.incident.ID, "quantity": 1,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.env.Do(t, f.allocations, http.MethodPost, "/", &f.citizen, map[string]interface{}{
		"resource_id": truck.ID, "incident_id": f.incident.ID, "quantity": 1,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.env.Do(t, f.allocations, http.MethodPost, "/", &f.fire, map[string]interface{}{
		"resource_id": truck.ID, "incident_id": f.incident.ID, "quantity": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := apitest.Decode[models.ResourceAllocation](t, rec)
	assert.Equal(t, models.AllocationAllocated, a.Status)
	assert.Equal(t, f.fire.ID, a.AllocatedBy)

	res, err := f.env.Store.GetResource(context.Background(), truck.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Available)
	assert.Equal(t, models.ResourceDeployed, res.Status)

	rec = f.env.Do(t, f.routes, http.MethodDelete, "/"+truck.ID, &f.coord, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "resource still has units out")

	rec = f.env.Do(t, f.allocations, http.MethodGet, "/?incident_id="+f.incident.ID, &f.coord, nil)
	assert.Len(t, apitest.Decode[[]models.ResourceAllocation](t, rec), 1)

	rec = f.env.Do(t, f.allocations, http.MethodPost, "/"+a.ID+"/return", &f.fire, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	returned := apitest.Decode[models.ResourceAllocation](t, rec)
	assert.Equal(t, models.AllocationReturned, returned.Status)
	assert.NotNil(t, returned.ReturnedAt)

	res, _ = f.env.Store.GetResource(context.Background(), truck.ID)
	assert.Equal(t, 2, res.Available)
	assert.Equal(t, models.ResourceAvailable, res.Status)

	rec = f.env.Do(t, f.allocations, http.MethodPost, "/"+a.ID+"/return", &f.fire, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.env.Do(t, f.allocations, http.MethodPost, "/missing/return", &f.fire, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMarkLostWritesOffQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	truck := f.addTruck(t, 5)
	fire := resources.Caller{ID: f.fire.ID, Role: models.RoleAgency, Org: "Fire Department"}

	a, err := f.svc.Allocate(ctx, fire, resources.AllocateInput{ResourceID: truck.ID, IncidentID: f.incident.ID, Quantity: 2})
	require.NoError(t, err)

	lost, err := f.svc.MarkLost(ctx, fire, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AllocationLost, lost.Status)
	assert.Nil(t, lost.ReturnedAt)

	res, err := f.env.Store.GetResource(ctx, truck.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Quantity)
	assert.Equal(t, 3, res.Available)
}

func TestReturnCapsAtQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	truck := f.addTruck(t, 4)
	coord := resources.Caller{ID: f.coord.ID, Role: models.RoleCoordinator}

	a, err := f.svc.Allocate(ctx, coord, resources.AllocateInput{ResourceID: truck.ID, IncidentID: f.incident.ID, Quantity: 3})
	require.NoError(t, err)

	// Someone restocked the resource while the units were out.
	four := 4
	_, err = f.svc.Update(ctx, coord, truck.ID, resources.UpdateInput{Available: &four})
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, coord, a.ID)
	require.NoError(t, err)
	res, _ := f.env.Store.GetResource(ctx, truck.ID)
	assert.Equal(t, 4, res.Available)
}

func TestConcurrentAllocationsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	truck := f.addTruck(t, 10)
	coord := resources.Caller{ID: f.coord.ID, Role: models.RoleCoordinator}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, shortage int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Allocate(ctx, coord, resources.AllocateInput{ResourceID: truck.ID, IncidentID: f.incident.ID, Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, storage.ErrInsufficient):
				shortage++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 15, shortage)
	res, err := f.env.Store.GetResource(ctx, truck.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Available)
	assert.Equal(t, models.ResourceDeployed, res.Status)
}

func TestMaintenanceBlocksAllocation(t *testing.T) {
	f := newFixture(t)
	truck := f.addTruck(t, 2)
	rec := f.env.Do(t, f.routes, http.MethodPatch, "/"+truck.ID, &f.fire, map[string]interface{}{"status": "maintenance"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.env.Do(t, f.allocations, http.MethodPost, "/", &f.fire, map[string]interface{}{
		"resource_id": truck.ID, "incident_id": f.incident.ID, "quantity": 1,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
