package resources

import (
	"context"
	"errors"
	"fmt"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"go.uber.org/zap"
)

type AllocateInput struct {
	ResourceID string `json:"resource_id"`
	IncidentID string `json:"incident_id"`
	Quantity   int    `json:"quantity"`
}

func (s *Service) ListAllocations(ctx context.Context, f storage.AllocationFilter) ([]models.ResourceAllocation, error) {
	return s.store.ListAllocations(ctx, f)
}

// statusFor derives the status after a change in availability. Resources
// under maintenance stay there.
func statusFor(r models.Resource, available int) models.ResourceStatus {
	if r.Status == models.ResourceMaintenance {
		return r.Status
	}
	if available == 0 {
		return models.ResourceDeployed
	}
	return models.ResourceAvailable
}

// Allocate sends in.Quantity units of a resource to an incident.
func (s *Service) Allocate(ctx context.Context, c Caller, in AllocateInput) (models.ResourceAllocation, error) {
	if in.ResourceID == "" || in.IncidentID == "" {
		return models.ResourceAllocation{}, invalid("resource_id and incident_id are required")
	}
	if in.Quantity <= 0 {
		return models.ResourceAllocation{}, invalid("quantity must be positive")
	}
	if _, err := s.store.GetIncident(ctx, in.IncidentID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.ResourceAllocation{}, invalid("incident %s does not exist", in.IncidentID)
		}
		return models.ResourceAllocation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.store.GetResource(ctx, in.ResourceID)
	if err != nil {
		return models.ResourceAllocation{}, err
	}
	if !c.canManage(r) {
		return models.ResourceAllocation{}, fmt.Errorf("%w: resource belongs to another organization", ErrForbidden)
	}
	if r.Status == models.ResourceMaintenance {
		return models.ResourceAllocation{}, fmt.Errorf("resource %s is under maintenance: %w", r.ID, storage.ErrInsufficient)
	}
	if in.Quantity > r.Available {
		return models.ResourceAllocation{}, fmt.Errorf("requested %d of %s, %d available: %w",
			in.Quantity, r.ID, r.Available, storage.ErrInsufficient)
	}

	available := r.Available - in.Quantity
	status := statusFor(r, available)
	if _, err := s.store.UpdateResource(ctx, r.ID, storage.ResourcePatch{Available: &available, Status: &status}); err != nil {
		return models.ResourceAllocation{}, err
	}

	a, err := s.store.CreateAllocation(ctx, models.ResourceAllocation{
		ResourceID:  r.ID,
		IncidentID:  in.IncidentID,
		Quantity:    in.Quantity,
		AllocatedBy: c.ID,
	})
	if err != nil {
		// Put the units back so availability matches the allocation table.
		if _, rerr := s.store.UpdateResource(ctx, r.ID, storage.ResourcePatch{Available: &r.Available, Status: &r.Status}); rerr != nil {
			s.log.Error("[resources] availability rollback failed", zap.String("resource_id", r.ID), zap.Error(rerr))
		}
		return models.ResourceAllocation{}, err
	}
	s.log.Info("[resources] allocated",
		zap.String("allocation_id", a.ID),
		zap.String("resource_id", r.ID),
		zap.String("incident_id", in.IncidentID),
		zap.Int("quantity", in.Quantity),
		zap.Int("available", available))
	return a, nil
}

// settle closes an active allocation. Returned units go back into
// Available; lost units are written off Quantity.
func (s *Service) settle(ctx context.Context, c Caller, id string, to models.AllocationStatus) (models.ResourceAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.store.GetAllocation(ctx, id)
	if err != nil {
		return models.ResourceAllocation{}, err
	}
	if a.Status != models.AllocationAllocated {
		return models.ResourceAllocation{}, fmt.Errorf("allocation %s is already %s: %w", id, a.Status, storage.ErrConflict)
	}
	r, err := s.store.GetResource(ctx, a.ResourceID)
	if err != nil {
		return models.ResourceAllocation{}, err
	}
	if !c.canManage(r) {
		return models.ResourceAllocation{}, fmt.Errorf("%w: resource belongs to another organization", ErrForbidden)
	}

	quantity, available := r.Quantity, r.Available
	patch := storage.AllocationPatch{Status: &to}
	switch to {
	case models.AllocationReturned:
		available = min(available+a.Quantity, quantity)
		now := s.now()
		patch.ReturnedAt = &now
	case models.AllocationLost:
		quantity = max(quantity-a.Quantity, 0)
		available = min(available, quantity)
	}
	status := statusFor(r, available)
	if _, err := s.store.UpdateResource(ctx, r.ID, storage.ResourcePatch{
		Quantity: &quantity, Available: &available, Status: &status,
	}); err != nil {
		return models.ResourceAllocation{}, err
	}

	updated, err := s.store.UpdateAllocation(ctx, id, patch)
	if err != nil {
		return models.ResourceAllocation{}, err
	}
	s.log.Info("[resources] allocation settled",
		zap.String("allocation_id", id),
		zap.String("status", string(to)),
		zap.Int("quantity", quantity),
		zap.Int("available", available))
	return updated, nil
}

func (s *Service) Return(ctx context.Context, c Caller, id string) (models.ResourceAllocation, error) {
	return s.settle(ctx, c, id, models.AllocationReturned)
}

func (s *Service) MarkLost(ctx context.Context, c Caller, id string) (models.ResourceAllocation, error) {
	return s.settle(ctx, c, id, models.AllocationLost)
}
