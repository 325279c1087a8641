// Package resources tracks deployable assets and their allocation to
// incidents.
package resources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/EcoWatch/EcoWatch-Backend/internal/utils"
	"go.uber.org/zap"
)

var ErrForbidden = errors.New("not allowed")

type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...interface{}) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type Service struct {
	store storage.Store
	log   *zap.Logger
	now   func() time.Time

	// guards every read-modify-write of Available
	mu sync.Mutex
}

func NewService(store storage.Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// Caller is the acting user. Org is only loaded for agency users.
type Caller struct {
	ID   string
	Role models.Role
	Org  string
}

// CallerFrom reads the session from ctx and, for agency users, looks up
// their organization.
func (s *Service) CallerFrom(ctx context.Context) (Caller, error) {
	id, _ := utils.GetUserIDFromContext(ctx)
	role, _ := utils.GetRoleFromContext(ctx)
	c := Caller{ID: id, Role: role}
	if role != models.RoleAgency {
		return c, nil
	}
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return Caller{}, fmt.Errorf("load caller: %w", err)
	}
	if u.Organization != nil {
		c.Org = *u.Organization
	}
	return c, nil
}

// canManage reports whether c may change r. Agency users are confined to
// their own organization.
func (c Caller) canManage(r models.Resource) bool {
	switch c.Role {
	case models.RoleCoordinator:
		return true
	case models.RoleAgency:
		return c.Org != "" && r.Organization == c.Org
	}
	return false
}

func (s *Service) List(ctx context.Context, f storage.ResourceFilter) ([]models.Resource, error) {
	return s.store.ListResources(ctx, f)
}

func (s *Service) Get(ctx context.Context, id string) (models.Resource, error) {
	return s.store.GetResource(ctx, id)
}

type CreateInput struct {
	Name         string                `json:"name"`
	Type         string                `json:"type"`
	Category     string                `json:"category"`
	Quantity     int                   `json:"quantity"`
	Available    *int                  `json:"available"`
	Location     *models.Location      `json:"location"`
	Status       models.ResourceStatus `json:"status"`
	Organization string                `json:"organization"`
	Description  *string               `json:"description"`
}

func (in *CreateInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	in.Organization = strings.TrimSpace(in.Organization)
	if in.Name == "" {
		return invalid("name is required")
	}
	if !models.ValidResourceTypes[in.Type] {
		return invalid("unknown resource type %q", in.Type)
	}
	if in.Quantity < 0 {
		return invalid("quantity cannot be negative")
	}
	if in.Available == nil {
		q := in.Quantity
		in.Available = &q
	}
	if *in.Available < 0 || *in.Available > in.Quantity {
		return invalid("available must be between 0 and quantity")
	}
	if in.Status == "" {
		in.Status = models.ResourceAvailable
	}
	if !models.ValidResourceStatuses[in.Status] {
		return invalid("unknown resource status %q", in.Status)
	}
	if in.Location != nil && !in.Location.Valid() {
		return invalid("location is out of range")
	}
	return nil
}

// Create registers a resource. Agency users create resources for their own
// organization; coordinators must name one.
func (s *Service) Create(ctx context.Context, c Caller, in CreateInput) (models.Resource, error) {
	if err := in.validate(); err != nil {
		return models.Resource{}, err
	}
	if c.Role == models.RoleAgency && in.Organization == "" {
		in.Organization = c.Org
	}
	if in.Organization == "" {
		return models.Resource{}, invalid("organization is required")
	}

	r := models.Resource{
		Name:         in.Name,
		Type:         in.Type,
		Category:     in.Category,
		Quantity:     in.Quantity,
		Available:    *in.Available,
		Location:     in.Location,
		Status:       in.Status,
		Organization: in.Organization,
		Description:  in.Description,
	}
	if !c.canManage(r) {
		return models.Resource{}, fmt.Errorf("%w: resource belongs to another organization", ErrForbidden)
	}
	created, err := s.store.CreateResource(ctx, r)
	if err != nil {
		return models.Resource{}, err
	}
	s.log.Info("[resources] created",
		zap.String("id", created.ID), zap.String("type", created.Type),
		zap.String("organization", created.Organization), zap.Int("quantity", created.Quantity))
	return created, nil
}

type UpdateInput struct {
	Name         *string                `json:"name"`
	Type         *string                `json:"type"`
	Category     *string                `json:"category"`
	Quantity     *int                   `json:"quantity"`
	Available    *int                   `json:"available"`
	Location     *models.Location       `json:"location"`
	Status       *models.ResourceStatus `json:"status"`
	Organization *string                `json:"organization"`
	Description  *string                `json:"description"`
}

func (s *Service) Update(ctx context.Context, c Caller, id string, u UpdateInput) (models.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.GetResource(ctx, id)
	if err != nil {
		return models.Resource{}, err
	}
	if !c.canManage(current) {
		return models.Resource{}, fmt.Errorf("%w: resource belongs to another organization", ErrForbidden)
	}

	switch {
	case u.Name != nil && strings.TrimSpace(*u.Name) == "":
		return models.Resource{}, invalid("name cannot be empty")
	case u.Type != nil && !models.ValidResourceTypes[*u.Type]:
		return models.Resource{}, invalid("unknown resource type %q", *u.Type)
	case u.Status != nil && !models.ValidResourceStatuses[*u.Status]:
		return models.Resource{}, invalid("unknown resource status %q", *u.Status)
	case u.Location != nil && !u.Location.Valid():
		return models.Resource{}, invalid("location is out of range")
	case u.Organization != nil && c.Role == models.RoleAgency && *u.Organization != c.Org:
		return models.Resource{}, fmt.Errorf("%w: cannot move a resource to another organization", ErrForbidden)
	}

	quantity, available := current.Quantity, current.Available
	if u.Quantity != nil {
		quantity = *u.Quantity
	}
	if u.Available != nil {
		available = *u.Available
	}
	if quantity < 0 || available < 0 || available > quantity {
		return models.Resource{}, invalid("available must be between 0 and quantity")
	}

	return s.store.UpdateResource(ctx, id, storage.ResourcePatch{
		Name:         u.Name,
		Type:         u.Type,
		Category:     u.Category,
		Quantity:     u.Quantity,
		Available:    u.Available,
		Location:     u.Location,
		Status:       u.Status,
		Organization: u.Organization,
		Description:  u.Description,
	})
}

// Delete refuses while any of the resource's allocations are still out.
func (s *Service) Delete(ctx context.Context, c Caller, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.GetResource(ctx, id)
	if err != nil {
		return err
	}
	if !c.canManage(current) {
		return fmt.Errorf("%w: resource belongs to another organization", ErrForbidden)
	}
	out, err := s.store.ListAllocations(ctx, storage.AllocationFilter{ResourceID: id, Status: models.AllocationAllocated})
	if err != nil {
		return err
	}
	if len(out) > 0 {
		return fmt.Errorf("resource %s has %d active allocations: %w", id, len(out), storage.ErrConflict)
	}
	if _, err := s.store.DeleteResource(ctx, id); err != nil {
		return err
	}
	s.log.Info("[resources] deleted", zap.String("id", id), zap.String("by", c.ID))
	return nil
}
