// Package incidents handles citizen reports: filing, triage, assignment,
// status changes and image attachments.
package incidents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/geocoding"
	"github.com/EcoWatch/EcoWatch-Backend/internal/media"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/notifications"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/EcoWatch/EcoWatch-Backend/internal/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrForbidden         = errors.New("not allowed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError is returned for bad input and maps to 400.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...interface{}) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Geocoder looks up an address for a coordinate.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (*geocoding.Result, error)
}

// UploadRecorder counts stored images. Satisfied by *metrics.Metrics.
type UploadRecorder interface {
	ImageUploaded()
}

type Service struct {
	store    storage.Store
	notifier *notifications.Notifier
	media    media.Store
	geocoder Geocoder
	uploads  UploadRecorder
	log      *zap.Logger

	// serializes read-check-write on status and assignment
	mu sync.Mutex
}

type Option func(*Service)

func WithGeocoder(g Geocoder) Option { return func(s *Service) { s.geocoder = g } }

func WithUploadRecorder(u UploadRecorder) Option { return func(s *Service) { s.uploads = u } }

func NewService(store storage.Store, notifier *notifications.Notifier, blobs media.Store, log *zap.Logger, opts ...Option) *Service {
	s := &Service{store: store, notifier: notifier, media: blobs, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Caller identifies who is acting.
type Caller struct {
	ID   string
	Role models.Role
}

func CallerFrom(ctx context.Context) Caller {
	id, _ := utils.GetUserIDFromContext(ctx)
	role, _ := utils.GetRoleFromContext(ctx)
	return Caller{ID: id, Role: role}
}

func (c Caller) staff() bool {
	return c.Role == models.RoleCoordinator || c.Role == models.RoleAgency
}

// canSee hides other people's reports from citizens.
func (c Caller) canSee(in models.Incident) bool {
	return c.staff() || in.ReportedBy == c.ID
}

func (s *Service) List(ctx context.Context, c Caller, f storage.IncidentFilter) ([]models.Incident, error) {
	if !c.staff() {
		f.ReportedBy = c.ID
	}
	return s.store.ListIncidents(ctx, f)
}

func (s *Service) Get(ctx context.Context, c Caller, id string) (models.Incident, error) {
	in, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return models.Incident{}, err
	}
	if !c.canSee(in) {
		return models.Incident{}, fmt.Errorf("incident %s: %w", id, storage.ErrNotFound)
	}
	return in, nil
}

type CreateInput struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Severity    models.Level    `json:"severity"`
	Priority    models.Level    `json:"priority"`
	Location    models.Location `json:"location"`
	Images      []string        `json:"images"`
}

func (in *CreateInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	if in.Title == "" {
		return invalid("title is required")
	}
	if in.Description == "" {
		return invalid("description is required")
	}
	if in.Category == "" {
		in.Category = "other"
	}
	if !models.ValidCategories[in.Category] {
		return invalid("unknown category %q", in.Category)
	}
	if in.Severity == "" {
		in.Severity = models.LevelMedium
	}
	if !models.ValidLevels[in.Severity] {
		return invalid("unknown severity %q", in.Severity)
	}
	if in.Priority != "" && !models.ValidLevels[in.Priority] {
		return invalid("unknown priority %q", in.Priority)
	}
	if !in.Location.Valid() {
		return invalid("location is out of range")
	}
	return nil
}

// Create files a report on behalf of c. Only staff may set the priority.
func (s *Service) Create(ctx context.Context, c Caller, input CreateInput) (models.Incident, error) {
	if err := input.validate(); err != nil {
		return models.Incident{}, err
	}
	if !c.staff() {
		input.Priority = ""
	}
	return s.create(ctx, models.Incident{
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Severity:    input.Severity,
		Priority:    input.Priority,
		Location:    input.Location,
		ReportedBy:  c.ID,
		Images:      input.Images,
	})
}

// create fills the address when missing and stores the incident.
func (s *Service) create(ctx context.Context, in models.Incident) (models.Incident, error) {
	if in.Location.Address == "" {
		in.Location.Address = s.lookupAddress(ctx, in.Location)
	}
	created, err := s.store.CreateIncident(ctx, in)
	if err != nil {
		return models.Incident{}, err
	}
	s.log.Info("[incidents] reported",
		zap.String("id", created.ID),
		zap.String("category", created.Category),
		zap.String("severity", string(created.Severity)),
		zap.String("reported_by", created.ReportedBy))
	return created, nil
}

// lookupAddress returns "" when no geocoder is set or the lookup fails.
func (s *Service) lookupAddress(ctx context.Context, loc models.Location) string {
	if s.geocoder == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := s.geocoder.Reverse(ctx, loc.Lat, loc.Lng)
	if err != nil {
		s.log.Warn("[incidents] reverse geocode failed",
			zap.Float64("lat", loc.Lat), zap.Float64("lng", loc.Lng), zap.Error(err))
		return ""
	}
	return res.Formatted
}

type UpdateInput struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Severity    *models.Level    `json:"severity"`
	Priority    *models.Level    `json:"priority"`
	Location    *models.Location `json:"location"`
	Images      []string         `json:"images"`
}

func (u UpdateInput) validate() error {
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return invalid("title cannot be empty")
	}
	if u.Description != nil && strings.TrimSpace(*u.Description) == "" {
		return invalid("description cannot be empty")
	}
	if u.Category != nil && !models.ValidCategories[*u.Category] {
		return invalid("unknown category %q", *u.Category)
	}
	if u.Severity != nil && !models.ValidLevels[*u.Severity] {
		return invalid("unknown severity %q", *u.Severity)
	}
	if u.Priority != nil && !models.ValidLevels[*u.Priority] {
		return invalid("unknown priority %q", *u.Priority)
	}
	if u.Location != nil && !u.Location.Valid() {
		return invalid("location is out of range")
	}
	return nil
}

// Update applies a partial edit. Staff may edit anything here; a citizen
// may edit the title, description and images of their own report while it
// is still in the reported state.
func (s *Service) Update(ctx context.Context, c Caller, id string, u UpdateInput) (models.Incident, error) {
	if err := u.validate(); err != nil {
		return models.Incident{}, err
	}
	current, err := s.Get(ctx, c, id)
	if err != nil {
		return models.Incident{}, err
	}
	if !c.staff() {
		if current.Status != models.StatusReported {
			return models.Incident{}, fmt.Errorf("%w: report is already being handled", ErrForbidden)
		}
		if u.Category != nil || u.Severity != nil || u.Priority != nil || u.Location != nil {
			return models.Incident{}, fmt.Errorf("%w: citizens may only edit title, description and images", ErrForbidden)
		}
	}

	patch := storage.IncidentPatch{
		Title:       u.Title,
		Description: u.Description,
		Category:    u.Category,
		Severity:    u.Severity,
		Priority:    u.Priority,
		Location:    u.Location,
		Images:      u.Images,
	}
	if u.Location != nil && u.Location.Address == "" {
		loc := *u.Location
		loc.Address = s.lookupAddress(ctx, loc)
		patch.Location = &loc
	}
	return s.store.UpdateIncident(ctx, id, patch)
}

// ChangeStatus moves an incident along the status graph and tells the
// reporter.
func (s *Service) ChangeStatus(ctx context.Context, c Caller, id string, to models.IncidentStatus) (models.Incident, error) {
	return s.changeStatus(ctx, c, id, to, true)
}

// SetStatus sets any status, backwards included. Leaving resolved clears
// resolved_at. Setting the current status is a no-op.
func (s *Service) SetStatus(ctx context.Context, c Caller, id string, to models.IncidentStatus) (models.Incident, error) {
	return s.changeStatus(ctx, c, id, to, false)
}

func (s *Service) changeStatus(ctx context.Context, c Caller, id string, to models.IncidentStatus, forwardOnly bool) (models.Incident, error) {
	if !c.staff() {
		return models.Incident{}, fmt.Errorf("%w: only coordinators and agencies change status", ErrForbidden)
	}
	if !models.ValidIncidentStatuses[to] {
		return models.Incident{}, invalid("unknown status %q", to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return models.Incident{}, err
	}
	if forwardOnly && !models.CanTransition(current.Status, to) {
		return models.Incident{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, to)
	}
	if current.Status == to {
		return current, nil
	}

	updated, err := s.store.UpdateIncident(ctx, id, storage.IncidentPatch{
		Status:          &to,
		ClearResolvedAt: to != models.StatusResolved,
	})
	if err != nil {
		return models.Incident{}, err
	}
	s.log.Info("[incidents] status changed",
		zap.String("id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(to)),
		zap.String("by", c.ID))
	s.notifier.IncidentStatusChanged(ctx, updated, current.Status)
	return updated, nil
}

// Assign hands an incident to an agency user. Coordinators may assign
// anyone from an agency or clear the assignment with an empty ID; agency
// users may only claim an incident for themselves.
func (s *Service) Assign(ctx context.Context, c Caller, id, assignee string) (models.Incident, error) {
	switch c.Role {
	case models.RoleCoordinator:
	case models.RoleAgency:
		if assignee != c.ID {
			return models.Incident{}, fmt.Errorf("%w: agency users can only claim incidents for themselves", ErrForbidden)
		}
	default:
		return models.Incident{}, fmt.Errorf("%w: only coordinators assign incidents", ErrForbidden)
	}

	if assignee != "" {
		u, err := s.store.GetUser(ctx, assignee)
		if errors.Is(err, storage.ErrNotFound) {
			return models.Incident{}, invalid("assignee %s does not exist", assignee)
		}
		if err != nil {
			return models.Incident{}, err
		}
		if u.Role != models.RoleAgency {
			return models.Incident{}, invalid("incidents can only be assigned to agency users")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.GetIncident(ctx, id)
	if err != nil {
		return models.Incident{}, err
	}
	if current.Status == models.StatusResolved {
		return models.Incident{}, fmt.Errorf("%w: incident is resolved", ErrInvalidTransition)
	}
	if c.Role == models.RoleAgency && current.AssignedTo != nil && *current.AssignedTo != c.ID {
		return models.Incident{}, fmt.Errorf("%w: incident is assigned to someone else", ErrForbidden)
	}

	updated, err := s.store.UpdateIncident(ctx, id, storage.IncidentPatch{AssignedTo: &assignee})
	if err != nil {
		return models.Incident{}, err
	}
	s.log.Info("[incidents] assigned", zap.String("id", id), zap.String("assignee", assignee), zap.String("by", c.ID))
	if assignee != "" && assignee != c.ID {
		s.notifier.IncidentAssigned(ctx, updated)
	}
	return updated, nil
}

// Delete removes an incident and any images stored for it. Coordinators may
// delete anything; reporters may withdraw their own report while it is
// still in the reported state. Incidents holding allocated resources are
// kept until those are returned or written off.
func (s *Service) Delete(ctx context.Context, c Caller, id string) error {
	current, err := s.Get(ctx, c, id)
	if err != nil {
		return err
	}
	ownPending := current.ReportedBy == c.ID && current.Status == models.StatusReported
	if c.Role != models.RoleCoordinator && !ownPending {
		return fmt.Errorf("%w: cannot delete this incident", ErrForbidden)
	}
	out, err := s.store.ListAllocations(ctx, storage.AllocationFilter{IncidentID: id, Status: models.AllocationAllocated})
	if err != nil {
		return err
	}
	if len(out) > 0 {
		return fmt.Errorf("incident %s has %d active allocations: %w", id, len(out), storage.ErrConflict)
	}

	deleted, err := s.store.DeleteIncident(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("incident %s: %w", id, storage.ErrNotFound)
	}

	for _, u := range current.Images {
		if key, ok := media.KeyFromURL(u); ok {
			if _, err := s.media.Delete(ctx, key); err != nil {
				s.log.Warn("[incidents] image cleanup failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	s.log.Info("[incidents] deleted", zap.String("id", id), zap.String("by", c.ID))
	return nil
}

// Image uploads accept these types, keyed by sniffed content type.
var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

const MaxImageBytes = 10 << 20 // 10 MiB

// AddImage stores an image and appends its URL to the incident. The
// reporter and staff may attach images.
func (s *Service) AddImage(ctx context.Context, c Caller, id string, contentType string, r io.Reader) (models.Incident, error) {
	ext, ok := imageExt[contentType]
	if !ok {
		return models.Incident{}, invalid("unsupported image type %q", contentType)
	}

	current, err := s.Get(ctx, c, id)
	if err != nil {
		return models.Incident{}, err
	}
	if !c.staff() && current.ReportedBy != c.ID {
		return models.Incident{}, ErrForbidden
	}

	key := fmt.Sprintf("incidents/%s/%s%s", id, uuid.NewString(), ext)
	if _, err := s.media.Put(ctx, key, r, contentType); err != nil {
		return models.Incident{}, fmt.Errorf("store image: %w", err)
	}
	if s.uploads != nil {
		s.uploads.ImageUploaded()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fresh, err := s.store.GetIncident(ctx, id)
	if err != nil {
		s.media.Delete(ctx, key)
		return models.Incident{}, err
	}
	images := append([]string{}, fresh.Images...)
	images = append(images, media.URL(key))
	return s.store.UpdateIncident(ctx, id, storage.IncidentPatch{Images: images})
}

// FileExternal records a report from an outside intake channel on behalf of
// reporter. ref is the channel's submission ID; a repeated ref returns the
// existing incident with created=false.
func (s *Service) FileExternal(ctx context.Context, reporter, ref string, input CreateInput) (in models.Incident, created bool, err error) {
	if ref == "" {
		return models.Incident{}, false, invalid("submission id is required")
	}
	if err := input.validate(); err != nil {
		return models.Incident{}, false, err
	}

	existing, err := s.store.ListIncidents(ctx, storage.IncidentFilter{ExternalRef: ref})
	if err != nil {
		return models.Incident{}, false, err
	}
	if len(existing) > 0 {
		return existing[0], false, nil
	}

	in, err = s.create(ctx, models.Incident{
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Severity:    input.Severity,
		Location:    input.Location,
		ReportedBy:  reporter,
		Images:      input.Images,
		ExternalRef: &ref,
	})
	if errors.Is(err, storage.ErrConflict) {
		// Lost a race with a concurrent delivery of the same submission.
		existing, lerr := s.store.ListIncidents(ctx, storage.IncidentFilter{ExternalRef: ref})
		if lerr == nil && len(existing) > 0 {
			return existing[0], false, nil
		}
	}
	if err != nil {
		return models.Incident{}, false, err
	}
	return in, true, nil
}
