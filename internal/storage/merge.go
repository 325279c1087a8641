package storage

import (
	"sort"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func prepareUser(u models.User, now time.Time) models.User {
	u.ID = newID(u.ID)
	if u.Role == "" {
		u.Role = models.RoleCitizen
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	return u
}

func prepareIncident(in models.Incident, now time.Time) models.Incident {
	in.ID = newID(in.ID)
	if in.Status == "" {
		in.Status = models.StatusReported
	}
	if in.Priority == "" {
		in.Priority = models.LevelMedium
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	if in.Status == models.StatusResolved && in.ResolvedAt == nil {
		in.ResolvedAt = &now
	}
	return in
}

func prepareResource(r models.Resource, now time.Time) models.Resource {
	r.ID = newID(r.ID)
	if r.Status == "" {
		r.Status = models.ResourceAvailable
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return r
}

func prepareAllocation(a models.ResourceAllocation, now time.Time) models.ResourceAllocation {
	a.ID = newID(a.ID)
	if a.Status == "" {
		a.Status = models.AllocationAllocated
	}
	if a.AllocatedAt.IsZero() {
		a.AllocatedAt = now
	}
	a.ReturnedAt = nil
	return a
}

func prepareAlert(a models.Alert, now time.Time) models.Alert {
	a.ID = newID(a.ID)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	return a
}

func prepareNotification(n models.Notification, now time.Time) models.Notification {
	n.ID = newID(n.ID)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	return n
}

func prepareAnalytics(e models.AnalyticsEntry, now time.Time) models.AnalyticsEntry {
	e.ID = newID(e.ID)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return e
}

func applyUserPatch(u *models.User, p UserPatch) {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.HashedPassword != nil {
		u.HashedPassword = *p.HashedPassword
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Organization != nil {
		u.Organization = p.Organization
	}
	if p.Phone != nil {
		u.Phone = p.Phone
	}
}

// applyIncidentPatch merges p into in. updated_at always moves; resolved_at
// is stamped only when the patch sets the status to resolved, and cleared
// only on request.
func applyIncidentPatch(in *models.Incident, p IncidentPatch, now time.Time) {
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Category != nil {
		in.Category = *p.Category
	}
	if p.Severity != nil {
		in.Severity = *p.Severity
	}
	if p.Priority != nil {
		in.Priority = *p.Priority
	}
	if p.Location != nil {
		in.Location = *p.Location
	}
	if p.AssignedTo != nil {
		if *p.AssignedTo == "" {
			in.AssignedTo = nil
		} else {
			v := *p.AssignedTo
			in.AssignedTo = &v
		}
	}
	if p.Images != nil {
		in.Images = append(pq.StringArray{}, p.Images...)
	}
	if p.Status != nil {
		in.Status = *p.Status
		if *p.Status == models.StatusResolved {
			in.ResolvedAt = &now
		}
	}
	if p.ClearResolvedAt && in.Status != models.StatusResolved {
		in.ResolvedAt = nil
	}
	in.UpdatedAt = now
}

func applyResourcePatch(r *models.Resource, p ResourcePatch, now time.Time) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	if p.Category != nil {
		r.Category = *p.Category
	}
	if p.Quantity != nil {
		r.Quantity = *p.Quantity
	}
	if p.Available != nil {
		r.Available = *p.Available
	}
	if p.Location != nil {
		loc := *p.Location
		r.Location = &loc
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Organization != nil {
		r.Organization = *p.Organization
	}
	if p.Description != nil {
		r.Description = p.Description
	}
	r.UpdatedAt = now
}

func applyAllocationPatch(a *models.ResourceAllocation, p AllocationPatch) {
	if p.Quantity != nil {
		a.Quantity = *p.Quantity
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.ReturnedAt != nil {
		t := *p.ReturnedAt
		a.ReturnedAt = &t
	}
}

func applyAlertPatch(a *models.Alert, p AlertPatch) {
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Message != nil {
		a.Message = *p.Message
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Priority != nil {
		a.Priority = *p.Priority
	}
	if p.TargetUsers != nil {
		a.TargetUsers = append(pq.StringArray{}, p.TargetUsers...)
	}
	if p.IncidentID != nil {
		v := *p.IncidentID
		a.IncidentID = &v
	}
	if p.Location != nil {
		loc := *p.Location
		a.Location = &loc
	}
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		a.ExpiresAt = &t
	}
}

func (f UserFilter) match(u models.User) bool {
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	if f.Organization != "" && (u.Organization == nil || *u.Organization != f.Organization) {
		return false
	}
	return true
}

func (f IncidentFilter) match(in models.Incident) bool {
	if f.Status != "" && in.Status != f.Status {
		return false
	}
	if f.Category != "" && in.Category != f.Category {
		return false
	}
	if f.ReportedBy != "" && in.ReportedBy != f.ReportedBy {
		return false
	}
	if f.AssignedTo != "" && (in.AssignedTo == nil || *in.AssignedTo != f.AssignedTo) {
		return false
	}
	if f.ExternalRef != "" && (in.ExternalRef == nil || *in.ExternalRef != f.ExternalRef) {
		return false
	}
	if !f.Since.IsZero() && in.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

func (f ResourceFilter) match(r models.Resource) bool {
	if f.Organization != "" && r.Organization != f.Organization {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

func (f AllocationFilter) match(a models.ResourceAllocation) bool {
	if f.IncidentID != "" && a.IncidentID != f.IncidentID {
		return false
	}
	if f.ResourceID != "" && a.ResourceID != f.ResourceID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

func (f AnalyticsFilter) match(e models.AnalyticsEntry) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Period != "" && e.Period != f.Period {
		return false
	}
	return true
}

// newestFirst sorts by timestamp descending with the ID as tie-breaker so
// listings are stable.
func newestFirst[T any](items []T, at func(T) time.Time, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := at(items[i]), at(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return id(items[i]) < id(items[j])
	})
}
