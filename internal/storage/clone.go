package storage

import (
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/lib/pq"
)

// The clone helpers keep MemStore values from aliasing caller memory.

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneLocation(p *models.Location) *models.Location {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneArray(a pq.StringArray) pq.StringArray {
	if a == nil {
		return nil
	}
	return append(pq.StringArray{}, a...)
}

func cloneUser(u models.User) models.User {
	u.Organization = cloneString(u.Organization)
	u.Phone = cloneString(u.Phone)
	return u
}

func cloneIncident(in models.Incident) models.Incident {
	in.AssignedTo = cloneString(in.AssignedTo)
	in.ExternalRef = cloneString(in.ExternalRef)
	in.Images = cloneArray(in.Images)
	in.ResolvedAt = cloneTime(in.ResolvedAt)
	return in
}

func cloneResource(r models.Resource) models.Resource {
	r.Location = cloneLocation(r.Location)
	r.Description = cloneString(r.Description)
	return r
}

func cloneAllocation(a models.ResourceAllocation) models.ResourceAllocation {
	a.ReturnedAt = cloneTime(a.ReturnedAt)
	return a
}

func cloneAlert(a models.Alert) models.Alert {
	a.TargetUsers = cloneArray(a.TargetUsers)
	a.IncidentID = cloneString(a.IncidentID)
	a.Location = cloneLocation(a.Location)
	a.ExpiresAt = cloneTime(a.ExpiresAt)
	return a
}

func cloneNotification(n models.Notification) models.Notification {
	n.Data = n.Data.Clone()
	return n
}

func cloneAnalytics(e models.AnalyticsEntry) models.AnalyticsEntry {
	e.Data = e.Data.Clone()
	return e
}
