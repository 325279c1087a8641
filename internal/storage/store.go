// Package storage holds the persistence contract for every EcoWatch entity
// and its two backends: an in-process map store and a Postgres store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrInsufficient = errors.New("insufficient availability")
)

// Store is implemented by MemStore and GormStore.
type Store interface {
	// Users
	GetUser(ctx context.Context, id string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUsers(ctx context.Context, f UserFilter) ([]models.User, error)
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	UpdateUser(ctx context.Context, id string, p UserPatch) (models.User, error)

	// Sessions
	CreateSession(ctx context.Context, s models.Session) error
	FindSession(ctx context.Context, id string) (models.Session, error)
	DeleteSession(ctx context.Context, id string) (bool, error)

	// Incidents
	ListIncidents(ctx context.Context, f IncidentFilter) ([]models.Incident, error)
	GetIncident(ctx context.Context, id string) (models.Incident, error)
	CreateIncident(ctx context.Context, in models.Incident) (models.Incident, error)
	UpdateIncident(ctx context.Context, id string, p IncidentPatch) (models.Incident, error)
	DeleteIncident(ctx context.Context, id string) (bool, error)

	// Resources
	ListResources(ctx context.Context, f ResourceFilter) ([]models.Resource, error)
	GetResource(ctx context.Context, id string) (models.Resource, error)
	CreateResource(ctx context.Context, r models.Resource) (models.Resource, error)
	UpdateResource(ctx context.Context, id string, p ResourcePatch) (models.Resource, error)
	DeleteResource(ctx context.Context, id string) (bool, error)

	// Resource allocations
	ListAllocations(ctx context.Context, f AllocationFilter) ([]models.ResourceAllocation, error)
	GetAllocation(ctx context.Context, id string) (models.ResourceAllocation, error)
	CreateAllocation(ctx context.Context, a models.ResourceAllocation) (models.ResourceAllocation, error)
	UpdateAllocation(ctx context.Context, id string, p AllocationPatch) (models.ResourceAllocation, error)

	// Alerts
	ListAlerts(ctx context.Context) ([]models.Alert, error)
	GetAlert(ctx context.Context, id string) (models.Alert, error)
	CreateAlert(ctx context.Context, a models.Alert) (models.Alert, error)
	UpdateAlert(ctx context.Context, id string, p AlertPatch) (models.Alert, error)

	// Notifications
	ListNotifications(ctx context.Context, userID string) ([]models.Notification, error)
	GetNotification(ctx context.Context, id string) (models.Notification, error)
	CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) (bool, error)

	// Analytics
	ListAnalytics(ctx context.Context, f AnalyticsFilter) ([]models.AnalyticsEntry, error)
	CreateAnalyticsEntry(ctx context.Context, e models.AnalyticsEntry) (models.AnalyticsEntry, error)
}

type UserFilter struct {
	Role         models.Role
	Organization string
}

type IncidentFilter struct {
	Status      models.IncidentStatus
	Category    string
	ReportedBy  string
	AssignedTo  string
	ExternalRef string
	Since       time.Time // created at or after; zero means no bound
}

type ResourceFilter struct {
	Organization string
	Type         string
	Status       models.ResourceStatus
}

type AllocationFilter struct {
	IncidentID string
	ResourceID string
	Status     models.AllocationStatus
}

type AnalyticsFilter struct {
	Type   models.AnalyticsType
	Period models.Period
}

// Patches carry partial updates: nil fields are left untouched.

type UserPatch struct {
	Username       *string
	HashedPassword *string
	Email          *string
	Role           *models.Role
	Name           *string
	Organization   *string
	Phone          *string
}

type IncidentPatch struct {
	Title       *string
	Description *string
	Category    *string
	Severity    *models.Level
	Priority    *models.Level
	Status      *models.IncidentStatus
	Location    *models.Location
	AssignedTo  *string
	Images      []string
	// ClearResolvedAt drops resolved_at, for reports moved back out of
	// resolved.
	ClearResolvedAt bool
}

type ResourcePatch struct {
	Name         *string
	Type         *string
	Category     *string
	Quantity     *int
	Available    *int
	Location     *models.Location
	Status       *models.ResourceStatus
	Organization *string
	Description  *string
}

type AllocationPatch struct {
	Quantity   *int
	Status     *models.AllocationStatus
	ReturnedAt *time.Time
}

type AlertPatch struct {
	Title       *string
	Message     *string
	Type        *models.AlertType
	Priority    *models.Level
	TargetUsers []string
	IncidentID  *string
	Location    *models.Location
	ExpiresAt   *time.Time
}
