package models

import (
	"time"

	"github.com/lib/pq"
)

type User struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	Username       string    `gorm:"uniqueIndex;not null" json:"username"`
	HashedPassword string    `gorm:"not null" json:"-"`
	Email          string    `gorm:"uniqueIndex;not null" json:"email"`
	Role           Role      `gorm:"not null;default:'citizen';index" json:"role"`
	Name           string    `gorm:"not null" json:"name"`
	Organization   *string   `gorm:"index" json:"organization"`
	Phone          *string   `json:"phone"`
	CreatedAt      time.Time `json:"created_at"`
}

func (User) TableName() string { return "ecowatch.users" }

type Session struct {
	SessionID string    `gorm:"primaryKey" json:"-"`
	UserID    string    `gorm:"not null;unique" json:"-"`
	ExpiresAt time.Time `gorm:"not null"`
}

func (Session) TableName() string { return "ecowatch.sessions" }

// Incident is a citizen report of an observed problem.
type Incident struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `gorm:"not null" json:"description"`
	Category    string         `gorm:"not null;index" json:"category"`
	Severity    Level          `gorm:"not null" json:"severity"`
	Priority    Level          `gorm:"not null;default:'medium'" json:"priority"`
	Status      IncidentStatus `gorm:"not null;default:'reported';index" json:"status"`
	Location    Location       `gorm:"type:jsonb;not null" json:"location"`
	ReportedBy  string         `gorm:"not null;index" json:"reported_by"`
	AssignedTo  *string        `gorm:"index" json:"assigned_to"`
	Images      pq.StringArray `gorm:"type:text[]" json:"images"`
	ExternalRef *string        `gorm:"uniqueIndex" json:"external_ref,omitempty"` // intake webhook submission id
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ResolvedAt  *time.Time     `json:"resolved_at"`
}

func (Incident) TableName() string { return "ecowatch.incidents" }

type Resource struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"not null" json:"name"`
	Type         string         `gorm:"not null;index" json:"type"` // personnel, vehicle, equipment, supplies
	Category     string         `gorm:"not null" json:"category"`
	Quantity     int            `gorm:"not null" json:"quantity"`
	Available    int            `gorm:"not null" json:"available"`
	Location     *Location      `gorm:"type:jsonb" json:"location"`
	Status       ResourceStatus `gorm:"not null;default:'available'" json:"status"`
	Organization string         `gorm:"not null;index" json:"organization"`
	Description  *string        `json:"description"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Resource) TableName() string { return "ecowatch.resources" }

type ResourceAllocation struct {
	ID          string           `gorm:"primaryKey" json:"id"`
	ResourceID  string           `gorm:"not null;index" json:"resource_id"`
	IncidentID  string           `gorm:"not null;index" json:"incident_id"`
	Quantity    int              `gorm:"not null" json:"quantity"`
	AllocatedBy string           `gorm:"not null" json:"allocated_by"`
	AllocatedAt time.Time        `json:"allocated_at"`
	ReturnedAt  *time.Time       `json:"returned_at"`
	Status      AllocationStatus `gorm:"not null;default:'allocated'" json:"status"`
}

func (ResourceAllocation) TableName() string { return "ecowatch.resource_allocations" }

// Alert is a broadcast message. An empty TargetUsers list reaches everyone;
// entries are either role names or user IDs.
type Alert struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"not null" json:"title"`
	Message     string         `gorm:"not null" json:"message"`
	Type        AlertType      `gorm:"not null" json:"type"`
	Priority    Level          `gorm:"not null" json:"priority"`
	TargetUsers pq.StringArray `gorm:"type:text[]" json:"target_users"`
	IncidentID  *string        `gorm:"index" json:"incident_id"`
	Location    *Location      `gorm:"type:jsonb" json:"location"`
	CreatedBy   string         `gorm:"not null" json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   *time.Time     `json:"expires_at"`
}

func (Alert) TableName() string { return "ecowatch.alerts" }

// Active reports whether the alert has not expired at t.
func (a Alert) Active(t time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(t)
}

type Notification struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"not null" json:"title"`
	Message   string    `gorm:"not null" json:"message"`
	Type      string    `gorm:"not null" json:"type"`
	Read      bool      `gorm:"default:false" json:"read"`
	Data      JSONMap   `gorm:"type:jsonb" json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string { return "ecowatch.notifications" }

type AnalyticsEntry struct {
	ID        string        `gorm:"primaryKey" json:"id"`
	Type      AnalyticsType `gorm:"not null;index" json:"type"`
	Data      JSONMap       `gorm:"type:jsonb;not null" json:"data"`
	Period    Period        `gorm:"not null;index" json:"period"`
	CreatedAt time.Time     `json:"created_at"`
}

func (AnalyticsEntry) TableName() string { return "ecowatch.analytics" }

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Session{},
		&Incident{},
		&Resource{},
		&ResourceAllocation{},
		&Alert{},
		&Notification{},
		&AnalyticsEntry{},
	}
}
