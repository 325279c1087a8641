package models

import "strings"

// Role decides which dashboard a user gets and what they may change.
type Role string

const (
	RoleCitizen     Role = "citizen"
	RoleCoordinator Role = "coordinator"
	RoleAgency      Role = "agency"
)

// ParseRole accepts the stored role names plus "authority", which the
// citizen app uses for coordinators. Empty input means citizen.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "citizen":
		return RoleCitizen, true
	case "coordinator", "authority":
		return RoleCoordinator, true
	case "agency":
		return RoleAgency, true
	}
	return "", false
}

type IncidentStatus string

const (
	StatusReported     IncidentStatus = "reported"
	StatusAcknowledged IncidentStatus = "acknowledged"
	StatusInProgress   IncidentStatus = "in-progress"
	StatusResolved     IncidentStatus = "resolved"
)

var ValidIncidentStatuses = map[IncidentStatus]bool{
	StatusReported:     true,
	StatusAcknowledged: true,
	StatusInProgress:   true,
	StatusResolved:     true,
}

// incidentTransitions lists the statuses reachable from each status.
var incidentTransitions = map[IncidentStatus][]IncidentStatus{
	StatusReported:     {StatusAcknowledged, StatusInProgress, StatusResolved},
	StatusAcknowledged: {StatusInProgress, StatusResolved},
	StatusInProgress:   {StatusResolved},
}

// CanTransition reports whether an incident may move from one status to another.
func CanTransition(from, to IncidentStatus) bool {
	for _, s := range incidentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Level is used for both severity and priority.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

var ValidLevels = map[Level]bool{
	LevelLow:      true,
	LevelMedium:   true,
	LevelHigh:     true,
	LevelCritical: true,
}

// Rank orders levels for sorting, critical first.
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 0
	case LevelHigh:
		return 1
	case LevelMedium:
		return 2
	case LevelLow:
		return 3
	}
	return 4
}

var ValidCategories = map[string]bool{
	"fire":          true,
	"flood":         true,
	"medical":       true,
	"security":      true,
	"environmental": true,
	"waste":         true,
	"other":         true,
}

type ResourceStatus string

const (
	ResourceAvailable   ResourceStatus = "available"
	ResourceDeployed    ResourceStatus = "deployed"
	ResourceMaintenance ResourceStatus = "maintenance"
)

var ValidResourceStatuses = map[ResourceStatus]bool{
	ResourceAvailable:   true,
	ResourceDeployed:    true,
	ResourceMaintenance: true,
}

var ValidResourceTypes = map[string]bool{
	"personnel": true,
	"vehicle":   true,
	"equipment": true,
	"supplies":  true,
}

type AllocationStatus string

const (
	AllocationAllocated AllocationStatus = "allocated"
	AllocationReturned  AllocationStatus = "returned"
	AllocationLost      AllocationStatus = "lost"
)

type AlertType string

const (
	AlertEmergency AlertType = "emergency"
	AlertWarning   AlertType = "warning"
	AlertInfo      AlertType = "info"
)

var ValidAlertTypes = map[AlertType]bool{
	AlertEmergency: true,
	AlertWarning:   true,
	AlertInfo:      true,
}

type AnalyticsType string

const (
	AnalyticsResponseTime        AnalyticsType = "response_time"
	AnalyticsResourceUtilization AnalyticsType = "resource_utilization"
	AnalyticsIncidentPatterns    AnalyticsType = "incident_patterns"
)

var ValidAnalyticsTypes = map[AnalyticsType]bool{
	AnalyticsResponseTime:        true,
	AnalyticsResourceUtilization: true,
	AnalyticsIncidentPatterns:    true,
}

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

var ValidPeriods = map[Period]bool{
	PeriodDaily:   true,
	PeriodWeekly:  true,
	PeriodMonthly: true,
}
