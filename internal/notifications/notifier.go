// Package notifications delivers per-user notices and serves a user's inbox.
package notifications

import (
	"context"
	"fmt"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"go.uber.org/zap"
)

// Notification types.
const (
	TypeIncidentStatus   = "incident_status"
	TypeIncidentAssigned = "incident_assigned"
	TypeAlert            = "alert"
)

// Notifier writes notifications through the store. Failures are logged and
// never fail the operation that triggered them.
type Notifier struct {
	store storage.Store
	log   *zap.Logger
}

func NewNotifier(store storage.Store, log *zap.Logger) *Notifier {
	return &Notifier{store: store, log: log}
}

func (n *Notifier) Send(ctx context.Context, note models.Notification) {
	if note.UserID == "" {
		return
	}
	if _, err := n.store.CreateNotification(ctx, note); err != nil {
		n.log.Warn("[notifications] send failed",
			zap.String("user_id", note.UserID),
			zap.String("type", note.Type),
			zap.Error(err))
	}
}

// IncidentStatusChanged tells the reporter that their report moved.
func (n *Notifier) IncidentStatusChanged(ctx context.Context, in models.Incident, from models.IncidentStatus) {
	n.Send(ctx, models.Notification{
		UserID:  in.ReportedBy,
		Title:   "Report status updated",
		Message: fmt.Sprintf("%q changed from %s to %s", in.Title, from, in.Status),
		Type:    TypeIncidentStatus,
		Data: models.JSONMap{
			"incident_id": in.ID,
			"from":        string(from),
			"to":          string(in.Status),
		},
	})
}

func (n *Notifier) IncidentAssigned(ctx context.Context, in models.Incident) {
	if in.AssignedTo == nil {
		return
	}
	n.Send(ctx, models.Notification{
		UserID:  *in.AssignedTo,
		Title:   "Incident assigned",
		Message: fmt.Sprintf("You were assigned %q (%s, %s severity)", in.Title, in.Category, in.Severity),
		Type:    TypeIncidentAssigned,
		Data:    models.JSONMap{"incident_id": in.ID},
	})
}

// AlertIssued fans an alert out to every user it targets and returns how
// many were notified.
func (n *Notifier) AlertIssued(ctx context.Context, a models.Alert) (int, error) {
	users, err := n.store.ListUsers(ctx, storage.UserFilter{})
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	data := models.JSONMap{"alert_id": a.ID, "alert_type": string(a.Type)}
	if a.IncidentID != nil {
		data["incident_id"] = *a.IncidentID
	}

	sent := 0
	for _, u := range users {
		if u.ID == a.CreatedBy || !Targets(a, u.ID, u.Role) {
			continue
		}
		n.Send(ctx, models.Notification{
			UserID:  u.ID,
			Title:   a.Title,
			Message: a.Message,
			Type:    TypeAlert,
			Data:    data.Clone(),
		})
		sent++
	}
	return sent, nil
}

// Targets reports whether an alert is addressed to a user. An empty target
// list addresses everyone; entries match either a role or a user ID.
func Targets(a models.Alert, userID string, role models.Role) bool {
	if len(a.TargetUsers) == 0 {
		return true
	}
	for _, t := range a.TargetUsers {
		if t == userID {
			return true
		}
		if r, ok := models.ParseRole(t); ok && t != "" && r == role {
			return true
		}
	}
	return false
}
