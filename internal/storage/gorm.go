package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/db"
	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"gorm.io/gorm"
)

// Schema is the Postgres schema that holds every EcoWatch table.
const Schema = "ecowatch"

// GormStore persists to Postgres through gorm. The connection should be
// opened with TranslateError so unique violations surface as ErrConflict.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{db: conn, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the schema and tables if they do not exist.
func (s *GormStore) Migrate() error {
	if err := db.EnsureSchema(s.db, Schema); err != nil {
		return fmt.Errorf("ensure schema %s: %w", Schema, err)
	}
	if err := s.db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func mapErr(what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// Users

func (s *GormStore) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	return u, mapErr("user "+id, err)
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, "username = ?", username).Error
	return u, mapErr("user "+username, err)
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, "email = ?", email).Error
	return u, mapErr("user "+email, err)
}

func (s *GormStore) ListUsers(ctx context.Context, f UserFilter) ([]models.User, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	if f.Role != "" {
		query = query.Where("role = ?", f.Role)
	}
	if f.Organization != "" {
		query = query.Where("organization = ?", f.Organization)
	}
	var users []models.User
	err := query.Order("username ASC").Find(&users).Error
	return users, mapErr("list users", err)
}

func (s *GormStore) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	u = prepareUser(u, s.now())
	err := s.db.WithContext(ctx).Create(&u).Error
	return u, mapErr("create user", err)
}

func (s *GormStore) UpdateUser(ctx context.Context, id string, p UserPatch) (models.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	applyUserPatch(&u, p)
	err = s.db.WithContext(ctx).Save(&u).Error
	return u, mapErr("update user "+id, err)
}

// Sessions

func (s *GormStore) CreateSession(ctx context.Context, sess models.Session) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", sess.UserID).Delete(&models.Session{}).Error; err != nil {
			return err
		}
		return tx.Create(&sess).Error
	})
	return mapErr("create session", err)
}

func (s *GormStore) FindSession(ctx context.Context, id string) (models.Session, error) {
	var sess models.Session
	err := s.db.WithContext(ctx).First(&sess, "session_id = ?", id).Error
	return sess, mapErr("session", err)
}

func (s *GormStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&models.Session{}, "session_id = ?", id)
	return res.RowsAffected > 0, mapErr("delete session", res.Error)
}

// Incidents

func (s *GormStore) ListIncidents(ctx context.Context, f IncidentFilter) ([]models.Incident, error) {
	query := s.db.WithContext(ctx).Model(&models.Incident{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.ReportedBy != "" {
		query = query.Where("reported_by = ?", f.ReportedBy)
	}
	if f.AssignedTo != "" {
		query = query.Where("assigned_to = ?", f.AssignedTo)
	}
	if f.ExternalRef != "" {
		query = query.Where("external_ref = ?", f.ExternalRef)
	}
	if !f.Since.IsZero() {
		query = query.Where("created_at >= ?", f.Since)
	}
	incidents := []models.Incident{}
	err := query.Order("created_at DESC, id ASC").Find(&incidents).Error
	return incidents, mapErr("list incidents", err)
}

func (s *GormStore) GetIncident(ctx context.Context, id string) (models.Incident, error) {
	var in models.Incident
	err := s.db.WithContext(ctx).First(&in, "id = ?", id).Error
	return in, mapErr("incident "+id, err)
}

func (s *GormStore) CreateIncident(ctx context.Context, in models.Incident) (models.Incident, error) {
	in = prepareIncident(in, s.now())
	err := s.db.WithContext(ctx).Create(&in).Error
	return in, mapErr("create incident", err)
}

func (s *GormStore) UpdateIncident(ctx context.Context, id string, p IncidentPatch) (models.Incident, error) {
	in, err := s.GetIncident(ctx, id)
	if err != nil {
		return models.Incident{}, err
	}
	applyIncidentPatch(&in, p, s.now())
	err = s.db.WithContext(ctx).Save(&in).Error
	return in, mapErr("update incident "+id, err)
}

func (s *GormStore) DeleteIncident(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&models.Incident{}, "id = ?", id)
	return res.RowsAffected > 0, mapErr("delete incident "+id, res.Error)
}

// Resources

func (s *GormStore) ListResources(ctx context.Context, f ResourceFilter) ([]models.Resource, error) {
	query := s.db.WithContext(ctx).Model(&models.Resource{})
	if f.Organization != "" {
		query = query.Where("organization = ?", f.Organization)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	resources := []models.Resource{}
	err := query.Order("created_at DESC, id ASC").Find(&resources).Error
	return resources, mapErr("list resources", err)
}

func (s *GormStore) GetResource(ctx context.Context, id string) (models.Resource, error) {
	var r models.Resource
	err := s.db.WithContext(ctx).First(&r, "id = ?", id).Error
	return r, mapErr("resource "+id, err)
}

func (s *GormStore) CreateResource(ctx context.Context, r models.Resource) (models.Resource, error) {
	r = prepareResource(r, s.now())
	err := s.db.WithContext(ctx).Create(&r).Error
	return r, mapErr("create resource", err)
}

func (s *GormStore) UpdateResource(ctx context.Context, id string, p ResourcePatch) (models.Resource, error) {
	r, err := s.GetResource(ctx, id)
	if err != nil {
		return models.Resource{}, err
	}
	applyResourcePatch(&r, p, s.now())
	err = s.db.WithContext(ctx).Save(&r).Error
	return r, mapErr("update resource "+id, err)
}

func (s *GormStore) DeleteResource(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&models.Resource{}, "id = ?", id)
	return res.RowsAffected > 0, mapErr("delete resource "+id, res.Error)
}

// Resource allocations

func (s *GormStore) ListAllocations(ctx context.Context, f AllocationFilter) ([]models.ResourceAllocation, error) {
	query := s.db.WithContext(ctx).Model(&models.ResourceAllocation{})
	if f.IncidentID != "" {
		query = query.Where("incident_id = ?", f.IncidentID)
	}
	if f.ResourceID != "" {
		query = query.Where("resource_id = ?", f.ResourceID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	allocations := []models.ResourceAllocation{}
	err := query.Order("allocated_at DESC, id ASC").Find(&allocations).Error
	return allocations, mapErr("list allocations", err)
}

func (s *GormStore) GetAllocation(ctx context.Context, id string) (models.ResourceAllocation, error) {
	var a models.ResourceAllocation
	err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error
	return a, mapErr("allocation "+id, err)
}

func (s *GormStore) CreateAllocation(ctx context.Context, a models.ResourceAllocation) (models.ResourceAllocation, error) {
	a = prepareAllocation(a, s.now())
	err := s.db.WithContext(ctx).Create(&a).Error
	return a, mapErr("create allocation", err)
}

func (s *GormStore) UpdateAllocation(ctx context.Context, id string, p AllocationPatch) (models.ResourceAllocation, error) {
	a, err := s.GetAllocation(ctx, id)
	if err != nil {
		return models.ResourceAllocation{}, err
	}
	applyAllocationPatch(&a, p)
	err = s.db.WithContext(ctx).Save(&a).Error
	return a, mapErr("update allocation "+id, err)
}

// Alerts

func (s *GormStore) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	alerts := []models.Alert{}
	err := s.db.WithContext(ctx).Order("created_at DESC, id ASC").Find(&alerts).Error
	return alerts, mapErr("list alerts", err)
}

func (s *GormStore) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	var a models.Alert
	err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error
	return a, mapErr("alert "+id, err)
}

func (s *GormStore) CreateAlert(ctx context.Context, a models.Alert) (models.Alert, error) {
	a = prepareAlert(a, s.now())
	err := s.db.WithContext(ctx).Create(&a).Error
	return a, mapErr("create alert", err)
}

func (s *GormStore) UpdateAlert(ctx context.Context, id string, p AlertPatch) (models.Alert, error) {
	a, err := s.GetAlert(ctx, id)
	if err != nil {
		return models.Alert{}, err
	}
	applyAlertPatch(&a, p)
	err = s.db.WithContext(ctx).Save(&a).Error
	return a, mapErr("update alert "+id, err)
}

// Notifications

func (s *GormStore) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	notifications := []models.Notification{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id ASC").
		Find(&notifications).Error
	return notifications, mapErr("list notifications", err)
}

func (s *GormStore) GetNotification(ctx context.Context, id string) (models.Notification, error) {
	var n models.Notification
	err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error
	return n, mapErr("notification "+id, err)
}

func (s *GormStore) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	n = prepareNotification(n, s.now())
	err := s.db.WithContext(ctx).Create(&n).Error
	return n, mapErr("create notification", err)
}

func (s *GormStore) MarkNotificationRead(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).Update("read", true)
	return res.RowsAffected > 0, mapErr("mark notification "+id, res.Error)
}

// Analytics

func (s *GormStore) ListAnalytics(ctx context.Context, f AnalyticsFilter) ([]models.AnalyticsEntry, error) {
	query := s.db.WithContext(ctx).Model(&models.AnalyticsEntry{})
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if f.Period != "" {
		query = query.Where("period = ?", f.Period)
	}
	entries := []models.AnalyticsEntry{}
	err := query.Order("created_at DESC, id ASC").Find(&entries).Error
	return entries, mapErr("list analytics", err)
}

func (s *GormStore) CreateAnalyticsEntry(ctx context.Context, e models.AnalyticsEntry) (models.AnalyticsEntry, error) {
	e = prepareAnalytics(e, s.now())
	err := s.db.WithContext(ctx).Create(&e).Error
	return e, mapErr("create analytics entry", err)
}
