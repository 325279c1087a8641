package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
)

// MemStore keeps every collection in process memory. One RWMutex guards all
// maps; values are copied in and out.
type MemStore struct {
	mu sync.RWMutex

	users         map[string]models.User
	sessions      map[string]models.Session
	incidents     map[string]models.Incident
	resources     map[string]models.Resource
	allocations   map[string]models.ResourceAllocation
	alerts        map[string]models.Alert
	notifications map[string]models.Notification
	analytics     map[string]models.AnalyticsEntry

	now func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:         make(map[string]models.User),
		sessions:      make(map[string]models.Session),
		incidents:     make(map[string]models.Incident),
		resources:     make(map[string]models.Resource),
		allocations:   make(map[string]models.ResourceAllocation),
		alerts:        make(map[string]models.Alert),
		notifications: make(map[string]models.Notification),
		analytics:     make(map[string]models.AnalyticsEntry),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source. Used by tests.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Users

func (s *MemStore) GetUser(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return cloneUser(u), nil
}

func (s *MemStore) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return models.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
}

func (s *MemStore) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return models.User{}, fmt.Errorf("user %q: %w", email, ErrNotFound)
}

func (s *MemStore) ListUsers(_ context.Context, f UserFilter) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		if f.match(u) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// checkUserUnique must be called with the write lock held.
func (s *MemStore) checkUserUnique(u models.User) error {
	for _, other := range s.users {
		if other.ID == u.ID {
			continue
		}
		if other.Username == u.Username {
			return fmt.Errorf("username %q: %w", u.Username, ErrConflict)
		}
		if other.Email == u.Email {
			return fmt.Errorf("email %q: %w", u.Email, ErrConflict)
		}
	}
	return nil
}

func (s *MemStore) CreateUser(_ context.Context, u models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u = prepareUser(cloneUser(u), s.now())
	if _, exists := s.users[u.ID]; exists {
		return models.User{}, fmt.Errorf("user %s: %w", u.ID, ErrConflict)
	}
	if err := s.checkUserUnique(u); err != nil {
		return models.User{}, err
	}
	s.users[u.ID] = u
	return cloneUser(u), nil
}

func (s *MemStore) UpdateUser(_ context.Context, id string, p UserPatch) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	u = cloneUser(u)
	applyUserPatch(&u, p)
	if err := s.checkUserUnique(u); err != nil {
		return models.User{}, err
	}
	s.users[id] = u
	return cloneUser(u), nil
}

// Sessions

func (s *MemStore) CreateSession(_ context.Context, sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.sessions {
		if existing.UserID == sess.UserID {
			delete(s.sessions, id)
		}
	}
	s.sessions[sess.SessionID] = sess
	return nil
}

func (s *MemStore) FindSession(_ context.Context, id string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return models.Session{}, fmt.Errorf("session: %w", ErrNotFound)
	}
	return sess, nil
}

func (s *MemStore) DeleteSession(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok, nil
}

// Incidents

func (s *MemStore) ListIncidents(_ context.Context, f IncidentFilter) ([]models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Incident, 0, len(s.incidents))
	for _, in := range s.incidents {
		if f.match(in) {
			out = append(out, cloneIncident(in))
		}
	}
	newestFirst(out,
		func(in models.Incident) time.Time { return in.CreatedAt },
		func(in models.Incident) string { return in.ID })
	return out, nil
}

func (s *MemStore) GetIncident(_ context.Context, id string) (models.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	return cloneIncident(in), nil
}

func (s *MemStore) CreateIncident(_ context.Context, in models.Incident) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in = prepareIncident(cloneIncident(in), s.now())
	if _, exists := s.incidents[in.ID]; exists {
		return models.Incident{}, fmt.Errorf("incident %s: %w", in.ID, ErrConflict)
	}
	if in.ExternalRef != nil {
		for _, other := range s.incidents {
			if other.ExternalRef != nil && *other.ExternalRef == *in.ExternalRef {
				return models.Incident{}, fmt.Errorf("incident ref %q: %w", *in.ExternalRef, ErrConflict)
			}
		}
	}
	s.incidents[in.ID] = in
	return cloneIncident(in), nil
}

func (s *MemStore) UpdateIncident(_ context.Context, id string, p IncidentPatch) (models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.incidents[id]
	if !ok {
		return models.Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
	}
	in = cloneIncident(in)
	applyIncidentPatch(&in, p, s.now())
	s.incidents[id] = in
	return cloneIncident(in), nil
}

func (s *MemStore) DeleteIncident(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.incidents[id]
	delete(s.incidents, id)
	return ok, nil
}

// Resources

func (s *MemStore) ListResources(_ context.Context, f ResourceFilter) ([]models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		if f.match(r) {
			out = append(out, cloneResource(r))
		}
	}
	newestFirst(out,
		func(r models.Resource) time.Time { return r.CreatedAt },
		func(r models.Resource) string { return r.ID })
	return out, nil
}

func (s *MemStore) GetResource(_ context.Context, id string) (models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return models.Resource{}, fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	return cloneResource(r), nil
}

func (s *MemStore) CreateResource(_ context.Context, r models.Resource) (models.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r = prepareResource(cloneResource(r), s.now())
	if _, exists := s.resources[r.ID]; exists {
		return models.Resource{}, fmt.Errorf("resource %s: %w", r.ID, ErrConflict)
	}
	s.resources[r.ID] = r
	return cloneResource(r), nil
}

func (s *MemStore) UpdateResource(_ context.Context, id string, p ResourcePatch) (models.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok {
		return models.Resource{}, fmt.Errorf("resource %s: %w", id, ErrNotFound)
	}
	r = cloneResource(r)
	applyResourcePatch(&r, p, s.now())
	s.resources[id] = r
	return cloneResource(r), nil
}

func (s *MemStore) DeleteResource(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.resources[id]
	delete(s.resources, id)
	return ok, nil
}

// Resource allocations

func (s *MemStore) ListAllocations(_ context.Context, f AllocationFilter) ([]models.ResourceAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ResourceAllocation, 0, len(s.allocations))
	for _, a := range s.allocations {
		if f.match(a) {
			out = append(out, cloneAllocation(a))
		}
	}
	newestFirst(out,
		func(a models.ResourceAllocation) time.Time { return a.AllocatedAt },
		func(a models.ResourceAllocation) string { return a.ID })
	return out, nil
}

func (s *MemStore) GetAllocation(_ context.Context, id string) (models.ResourceAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.allocations[id]
	if !ok {
		return models.ResourceAllocation{}, fmt.Errorf("allocation %s: %w", id, ErrNotFound)
	}
	return cloneAllocation(a), nil
}

func (s *MemStore) CreateAllocation(_ context.Context, a models.ResourceAllocation) (models.ResourceAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a = prepareAllocation(a, s.now())
	if _, exists := s.allocations[a.ID]; exists {
		return models.ResourceAllocation{}, fmt.Errorf("allocation %s: %w", a.ID, ErrConflict)
	}
	s.allocations[a.ID] = a
	return cloneAllocation(a), nil
}

func (s *MemStore) UpdateAllocation(_ context.Context, id string, p AllocationPatch) (models.ResourceAllocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allocations[id]
	if !ok {
		return models.ResourceAllocation{}, fmt.Errorf("allocation %s: %w", id, ErrNotFound)
	}
	a = cloneAllocation(a)
	applyAllocationPatch(&a, p)
	s.allocations[id] = a
	return cloneAllocation(a), nil
}

// Alerts

func (s *MemStore) ListAlerts(_ context.Context) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, cloneAlert(a))
	}
	newestFirst(out,
		func(a models.Alert) time.Time { return a.CreatedAt },
		func(a models.Alert) string { return a.ID })
	return out, nil
}

func (s *MemStore) GetAlert(_ context.Context, id string) (models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.Alert{}, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return cloneAlert(a), nil
}

func (s *MemStore) CreateAlert(_ context.Context, a models.Alert) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a = prepareAlert(cloneAlert(a), s.now())
	if _, exists := s.alerts[a.ID]; exists {
		return models.Alert{}, fmt.Errorf("alert %s: %w", a.ID, ErrConflict)
	}
	s.alerts[a.ID] = a
	return cloneAlert(a), nil
}

func (s *MemStore) UpdateAlert(_ context.Context, id string, p AlertPatch) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return models.Alert{}, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	a = cloneAlert(a)
	applyAlertPatch(&a, p)
	s.alerts[id] = a
	return cloneAlert(a), nil
}

// Notifications

func (s *MemStore) ListNotifications(_ context.Context, userID string) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Notification{}
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, cloneNotification(n))
		}
	}
	newestFirst(out,
		func(n models.Notification) time.Time { return n.CreatedAt },
		func(n models.Notification) string { return n.ID })
	return out, nil
}

func (s *MemStore) GetNotification(_ context.Context, id string) (models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return models.Notification{}, fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}
	return cloneNotification(n), nil
}

func (s *MemStore) CreateNotification(_ context.Context, n models.Notification) (models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n = prepareNotification(cloneNotification(n), s.now())
	if _, exists := s.notifications[n.ID]; exists {
		return models.Notification{}, fmt.Errorf("notification %s: %w", n.ID, ErrConflict)
	}
	s.notifications[n.ID] = n
	return cloneNotification(n), nil
}

func (s *MemStore) MarkNotificationRead(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return false, nil
	}
	n.Read = true
	s.notifications[id] = n
	return true, nil
}

// Analytics

func (s *MemStore) ListAnalytics(_ context.Context, f AnalyticsFilter) ([]models.AnalyticsEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.AnalyticsEntry{}
	for _, e := range s.analytics {
		if f.match(e) {
			out = append(out, cloneAnalytics(e))
		}
	}
	newestFirst(out,
		func(e models.AnalyticsEntry) time.Time { return e.CreatedAt },
		func(e models.AnalyticsEntry) string { return e.ID })
	return out, nil
}

func (s *MemStore) CreateAnalyticsEntry(_ context.Context, e models.AnalyticsEntry) (models.AnalyticsEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e = prepareAnalytics(cloneAnalytics(e), s.now())
	s.analytics[e.ID] = e
	return cloneAnalytics(e), nil
}
