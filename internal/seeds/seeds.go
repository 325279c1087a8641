// Package seeds loads the demo fixture into a store.
package seeds

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

//go:embed data/fixtures.yaml
var fixtureYAML []byte

// DefaultPassword is set on every seeded user.
const DefaultPassword = "password"

type Fixture struct {
	Users     []UserFixture     `yaml:"users"`
	Incidents []IncidentFixture `yaml:"incidents"`
	Resources []ResourceFixture `yaml:"resources"`
}

type UserFixture struct {
	Username     string      `yaml:"username"`
	Email        string      `yaml:"email"`
	Role         models.Role `yaml:"role"`
	Name         string      `yaml:"name"`
	Organization string      `yaml:"organization"`
	Phone        string      `yaml:"phone"`
}

type IncidentFixture struct {
	Ref         string                `yaml:"ref"`
	Title       string                `yaml:"title"`
	Description string                `yaml:"description"`
	Category    string                `yaml:"category"`
	Severity    models.Level          `yaml:"severity"`
	Priority    models.Level          `yaml:"priority"`
	Status      models.IncidentStatus `yaml:"status"`
	Location    models.Location       `yaml:"location"`
	ReportedBy  string                `yaml:"reported_by"` // username
	AssignedTo  string                `yaml:"assigned_to"` // username
	Images      []string              `yaml:"images"`
	Created     string                `yaml:"created"`  // offset like -1h
	Resolved    string                `yaml:"resolved"` // offset, resolved only
}

type ResourceFixture struct {
	Name         string           `yaml:"name"`
	Type         string           `yaml:"type"`
	Category     string           `yaml:"category"`
	Quantity     int              `yaml:"quantity"`
	Location     *models.Location `yaml:"location"`
	Organization string           `yaml:"organization"`
	Description  string           `yaml:"description"`
}

// Load parses the embedded fixture.
func Load() (Fixture, error) {
	return Parse(fixtureYAML)
}

func Parse(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	return f, nil
}

// Result counts what SeedAll created.
type Result struct {
	Users     int
	Incidents int
	Resources int
}

// SeedAll loads the embedded fixture into store.
func SeedAll(ctx context.Context, store storage.Store, log *zap.Logger) (Result, error) {
	f, err := Load()
	if err != nil {
		return Result{}, err
	}
	return Apply(ctx, store, f, time.Now(), log)
}

// Apply is idempotent: existing users are kept, incidents are matched by
// ref and resources by name within their organization.
func Apply(ctx context.Context, store storage.Store, f Fixture, now time.Time, log *zap.Logger) (Result, error) {
	var res Result
	ids := make(map[string]string, len(f.Users))

	hashed, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return res, fmt.Errorf("hash password: %w", err)
	}

	for _, uf := range f.Users {
		existing, err := store.GetUserByUsername(ctx, uf.Username)
		if err == nil {
			log.Info("[seeds] user exists, skipping", zap.String("username", uf.Username))
			ids[uf.Username] = existing.ID
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return res, fmt.Errorf("look up user %s: %w", uf.Username, err)
		}

		u := models.User{
			Username:       uf.Username,
			HashedPassword: string(hashed),
			Email:          uf.Email,
			Role:           uf.Role,
			Name:           uf.Name,
		}
		if uf.Organization != "" {
			u.Organization = &uf.Organization
		}
		if uf.Phone != "" {
			u.Phone = &uf.Phone
		}
		created, err := store.CreateUser(ctx, u)
		if err != nil {
			return res, fmt.Errorf("create user %s: %w", uf.Username, err)
		}
		ids[uf.Username] = created.ID
		res.Users++
	}

	for _, inf := range f.Incidents {
		existing, err := store.ListIncidents(ctx, storage.IncidentFilter{ExternalRef: inf.Ref})
		if err != nil {
			return res, fmt.Errorf("look up incident %s: %w", inf.Ref, err)
		}
		if len(existing) > 0 {
			continue
		}

		in, err := inf.build(ids, now)
		if err != nil {
			return res, err
		}
		if _, err := store.CreateIncident(ctx, in); err != nil {
			return res, fmt.Errorf("create incident %s: %w", inf.Ref, err)
		}
		res.Incidents++
	}

	for _, rf := range f.Resources {
		existing, err := store.ListResources(ctx, storage.ResourceFilter{Organization: rf.Organization})
		if err != nil {
			return res, fmt.Errorf("look up resources of %s: %w", rf.Organization, err)
		}
		if hasResource(existing, rf.Name) {
			continue
		}
		r := models.Resource{
			Name:         rf.Name,
			Type:         rf.Type,
			Category:     rf.Category,
			Quantity:     rf.Quantity,
			Available:    rf.Quantity,
			Location:     rf.Location,
			Organization: rf.Organization,
		}
		if rf.Description != "" {
			r.Description = &rf.Description
		}
		if _, err := store.CreateResource(ctx, r); err != nil {
			return res, fmt.Errorf("create resource %s: %w", rf.Name, err)
		}
		res.Resources++
	}

	log.Info("[seeds] done",
		zap.Int("users", res.Users), zap.Int("incidents", res.Incidents), zap.Int("resources", res.Resources))
	return res, nil
}

func (inf IncidentFixture) build(ids map[string]string, now time.Time) (models.Incident, error) {
	reporter, ok := ids[inf.ReportedBy]
	if !ok {
		return models.Incident{}, fmt.Errorf("incident %s: unknown reporter %q", inf.Ref, inf.ReportedBy)
	}
	created, err := offset(now, inf.Created)
	if err != nil {
		return models.Incident{}, fmt.Errorf("incident %s: %w", inf.Ref, err)
	}

	ref := inf.Ref
	in := models.Incident{
		Title:       inf.Title,
		Description: inf.Description,
		Category:    inf.Category,
		Severity:    inf.Severity,
		Priority:    inf.Priority,
		Status:      inf.Status,
		Location:    inf.Location,
		ReportedBy:  reporter,
		Images:      inf.Images,
		ExternalRef: &ref,
		CreatedAt:   created,
	}
	if inf.AssignedTo != "" {
		id, ok := ids[inf.AssignedTo]
		if !ok {
			return models.Incident{}, fmt.Errorf("incident %s: unknown assignee %q", inf.Ref, inf.AssignedTo)
		}
		in.AssignedTo = &id
	}
	if inf.Resolved != "" {
		t, err := offset(now, inf.Resolved)
		if err != nil {
			return models.Incident{}, fmt.Errorf("incident %s: %w", inf.Ref, err)
		}
		in.ResolvedAt = &t
	}
	return in, nil
}

// offset resolves "-1h" style durations against now. Empty means now.
func offset(now time.Time, s string) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad time offset %q: %w", s, err)
	}
	return now.Add(d), nil
}

func hasResource(list []models.Resource, name string) bool {
	for _, r := range list {
		if r.Name == name {
			return true
		}
	}
	return false
}
