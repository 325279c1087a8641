// Package analytics stores chart data and computes live summaries over
// incidents and resources.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Window is how far back a period looks.
func Window(p models.Period) (time.Duration, bool) {
	switch p {
	case models.PeriodDaily:
		return 24 * time.Hour, true
	case models.PeriodWeekly:
		return 7 * 24 * time.Hour, true
	case models.PeriodMonthly:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

// Count is one bar of a chart.
type Count struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value int    `json:"value"`
}

type Utilization struct {
	Type        string  `json:"type"`
	Label       string  `json:"label"`
	Quantity    int     `json:"quantity"`
	Available   int     `json:"available"`
	Utilization float64 `json:"utilization"`
}

type Summary struct {
	Period              models.Period `json:"period,omitempty"`
	Since               *time.Time    `json:"since,omitempty"`
	Total               int           `json:"total"`
	ByStatus            []Count       `json:"by_status"`
	ByCategory          []Count       `json:"by_category"`
	Resolved            int           `json:"resolved"`
	MeanResponseMinutes float64       `json:"mean_response_minutes"`
	Resources           []Utilization `json:"resources"`
	GeneratedAt         time.Time     `json:"generated_at"`
}

// StatusCounts returns the per-status totals, zero-filled.
func (s Summary) StatusCounts() map[models.IncidentStatus]int {
	out := make(map[models.IncidentStatus]int, len(s.ByStatus))
	for _, c := range s.ByStatus {
		out[models.IncidentStatus(c.Key)] = c.Value
	}
	return out
}

var titler = cases.Title(language.English)

// Label turns a key like "in-progress" into "In Progress".
func Label(key string) string {
	return titler.String(strings.NewReplacer("-", " ", "_", " ").Replace(key))
}

var statusOrder = []models.IncidentStatus{
	models.StatusReported,
	models.StatusAcknowledged,
	models.StatusInProgress,
	models.StatusResolved,
}

// Summarize computes chart data over incidents created within period of
// now. An empty period covers everything.
func Summarize(ctx context.Context, store storage.Store, period models.Period, now time.Time) (Summary, error) {
	sum := Summary{Period: period, GeneratedAt: now}
	f := storage.IncidentFilter{}
	if period != "" {
		w, ok := Window(period)
		if !ok {
			return Summary{}, fmt.Errorf("unknown period %q", period)
		}
		since := now.Add(-w)
		f.Since = since
		sum.Since = &since
	}

	incidents, err := store.ListIncidents(ctx, f)
	if err != nil {
		return Summary{}, fmt.Errorf("list incidents: %w", err)
	}
	resources, err := store.ListResources(ctx, storage.ResourceFilter{})
	if err != nil {
		return Summary{}, fmt.Errorf("list resources: %w", err)
	}

	sum.Total = len(incidents)
	byStatus := make(map[models.IncidentStatus]int)
	byCategory := make(map[string]int)
	var responseMinutes float64
	for _, in := range incidents {
		byStatus[in.Status]++
		byCategory[in.Category]++
		if in.Status == models.StatusResolved && in.ResolvedAt != nil {
			responseMinutes += in.ResolvedAt.Sub(in.CreatedAt).Minutes()
			sum.Resolved++
		}
	}
	if sum.Resolved > 0 {
		sum.MeanResponseMinutes = round1(responseMinutes / float64(sum.Resolved))
	}

	for _, st := range statusOrder {
		sum.ByStatus = append(sum.ByStatus, Count{Key: string(st), Label: Label(string(st)), Value: byStatus[st]})
	}
	sum.ByCategory = sortedCounts(byCategory)
	sum.Resources = utilization(resources)
	return sum, nil
}

// sortedCounts orders by value, largest first, then by key.
func sortedCounts(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Key: k, Label: Label(k), Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// utilization is 1 - available/quantity per resource type.
func utilization(resources []models.Resource) []Utilization {
	byType := make(map[string]*Utilization)
	for _, r := range resources {
		u, ok := byType[r.Type]
		if !ok {
			u = &Utilization{Type: r.Type, Label: Label(r.Type)}
			byType[r.Type] = u
		}
		u.Quantity += r.Quantity
		u.Available += r.Available
	}
	out := make([]Utilization, 0, len(byType))
	for _, u := range byType {
		if u.Quantity > 0 {
			u.Utilization = round3(1 - float64(u.Available)/float64(u.Quantity))
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
