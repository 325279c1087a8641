package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/EcoWatch/EcoWatch-Backend/internal/models"
	"github.com/EcoWatch/EcoWatch-Backend/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	JobRunning             = "running"
	JobCompleted           = "completed"
	JobCompletedWithErrors = "completed_with_errors"
	JobFailed              = "failed"
)

// RollupJob tracks an asynchronous rollup of one period.
type RollupJob struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Period      models.Period `json:"period"`
	Total       int           `json:"total"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Current     string        `json:"current,omitempty"`
	Entries     []string      `json:"entries,omitempty"`
	Errors      []string      `json:"errors,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

func (j *RollupJob) snapshot() RollupJob {
	s := *j
	s.Entries = append([]string(nil), j.Entries...)
	s.Errors = append([]string(nil), j.Errors...)
	return s
}

// rollupTypes are computed in this order.
var rollupTypes = []models.AnalyticsType{
	models.AnalyticsIncidentPatterns,
	models.AnalyticsResponseTime,
	models.AnalyticsResourceUtilization,
}

// Jobs runs rollups in the background and remembers their progress for
// the life of the process.
type Jobs struct {
	store storage.Store
	log   *zap.Logger
	now   func() time.Time

	mu   sync.Mutex
	jobs map[string]*RollupJob
	wg   sync.WaitGroup
}

func NewJobs(store storage.Store, log *zap.Logger) *Jobs {
	return &Jobs{store: store, log: log, now: time.Now, jobs: make(map[string]*RollupJob)}
}

// Start launches a rollup for period and returns its initial state. The
// job outlives ctx's cancellation but keeps its values.
func (j *Jobs) Start(ctx context.Context, period models.Period) (RollupJob, error) {
	if _, ok := Window(period); !ok {
		return RollupJob{}, fmt.Errorf("unknown period %q", period)
	}
	job := &RollupJob{
		ID:        uuid.NewString(),
		Status:    JobRunning,
		Period:    period,
		Total:     len(rollupTypes),
		StartedAt: j.now(),
	}

	j.mu.Lock()
	j.jobs[job.ID] = job
	snap := job.snapshot()
	j.mu.Unlock()

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		j.run(ctx, job)
	}()
	return snap, nil
}

func (j *Jobs) Get(id string) (RollupJob, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return RollupJob{}, false
	}
	return job.snapshot(), true
}

func (j *Jobs) List() []RollupJob {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]RollupJob, 0, len(j.jobs))
	for _, job := range j.jobs {
		out = append(out, job.snapshot())
	}
	return out
}

// Wait blocks until every started job has finished.
func (j *Jobs) Wait() { j.wg.Wait() }

func (j *Jobs) run(ctx context.Context, job *RollupJob) {
	j.log.Info("[rollup] starting", zap.String("job", job.ID), zap.String("period", string(job.Period)))

	sum, err := Summarize(ctx, j.store, job.Period, job.StartedAt)
	if err != nil {
		j.log.Error("[rollup] summary failed", zap.String("job", job.ID), zap.Error(err))
		j.finish(job, JobFailed, err.Error())
		return
	}

	for _, typ := range rollupTypes {
		j.mu.Lock()
		job.Current = string(typ)
		j.mu.Unlock()

		entry, err := j.store.CreateAnalyticsEntry(ctx, models.AnalyticsEntry{
			Type:   typ,
			Period: job.Period,
			Data:   EntryData(typ, sum),
		})

		j.mu.Lock()
		if err != nil {
			job.Failed++
			job.Errors = append(job.Errors, fmt.Sprintf("%s: %v", typ, err))
		} else {
			job.Completed++
			job.Entries = append(job.Entries, entry.ID)
		}
		j.mu.Unlock()
		if err != nil {
			j.log.Warn("[rollup] entry failed", zap.String("job", job.ID), zap.String("type", string(typ)), zap.Error(err))
		}
	}

	status := JobCompleted
	if job.Failed > 0 {
		status = JobCompletedWithErrors
	}
	j.finish(job, status, "")
}

func (j *Jobs) finish(job *RollupJob, status, errMsg string) {
	now := j.now()
	j.mu.Lock()
	job.Current = ""
	job.Status = status
	job.CompletedAt = &now
	if errMsg != "" {
		job.Errors = append(job.Errors, errMsg)
	}
	completed, failed := job.Completed, job.Failed
	j.mu.Unlock()

	j.log.Info("[rollup] finished",
		zap.String("job", job.ID), zap.String("status", status),
		zap.Int("completed", completed), zap.Int("failed", failed))
}

// EntryData shapes a summary into the payload stored for typ.
func EntryData(typ models.AnalyticsType, sum Summary) models.JSONMap {
	switch typ {
	case models.AnalyticsResponseTime:
		return models.JSONMap{
			"mean_minutes": sum.MeanResponseMinutes,
			"resolved":     sum.Resolved,
		}
	case models.AnalyticsResourceUtilization:
		byType := make(map[string]interface{}, len(sum.Resources))
		for _, u := range sum.Resources {
			byType[u.Type] = u.Utilization
		}
		return models.JSONMap{"by_type": byType}
	case models.AnalyticsIncidentPatterns:
		return models.JSONMap{
			"total":       sum.Total,
			"by_status":   countMap(sum.ByStatus),
			"by_category": countMap(sum.ByCategory),
		}
	}
	return models.JSONMap{}
}

func countMap(counts []Count) map[string]interface{} {
	out := make(map[string]interface{}, len(counts))
	for _, c := range counts {
		out[c.Key] = c.Value
	}
	return out
}
