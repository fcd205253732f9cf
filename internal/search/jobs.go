package search

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"homeradius/server/internal/models"
)

// Job is a snapshot of one background prefetch run.
type Job struct {
	ID        string                 `json:"id"`
	Current   int                    `json:"current"`
	Total     int                    `json:"total"`
	Done      bool                   `json:"done"`
	Error     string                 `json:"error,omitempty"`
	StartedAt time.Time              `json:"started_at"`
	Result    *models.PrefetchResult `json:"result,omitempty"`
}

// JobTracker runs prefetches in the background and lets callers poll
// progress by job ID. Completed jobs stay available until the process
// exits.
type JobTracker struct {
	orchestrator *Orchestrator
	logger       *logrus.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewJobTracker(orchestrator *Orchestrator, logger *logrus.Logger) *JobTracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &JobTracker{
		orchestrator: orchestrator,
		logger:       logger,
		jobs:         make(map[string]*Job),
	}
}

// StartPrefetch launches a prefetch run and returns its job ID
// immediately. There is no cancellation; the run goes to completion.
func (t *JobTracker) StartPrefetch() string {
	id := uuid.NewString()
	t.mu.Lock()
	t.jobs[id] = &Job{ID: id, StartedAt: time.Now()}
	t.mu.Unlock()

	go func() {
		result, err := t.orchestrator.PrefetchAll(context.Background(), func(current, total int) {
			t.mu.Lock()
			if job, ok := t.jobs[id]; ok {
				job.Current = current
				job.Total = total
			}
			t.mu.Unlock()
		})

		t.mu.Lock()
		defer t.mu.Unlock()
		job, ok := t.jobs[id]
		if !ok {
			return
		}
		job.Done = true
		if err != nil {
			job.Error = err.Error()
			t.logger.WithError(err).WithField("job_id", id).Error("Prefetch job failed")
			return
		}
		job.Result = &result
	}()

	return id
}

// Get returns a copy of the job state.
func (t *JobTracker) Get(id string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}
