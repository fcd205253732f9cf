// Package scheduler keeps the listings cache warm by running a full
// prefetch on a cron schedule. The prefetch goes through the shared
// rate-limited queue like every other provider call, so a scheduled
// run never bursts past the provider's limits.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"homeradius/server/internal/search"
)

// Scheduler manages periodic cache refresh runs.
type Scheduler struct {
	orchestrator *search.Orchestrator
	logger       *logrus.Logger
	cron         *cron.Cron
	jobMutex     sync.Mutex // one refresh at a time
}

func NewScheduler(orchestrator *search.Orchestrator, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		orchestrator: orchestrator,
		logger:       logger,
		cron:         cron.New(),
	}
}

// Start registers the refresh job and begins the schedule. An empty
// spec disables scheduling entirely.
func (s *Scheduler) Start(spec string) error {
	if spec == "" {
		s.logger.Info("Cache refresh schedule disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, s.runRefresh); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("schedule", spec).Info("Cache refresh schedule started")
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	// Block until any in-flight refresh releases the mutex.
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()
}

func (s *Scheduler) runRefresh() {
	if !s.jobMutex.TryLock() {
		s.logger.Warn("Skipping scheduled refresh, previous run still in progress")
		return
	}
	defer s.jobMutex.Unlock()

	s.logger.Info("Starting scheduled listings refresh")
	result, err := s.orchestrator.PrefetchAll(context.Background(), func(current, total int) {
		s.logger.WithFields(logrus.Fields{
			"page":  current,
			"total": total,
		}).Debug("Scheduled refresh progress")
	})
	if err != nil {
		s.logger.WithError(err).Error("Scheduled refresh failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"pages_loaded": len(result.LoadedPages),
		"total_pages":  result.TotalPages,
		"properties":   len(result.Properties),
	}).Info("Scheduled refresh completed")
}
