// Package scheduler runs collection jobs on cron schedules and keeps a
// bounded in-memory history of their outcomes.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/gridflow/pkg/logger"
)

// Scheduler owns the cron runner and the registered jobs. Job-level retry
// is deliberately absent: the pipeline retries per HTTP attempt and isolates
// failures per sub-range, so re-running a whole job on a timer would only
// re-fetch days the checkpoint already advanced past.
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger

	mu      sync.RWMutex
	jobs    map[string]Job
	history map[string]*History
}

// New creates a scheduler with seconds-resolution cron expressions.
func New(log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		logger:  log.WithField("module", "scheduler"),
		jobs:    make(map[string]Job),
		history: make(map[string]*History),
	}
}

// AddJob registers a job under its schedule.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	_, err := s.cron.AddFunc(job.Schedule(), func() {
		s.runJob(job)
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.jobs[name] = job
	s.history[name] = &History{}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// Start starts the cron runner.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops the cron runner and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

// RunJob triggers a job immediately, outside its schedule.
func (s *Scheduler) RunJob(name string) error {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	go s.runJob(job)
	return nil
}

// runJob executes one job under its timeout and records the outcome.
func (s *Scheduler) runJob(job Job) {
	name := job.Name()
	start := time.Now()

	s.logger.WithField("job", name).Info("Job started")

	ctx := context.Background()
	if timeout := job.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := job.Run(ctx)
	end := time.Now()

	record := RunRecord{
		JobName:   name,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Success:   err == nil,
	}
	if err != nil {
		record.Error = err.Error()
	}

	s.mu.Lock()
	if history, exists := s.history[name]; exists {
		history.Add(record)
	}
	s.mu.Unlock()

	if err == nil {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": record.Duration.String(),
		}).Info("Job completed")
	} else {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": record.Duration.String(),
			"error":    err.Error(),
		}).Error("Job failed")
	}
}

// JobHistory returns the recorded runs of one job.
func (s *Scheduler) JobHistory(name string) (*History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return history, nil
}

// Jobs lists the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JobStats summarizes one job's run history.
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}

// Stats summarizes every registered job.
func (s *Scheduler) Stats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats)

	for name, history := range s.history {
		failed := history.Failed()

		var lastRun, lastSuccess, lastFailure *time.Time
		for i := len(history.Records) - 1; i >= 0; i-- {
			record := history.Records[i]
			if lastRun == nil {
				lastRun = &record.StartTime
			}
			if record.Success && lastSuccess == nil {
				lastSuccess = &record.StartTime
			}
			if !record.Success && lastFailure == nil {
				lastFailure = &record.StartTime
			}
			if lastSuccess != nil && lastFailure != nil {
				break
			}
		}

		stats[name] = JobStats{
			JobName:      name,
			Schedule:     s.jobs[name].Schedule(),
			TotalRuns:    len(history.Records),
			SuccessCount: len(history.Records) - len(failed),
			FailureCount: len(failed),
			SuccessRate:  history.SuccessRate(),
			LastRun:      lastRun,
			LastSuccess:  lastSuccess,
			LastFailure:  lastFailure,
		}
	}

	return stats
}
