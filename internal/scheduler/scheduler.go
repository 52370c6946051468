package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/cbquant/pkg/logger"
)

// Scheduler runs registered jobs on cron schedules with retry
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger

	// Stop이 cancel → 실행 중인 작업과 재시도 대기가 즉시 끝남
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	jobs    map[string]Job
	entries map[string]cron.EntryID
	history map[string]*JobHistory

	maxRetries int
	retryDelay time.Duration
}

// New creates a scheduler; jobs still running at the next tick are skipped
func New(log *logger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cron.PrintfLogger(log)

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:     log,
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(map[string]Job),
		entries:    make(map[string]cron.EntryID),
		history:    make(map[string]*JobHistory),
		maxRetries: 3,
		retryDelay: time.Minute,
	}
}

// WithRetry sets how often a failed run is retried and the pause between attempts
func (s *Scheduler) WithRetry(maxRetries int, delay time.Duration) *Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxRetries = maxRetries
	s.retryDelay = delay
	return s
}

// AddJob registers a job under its unique name
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	id, err := s.cron.AddJob(job.Schedule(), cron.FuncJob(func() { s.execute(job) }))
	if err != nil {
		return fmt.Errorf("schedule job %s (%q): %w", name, job.Schedule(), err)
	}

	s.jobs[name] = job
	s.entries[name] = id
	s.history[name] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      name,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// RemoveJob unregisters a job and drops its history
func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, exists := s.entries[name]
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	s.cron.Remove(id)
	delete(s.jobs, name)
	delete(s.entries, name)
	delete(s.history, name)
	s.logger.WithField("job", name).Info("Job removed from scheduler")

	return nil
}

// Start begins firing schedules in the background
func (s *Scheduler) Start() {
	s.logger.WithField("jobs", len(s.GetAllJobs())).Info("Starting scheduler")
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) lookup(name string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return job, nil
}

// RunJob starts a job immediately outside its schedule
func (s *Scheduler) RunJob(name string) error {
	job, err := s.lookup(name)
	if err != nil {
		return err
	}
	go s.execute(job)
	return nil
}

// RunJobSync runs a job immediately and waits for it, retries included
func (s *Scheduler) RunJobSync(name string) (JobResult, error) {
	job, err := s.lookup(name)
	if err != nil {
		return JobResult{}, err
	}
	return s.execute(job), nil
}

// execute runs one job with retries and records the result
func (s *Scheduler) execute(job Job) JobResult {
	name := job.Name()
	log := s.logger.WithField("job", name)

	s.mu.RLock()
	maxRetries, delay := s.maxRetries, s.retryDelay
	s.mu.RUnlock()

	result := JobResult{JobName: name, StartTime: time.Now()}
	log.Info("Job started")

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result.Attempts = attempt + 1

		if lastErr = s.attempt(job); lastErr == nil {
			break
		}
		if errors.Is(lastErr, context.Canceled) && s.ctx.Err() != nil {
			break
		}

		log.WithError(lastErr).WithField("attempt", result.Attempts).Warn("Job attempt failed")
		if attempt == maxRetries {
			break
		}

		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			lastErr = s.ctx.Err()
		}
		if s.ctx.Err() != nil {
			break
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Success = lastErr == nil
	if lastErr != nil {
		result.Error = lastErr.Error()
	}

	s.mu.Lock()
	if h, ok := s.history[name]; ok {
		h.Add(result)
	}
	s.mu.Unlock()

	done := log.WithDuration(result.StartTime).WithField("attempts", result.Attempts)
	if result.Success {
		done.Info("Job completed successfully")
	} else {
		done.WithError(lastErr).Error("Job failed after all retries")
	}

	return result
}

// attempt runs the job once under the scheduler context and its own timeout
func (s *Scheduler) attempt(job Job) error {
	ctx := s.ctx
	if tj, ok := job.(TimeoutJob); ok && tj.Timeout() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tj.Timeout())
		defer cancel()
	}
	return job.Run(ctx)
}

// GetJobHistory returns a copy of a job's history
func (s *Scheduler) GetJobHistory(name string) (*JobHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.history[name]
	if !ok {
		return nil, fmt.Errorf("job %s not found", name)
	}
	return &JobHistory{Results: append([]JobResult(nil), h.Results...)}, nil
}

// GetAllJobs returns the registered job names in sorted order
func (s *Scheduler) GetAllJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetJobStats summarizes every job; NextRun is set once the scheduler is started
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats, len(s.jobs))
	for name, job := range s.jobs {
		st := s.history[name].Stats(name, job.Schedule())
		if next := s.cron.Entry(s.entries[name]).Next; !next.IsZero() {
			st.NextRun = &next
		}
		stats[name] = st
	}
	return stats
}
