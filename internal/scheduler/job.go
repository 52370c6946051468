package scheduler

import (
	"context"
	"time"
)

// historyLimit is how many results each job keeps
const historyLimit = 100

// Job is a unit of scheduled work
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string

	// Schedule is a cron expression with a leading seconds field,
	// e.g. "0 30 18 * * 1-5" (평일 18:30) or a descriptor like "@daily"
	Schedule() string

	Run(ctx context.Context) error
}

// TimeoutJob is a Job that bounds each attempt
type TimeoutJob interface {
	Job
	Timeout() time.Duration
}

// JobResult is one execution of a job, retries included
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory is a bounded log of results, oldest first
type JobHistory struct {
	Results []JobResult
}

// Add appends a result and drops the oldest beyond historyLimit
func (h *JobHistory) Add(result JobResult) {
	h.Results = append(h.Results, result)
	if over := len(h.Results) - historyLimit; over > 0 {
		h.Results = append([]JobResult(nil), h.Results[over:]...)
	}
}

// Latest returns up to n most recent results
func (h *JobHistory) Latest(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n <= 0 {
		return []JobResult{}
	}
	return h.Results[len(h.Results)-n:]
}

// Failed returns the failed results
func (h *JobHistory) Failed() []JobResult {
	var out []JobResult
	for _, r := range h.Results {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}

// SuccessRate is in [0, 1]; 0 with no runs
func (h *JobHistory) SuccessRate() float64 {
	if len(h.Results) == 0 {
		return 0
	}
	ok := 0
	for _, r := range h.Results {
		if r.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(h.Results))
}

// Stats summarizes the history
func (h *JobHistory) Stats(name, schedule string) JobStats {
	st := JobStats{
		JobName:     name,
		Schedule:    schedule,
		TotalRuns:   len(h.Results),
		SuccessRate: h.SuccessRate(),
	}
	for _, r := range h.Results {
		started := r.StartTime
		st.LastRun = &started
		if r.Success {
			st.SuccessCount++
			st.LastSuccess = &started
		} else {
			st.FailureCount++
			st.LastFailure = &started
		}
	}
	return st
}

// JobStats is the summary reported by `scheduler list`
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
	NextRun      *time.Time `json:"next_run,omitempty"`
}
