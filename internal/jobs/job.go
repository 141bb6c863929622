// Package jobs runs caller-supplied shell commands as supervised
// background work. Submission returns immediately; callers poll for
// status and a bounded log tail, and may request termination. Records
// survive process restarts through a SQLite store.
package jobs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusKilled    Status = "killed"
	StatusTimedOut  Status = "timed_out"
)

// Job is one unit of background work with its full lifecycle state.
type Job struct {
	ID          string     `json:"id"`
	Command     string     `json:"command"`
	Dir         string     `json:"dir,omitempty"`
	PID         int        `json:"pid,omitempty"`
	Status      Status     `json:"status"`
	ExitCode    *int       `json:"exitCode,omitempty"`
	TimeoutSecs int        `json:"timeoutSecs"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	LogPath     string     `json:"logPath"`
}

// NewJob creates a pending job for a shell command.
func NewJob(command, dir string, timeoutSecs int) *Job {
	return &Job{
		ID:          uuid.New().String(),
		Command:     command,
		Dir:         dir,
		Status:      StatusPending,
		TimeoutSecs: timeoutSecs,
		CreatedAt:   time.Now().UTC(),
	}
}

// IsTerminal returns true if the job reached a final state.
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case StatusSucceeded, StatusFailed, StatusKilled, StatusTimedOut:
		return true
	}
	return false
}

// CanKill returns true if the job has a lifecycle left to interrupt.
func (j *Job) CanKill() bool {
	return j.Status == StatusPending || j.Status == StatusRunning
}

// MarkStarted transitions the job to running once its process exists.
func (j *Job) MarkStarted(pid int) {
	if j.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	j.Status = StatusRunning
	j.PID = pid
	j.StartedAt = &now
}

// MarkExited records the process exit. A zero code succeeds, anything
// else fails with the code preserved.
func (j *Job) MarkExited(code int) {
	if j.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	j.ExitCode = &code
	j.FinishedAt = &now
	if code == 0 {
		j.Status = StatusSucceeded
	} else {
		j.Status = StatusFailed
		j.Error = fmt.Sprintf("exit code %d", code)
	}
}

// MarkFailed records a failure that is not a process exit, such as a
// spawn or wait error.
func (j *Job) MarkFailed(err error) {
	if j.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.FinishedAt = &now
	if err != nil {
		j.Error = err.Error()
	}
}

// MarkKilled records a caller-requested termination.
func (j *Job) MarkKilled() {
	if j.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	j.Status = StatusKilled
	j.FinishedAt = &now
	j.Error = "killed by user"
}

// MarkTimedOut records that the timeout fired before the process
// finished.
func (j *Job) MarkTimedOut() {
	if j.IsTerminal() {
		return
	}
	now := time.Now().UTC()
	j.Status = StatusTimedOut
	j.FinishedAt = &now
	j.Error = fmt.Sprintf("timed out after %ds", j.TimeoutSecs)
}

// Duration returns how long the job ran, or has been running.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return end.Sub(*j.StartedAt)
}

// Clone returns an independent snapshot of the job.
func (j *Job) Clone() *Job {
	c := *j
	if j.ExitCode != nil {
		code := *j.ExitCode
		c.ExitCode = &code
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}

// Summary is a lightweight view of a job for listing.
type Summary struct {
	ID         string     `json:"id"`
	Command    string     `json:"command"`
	Status     Status     `json:"status"`
	ExitCode   *int       `json:"exitCode,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ToSummary creates a summary view of the job.
func (j *Job) ToSummary() Summary {
	return Summary{
		ID:         j.ID,
		Command:    j.Command,
		Status:     j.Status,
		ExitCode:   j.ExitCode,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.FinishedAt,
		Error:      j.Error,
	}
}

// ListOptions contains filters for listing jobs.
type ListOptions struct {
	Status []Status
	Limit  int
	Offset int
}

// ListResponse contains the result of listing jobs.
type ListResponse struct {
	Jobs       []Summary `json:"jobs"`
	TotalCount int       `json:"totalCount"`
}
