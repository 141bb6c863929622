package jobs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"cme/internal/config"
	cmeerrors "cme/internal/errors"
	"cme/internal/logging"
	"cme/internal/paths"
)

// scanBufSize bounds a single output line; longer lines are split by
// the scanner rather than buffered without limit.
const scanBufSize = 1024 * 1024

// Manager owns the job registry and the worker pool that executes
// submitted commands. The registry lock covers map and record
// mutation only, never process I/O or log reads.
type Manager struct {
	cfg    *config.Config
	logger *logging.Logger
	store  *Store

	mu     sync.Mutex
	jobs   map[string]*Job
	procs  map[string]*os.Process
	killed map[string]bool

	queue chan *Job
	done  chan struct{}
	wg    sync.WaitGroup

	lastSweep time.Time
}

// StatusResult is a point-in-time view of one job plus a bounded tail
// of its log.
type StatusResult struct {
	JobID        string   `json:"jobId"`
	Status       Status   `json:"status"`
	PID          int      `json:"pid,omitempty"`
	ExitCode     *int     `json:"exitCode,omitempty"`
	DurationSecs int      `json:"durationSecs"`
	Error        string   `json:"error,omitempty"`
	LogTail      []string `json:"logTail"`
	LogPath      string   `json:"logPath"`
}

// NewManager opens the job store, fails over any records orphaned by
// a previous process, and starts the worker pool.
func NewManager(cfg *config.Config, logger *logging.Logger) (*Manager, error) {
	return newManager(cfg, logger, true)
}

// NewForegroundManager is NewManager without the orphan fail-over, for
// short-lived processes that run alongside a long-lived server and must
// not touch records the server still owns.
func NewForegroundManager(cfg *config.Config, logger *logging.Logger) (*Manager, error) {
	return newManager(cfg, logger, false)
}

func newManager(cfg *config.Config, logger *logging.Logger, adoptOrphans bool) (*Manager, error) {
	store, err := OpenStore(cfg.WorkspaceRoot, logger)
	if err != nil {
		return nil, err
	}

	if adoptOrphans {
		orphans, err := store.MarkOrphans()
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if orphans > 0 {
			logger.Warn("Failed jobs orphaned by a previous run", map[string]interface{}{
				"count": orphans,
			})
		}
	}

	m := &Manager{
		cfg:    cfg,
		logger: logger,
		store:  store,
		jobs:   make(map[string]*Job),
		procs:  make(map[string]*os.Process),
		killed: make(map[string]bool),
		queue:  make(chan *Job, cfg.Jobs.QueueSize),
		done:   make(chan struct{}),
	}

	for i := 0; i < cfg.Jobs.MaxConcurrent; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	logger.Info("Job manager started", map[string]interface{}{
		"workers":   cfg.Jobs.MaxConcurrent,
		"queueSize": cfg.Jobs.QueueSize,
	})

	return m, nil
}

// Submit queues a shell command for background execution and returns
// its record immediately. The command runs under `sh -c`.
func (m *Manager) Submit(command, dir string, timeoutSecs int) (*Job, error) {
	if strings.TrimSpace(command) == "" {
		return nil, cmeerrors.New(cmeerrors.InvalidArgument, "command must not be empty", nil)
	}
	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return nil, cmeerrors.New(cmeerrors.JobSpawnError,
				fmt.Sprintf("working directory does not exist: %s", dir), err)
		}
	}
	if timeoutSecs <= 0 {
		timeoutSecs = m.cfg.Jobs.DefaultTimeoutSecs
	}
	if timeoutSecs > m.cfg.Jobs.MaxTimeoutSecs {
		return nil, cmeerrors.New(cmeerrors.InvalidArgument,
			fmt.Sprintf("timeoutSecs exceeds the maximum (%d)", m.cfg.Jobs.MaxTimeoutSecs), nil)
	}

	select {
	case <-m.done:
		return nil, cmeerrors.New(cmeerrors.JobSpawnError, "job manager is shutting down", nil)
	default:
	}

	m.sweep()

	jobsDir, err := paths.EnsureJobsDir(m.cfg.WorkspaceRoot)
	if err != nil {
		return nil, cmeerrors.New(cmeerrors.FileIOError, "cannot create job log directory", err)
	}

	job := NewJob(command, dir, timeoutSecs)
	job.LogPath = filepath.Join(jobsDir, job.ID+".log")

	if err := m.store.CreateJob(job); err != nil {
		return nil, cmeerrors.New(cmeerrors.InternalError, "failed to persist job", err)
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	select {
	case m.queue <- job:
	default:
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		_ = m.store.DeleteJob(job.ID)
		return nil, cmeerrors.New(cmeerrors.JobSpawnError,
			fmt.Sprintf("job queue is full (%d pending)", m.cfg.Jobs.QueueSize), nil)
	}

	m.logger.Info("Job submitted", map[string]interface{}{
		"jobId":   job.ID,
		"command": command,
	})

	return m.snapshot(job), nil
}

// Status returns a snapshot of the job plus the last lines of its
// log. It never blocks on the job itself.
func (m *Manager) Status(jobID string) (*StatusResult, error) {
	job, err := m.lookup(jobID)
	if err != nil {
		return nil, err
	}

	res := &StatusResult{
		JobID:        job.ID,
		Status:       job.Status,
		PID:          job.PID,
		ExitCode:     job.ExitCode,
		DurationSecs: int(job.Duration().Seconds()),
		Error:        job.Error,
		LogPath:      job.LogPath,
	}
	res.LogTail = Tail(job.LogPath, m.cfg.Jobs.LogTailLines)
	return res, nil
}

// Kill requests termination. A pending job is killed in place; a
// running job is sent SIGTERM and transitions to killed once its
// process actually stops. Killing a terminal job is a no-op.
func (m *Manager) Kill(jobID string) (Status, error) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		stored, err := m.store.GetJob(jobID)
		if err != nil {
			return "", cmeerrors.New(cmeerrors.InternalError, "failed to load job", err)
		}
		if stored == nil {
			return "", m.notFound(jobID)
		}
		// Only terminal records live outside the registry.
		return stored.Status, nil
	}

	if job.IsTerminal() {
		status := job.Status
		m.mu.Unlock()
		return status, nil
	}

	if job.Status == StatusPending {
		job.MarkKilled()
		snapshot := job.Clone()
		m.mu.Unlock()
		m.finalize(snapshot, nil)
		return snapshot.Status, nil
	}

	m.killed[jobID] = true
	proc := m.procs[jobID]
	status := job.Status
	m.mu.Unlock()

	if proc != nil {
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			m.logger.Debug("Signal delivery failed", map[string]interface{}{
				"jobId": jobID,
				"error": err.Error(),
			})
		}
	}
	return status, nil
}

// List returns job summaries from the store, newest first.
func (m *Manager) List(opts ListOptions) (*ListResponse, error) {
	res, err := m.store.ListJobs(opts)
	if err != nil {
		return nil, cmeerrors.New(cmeerrors.InternalError, "failed to list jobs", err)
	}
	return res, nil
}

// Stop shuts the pool down, nudging running processes with SIGTERM,
// and closes the store.
func (m *Manager) Stop(timeout time.Duration) error {
	m.logger.Info("Stopping job manager", nil)
	close(m.done)

	m.mu.Lock()
	for id, proc := range m.procs {
		m.killed[id] = true
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			m.logger.Debug("Signal delivery failed", map[string]interface{}{
				"jobId": id,
				"error": err.Error(),
			})
		}
	}
	m.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	var waitErr error
	select {
	case <-finished:
	case <-time.After(timeout):
		waitErr = fmt.Errorf("job manager shutdown timed out after %v", timeout)
	}

	if err := m.store.Close(); err != nil && waitErr == nil {
		waitErr = err
	}
	return waitErr
}

// lookup finds one job, preferring the live registry over the store.
func (m *Manager) lookup(jobID string) (*Job, error) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if ok {
		snapshot := job.Clone()
		m.mu.Unlock()
		return snapshot, nil
	}
	m.mu.Unlock()

	stored, err := m.store.GetJob(jobID)
	if err != nil {
		return nil, cmeerrors.New(cmeerrors.InternalError, "failed to load job", err)
	}
	if stored == nil {
		return nil, m.notFound(jobID)
	}
	return stored, nil
}

func (m *Manager) notFound(jobID string) error {
	return cmeerrors.New(cmeerrors.JobNotFound,
		fmt.Sprintf("job '%s' not found; completed jobs are evicted after %dh",
			jobID, m.cfg.Jobs.RetentionHours), nil)
}

func (m *Manager) snapshot(job *Job) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return job.Clone()
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()

	for {
		select {
		case job := <-m.queue:
			m.runJob(job)
		case <-m.done:
			return
		}
	}
}

// runJob spawns the job's process, streams its output to the log
// file, and supervises it to a terminal state.
func (m *Manager) runJob(job *Job) {
	select {
	case <-m.done:
		// Shutting down; the record is failed over on the next start.
		return
	default:
	}

	m.mu.Lock()
	if job.Status != StatusPending {
		// Killed while queued; already finalized.
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	logw, err := CreateLog(job)
	if err != nil {
		m.fail(job, err)
		return
	}

	cmd := exec.Command("sh", "-c", job.Command)
	if job.Dir != "" {
		cmd.Dir = job.Dir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = logw.Close()
		m.fail(job, fmt.Errorf("failed to open stdout pipe: %w", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = logw.Close()
		m.fail(job, fmt.Errorf("failed to open stderr pipe: %w", err))
		return
	}

	if err := cmd.Start(); err != nil {
		_ = logw.Close()
		m.fail(job, fmt.Errorf("failed to spawn command: %w", err))
		return
	}

	m.mu.Lock()
	job.MarkStarted(cmd.Process.Pid)
	m.procs[job.ID] = cmd.Process
	running := job.Clone()
	m.mu.Unlock()

	if err := m.store.UpdateJob(running); err != nil {
		m.logger.Warn("Failed to update job record", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
	}

	var drains sync.WaitGroup
	drains.Add(2)
	go m.drain(&drains, logw, "stdout", stdout)
	go m.drain(&drains, logw, "stderr", stderr)

	// Wait only after both pipes are drained; Wait closes them.
	waitCh := make(chan error, 1)
	go func() {
		drains.Wait()
		waitCh <- cmd.Wait()
	}()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-waitCh:
	case <-time.After(time.Duration(job.TimeoutSecs) * time.Second):
		timedOut = true
		_ = cmd.Process.Kill()
		waitErr = <-waitCh
	}

	m.mu.Lock()
	wasKilled := m.killed[job.ID]
	delete(m.killed, job.ID)
	delete(m.procs, job.ID)

	switch {
	case timedOut:
		job.MarkTimedOut()
	case wasKilled:
		job.MarkKilled()
	case waitErr == nil:
		job.MarkExited(0)
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			job.MarkExited(exitErr.ExitCode())
		} else {
			job.MarkFailed(fmt.Errorf("wait error: %w", waitErr))
		}
	}
	snapshot := job.Clone()
	m.mu.Unlock()

	logw.Footer(snapshot)
	if err := logw.Close(); err != nil {
		m.logger.Warn("Failed to close job log", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
	}

	m.finalize(snapshot, nil)
}

// drain copies one output stream to the log, line by line.
func (m *Manager) drain(wg *sync.WaitGroup, logw *LogWriter, stream string, r io.Reader) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufSize)
	for scanner.Scan() {
		logw.Line(stream, scanner.Text())
	}
}

// fail marks a job failed before its process ever ran.
func (m *Manager) fail(job *Job, err error) {
	m.mu.Lock()
	job.MarkFailed(err)
	snapshot := job.Clone()
	m.mu.Unlock()
	m.finalize(snapshot, err)
}

// finalize persists a terminal snapshot and emits the notification.
func (m *Manager) finalize(snapshot *Job, cause error) {
	if err := m.store.UpdateJob(snapshot); err != nil {
		m.logger.Error("Failed to save job final state", map[string]interface{}{
			"jobId": snapshot.ID,
			"error": err.Error(),
		})
	}

	if m.cfg.Jobs.Notifications {
		if err := appendNotification(m.cfg.WorkspaceRoot, snapshot); err != nil {
			m.logger.Warn("Failed to append notification", map[string]interface{}{
				"jobId": snapshot.ID,
				"error": err.Error(),
			})
		}
	}

	fields := map[string]interface{}{
		"jobId":        snapshot.ID,
		"status":       snapshot.Status,
		"durationSecs": int(snapshot.Duration().Seconds()),
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	m.logger.Info("Job finished", fields)
}
