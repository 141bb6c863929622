package jobs

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"cme/internal/logging"
	"cme/internal/paths"
)

// Store persists job records in a SQLite database under the workspace
// state directory, so status survives a server restart.
type Store struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

// OpenStore opens or creates the jobs database for a workspace.
func OpenStore(workspaceRoot string, logger *logging.Logger) (*Store, error) {
	if _, err := paths.EnsureStateDir(workspaceRoot); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	dbPath := paths.GetJobsDBPath(workspaceRoot)
	dbExists := fileExists(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open jobs database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	store := &Store{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}

	if !dbExists {
		logger.Info("Creating jobs database", map[string]interface{}{
			"path": dbPath,
		})
	}
	if err := store.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize jobs schema: %w", err)
	}

	return store, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// initializeSchema creates the jobs tables.
func (s *Store) initializeSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			command TEXT NOT NULL,
			dir TEXT,
			pid INTEGER DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			exit_code INTEGER,
			timeout_secs INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT,
			error TEXT,
			log_path TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
		CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at DESC);

		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);
		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// CreateJob inserts a new job into the database.
func (s *Store) CreateJob(job *Job) error {
	query := `
		INSERT INTO jobs (id, command, dir, pid, status, exit_code, timeout_secs, created_at, started_at, finished_at, error, log_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.Exec(query,
		job.ID,
		job.Command,
		nullString(job.Dir),
		job.PID,
		job.Status,
		nullInt(job.ExitCode),
		job.TimeoutSecs,
		job.CreatedAt.Format(time.RFC3339),
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		nullString(job.Error),
		nullString(job.LogPath),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug("Created job record", map[string]interface{}{
		"jobId": job.ID,
	})

	return nil
}

// UpdateJob updates an existing job.
func (s *Store) UpdateJob(job *Job) error {
	query := `
		UPDATE jobs SET
			pid = ?,
			status = ?,
			exit_code = ?,
			started_at = ?,
			finished_at = ?,
			error = ?,
			log_path = ?
		WHERE id = ?
	`

	result, err := s.conn.Exec(query,
		job.PID,
		job.Status,
		nullInt(job.ExitCode),
		nullTime(job.StartedAt),
		nullTime(job.FinishedAt),
		nullString(job.Error),
		nullString(job.LogPath),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("job not found: %s", job.ID)
	}

	return nil
}

// GetJob retrieves a job by ID, or nil if it does not exist.
func (s *Store) GetJob(id string) (*Job, error) {
	row := s.conn.QueryRow(selectJob+" WHERE id = ?", id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}

// ListJobs retrieves jobs matching the given options, newest first.
func (s *Store) ListJobs(opts ListOptions) (*ListResponse, error) {
	var conditions []string
	var args []interface{}

	if len(opts.Status) > 0 {
		placeholders := make([]string, len(opts.Status))
		for i, status := range opts.Status {
			placeholders[i] = "?"
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM jobs %s", whereClause)
	var totalCount int
	if err := s.conn.QueryRow(countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf("%s %s ORDER BY created_at DESC LIMIT ? OFFSET ?", selectJob, whereClause)
	args = append(args, limit, opts.Offset)

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []Summary
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job.ToSummary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return &ListResponse{
		Jobs:       jobs,
		TotalCount: totalCount,
	}, nil
}

// DeleteJob removes a job record.
func (s *Store) DeleteJob(id string) error {
	if _, err := s.conn.Exec("DELETE FROM jobs WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// MarkOrphans fails any job left pending or running by a previous
// process. Their processes cannot be reattached after a restart.
func (s *Store) MarkOrphans() (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.conn.Exec(`
		UPDATE jobs SET status = ?, error = 'orphaned by restart', finished_at = ?
		WHERE status IN (?, ?)
	`, StatusFailed, now, StatusPending, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to mark orphaned jobs: %w", err)
	}
	return result.RowsAffected()
}

// TerminalBefore returns terminal jobs that finished before the
// cutoff, oldest first.
func (s *Store) TerminalBefore(cutoff time.Time) ([]*Job, error) {
	query := selectJob + `
		WHERE status IN (?, ?, ?, ?) AND finished_at < ?
		ORDER BY finished_at ASC
	`
	return s.queryJobs(query,
		StatusSucceeded, StatusFailed, StatusKilled, StatusTimedOut,
		cutoff.UTC().Format(time.RFC3339))
}

// TerminalCount returns how many terminal job records exist.
func (s *Store) TerminalCount() (int, error) {
	var count int
	err := s.conn.QueryRow(
		"SELECT COUNT(*) FROM jobs WHERE status IN (?, ?, ?, ?)",
		StatusSucceeded, StatusFailed, StatusKilled, StatusTimedOut,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count terminal jobs: %w", err)
	}
	return count, nil
}

// OldestTerminal returns the n oldest-finished terminal jobs.
func (s *Store) OldestTerminal(n int) ([]*Job, error) {
	if n <= 0 {
		return nil, nil
	}
	query := selectJob + `
		WHERE status IN (?, ?, ?, ?)
		ORDER BY finished_at ASC
		LIMIT ?
	`
	return s.queryJobs(query,
		StatusSucceeded, StatusFailed, StatusKilled, StatusTimedOut, n)
}

func (s *Store) queryJobs(query string, args ...interface{}) ([]*Job, error) {
	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

const selectJob = `
	SELECT id, command, dir, pid, status, exit_code, timeout_secs, created_at, started_at, finished_at, error, log_path
	FROM jobs
`

// rowScanner covers both sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var dir, startedAt, finishedAt, errMsg, logPath sql.NullString
	var exitCode sql.NullInt64
	var status, createdAt string

	err := row.Scan(
		&job.ID,
		&job.Command,
		&dir,
		&job.PID,
		&status,
		&exitCode,
		&job.TimeoutSecs,
		&createdAt,
		&startedAt,
		&finishedAt,
		&errMsg,
		&logPath,
	)
	if err != nil {
		return nil, err
	}

	job.Dir = dir.String
	job.Status = Status(status)
	job.Error = errMsg.String
	job.LogPath = logPath.String

	if exitCode.Valid {
		code := int(exitCode.Int64)
		job.ExitCode = &code
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		job.CreatedAt = t
	}
	if startedAt.Valid {
		if t, err := time.Parse(time.RFC3339, startedAt.String); err == nil {
			job.StartedAt = &t
		}
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339, finishedAt.String); err == nil {
			job.FinishedAt = &t
		}
	}

	return &job, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
