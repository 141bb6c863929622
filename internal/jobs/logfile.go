package jobs

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// LogWriter appends to a job's log file. One writer is shared by the
// stdout and stderr drain goroutines, so every append is mutex-guarded.
type LogWriter struct {
	mu sync.Mutex
	f  *os.File
}

// CreateLog creates the job's log file and writes the header block.
func CreateLog(job *Job) (*LogWriter, error) {
	f, err := os.Create(job.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", job.LogPath, err)
	}

	w := &LogWriter{f: f}
	w.meta("job=" + job.ID)
	w.meta("command=" + job.Command)
	if job.Dir != "" {
		w.meta("cwd=" + job.Dir)
	}
	w.meta("started=" + formatLogTime(job.CreatedAt))
	w.meta("---")
	return w, nil
}

// Line appends one line of process output under its stream tag.
func (w *LogWriter) Line(stream, line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.f, "[%s] %s\n", stream, line)
}

// Footer appends the terminal block once the job has finished.
func (w *LogWriter) Footer(job *Job) {
	finished := time.Now().UTC()
	if job.FinishedAt != nil {
		finished = *job.FinishedAt
	}
	w.meta("---")
	w.meta("finished=" + formatLogTime(finished))
	w.meta(fmt.Sprintf("duration=%ds", int(job.Duration().Seconds())))
	w.meta("status=" + string(job.Status))
}

func (w *LogWriter) meta(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.f, "[cme] %s\n", line)
}

// Close flushes and closes the log file.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// Tail returns the last n lines of a log file. A missing file yields
// no lines; logs are small enough that a full read on an explicit
// status poll is fine.
func Tail(path string, n int) []string {
	if n <= 0 {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(string(data), "\n")
	if last := len(lines) - 1; last >= 0 && lines[last] == "" {
		lines = lines[:last]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func formatLogTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05") + " UTC"
}
