package jobs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"cme/internal/paths"
)

// appendNotification adds a markdown block for a finished job to the
// workspace notifications feed. The feed is append-only so an agent
// can poll one file for completions.
func appendNotification(workspaceRoot string, job *Job) error {
	if _, err := paths.EnsureStateDir(workspaceRoot); err != nil {
		return err
	}
	path := paths.GetNotificationsPath(workspaceRoot)

	finished := time.Now().UTC()
	if job.FinishedAt != nil {
		finished = *job.FinishedAt
	}

	var block strings.Builder
	fmt.Fprintf(&block, "\n## [%s] %s - %s\n\n", notificationLabel(job), job.ID, formatLogTime(finished))
	fmt.Fprintf(&block, "- **Command:** `%s`\n", job.Command)
	if job.Dir != "" {
		fmt.Fprintf(&block, "- **Dir:** `%s`\n", job.Dir)
	}
	fmt.Fprintf(&block, "- **Duration:** %d s\n", int(job.Duration().Seconds()))
	if job.LogPath != "" {
		fmt.Fprintf(&block, "- **Log:** `%s`\n", job.LogPath)
	}
	block.WriteString("\n---\n")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(block.String()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// notificationLabel renders the headline status for the feed.
func notificationLabel(job *Job) string {
	switch job.Status {
	case StatusSucceeded:
		if job.ExitCode != nil {
			return fmt.Sprintf("SUCCEEDED (exit %d)", *job.ExitCode)
		}
		return "SUCCEEDED"
	case StatusFailed:
		if job.Error != "" {
			return "FAILED: " + job.Error
		}
		return "FAILED"
	case StatusKilled:
		return "KILLED"
	case StatusTimedOut:
		return fmt.Sprintf("TIMED OUT (%ds)", job.TimeoutSecs)
	}
	return strings.ToUpper(string(job.Status))
}
