package jobs

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"cme/internal/paths"
)

// sweepInterval throttles the lazy retention sweep that runs on
// submit.
const sweepInterval = time.Minute

// sweep evicts terminal jobs past the retention TTL, caps the number
// of terminal records, and prunes stale archives. It runs at most
// once per sweepInterval.
func (m *Manager) sweep() {
	m.mu.Lock()
	if time.Since(m.lastSweep) < sweepInterval {
		m.mu.Unlock()
		return
	}
	m.lastSweep = time.Now()
	m.mu.Unlock()

	ttl := time.Duration(m.cfg.Jobs.RetentionHours) * time.Hour
	expired, err := m.store.TerminalBefore(time.Now().UTC().Add(-ttl))
	if err != nil {
		m.logger.Warn("Retention sweep failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	for _, job := range expired {
		m.evict(job)
	}

	count, err := m.store.TerminalCount()
	if err != nil {
		m.logger.Warn("Retention sweep failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if over := count - m.cfg.Jobs.MaxCompleted; over > 0 {
		oldest, err := m.store.OldestTerminal(over)
		if err != nil {
			m.logger.Warn("Retention sweep failed", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		for _, job := range oldest {
			m.evict(job)
		}
	}

	m.pruneArchives()
}

// evict removes one terminal job from the store and registry,
// archiving its log first when archival is enabled.
func (m *Manager) evict(job *Job) {
	if job.LogPath != "" {
		if m.cfg.Jobs.ArchiveLogs {
			if err := archiveLog(job.LogPath); err != nil && !os.IsNotExist(err) {
				m.logger.Debug("Log archival failed", map[string]interface{}{
					"jobId": job.ID,
					"error": err.Error(),
				})
			}
		}
		_ = os.Remove(job.LogPath)
	}

	if err := m.store.DeleteJob(job.ID); err != nil {
		m.logger.Warn("Failed to evict job record", map[string]interface{}{
			"jobId": job.ID,
			"error": err.Error(),
		})
		return
	}

	m.mu.Lock()
	delete(m.jobs, job.ID)
	m.mu.Unlock()

	m.logger.Debug("Evicted job", map[string]interface{}{
		"jobId": job.ID,
	})
}

// archiveLog compresses a log file to <path>.zst.
func archiveLog(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(path + ".zst")
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(dst)
	if err != nil {
		_ = dst.Close()
		return err
	}
	if _, err := io.Copy(enc, src); err != nil {
		_ = enc.Close()
		_ = dst.Close()
		_ = os.Remove(path + ".zst")
		return err
	}
	if err := enc.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

// pruneArchives removes compressed logs older than the archive
// retention window.
func (m *Manager) pruneArchives() {
	if !m.cfg.Jobs.ArchiveLogs || m.cfg.Jobs.ArchiveRetentionDays <= 0 {
		return
	}

	dir := paths.GetJobsDir(m.cfg.WorkspaceRoot)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-time.Duration(m.cfg.Jobs.ArchiveRetentionDays) * 24 * time.Hour)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log.zst") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
}
