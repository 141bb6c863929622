// Package paths centralizes filesystem layout for the workspace state
// directory and path canonicalization for edit targets.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirName is the per-workspace state directory.
	StateDirName = ".cme"

	// JobsSubdir holds job logs and archives under the state directory.
	JobsSubdir = "jobs"

	// ConfigFile is the workspace configuration file name.
	ConfigFile = "config.json"

	// JobsDBFile is the job registry database file name.
	JobsDBFile = "jobs.db"

	// NotificationsFile is the markdown feed of job completions.
	NotificationsFile = "notifications.md"
)

// GetStateDir returns the state directory for a workspace.
func GetStateDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, StateDirName)
}

// EnsureStateDir creates the state directory if needed and returns its path.
func EnsureStateDir(workspaceRoot string) (string, error) {
	dir := GetStateDir(workspaceRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// GetJobsDir returns the job log directory for a workspace.
func GetJobsDir(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, StateDirName, JobsSubdir)
}

// EnsureJobsDir creates the job log directory if needed and returns its path.
func EnsureJobsDir(workspaceRoot string) (string, error) {
	dir := GetJobsDir(workspaceRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// GetConfigPath returns the workspace configuration file path.
func GetConfigPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, StateDirName, ConfigFile)
}

// GetJobsDBPath returns the job registry database path.
func GetJobsDBPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, StateDirName, JobsDBFile)
}

// GetNotificationsPath returns the job notifications feed path.
func GetNotificationsPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, StateDirName, NotificationsFile)
}

// Resolve turns a possibly-relative path into an absolute path under
// the workspace root. Absolute paths are cleaned and returned as-is.
func Resolve(workspaceRoot string, path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	abs, err := filepath.Abs(filepath.Join(workspaceRoot, path))
	if err != nil {
		return "", err
	}
	return abs, nil
}

// CanonicalizePath converts an absolute path to a workspace-relative canonical path
// - Resolves symlinks to real paths
// - Makes path relative to the workspace root
// - Converts backslashes to forward slashes
// - Returns workspace-relative path with forward slashes
func CanonicalizePath(absolutePath string, workspaceRoot string) (string, error) {
	// Resolve symlinks
	resolved, err := filepath.EvalSymlinks(absolutePath)
	if err != nil {
		// If the file doesn't exist yet, use the path as-is
		if os.IsNotExist(err) {
			resolved = absolutePath
		} else {
			return "", err
		}
	}

	rootResolved, err := filepath.EvalSymlinks(workspaceRoot)
	if err != nil {
		if os.IsNotExist(err) {
			rootResolved = workspaceRoot
		} else {
			return "", err
		}
	}

	relativePath, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}

	// Convert to forward slashes (platform independent)
	return filepath.ToSlash(relativePath), nil
}

// IsWithinWorkspace checks if a path is within the workspace root.
func IsWithinWorkspace(path string, workspaceRoot string) bool {
	canonical, err := CanonicalizePath(path, workspaceRoot)
	if err != nil {
		return false
	}

	// Path is outside the workspace if it starts with ..
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// WriteFileAtomic replaces path via a temp file in the same directory
// and a rename, so readers never observe partial content and a crash
// mid-write leaves the original file intact.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cme-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode.Perm()); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	success = true
	return nil
}
