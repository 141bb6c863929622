package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cme/internal/jobs"

	"github.com/spf13/cobra"
)

var (
	runCwd     string
	runTimeout int
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command>",
	Short: "Run a shell command under job supervision",
	Long: `Run a shell command under job supervision and wait for it.

The command executes via 'sh -c' with its output captured to a log file
under .cme/jobs/. A timeout terminates runaway commands; Ctrl+C forwards
a kill to the command and reports its final state. The exit code of the
command becomes the exit code of cme.

Examples:
  cme run -- make test
  cme run --timeout 60 -- "npm run build && npm test"
  cme run --cwd services/api -- go vet ./...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runCwd, "cwd", "", "Working directory for the command (default: workspace root)")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "Timeout in seconds (default from config)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}
	logger := newCLILogger(cfg)

	// The supervisor lives in this process, so the command runs in the
	// foreground from the user's point of view: submit, then wait.
	mgr, err := jobs.NewForegroundManager(cfg, logger)
	if err != nil {
		return err
	}

	command := strings.Join(args, " ")
	job, err := mgr.Submit(command, runCwd, runTimeout)
	if err != nil {
		_ = mgr.Stop(5 * time.Second)
		return err
	}

	fmt.Fprintf(os.Stderr, "job %s: %s\n", job.ID, command)

	// Forward Ctrl+C to the job instead of dying with it orphaned.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	interrupted := false
	var res *jobs.StatusResult
	for {
		res, err = mgr.Status(job.ID)
		if err != nil {
			_ = mgr.Stop(5 * time.Second)
			return err
		}
		if res.Status != jobs.StatusPending && res.Status != jobs.StatusRunning {
			break
		}

		select {
		case <-interrupt:
			if !interrupted {
				interrupted = true
				fmt.Fprintln(os.Stderr, "interrupt: killing job")
				if _, killErr := mgr.Kill(job.ID); killErr != nil {
					logger.Warn("Failed to kill job", map[string]interface{}{
						"jobId": job.ID,
						"error": killErr.Error(),
					})
				}
			}
		case <-time.After(200 * time.Millisecond):
		}
	}

	for _, line := range res.LogTail {
		fmt.Println(line)
	}
	fmt.Fprintf(os.Stderr, "job %s %s after %ds\n", res.JobID, res.Status, res.DurationSecs)
	if res.Error != "" {
		fmt.Fprintf(os.Stderr, "error: %s\n", res.Error)
	}

	if stopErr := mgr.Stop(10 * time.Second); stopErr != nil {
		logger.Warn("Job manager shutdown error", map[string]interface{}{
			"error": stopErr.Error(),
		})
	}

	if res.Status != jobs.StatusSucceeded {
		if res.ExitCode != nil && *res.ExitCode > 0 {
			os.Exit(*res.ExitCode)
		}
		os.Exit(1)
	}
	return nil
}
