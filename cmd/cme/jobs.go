package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"cme/internal/jobs"
)

var (
	jobsFormat string
	jobsLimit  int
	jobsOffset int
	jobsStatus string
	jobsTail   int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect background jobs",
	Long: `List, check status, and kill background jobs.

Jobs are shell commands started by runAsync (over MCP) or 'cme run'.
These subcommands read the job records in .cme/jobs/ directly, so they
work alongside a live MCP server without disturbing it.

Examples:
  cme jobs list
  cme jobs status <job-id>
  cme jobs kill <job-id>`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	Long: `List recent jobs with optional filtering.

Examples:
  cme jobs list
  cme jobs list --status=running
  cme jobs list --limit=50`,
	Run: runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Get status of a specific job",
	Long: `Get the recorded state and log tail of a job.

Examples:
  cme jobs status 4f6b1c2e-...`,
	Args: cobra.ExactArgs(1),
	Run:  runJobsStatus,
}

var jobsKillCmd = &cobra.Command{
	Use:   "kill <job-id>",
	Short: "Kill a running job",
	Long: `Send SIGTERM to a running job's process.

The supervisor that owns the job records the final state once the
process exits; check 'cme jobs status' afterwards.

Examples:
  cme jobs kill 4f6b1c2e-...`,
	Args: cobra.ExactArgs(1),
	Run:  runJobsKill,
}

func init() {
	jobsListCmd.Flags().StringVar(&jobsFormat, "format", "json", "Output format (json, human)")
	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Maximum jobs to return")
	jobsListCmd.Flags().IntVar(&jobsOffset, "offset", 0, "Skip this many jobs")
	jobsListCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status (pending, running, succeeded, failed, killed, timed_out)")

	jobsStatusCmd.Flags().StringVar(&jobsFormat, "format", "json", "Output format (json, human)")
	jobsStatusCmd.Flags().IntVar(&jobsTail, "tail", 20, "Log lines to include")

	jobsKillCmd.Flags().StringVar(&jobsFormat, "format", "json", "Output format (json, human)")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsKillCmd)
	rootCmd.AddCommand(jobsCmd)
}

// openJobStore opens the job records read-side. The CLI never goes
// through a Manager here: a Manager would fail over pending/running
// records that a live server still owns.
func openJobStore() *jobs.Store {
	cfg, err := loadWorkspaceConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	logger := newCLILogger(cfg)

	store, err := jobs.OpenStore(cfg.WorkspaceRoot, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening job store: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runJobsList(cmd *cobra.Command, args []string) {
	store := openJobStore()
	defer func() { _ = store.Close() }()

	opts := jobs.ListOptions{
		Limit:  jobsLimit,
		Offset: jobsOffset,
	}
	if jobsStatus != "" {
		opts.Status = []jobs.Status{jobs.Status(jobsStatus)}
	}

	response, err := store.ListJobs(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing jobs: %v\n", err)
		os.Exit(1)
	}

	output, err := FormatResponse(response, OutputFormat(jobsFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}

func runJobsStatus(cmd *cobra.Command, args []string) {
	jobId := args[0]
	store := openJobStore()
	defer func() { _ = store.Close() }()

	job, err := store.GetJob(jobId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting job status: %v\n", err)
		os.Exit(1)
	}
	if job == nil {
		fmt.Fprintf(os.Stderr, "Job not found: %s\n", jobId)
		os.Exit(1)
	}

	res := &jobs.StatusResult{
		JobID:        job.ID,
		Status:       job.Status,
		PID:          job.PID,
		ExitCode:     job.ExitCode,
		DurationSecs: int(job.Duration().Seconds()),
		Error:        job.Error,
		LogPath:      job.LogPath,
		LogTail:      jobs.Tail(job.LogPath, jobsTail),
	}

	output, err := FormatResponse(res, OutputFormat(jobsFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}

// JobKillResponseCLI contains kill result for CLI output
type JobKillResponseCLI struct {
	JobId   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func runJobsKill(cmd *cobra.Command, args []string) {
	jobId := args[0]
	store := openJobStore()
	defer func() { _ = store.Close() }()

	job, err := store.GetJob(jobId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting job: %v\n", err)
		os.Exit(1)
	}
	if job == nil {
		fmt.Fprintf(os.Stderr, "Job not found: %s\n", jobId)
		os.Exit(1)
	}

	resp := &JobKillResponseCLI{JobId: job.ID, Status: string(job.Status)}
	switch {
	case job.IsTerminal():
		resp.Message = fmt.Sprintf("Job already finished (%s); nothing to kill", job.Status)
	case job.PID == 0:
		// Queued in another process; only its supervisor can dequeue it.
		resp.Message = "Job is queued and has no process yet; kill it via its owning server (killJob)"
	default:
		if sigErr := syscall.Kill(job.PID, syscall.SIGTERM); sigErr != nil {
			fmt.Fprintf(os.Stderr, "Error signaling process %d: %v\n", job.PID, sigErr)
			os.Exit(1)
		}
		resp.Message = fmt.Sprintf("Sent SIGTERM to process %d; the owning supervisor records the final state", job.PID)
	}

	output, err := FormatResponse(resp, OutputFormat(jobsFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting output: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}
