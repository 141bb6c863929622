package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cme/internal/jobs"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// FormatResponse formats a response according to the specified format
func FormatResponse(resp interface{}, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// formatJSON formats the response as JSON
func formatJSON(resp interface{}) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// formatHuman formats the response in human-readable format
func formatHuman(resp interface{}) (string, error) {
	switch v := resp.(type) {
	case *jobs.ListResponse:
		return formatJobsListHuman(v)
	case *jobs.StatusResult:
		return formatJobStatusHuman(v)
	case *JobKillResponseCLI:
		return formatJobKillHuman(v)
	default:
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	}
}

func formatJobsListHuman(resp *jobs.ListResponse) (string, error) {
	var b strings.Builder

	if len(resp.Jobs) == 0 {
		b.WriteString("No jobs recorded.\n")
		return b.String(), nil
	}

	b.WriteString(fmt.Sprintf("%-36s  %-10s  %-5s  %-20s  %s\n",
		"ID", "STATUS", "EXIT", "CREATED", "COMMAND"))
	for _, j := range resp.Jobs {
		exit := "-"
		if j.ExitCode != nil {
			exit = fmt.Sprintf("%d", *j.ExitCode)
		}
		b.WriteString(fmt.Sprintf("%-36s  %-10s  %-5s  %-20s  %s\n",
			j.ID,
			j.Status,
			exit,
			j.CreatedAt.UTC().Format(time.RFC3339),
			truncateString(j.Command, 60)))
	}
	b.WriteString(fmt.Sprintf("\n%d of %d jobs shown\n", len(resp.Jobs), resp.TotalCount))

	return b.String(), nil
}

func formatJobStatusHuman(res *jobs.StatusResult) (string, error) {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Job:      %s\n", res.JobID))
	b.WriteString(fmt.Sprintf("Status:   %s\n", res.Status))
	if res.PID != 0 {
		b.WriteString(fmt.Sprintf("PID:      %d\n", res.PID))
	}
	if res.ExitCode != nil {
		b.WriteString(fmt.Sprintf("Exit:     %d\n", *res.ExitCode))
	}
	b.WriteString(fmt.Sprintf("Duration: %ds\n", res.DurationSecs))
	if res.Error != "" {
		b.WriteString(fmt.Sprintf("Error:    %s\n", res.Error))
	}
	b.WriteString(fmt.Sprintf("Log:      %s\n", res.LogPath))

	if len(res.LogTail) > 0 {
		b.WriteString("\nLog tail:\n")
		for _, line := range res.LogTail {
			b.WriteString("  " + line + "\n")
		}
	}

	return b.String(), nil
}

func formatJobKillHuman(resp *JobKillResponseCLI) (string, error) {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Job:    %s\n", resp.JobId))
	b.WriteString(fmt.Sprintf("Status: %s\n", resp.Status))
	b.WriteString(resp.Message + "\n")
	return b.String(), nil
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return strings.TrimSpace(s[:maxLen]) + "..."
}
