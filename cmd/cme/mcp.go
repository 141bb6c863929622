package main

import (
	"os"
	"time"

	"cme/internal/logging"
	"cme/internal/mcp"
	"cme/internal/version"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol (MCP) server.

The server communicates over stdio using JSON-RPC 2.0 and exposes the
mutation engine to MCP clients:
  - applyEdits: structural edits on named declarations
  - applyPatch: unified diffs across workspace files
  - patchFile:  dot-path / markdown-section / env-file patches
  - runAsync:   supervised background shell commands
  - checkJob, killJob, listJobs: job control

This command is typically invoked by MCP clients and not directly by
users. Logs go to stderr; stdout carries the protocol.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}

	// stdout is the wire; logs must stay on stderr
	logger := logging.NewLogger(logging.Config{
		Format: logging.JSONFormat,
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Output: os.Stderr,
	})

	server, err := mcp.NewMCPServer(version.Version, cfg, logger)
	if err != nil {
		logger.Error("Failed to start MCP server", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}

	if err := server.Start(); err != nil {
		logger.Error("MCP server error", map[string]interface{}{
			"error": err.Error(),
		})
		_ = server.Stop(5 * time.Second)
		return err
	}

	return server.Stop(30 * time.Second)
}
