// Package mcp exposes the mutation engine over the Model Context
// Protocol: JSON-RPC 2.0 messages, one per line, on stdio. The server
// owns the editor, the patchers' parse gate, and the job manager for
// exactly one workspace.
package mcp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"cme/internal/config"
	"cme/internal/editor"
	"cme/internal/grammar"
	"cme/internal/jobs"
	"cme/internal/logging"
)

// MCPServer represents the MCP server
type MCPServer struct {
	stdin   io.Reader
	stdout  io.Writer
	scanner *bufio.Scanner
	logger  *logging.Logger
	version string

	cfg    *config.Config
	editor *editor.Editor
	parser *grammar.Parser
	jobs   *jobs.Manager

	tools map[string]ToolHandler
}

// NewMCPServer creates a server wired to one workspace. The job
// manager's worker pool starts immediately.
func NewMCPServer(version string, cfg *config.Config, logger *logging.Logger) (*MCPServer, error) {
	manager, err := jobs.NewManager(cfg, logger)
	if err != nil {
		return nil, err
	}

	server := &MCPServer{
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		logger:  logger,
		version: version,
		cfg:     cfg,
		editor:  editor.New(cfg, logger),
		parser:  grammar.NewParser(),
		jobs:    manager,
		tools:   make(map[string]ToolHandler),
	}

	// Register all tools
	server.RegisterTools()

	return server, nil
}

// Start starts the MCP server and begins processing messages
func (s *MCPServer) Start() error {
	s.logger.Info("MCP server starting", map[string]interface{}{
		"version":   s.version,
		"workspace": s.cfg.WorkspaceRoot,
		"grammars":  grammar.IsAvailable(),
	})

	// Main message loop
	for {
		msg, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				s.logger.Info("MCP server shutting down (EOF)", nil)
				return nil
			}
			s.logger.Error("Error reading message", map[string]interface{}{
				"error": err.Error(),
			})

			// Try to send error response if we can extract an ID
			if msg != nil && msg.Id != nil {
				_ = s.writeError(msg.Id, ParseError, fmt.Sprintf("Failed to parse message: %v", err))
			}
			continue
		}

		// Process the message
		response := s.handleMessage(msg)

		// Write response if one was generated (notifications don't generate responses)
		if response != nil {
			if err := s.writeMessage(response); err != nil {
				s.logger.Error("Error writing response", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

// Stop shuts down the job manager, bounded by timeout. Jobs still
// running when the bound expires are failed over on the next start.
func (s *MCPServer) Stop(timeout time.Duration) error {
	return s.jobs.Stop(timeout)
}

// SetStdin sets the input stream (for testing)
func (s *MCPServer) SetStdin(r io.Reader) {
	s.stdin = r
	s.scanner = nil // Reset scanner so it will be recreated with new reader
}

// SetStdout sets the output stream (for testing)
func (s *MCPServer) SetStdout(w io.Writer) {
	s.stdout = w
}
