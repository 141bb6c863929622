package main

import (
	"path/filepath"

	"cme/internal/config"
	"cme/internal/logging"
	"cme/internal/version"

	"github.com/spf13/cobra"
)

var (
	// workspaceFlag is the CLI --workspace flag value
	workspaceFlag string
	// logLevelFlag is the CLI --log-level flag value
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "cme",
	Short: "cme - Code Mutation Engine",
	Long: `cme is a safe code-mutation engine for agent toolchains: structural
edits validated by a parse gate before anything reaches disk, patchers for
config/markdown/env files and unified diffs, and a supervised runner for
background shell commands. It is usually driven over MCP, with a small CLI
for direct use.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("cme version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", ".",
		"Workspace root; state lives in <workspace>/.cme")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, error (default from config)")
}

// loadWorkspaceConfig resolves the workspace flag and loads its
// configuration, with the flag overriding the configured root so every
// subcommand agrees on where state lives.
func loadWorkspaceConfig() (*config.Config, error) {
	root, err := filepath.Abs(workspaceFlag)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(root)
	if err != nil {
		return nil, err
	}
	cfg.WorkspaceRoot = root

	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newCLILogger builds the stderr logger subcommands share.
func newCLILogger(cfg *config.Config) *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})
}
