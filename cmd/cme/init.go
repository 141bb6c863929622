package main

import (
	"fmt"
	"os"
	"path/filepath"

	"cme/internal/config"
	cmeerrors "cme/internal/errors"
	"cme/internal/logging"
	"cme/internal/paths"

	"github.com/spf13/cobra"
)

var (
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize cme configuration",
	Long:  "Creates a .cme/ directory with default configuration in the workspace root",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Force reinitialization (removes existing .cme directory)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	logger := logging.NewLogger(logging.Config{
		Format: "human",
		Level:  "info",
	})

	root, err := filepath.Abs(workspaceFlag)
	if err != nil {
		return cmeerrors.New(cmeerrors.InternalError, "Failed to resolve workspace root", err)
	}

	// Check if .cme already exists
	stateDir := paths.GetStateDir(root)
	if _, statErr := os.Stat(stateDir); statErr == nil {
		if !initForce {
			// Idempotent behavior: already initialized is success (CI-friendly)
			fmt.Println("cme already initialized.")
			fmt.Printf("Configuration at: %s\n", paths.GetConfigPath(root))
			fmt.Println("\nRun 'cme init --force' to reinitialize.")
			return nil
		}
		// Remove existing directory
		if removeErr := os.RemoveAll(stateDir); removeErr != nil {
			return cmeerrors.New(cmeerrors.InternalError, "Failed to remove existing .cme directory", removeErr)
		}
		logger.Info("Removed existing .cme directory", nil)
	}

	// Create .cme directory
	if mkdirErr := os.MkdirAll(stateDir, 0755); mkdirErr != nil {
		return cmeerrors.New(cmeerrors.InternalError, "Failed to create .cme directory", mkdirErr)
	}

	// Create default config; keep the stored root relative so the
	// workspace can be moved without editing config.json
	cfg := config.DefaultConfig()
	cfg.WorkspaceRoot = "."

	if saveErr := cfg.Save(root); saveErr != nil {
		return cmeerrors.New(cmeerrors.InternalError, "Failed to write config file", saveErr)
	}

	configPath := paths.GetConfigPath(root)
	logger.Info("cme initialized successfully", map[string]interface{}{
		"config_path": configPath,
	})

	fmt.Println("cme initialized successfully!")
	fmt.Printf("Configuration written to: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Run 'cme edit <file> --target <name> --code <snippet>' to make a structural edit")
	fmt.Println("  2. Run 'cme mcp' to serve the engine over MCP")

	return nil
}
