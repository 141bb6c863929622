package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"cme/internal/editor"
	cmeerrors "cme/internal/errors"

	"github.com/spf13/cobra"
)

var (
	editTarget   string
	editAction   string
	editCode     string
	editCodeFile string
	editLanguage string
	editsJSON    string
	editsFile    string
)

var editCmd = &cobra.Command{
	Use:   "edit <file>",
	Short: "Apply structural edits to a source file",
	Long: `Apply structural edits to named declarations in a source file.

Targets name a declaration ("function add", "class Indexer.flush"); the
edit replaces, deletes, or inserts around it. The modified file must
still parse before anything is written back, so a bad snippet can never
corrupt the file.

Examples:
  cme edit src/auth.go --target "function Login" --code-file new_login.go
  cme edit src/util.py --target "function helper" --action delete
  cme edit src/api.ts --edits-json '[{"target":"function fetch","action":"replace","code":"..."}]'`,
	Args: cobra.ExactArgs(1),
	RunE: runEdit,
}

func init() {
	editCmd.Flags().StringVar(&editTarget, "target", "", "Declaration to edit, e.g. 'function add'")
	editCmd.Flags().StringVar(&editAction, "action", "replace", "Edit action: replace, insert_before, insert_after, delete")
	editCmd.Flags().StringVar(&editCode, "code", "", "Replacement code")
	editCmd.Flags().StringVar(&editCodeFile, "code-file", "", "Read replacement code from a file ('-' for stdin)")
	editCmd.Flags().StringVar(&editLanguage, "language", "", "Override language detection (go, python, typescript, ...)")
	editCmd.Flags().StringVar(&editsJSON, "edits-json", "", "Full edit sequence as a JSON array (overrides the single-edit flags)")
	editCmd.Flags().StringVar(&editsFile, "edits-file", "", "Read the edit sequence from a JSON file")
	rootCmd.AddCommand(editCmd)
}

func runEdit(cmd *cobra.Command, args []string) error {
	cfg, err := loadWorkspaceConfig()
	if err != nil {
		return err
	}
	logger := newCLILogger(cfg)

	edits, err := collectEdits()
	if err != nil {
		return err
	}

	ed := editor.New(cfg, logger)
	result, err := ed.Apply(context.Background(), args[0], editLanguage, edits)
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))

	return nil
}

// collectEdits assembles the edit sequence from --edits-file,
// --edits-json, or the single-edit flags, in that order of precedence.
func collectEdits() ([]editor.Edit, error) {
	raw := []byte(editsJSON)
	if editsFile != "" {
		data, err := os.ReadFile(editsFile)
		if err != nil {
			return nil, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("cannot read edits file: %s", editsFile), err)
		}
		raw = data
	}
	if len(raw) > 0 {
		var edits []editor.Edit
		if err := json.Unmarshal(raw, &edits); err != nil {
			return nil, cmeerrors.New(cmeerrors.InvalidArgument, "invalid edits JSON", err)
		}
		return edits, nil
	}

	if editTarget == "" {
		return nil, cmeerrors.New(cmeerrors.InvalidArgument, "--target is required (or pass --edits-json)", nil)
	}

	code := editCode
	if editCodeFile != "" {
		data, err := readCodeFile(editCodeFile)
		if err != nil {
			return nil, err
		}
		code = string(data)
	}

	return []editor.Edit{{
		Target: editTarget,
		Action: editor.Action(editAction),
		Code:   code,
	}}, nil
}

func readCodeFile(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, cmeerrors.New(cmeerrors.FileIOError, "cannot read code from stdin", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cmeerrors.New(cmeerrors.FileIOError, fmt.Sprintf("cannot read code file: %s", path), err)
	}
	return data, nil
}
