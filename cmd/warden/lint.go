package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"veritas-hq/warden/pkg/cli"
	"veritas-hq/warden/pkg/policy/manager"
)

var lintFlags struct {
	file   string
	dir    string
	format string
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate policy files",
	Long: `Validate policy files for syntax and semantic errors.

The lint command parses policy documents and performs the same
validation the gateway applies at load time:
  - YAML syntax validation
  - Policy structure validation (id, version, effect)
  - Scope and condition validation

Examples:
  # Lint a single file
  warden lint --file policies.yaml

  # Lint a directory
  warden lint --dir policies/

  # JSON output for CI
  warden lint --dir policies/ --format json`,
	RunE: lintPolicies,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.file, "file", "f", "", "policy file to validate")
	lintCmd.Flags().StringVarP(&lintFlags.dir, "dir", "d", "", "directory of policy files")
	lintCmd.Flags().StringVar(&lintFlags.format, "format", "text", "output format: text, json")
}

// LintResult is the validation result for a single policy file.
type LintResult struct {
	File        string   `json:"file"`
	Valid       bool     `json:"valid"`
	PolicyCount int      `json:"policy_count"`
	Errors      []string `json:"errors,omitempty"`
}

func lintPolicies(cmd *cobra.Command, args []string) error {
	if lintFlags.file == "" && lintFlags.dir == "" {
		return fmt.Errorf("either --file or --dir must be specified")
	}

	files, err := collectPolicyFiles(lintFlags.file, lintFlags.dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no policy files found")
	}

	loader := manager.NewLoader(manager.LoaderConfig{})
	results := make([]LintResult, 0, len(files))
	failed := 0
	for _, file := range files {
		result := lintPolicyFile(loader, file)
		if !result.Valid {
			failed++
		}
		results = append(results, result)
	}

	if lintFlags.format == "json" {
		formatter := cli.NewFormatter(cli.FormatJSON)
		if err := formatter.FormatTo(cmd.OutOrStdout(), results); err != nil {
			return err
		}
	} else {
		out := cmd.OutOrStdout()
		for _, result := range results {
			if result.Valid {
				fmt.Fprintf(out, "✓ %s (%d policies)\n", result.File, result.PolicyCount)
				continue
			}
			fmt.Fprintf(out, "✗ %s\n", result.File)
			for _, msg := range result.Errors {
				fmt.Fprintf(out, "    %s\n", msg)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed validation", failed, len(results))
	}
	return nil
}

func collectPolicyFiles(file, dir string) ([]string, error) {
	var files []string
	if file != "" {
		files = append(files, file)
	}
	if dir != "" {
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return nil, fmt.Errorf("failed to list policy files: %w", err)
			}
			files = append(files, matches...)
		}
	}
	return files, nil
}

func lintPolicyFile(loader *manager.Loader, path string) LintResult {
	result := LintResult{File: path}

	if _, err := os.Stat(path); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	policies, err := loader.LoadFile(path)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	result.Valid = true
	result.PolicyCount = len(policies)
	return result
}
