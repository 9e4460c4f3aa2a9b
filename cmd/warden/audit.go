package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"veritas-hq/warden/pkg/audit"
	"veritas-hq/warden/pkg/audit/storage"
	"veritas-hq/warden/pkg/cli"
	"veritas-hq/warden/pkg/config"
)

var auditFlags struct {
	db     string
	output string
	format string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect the durable audit mirror",
	Long: `Inspect the SQLite audit mirror of a gateway that is not running.

The gateway mirrors every chain entry to SQLite. These commands load the
mirrored chain and re-run the same integrity checks the live /v1/audit
endpoints perform: recomputed hashes, chain links, sequence numbers, and
HMAC signatures under the configured signing secret.`,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the mirrored audit chain",
	Long: `Verify the mirrored audit chain end to end.

Examples:
  # Verify using the mirror path and secret from the config file
  warden audit verify

  # Verify a copied-out mirror database
  warden audit verify --db /backups/audit.db --format json`,
	RunE: verifyMirror,
}

var auditExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the mirrored audit chain as a JSON bundle",
	Long: `Export the mirrored audit chain as a self-describing JSON bundle:
the entries plus the integrity report they were verified under.

Examples:
  # Export to stdout
  warden audit export

  # Export to a file for an external reviewer
  warden audit export --output audit-bundle.json`,
	RunE: exportMirror,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditExportCmd)

	auditCmd.PersistentFlags().StringVar(&auditFlags.db, "db", "", "audit mirror database path (overrides config)")
	auditVerifyCmd.Flags().StringVar(&auditFlags.format, "format", "text", "output format: text, json")
	auditExportCmd.Flags().StringVarP(&auditFlags.output, "output", "o", "", "output file (default stdout)")
}

func loadMirroredChain() (*config.Config, []*audit.Entry, error) {
	cfg, err := config.LoadWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, nil, cli.NewConfigError("config", err.Error())
	}

	dbPath := auditFlags.db
	if dbPath == "" {
		dbPath = cfg.Audit.Mirror.Path
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil, fmt.Errorf("audit mirror %s: %w", dbPath, err)
	}

	storeCfg := storage.DefaultSQLiteConfig()
	storeCfg.Path = dbPath
	store, err := storage.NewSQLiteStore(storeCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit mirror: %w", err)
	}
	defer store.Close()

	entries, err := store.Load(context.Background())
	if err != nil {
		return nil, nil, fmt.Errorf("load mirrored entries: %w", err)
	}
	return cfg, entries, nil
}

func verifyMirror(cmd *cobra.Command, args []string) error {
	cfg, entries, err := loadMirroredChain()
	if err != nil {
		return err
	}

	report := audit.VerifyEntries([]byte(cfg.Audit.Secret), entries, time.Now().UTC())

	out := cmd.OutOrStdout()
	if auditFlags.format == "json" {
		if err := cli.NewFormatter(cli.FormatJSON).FormatTo(out, report); err != nil {
			return err
		}
	} else if report.Valid {
		fmt.Fprintf(out, "✓ Chain valid (%d entries)\n", report.Entries)
	} else {
		fmt.Fprintf(out, "✗ Chain invalid (%d entries, %d issues)\n", report.Entries, len(report.Issues))
		for _, issue := range report.Issues {
			fmt.Fprintf(out, "    [%s] seq %d: %s\n", issue.Kind, issue.Sequence, issue.Message)
		}
	}

	if !report.Valid {
		return fmt.Errorf("audit chain failed verification with %d issues", len(report.Issues))
	}
	return nil
}

func exportMirror(cmd *cobra.Command, args []string) error {
	cfg, entries, err := loadMirroredChain()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	report := audit.VerifyEntries([]byte(cfg.Audit.Secret), entries, now)
	bundle := &audit.ExportBundle{
		Metadata: audit.ExportMetadata{
			GeneratedAt:       now,
			TotalEntries:      len(entries),
			IntegrityVerified: report.Valid,
		},
		Integrity: report,
		Entries:   entries,
	}

	out := cmd.OutOrStdout()
	if auditFlags.output != "" {
		f, err := os.Create(auditFlags.output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	return bundle.WriteJSON(out, true)
}
