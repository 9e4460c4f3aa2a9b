package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"veritas-hq/warden/pkg/approval"
	"veritas-hq/warden/pkg/registry"
)

const schema = `
CREATE TABLE IF NOT EXISTS decision_records (
	id               TEXT PRIMARY KEY,
	approval_id      TEXT NOT NULL,
	outcome          TEXT NOT NULL,
	decided_at       TIMESTAMP NOT NULL,
	decided_by       TEXT NOT NULL,
	decided_by_role  TEXT,
	rationale        TEXT,
	risk_level       TEXT NOT NULL,
	workflow_id      TEXT NOT NULL,
	context_snapshot TEXT,
	prior_events     TEXT
);

CREATE INDEX IF NOT EXISTS idx_decisions_approval ON decision_records(approval_id);
CREATE INDEX IF NOT EXISTS idx_decisions_workflow ON decision_records(workflow_id);
CREATE INDEX IF NOT EXISTS idx_decisions_decided_at ON decision_records(decided_at);
`

// Config contains configuration for the decision-record archive.
type Config struct {
	// Path is the database file path.
	Path string

	// BusyTimeout is the wait duration when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// SQLiteArchive stores decision records in a SQLite database. It
// satisfies approval.Archive.
type SQLiteArchive struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteArchive opens the database and creates the schema.
func NewSQLiteArchive(config Config) (*SQLiteArchive, error) {
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("open decision archive: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", config.BusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create decision archive schema: %w", err)
	}

	a := &SQLiteArchive{
		db:     db,
		logger: slog.Default().With("component", "approval.archive"),
	}

	a.logger.Info("decision archive initialized", "path", config.Path)
	return a, nil
}

// Store persists one decision record. Re-storing the same record id is
// a no-op, so replays after a decision callback retry are harmless.
func (a *SQLiteArchive) Store(ctx context.Context, record *approval.DecisionRecord) error {
	var snapshot, prior interface{}

	if len(record.ContextSnapshot) > 0 {
		data, err := json.Marshal(record.ContextSnapshot)
		if err != nil {
			return fmt.Errorf("marshal context snapshot for record %s: %w", record.ID, err)
		}
		snapshot = string(data)
	}
	if len(record.PriorEvents) > 0 {
		data, err := json.Marshal(record.PriorEvents)
		if err != nil {
			return fmt.Errorf("marshal prior events for record %s: %w", record.ID, err)
		}
		prior = string(data)
	}

	query := `
		INSERT OR IGNORE INTO decision_records (
			id, approval_id, outcome, decided_at,
			decided_by, decided_by_role, rationale,
			risk_level, workflow_id, context_snapshot, prior_events
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := a.db.ExecContext(ctx, query,
		record.ID, record.ApprovalID, string(record.Outcome), record.DecidedAt.UTC(),
		record.DecidedBy, nullable(record.DecidedByRole), nullable(record.Rationale),
		string(record.RiskLevel), record.WorkflowID, snapshot, prior,
	)
	if err != nil {
		return fmt.Errorf("insert decision record %s: %w", record.ID, err)
	}

	return nil
}

// Get returns the archived record for an approval, or nil when absent.
func (a *SQLiteArchive) Get(ctx context.Context, approvalID string) (*approval.DecisionRecord, error) {
	query := `
		SELECT id, approval_id, outcome, decided_at,
		       decided_by, decided_by_role, rationale,
		       risk_level, workflow_id, context_snapshot, prior_events
		FROM decision_records
		WHERE approval_id = ?
		ORDER BY decided_at DESC
		LIMIT 1
	`

	row := a.db.QueryRowContext(ctx, query, approvalID)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get decision record for approval %s: %w", approvalID, err)
	}
	return record, nil
}

// ListByWorkflow returns archived records for a workflow, newest first.
func (a *SQLiteArchive) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*approval.DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, approval_id, outcome, decided_at,
		       decided_by, decided_by_role, rationale,
		       risk_level, workflow_id, context_snapshot, prior_events
		FROM decision_records
		WHERE workflow_id = ?
		ORDER BY decided_at DESC
		LIMIT ?
	`

	rows, err := a.db.QueryContext(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list decision records for workflow %s: %w", workflowID, err)
	}
	defer rows.Close()

	var records []*approval.DecisionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Count returns the number of archived records.
func (a *SQLiteArchive) Count(ctx context.Context) (int, error) {
	var count int
	err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decision_records").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count decision records: %w", err)
	}
	return count, nil
}

// Close closes the database.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*approval.DecisionRecord, error) {
	var record approval.DecisionRecord
	var outcome, riskLevel string
	var role, rationale, snapshot, prior sql.NullString

	if err := row.Scan(
		&record.ID, &record.ApprovalID, &outcome, &record.DecidedAt,
		&record.DecidedBy, &role, &rationale,
		&riskLevel, &record.WorkflowID, &snapshot, &prior,
	); err != nil {
		return nil, err
	}

	record.Outcome = approval.Outcome(outcome)
	record.RiskLevel = registry.RiskLevel(riskLevel)
	record.DecidedByRole = role.String
	record.Rationale = rationale.String

	if snapshot.Valid && snapshot.String != "" {
		if err := json.Unmarshal([]byte(snapshot.String), &record.ContextSnapshot); err != nil {
			return nil, fmt.Errorf("unmarshal context snapshot: %w", err)
		}
	}
	if prior.Valid && prior.String != "" {
		if err := json.Unmarshal([]byte(prior.String), &record.PriorEvents); err != nil {
			return nil, fmt.Errorf("unmarshal prior events: %w", err)
		}
	}

	return &record, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
