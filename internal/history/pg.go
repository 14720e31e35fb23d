package history

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"

	"github.com/aonescu/remedy/internal/types"
)

// PostgresStore persists action and RCA history so that it survives process
// restarts and leadership handoffs. The cooldown state deliberately does
// not live here; see the cooldown package.
type PostgresStore struct {
	db *sql.DB

	// Last RCA is cached so the read path does not hit the database on
	// every request.
	mu     sync.RWMutex
	rca    types.RCAReport
	hasRCA bool
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	store.loadLastRCA()

	return store, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	-- Healing actions: append-only dispatch log
	CREATE TABLE IF NOT EXISTS healing_actions (
		id SERIAL PRIMARY KEY,
		rule TEXT NOT NULL,
		action TEXT NOT NULL,
		namespace TEXT,
		target TEXT,
		outcome TEXT NOT NULL,
		reason TEXT,
		executed_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_healing_actions_executed ON healing_actions(executed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_healing_actions_rule ON healing_actions(rule);

	-- RCA reports: append-only, latest row is the "last RCA"
	CREATE TABLE IF NOT EXISTS rca_reports (
		id SERIAL PRIMARY KEY,
		target TEXT NOT NULL,
		namespace TEXT,
		analysis TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rca_reports_created ON rca_reports(created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *PostgresStore) RecordAction(record types.ActionRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO healing_actions (rule, action, namespace, target, outcome, reason, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.Rule, record.Action, record.Namespace, record.Target,
		record.Outcome, record.Reason, record.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentActions(limit int) ([]types.ActionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT rule, action, namespace, target, outcome, reason, executed_at
		FROM healing_actions
		ORDER BY executed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.ActionRecord
	for rows.Next() {
		var r types.ActionRecord
		var reason sql.NullString
		if err := rows.Scan(&r.Rule, &r.Action, &r.Namespace, &r.Target,
			&r.Outcome, &reason, &r.ExecutedAt); err != nil {
			continue
		}
		r.Reason = reason.String
		records = append(records, r)
	}

	return records, rows.Err()
}

func (s *PostgresStore) SetRCA(report types.RCAReport) error {
	_, err := s.db.Exec(`
		INSERT INTO rca_reports (target, namespace, analysis, created_at)
		VALUES ($1, $2, $3, $4)
	`, report.Target, report.Namespace, report.Analysis, report.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record rca report: %w", err)
	}

	s.mu.Lock()
	s.rca = report
	s.hasRCA = true
	s.mu.Unlock()
	return nil
}

func (s *PostgresStore) LastRCA() (types.RCAReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rca, s.hasRCA
}

func (s *PostgresStore) loadLastRCA() {
	row := s.db.QueryRow(`
		SELECT target, namespace, analysis, created_at
		FROM rca_reports
		ORDER BY created_at DESC
		LIMIT 1
	`)

	var report types.RCAReport
	if err := row.Scan(&report.Target, &report.Namespace, &report.Analysis, &report.CreatedAt); err != nil {
		return
	}

	s.mu.Lock()
	s.rca = report
	s.hasRCA = true
	s.mu.Unlock()
}

func (s *PostgresStore) Ping() error {
	return s.db.Ping()
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
