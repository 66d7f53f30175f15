package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Basic health check + apply a few safe pragmas.
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
  user_id    TEXT PRIMARY KEY,
  username   TEXT,
  tier       TEXT NOT NULL DEFAULT 'STARTER',
  is_active  INTEGER NOT NULL DEFAULT 1,
  created_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
  sub_id     TEXT PRIMARY KEY,
  user_id    TEXT NOT NULL,
  plan       TEXT,
  status     TEXT NOT NULL,
  created_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS billing_ledger (
  entry_id      INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id       TEXT NOT NULL,
  function_code TEXT NOT NULL,
  amount        INTEGER NOT NULL,
  created_at    TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS function_catalog (
  function_code   TEXT PRIMARY KEY,
  function_name   TEXT NOT NULL,
  handler_locator TEXT NOT NULL,
  timeout_seconds INTEGER NOT NULL DEFAULT 60,
  category        TEXT,
  is_active       INTEGER NOT NULL DEFAULT 1,
  created_at      TEXT NOT NULL,
  updated_at      TEXT
);`,
		`CREATE TABLE IF NOT EXISTS execution_requests (
  req_id            TEXT PRIMARY KEY,
  function_code     TEXT NOT NULL,
  user_id           TEXT NOT NULL,
  input_payload     JSON,
  status            TEXT NOT NULL,
  result_output     JSON,
  execution_time_ms INTEGER,
  campaign_id       TEXT,
  created_at        TEXT NOT NULL,
  started_at        TEXT,
  completed_at      TEXT
);`,
		`CREATE TABLE IF NOT EXISTS campaigns (
  campaign_id       TEXT PRIMARY KEY,
  user_id           TEXT NOT NULL,
  name              TEXT NOT NULL,
  status            TEXT NOT NULL DEFAULT 'DRAFT',
  target_list_id    TEXT,
  message           TEXT,
  delay_min_seconds INTEGER NOT NULL DEFAULT 5,
  delay_max_seconds INTEGER NOT NULL DEFAULT 10,
  session_tag       TEXT,
  scheduled_at      TEXT,
  started_at        TEXT,
  ended_at          TEXT,
  total_targets     INTEGER NOT NULL DEFAULT 0,
  sent_count        INTEGER NOT NULL DEFAULT 0,
  fail_count        INTEGER NOT NULL DEFAULT 0,
  created_at        TEXT NOT NULL,
  updated_at        TEXT
);`,
		`CREATE TABLE IF NOT EXISTS sessions (
  session_id      TEXT PRIMARY KEY,
  user_id         TEXT NOT NULL,
  phone           TEXT,
  locator         TEXT NOT NULL,
  tag             TEXT,
  status          TEXT NOT NULL DEFAULT 'UNCHECKED',
  last_checked_at TEXT,
  created_at      TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS target_lists (
  list_id     TEXT PRIMARY KEY,
  user_id     TEXT NOT NULL,
  name        TEXT NOT NULL,
  total_count INTEGER NOT NULL DEFAULT 0,
  file_path   TEXT NOT NULL,
  fingerprint TEXT NOT NULL,
  created_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS audit_log (
  log_id     INTEGER PRIMARY KEY AUTOINCREMENT,
  req_id     TEXT,
  actor_id   TEXT NOT NULL,
  action     TEXT NOT NULL,
  detail     TEXT,
  created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS execution_requests_status_created_at_idx ON execution_requests(status, created_at);`,
		`CREATE INDEX IF NOT EXISTS execution_requests_campaign_status_idx ON execution_requests(campaign_id, status);`,
		`CREATE INDEX IF NOT EXISTS campaigns_status_scheduled_at_idx ON campaigns(status, scheduled_at);`,
		`CREATE INDEX IF NOT EXISTS sessions_user_status_idx ON sessions(user_id, status);`,
		`CREATE INDEX IF NOT EXISTS audit_log_req_idx ON audit_log(req_id);`,
		`CREATE INDEX IF NOT EXISTS subscriptions_user_status_idx ON subscriptions(user_id, status);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
