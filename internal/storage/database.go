package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"detectorgo/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavour spoken by an open database.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name onto a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", driver)
	}
}

// Rebind rewrites ? placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// InsertIgnore builds an INSERT that silently skips rows whose primary key
// already exists.
func (d Dialect) InsertIgnore(table, conflictColumn string, columns ...string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	cols := strings.Join(columns, ", ")
	switch d {
	case MySQL:
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", table, cols, marks)
	default:
		return d.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
			table, cols, marks, conflictColumn))
	}
}

// DB couples a connection pool with the dialect it was opened with.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the database configured under the given driver name.
func Open(dbType string, cfg *config.Config) (*DB, error) {
	dialect, err := ParseDialect(dbType)
	if err != nil {
		return nil, err
	}
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		dbCfg, ok = cfg.Databases[string(dialect)]
	}
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var db *sql.DB
	switch dialect {
	case SQLite:
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// A single connection keeps :memory: databases shared and avoids
		// SQLITE_BUSY on concurrent writers.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case MySQL:
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case Postgres:
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
			)
			if dbCfg.Params != "" {
				dsn += "?" + dbCfg.Params
			}
		}
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: db, Dialect: dialect}, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *DB) error {
	var stmts []string
	switch db.Dialect {
	case SQLite:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS app_users (
				id TEXT PRIMARY KEY,
				username TEXT UNIQUE,
				email TEXT NOT NULL UNIQUE,
				role TEXT NOT NULL DEFAULT 'user',
				created_at DATETIME NOT NULL,
				updated_at DATETIME
			)`,
			`CREATE TABLE IF NOT EXISTS predictions (
				id TEXT PRIMARY KEY,
				user_id TEXT,
				model_name TEXT NOT NULL,
				input_data TEXT NOT NULL,
				output_data TEXT NOT NULL,
				source_document TEXT,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES app_users(id) ON DELETE SET NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_predictions_user ON predictions(user_id, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS feedbacks (
				id TEXT PRIMARY KEY,
				prediction_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				is_correct BOOLEAN NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				FOREIGN KEY(prediction_id) REFERENCES predictions(id) ON DELETE CASCADE,
				FOREIGN KEY(user_id) REFERENCES app_users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_feedbacks_prediction ON feedbacks(prediction_id)`,
			`CREATE TABLE IF NOT EXISTS auth_identities (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS auth_tokens (
				token_id TEXT PRIMARY KEY,
				identity_id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				FOREIGN KEY(identity_id) REFERENCES auth_identities(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_auth_tokens_identity ON auth_tokens(identity_id)`,
			`CREATE INDEX IF NOT EXISTS idx_auth_tokens_expiry ON auth_tokens(expires_at)`,
		}
	case MySQL:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS app_users (
				id CHAR(36) NOT NULL,
				username VARCHAR(255) NULL UNIQUE,
				email VARCHAR(255) NOT NULL UNIQUE,
				role VARCHAR(50) NOT NULL DEFAULT 'user',
				created_at DATETIME(6) NOT NULL,
				updated_at DATETIME(6) NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS predictions (
				id CHAR(36) NOT NULL,
				user_id CHAR(36) NULL,
				model_name VARCHAR(255) NOT NULL,
				input_data TEXT NOT NULL,
				output_data TEXT NOT NULL,
				source_document VARCHAR(512) NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_predictions_user (user_id, created_at),
				INDEX idx_predictions_created_at (created_at),
				CONSTRAINT fk_predictions_user FOREIGN KEY (user_id) REFERENCES app_users(id) ON DELETE SET NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS feedbacks (
				id CHAR(36) NOT NULL,
				prediction_id CHAR(36) NOT NULL,
				user_id CHAR(36) NOT NULL,
				is_correct BOOLEAN NOT NULL,
				content TEXT NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_feedbacks_prediction (prediction_id),
				CONSTRAINT fk_feedbacks_prediction FOREIGN KEY (prediction_id) REFERENCES predictions(id) ON DELETE CASCADE,
				CONSTRAINT fk_feedbacks_user FOREIGN KEY (user_id) REFERENCES app_users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS auth_identities (
				id CHAR(36) NOT NULL,
				email VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS auth_tokens (
				token_id CHAR(36) NOT NULL PRIMARY KEY,
				identity_id CHAR(36) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				expires_at DATETIME(6) NOT NULL,
				INDEX idx_auth_tokens_identity (identity_id),
				INDEX idx_auth_tokens_expiry (expires_at),
				CONSTRAINT fk_auth_tokens_identity FOREIGN KEY (identity_id) REFERENCES auth_identities(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	case Postgres:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS app_users (
				id UUID PRIMARY KEY,
				username TEXT UNIQUE,
				email TEXT NOT NULL UNIQUE,
				role TEXT NOT NULL DEFAULT 'user',
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ
			)`,
			`CREATE TABLE IF NOT EXISTS predictions (
				id UUID PRIMARY KEY,
				user_id UUID REFERENCES app_users(id) ON DELETE SET NULL,
				model_name TEXT NOT NULL,
				input_data TEXT NOT NULL,
				output_data TEXT NOT NULL,
				source_document TEXT,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_predictions_user ON predictions(user_id, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS feedbacks (
				id UUID PRIMARY KEY,
				prediction_id UUID NOT NULL REFERENCES predictions(id) ON DELETE CASCADE,
				user_id UUID NOT NULL REFERENCES app_users(id) ON DELETE CASCADE,
				is_correct BOOLEAN NOT NULL,
				content TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_feedbacks_prediction ON feedbacks(prediction_id)`,
			`CREATE TABLE IF NOT EXISTS auth_identities (
				id UUID PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS auth_tokens (
				token_id UUID PRIMARY KEY,
				identity_id UUID NOT NULL REFERENCES auth_identities(id) ON DELETE CASCADE,
				created_at TIMESTAMPTZ NOT NULL,
				expires_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_auth_tokens_identity ON auth_tokens(identity_id)`,
			`CREATE INDEX IF NOT EXISTS idx_auth_tokens_expiry ON auth_tokens(expires_at)`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", db.Dialect)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", db.Dialect, err)
		}
	}
	return nil
}
