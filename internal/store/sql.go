package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/feichai0017/document-alerts/config"
	"github.com/feichai0017/document-alerts/internal/models"
	"github.com/feichai0017/document-alerts/pkg/logger"
)

// Dialect selects the SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driver() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) schema() []string {
	seq := "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == DialectPostgres {
		seq = "seq BIGSERIAL PRIMARY KEY"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			` + seq + `,
			id TEXT NOT NULL UNIQUE,
			document_id TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			status TEXT NOT NULL,
			evidence TEXT NOT NULL DEFAULT '',
			triggered_at BIGINT NOT NULL,
			resolved_at BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS alerts_document_status ON alerts (document_id, status)`,
		`CREATE INDEX IF NOT EXISTS alerts_status_triggered ON alerts (status, triggered_at)`,
		// at most one active alert per (document, rule)
		`CREATE UNIQUE INDEX IF NOT EXISTS alerts_one_active ON alerts (document_id, rule_id) WHERE status = 'ACTIVE'`,
	}
}

// rebind rewrites ? placeholders as $n for postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const alertColumns = "seq, id, document_id, rule_id, status, evidence, triggered_at, resolved_at"

// SQLStore keeps alerts in a relational table. Timestamps are stored as unix
// nanoseconds.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  logger.Logger
}

// OpenSQLStore opens the database and creates the schema if needed.
func OpenSQLStore(ctx context.Context, dialect Dialect, cfg *config.SQLConfig, log logger.Logger) (*SQLStore, error) {
	db, err := sql.Open(dialect.driver(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &SQLStore{db: db, dialect: dialect, logger: log.Named("store.sql")}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Info("Alert store ready", logger.String("dialect", string(dialect)))
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate alert schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Save(ctx context.Context, alert models.Alert) (models.Alert, error) {
	var resolved sql.NullInt64
	if alert.ResolvedAt != nil {
		resolved = sql.NullInt64{Int64: alert.ResolvedAt.UnixNano(), Valid: true}
	}

	query := s.dialect.rebind(`INSERT INTO alerts (id, document_id, rule_id, status, evidence, triggered_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			evidence = excluded.evidence,
			triggered_at = excluded.triggered_at,
			resolved_at = excluded.resolved_at
		RETURNING seq`)

	err := s.db.QueryRowContext(ctx, query,
		alert.ID, alert.DocumentID, alert.RuleID, string(alert.Status), alert.Evidence,
		alert.TriggeredAt.UnixNano(), resolved,
	).Scan(&alert.Seq)
	if err != nil {
		return models.Alert{}, s.fail("save", err)
	}
	return alert, nil
}

func (s *SQLStore) FindActiveByDocument(ctx context.Context, documentID string) ([]models.Alert, error) {
	query := s.dialect.rebind(`SELECT ` + alertColumns + ` FROM alerts
		WHERE document_id = ? AND status = ?
		ORDER BY triggered_at DESC, seq ASC`)
	return s.query(ctx, "find active", query, documentID, string(models.AlertActive))
}

func (s *SQLStore) FindByStatus(ctx context.Context, status models.AlertStatus) ([]models.Alert, error) {
	query := s.dialect.rebind(`SELECT ` + alertColumns + ` FROM alerts
		WHERE status = ?
		ORDER BY triggered_at DESC, seq ASC`)
	return s.query(ctx, "find by status", query, string(status))
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.fail("ping", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) query(ctx context.Context, op, query string, args ...interface{}) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.fail(op, err)
	}
	defer rows.Close()

	alerts := make([]models.Alert, 0)
	for rows.Next() {
		var (
			a         models.Alert
			status    string
			triggered int64
			resolved  sql.NullInt64
		)
		if err := rows.Scan(&a.Seq, &a.ID, &a.DocumentID, &a.RuleID, &status, &a.Evidence, &triggered, &resolved); err != nil {
			return nil, s.fail(op, err)
		}
		a.Status = models.AlertStatus(status)
		a.TriggeredAt = time.Unix(0, triggered).UTC()
		if resolved.Valid {
			t := time.Unix(0, resolved.Int64).UTC()
			a.ResolvedAt = &t
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail(op, err)
	}
	return alerts, nil
}

func (s *SQLStore) fail(op string, err error) error {
	s.logger.Error("SQL operation failed",
		logger.String("op", op),
		logger.Error(err),
	)
	return models.StoreError(op, err)
}
