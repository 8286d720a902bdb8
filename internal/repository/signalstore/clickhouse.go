package signalstore

import (
	"context"
	"fmt"
	"time"

	"PatternPulse/internal/domain/models"
	drepo "PatternPulse/internal/domain/repository"
	"PatternPulse/pkg/clickhouse"
)

// schema is idempotent DDL applied on startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS pattern_signals (
		id             String,
		correlation_id String,
		symbol         LowCardinality(String),
		timeframe      LowCardinality(String),
		pattern        LowCardinality(String),
		direction      LowCardinality(String),
		entry          Float64,
		stop_loss      Float64,
		target         Float64,
		risk_reward    Float64,
		confidence     Float64,
		generated_at   DateTime64(3)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(generated_at)
	ORDER BY (symbol, generated_at)`,
}

const insertStmt = `INSERT INTO pattern_signals
	(id, correlation_id, symbol, timeframe, pattern, direction,
	 entry, stop_loss, target, risk_reward, confidence, generated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Store persists pattern signals in ClickHouse.
type Store struct {
	client *clickhouse.Client
}

// New creates a ClickHouse-backed signal store.
func New(client *clickhouse.Client) drepo.SignalStore {
	return &Store{client: client}
}

// Init applies the table schema.
func (s *Store) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, schema)
}

// Store inserts one signal.
func (s *Store) Store(ctx context.Context, sig *models.PatternSignal) error {
	_, err := s.client.DB().ExecContext(ctx, insertStmt, insertArgs(sig)...)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// StoreBatch inserts many signals in one transaction.
func (s *Store) StoreBatch(ctx context.Context, sigs []*models.PatternSignal) error {
	if len(sigs) == 0 {
		return nil
	}

	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertStmt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, sig := range sigs {
		if _, err := stmt.ExecContext(ctx, insertArgs(sig)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("batch insert %s: %w", sig.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Query returns signals for a symbol in [from, to], newest first.
func (s *Store) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.PatternSignal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.client.DB().QueryContext(ctx,
		`SELECT id, correlation_id, symbol, timeframe, pattern, direction,
		        entry, stop_loss, target, risk_reward, confidence, generated_at
		 FROM pattern_signals
		 WHERE symbol = ? AND generated_at BETWEEN ? AND ?
		 ORDER BY generated_at DESC
		 LIMIT ?`,
		symbol, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []*models.PatternSignal
	for rows.Next() {
		sig := &models.PatternSignal{}
		if err := rows.Scan(&sig.ID, &sig.CorrelationID, &sig.Symbol, &sig.Timeframe,
			&sig.Pattern, &sig.Direction, &sig.Entry, &sig.StopLoss, &sig.Target,
			&sig.RiskReward, &sig.Confidence, &sig.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func insertArgs(sig *models.PatternSignal) []any {
	return []any{
		sig.ID, sig.CorrelationID, sig.Symbol, sig.Timeframe,
		sig.Pattern, sig.Direction, sig.Entry, sig.StopLoss,
		sig.Target, sig.RiskReward, sig.Confidence, sig.GeneratedAt,
	}
}
