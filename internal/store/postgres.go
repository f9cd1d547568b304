package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/yjing-lab/pulsegraph/internal/metrics"
	"github.com/yjing-lab/pulsegraph/internal/timestep"
)

// PostgresStore serves the same corpus from a transactions table instead of
// day-sharded files. Day windows are derived from the step index: a calendar
// day covers the 24 steps starting at its midnight step. Schema lives in
// migrations/ and is applied by cmd/migrate.
type PostgresStore struct {
	db    *sql.DB
	index timestep.Index
	now   func() time.Time
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB, index timestep.Index) *PostgresStore {
	return &PostgresStore{db: db, index: index, now: time.Now}
}

const txColumns = `transaction_id, step, orig_id, dest_id, amount, fraud_prob_pred, is_fraud_pred`

func (s *PostgresStore) today() time.Time {
	t := s.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// stepWindowForDay returns the inclusive step range a calendar day spans.
func (s *PostgresStore) stepWindowForDay(day time.Time) (int, int) {
	lo := s.index.StepOf(day)
	return lo, lo + 23
}

// LoadShard returns the transactions of the day daysAgo days before today.
// An empty day returns *ShardNotFoundError, mirroring the file store so
// range iteration can skip it.
func (s *PostgresStore) LoadShard(ctx context.Context, daysAgo int) ([]Transaction, error) {
	day := s.today().AddDate(0, 0, -daysAgo)
	lo, hi := s.stepWindowForDay(day)
	txs, err := s.queryWindow(ctx, lo, hi)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		metrics.ShardLoadsTotal.WithLabelValues("miss").Inc()
		return nil, &ShardNotFoundError{DaysAgo: daysAgo, Available: s.availableDates(ctx)}
	}
	metrics.ShardLoadsTotal.WithLabelValues("hit").Inc()
	return txs, nil
}

// LoadRange concatenates day windows from the larger offset to the smaller,
// skipping empty days.
func (s *PostgresStore) LoadRange(ctx context.Context, startDaysAgo, endDaysAgo int) ([]Transaction, error) {
	hi, lo := startDaysAgo, endDaysAgo
	if hi < lo {
		hi, lo = lo, hi
	}

	var out []Transaction
	for daysAgo := hi; daysAgo >= lo; daysAgo-- {
		txs, err := s.LoadShard(ctx, daysAgo)
		if err != nil {
			if _, ok := err.(*ShardNotFoundError); ok {
				continue
			}
			return nil, err
		}
		out = append(out, txs...)
	}
	return out, nil
}

// LoadAll reads the entire corpus in step order.
func (s *PostgresStore) LoadAll(ctx context.Context) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM transactions
		ORDER BY step, transaction_id
	`)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return scanTransactions(rows)
}

func (s *PostgresStore) queryWindow(ctx context.Context, loStep, hiStep int) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txColumns+`
		FROM transactions
		WHERE step BETWEEN $1 AND $2
		ORDER BY step, transaction_id
	`, loStep, hiStep)
	if err != nil {
		return nil, fmt.Errorf("load step window [%d,%d]: %w", loStep, hiStep, err)
	}
	return scanTransactions(rows)
}

// availableDates lists the distinct shard dates present, oldest first.
func (s *PostgresStore) availableDates(ctx context.Context) []string {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT step / 24 AS day_bucket, MIN(step) AS first_step
		FROM transactions
		GROUP BY day_bucket
		ORDER BY day_bucket
	`)
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var bucket, firstStep int
		if err := rows.Scan(&bucket, &firstStep); err != nil {
			continue
		}
		dates = append(dates, s.index.DayOf(firstStep).Format(shardLayout))
	}
	return dates
}

func scanTransactions(rows *sql.Rows) ([]Transaction, error) {
	defer func() { _ = rows.Close() }()

	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		var isFraud sql.NullBool
		if err := rows.Scan(&tx.TransactionID, &tx.Step, &tx.OrigID, &tx.DestID, &tx.Amount, &tx.FraudProb, &isFraud); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.IsFraudPred = isFraud.Valid && isFraud.Bool
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	metrics.ShardRowsRead.Add(float64(len(txs)))
	return txs, nil
}
