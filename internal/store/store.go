// Package store owns the day-sharded transaction corpus.
//
// Transactions arrive pre-scored from the ingestion pipeline, one CSV file
// per calendar day. The store resolves "today" and days-ago windows to
// concrete record sets and never treats a missing day as fatal: absent
// shards are a recoverable "no data" condition the caller decides how to
// handle. An optional PostgreSQL source offers the same corpus behind
// DATABASE_URL.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Transaction is one scored transfer between two accounts. Records are
// immutable once written; corrections arrive as new appended rows.
type Transaction struct {
	TransactionID string  `json:"transaction_id"`
	Step          int     `json:"step"`
	OrigID        string  `json:"orig_id"`
	DestID        string  `json:"dest_id"`
	Amount        float64 `json:"amount"`
	FraudProb     float64 `json:"fraud_prob_pred"`
	IsFraudPred   bool    `json:"isFraud_pred"`
}

// Source is any reader of the full historical corpus. The scoring baseline
// consumes it to compute the global amount percentile.
type Source interface {
	LoadAll(ctx context.Context) ([]Transaction, error)
}

// Corpus is the full read surface the query layer needs: days-ago shard
// access plus the whole-history read. Both the file-sharded store and the
// PostgreSQL store satisfy it.
type Corpus interface {
	Source
	LoadShard(ctx context.Context, daysAgo int) ([]Transaction, error)
	LoadRange(ctx context.Context, startDaysAgo, endDaysAgo int) ([]Transaction, error)
}

// ErrNoDataAvailable is returned when the corpus holds no shards at all.
// A missing individual day is a *ShardNotFoundError instead.
var ErrNoDataAvailable = errors.New("no transaction data available")

// ShardNotFoundError reports a specific missing day. Callers iterating a
// range treat it as skip-and-continue.
type ShardNotFoundError struct {
	DaysAgo   int
	Available []string // shard dates present on disk, oldest first
}

func (e *ShardNotFoundError) Error() string {
	return fmt.Sprintf("no shard for %d day(s) ago (available: %v)", e.DaysAgo, e.Available)
}

// SchemaError reports a required column missing from a shard file. Unlike
// missing shards this is fatal to the request: the corpus itself is broken.
type SchemaError struct {
	Field string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("required column %q missing from shard", e.Field)
}

// BuildProbabilityIndex projects transactions onto a transaction-id →
// fraud-probability lookup. The probability column's presence is enforced
// at shard-read time (SchemaError), so the projection itself cannot fail.
func BuildProbabilityIndex(txs []Transaction) map[string]float64 {
	idx := make(map[string]float64, len(txs))
	for _, tx := range txs {
		idx[tx.TransactionID] = tx.FraudProb
	}
	return idx
}

// Filter narrows a transaction set the way a structured intent query does:
// by account, minimum fraud probability, and inclusive step window.
// Zero-valued fields are inactive.
type Filter struct {
	Name      string  // matches either side of the transfer
	MinProb   float64 // keep rows with FraudProb >= MinProb
	StartStep *int    // inclusive; nil = unbounded
	EndStep   *int    // inclusive; nil = unbounded
}

// Apply returns the matching transactions sorted by descending fraud
// probability. The sort is stable so equal-probability rows keep corpus
// order.
func (f Filter) Apply(txs []Transaction) []Transaction {
	lo, hi := f.StartStep, f.EndStep
	if lo != nil && hi != nil && *lo > *hi {
		lo, hi = hi, lo
	}

	out := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.Name != "" && tx.OrigID != f.Name && tx.DestID != f.Name {
			continue
		}
		if tx.FraudProb < f.MinProb {
			continue
		}
		if lo != nil && tx.Step < *lo {
			continue
		}
		if hi != nil && tx.Step > *hi {
			continue
		}
		out = append(out, tx)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FraudProb > out[j].FraudProb
	})
	return out
}
