package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yjing-lab/pulsegraph/internal/metrics"
	"github.com/yjing-lab/pulsegraph/internal/timestep"
	"github.com/yjing-lab/pulsegraph/internal/traces"
)

const (
	shardPrefix = "transactions_"
	shardSuffix = ".csv"
	shardLayout = "2006-01-02"
)

// requiredColumns must be present in every shard header. isFraud_pred is
// optional; older shards predate the boolean prediction column.
var requiredColumns = []string{
	"transaction_id", "step", "orig_id", "dest_id", "amount", "fraud_prob_pred",
}

// ShardHandle identifies one day shard on disk.
type ShardHandle struct {
	Day  time.Time
	Path string
}

// ShardStore reads the day-sharded CSV corpus under a single directory.
// Shards are read-only from this store's perspective; the ingestion pipeline
// owns appends. A shard file that does not exist yet is "no data", never an
// error.
type ShardStore struct {
	dir    string
	index  timestep.Index
	logger *slog.Logger
	now    func() time.Time
}

// ShardOption configures a ShardStore.
type ShardOption func(*ShardStore)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) ShardOption {
	return func(s *ShardStore) { s.logger = logger }
}

// WithClock overrides the wall clock (for tests).
func WithClock(now func() time.Time) ShardOption {
	return func(s *ShardStore) { s.now = now }
}

// NewShardStore opens the shard directory, creating it if absent. Creation
// is idempotent, so it is safe to construct multiple stores over one
// directory.
func NewShardStore(dir string, index timestep.Index, opts ...ShardOption) (*ShardStore, error) {
	s := &ShardStore{
		dir:    dir,
		index:  index,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create shard directory %s: %w", dir, err)
	}
	return s, nil
}

// Dir returns the shard directory path.
func (s *ShardStore) Dir() string { return s.dir }

func (s *ShardStore) shardPath(day time.Time) string {
	return filepath.Join(s.dir, shardPrefix+day.UTC().Format(shardLayout)+shardSuffix)
}

func (s *ShardStore) today() time.Time {
	t := s.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// listShards returns the shard files present, sorted oldest first. The date
// embedded in the filename sorts lexically, so name order is date order.
func (s *ShardStore) listShards() ([]ShardHandle, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read shard directory %s: %w", s.dir, err)
	}
	var shards []ShardHandle
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, shardPrefix) || !strings.HasSuffix(name, shardSuffix) {
			continue
		}
		day, err := time.ParseInLocation(shardLayout, strings.TrimSuffix(strings.TrimPrefix(name, shardPrefix), shardSuffix), time.UTC)
		if err != nil {
			s.logger.Warn("ignoring shard file with unparseable date", "file", name)
			continue
		}
		shards = append(shards, ShardHandle{Day: day, Path: filepath.Join(s.dir, name)})
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].Day.Before(shards[j].Day) })
	return shards, nil
}

// availableDates lists the shard dates on disk, oldest first.
func (s *ShardStore) availableDates() []string {
	shards, err := s.listShards()
	if err != nil {
		return nil
	}
	dates := make([]string, len(shards))
	for i, sh := range shards {
		dates[i] = sh.Day.Format(shardLayout)
	}
	return dates
}

// ResolveCurrentShard returns the shard for today, falling back to the most
// recent shard on disk when today has no data yet. ErrNoDataAvailable only
// when the directory holds no shards at all.
func (s *ShardStore) ResolveCurrentShard() (ShardHandle, error) {
	today := s.today()
	path := s.shardPath(today)
	if _, err := os.Stat(path); err == nil {
		return ShardHandle{Day: today, Path: path}, nil
	}

	shards, err := s.listShards()
	if err != nil {
		return ShardHandle{}, err
	}
	if len(shards) == 0 {
		return ShardHandle{}, ErrNoDataAvailable
	}
	latest := shards[len(shards)-1]
	s.logger.Info("no shard for today, falling back to most recent",
		"today", today.Format(shardLayout),
		"fallback", latest.Day.Format(shardLayout),
	)
	return latest, nil
}

// LoadShard reads the shard for the day daysAgo days before today. A missing
// day returns *ShardNotFoundError; the caller decides whether to skip it.
func (s *ShardStore) LoadShard(ctx context.Context, daysAgo int) ([]Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	day := s.today().AddDate(0, 0, -daysAgo)
	_, span := traces.StartSpan(ctx, "store.load_shard", traces.Shard(day.Format(shardLayout)))
	defer span.End()
	path := s.shardPath(day)
	if _, err := os.Stat(path); err != nil {
		metrics.ShardLoadsTotal.WithLabelValues("miss").Inc()
		return nil, &ShardNotFoundError{DaysAgo: daysAgo, Available: s.availableDates()}
	}
	txs, err := readShardFile(path)
	if err != nil {
		return nil, err
	}
	metrics.ShardLoadsTotal.WithLabelValues("hit").Inc()
	metrics.ShardRowsRead.Add(float64(len(txs)))
	return txs, nil
}

// LoadRange concatenates every shard in the inclusive days-ago window,
// iterating from the larger offset (older day) to the smaller and silently
// skipping days without data. An entirely absent window returns an empty
// slice and no error.
func (s *ShardStore) LoadRange(ctx context.Context, startDaysAgo, endDaysAgo int) ([]Transaction, error) {
	hi, lo := startDaysAgo, endDaysAgo
	if hi < lo {
		hi, lo = lo, hi
	}

	var out []Transaction
	for daysAgo := hi; daysAgo >= lo; daysAgo-- {
		txs, err := s.LoadShard(ctx, daysAgo)
		if err != nil {
			var nf *ShardNotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return nil, err
		}
		out = append(out, txs...)
	}
	return out, nil
}

// LoadAll reads the entire stored corpus, oldest shard first. Used by the
// scoring baseline; satisfies Source.
func (s *ShardStore) LoadAll(ctx context.Context) ([]Transaction, error) {
	shards, err := s.listShards()
	if err != nil {
		return nil, err
	}
	var out []Transaction
	for _, sh := range shards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		txs, err := readShardFile(sh.Path)
		if err != nil {
			return nil, err
		}
		metrics.ShardRowsRead.Add(float64(len(txs)))
		out = append(out, txs...)
	}
	return out, nil
}

// LoadHandle reads the transactions behind a resolved shard handle.
func (s *ShardStore) LoadHandle(h ShardHandle) ([]Transaction, error) {
	txs, err := readShardFile(h.Path)
	if err != nil {
		return nil, err
	}
	metrics.ShardLoadsTotal.WithLabelValues("hit").Inc()
	metrics.ShardRowsRead.Add(float64(len(txs)))
	return txs, nil
}

// WriteShard writes a full day shard. The running service never calls this;
// it exists for the development seeder and tests. Ingestion owns production
// writes.
func (s *ShardStore) WriteShard(day time.Time, txs []Transaction) error {
	path := s.shardPath(day)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create shard %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	header := append(append([]string{}, requiredColumns...), "isFraud_pred")
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write shard header: %w", err)
	}
	for _, tx := range txs {
		isFraud := "0"
		if tx.IsFraudPred {
			isFraud = "1"
		}
		row := []string{
			tx.TransactionID,
			strconv.Itoa(tx.Step),
			tx.OrigID,
			tx.DestID,
			strconv.FormatFloat(tx.Amount, 'f', -1, 64),
			strconv.FormatFloat(tx.FraudProb, 'f', -1, 64),
			isFraud,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write shard row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// readShardFile parses one shard CSV. Column order is taken from the header;
// a missing required column is a SchemaError, and malformed numerics are
// hard failures (they indicate a broken ingestion run, not missing data).
func readShardFile(path string) ([]Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shard %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read shard header %s: %w", path, err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, &SchemaError{Field: name}
		}
	}
	fraudCol, hasFraudCol := col["isFraud_pred"]

	// Rows may legitimately omit trailing optional columns, but every
	// required column index must be addressable.
	minFields := 0
	for _, name := range requiredColumns {
		if col[name] >= minFields {
			minFields = col[name] + 1
		}
	}

	var txs []Transaction
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read shard %s line %d: %w", path, line, err)
		}
		if len(rec) < minFields {
			return nil, fmt.Errorf("shard %s line %d: row has %d fields, need at least %d", path, line, len(rec), minFields)
		}

		step, err := strconv.Atoi(strings.TrimSpace(rec[col["step"]]))
		if err != nil {
			return nil, fmt.Errorf("shard %s line %d: bad step: %w", path, line, err)
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(rec[col["amount"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("shard %s line %d: bad amount: %w", path, line, err)
		}
		prob, err := strconv.ParseFloat(strings.TrimSpace(rec[col["fraud_prob_pred"]]), 64)
		if err != nil {
			return nil, fmt.Errorf("shard %s line %d: bad fraud_prob_pred: %w", path, line, err)
		}

		tx := Transaction{
			TransactionID: strings.TrimSpace(rec[col["transaction_id"]]),
			Step:          step,
			OrigID:        strings.TrimSpace(rec[col["orig_id"]]),
			DestID:        strings.TrimSpace(rec[col["dest_id"]]),
			Amount:        amount,
			FraudProb:     prob,
		}
		if hasFraudCol && fraudCol < len(rec) {
			tx.IsFraudPred = parseBoolish(rec[fraudCol])
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// parseBoolish accepts the 0/1 and true/false spellings seen across
// predictor versions.
func parseBoolish(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes":
		return true
	default:
		return false
	}
}
