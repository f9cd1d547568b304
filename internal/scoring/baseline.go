package scoring

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/yjing-lab/pulsegraph/internal/metrics"
	"github.com/yjing-lab/pulsegraph/internal/store"
)

// DefaultPercentile is the order statistic used for the amount baseline.
const DefaultPercentile = 95.0

// FallbackBaseline is substituted when the historical corpus is unreadable
// or empty. Scoring degrades but never fails.
const FallbackBaseline = 1.0

// Baseline is the process-wide amount anchor A0: the high-percentile amount
// of the full historical corpus. It is computed lazily on first use and
// cached for the lifetime of the process, never invalidated, so scores stay
// comparable across a session even as new rows arrive.
type Baseline struct {
	source     store.Source
	percentile float64
	logger     *slog.Logger

	once  sync.Once
	value float64
}

// NewBaseline creates an uncomputed baseline over the given corpus.
func NewBaseline(source store.Source, logger *slog.Logger) *Baseline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Baseline{
		source:     source,
		percentile: DefaultPercentile,
		logger:     logger,
	}
}

// WithPercentile overrides the default percentile. Must be called before the
// first Value call; later calls have no effect on the cached result.
func (b *Baseline) WithPercentile(p float64) *Baseline {
	if p > 0 && p <= 100 {
		b.percentile = p
	}
	return b
}

// FixedBaseline returns an already-computed baseline pinned to v. Useful for
// callers that obtained A0 elsewhere.
func FixedBaseline(v float64) *Baseline {
	b := &Baseline{value: v, logger: slog.Default()}
	b.once.Do(func() {})
	return b
}

// Value returns A0, computing it on the first call.
func (b *Baseline) Value(ctx context.Context) float64 {
	b.once.Do(func() {
		b.value = b.compute(ctx)
		metrics.BaselineAmount.Set(b.value)
	})
	return b.value
}

func (b *Baseline) compute(ctx context.Context) float64 {
	txs, err := b.source.LoadAll(ctx)
	if err != nil {
		b.logger.Warn("amount baseline unavailable, using fallback",
			"error", err, "fallback", FallbackBaseline)
		return FallbackBaseline
	}
	amounts := make([]float64, 0, len(txs))
	for _, tx := range txs {
		amounts = append(amounts, tx.Amount)
	}
	if len(amounts) == 0 {
		b.logger.Warn("amount baseline has no historical rows, using fallback",
			"fallback", FallbackBaseline)
		return FallbackBaseline
	}
	sort.Float64s(amounts)
	v := Percentile(amounts, b.percentile)
	if v <= 0 {
		b.logger.Warn("amount baseline is non-positive, using fallback",
			"computed", v, "fallback", FallbackBaseline)
		return FallbackBaseline
	}
	b.logger.Info("amount baseline computed",
		"percentile", b.percentile, "rows", len(amounts), "baseline", v)
	return v
}

// Percentile returns the p-th percentile of an ascending-sorted slice using
// linear interpolation between the bracketing order statistics.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
