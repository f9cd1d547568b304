package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func sampleTxs() []Transaction {
	return []Transaction{
		{TransactionID: "T1", Step: 700, OrigID: "alice", DestID: "bob", Amount: 100, FraudProb: 0.30},
		{TransactionID: "T2", Step: 710, OrigID: "bob", DestID: "carol", Amount: 250, FraudProb: 0.90},
		{TransactionID: "T3", Step: 720, OrigID: "carol", DestID: "alice", Amount: 50, FraudProb: 0.55},
		{TransactionID: "T4", Step: 730, OrigID: "dave", DestID: "bob", Amount: 10, FraudProb: 0.55},
	}
}

func TestFilterByName(t *testing.T) {
	got := Filter{Name: "alice"}.Apply(sampleTxs())

	ids := make([]string, len(got))
	for i, tx := range got {
		ids[i] = tx.TransactionID
	}
	// alice appears in T1 (orig) and T3 (dest); sorted by probability desc.
	assert.Equal(t, []string{"T3", "T1"}, ids)
}

func TestFilterByProbabilityAndWindow(t *testing.T) {
	f := Filter{MinProb: 0.5, StartStep: intPtr(705), EndStep: intPtr(725)}
	got := f.Apply(sampleTxs())

	ids := make([]string, len(got))
	for i, tx := range got {
		ids[i] = tx.TransactionID
	}
	assert.Equal(t, []string{"T2", "T3"}, ids)
}

func TestFilterSortIsStableOnTies(t *testing.T) {
	got := Filter{MinProb: 0.5}.Apply(sampleTxs())

	ids := make([]string, len(got))
	for i, tx := range got {
		ids[i] = tx.TransactionID
	}
	// T3 and T4 tie at 0.55 and keep corpus order.
	assert.Equal(t, []string{"T2", "T3", "T4"}, ids)
}

func TestFilterReversedWindow(t *testing.T) {
	f := Filter{StartStep: intPtr(725), EndStep: intPtr(705)}
	got := f.Apply(sampleTxs())
	assert.Len(t, got, 2, "reversed endpoints should still select the window")
}

func TestBuildProbabilityIndex(t *testing.T) {
	idx := BuildProbabilityIndex(sampleTxs())

	assert.Len(t, idx, 4)
	assert.Equal(t, 0.90, idx["T2"])
	assert.Equal(t, 0.30, idx["T1"])
}

func TestBuildProbabilityIndexEmpty(t *testing.T) {
	assert.Empty(t, BuildProbabilityIndex(nil))
}
