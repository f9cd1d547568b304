package store

import (
	"fmt"
	"math/rand"
	"time"
)

// WriteSampleShard seeds a deterministic demo shard for the given day so a
// fresh development checkout has something to query. The fixed seed keeps
// the generated network identical across runs.
func (s *ShardStore) WriteSampleShard(day time.Time, numRecords int) error {
	rng := rand.New(rand.NewSource(42))

	accounts := make([]string, 20)
	for i := range accounts {
		accounts[i] = fmt.Sprintf("A%03d", i+1)
	}

	baseStep := s.index.StepOf(time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC))

	txs := make([]Transaction, 0, numRecords)
	for i := 1; i <= numRecords; i++ {
		orig := accounts[rng.Intn(len(accounts))]
		dest := accounts[rng.Intn(len(accounts))]
		for dest == orig {
			dest = accounts[rng.Intn(len(accounts))]
		}
		amount := 10 + rng.Float64()*9990
		prob := 0.01 + rng.Float64()*0.89
		txs = append(txs, Transaction{
			TransactionID: fmt.Sprintf("T%03d", i),
			Step:          baseStep + rng.Intn(24),
			OrigID:        orig,
			DestID:        dest,
			Amount:        float64(int(amount*100)) / 100,
			FraudProb:     float64(int(prob*10000)) / 10000,
			IsFraudPred:   prob > 0.75,
		})
	}
	return s.WriteShard(day, txs)
}

// SeedIfEmpty writes a sample shard for today when the directory has no
// shards yet. Returns whether seeding happened.
func (s *ShardStore) SeedIfEmpty(numRecords int) (bool, error) {
	shards, err := s.listShards()
	if err != nil {
		return false, err
	}
	if len(shards) > 0 {
		return false, nil
	}
	if err := s.WriteSampleShard(s.today(), numRecords); err != nil {
		return false, err
	}
	return true, nil
}
