// Package scoring turns an externally predicted fraud probability (and
// optionally a transaction amount) into human-actionable scores: a classic
// log-odds scorecard and a composite risk index blended against the cached
// amount baseline.
package scoring

import (
	"fmt"
	"math"

	"github.com/yjing-lab/pulsegraph/internal/metrics"
)

const (
	// DefaultBaseScore anchors the scorecard at 50:1 odds.
	DefaultBaseScore = 600.0
	// DefaultPDO is the points-to-double-the-odds constant.
	DefaultPDO = 20.0

	baselineOdds = 50.0
	probEpsilon  = 1e-6
)

// Composite risk index weights: probability, normalized amount, log-odds.
const (
	DefaultWeightProb    = 0.6
	DefaultWeightAmount  = 0.3
	DefaultWeightLogOdds = 0.1
)

// Transform holds the scoring constants. The zero value is unusable; start
// from NewTransform and override with the With methods.
type Transform struct {
	BaseScore     float64
	PDO           float64
	WeightProb    float64
	WeightAmount  float64
	WeightLogOdds float64
}

// NewTransform returns a transform with the standard constants.
func NewTransform() Transform {
	return Transform{
		BaseScore:     DefaultBaseScore,
		PDO:           DefaultPDO,
		WeightProb:    DefaultWeightProb,
		WeightAmount:  DefaultWeightAmount,
		WeightLogOdds: DefaultWeightLogOdds,
	}
}

// WithScorecard overrides the base score and PDO constants.
func (t Transform) WithScorecard(base, pdo float64) Transform {
	if base > 0 {
		t.BaseScore = base
	}
	if pdo > 0 {
		t.PDO = pdo
	}
	return t
}

// WithWeights overrides the composite blend weights.
func (t Transform) WithWeights(prob, amount, logOdds float64) Transform {
	t.WeightProb = prob
	t.WeightAmount = amount
	t.WeightLogOdds = logOdds
	return t
}

// ScorecardResult is one probability run through the scorecard transform.
type ScorecardResult struct {
	Probability    float64 `json:"probability"`
	Score          float64 `json:"score"`
	Level          string  `json:"level"`
	Recommendation string  `json:"recommendation"`
}

// RiskIndexResult is one transaction run through the composite transform.
type RiskIndexResult struct {
	RI             float64 `json:"risk_index"`
	ATilde         float64 `json:"amount_normalized"`
	A0             float64 `json:"amount_baseline"`
	Level          string  `json:"risk_level"`
	Explanation    string  `json:"explanation"`
	Recommendation string  `json:"recommendation"`
}

// clampProb keeps a probability away from the 0 and 1 singularities of the
// odds and logit transforms.
func clampProb(p float64) float64 {
	if p < probEpsilon {
		return probEpsilon
	}
	if p > 1-probEpsilon {
		return 1 - probEpsilon
	}
	return p
}

// Scorecard maps a fraud probability onto a 600-centered credit-risk-style
// score: odds = (1-p)/p, score = base + (pdo/ln2)*ln(odds/50). Higher fraud
// probability always yields a lower score.
func (t Transform) Scorecard(prob float64) ScorecardResult {
	p := clampProb(prob)
	odds := (1 - p) / p
	score := t.BaseScore + t.PDO/math.Ln2*math.Log(odds/baselineOdds)
	score = math.Round(score*10) / 10

	level, rec := scorecardLevel(score)
	metrics.ScoresComputedTotal.WithLabelValues("scorecard").Inc()
	return ScorecardResult{
		Probability:    prob,
		Score:          score,
		Level:          level,
		Recommendation: rec,
	}
}

func scorecardLevel(score float64) (level, recommendation string) {
	switch {
	case score >= 700:
		return "Low", "No action"
	case score >= 600:
		return "Medium", "Monitor"
	case score >= 500:
		return "Medium-High", "Manual review"
	default:
		return "High", "Investigate immediately"
	}
}

// CompositeRiskIndex scores a batch of transactions: RI = wp*P + wa*A~ +
// wl*ln(P/(1-P)), where A~ is the amount normalized against the baseline a0
// and clipped to [0,1]. probs and amounts must be the same length.
func (t Transform) CompositeRiskIndex(probs, amounts []float64, a0 float64) ([]RiskIndexResult, error) {
	if len(probs) != len(amounts) {
		return nil, fmt.Errorf("scoring: %d probabilities but %d amounts", len(probs), len(amounts))
	}
	if a0 <= 0 {
		a0 = FallbackBaseline
	}

	out := make([]RiskIndexResult, len(probs))
	for i := range probs {
		p := clampProb(probs[i])
		aTilde := amounts[i] / a0
		if aTilde < 0 {
			aTilde = 0
		}
		if aTilde > 1 {
			aTilde = 1
		}
		ri := t.WeightProb*p + t.WeightAmount*aTilde + t.WeightLogOdds*math.Log(p/(1-p))
		level, expl, rec := riskLevel(ri)
		out[i] = RiskIndexResult{
			RI:             ri,
			ATilde:         aTilde,
			A0:             a0,
			Level:          level,
			Explanation:    expl,
			Recommendation: rec,
		}
	}
	metrics.ScoresComputedTotal.WithLabelValues("composite").Add(float64(len(out)))
	return out, nil
}

// riskLevel buckets a composite risk index. The strings are fixed by
// policy, not computed.
func riskLevel(ri float64) (level, explanation, recommendation string) {
	switch {
	case ri >= 0.9:
		return "High",
			"Transaction is almost certainly fraudulent.",
			"Block the transaction and investigate immediately."
	case ri >= 0.6:
		return "Suspicious",
			"Transaction shows strong fraud indicators.",
			"Hold the transaction for manual review."
	case ri >= 0.3:
		return "Normal",
			"Transaction carries moderate risk.",
			"Monitor the account for repeated activity."
	default:
		return "Low",
			"Transaction looks benign.",
			"No action required."
	}
}
