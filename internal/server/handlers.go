package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yjing-lab/pulsegraph/internal/graph"
	"github.com/yjing-lab/pulsegraph/internal/logging"
	"github.com/yjing-lab/pulsegraph/internal/pattern"
	"github.com/yjing-lab/pulsegraph/internal/realtime"
	"github.com/yjing-lab/pulsegraph/internal/scoring"
	"github.com/yjing-lab/pulsegraph/internal/store"
	"github.com/yjing-lab/pulsegraph/internal/timestep"
	"github.com/yjing-lab/pulsegraph/internal/traces"
)

// -----------------------------------------------------------------------------
// Network views
// -----------------------------------------------------------------------------

// egoNetworkHandler serves GET /api/v1/network/ego: the labeled 1-hop
// neighborhood of an account, optionally restricted by role and time window.
// A center with no qualifying transactions is an empty result with a reason,
// never an error.
func (s *Server) egoNetworkHandler(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_name",
			"message": "query parameter 'name' is required",
		})
		return
	}
	role := graph.ParseRole(c.Query("role"))

	ctx, span := traces.StartSpan(c.Request.Context(), "network.ego",
		traces.Account(name), traces.RoleFilter(string(role)))
	defer span.End()

	lo, hi, ok := s.parseStepWindow(c)
	if !ok {
		return
	}
	if lo != nil && hi != nil {
		span.SetAttributes(traces.StepRange(*lo, *hi))
	}

	txs, ok := s.loadCorpus(c)
	if !ok {
		return
	}
	txs = windowFilter(txs, lo, hi)

	sub, err := graph.Build(txs).Ego(name, role)
	if errors.Is(err, graph.ErrCenterNotFound) {
		c.JSON(http.StatusOK, gin.H{
			"center": graph.CanonicalID(name),
			"role":   string(role),
			"nodes":  []pattern.NodeView{},
			"edges":  []pattern.EdgeView{},
			"reason": err.Error(),
		})
		return
	}

	labels := s.classifier.Classify(sub.Graph)
	view := pattern.Annotate(sub.Graph, labels)
	span.SetAttributes(traces.TransactionCount(sub.EdgeCount()))
	logging.L(ctx).Info("ego network served",
		"center", sub.Center, "role", string(sub.Role),
		"nodes", len(view.Nodes), "edges", len(view.Edges))

	c.JSON(http.StatusOK, gin.H{
		"center": sub.Center,
		"role":   string(sub.Role),
		"nodes":  view.Nodes,
		"edges":  view.Edges,
	})
}

// highRiskNetworkHandler serves GET /api/v1/network/high-risk: the
// whole-population graph over transactions above the risk threshold,
// annotated with structural fraud labels.
func (s *Server) highRiskNetworkHandler(c *gin.Context) {
	threshold := s.cfg.RiskThreshold
	if q := c.Query("threshold"); q != "" {
		t, err := strconv.ParseFloat(q, 64)
		if err != nil || t <= 0 || t >= 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_threshold",
				"message": "threshold must be a number in (0, 1)",
			})
			return
		}
		threshold = t
	}

	_, span := traces.StartSpan(c.Request.Context(), "network.high_risk",
		traces.RiskThreshold(threshold))
	defer span.End()

	txs, ok := s.loadCorpus(c)
	if !ok {
		return
	}

	risky := make([]store.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.FraudProb > threshold || tx.IsFraudPred {
			risky = append(risky, tx)
		}
	}

	g := graph.BuildHighRiskNetwork(risky)
	labels := pattern.NewClassifier(threshold).Classify(g)
	view := pattern.Annotate(g, labels)
	span.SetAttributes(traces.TransactionCount(len(risky)))

	// Push structural label assignments to alert subscribers.
	for _, n := range view.Nodes {
		if n.Category != pattern.Normal {
			s.hub.BroadcastPatternAlert(realtime.PatternAlert{
				Account:  n.ID,
				Category: string(n.Category),
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"threshold":         threshold,
		"transaction_count": len(risky),
		"nodes":             view.Nodes,
		"edges":             view.Edges,
	})
}

// -----------------------------------------------------------------------------
// Structured intent queries
// -----------------------------------------------------------------------------

// intentQuery is the already-structured filter record produced by the
// external intent parser. All fields are optional.
type intentQuery struct {
	Name                 string   `json:"name"`
	TransactionID        string   `json:"transaction_id"`
	StartDateTime        string   `json:"start_date_time"`
	EndDateTime          string   `json:"end_date_time"`
	ProbabilityThreshold *float64 `json:"probability_threshold"`
}

// transactionQueryHandler serves POST /api/v1/transactions/query.
func (s *Server) transactionQueryHandler(c *gin.Context) {
	var q intentQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	txs, ok := s.loadCorpus(c)
	if !ok {
		return
	}

	// Exact transaction lookup short-circuits the filter path.
	if q.TransactionID != "" {
		for _, tx := range txs {
			if tx.TransactionID == q.TransactionID {
				c.JSON(http.StatusOK, gin.H{
					"count":        1,
					"transactions": []store.Transaction{tx},
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"count":        0,
			"transactions": []store.Transaction{},
			"reason":       "transaction not found",
		})
		return
	}

	filter := store.Filter{Name: graph.CanonicalID(q.Name)}
	if q.ProbabilityThreshold != nil {
		filter.MinProb = *q.ProbabilityThreshold
	}
	if q.StartDateTime != "" || q.EndDateTime != "" {
		if q.StartDateTime == "" || q.EndDateTime == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_date_range",
				"message": "start_date_time and end_date_time must be provided together",
			})
			return
		}
		a, b, err := s.index.DateToStepRange(q.StartDateTime, q.EndDateTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_timestamp",
				"message": err.Error(),
			})
			return
		}
		lo, hi := timestep.StepWindow(a, b)
		filter.StartStep, filter.EndStep = &lo, &hi
	}

	matched := filter.Apply(txs)
	c.JSON(http.StatusOK, gin.H{
		"count":        len(matched),
		"transactions": matched,
	})
}

// -----------------------------------------------------------------------------
// Risk scoring
// -----------------------------------------------------------------------------

// scorecardHandler serves GET /api/v1/risk/scorecard?prob=0.01.
func (s *Server) scorecardHandler(c *gin.Context) {
	q := c.Query("prob")
	prob, err := strconv.ParseFloat(q, 64)
	if err != nil || prob < 0 || prob > 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_probability",
			"message": "prob must be a number in [0, 1]",
		})
		return
	}
	c.JSON(http.StatusOK, s.transform.Scorecard(prob))
}

// scoreItem is one transaction submitted for composite scoring.
type scoreItem struct {
	TransactionID string  `json:"transaction_id"`
	OrigID        string  `json:"orig_id"`
	DestID        string  `json:"dest_id"`
	Probability   float64 `json:"probability"`
	Amount        float64 `json:"amount"`
}

type scoreRequest struct {
	Transactions []scoreItem `json:"transactions"`
}

// scoredItem pairs a submitted transaction with its composite result.
type scoredItem struct {
	TransactionID string `json:"transaction_id"`
	scoring.RiskIndexResult
}

// compositeScoreHandler serves POST /api/v1/risk/score: batch composite risk
// indices normalized against the cached amount baseline.
func (s *Server) compositeScoreHandler(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	if len(req.Transactions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "empty_batch",
			"message": "at least one transaction is required",
		})
		return
	}

	probs := make([]float64, len(req.Transactions))
	amounts := make([]float64, len(req.Transactions))
	for i, item := range req.Transactions {
		// A probability outside [0,1] indicates an upstream predictor bug
		// and fails the whole request.
		if item.Probability < 0 || item.Probability > 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_probability",
				"message": "probability must be in [0, 1]",
			})
			return
		}
		if item.Amount < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_amount",
				"message": "amount must be non-negative",
			})
			return
		}
		probs[i] = item.Probability
		amounts[i] = item.Amount
	}

	ctx, span := traces.StartSpan(c.Request.Context(), "risk.composite_score",
		traces.TransactionCount(len(req.Transactions)))
	defer span.End()

	a0 := s.baseline.Value(ctx)
	results, err := s.transform.CompositeRiskIndex(probs, amounts, a0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "scoring_error",
			"message": err.Error(),
		})
		return
	}

	out := make([]scoredItem, len(results))
	for i, res := range results {
		item := req.Transactions[i]
		out[i] = scoredItem{TransactionID: item.TransactionID, RiskIndexResult: res}

		// Stream high-risk hits to alert subscribers.
		if res.Level == "High" || res.Level == "Suspicious" {
			s.hub.BroadcastRiskAlert(realtime.RiskAlert{
				TransactionID: item.TransactionID,
				OrigID:        item.OrigID,
				DestID:        item.DestID,
				Amount:        item.Amount,
				RiskIndex:     res.RI,
				Level:         res.Level,
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"baseline": a0,
		"results":  out,
	})
}

// baselineHandler serves GET /api/v1/risk/baseline.
func (s *Server) baselineHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"baseline":   s.baseline.Value(c.Request.Context()),
		"percentile": s.cfg.AmountPercentile,
	})
}

// -----------------------------------------------------------------------------
// Shared helpers
// -----------------------------------------------------------------------------

// parseStepWindow reads the optional start/end timestamp query parameters and
// converts them to an inclusive step window. On a malformed request it writes
// the error response and returns ok=false.
func (s *Server) parseStepWindow(c *gin.Context) (lo, hi *int, ok bool) {
	start, end := c.Query("start_date_time"), c.Query("end_date_time")
	if start == "" && end == "" {
		return nil, nil, true
	}
	if start == "" || end == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_date_range",
			"message": "start_date_time and end_date_time must be provided together",
		})
		return nil, nil, false
	}
	a, b, err := s.index.DateToStepRange(start, end)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_timestamp",
			"message": err.Error(),
		})
		return nil, nil, false
	}
	l, h := timestep.StepWindow(a, b)
	return &l, &h, true
}

// loadCorpus reads the full corpus, turning "no data at all" into an empty
// result instead of a failure. Other store errors are internal failures.
func (s *Server) loadCorpus(c *gin.Context) ([]store.Transaction, bool) {
	txs, err := s.corpus.LoadAll(c.Request.Context())
	if err != nil {
		if errors.Is(err, store.ErrNoDataAvailable) {
			return nil, true
		}
		logging.L(c.Request.Context()).Error("corpus read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_error",
			"message": err.Error(),
		})
		return nil, false
	}
	return txs, true
}

// windowFilter keeps transactions inside the inclusive step window while
// preserving corpus order, which decides duplicate-edge representatives.
func windowFilter(txs []store.Transaction, lo, hi *int) []store.Transaction {
	if lo == nil && hi == nil {
		return txs
	}
	out := make([]store.Transaction, 0, len(txs))
	for _, tx := range txs {
		if lo != nil && tx.Step < *lo {
			continue
		}
		if hi != nil && tx.Step > *hi {
			continue
		}
		out = append(out, tx)
	}
	return out
}
