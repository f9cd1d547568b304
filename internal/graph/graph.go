// Package graph builds the account relationship graph and extracts the
// role- and time-filtered ego views served to the renderer.
//
// The graph is undirected and simple: one node per account, one edge per
// connected account pair. When several transactions connect the same pair
// the edge keeps the latest-processed transaction's id and probability
// (last-write-wins). That is a deliberate simplification of parallel
// transfers, not data loss: the full rows stay in the store, only the
// drawn edge collapses. Node and edge iteration order is the insertion
// order of the input stream, which also decides which duplicate wins, so
// repeated builds over the same input are reproducible.
package graph

import (
	"errors"
	"strconv"
	"strings"

	"github.com/yjing-lab/pulsegraph/internal/metrics"
	"github.com/yjing-lab/pulsegraph/internal/store"
)

// Role restricts which edges qualify before an ego neighborhood is taken.
type Role string

const (
	RoleOrigin      Role = "origin"      // center must be the paying side
	RoleDestination Role = "destination" // center must be the receiving side
	RoleBoth        Role = "both"        // no restriction
)

// ParseRole maps the wire spelling to a Role, defaulting to both.
func ParseRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "origin":
		return RoleOrigin
	case "destination":
		return RoleDestination
	default:
		return RoleBoth
	}
}

// ErrCenterNotFound reports an ego extraction whose center has no
// qualifying edges. The HTTP layer surfaces it as an empty network with a
// reason string, never a failure.
var ErrCenterNotFound = errors.New("center account has no qualifying transactions")

// Edge is one drawn connection between two accounts. From/To record the
// direction of the representative transaction even though the graph itself
// is undirected; the role filter needs the orientation.
type Edge struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	TransactionID string  `json:"transaction_id"`
	Probability   float64 `json:"probability"`
	Fraud         bool    `json:"fraud"`
	Step          int     `json:"step"`
	Amount        float64 `json:"amount"`
}

// Graph is an insertion-ordered undirected simple graph over accounts.
type Graph struct {
	nodes   []string
	nodeSet map[string]bool
	edges   []*Edge
	edgeIdx map[string]*Edge // unordered pair key
}

// CanonicalID normalizes an account identifier. Numeric-looking
// identifiers are parsed and re-stringified so formatting variants of the
// same account ("123.0", "123", " 123 ") collide onto one node; anything
// else is kept as its trimmed literal form.
func CanonicalID(id string) string {
	s := strings.TrimSpace(id)
	if s == "" {
		return s
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return s
}

// pairKey builds an orientation-free edge key.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "\x00" + b
}

func newGraph() *Graph {
	return &Graph{
		nodeSet: make(map[string]bool),
		edgeIdx: make(map[string]*Edge),
	}
}

// Build constructs the relationship graph for a transaction stream.
func Build(txs []store.Transaction) *Graph {
	g := newGraph()
	for _, tx := range txs {
		g.addTransaction(tx)
	}
	metrics.GraphBuildsTotal.WithLabelValues("full").Inc()
	return g
}

// BuildHighRiskNetwork constructs a whole-population graph over an already
// risk-filtered transaction set. Structurally identical to Build; the
// caller owns the filtering, the classifier owns the labels.
func BuildHighRiskNetwork(txs []store.Transaction) *Graph {
	g := newGraph()
	for _, tx := range txs {
		g.addTransaction(tx)
	}
	metrics.GraphBuildsTotal.WithLabelValues("high_risk").Inc()
	return g
}

func (g *Graph) addNode(id string) {
	if !g.nodeSet[id] {
		g.nodeSet[id] = true
		g.nodes = append(g.nodes, id)
	}
}

func (g *Graph) addTransaction(tx store.Transaction) {
	from := CanonicalID(tx.OrigID)
	to := CanonicalID(tx.DestID)
	if from == "" || to == "" || from == to {
		return // simple graph: no self loops
	}
	g.addNode(from)
	g.addNode(to)

	key := pairKey(from, to)
	if e, ok := g.edgeIdx[key]; ok {
		// Last write wins; the edge keeps its original position.
		e.From = from
		e.To = to
		e.TransactionID = tx.TransactionID
		e.Probability = tx.FraudProb
		e.Fraud = tx.IsFraudPred
		e.Step = tx.Step
		e.Amount = tx.Amount
		return
	}
	e := &Edge{
		From:          from,
		To:            to,
		TransactionID: tx.TransactionID,
		Probability:   tx.FraudProb,
		Fraud:         tx.IsFraudPred,
		Step:          tx.Step,
		Amount:        tx.Amount,
	}
	g.edgeIdx[key] = e
	g.edges = append(g.edges, e)
}

// Nodes returns account ids in insertion order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Edges returns edge copies in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	for i, e := range g.edges {
		out[i] = *e
	}
	return out
}

// HasNode reports whether the account exists in the graph.
func (g *Graph) HasNode(id string) bool { return g.nodeSet[id] }

// NodeCount returns the number of accounts.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of drawn edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Subgraph is the 1-hop neighborhood of a center account under a role
// filter.
type Subgraph struct {
	*Graph
	Center string
	Role   Role
}

// Ego extracts the 1-hop neighborhood of center. The role filter restricts
// edges first (origin: center pays, destination: center receives, both: no
// restriction), then the neighborhood is taken in the restricted graph.
// Under RoleBoth, edges between two neighbors are part of the view; under
// the directional roles only center-incident edges can qualify.
func (g *Graph) Ego(center string, role Role) (*Subgraph, error) {
	c := CanonicalID(center)

	// Neighbors reachable through qualifying center-incident edges.
	neighborhood := map[string]bool{c: true}
	found := false
	for _, e := range g.edges {
		if e.From != c && e.To != c {
			continue
		}
		if role == RoleOrigin && e.From != c {
			continue
		}
		if role == RoleDestination && e.To != c {
			continue
		}
		found = true
		neighborhood[e.From] = true
		neighborhood[e.To] = true
	}
	if !found {
		return nil, ErrCenterNotFound
	}

	sub := newGraph()
	// Preserve the parent graph's insertion order in the view.
	for _, id := range g.nodes {
		if neighborhood[id] {
			sub.addNode(id)
		}
	}
	for _, e := range g.edges {
		if !neighborhood[e.From] || !neighborhood[e.To] {
			continue
		}
		if role != RoleBoth && e.From != c && e.To != c {
			continue // directional roles keep center-incident edges only
		}
		if role == RoleOrigin && e.From != c {
			continue
		}
		if role == RoleDestination && e.To != c {
			continue
		}
		cp := *e
		sub.edgeIdx[pairKey(e.From, e.To)] = &cp
		sub.edges = append(sub.edges, &cp)
	}
	// Directional filters can leave isolated neighbor nodes out of the
	// edge set but they remain distance-1 members of the view.

	metrics.GraphBuildsTotal.WithLabelValues("ego").Inc()
	return &Subgraph{Graph: sub, Center: c, Role: role}, nil
}

// Degree returns per-node degree over the drawn edges.
func (g *Graph) Degree() map[string]int {
	deg := make(map[string]int, len(g.nodes))
	for _, id := range g.nodes {
		deg[id] = 0
	}
	for _, e := range g.edges {
		deg[e.From]++
		deg[e.To]++
	}
	return deg
}

// Neighbors returns the adjacency set of a node.
func (g *Graph) Neighbors(id string) map[string]bool {
	out := make(map[string]bool)
	for _, e := range g.edges {
		switch id {
		case e.From:
			out[e.To] = true
		case e.To:
			out[e.From] = true
		}
	}
	return out
}
