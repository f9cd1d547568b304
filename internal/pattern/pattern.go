// Package pattern assigns structural fraud labels to accounts in a
// relationship graph.
//
// Labels are computed only over the risk subgraph: the edges whose fraud
// probability exceeds the classifier threshold (or whose fraud flag is
// set) and the accounts touching them. Everything outside that region is
// Normal and never receives an explicit label. Rules run in priority
// order and never overwrite an earlier label: hub and isolation checks
// are cheap and highly indicative, so they outrank cycle and chain
// detection, which outrank the community pass.
package pattern

import (
	"math"

	"github.com/yjing-lab/pulsegraph/internal/graph"
	"github.com/yjing-lab/pulsegraph/internal/metrics"
)

// Category is a structural fraud-pattern label.
type Category string

const (
	F1Star      Category = "F1_Star_Fraud"
	F2Chain     Category = "F2_Chain_Fraud"
	F3Cycle     Category = "F3_Cycle_Fraud"
	F4Isolated  Category = "F4_Isolated_Pair"
	F5Community Category = "F5_Community_Fraud"
	RiskNode    Category = "Risk_Node"
	Normal      Category = "Normal"
)

// DefaultRiskThreshold is the fraud probability above which an edge joins
// the risk subgraph.
const DefaultRiskThreshold = 0.5

// Community-rule constants: components larger than communityMinSize whose
// mean local clustering exceeds communityClustering are labeled F5.
const (
	communityMinSize    = 5
	communityClustering = 0.6
)

// Classifier labels graph nodes with structural fraud categories.
type Classifier struct {
	RiskThreshold float64
}

// NewClassifier returns a classifier with the given threshold; zero or
// negative values fall back to the default.
func NewClassifier(threshold float64) Classifier {
	if threshold <= 0 {
		threshold = DefaultRiskThreshold
	}
	return Classifier{RiskThreshold: threshold}
}

// Classify returns the label for every risk-subgraph node. Accounts absent
// from the result are implicitly Normal. An empty risk subgraph yields an
// empty labeling, never an error.
func (c Classifier) Classify(g *graph.Graph) map[string]Category {
	sub := c.riskSubgraph(g)
	labels := make(map[string]Category, len(sub.nodes))
	if len(sub.nodes) == 0 {
		return labels
	}

	mean, stdev := sub.degreeStats()
	cycleNodes := sub.cycleMembers()

	// Rules 1-2: hubs and isolated pairs.
	for _, n := range sub.nodes {
		switch {
		case float64(sub.degree[n]) > mean+2*stdev:
			labels[n] = F1Star
		case sub.degree[n] == 1:
			labels[n] = F4Isolated
		}
	}
	// Rule 3: members of at least one elementary cycle.
	for _, n := range sub.nodes {
		if _, taken := labels[n]; !taken && cycleNodes[n] {
			labels[n] = F3Cycle
		}
	}
	// Rule 4: linear pass-through chains.
	for _, n := range sub.nodes {
		if _, taken := labels[n]; !taken && sub.degree[n] == 2 {
			labels[n] = F2Chain
		}
	}
	// Rule 5: dense communities.
	for _, comp := range sub.components() {
		if len(comp) <= communityMinSize {
			continue
		}
		var sum float64
		for _, n := range comp {
			sum += sub.clustering(n)
		}
		if sum/float64(len(comp)) <= communityClustering {
			continue
		}
		for _, n := range comp {
			if _, taken := labels[n]; !taken {
				labels[n] = F5Community
			}
		}
	}
	// Everything else in the risk subgraph is still risky.
	for _, n := range sub.nodes {
		if _, taken := labels[n]; !taken {
			labels[n] = RiskNode
		}
	}

	for _, cat := range labels {
		metrics.PatternLabelsTotal.WithLabelValues(string(cat)).Inc()
	}
	return labels
}

// LabelOf looks a node up in a labeling, defaulting to Normal.
func LabelOf(labels map[string]Category, node string) Category {
	if cat, ok := labels[node]; ok {
		return cat
	}
	return Normal
}

// riskView is the adjacency of the risk subgraph: edges above threshold
// (or flagged fraudulent) and the nodes touching them. Low-probability
// edges between risk nodes do not count toward degree; the label region
// is defined by the risky edges themselves.
type riskView struct {
	nodes  []string
	adj    map[string]map[string]bool
	degree map[string]int
}

func (c Classifier) riskSubgraph(g *graph.Graph) *riskView {
	v := &riskView{
		adj:    make(map[string]map[string]bool),
		degree: make(map[string]int),
	}
	touch := func(n string) {
		if _, ok := v.adj[n]; !ok {
			v.adj[n] = make(map[string]bool)
			v.nodes = append(v.nodes, n)
		}
	}
	for _, e := range g.Edges() {
		if e.Probability <= c.RiskThreshold && !e.Fraud {
			continue
		}
		touch(e.From)
		touch(e.To)
		if !v.adj[e.From][e.To] {
			v.adj[e.From][e.To] = true
			v.adj[e.To][e.From] = true
			v.degree[e.From]++
			v.degree[e.To]++
		}
	}
	return v
}

// degreeStats returns the mean and population standard deviation of node
// degree over the risk subgraph.
func (v *riskView) degreeStats() (mean, stdev float64) {
	if len(v.nodes) == 0 {
		return 0, 0
	}
	for _, n := range v.nodes {
		mean += float64(v.degree[n])
	}
	mean /= float64(len(v.nodes))
	for _, n := range v.nodes {
		d := float64(v.degree[n]) - mean
		stdev += d * d
	}
	stdev = math.Sqrt(stdev / float64(len(v.nodes)))
	return mean, stdev
}

// cycleMembers returns the nodes lying on at least one elementary cycle.
// A node is on a cycle exactly when it touches an edge that is not a
// bridge, so one Tarjan lowlink pass over the risk subgraph suffices and
// matches what a cycle-basis union would produce. The result depends only
// on the edge set, not traversal order.
func (v *riskView) cycleMembers() map[string]bool {
	index := make(map[string]int, len(v.nodes))
	low := make(map[string]int, len(v.nodes))
	onCycle := make(map[string]bool)
	counter := 0

	var dfs func(u, parent string)
	dfs = func(u, parent string) {
		counter++
		index[u] = counter
		low[u] = counter
		for w := range v.adj[u] {
			if w == parent {
				continue // simple graph: exactly one edge back to the parent
			}
			if index[w] == 0 {
				dfs(w, u)
				if low[w] < low[u] {
					low[u] = low[w]
				}
				if low[w] <= index[u] {
					// Tree edge inside a cycle.
					onCycle[u] = true
					onCycle[w] = true
				}
			} else {
				if index[w] < low[u] {
					low[u] = index[w]
				}
				// Back edges always close a cycle.
				onCycle[u] = true
				onCycle[w] = true
			}
		}
	}

	for _, n := range v.nodes {
		if index[n] == 0 {
			dfs(n, "")
		}
	}
	return onCycle
}

// components returns connected components in first-seen node order.
func (v *riskView) components() [][]string {
	seen := make(map[string]bool, len(v.nodes))
	var comps [][]string
	for _, start := range v.nodes {
		if seen[start] {
			continue
		}
		comp := []string{start}
		seen[start] = true
		for i := 0; i < len(comp); i++ {
			for nb := range v.adj[comp[i]] {
				if !seen[nb] {
					seen[nb] = true
					comp = append(comp, nb)
				}
			}
		}
		comps = append(comps, comp)
	}
	return comps
}

// clustering returns the local clustering coefficient of a node: the
// fraction of its neighbor pairs that are themselves connected.
func (v *riskView) clustering(n string) float64 {
	k := v.degree[n]
	if k < 2 {
		return 0
	}
	links := 0
	for a := range v.adj[n] {
		for b := range v.adj[n] {
			if a < b && v.adj[a][b] {
				links++
			}
		}
	}
	return 2 * float64(links) / float64(k*(k-1))
}
