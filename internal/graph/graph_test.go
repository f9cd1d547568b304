package graph

import (
	"errors"
	"testing"

	"github.com/yjing-lab/pulsegraph/internal/store"
)

func tx(id string, orig, dest string, prob float64) store.Transaction {
	return store.Transaction{TransactionID: id, OrigID: orig, DestID: dest, FraudProb: prob, Amount: 100}
}

func TestCanonicalID(t *testing.T) {
	cases := []struct{ in, want string }{
		{"123", "123"},
		{"123.0", "123"},
		{" 123 ", "123"},
		{"123.5", "123.5"},
		{"A001", "A001"},
		{" client-7 ", "client-7"},
		{"", ""},
	}
	for _, c := range cases {
		if got := CanonicalID(c.in); got != c.want {
			t.Errorf("CanonicalID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBuildMergesFormattingVariants(t *testing.T) {
	g := Build([]store.Transaction{
		tx("T1", "123.0", "456", 0.4),
		tx("T2", "123", "789", 0.6),
	})
	if g.NodeCount() != 3 {
		t.Errorf("node count = %d, want 3 (123, 456, 789)", g.NodeCount())
	}
	if !g.HasNode("123") {
		t.Error("expected canonical node 123")
	}
}

func TestBuildLastWriteWins(t *testing.T) {
	g := Build([]store.Transaction{
		tx("T1", "A", "B", 0.2),
		tx("T2", "C", "D", 0.5),
		tx("T3", "B", "A", 0.9), // same pair as T1, reversed direction
	})

	if g.EdgeCount() != 2 {
		t.Fatalf("edge count = %d, want 2", g.EdgeCount())
	}
	edges := g.Edges()
	// The A-B edge keeps its first position but carries T3's payload.
	if edges[0].TransactionID != "T3" || edges[0].Probability != 0.9 {
		t.Errorf("edge 0 = %+v, want representative T3/0.9", edges[0])
	}
	if edges[0].From != "B" || edges[0].To != "A" {
		t.Errorf("edge 0 orientation = %s->%s, want B->A (latest transaction)", edges[0].From, edges[0].To)
	}
	if edges[1].TransactionID != "T2" {
		t.Errorf("edge 1 = %+v, want T2", edges[1])
	}
}

func TestBuildSkipsSelfLoops(t *testing.T) {
	g := Build([]store.Transaction{
		tx("T1", "A", "A", 0.9),
		tx("T2", "A", "B", 0.5),
	})
	if g.EdgeCount() != 1 {
		t.Errorf("edge count = %d, want 1 (self loop dropped)", g.EdgeCount())
	}
}

func TestBuildInsertionOrder(t *testing.T) {
	g := Build([]store.Transaction{
		tx("T1", "C", "A", 0.1),
		tx("T2", "B", "C", 0.2),
	})
	nodes := g.Nodes()
	want := []string{"C", "A", "B"}
	for i := range want {
		if nodes[i] != want[i] {
			t.Fatalf("node order = %v, want %v", nodes, want)
		}
	}
}

func egoFixture() *Graph {
	return Build([]store.Transaction{
		tx("T1", "center", "X", 0.9), // center pays X
		tx("T2", "Y", "center", 0.8), // Y pays center
		tx("T3", "X", "Y", 0.7),      // neighbor-to-neighbor
		tx("T4", "X", "Z", 0.6),      // outside the 1-hop view
	})
}

func TestEgoRoleOrigin(t *testing.T) {
	sub, err := egoFixture().Ego("center", RoleOrigin)
	if err != nil {
		t.Fatalf("Ego: %v", err)
	}
	if !sub.HasNode("X") || sub.HasNode("Y") || sub.HasNode("Z") {
		t.Errorf("origin view nodes = %v, want center and X only", sub.Nodes())
	}
	if sub.EdgeCount() != 1 {
		t.Errorf("origin view edges = %d, want 1", sub.EdgeCount())
	}
}

func TestEgoRoleDestination(t *testing.T) {
	sub, err := egoFixture().Ego("center", RoleDestination)
	if err != nil {
		t.Fatalf("Ego: %v", err)
	}
	if !sub.HasNode("Y") || sub.HasNode("X") {
		t.Errorf("destination view nodes = %v, want center and Y only", sub.Nodes())
	}
}

func TestEgoRoleBothIsSuperset(t *testing.T) {
	g := egoFixture()
	both, err := g.Ego("center", RoleBoth)
	if err != nil {
		t.Fatalf("Ego both: %v", err)
	}

	for _, role := range []Role{RoleOrigin, RoleDestination} {
		sub, err := g.Ego("center", role)
		if err != nil {
			t.Fatalf("Ego %s: %v", role, err)
		}
		for _, n := range sub.Nodes() {
			if !both.HasNode(n) {
				t.Errorf("node %s in %s view but missing from both view", n, role)
			}
		}
	}

	// Both view also carries the neighbor-to-neighbor edge.
	if !both.HasNode("X") || !both.HasNode("Y") {
		t.Fatalf("both view nodes = %v", both.Nodes())
	}
	if both.HasNode("Z") {
		t.Error("Z is distance 2 and must not appear")
	}
	if both.EdgeCount() != 3 {
		t.Errorf("both view edges = %d, want 3 (T1, T2, T3)", both.EdgeCount())
	}
}

func TestEgoCenterNotFound(t *testing.T) {
	g := egoFixture()
	if _, err := g.Ego("nobody", RoleBoth); !errors.Is(err, ErrCenterNotFound) {
		t.Errorf("got %v, want ErrCenterNotFound", err)
	}
	// A center that only receives has no qualifying edges under origin.
	if _, err := g.Ego("Z", RoleOrigin); !errors.Is(err, ErrCenterNotFound) {
		t.Errorf("got %v, want ErrCenterNotFound for role-filtered miss", err)
	}
}

func TestEgoNormalizesCenter(t *testing.T) {
	g := Build([]store.Transaction{tx("T1", "123", "456", 0.5)})
	sub, err := g.Ego("123.0", RoleBoth)
	if err != nil {
		t.Fatalf("Ego with formatted id: %v", err)
	}
	if sub.Center != "123" {
		t.Errorf("center = %q, want canonical 123", sub.Center)
	}
}

func TestDegreeAndNeighbors(t *testing.T) {
	g := egoFixture()
	deg := g.Degree()
	if deg["X"] != 3 {
		t.Errorf("degree(X) = %d, want 3", deg["X"])
	}
	if deg["Z"] != 1 {
		t.Errorf("degree(Z) = %d, want 1", deg["Z"])
	}
	nb := g.Neighbors("center")
	if len(nb) != 2 || !nb["X"] || !nb["Y"] {
		t.Errorf("neighbors(center) = %v", nb)
	}
}
