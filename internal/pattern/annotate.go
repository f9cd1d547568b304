package pattern

import "github.com/yjing-lab/pulsegraph/internal/graph"

// NodeView is what the rendering collaborator receives per account: the
// category decides the color class, the renderer decides the palette.
type NodeView struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Category   Category `json:"category"`
	ColorClass string   `json:"color_class"`
}

// EdgeView is the per-edge rendering contract.
type EdgeView struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	TransactionID string  `json:"transaction_id"`
	Probability   float64 `json:"probability"`
}

// NetworkView is a fully annotated graph ready for rendering.
type NetworkView struct {
	Nodes []NodeView `json:"nodes"`
	Edges []EdgeView `json:"edges"`
}

// DisplayName returns the human label shown next to an account.
func (c Category) DisplayName() string {
	switch c {
	case F1Star:
		return "Star fraud hub"
	case F2Chain:
		return "Chain pass-through"
	case F3Cycle:
		return "Cycle member"
	case F4Isolated:
		return "Isolated pair"
	case F5Community:
		return "Dense community"
	case RiskNode:
		return "Risk node"
	default:
		return "Normal"
	}
}

// ColorClass returns the stable styling token for a category.
func (c Category) ColorClass() string {
	switch c {
	case F1Star:
		return "risk-star"
	case F2Chain:
		return "risk-chain"
	case F3Cycle:
		return "risk-cycle"
	case F4Isolated:
		return "risk-isolated"
	case F5Community:
		return "risk-community"
	case RiskNode:
		return "risk-node"
	default:
		return "normal"
	}
}

// Annotate joins a graph with a labeling into the rendering contract,
// preserving the graph's insertion order.
func Annotate(g *graph.Graph, labels map[string]Category) NetworkView {
	view := NetworkView{
		Nodes: make([]NodeView, 0, g.NodeCount()),
		Edges: make([]EdgeView, 0, g.EdgeCount()),
	}
	for _, id := range g.Nodes() {
		cat := LabelOf(labels, id)
		view.Nodes = append(view.Nodes, NodeView{
			ID:         id,
			Label:      cat.DisplayName(),
			Category:   cat,
			ColorClass: cat.ColorClass(),
		})
	}
	for _, e := range g.Edges() {
		view.Edges = append(view.Edges, EdgeView{
			From:          e.From,
			To:            e.To,
			TransactionID: e.TransactionID,
			Probability:   e.Probability,
		})
	}
	return view
}
