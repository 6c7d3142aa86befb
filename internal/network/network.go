// Package network projects enriched groups into a counterparty graph.
package network

import (
	"sort"

	"github.com/opensource-finance/explorer/internal/domain"
	"github.com/opensource-finance/explorer/internal/enrich"
)

// LabelLength is the maximum counterparty label length in characters.
const LabelLength = 24

type edgeKey struct {
	source, target string
}

type edgeAccumulator struct {
	amount     float64
	count      int
	directions map[string]struct{}
}

// builder keeps nodes and edges in first-seen order.
type builder struct {
	nodes     []domain.NetworkNode
	nodeIndex map[string]int
	edges     []edgeKey
	edgeIndex map[edgeKey]*edgeAccumulator
}

// Build creates the graph for a filtered group set. Groups without an id
// are skipped. Group nodes are highlighted when highlight is set and the
// group id is in reportedIDs.
func Build(groups []domain.EnrichedGroup, reportedIDs []string, highlight bool) domain.Network {
	reported := make(map[string]bool, len(reportedIDs))
	for _, id := range reportedIDs {
		reported[id] = true
	}

	b := &builder{
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[edgeKey]*edgeAccumulator),
	}

	for i := range groups {
		g := &groups[i]
		id := g.ID()
		if id == "" {
			continue
		}

		m := g.Metrics
		riskScore, memberCount, totalAmount := m.RiskScore, m.MemberCount, m.TotalAmount
		label := g.DisplayName
		if label == "" {
			label = id
		}
		b.putNode(domain.NetworkNode{
			ID:          id,
			Label:       label,
			Kind:        domain.NodeKindGroup,
			RiskScore:   &riskScore,
			MemberCount: &memberCount,
			TotalAmount: &totalAmount,
			Highlight:   highlight && reported[id],
		})

		for _, tx := range g.Transactions {
			if tx.CounterpartyID == "" {
				continue
			}
			b.addCounterparty(tx.CounterpartyID)
			b.addEdge(id, tx.Transaction)
		}
	}

	return b.network()
}

// putNode inserts a node or overwrites an existing one in place.
func (b *builder) putNode(node domain.NetworkNode) {
	if idx, ok := b.nodeIndex[node.ID]; ok {
		b.nodes[idx] = node
		return
	}
	b.nodeIndex[node.ID] = len(b.nodes)
	b.nodes = append(b.nodes, node)
}

func (b *builder) addCounterparty(id string) {
	if _, ok := b.nodeIndex[id]; ok {
		return
	}
	b.putNode(domain.NetworkNode{
		ID:    id,
		Label: truncate(id, LabelLength),
		Kind:  domain.NodeKindCounterparty,
	})
}

func (b *builder) addEdge(groupID string, tx domain.Transaction) {
	direction := domain.NormalizeDirection(tx.Direction)

	key := edgeKey{source: groupID, target: tx.CounterpartyID}
	if domain.IsIncoming(direction) {
		key = edgeKey{source: tx.CounterpartyID, target: groupID}
	}

	acc, ok := b.edgeIndex[key]
	if !ok {
		acc = &edgeAccumulator{directions: make(map[string]struct{})}
		b.edgeIndex[key] = acc
		b.edges = append(b.edges, key)
	}
	acc.amount += tx.AmountOrZero()
	acc.count++
	if direction != "" {
		acc.directions[direction] = struct{}{}
	}
}

func (b *builder) network() domain.Network {
	edges := make([]domain.NetworkEdge, 0, len(b.edges))
	for _, key := range b.edges {
		acc := b.edgeIndex[key]
		directions := make([]string, 0, len(acc.directions))
		for d := range acc.directions {
			directions = append(directions, d)
		}
		sort.Strings(directions)

		edges = append(edges, domain.NetworkEdge{
			Source:     key.source,
			Target:     key.target,
			Amount:     enrich.RoundAmount(acc.amount),
			Count:      acc.count,
			Directions: directions,
		})
	}

	nodes := b.nodes
	if nodes == nil {
		nodes = []domain.NetworkNode{}
	}
	return domain.Network{Nodes: nodes, Edges: edges}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
