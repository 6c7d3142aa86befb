package domain

// Node kinds in the counterparty network.
const (
	NodeKindGroup        = "group"
	NodeKindCounterparty = "counterparty"
)

// NetworkNode is a group or counterparty vertex. Counterparty nodes carry
// only an identifier and a label.
type NetworkNode struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Kind        string   `json:"kind"`
	RiskScore   *int     `json:"risk_score"`
	MemberCount *int     `json:"member_count"`
	TotalAmount *float64 `json:"total_amount"`
	Highlight   bool     `json:"highlight"`
}

// NetworkEdge is a money flow from Source to Target, merged over every
// transaction between that ordered pair.
type NetworkEdge struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Amount     float64  `json:"amount"`
	Count      int      `json:"count"`
	Directions []string `json:"directions"`
}

// Network is the graph payload built per request.
type Network struct {
	Nodes []NetworkNode `json:"nodes"`
	Edges []NetworkEdge `json:"edges"`
}
