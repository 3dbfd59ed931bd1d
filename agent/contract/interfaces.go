package contract

import "context"

// Agent is the uniform contract every specialist implements. Agent internals
// (how the booking agent reaches a database, how the policy agent retrieves
// documents) are behind this boundary.
type Agent interface {
	Name() string
	Execute(ctx context.Context, req AgentRequest) (AgentResponse, error)
}

// Registry resolves an intent to the specialist responsible for it.
type Registry interface {
	AgentFor(intent Intent) (Agent, bool)
}

// ServiceResolution is the catalog's answer for a service-type lookup.
// Ambiguous means the text named a parent category with several
// subcategories; Options lists them for the disambiguation question.
type ServiceResolution struct {
	Category  string   `json:"category,omitempty"`
	Term      string   `json:"term,omitempty"` // synonym span that produced the match
	Matched   bool     `json:"matched"`
	Ambiguous bool     `json:"ambiguous,omitempty"`
	Options   []string `json:"options,omitempty"`
}

// Catalog is the serviceability/catalog collaborator consulted by the
// entity validator.
type Catalog interface {
	IsServiceable(ctx context.Context, pincode string) (bool, error)
	ResolveServiceType(ctx context.Context, text string) (ServiceResolution, error)
}
