// Package consortium resolves which tenants a harvest visits and in what
// order. A central (hub) tenant fans out to its non-central members; everyone
// else harvests alone.
package consortium

import (
	"context"
	"fmt"
)

// Member is one membership row: a tenant and whether it is the consortium's
// central hub.
type Member struct {
	TenantID string `json:"tenantId"`
	Central  bool   `json:"central"`
}

// Store looks up consortium membership. An empty result means the tenant has
// no consortium affiliation; that is a fact, not an error.
type Store interface {
	Members(ctx context.Context, tenantID string) ([]Member, error)
}

// Sequence is the ordered, de-duplicated run of tenants one harvest walks.
type Sequence []string

// Next returns the tenant after position pos, if any.
func (s Sequence) Next(pos int) (string, bool) {
	if pos+1 < len(s) {
		return s[pos+1], true
	}
	return "", false
}

// LookupError wraps a membership lookup failure. Without membership the
// gateway cannot decide where to route, so the transport maps this to 503.
type LookupError struct {
	TenantID string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("consortium lookup for tenant %q: %v", e.TenantID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
