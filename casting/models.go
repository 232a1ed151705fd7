// Package casting holds the casting-proposal records auto-registered when a
// deal is created under the reserved influencer-casting menu.
package casting

import "time"

// Proposal links a deal to its influencer shortlist. Auto-registration
// starts the list empty; the casting screens fill it in later.
type Proposal struct {
	ID               string
	DealID           string
	ProductName      string
	ProposalMenuName string
	InfluencerIDs    []string
	CreatedAt        time.Time
}
