// Package actionlog is the append-only audit trail mirroring every deal
// mutation. Entries denormalize enough of the deal that the log reads
// standalone, without a join back to the deals table.
package actionlog

import "time"

// Entry is one immutable log record. Nothing updates or deletes an entry
// except the compensation path erasing the entries a reverted mutation
// created.
type Entry struct {
	ID               string
	DealID           string
	DealKey          string
	ProductName      string
	ProposalMenuName string
	ActionLabel      string
	Description      string
	Status           string
	NextActionText   *string
	NextActionAt     *time.Time
	InternalOwner    *string
	PartnerOwner     *string
	ReferrerName     *string
	CreatedAt        time.Time
}
