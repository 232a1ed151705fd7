package deal

import "time"

// Status is a pipeline stage. The pipeline runs
// prospecting -> appointment-pending -> first-appointment-scheduled ->
// proposal-in-progress -> under-review and then settles into one of
// order-received, lost, on-hold or expired. Lost and expired are terminal.
type Status string

const (
	StatusProspecting        Status = "prospecting"
	StatusAppointmentPending Status = "appointment-pending"
	StatusFirstAppointment   Status = "first-appointment-scheduled"
	StatusProposalInProgress Status = "proposal-in-progress"
	StatusUnderReview        Status = "under-review"
	StatusOrderReceived      Status = "order-received"
	StatusLost               Status = "lost"
	StatusOnHold             Status = "on-hold"
	StatusExpired            Status = "expired"
)

// DefaultStatus is the pipeline's initial stage, assigned when a creating
// caller does not supply one.
const DefaultStatus = StatusProspecting

var knownStatuses = map[Status]bool{
	StatusProspecting:        true,
	StatusAppointmentPending: true,
	StatusFirstAppointment:   true,
	StatusProposalInProgress: true,
	StatusUnderReview:        true,
	StatusOrderReceived:      true,
	StatusLost:               true,
	StatusOnHold:             true,
	StatusExpired:            true,
}

// Valid reports whether s is a member of the status set.
func (s Status) Valid() bool {
	return knownStatuses[s]
}

// Terminal reports whether the pipeline ends at s; no transition leaves a
// terminal stage.
func (s Status) Terminal() bool {
	return s == StatusLost || s == StatusExpired
}

// CastingMenuName is the reserved proposal-menu value that triggers the
// auto-registration of a linked casting proposal on deal creation.
const CastingMenuName = "influencer-casting"

// Deal is the mutable aggregate tracked through the pipeline. One deal
// exists per natural key; creation goes through a lookup-before-create
// check rather than a store-level constraint.
type Deal struct {
	ID               string
	ProductName      string
	ProposalMenuName string
	Status           Status
	InternalOwner    *string
	PartnerOwner     *string
	ReferrerName     *string
	LastContactAt    *time.Time
	NextActionAt     *time.Time
	NextActionText   *string
	OrderConfirmedAt *time.Time
	OrderMonth       *string
	OrderAmount      *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NaturalKey is the composite business key deciding whether an incoming
// action refers to this deal.
func (d Deal) NaturalKey() string {
	return NaturalKey(d.ProductName, d.ProposalMenuName)
}

// NaturalKey derives the composite key for a product/menu pair.
func NaturalKey(productName, proposalMenuName string) string {
	return productName + "_" + proposalMenuName
}

// Filters narrows List queries. Zero values are ignored.
type Filters struct {
	Status       Status
	ReferrerName string
	PartnerOwner string
	Page         int
	PageSize     int
}
