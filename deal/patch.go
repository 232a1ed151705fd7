package deal

import "time"

// Intent is a mutation request against a deal identified by its natural key.
// Optional fields use pointers so "caller didn't mention this field" (nil)
// is distinguishable from "caller wants to clear this field" (pointer to
// the zero value). Omitted fields never overwrite existing values.
type Intent struct {
	ProductName      string
	ProposalMenuName string
	Status           *Status
	InternalOwner    *string
	PartnerOwner     *string
	ReferrerName     *string
	LastContactAt    *time.Time
	NextActionAt     *time.Time
	NextActionText   *string

	// ActionLabel and Description feed the action-log entry paired with
	// the mutation.
	ActionLabel string
	Description string
}

// apply merges the intent's provided fields onto d. Status is handled by the
// caller; the key fields are the lookup key and are never patched.
func (in Intent) apply(d *Deal) {
	d.InternalOwner = patchString(d.InternalOwner, in.InternalOwner)
	d.PartnerOwner = patchString(d.PartnerOwner, in.PartnerOwner)
	d.ReferrerName = patchString(d.ReferrerName, in.ReferrerName)
	d.NextActionText = patchString(d.NextActionText, in.NextActionText)
	d.LastContactAt = patchTime(d.LastContactAt, in.LastContactAt)
	d.NextActionAt = patchTime(d.NextActionAt, in.NextActionAt)
}

func patchString(current, incoming *string) *string {
	if incoming == nil {
		return current
	}
	if *incoming == "" {
		return nil
	}
	v := *incoming
	return &v
}

func patchTime(current, incoming *time.Time) *time.Time {
	if incoming == nil {
		return current
	}
	if incoming.IsZero() {
		return nil
	}
	v := *incoming
	return &v
}
