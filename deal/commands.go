package deal

import (
	"context"
	"fmt"

	"dealflow/undo"
)

// ActionLog is the slice of the action-log surface the engine needs: one
// append per mutation, and id-addressed erasure on the compensation path.
type ActionLog interface {
	Record(ctx context.Context, snapshot Deal, actionLabel, description string) (entryID string, err error)
	Erase(ctx context.Context, entryID string) error
}

// CastingRegistrar handles the influencer-casting side effect: a linked
// casting-proposal record created on deal creation and deleted when that
// creation is compensated.
type CastingRegistrar interface {
	Register(ctx context.Context, dealID, productName, proposalMenuName string) (proposalID string, err error)
	Unregister(ctx context.Context, proposalID string) error
}

// CreateCommand compensates a deal creation: it deletes the deal, every log
// entry the creation appended, and the casting proposal registered as a side
// effect, all identified by ids captured when the command was recorded.
type CreateCommand struct {
	Deals    Repository
	Log      ActionLog
	Castings CastingRegistrar

	DealID            string
	DealKey           string
	LogEntryIDs       []string
	CastingProposalID string
}

func (c *CreateCommand) Kind() undo.Kind { return undo.KindCreate }

func (c *CreateCommand) Description() string {
	return fmt.Sprintf("deal %s creation undone", c.DealKey)
}

func (c *CreateCommand) Revert(ctx context.Context) error {
	if err := c.Deals.Delete(ctx, c.DealID); err != nil {
		return fmt.Errorf("revert create: delete deal: %w", err)
	}
	for _, id := range c.LogEntryIDs {
		if err := c.Log.Erase(ctx, id); err != nil {
			return fmt.Errorf("revert create: erase log entry %s: %w", id, err)
		}
	}
	if c.CastingProposalID != "" {
		if err := c.Castings.Unregister(ctx, c.CastingProposalID); err != nil {
			return fmt.Errorf("revert create: unregister casting proposal: %w", err)
		}
	}
	return nil
}

// SnapshotCommand compensates an edit, a status change, or a deletion by
// writing the captured pre-mutation snapshot back field-for-field and
// erasing the log entries the mutation appended. Restoring a deleted deal
// re-inserts it under its original id.
type SnapshotCommand struct {
	Deals Repository
	Log   ActionLog

	kind        undo.Kind
	description string
	Before      Deal
	LogEntryIDs []string
}

// NewEditCommand records the inverse of a field-merge update.
func NewEditCommand(deals Repository, log ActionLog, before Deal, logEntryIDs ...string) *SnapshotCommand {
	return &SnapshotCommand{
		Deals:       deals,
		Log:         log,
		kind:        undo.KindEdit,
		description: fmt.Sprintf("deal %s edit undone", before.NaturalKey()),
		Before:      before,
		LogEntryIDs: logEntryIDs,
	}
}

// NewStatusChangeCommand records the inverse of a status transition.
func NewStatusChangeCommand(deals Repository, log ActionLog, before Deal, logEntryIDs ...string) *SnapshotCommand {
	return &SnapshotCommand{
		Deals:       deals,
		Log:         log,
		kind:        undo.KindStatusChange,
		description: fmt.Sprintf("deal %s status change undone", before.NaturalKey()),
		Before:      before,
		LogEntryIDs: logEntryIDs,
	}
}

// NewDeleteCommand records the inverse of a deal deletion.
func NewDeleteCommand(deals Repository, log ActionLog, before Deal, logEntryIDs ...string) *SnapshotCommand {
	return &SnapshotCommand{
		Deals:       deals,
		Log:         log,
		kind:        undo.KindDelete,
		description: fmt.Sprintf("deal %s deletion undone", before.NaturalKey()),
		Before:      before,
		LogEntryIDs: logEntryIDs,
	}
}

func (c *SnapshotCommand) Kind() undo.Kind { return c.kind }

func (c *SnapshotCommand) Description() string { return c.description }

func (c *SnapshotCommand) Revert(ctx context.Context) error {
	if err := c.Deals.Restore(ctx, c.Before); err != nil {
		return fmt.Errorf("revert %s: restore snapshot: %w", c.kind, err)
	}
	for _, id := range c.LogEntryIDs {
		if err := c.Log.Erase(ctx, id); err != nil {
			return fmt.Errorf("revert %s: erase log entry %s: %w", c.kind, id, err)
		}
	}
	return nil
}
