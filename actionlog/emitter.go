package actionlog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"dealflow/deal"
)

// Emitter appends one entry per deal mutation, denormalizing the deal's
// attribution fields at the moment of the write. It satisfies the engine's
// deal.ActionLog contract.
type Emitter struct {
	repo        Repository
	idGenerator func() string
	logger      *slog.Logger
}

func NewEmitter(repo Repository) *Emitter {
	return &Emitter{
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
		logger:      slog.Default(),
	}
}

// WithIDGenerator overrides entry id generation, for deterministic tests.
func (e *Emitter) WithIDGenerator(gen func() string) *Emitter {
	e.idGenerator = gen
	return e
}

// WithLogger overrides the warning logger.
func (e *Emitter) WithLogger(logger *slog.Logger) *Emitter {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Record appends an entry for the deal snapshot and returns its id.
func (e *Emitter) Record(ctx context.Context, snapshot deal.Deal, actionLabel, description string) (string, error) {
	entry := Entry{
		ID:               e.idGenerator(),
		DealID:           snapshot.ID,
		DealKey:          snapshot.NaturalKey(),
		ProductName:      snapshot.ProductName,
		ProposalMenuName: snapshot.ProposalMenuName,
		ActionLabel:      actionLabel,
		Description:      description,
		Status:           string(snapshot.Status),
		NextActionText:   snapshot.NextActionText,
		NextActionAt:     snapshot.NextActionAt,
		InternalOwner:    snapshot.InternalOwner,
		PartnerOwner:     snapshot.PartnerOwner,
		ReferrerName:     snapshot.ReferrerName,
	}

	appended, err := e.repo.Append(ctx, entry)
	if err != nil {
		return "", err
	}
	return appended.ID, nil
}

// Erase removes an entry by id. Only the compensation path calls this. An
// already-missing entry is tolerated with a warning: the log may have
// diverged after a partial failure, and the undo should still complete.
func (e *Emitter) Erase(ctx context.Context, entryID string) error {
	if err := e.repo.Delete(ctx, entryID); err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			e.logger.Warn("log entry referenced by compensation no longer exists", "entry_id", entryID)
			return nil
		}
		return err
	}
	return nil
}

// ListByDeal exposes the read model consumed by listing views.
func (e *Emitter) ListByDeal(ctx context.Context, dealID string) ([]Entry, error) {
	return e.repo.ListByDeal(ctx, dealID)
}
