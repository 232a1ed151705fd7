package deal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/undo"
)

// ErrValidation is returned for missing or invalid required fields. It is
// never retried and surfaces verbatim to the caller.
var ErrValidation = errors.New("deal: validation")

// Service resolves mutation intents to create-or-update writes keyed by the
// natural key, mirrors every mutation into the action log, and pairs each
// one with a compensating command.
//
// The deal write and its log append are two independent store calls; no
// cross-record transaction is assumed. A crash between the two can leave
// the deal and its log diverged, which is an accepted risk of the store
// contract.
type Service struct {
	repo        Repository
	log         ActionLog
	castings    CastingRegistrar
	history     *undo.Stack
	idGenerator func() string
	logger      *slog.Logger
}

// UpsertResult reports where the intent landed.
type UpsertResult struct {
	Deal    Deal
	Created bool
	// CastingProposalID is set when the reserved influencer-casting menu
	// triggered the auto-registration side effect.
	CastingProposalID string
}

// NewService wires the upsert resolver. A nil repo defaults to the Postgres
// implementation over pool; castings and history may be nil when the caller
// does not need the side effect or undo coverage.
func NewService(pool *pgxpool.Pool, repo Repository, log ActionLog, castings CastingRegistrar, history *undo.Stack) *Service {
	if repo == nil {
		repo = NewRepository(pool)
	}
	return &Service{
		repo:        repo,
		log:         log,
		castings:    castings,
		history:     history,
		idGenerator: func() string { return uuid.NewString() },
		logger:      slog.Default(),
	}
}

// WithIDGenerator overrides deal id generation, for deterministic tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// WithLogger overrides the inconsistency-warning logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Resolve finds the single deal for a natural key, or ErrNotFound. If the
// store holds more than one match (corrupted data) the first by creation
// time wins and an inconsistency warning is logged; this is recognized, not
// fatal.
func (s *Service) Resolve(ctx context.Context, productName, proposalMenuName string) (Deal, error) {
	if productName == "" || proposalMenuName == "" {
		return Deal{}, fmt.Errorf("%w: product name and proposal menu name required", ErrValidation)
	}

	matches, err := s.repo.FindByNaturalKey(ctx, productName, proposalMenuName)
	if err != nil {
		return Deal{}, err
	}
	switch len(matches) {
	case 0:
		return Deal{}, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		s.logger.Warn("multiple deals share one natural key, using the oldest",
			"natural_key", NaturalKey(productName, proposalMenuName),
			"matches", len(matches))
		return matches[0], nil
	}
}

// Upsert resolves the intent by natural key and either creates the deal or
// merges the provided fields onto the existing one. Every successful call
// appends exactly one action-log entry (two when the casting side effect
// fires) and records the paired compensating command.
func (s *Service) Upsert(ctx context.Context, intent Intent) (UpsertResult, error) {
	if intent.ProductName == "" || intent.ProposalMenuName == "" {
		return UpsertResult{}, fmt.Errorf("%w: product name and proposal menu name required", ErrValidation)
	}
	if intent.Status != nil {
		if !intent.Status.Valid() {
			return UpsertResult{}, fmt.Errorf("%w: unknown status %q", ErrValidation, *intent.Status)
		}
		if *intent.Status == StatusOrderReceived {
			return UpsertResult{}, fmt.Errorf("%w: order-received requires the confirmation step", ErrValidation)
		}
	}

	existing, err := s.Resolve(ctx, intent.ProductName, intent.ProposalMenuName)
	switch {
	case err == nil:
		return s.update(ctx, existing, intent)
	case errors.Is(err, ErrNotFound):
		return s.create(ctx, intent)
	default:
		return UpsertResult{}, err
	}
}

func (s *Service) create(ctx context.Context, intent Intent) (UpsertResult, error) {
	d := Deal{
		ID:               s.idGenerator(),
		ProductName:      intent.ProductName,
		ProposalMenuName: intent.ProposalMenuName,
		Status:           DefaultStatus,
	}
	if intent.Status != nil {
		d.Status = *intent.Status
	}
	intent.apply(&d)

	created, err := s.repo.Insert(ctx, d)
	if err != nil {
		return UpsertResult{}, err
	}

	entryID, err := s.emit(ctx, created, intent.ActionLabel, intent.Description)
	if err != nil {
		return UpsertResult{}, err
	}
	var logEntryIDs []string
	if entryID != "" {
		logEntryIDs = append(logEntryIDs, entryID)
	}

	var castingID string
	if s.castings != nil && created.ProposalMenuName == CastingMenuName {
		castingID, err = s.castings.Register(ctx, created.ID, created.ProductName, created.ProposalMenuName)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("deal: register casting proposal: %w", err)
		}
		castingEntryID, err := s.emit(ctx, created, "casting-registration", "casting proposal auto-registered")
		if err != nil {
			return UpsertResult{}, err
		}
		logEntryIDs = append(logEntryIDs, castingEntryID)
	}

	if s.history != nil {
		s.history.Record(&CreateCommand{
			Deals:             s.repo,
			Log:               s.log,
			Castings:          s.castings,
			DealID:            created.ID,
			DealKey:           created.NaturalKey(),
			LogEntryIDs:       logEntryIDs,
			CastingProposalID: castingID,
		})
	}

	return UpsertResult{Deal: created, Created: true, CastingProposalID: castingID}, nil
}

func (s *Service) update(ctx context.Context, existing Deal, intent Intent) (UpsertResult, error) {
	before := existing

	next := existing
	if intent.Status != nil {
		if existing.Status.Terminal() && *intent.Status != existing.Status {
			return UpsertResult{}, fmt.Errorf("%w: deal is %s, no further transitions", ErrValidation, existing.Status)
		}
		next.Status = *intent.Status
	}
	intent.apply(&next)

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return UpsertResult{}, err
	}

	entryID, err := s.emit(ctx, updated, intent.ActionLabel, intent.Description)
	if err != nil {
		return UpsertResult{}, err
	}

	if s.history != nil {
		s.history.Record(NewEditCommand(s.repo, s.log, before, entryID))
	}

	return UpsertResult{Deal: updated, Created: false}, nil
}

// Delete removes a deal, logs the deletion, and records a compensating
// command that re-inserts the captured snapshot.
func (s *Service) Delete(ctx context.Context, dealID string) (Deal, error) {
	if dealID == "" {
		return Deal{}, fmt.Errorf("%w: deal id required", ErrValidation)
	}

	before, err := s.repo.Get(ctx, dealID)
	if err != nil {
		return Deal{}, err
	}

	if err := s.repo.Delete(ctx, dealID); err != nil {
		return Deal{}, err
	}

	entryID, err := s.emit(ctx, before, "deal-deleted", fmt.Sprintf("deal %s deleted", before.NaturalKey()))
	if err != nil {
		return Deal{}, err
	}

	if s.history != nil {
		s.history.Record(NewDeleteCommand(s.repo, s.log, before, entryID))
	}

	return before, nil
}

// Get exposes id lookup for the read side.
func (s *Service) Get(ctx context.Context, dealID string) (Deal, error) {
	return s.repo.Get(ctx, dealID)
}

// List exposes the filtered listing consumed by the view layer.
func (s *Service) List(ctx context.Context, f Filters) ([]Deal, int, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) emit(ctx context.Context, snapshot Deal, label, description string) (string, error) {
	if s.log == nil {
		return "", nil
	}
	entryID, err := s.log.Record(ctx, snapshot, label, description)
	if err != nil {
		return "", fmt.Errorf("deal: append action log: %w", err)
	}
	return entryID, nil
}
