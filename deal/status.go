package deal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/undo"
)

// Outcome reports how the gate handled a transition request.
type Outcome string

const (
	// OutcomeApplied means the status change committed.
	OutcomeApplied Outcome = "applied"
	// OutcomeAwaitingConfirmation means the order-received transition is
	// parked until the confirmation step supplies month and amount.
	OutcomeAwaitingConfirmation Outcome = "awaiting-confirmation"
	// OutcomeUnchanged means the deal already held the requested status;
	// nothing was written and no log entry was appended.
	OutcomeUnchanged Outcome = "unchanged"
)

// TransitionResult carries the outcome and the deal as the gate last saw it.
type TransitionResult struct {
	Outcome Outcome
	Deal    Deal
}

// OrderConfirmation is the payload that lets the gated order-received
// transition commit.
type OrderConfirmation struct {
	DealID     string
	OrderMonth string // "YYYY-MM"
	// OrderAmount is in whole currency units and must be positive.
	OrderAmount int64
}

// StatusService is the transition gate. Every committed transition stamps
// updated_at, appends one log entry describing the change, and records a
// compensating command. The order-received transition never commits through
// RequestTransition; it waits for ConfirmOrder.
type StatusService struct {
	repo    Repository
	log     ActionLog
	history *undo.Stack
	now     func() time.Time
}

// NewStatusService wires the gate. A nil repo defaults to the Postgres
// implementation over pool.
func NewStatusService(pool *pgxpool.Pool, repo Repository, log ActionLog, history *undo.Stack) *StatusService {
	if repo == nil {
		repo = NewRepository(pool)
	}
	return &StatusService{
		repo:    repo,
		log:     log,
		history: history,
		now:     time.Now,
	}
}

// WithClock overrides the order-confirmation timestamp source.
func (s *StatusService) WithClock(now func() time.Time) *StatusService {
	s.now = now
	return s
}

// RequestTransition validates and applies a status change. Requesting the
// deal's current status is a no-op; requesting order-received returns
// AwaitingConfirmation without touching the deal.
func (s *StatusService) RequestTransition(ctx context.Context, dealID string, target Status) (TransitionResult, error) {
	if dealID == "" {
		return TransitionResult{}, fmt.Errorf("%w: deal id required", ErrValidation)
	}
	if !target.Valid() {
		return TransitionResult{}, fmt.Errorf("%w: unknown status %q", ErrValidation, target)
	}

	d, err := s.repo.Get(ctx, dealID)
	if err != nil {
		return TransitionResult{}, err
	}

	if d.Status == target {
		return TransitionResult{Outcome: OutcomeUnchanged, Deal: d}, nil
	}
	if d.Status.Terminal() {
		return TransitionResult{}, fmt.Errorf("%w: deal is %s, no further transitions", ErrValidation, d.Status)
	}
	if target == StatusOrderReceived {
		return TransitionResult{Outcome: OutcomeAwaitingConfirmation, Deal: d}, nil
	}

	updated, err := s.commit(ctx, d, target, nil)
	if err != nil {
		return TransitionResult{}, err
	}
	return TransitionResult{Outcome: OutcomeApplied, Deal: updated}, nil
}

// ConfirmOrder commits the gated order-received transition. Nothing is
// written until this point; an abandoned confirmation leaves the deal
// untouched. A non-positive amount or an unparsable month is rejected with
// no state change.
func (s *StatusService) ConfirmOrder(ctx context.Context, c OrderConfirmation) (Deal, error) {
	if c.DealID == "" {
		return Deal{}, fmt.Errorf("%w: deal id required", ErrValidation)
	}
	if c.OrderAmount <= 0 {
		return Deal{}, fmt.Errorf("%w: order amount must be positive", ErrValidation)
	}
	if _, err := time.Parse("2006-01", c.OrderMonth); err != nil {
		return Deal{}, fmt.Errorf("%w: order month must be YYYY-MM", ErrValidation)
	}

	d, err := s.repo.Get(ctx, c.DealID)
	if err != nil {
		return Deal{}, err
	}
	if d.Status == StatusOrderReceived {
		return d, nil
	}
	if d.Status.Terminal() {
		return Deal{}, fmt.Errorf("%w: deal is %s, no further transitions", ErrValidation, d.Status)
	}

	return s.commit(ctx, d, StatusOrderReceived, &c)
}

func (s *StatusService) commit(ctx context.Context, d Deal, target Status, order *OrderConfirmation) (Deal, error) {
	before := d

	next := d
	next.Status = target
	if order != nil {
		confirmedAt := s.now()
		next.OrderConfirmedAt = &confirmedAt
		month := order.OrderMonth
		next.OrderMonth = &month
		amount := order.OrderAmount
		next.OrderAmount = &amount
	}

	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return Deal{}, err
	}

	var logEntryIDs []string
	if s.log != nil {
		description := fmt.Sprintf("status changed: %s -> %s", before.Status, target)
		entryID, err := s.log.Record(ctx, updated, "status-change", description)
		if err != nil {
			return Deal{}, fmt.Errorf("deal: append transition log: %w", err)
		}
		logEntryIDs = append(logEntryIDs, entryID)
	}

	if s.history != nil {
		s.history.Record(NewStatusChangeCommand(s.repo, s.log, before, logEntryIDs...))
	}

	return updated, nil
}
