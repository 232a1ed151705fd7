package deal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"dealflow/undo"
)

// fakeRepo is an in-memory Record Store with a logical clock standing in for
// server-assigned timestamps.
type fakeRepo struct {
	deals map[string]Deal
	tick  int64
	fail  error // when set, every call fails with it
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{deals: make(map[string]Deal)}
}

func (f *fakeRepo) clock() time.Time {
	f.tick++
	return time.Unix(f.tick, 0).UTC()
}

func (f *fakeRepo) FindByNaturalKey(_ context.Context, productName, proposalMenuName string) ([]Deal, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	var matches []Deal
	for _, d := range f.deals {
		if d.ProductName == productName && d.ProposalMenuName == proposalMenuName {
			matches = append(matches, d)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.Before(matches[j].CreatedAt) })
	return matches, nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (Deal, error) {
	if f.fail != nil {
		return Deal{}, f.fail
	}
	d, ok := f.deals[id]
	if !ok {
		return Deal{}, ErrNotFound
	}
	return d, nil
}

func (f *fakeRepo) Insert(_ context.Context, d Deal) (Deal, error) {
	if f.fail != nil {
		return Deal{}, f.fail
	}
	now := f.clock()
	d.CreatedAt = now
	d.UpdatedAt = now
	f.deals[d.ID] = d
	return d, nil
}

func (f *fakeRepo) Update(_ context.Context, d Deal) (Deal, error) {
	if f.fail != nil {
		return Deal{}, f.fail
	}
	existing, ok := f.deals[d.ID]
	if !ok {
		return Deal{}, ErrNotFound
	}
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = f.clock()
	f.deals[d.ID] = d
	return d, nil
}

func (f *fakeRepo) Restore(_ context.Context, d Deal) error {
	if f.fail != nil {
		return f.fail
	}
	f.deals[d.ID] = d
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id string) error {
	if f.fail != nil {
		return f.fail
	}
	if _, ok := f.deals[id]; !ok {
		return ErrNotFound
	}
	delete(f.deals, id)
	return nil
}

func (f *fakeRepo) List(_ context.Context, _ Filters) ([]Deal, int, error) {
	if f.fail != nil {
		return nil, 0, f.fail
	}
	var all []Deal
	for _, d := range f.deals {
		all = append(all, d)
	}
	return all, len(all), nil
}

type loggedEntry struct {
	snapshot    Deal
	actionLabel string
	description string
}

type fakeLog struct {
	entries map[string]loggedEntry
	order   []string
	nextID  int
}

func newFakeLog() *fakeLog {
	return &fakeLog{entries: make(map[string]loggedEntry)}
}

func (f *fakeLog) Record(_ context.Context, snapshot Deal, actionLabel, description string) (string, error) {
	f.nextID++
	id := fmt.Sprintf("log-%d", f.nextID)
	f.entries[id] = loggedEntry{snapshot: snapshot, actionLabel: actionLabel, description: description}
	f.order = append(f.order, id)
	return id, nil
}

func (f *fakeLog) Erase(_ context.Context, entryID string) error {
	if _, ok := f.entries[entryID]; !ok {
		return errors.New("fakeLog: entry missing")
	}
	delete(f.entries, entryID)
	return nil
}

func (f *fakeLog) last() (string, loggedEntry) {
	for i := len(f.order) - 1; i >= 0; i-- {
		if e, ok := f.entries[f.order[i]]; ok {
			return f.order[i], e
		}
	}
	return "", loggedEntry{}
}

type fakeCastings struct {
	proposals map[string]string // proposal id -> deal id
	nextID    int
}

func newFakeCastings() *fakeCastings {
	return &fakeCastings{proposals: make(map[string]string)}
}

func (f *fakeCastings) Register(_ context.Context, dealID, _, _ string) (string, error) {
	f.nextID++
	id := fmt.Sprintf("casting-%d", f.nextID)
	f.proposals[id] = dealID
	return id, nil
}

func (f *fakeCastings) Unregister(_ context.Context, proposalID string) error {
	if _, ok := f.proposals[proposalID]; !ok {
		return errors.New("fakeCastings: proposal missing")
	}
	delete(f.proposals, proposalID)
	return nil
}

func newTestService(repo *fakeRepo, log *fakeLog, castings *fakeCastings, history *undo.Stack) *Service {
	n := 0
	return NewService(nil, repo, log, castings, history).
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("deal-%d", n)
		})
}

func strPtr(s string) *string { return &s }

func statusPtr(s Status) *Status { return &s }

func TestUpsert_CreateThenMerge(t *testing.T) {
	repo := newFakeRepo()
	log := newFakeLog()
	svc := newTestService(repo, log, nil, nil)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, Intent{
		ProductName:      "Acme",
		ProposalMenuName: "Plan A",
		Status:           statusPtr(StatusProspecting),
		InternalOwner:    strPtr("tanaka"),
		ActionLabel:      "deal-created",
		Description:      "initial contact",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !first.Created {
		t.Fatal("expected first upsert to create")
	}

	second, err := svc.Upsert(ctx, Intent{
		ProductName:      "Acme",
		ProposalMenuName: "Plan A",
		NextActionText:   strPtr("call back"),
		ActionLabel:      "deal-updated",
		Description:      "follow up scheduled",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Created {
		t.Fatal("expected second upsert to update, not create")
	}
	if second.Deal.ID != first.Deal.ID {
		t.Fatalf("expected one deal per natural key, got %s and %s", first.Deal.ID, second.Deal.ID)
	}
	if len(repo.deals) != 1 {
		t.Fatalf("expected exactly one deal in the store, got %d", len(repo.deals))
	}

	got := repo.deals[first.Deal.ID]
	if got.Status != StatusProspecting {
		t.Errorf("expected status preserved, got %s", got.Status)
	}
	if got.InternalOwner == nil || *got.InternalOwner != "tanaka" {
		t.Errorf("expected omitted internal owner preserved, got %v", got.InternalOwner)
	}
	if got.NextActionText == nil || *got.NextActionText != "call back" {
		t.Errorf("expected next action merged, got %v", got.NextActionText)
	}

	// Log parity: two entries, both referencing the same deal, each
	// matching the snapshot at its moment.
	if len(log.entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(log.entries))
	}
	for id, e := range log.entries {
		if e.snapshot.ID != first.Deal.ID {
			t.Errorf("entry %s references deal %s, want %s", id, e.snapshot.ID, first.Deal.ID)
		}
	}
	_, lastEntry := log.last()
	if lastEntry.snapshot.NextActionText == nil || *lastEntry.snapshot.NextActionText != "call back" {
		t.Errorf("expected last entry to denormalize the merged snapshot")
	}
}

func TestUpsert_ClearVersusOmit(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeLog(), nil, nil)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, Intent{
		ProductName:      "Acme",
		ProposalMenuName: "Plan A",
		NextActionText:   strPtr("send quote"),
		ActionLabel:      "deal-created",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Omitted: field survives.
	if _, err := svc.Upsert(ctx, Intent{
		ProductName:      "Acme",
		ProposalMenuName: "Plan A",
		InternalOwner:    strPtr("sato"),
		ActionLabel:      "deal-updated",
	}); err != nil {
		t.Fatalf("omit update: %v", err)
	}
	if d := repo.deals[created.Deal.ID]; d.NextActionText == nil || *d.NextActionText != "send quote" {
		t.Errorf("omitted field was not preserved: %v", d.NextActionText)
	}

	// Pointer to zero value: field cleared.
	if _, err := svc.Upsert(ctx, Intent{
		ProductName:      "Acme",
		ProposalMenuName: "Plan A",
		NextActionText:   strPtr(""),
		ActionLabel:      "deal-updated",
	}); err != nil {
		t.Fatalf("clear update: %v", err)
	}
	if d := repo.deals[created.Deal.ID]; d.NextActionText != nil {
		t.Errorf("expected next action cleared, got %v", *d.NextActionText)
	}
}

func TestUpsert_Validation(t *testing.T) {
	svc := newTestService(newFakeRepo(), newFakeLog(), nil, nil)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, Intent{ProposalMenuName: "Plan A"}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for missing product name, got %v", err)
	}
	if _, err := svc.Upsert(ctx, Intent{ProductName: "Acme"}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for missing menu name, got %v", err)
	}
	if _, err := svc.Upsert(ctx, Intent{
		ProductName:      "Acme",
		ProposalMenuName: "Plan A",
		Status:           statusPtr(StatusOrderReceived),
	}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for order-received via upsert, got %v", err)
	}
	if _, err := svc.Upsert(ctx, Intent{
		ProductName:      "Acme",
		ProposalMenuName: "Plan A",
		Status:           statusPtr(Status("bogus")),
	}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for unknown status, got %v", err)
	}
}

func TestUpsert_StoreUnavailableSurfaces(t *testing.T) {
	repo := newFakeRepo()
	repo.fail = fmt.Errorf("boom: %w", ErrStoreUnavailable)
	svc := newTestService(repo, newFakeLog(), nil, nil)

	_, err := svc.Upsert(context.Background(), Intent{
		ProductName:      "Acme",
		ProposalMenuName: "Plan A",
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable to propagate, got %v", err)
	}
}

func TestUpsert_DuplicateKeyTakesOldest(t *testing.T) {
	repo := newFakeRepo()
	// Two rows share the key: simulated corruption.
	older, _ := repo.Insert(context.Background(), Deal{ID: "deal-old", ProductName: "Acme", ProposalMenuName: "Plan A", Status: StatusProspecting})
	if _, err := repo.Insert(context.Background(), Deal{ID: "deal-new", ProductName: "Acme", ProposalMenuName: "Plan A", Status: StatusUnderReview}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := newTestService(repo, newFakeLog(), nil, nil)
	res, err := svc.Upsert(context.Background(), Intent{
		ProductName:      "Acme",
		ProposalMenuName: "Plan A",
		NextActionText:   strPtr("dedupe later"),
		ActionLabel:      "deal-updated",
	})
	if err != nil {
		t.Fatalf("upsert over duplicates: %v", err)
	}
	if res.Created {
		t.Error("expected update, not create, when duplicates exist")
	}
	if res.Deal.ID != older.ID {
		t.Errorf("expected the oldest row to win, got %s", res.Deal.ID)
	}
}

func TestUpsert_CastingSideEffect(t *testing.T) {
	repo := newFakeRepo()
	log := newFakeLog()
	castings := newFakeCastings()
	history := undo.NewStack(0)
	svc := newTestService(repo, log, castings, history)
	ctx := context.Background()

	res, err := svc.Upsert(ctx, Intent{
		ProductName:      "Acme",
		ProposalMenuName: CastingMenuName,
		ActionLabel:      "deal-created",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.CastingProposalID == "" {
		t.Fatal("expected a casting proposal id")
	}
	if castings.proposals[res.CastingProposalID] != res.Deal.ID {
		t.Errorf("expected proposal linked to deal %s", res.Deal.ID)
	}
	// Two entries: the creation plus the auto-registration.
	if len(log.entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(log.entries))
	}

	// Undo must reverse the side effect symmetrically.
	if _, err := history.Undo(ctx); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if len(repo.deals) != 0 {
		t.Error("expected deal removed on undo")
	}
	if len(log.entries) != 0 {
		t.Errorf("expected all log entries removed on undo, %d left", len(log.entries))
	}
	if len(castings.proposals) != 0 {
		t.Error("expected casting proposal removed on undo")
	}
}

func TestUpsert_UndoRestoresExactSnapshot(t *testing.T) {
	repo := newFakeRepo()
	log := newFakeLog()
	history := undo.NewStack(0)
	svc := newTestService(repo, log, nil, history)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, Intent{
		ProductName:      "Acme",
		ProposalMenuName: "Plan A",
		InternalOwner:    strPtr("tanaka"),
		NextActionText:   strPtr("send quote"),
		ActionLabel:      "deal-created",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before := repo.deals[created.Deal.ID]

	if _, err := svc.Upsert(ctx, Intent{
		ProductName:      "Acme",
		ProposalMenuName: "Plan A",
		InternalOwner:    strPtr("sato"),
		NextActionText:   strPtr(""),
		ActionLabel:      "deal-updated",
	}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	editLogID, _ := log.last()

	desc, err := history.Undo(ctx)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if desc != "deal Acme_Plan A edit undone" {
		t.Errorf("unexpected notification %q", desc)
	}

	after := repo.deals[created.Deal.ID]
	if after.InternalOwner == nil || *after.InternalOwner != "tanaka" {
		t.Errorf("expected internal owner restored, got %v", after.InternalOwner)
	}
	if after.NextActionText == nil || *after.NextActionText != "send quote" {
		t.Errorf("expected next action restored, got %v", after.NextActionText)
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("expected updatedAt restored field-for-field, got %v want %v", after.UpdatedAt, before.UpdatedAt)
	}
	if _, ok := log.entries[editLogID]; ok {
		t.Error("expected the edit's log entry deleted on undo")
	}
}

func TestDelete_LogsAndIsUndoable(t *testing.T) {
	repo := newFakeRepo()
	log := newFakeLog()
	history := undo.NewStack(0)
	svc := newTestService(repo, log, nil, history)
	ctx := context.Background()

	created, err := svc.Upsert(ctx, Intent{
		ProductName:      "Acme",
		ProposalMenuName: "Plan A",
		ActionLabel:      "deal-created",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	snapshot := repo.deals[created.Deal.ID]

	if _, err := svc.Delete(ctx, created.Deal.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(repo.deals) != 0 {
		t.Fatal("expected deal removed")
	}
	deleteLogID, deleteEntry := log.last()
	if deleteEntry.actionLabel != "deal-deleted" {
		t.Errorf("expected deletion logged, got %q", deleteEntry.actionLabel)
	}

	if _, err := history.Undo(ctx); err != nil {
		t.Fatalf("undo delete: %v", err)
	}
	restored, ok := repo.deals[created.Deal.ID]
	if !ok {
		t.Fatal("expected deal re-inserted on undo")
	}
	if !restored.CreatedAt.Equal(snapshot.CreatedAt) || !restored.UpdatedAt.Equal(snapshot.UpdatedAt) {
		t.Error("expected timestamps restored verbatim")
	}
	if _, exists := log.entries[deleteLogID]; exists {
		t.Error("expected the deletion's log entry removed on undo")
	}
}

func TestUndo_LIFOAcrossOperations(t *testing.T) {
	repo := newFakeRepo()
	log := newFakeLog()
	history := undo.NewStack(0)
	svc := newTestService(repo, log, nil, history)
	ctx := context.Background()

	// A: create, B: edit, C: edit.
	if _, err := svc.Upsert(ctx, Intent{ProductName: "Acme", ProposalMenuName: "Plan A", ActionLabel: "a"}); err != nil {
		t.Fatalf("A: %v", err)
	}
	if _, err := svc.Upsert(ctx, Intent{ProductName: "Acme", ProposalMenuName: "Plan A", InternalOwner: strPtr("one"), ActionLabel: "b"}); err != nil {
		t.Fatalf("B: %v", err)
	}
	if _, err := svc.Upsert(ctx, Intent{ProductName: "Acme", ProposalMenuName: "Plan A", InternalOwner: strPtr("two"), ActionLabel: "c"}); err != nil {
		t.Fatalf("C: %v", err)
	}

	// Undo C: owner back to "one".
	if _, err := history.Undo(ctx); err != nil {
		t.Fatalf("undo C: %v", err)
	}
	for _, d := range repo.deals {
		if d.InternalOwner == nil || *d.InternalOwner != "one" {
			t.Errorf("after undoing C expected owner one, got %v", d.InternalOwner)
		}
	}

	// Undo B: owner back to unset.
	if _, err := history.Undo(ctx); err != nil {
		t.Fatalf("undo B: %v", err)
	}
	for _, d := range repo.deals {
		if d.InternalOwner != nil {
			t.Errorf("after undoing B expected owner unset, got %v", *d.InternalOwner)
		}
	}

	// Undo A: deal gone entirely.
	if _, err := history.Undo(ctx); err != nil {
		t.Fatalf("undo A: %v", err)
	}
	if len(repo.deals) != 0 {
		t.Error("after undoing A expected no deals")
	}
	if len(log.entries) != 0 {
		t.Errorf("expected no log entries left, got %d", len(log.entries))
	}

	if _, err := history.Undo(ctx); !errors.Is(err, undo.ErrNothingToUndo) {
		t.Errorf("expected ErrNothingToUndo, got %v", err)
	}
}
