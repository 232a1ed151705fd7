package casting

import (
	"context"

	"github.com/google/uuid"
)

// Service implements the engine's side-effect contract: register on deal
// creation, unregister when that creation is compensated.
type Service struct {
	repo        Repository
	idGenerator func() string
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:        repo,
		idGenerator: func() string { return uuid.NewString() },
	}
}

// WithIDGenerator overrides proposal id generation, for deterministic tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

// Register creates the linked proposal with an empty influencer list and
// returns its id so the caller can capture it for compensation.
func (s *Service) Register(ctx context.Context, dealID, productName, proposalMenuName string) (string, error) {
	created, err := s.repo.Create(ctx, Proposal{
		ID:               s.idGenerator(),
		DealID:           dealID,
		ProductName:      productName,
		ProposalMenuName: proposalMenuName,
		InfluencerIDs:    []string{},
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// Unregister deletes the proposal created as a side effect.
func (s *Service) Unregister(ctx context.Context, proposalID string) error {
	return s.repo.Delete(ctx, proposalID)
}

// GetByDeal exposes the proposal for the casting screens.
func (s *Service) GetByDeal(ctx context.Context, dealID string) (Proposal, error) {
	return s.repo.GetByDeal(ctx, dealID)
}
