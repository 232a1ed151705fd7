package casting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no proposal row exists for the id.
	ErrNotFound = errors.New("casting: not found")
	// ErrStoreUnavailable wraps record-store failures.
	ErrStoreUnavailable = errors.New("casting: record store unavailable")
)

// Repository persists casting proposals.
type Repository interface {
	Create(ctx context.Context, p Proposal) (Proposal, error)
	Delete(ctx context.Context, id string) error
	GetByDeal(ctx context.Context, dealID string) (Proposal, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, p Proposal) (Proposal, error) {
	const query = `
		INSERT INTO casting_proposals (id, deal_id, product_name, proposal_menu_name, influencer_ids)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, deal_id, product_name, proposal_menu_name, influencer_ids, created_at
	`

	out, err := scanProposal(r.pool.QueryRow(ctx, query,
		p.ID,
		p.DealID,
		p.ProductName,
		p.ProposalMenuName,
		p.InfluencerIDs,
	))
	if err != nil {
		return Proposal{}, fmt.Errorf("casting: create: %w", errors.Join(ErrStoreUnavailable, err))
	}
	return out, nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM casting_proposals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("casting: delete: %w", errors.Join(ErrStoreUnavailable, err))
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) GetByDeal(ctx context.Context, dealID string) (Proposal, error) {
	const query = `
		SELECT id, deal_id, product_name, proposal_menu_name, influencer_ids, created_at
		FROM casting_proposals
		WHERE deal_id = $1
	`

	p, err := scanProposal(r.pool.QueryRow(ctx, query, dealID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Proposal{}, ErrNotFound
		}
		return Proposal{}, fmt.Errorf("casting: get by deal: %w", errors.Join(ErrStoreUnavailable, err))
	}
	return p, nil
}

func scanProposal(row pgx.Row) (Proposal, error) {
	var p Proposal
	return p, row.Scan(
		&p.ID,
		&p.DealID,
		&p.ProductName,
		&p.ProposalMenuName,
		&p.InfluencerIDs,
		&p.CreatedAt,
	)
}
