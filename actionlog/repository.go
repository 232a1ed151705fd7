package actionlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrEntryNotFound is returned when no entry row exists for the id.
	ErrEntryNotFound = errors.New("actionlog: entry not found")
	// ErrStoreUnavailable wraps record-store failures.
	ErrStoreUnavailable = errors.New("actionlog: record store unavailable")
)

// Repository persists log entries.
type Repository interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	Delete(ctx context.Context, id string) error
	ListByDeal(ctx context.Context, dealID string) ([]Entry, error)
}

const entryColumns = `id, deal_id, deal_key, product_name, proposal_menu_name, action_label,
	description, status, next_action_text, next_action_at,
	internal_owner, partner_owner, referrer_name, created_at`

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Append(ctx context.Context, e Entry) (Entry, error) {
	query := fmt.Sprintf(`
		INSERT INTO action_log_entries (id, deal_id, deal_key, product_name, proposal_menu_name,
			action_label, description, status, next_action_text, next_action_at,
			internal_owner, partner_owner, referrer_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING %s
	`, entryColumns)

	out, err := scanEntry(r.pool.QueryRow(ctx, query,
		e.ID,
		e.DealID,
		e.DealKey,
		e.ProductName,
		e.ProposalMenuName,
		e.ActionLabel,
		e.Description,
		e.Status,
		e.NextActionText,
		e.NextActionAt,
		e.InternalOwner,
		e.PartnerOwner,
		e.ReferrerName,
	))
	if err != nil {
		return Entry{}, fmt.Errorf("actionlog: append: %w", errors.Join(ErrStoreUnavailable, err))
	}
	return out, nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM action_log_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("actionlog: delete: %w", errors.Join(ErrStoreUnavailable, err))
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *PGRepository) ListByDeal(ctx context.Context, dealID string) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM action_log_entries
		WHERE deal_id = $1
		ORDER BY created_at DESC
	`, entryColumns)

	rows, err := r.pool.Query(ctx, query, dealID)
	if err != nil {
		return nil, fmt.Errorf("actionlog: list by deal: %w", errors.Join(ErrStoreUnavailable, err))
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("actionlog: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("actionlog: list by deal: %w", errors.Join(ErrStoreUnavailable, err))
	}
	return entries, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	return e, row.Scan(
		&e.ID,
		&e.DealID,
		&e.DealKey,
		&e.ProductName,
		&e.ProposalMenuName,
		&e.ActionLabel,
		&e.Description,
		&e.Status,
		&e.NextActionText,
		&e.NextActionAt,
		&e.InternalOwner,
		&e.PartnerOwner,
		&e.ReferrerName,
		&e.CreatedAt,
	)
}
