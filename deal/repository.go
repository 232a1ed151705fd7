package deal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no deal row exists for the identifier.
	ErrNotFound = errors.New("deal: not found")
	// ErrStoreUnavailable wraps record-store failures. The engine never
	// retries; the caller decides whether to re-issue the whole mutation.
	ErrStoreUnavailable = errors.New("deal: record store unavailable")
)

// Repository is the Record Store contract the engine is written against.
// Each call is an independent write; the engine deliberately assumes no
// multi-record transaction (see the non-atomicity note in service.go).
type Repository interface {
	// FindByNaturalKey returns every non-deleted deal matching both key
	// fields, oldest first. More than one row means corrupted data; the
	// resolver decides how to proceed.
	FindByNaturalKey(ctx context.Context, productName, proposalMenuName string) ([]Deal, error)
	Get(ctx context.Context, id string) (Deal, error)
	// Insert writes a new deal; created_at/updated_at are store-assigned.
	Insert(ctx context.Context, d Deal) (Deal, error)
	// Update overwrites every mutable field and stamps updated_at.
	Update(ctx context.Context, d Deal) (Deal, error)
	// Restore writes the deal back exactly as snapshotted, timestamps
	// included, re-inserting the row if it was deleted. Compensation only.
	Restore(ctx context.Context, d Deal) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filters) ([]Deal, int, error)
}

const dealColumns = `id, product_name, proposal_menu_name, status, internal_owner, partner_owner,
	referrer_name, last_contact_at, next_action_at, next_action_text,
	order_confirmed_at, order_month, order_amount, created_at, updated_at`

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) FindByNaturalKey(ctx context.Context, productName, proposalMenuName string) ([]Deal, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM deals
		WHERE product_name = $1 AND proposal_menu_name = $2
		ORDER BY created_at ASC
	`, dealColumns)

	rows, err := r.pool.Query(ctx, query, productName, proposalMenuName)
	if err != nil {
		return nil, storeErr("find by natural key", err)
	}
	defer rows.Close()

	var deals []Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, storeErr("scan natural key match", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("find by natural key", err)
	}
	return deals, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Deal, error) {
	query := fmt.Sprintf(`SELECT %s FROM deals WHERE id = $1`, dealColumns)

	d, err := scanDeal(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, ErrNotFound
		}
		return Deal{}, storeErr("get", err)
	}
	return d, nil
}

func (r *PGRepository) Insert(ctx context.Context, d Deal) (Deal, error) {
	query := fmt.Sprintf(`
		INSERT INTO deals (id, product_name, proposal_menu_name, status, internal_owner, partner_owner,
			referrer_name, last_contact_at, next_action_at, next_action_text,
			order_confirmed_at, order_month, order_amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING %s
	`, dealColumns)

	out, err := scanDeal(r.pool.QueryRow(ctx, query,
		d.ID,
		d.ProductName,
		d.ProposalMenuName,
		d.Status,
		d.InternalOwner,
		d.PartnerOwner,
		d.ReferrerName,
		d.LastContactAt,
		d.NextActionAt,
		d.NextActionText,
		d.OrderConfirmedAt,
		d.OrderMonth,
		d.OrderAmount,
	))
	if err != nil {
		return Deal{}, storeErr("insert", err)
	}
	return out, nil
}

func (r *PGRepository) Update(ctx context.Context, d Deal) (Deal, error) {
	query := fmt.Sprintf(`
		UPDATE deals
		SET status = $2,
		    internal_owner = $3,
		    partner_owner = $4,
		    referrer_name = $5,
		    last_contact_at = $6,
		    next_action_at = $7,
		    next_action_text = $8,
		    order_confirmed_at = $9,
		    order_month = $10,
		    order_amount = $11,
		    updated_at = now()
		WHERE id = $1
		RETURNING %s
	`, dealColumns)

	out, err := scanDeal(r.pool.QueryRow(ctx, query,
		d.ID,
		d.Status,
		d.InternalOwner,
		d.PartnerOwner,
		d.ReferrerName,
		d.LastContactAt,
		d.NextActionAt,
		d.NextActionText,
		d.OrderConfirmedAt,
		d.OrderMonth,
		d.OrderAmount,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, ErrNotFound
		}
		return Deal{}, storeErr("update", err)
	}
	return out, nil
}

func (r *PGRepository) Restore(ctx context.Context, d Deal) error {
	// Full-field overwrite with the snapshot's own timestamps; undoing a
	// delete re-inserts the row under its original id.
	const query = `
		INSERT INTO deals (id, product_name, proposal_menu_name, status, internal_owner, partner_owner,
			referrer_name, last_contact_at, next_action_at, next_action_text,
			order_confirmed_at, order_month, order_amount, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			product_name = EXCLUDED.product_name,
			proposal_menu_name = EXCLUDED.proposal_menu_name,
			status = EXCLUDED.status,
			internal_owner = EXCLUDED.internal_owner,
			partner_owner = EXCLUDED.partner_owner,
			referrer_name = EXCLUDED.referrer_name,
			last_contact_at = EXCLUDED.last_contact_at,
			next_action_at = EXCLUDED.next_action_at,
			next_action_text = EXCLUDED.next_action_text,
			order_confirmed_at = EXCLUDED.order_confirmed_at,
			order_month = EXCLUDED.order_month,
			order_amount = EXCLUDED.order_amount,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.pool.Exec(ctx, query,
		d.ID,
		d.ProductName,
		d.ProposalMenuName,
		d.Status,
		d.InternalOwner,
		d.PartnerOwner,
		d.ReferrerName,
		d.LastContactAt,
		d.NextActionAt,
		d.NextActionText,
		d.OrderConfirmedAt,
		d.OrderMonth,
		d.OrderAmount,
		d.CreatedAt,
		d.UpdatedAt,
	); err != nil {
		return storeErr("restore", err)
	}
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM deals WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) List(ctx context.Context, f Filters) ([]Deal, int, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > 100 {
		f.PageSize = 20
	}

	where := []string{"1=1"}
	args := []any{}

	if f.Status != "" {
		where = append(where, fmt.Sprintf("status=$%d", len(args)+1))
		args = append(args, f.Status)
	}
	if f.ReferrerName != "" {
		where = append(where, fmt.Sprintf("referrer_name=$%d", len(args)+1))
		args = append(args, f.ReferrerName)
	}
	if f.PartnerOwner != "" {
		where = append(where, fmt.Sprintf("partner_owner=$%d", len(args)+1))
		args = append(args, f.PartnerOwner)
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")

	query := fmt.Sprintf(`SELECT %s FROM deals%s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		dealColumns, whereClause, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, storeErr("list", err)
	}
	defer rows.Close()

	list := []Deal{}
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, 0, storeErr("scan list row", err)
		}
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storeErr("list", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM deals%s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, storeErr("count list", err)
	}

	return list, total, nil
}

func scanDeal(row pgx.Row) (Deal, error) {
	var d Deal
	return d, row.Scan(
		&d.ID,
		&d.ProductName,
		&d.ProposalMenuName,
		&d.Status,
		&d.InternalOwner,
		&d.PartnerOwner,
		&d.ReferrerName,
		&d.LastContactAt,
		&d.NextActionAt,
		&d.NextActionText,
		&d.OrderConfirmedAt,
		&d.OrderMonth,
		&d.OrderAmount,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
}

func storeErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("deal: %s: %w", op, err)
	}
	return fmt.Errorf("deal: %s: %w", op, errors.Join(ErrStoreUnavailable, err))
}
