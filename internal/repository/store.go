package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promoplaza/redemption-service/internal/domain"
)

// Store is the storage boundary of the redemption service. Plain reads and
// writes go through the Store directly; the redeem sequence runs inside
// ExecTx so that its row locks cover every read used for a decision.
type Store interface {
	ExecTx(ctx context.Context, fn func(Querier) error) error

	// ResolveActor maps an authenticated principal (username or email) to
	// the cashier or business admin it belongs to. Principals that match
	// nothing, or match a record with no linked business, yield
	// domain.ErrActorNotAssociated.
	ResolveActor(ctx context.Context, principal string) (domain.Actor, error)

	// CreateCode inserts a fresh unused code bound to (user, promotion) and
	// stamps its printable string from the generated row ID.
	CreateCode(ctx context.Context, userID, promotionID int64) (domain.RedemptionCode, error)

	GetPromotion(ctx context.Context, id int64) (domain.Promotion, error)
}

// Querier is the transactional surface used by the redeem state machine.
// The two ForUpdate fetches take exclusive row locks held until the
// surrounding transaction commits or rolls back.
type Querier interface {
	GetCodeForUpdate(ctx context.Context, id int64) (domain.RedemptionCode, error)
	GetPromotionForUpdate(ctx context.Context, id, businessID int64) (domain.Promotion, error)
	CountRedemptions(ctx context.Context, promotionID, userID int64) (int64, error)
	MarkCodeUsed(ctx context.Context, id int64) error
	IncrementRedeemed(ctx context.Context, promotionID int64) error
	InsertRedemption(ctx context.Context, promotionID, userID int64, actor domain.Actor, at time.Time) (domain.Redemption, error)
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so the same query
// methods serve pooled and transactional execution.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type store struct {
	pool *pgxpool.Pool
}

// New returns a Postgres-backed Store.
func New(pool *pgxpool.Pool) Store {
	return &store{pool: pool}
}

func (s *store) ExecTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", storageErr(err))
	}

	q := &queries{db: tx}
	if err := fn(q); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return fmt.Errorf("tx err: %v, rollback err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", storageErr(err))
	}
	return nil
}

func (s *store) ResolveActor(ctx context.Context, principal string) (domain.Actor, error) {
	// Business admins take precedence over cashiers when a principal
	// matches both.
	actor := domain.Actor{Kind: domain.ActorBusinessAdmin}
	err := s.pool.QueryRow(ctx,
		`SELECT id, COALESCE(business_id, 0) FROM business_admins WHERE username = $1 OR email = $1`,
		principal,
	).Scan(&actor.ID, &actor.BusinessID)
	if err == nil {
		return actor, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Actor{}, storageErr(err)
	}

	actor = domain.Actor{Kind: domain.ActorCashier}
	err = s.pool.QueryRow(ctx,
		`SELECT id, business_id FROM cashiers WHERE username = $1 OR email = $1`,
		principal,
	).Scan(&actor.ID, &actor.BusinessID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Actor{}, domain.ErrActorNotAssociated
		}
		return domain.Actor{}, storageErr(err)
	}
	return actor, nil
}

func (s *store) CreateCode(ctx context.Context, userID, promotionID int64) (domain.RedemptionCode, error) {
	var code domain.RedemptionCode

	// The printable string embeds the generated row ID, so insert and
	// stamp run in one small transaction.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.RedemptionCode{}, storageErr(err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO redemption_codes (user_id, promotion_id, code)
		 VALUES ($1, $2, '')
		 RETURNING id, created_at`,
		userID, promotionID,
	).Scan(&code.ID, &code.CreatedAt)
	if err != nil {
		return domain.RedemptionCode{}, storageErr(err)
	}

	code.UserID = userID
	code.PromotionID = promotionID
	code.Code = domain.FormatCode(code.ID)
	if _, err := tx.Exec(ctx,
		`UPDATE redemption_codes SET code = $2 WHERE id = $1`,
		code.ID, code.Code,
	); err != nil {
		return domain.RedemptionCode{}, storageErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.RedemptionCode{}, storageErr(err)
	}
	return code, nil
}

func (s *store) GetPromotion(ctx context.Context, id int64) (domain.Promotion, error) {
	return scanPromotion(s.pool.QueryRow(ctx,
		promotionColumns+` FROM promotions WHERE id = $1`, id,
	), domain.ErrPromotionNotFound)
}

// queries implements Querier over a transaction handle.
type queries struct {
	db DBTX
}

const promotionColumns = `SELECT id, business_id, name, total_limit, per_user_limit, redeemed_count, active, starts_at, ends_at`

func (q *queries) GetCodeForUpdate(ctx context.Context, id int64) (domain.RedemptionCode, error) {
	var c domain.RedemptionCode
	err := q.db.QueryRow(ctx,
		`SELECT id, user_id, promotion_id, code, created_at, used
		   FROM redemption_codes
		  WHERE id = $1 AND used = FALSE
		  FOR UPDATE`,
		id,
	).Scan(&c.ID, &c.UserID, &c.PromotionID, &c.Code, &c.CreatedAt, &c.Used)
	if err != nil {
		// Used and nonexistent codes are indistinguishable on purpose, so a
		// replayed code leaks nothing about prior redemptions.
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RedemptionCode{}, domain.ErrCodeNotFound
		}
		return domain.RedemptionCode{}, storageErr(err)
	}
	return c, nil
}

func (q *queries) GetPromotionForUpdate(ctx context.Context, id, businessID int64) (domain.Promotion, error) {
	return scanPromotion(q.db.QueryRow(ctx,
		promotionColumns+` FROM promotions WHERE id = $1 AND business_id = $2 FOR UPDATE`,
		id, businessID,
	), domain.ErrPromotionNotOwned)
}

func (q *queries) CountRedemptions(ctx context.Context, promotionID, userID int64) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM redemptions WHERE promotion_id = $1 AND user_id = $2`,
		promotionID, userID,
	).Scan(&n)
	if err != nil {
		return 0, storageErr(err)
	}
	return n, nil
}

func (q *queries) MarkCodeUsed(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, `UPDATE redemption_codes SET used = TRUE WHERE id = $1`, id)
	return storageErr(err)
}

func (q *queries) IncrementRedeemed(ctx context.Context, promotionID int64) error {
	_, err := q.db.Exec(ctx,
		`UPDATE promotions SET redeemed_count = redeemed_count + 1 WHERE id = $1`,
		promotionID,
	)
	return storageErr(err)
}

func (q *queries) InsertRedemption(ctx context.Context, promotionID, userID int64, actor domain.Actor, at time.Time) (domain.Redemption, error) {
	r := domain.Redemption{
		PromotionID: promotionID,
		UserID:      userID,
		ActorID:     actor.ID,
		ActorKind:   actor.Kind,
		CreatedAt:   at,
	}
	err := q.db.QueryRow(ctx,
		`INSERT INTO redemptions (promotion_id, user_id, actor_id, actor_kind, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		promotionID, userID, actor.ID, actor.Kind, at,
	).Scan(&r.ID)
	if err != nil {
		return domain.Redemption{}, storageErr(err)
	}
	return r, nil
}

func scanPromotion(row pgx.Row, notFound error) (domain.Promotion, error) {
	var p domain.Promotion
	err := row.Scan(
		&p.ID, &p.BusinessID, &p.Name,
		&p.TotalLimit, &p.PerUserLimit, &p.RedeemedCount,
		&p.Active, &p.StartsAt, &p.EndsAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Promotion{}, notFound
		}
		return domain.Promotion{}, storageErr(err)
	}
	return p, nil
}

// storageErr translates lock and statement timeouts into the retryable
// domain error. Everything else passes through untouched.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.ErrInfrastructureTimeout
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "57014": // lock_not_available, query_canceled
			return domain.ErrInfrastructureTimeout
		}
	}
	return err
}
