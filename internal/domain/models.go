package domain

import "time"

// ActorKind tags the two kinds of principals allowed to validate a scanned
// code at point of sale.
type ActorKind string

const (
	ActorCashier       ActorKind = "cashier"
	ActorBusinessAdmin ActorKind = "business_admin"
)

// Actor is a resolved redeeming principal. BusinessID is zero when the
// principal exists but has no business linked to it yet.
type Actor struct {
	ID         int64
	Kind       ActorKind
	BusinessID int64
}

// Associated reports whether the actor can redeem on behalf of a business.
func (a Actor) Associated() bool {
	return a.BusinessID != 0
}

// RedemptionCode is a single-use, time-limited token proving that a user
// reserved a specific promotion. Once Used flips to true it never reverts.
type RedemptionCode struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	PromotionID int64     `json:"promotion_id"`
	Code        string    `json:"code"`
	CreatedAt   time.Time `json:"created_at"`
	Used        bool      `json:"used"`
}

// ExpiresAt is the instant after which the code can no longer be redeemed.
func (c RedemptionCode) ExpiresAt() time.Time {
	return c.CreatedAt.Add(CodeTTL)
}

// Promotion holds the redemption limits and the running counter the
// validator enforces. Nil limits mean unlimited. RedeemedCount is only
// trustworthy when read under a row lock.
type Promotion struct {
	ID            int64      `json:"id"`
	BusinessID    int64      `json:"business_id"`
	Name          string     `json:"name"`
	TotalLimit    *int32     `json:"total_limit,omitempty"`
	PerUserLimit  *int32     `json:"per_user_limit,omitempty"`
	RedeemedCount int32      `json:"redeemed_count"`
	Active        bool       `json:"active"`
	StartsAt      *time.Time `json:"starts_at,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
}

// Redemption is the immutable audit fact recording one successful code
// consumption: which promotion, which user, and which actor validated it.
type Redemption struct {
	ID          int64     `json:"id"`
	PromotionID int64     `json:"promotion_id"`
	UserID      int64     `json:"user_id"`
	ActorID     int64     `json:"actor_id"`
	ActorKind   ActorKind `json:"actor_kind"`
	CreatedAt   time.Time `json:"created_at"`
}

// RedemptionReceipt is what a successful RedeemCode call hands back to the
// cashier client.
type RedemptionReceipt struct {
	RedemptionID int64     `json:"redemption_id"`
	PromotionID  int64     `json:"promotion_id"`
	UserID       int64     `json:"user_id"`
	RedeemedAt   time.Time `json:"redeemed_at"`
}
