package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/promoplaza/redemption-service/internal/domain"
	"github.com/promoplaza/redemption-service/internal/metrics"
	"github.com/promoplaza/redemption-service/internal/repository"
)

// RedemptionService validates scanned codes and commits redemptions. It is
// safe for concurrent use; all shared state lives in the Store, and the
// whole check-then-write sequence of a redemption runs under row locks in a
// single transaction.
type RedemptionService struct {
	store repository.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewRedemptionService(store repository.Store, log zerolog.Logger) *RedemptionService {
	return &RedemptionService{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Redeem resolves the calling principal to its cashier or business-admin
// record and runs the code through RedeemCode. The raw code is parsed up
// front so malformed scans never touch storage.
func (s *RedemptionService) Redeem(ctx context.Context, principal, rawCode string) (domain.RedemptionReceipt, error) {
	if _, err := domain.ParseCode(rawCode); err != nil {
		return domain.RedemptionReceipt{}, err
	}

	actor, err := s.store.ResolveActor(ctx, principal)
	if err != nil {
		return domain.RedemptionReceipt{}, err
	}
	return s.RedeemCode(ctx, actor, rawCode)
}

// RedeemCode runs the redemption state machine for an already resolved
// actor. On success exactly one code is marked used, one promotion counter
// is incremented, and one redemption fact is recorded; on any failure the
// transaction rolls back and nothing changes.
func (s *RedemptionService) RedeemCode(ctx context.Context, actor domain.Actor, rawCode string) (domain.RedemptionReceipt, error) {
	start := time.Now()
	receipt, err := s.redeemCode(ctx, actor, rawCode)
	elapsed := time.Since(start)

	if err != nil {
		metrics.RedemptionRejected(string(domain.KindOf(err)), elapsed)
		s.log.Info().
			Err(err).
			Str("kind", string(domain.KindOf(err))).
			Int64("actor_id", actor.ID).
			Int64("business_id", actor.BusinessID).
			Msg("redemption rejected")
		return domain.RedemptionReceipt{}, err
	}

	metrics.RedemptionAccepted(elapsed)
	s.log.Info().
		Int64("redemption_id", receipt.RedemptionID).
		Int64("promotion_id", receipt.PromotionID).
		Int64("user_id", receipt.UserID).
		Int64("actor_id", actor.ID).
		Str("actor_kind", string(actor.Kind)).
		Msg("redemption accepted")
	return receipt, nil
}

func (s *RedemptionService) redeemCode(ctx context.Context, actor domain.Actor, rawCode string) (domain.RedemptionReceipt, error) {
	codeID, err := domain.ParseCode(rawCode)
	if err != nil {
		return domain.RedemptionReceipt{}, err
	}
	if !actor.Associated() {
		return domain.RedemptionReceipt{}, domain.ErrActorNotAssociated
	}

	var receipt domain.RedemptionReceipt
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		code, err := q.GetCodeForUpdate(ctx, codeID)
		if err != nil {
			return err
		}

		now := s.now()
		if now.After(code.ExpiresAt()) {
			// The code stays unused; an expired code replayed later still
			// reads as expired, not as not-found.
			return domain.ErrCodeExpired
		}

		promo, err := q.GetPromotionForUpdate(ctx, code.PromotionID, actor.BusinessID)
		if err != nil {
			return err
		}

		if promo.TotalLimit != nil && promo.RedeemedCount >= *promo.TotalLimit {
			return domain.ErrPromotionExhausted
		}
		if promo.PerUserLimit != nil {
			prior, err := q.CountRedemptions(ctx, promo.ID, code.UserID)
			if err != nil {
				return err
			}
			if prior >= int64(*promo.PerUserLimit) {
				return domain.ErrUserLimitReached
			}
		}

		if err := q.MarkCodeUsed(ctx, code.ID); err != nil {
			return err
		}
		if err := q.IncrementRedeemed(ctx, promo.ID); err != nil {
			return err
		}
		redemption, err := q.InsertRedemption(ctx, promo.ID, code.UserID, actor, now)
		if err != nil {
			return err
		}

		receipt = domain.RedemptionReceipt{
			RedemptionID: redemption.ID,
			PromotionID:  promo.ID,
			UserID:       code.UserID,
			RedeemedAt:   redemption.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return domain.RedemptionReceipt{}, err
	}
	return receipt, nil
}
