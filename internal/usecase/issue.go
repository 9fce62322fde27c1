package usecase

import (
	"context"

	"github.com/promoplaza/redemption-service/internal/domain"
	"github.com/promoplaza/redemption-service/internal/metrics"
)

// IssueCode creates a fresh single-use code for a user who reserved a
// promotion, and returns it with its printable string. The 5-minute
// validity window starts counting from the stored creation timestamp.
func (s *RedemptionService) IssueCode(ctx context.Context, userID, promotionID int64) (domain.RedemptionCode, error) {
	if _, err := s.store.GetPromotion(ctx, promotionID); err != nil {
		return domain.RedemptionCode{}, err
	}

	code, err := s.store.CreateCode(ctx, userID, promotionID)
	if err != nil {
		return domain.RedemptionCode{}, err
	}

	metrics.CodeIssued()
	s.log.Info().
		Int64("code_id", code.ID).
		Int64("user_id", userID).
		Int64("promotion_id", promotionID).
		Msg("code issued")
	return code, nil
}

// GetPromotion returns a promotion with its live redeemed counter.
func (s *RedemptionService) GetPromotion(ctx context.Context, id int64) (domain.Promotion, error) {
	return s.store.GetPromotion(ctx, id)
}
