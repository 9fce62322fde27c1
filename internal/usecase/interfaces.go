package usecase

import (
	"context"

	"github.com/promoplaza/redemption-service/internal/domain"
)

// RedemptionGateway is what the HTTP layer talks to. It is either the
// in-process service directly or a Kafka request/reply bridge to a
// consumer running the same service.
type RedemptionGateway interface {
	Redeem(ctx context.Context, principal, rawCode string) (domain.RedemptionReceipt, error)
	IssueCode(ctx context.Context, userID, promotionID int64) (domain.RedemptionCode, error)
	GetPromotion(ctx context.Context, id int64) (domain.Promotion, error)
}

var _ RedemptionGateway = (*RedemptionService)(nil)
