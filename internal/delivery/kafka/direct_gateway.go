package kafka

import (
	"context"

	"github.com/promoplaza/redemption-service/internal/domain"
	"github.com/promoplaza/redemption-service/internal/usecase"
)

// DirectGateway calls the service in process, for deployments without a
// broker.
type DirectGateway struct {
	service *usecase.RedemptionService
}

func NewDirectGateway(service *usecase.RedemptionService) usecase.RedemptionGateway {
	return &DirectGateway{service: service}
}

func (g *DirectGateway) Redeem(ctx context.Context, principal, rawCode string) (domain.RedemptionReceipt, error) {
	return g.service.Redeem(ctx, principal, rawCode)
}

func (g *DirectGateway) IssueCode(ctx context.Context, userID, promotionID int64) (domain.RedemptionCode, error) {
	return g.service.IssueCode(ctx, userID, promotionID)
}

func (g *DirectGateway) GetPromotion(ctx context.Context, id int64) (domain.Promotion, error) {
	return g.service.GetPromotion(ctx, id)
}
