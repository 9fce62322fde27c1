package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/promoplaza/redemption-service/internal/config"
	"github.com/promoplaza/redemption-service/internal/domain"
	"github.com/promoplaza/redemption-service/internal/usecase"
)

// Gateway bridges the HTTP layer to the Kafka consumers with a
// request/reply exchange keyed by correlation ID.
type Gateway struct {
	client      *kgo.Client
	cfg         *config.Config
	log         zerolog.Logger
	pendingResp sync.Map
}

func NewGateway(cfg *config.Config, client *kgo.Client, log zerolog.Logger) *Gateway {
	return &Gateway{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

var _ usecase.RedemptionGateway = (*Gateway)(nil)

func (g *Gateway) Redeem(ctx context.Context, principal, rawCode string) (domain.RedemptionReceipt, error) {
	req := RequestPayload{
		SchemaVersion: 1,
		CorrelationID: uuid.New().String(),
		ReplyTo:       g.replyTopic(),
		ActorToken:    principal,
		Code:          rawCode,
	}

	// Keyed by raw code so concurrent scans of one code land on one
	// partition in order.
	resp, err := g.requestReply(ctx, TopicRedeemRequest, []byte(rawCode), req)
	if err != nil {
		return domain.RedemptionReceipt{}, err
	}
	if resp.Status == StatusError {
		return domain.RedemptionReceipt{}, mapError(resp.ErrorCode, resp.ErrorMessage)
	}
	if resp.Receipt == nil {
		return domain.RedemptionReceipt{}, errors.New("malformed reply: missing receipt")
	}
	return *resp.Receipt, nil
}

func (g *Gateway) IssueCode(ctx context.Context, userID, promotionID int64) (domain.RedemptionCode, error) {
	req := RequestPayload{
		SchemaVersion: 1,
		CorrelationID: uuid.New().String(),
		ReplyTo:       g.replyTopic(),
		UserID:        userID,
		PromotionID:   promotionID,
	}

	key := fmt.Sprintf("%d:%d", promotionID, userID)
	resp, err := g.requestReply(ctx, TopicIssueRequest, []byte(key), req)
	if err != nil {
		return domain.RedemptionCode{}, err
	}
	if resp.Status == StatusError {
		return domain.RedemptionCode{}, mapError(resp.ErrorCode, resp.ErrorMessage)
	}
	if resp.IssuedCode == nil {
		return domain.RedemptionCode{}, errors.New("malformed reply: missing issued code")
	}
	return *resp.IssuedCode, nil
}

func (g *Gateway) GetPromotion(ctx context.Context, id int64) (domain.Promotion, error) {
	req := RequestPayload{
		SchemaVersion: 1,
		CorrelationID: uuid.New().String(),
		ReplyTo:       g.replyTopic(),
		PromotionID:   id,
	}

	resp, err := g.requestReply(ctx, TopicGetRequest, []byte(fmt.Sprintf("%d", id)), req)
	if err != nil {
		return domain.Promotion{}, err
	}
	if resp.Status == StatusError {
		return domain.Promotion{}, mapError(resp.ErrorCode, resp.ErrorMessage)
	}
	if resp.Promotion == nil {
		return domain.Promotion{}, errors.New("malformed reply: missing promotion")
	}
	return *resp.Promotion, nil
}

func (g *Gateway) replyTopic() string {
	return fmt.Sprintf("%s%s", TopicReplyPrefix, g.cfg.KafkaInstanceID)
}

func (g *Gateway) requestReply(ctx context.Context, topic string, key []byte, req RequestPayload) (*ResponsePayload, error) {
	respChan := make(chan *ResponsePayload, 1)
	g.pendingResp.Store(req.CorrelationID, respChan)
	defer g.pendingResp.Delete(req.CorrelationID)

	payload, _ := json.Marshal(req)
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: payload,
	}

	if err := g.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return nil, err
	}

	select {
	case resp := <-respChan:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(RequestTimeout):
		return nil, domain.ErrInfrastructureTimeout
	}
}

// HandleResponse routes a reply record to the call waiting on its
// correlation ID. Replies for unknown IDs (e.g. after a local timeout) are
// dropped with a log line.
func (g *Gateway) HandleResponse(payload []byte) {
	var resp ResponsePayload
	if err := json.Unmarshal(payload, &resp); err != nil {
		g.log.Warn().Err(err).Msg("failed to decode reply payload")
		return
	}

	if ch, ok := g.pendingResp.Load(resp.CorrelationID); ok {
		ch.(chan *ResponsePayload) <- &resp
		return
	}

	g.log.Debug().Str("correlation_id", resp.CorrelationID).Msg("no pending request for reply")
}

func mapError(code, message string) error {
	if err, ok := domain.ErrorByKind(domain.Kind(code)); ok {
		return err
	}
	return errors.New(message)
}
