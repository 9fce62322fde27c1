package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/promoplaza/redemption-service/internal/domain"
	"github.com/promoplaza/redemption-service/internal/usecase"
)

// Consumer pulls redemption requests off the request topics, runs them
// through the service, and produces replies to the requester's reply topic.
type Consumer struct {
	client  *kgo.Client
	service *usecase.RedemptionService
	log     zerolog.Logger
	ready   chan struct{}
}

func NewConsumer(client *kgo.Client, service *usecase.RedemptionService, log zerolog.Logger) *Consumer {
	return &Consumer{
		client:  client,
		service: service,
		log:     log,
		ready:   make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	close(c.ready)
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			c.log.Error().Interface("errors", errs).Msg("consumer poll errors")
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()
			c.processRecord(ctx, record)
		}

		if err := c.client.CommitRecords(ctx, fetches.Records()...); err != nil {
			c.log.Error().Err(err).Msg("failed to commit records")
		}
	}
}

// StartRetry drains the retry topics back onto the main request topics,
// honoring the not-before header.
func (c *Consumer) StartRetry(ctx context.Context) {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return
		}
		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()

			if nextAt, ok := retryNextAt(record); ok && time.Now().Before(nextAt) {
				time.Sleep(time.Until(nextAt))
			}

			mainTopic := strings.TrimSuffix(record.Topic, TopicRetrySuffix) + TopicRequestSuffix
			newRecord := &kgo.Record{
				Topic:   mainTopic,
				Key:     record.Key,
				Value:   record.Value,
				Headers: record.Headers,
			}
			if err := c.client.ProduceSync(ctx, newRecord).FirstErr(); err != nil {
				c.log.Error().Err(err).Msg("failed to requeue retry record")
			}
		}
		if err := c.client.CommitRecords(ctx, fetches.Records()...); err != nil {
			c.log.Error().Err(err).Msg("failed to commit retry records")
		}
	}
}

func (c *Consumer) Ready() <-chan struct{} {
	return c.ready
}

func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) {
	switch record.Topic {
	case TopicRedeemRequest:
		c.handleRedeem(ctx, record)
	case TopicIssueRequest:
		c.handleIssue(ctx, record)
	case TopicGetRequest:
		c.handleGet(ctx, record)
	}
}

func (c *Consumer) handleRedeem(ctx context.Context, record *kgo.Record) {
	var req RequestPayload
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendInvalid(ctx, record)
		return
	}

	receipt, err := c.service.Redeem(ctx, req.ActorToken, req.Code)
	var resp *ResponsePayload
	if err != nil {
		resp = errorResponse(req.CorrelationID, err)
	} else {
		resp = successResponse(req.CorrelationID)
		resp.Receipt = &receipt
	}
	c.sendResponse(ctx, req.ReplyTo, resp)
}

func (c *Consumer) handleIssue(ctx context.Context, record *kgo.Record) {
	var req RequestPayload
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendInvalid(ctx, record)
		return
	}

	code, err := c.service.IssueCode(ctx, req.UserID, req.PromotionID)
	var resp *ResponsePayload
	if err != nil {
		resp = errorResponse(req.CorrelationID, err)
	} else {
		resp = successResponse(req.CorrelationID)
		resp.IssuedCode = &code
	}
	c.sendResponse(ctx, req.ReplyTo, resp)
}

func (c *Consumer) handleGet(ctx context.Context, record *kgo.Record) {
	var req RequestPayload
	if err := json.Unmarshal(record.Value, &req); err != nil {
		c.sendInvalid(ctx, record)
		return
	}

	promotion, err := c.service.GetPromotion(ctx, req.PromotionID)
	var resp *ResponsePayload
	if err != nil {
		resp = errorResponse(req.CorrelationID, err)
	} else {
		resp = successResponse(req.CorrelationID)
		resp.Promotion = &promotion
	}
	c.sendResponse(ctx, req.ReplyTo, resp)
}

func (c *Consumer) sendResponse(ctx context.Context, topic string, resp *ResponsePayload) {
	payload, _ := json.Marshal(resp)
	record := &kgo.Record{
		Topic: topic,
		Value: payload,
	}
	if err := c.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		c.log.Error().Err(err).Str("topic", topic).Msg("failed to send reply")
	}
}

// sendInvalid replies with INVALID_REQUEST when possible and parks the raw
// record on the DLQ.
func (c *Consumer) sendInvalid(ctx context.Context, record *kgo.Record) {
	var req RequestPayload
	_ = json.Unmarshal(record.Value, &req)

	if req.ReplyTo != "" {
		c.sendResponse(ctx, req.ReplyTo, &ResponsePayload{
			SchemaVersion: 1,
			CorrelationID: req.CorrelationID,
			Status:        StatusError,
			ErrorCode:     ErrCodeInvalidRequest,
			ErrorMessage:  "invalid request payload",
		})
	}

	dlqRecord := &kgo.Record{
		Topic: record.Topic + TopicDLQSuffix,
		Value: record.Value,
		Headers: []kgo.RecordHeader{
			{Key: ErrorHeaderKey, Value: []byte("invalid request payload")},
		},
	}
	_ = c.client.ProduceSync(ctx, dlqRecord).FirstErr()
}

func retryNextAt(record *kgo.Record) (time.Time, bool) {
	for _, header := range record.Headers {
		if header.Key != RetryHeaderNextAt {
			continue
		}
		nextAt, err := time.Parse(time.RFC3339, string(header.Value))
		if err != nil {
			return time.Time{}, false
		}
		return nextAt, true
	}

	return time.Time{}, false
}

func successResponse(correlationID string) *ResponsePayload {
	return &ResponsePayload{
		SchemaVersion: 1,
		CorrelationID: correlationID,
		Status:        StatusSuccess,
	}
}

func errorResponse(correlationID string, err error) *ResponsePayload {
	return &ResponsePayload{
		SchemaVersion: 1,
		CorrelationID: correlationID,
		Status:        StatusError,
		ErrorCode:     string(domain.KindOf(err)),
		ErrorMessage:  err.Error(),
	}
}
