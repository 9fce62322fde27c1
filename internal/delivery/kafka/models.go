package kafka

import "github.com/promoplaza/redemption-service/internal/domain"

const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

const ErrCodeInvalidRequest = "INVALID_REQUEST"

type RequestPayload struct {
	SchemaVersion int    `json:"schema_version"`
	CorrelationID string `json:"correlation_id"`
	ReplyTo       string `json:"reply_to"`
	ActorToken    string `json:"actor_token,omitempty"`
	Code          string `json:"codigo,omitempty"`
	UserID        int64  `json:"user_id,omitempty"`
	PromotionID   int64  `json:"promotion_id,omitempty"`
}

type ResponsePayload struct {
	SchemaVersion int                       `json:"schema_version"`
	CorrelationID string                    `json:"correlation_id"`
	Status        string                    `json:"status"`
	ErrorCode     string                    `json:"error_code,omitempty"`
	ErrorMessage  string                    `json:"error_message,omitempty"`
	Receipt       *domain.RedemptionReceipt `json:"receipt,omitempty"`
	IssuedCode    *domain.RedemptionCode    `json:"issued_code,omitempty"`
	Promotion     *domain.Promotion         `json:"promotion,omitempty"`
}
