package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/promoplaza/redemption-service/internal/domain"
	"github.com/promoplaza/redemption-service/internal/usecase"
)

type RedeemRequest struct {
	ActorToken string `json:"actor_token"`
	Code       string `json:"codigo"`
}

type RedeemResponse struct {
	Success      bool  `json:"success"`
	RedemptionID int64 `json:"redemption_id"`
}

type IssueCodeRequest struct {
	UserID      int64 `json:"user_id"`
	PromotionID int64 `json:"promotion_id"`
}

type IssueCodeResponse struct {
	CodeID    int64  `json:"code_id"`
	Code      string `json:"codigo"`
	CreatedAt string `json:"created_at"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

type Handler struct {
	gateway usecase.RedemptionGateway
	log     zerolog.Logger
}

func NewHandler(gateway usecase.RedemptionGateway, log zerolog.Logger) *Handler {
	return &Handler{gateway: gateway, log: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/redeem", h.Redeem)
		r.Post("/codes", h.IssueCode)
		r.Get("/promotions/{id}", h.GetPromotion)
	})
}

func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.KindInvalidCodeFormat, "invalid request body")
		return
	}

	receipt, err := h.gateway.Redeem(r.Context(), req.ActorToken, req.Code)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RedeemResponse{
		Success:      true,
		RedemptionID: receipt.RedemptionID,
	})
}

func (h *Handler) IssueCode(w http.ResponseWriter, r *http.Request) {
	var req IssueCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.KindInternal, "invalid request body")
		return
	}

	code, err := h.gateway.IssueCode(r.Context(), req.UserID, req.PromotionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, IssueCodeResponse{
		CodeID:    code.ID,
		Code:      code.Code,
		CreatedAt: code.CreatedAt.Format(time.RFC3339),
	})
}

func (h *Handler) GetPromotion(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, domain.KindPromotionNotFound, "invalid promotion id")
		return
	}

	promotion, err := h.gateway.GetPromotion(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, promotion)
}

func writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	writeError(w, statusFor(kind), kind, err.Error())
}

// statusFor maps the error taxonomy onto HTTP statuses. Expiry and
// ownership failures are forbidden rather than not-found, mirroring what
// the cashier app expects; timeouts advertise retryability with 503.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidCodeFormat:
		return http.StatusBadRequest
	case domain.KindActorNotAssociated, domain.KindCodeNotFound, domain.KindPromotionNotFound:
		return http.StatusNotFound
	case domain.KindCodeExpired, domain.KindPromotionNotOwned:
		return http.StatusForbidden
	case domain.KindPromotionExhausted, domain.KindUserLimitReached:
		return http.StatusConflict
	case domain.KindInfrastructureTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, kind domain.Kind, message string) {
	writeJSON(w, status, ErrorResponse{
		Success: false,
		Message: message,
		Kind:    string(kind),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
