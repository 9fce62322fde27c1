package domain

import "errors"

var (
	ErrInvalidCodeFormat     = errors.New("scanned code is malformed")
	ErrActorNotAssociated    = errors.New("actor has no associated business")
	ErrCodeNotFound          = errors.New("code not found or already used")
	ErrCodeExpired           = errors.New("code has expired")
	ErrPromotionNotFound     = errors.New("promotion not found")
	ErrPromotionNotOwned     = errors.New("promotion does not belong to the actor's business")
	ErrPromotionExhausted    = errors.New("promotion redemption limit reached")
	ErrUserLimitReached      = errors.New("per-user redemption limit reached")
	ErrInfrastructureTimeout = errors.New("storage timed out, retry the scan")
)

// Kind is the transport-facing error taxonomy. Both the HTTP handler and the
// Kafka reply payload carry it, so cashier clients can branch without
// parsing messages.
type Kind string

const (
	KindInvalidCodeFormat     Kind = "INVALID_CODE_FORMAT"
	KindActorNotAssociated    Kind = "ACTOR_NOT_ASSOCIATED"
	KindCodeNotFound          Kind = "CODE_NOT_FOUND"
	KindCodeExpired           Kind = "CODE_EXPIRED"
	KindPromotionNotFound     Kind = "PROMOTION_NOT_FOUND"
	KindPromotionNotOwned     Kind = "PROMOTION_NOT_OWNED"
	KindPromotionExhausted    Kind = "PROMOTION_EXHAUSTED"
	KindUserLimitReached      Kind = "USER_LIMIT_REACHED"
	KindInfrastructureTimeout Kind = "INFRASTRUCTURE_TIMEOUT"
	KindInternal              Kind = "INTERNAL_ERROR"
)

// KindOf maps an error to its taxonomy kind. Unknown errors collapse to
// KindInternal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidCodeFormat):
		return KindInvalidCodeFormat
	case errors.Is(err, ErrActorNotAssociated):
		return KindActorNotAssociated
	case errors.Is(err, ErrCodeNotFound):
		return KindCodeNotFound
	case errors.Is(err, ErrCodeExpired):
		return KindCodeExpired
	case errors.Is(err, ErrPromotionNotFound):
		return KindPromotionNotFound
	case errors.Is(err, ErrPromotionNotOwned):
		return KindPromotionNotOwned
	case errors.Is(err, ErrPromotionExhausted):
		return KindPromotionExhausted
	case errors.Is(err, ErrUserLimitReached):
		return KindUserLimitReached
	case errors.Is(err, ErrInfrastructureTimeout):
		return KindInfrastructureTimeout
	default:
		return KindInternal
	}
}

// ErrorByKind is the inverse of KindOf, used by the Kafka gateway to turn a
// reply error code back into a sentinel the caller can errors.Is against.
func ErrorByKind(k Kind) (error, bool) {
	switch k {
	case KindInvalidCodeFormat:
		return ErrInvalidCodeFormat, true
	case KindActorNotAssociated:
		return ErrActorNotAssociated, true
	case KindCodeNotFound:
		return ErrCodeNotFound, true
	case KindCodeExpired:
		return ErrCodeExpired, true
	case KindPromotionNotFound:
		return ErrPromotionNotFound, true
	case KindPromotionNotOwned:
		return ErrPromotionNotOwned, true
	case KindPromotionExhausted:
		return ErrPromotionExhausted, true
	case KindUserLimitReached:
		return ErrUserLimitReached, true
	case KindInfrastructureTimeout:
		return ErrInfrastructureTimeout, true
	default:
		return nil, false
	}
}

// Retryable reports whether the caller may safely retry the same scan.
// Business-rule failures are terminal; only storage timeouts are retryable,
// and retries are idempotent because no partial state is ever committed.
func Retryable(err error) bool {
	return errors.Is(err, ErrInfrastructureTimeout)
}
