package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promoplaza/redemption-service/internal/domain"
	"github.com/promoplaza/redemption-service/internal/repository"
)

func int32Ptr(v int32) *int32 { return &v }

func newTestService(store repository.Store) *RedemptionService {
	return NewRedemptionService(store, zerolog.Nop())
}

func seedStore(t *testing.T) (*repository.MemoryStore, domain.Actor) {
	t.Helper()

	store := repository.NewMemory()
	actor := domain.Actor{ID: 10, Kind: domain.ActorCashier, BusinessID: 1}
	store.PutActor("cashier-token", actor)
	store.PutPromotion(domain.Promotion{
		ID:            1,
		BusinessID:    1,
		Name:          "2x1 Lunch",
		TotalLimit:    int32Ptr(100),
		PerUserLimit:  int32Ptr(3),
		RedeemedCount: 3,
		Active:        true,
	})
	return store, actor
}

func TestRedeemCodeSuccess(t *testing.T) {
	store, actor := seedStore(t)
	store.PutCode(domain.RedemptionCode{
		ID:          5,
		UserID:      77,
		PromotionID: 1,
		Code:        domain.FormatCode(5),
		CreatedAt:   time.Now(),
	})
	service := newTestService(store)

	receipt, err := service.RedeemCode(context.Background(), actor, "PROMO-5")
	require.NoError(t, err)

	assert.Equal(t, int64(1), receipt.PromotionID)
	assert.Equal(t, int64(77), receipt.UserID)
	assert.NotZero(t, receipt.RedemptionID)

	code, ok := store.Code(5)
	require.True(t, ok)
	assert.True(t, code.Used)

	promo, ok := store.Promotion(1)
	require.True(t, ok)
	assert.Equal(t, int32(4), promo.RedeemedCount)

	redemptions := store.Redemptions()
	require.Len(t, redemptions, 1)
	assert.Equal(t, int64(77), redemptions[0].UserID)
	assert.Equal(t, actor.ID, redemptions[0].ActorID)
	assert.Equal(t, domain.ActorCashier, redemptions[0].ActorKind)
}

// failingStore fails the test on any storage call. It proves malformed
// codes are rejected before storage is touched.
type failingStore struct {
	t *testing.T
}

func (s *failingStore) ExecTx(context.Context, func(repository.Querier) error) error {
	s.t.Fatal("ExecTx must not be called")
	return nil
}

func (s *failingStore) ResolveActor(context.Context, string) (domain.Actor, error) {
	s.t.Fatal("ResolveActor must not be called")
	return domain.Actor{}, nil
}

func (s *failingStore) CreateCode(context.Context, int64, int64) (domain.RedemptionCode, error) {
	s.t.Fatal("CreateCode must not be called")
	return domain.RedemptionCode{}, nil
}

func (s *failingStore) GetPromotion(context.Context, int64) (domain.Promotion, error) {
	s.t.Fatal("GetPromotion must not be called")
	return domain.Promotion{}, nil
}

func TestRedeemMalformedCodeSkipsStorage(t *testing.T) {
	service := newTestService(&failingStore{t: t})

	for _, raw := range []string{"", "PROMO", "PROMO-", "PROMO-abc", "garbage", "PROMO-1-2"} {
		_, err := service.Redeem(context.Background(), "cashier-token", raw)
		assert.ErrorIs(t, err, domain.ErrInvalidCodeFormat, "raw=%q", raw)
	}
}

func TestRedeemUnknownPrincipal(t *testing.T) {
	store, _ := seedStore(t)
	service := newTestService(store)

	_, err := service.Redeem(context.Background(), "nobody", "PROMO-5")
	assert.ErrorIs(t, err, domain.ErrActorNotAssociated)
}

func TestRedeemCodeActorWithoutBusiness(t *testing.T) {
	store, _ := seedStore(t)
	service := newTestService(store)

	unassociated := domain.Actor{ID: 20, Kind: domain.ActorBusinessAdmin, BusinessID: 0}
	_, err := service.RedeemCode(context.Background(), unassociated, "PROMO-5")
	assert.ErrorIs(t, err, domain.ErrActorNotAssociated)
}

func TestRedeemCodeExpired(t *testing.T) {
	store, actor := seedStore(t)
	store.PutCode(domain.RedemptionCode{
		ID:          5,
		UserID:      77,
		PromotionID: 1,
		Code:        domain.FormatCode(5),
		CreatedAt:   time.Now().Add(-10 * time.Minute),
	})
	service := newTestService(store)

	// An expired code keeps answering expired; it is never consumed.
	for i := 0; i < 2; i++ {
		_, err := service.RedeemCode(context.Background(), actor, "PROMO-5")
		assert.ErrorIs(t, err, domain.ErrCodeExpired)
	}

	code, ok := store.Code(5)
	require.True(t, ok)
	assert.False(t, code.Used)
	promo, _ := store.Promotion(1)
	assert.Equal(t, int32(3), promo.RedeemedCount)
}

func TestRedeemCodeExpiryBoundary(t *testing.T) {
	store, actor := seedStore(t)
	createdAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.PutCode(domain.RedemptionCode{
		ID:          5,
		UserID:      77,
		PromotionID: 1,
		Code:        domain.FormatCode(5),
		CreatedAt:   createdAt,
	})
	service := newTestService(store)

	service.now = func() time.Time { return createdAt.Add(6 * time.Minute) }
	_, err := service.RedeemCode(context.Background(), actor, "PROMO-5")
	assert.ErrorIs(t, err, domain.ErrCodeExpired)

	service.now = func() time.Time { return createdAt.Add(4 * time.Minute) }
	_, err = service.RedeemCode(context.Background(), actor, "PROMO-5")
	assert.NoError(t, err)
}

func TestRedeemCodeSingleUse(t *testing.T) {
	store, actor := seedStore(t)
	store.PutCode(domain.RedemptionCode{
		ID:          5,
		UserID:      77,
		PromotionID: 1,
		Code:        domain.FormatCode(5),
		CreatedAt:   time.Now(),
	})
	service := newTestService(store)

	_, err := service.RedeemCode(context.Background(), actor, "PROMO-5")
	require.NoError(t, err)

	// A used code is indistinguishable from a nonexistent one.
	_, err = service.RedeemCode(context.Background(), actor, "PROMO-5")
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)

	promo, _ := store.Promotion(1)
	assert.Equal(t, int32(4), promo.RedeemedCount)
	assert.Len(t, store.Redemptions(), 1)
}

func TestRedeemCodeUnknownCode(t *testing.T) {
	store, actor := seedStore(t)
	service := newTestService(store)

	_, err := service.RedeemCode(context.Background(), actor, "PROMO-404")
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestRedeemCodeOtherBusiness(t *testing.T) {
	store, _ := seedStore(t)
	store.PutCode(domain.RedemptionCode{
		ID:          5,
		UserID:      77,
		PromotionID: 1,
		Code:        domain.FormatCode(5),
		CreatedAt:   time.Now(),
	})
	service := newTestService(store)

	rival := domain.Actor{ID: 30, Kind: domain.ActorCashier, BusinessID: 2}
	_, err := service.RedeemCode(context.Background(), rival, "PROMO-5")
	assert.ErrorIs(t, err, domain.ErrPromotionNotOwned)

	code, _ := store.Code(5)
	assert.False(t, code.Used)
}

func TestRedeemCodePromotionExhausted(t *testing.T) {
	store, actor := seedStore(t)
	store.PutPromotion(domain.Promotion{
		ID:            2,
		BusinessID:    1,
		Name:          "Limited drop",
		TotalLimit:    int32Ptr(5),
		RedeemedCount: 5,
		Active:        true,
	})
	store.PutCode(domain.RedemptionCode{
		ID:          6,
		UserID:      77,
		PromotionID: 2,
		Code:        domain.FormatCode(6),
		CreatedAt:   time.Now(),
	})
	service := newTestService(store)

	_, err := service.RedeemCode(context.Background(), actor, "PROMO-6")
	assert.ErrorIs(t, err, domain.ErrPromotionExhausted)

	code, _ := store.Code(6)
	assert.False(t, code.Used)
	promo, _ := store.Promotion(2)
	assert.Equal(t, int32(5), promo.RedeemedCount)
}

func TestRedeemCodePerUserLimit(t *testing.T) {
	store, actor := seedStore(t)
	store.PutPromotion(domain.Promotion{
		ID:           3,
		BusinessID:   1,
		Name:         "Once per user",
		PerUserLimit: int32Ptr(1),
		Active:       true,
	})
	service := newTestService(store)

	store.PutCode(domain.RedemptionCode{
		ID: 7, UserID: 77, PromotionID: 3,
		Code: domain.FormatCode(7), CreatedAt: time.Now(),
	})
	_, err := service.RedeemCode(context.Background(), actor, "PROMO-7")
	require.NoError(t, err)

	// Second code for the same user hits the per-user cap.
	store.PutCode(domain.RedemptionCode{
		ID: 8, UserID: 77, PromotionID: 3,
		Code: domain.FormatCode(8), CreatedAt: time.Now(),
	})
	_, err = service.RedeemCode(context.Background(), actor, "PROMO-8")
	assert.ErrorIs(t, err, domain.ErrUserLimitReached)

	code, _ := store.Code(8)
	assert.False(t, code.Used)

	// A different user is unaffected.
	store.PutCode(domain.RedemptionCode{
		ID: 9, UserID: 88, PromotionID: 3,
		Code: domain.FormatCode(9), CreatedAt: time.Now(),
	})
	_, err = service.RedeemCode(context.Background(), actor, "PROMO-9")
	assert.NoError(t, err)
}

func TestRedeemCodeUnlimitedPromotion(t *testing.T) {
	store, actor := seedStore(t)
	store.PutPromotion(domain.Promotion{
		ID:         4,
		BusinessID: 1,
		Name:       "No limits",
		Active:     true,
	})
	service := newTestService(store)

	for i := int64(20); i < 25; i++ {
		store.PutCode(domain.RedemptionCode{
			ID: i, UserID: 77, PromotionID: 4,
			Code: domain.FormatCode(i), CreatedAt: time.Now(),
		})
		_, err := service.RedeemCode(context.Background(), actor, domain.FormatCode(i))
		require.NoError(t, err)
	}

	promo, _ := store.Promotion(4)
	assert.Equal(t, int32(5), promo.RedeemedCount)
}

func TestRedeemCodeConcurrentSameCode(t *testing.T) {
	store, actor := seedStore(t)
	store.PutCode(domain.RedemptionCode{
		ID: 5, UserID: 77, PromotionID: 1,
		Code: domain.FormatCode(5), CreatedAt: time.Now(),
	})
	service := newTestService(store)

	const workers = 50
	var success, notFound int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := service.RedeemCode(context.Background(), actor, "PROMO-5")
			switch {
			case err == nil:
				atomic.AddInt64(&success, 1)
			case errors.Is(err, domain.ErrCodeNotFound):
				atomic.AddInt64(&notFound, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), success)
	assert.Equal(t, int64(workers-1), notFound)
	promo, _ := store.Promotion(1)
	assert.Equal(t, int32(4), promo.RedeemedCount)
	assert.Len(t, store.Redemptions(), 1)
}

func TestRedeemCodeConcurrentLastSlot(t *testing.T) {
	store, actor := seedStore(t)
	store.PutPromotion(domain.Promotion{
		ID:            2,
		BusinessID:    1,
		Name:          "One left",
		TotalLimit:    int32Ptr(1),
		RedeemedCount: 0,
		Active:        true,
	})
	// Two distinct valid codes racing for the single remaining slot.
	store.PutCode(domain.RedemptionCode{
		ID: 6, UserID: 77, PromotionID: 2,
		Code: domain.FormatCode(6), CreatedAt: time.Now(),
	})
	store.PutCode(domain.RedemptionCode{
		ID: 7, UserID: 88, PromotionID: 2,
		Code: domain.FormatCode(7), CreatedAt: time.Now(),
	})
	service := newTestService(store)

	var success, exhausted int64
	var wg sync.WaitGroup
	for _, raw := range []string{"PROMO-6", "PROMO-7"} {
		wg.Add(1)
		go func(raw string) {
			defer wg.Done()
			_, err := service.RedeemCode(context.Background(), actor, raw)
			switch {
			case err == nil:
				atomic.AddInt64(&success, 1)
			case errors.Is(err, domain.ErrPromotionExhausted):
				atomic.AddInt64(&exhausted, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(raw)
	}
	wg.Wait()

	assert.Equal(t, int64(1), success)
	assert.Equal(t, int64(1), exhausted)
	promo, _ := store.Promotion(2)
	assert.Equal(t, int32(1), promo.RedeemedCount)
}
