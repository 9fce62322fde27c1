package repository

import (
	"context"
	"sync"
	"time"

	"github.com/promoplaza/redemption-service/internal/domain"
)

// MemoryStore is an in-memory Store used by tests and local runs without a
// database. A single mutex held for the whole ExecTx stands in for Postgres
// row locks: transactions are fully serialized, and mutations are staged on
// a copy of the state that only replaces the live state on commit, so a
// failed transaction leaves no side effects.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	actors         map[string]domain.Actor
	codes          map[int64]domain.RedemptionCode
	promotions     map[int64]domain.Promotion
	redemptions    map[int64]domain.Redemption
	nextCode       int64
	nextRedemption int64
}

func NewMemory() *MemoryStore {
	return &MemoryStore{state: &memState{
		actors:      map[string]domain.Actor{},
		codes:       map[int64]domain.RedemptionCode{},
		promotions:  map[int64]domain.Promotion{},
		redemptions: map[int64]domain.Redemption{},
	}}
}

var _ Store = (*MemoryStore)(nil)

func (s *memState) clone() *memState {
	c := &memState{
		actors:         make(map[string]domain.Actor, len(s.actors)),
		codes:          make(map[int64]domain.RedemptionCode, len(s.codes)),
		promotions:     make(map[int64]domain.Promotion, len(s.promotions)),
		redemptions:    make(map[int64]domain.Redemption, len(s.redemptions)),
		nextCode:       s.nextCode,
		nextRedemption: s.nextRedemption,
	}
	for k, v := range s.actors {
		c.actors[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	for k, v := range s.promotions {
		c.promotions[k] = v
	}
	for k, v := range s.redemptions {
		c.redemptions[k] = v
	}
	return c
}

func (m *MemoryStore) ExecTx(ctx context.Context, fn func(Querier) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := m.state.clone()
	if err := fn(&memQuerier{state: staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

func (m *MemoryStore) ResolveActor(ctx context.Context, principal string) (domain.Actor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	actor, ok := m.state.actors[principal]
	if !ok {
		return domain.Actor{}, domain.ErrActorNotAssociated
	}
	return actor, nil
}

func (m *MemoryStore) CreateCode(ctx context.Context, userID, promotionID int64) (domain.RedemptionCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.nextCode++
	code := domain.RedemptionCode{
		ID:          m.state.nextCode,
		UserID:      userID,
		PromotionID: promotionID,
		Code:        domain.FormatCode(m.state.nextCode),
		CreatedAt:   time.Now(),
	}
	m.state.codes[code.ID] = code
	return code, nil
}

func (m *MemoryStore) GetPromotion(ctx context.Context, id int64) (domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.state.promotions[id]
	if !ok {
		return domain.Promotion{}, domain.ErrPromotionNotFound
	}
	return p, nil
}

// Seeding and inspection helpers for tests.

func (m *MemoryStore) PutActor(principal string, a domain.Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.actors[principal] = a
}

func (m *MemoryStore) PutPromotion(p domain.Promotion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.promotions[p.ID] = p
}

func (m *MemoryStore) PutCode(c domain.RedemptionCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.codes[c.ID] = c
	if c.ID > m.state.nextCode {
		m.state.nextCode = c.ID
	}
}

func (m *MemoryStore) Code(id int64) (domain.RedemptionCode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.codes[id]
	return c, ok
}

func (m *MemoryStore) Promotion(id int64) (domain.Promotion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.state.promotions[id]
	return p, ok
}

func (m *MemoryStore) Redemptions() []domain.Redemption {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Redemption, 0, len(m.state.redemptions))
	for _, r := range m.state.redemptions {
		out = append(out, r)
	}
	return out
}

// memQuerier operates on the staged copy of the store state.
type memQuerier struct {
	state *memState
}

var _ Querier = (*memQuerier)(nil)

func (q *memQuerier) GetCodeForUpdate(ctx context.Context, id int64) (domain.RedemptionCode, error) {
	c, ok := q.state.codes[id]
	if !ok || c.Used {
		return domain.RedemptionCode{}, domain.ErrCodeNotFound
	}
	return c, nil
}

func (q *memQuerier) GetPromotionForUpdate(ctx context.Context, id, businessID int64) (domain.Promotion, error) {
	p, ok := q.state.promotions[id]
	if !ok || p.BusinessID != businessID {
		return domain.Promotion{}, domain.ErrPromotionNotOwned
	}
	return p, nil
}

func (q *memQuerier) CountRedemptions(ctx context.Context, promotionID, userID int64) (int64, error) {
	var n int64
	for _, r := range q.state.redemptions {
		if r.PromotionID == promotionID && r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (q *memQuerier) MarkCodeUsed(ctx context.Context, id int64) error {
	c, ok := q.state.codes[id]
	if !ok {
		return domain.ErrCodeNotFound
	}
	c.Used = true
	q.state.codes[id] = c
	return nil
}

func (q *memQuerier) IncrementRedeemed(ctx context.Context, promotionID int64) error {
	p, ok := q.state.promotions[promotionID]
	if !ok {
		return domain.ErrPromotionNotFound
	}
	p.RedeemedCount++
	q.state.promotions[promotionID] = p
	return nil
}

func (q *memQuerier) InsertRedemption(ctx context.Context, promotionID, userID int64, actor domain.Actor, at time.Time) (domain.Redemption, error) {
	q.state.nextRedemption++
	r := domain.Redemption{
		ID:          q.state.nextRedemption,
		PromotionID: promotionID,
		UserID:      userID,
		ActorID:     actor.ID,
		ActorKind:   actor.Kind,
		CreatedAt:   at,
	}
	q.state.redemptions[r.ID] = r
	return r, nil
}
