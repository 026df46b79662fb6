package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ayukmesoh/storekeeper/internal/domain"
)

// fakeSubRepo is an in-memory SubscriptionRepository with real
// compare-and-swap semantics, so the services are tested against the same
// conflict behavior the Mongo implementation provides.
type fakeSubRepo struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]*domain.Subscription

	findErr error
	scanErr error
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{subs: make(map[string]*domain.Subscription)}
}

func cloneSub(s *domain.Subscription) *domain.Subscription {
	c := *s
	c.History = append([]domain.HistoryEntry(nil), s.History...)
	c.Metadata.Tags = append([]string(nil), s.Metadata.Tags...)
	c.Metadata.PreviousPlans = append([]string(nil), s.Metadata.PreviousPlans...)
	return &c
}

func (r *fakeSubRepo) Create(ctx context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub.ID = fmt.Sprintf("sub-%d", r.nextID)
	sub.Version = 1
	r.subs[sub.ID] = cloneSub(sub)
	return nil
}

func (r *fakeSubRepo) FindByID(ctx context.Context, id string) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	sub, ok := r.subs[id]
	if !ok || sub.Deleted {
		return nil, domain.ErrNotFound
	}
	return cloneSub(sub), nil
}

func (r *fakeSubRepo) FindByShop(ctx context.Context, shopID string) ([]*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Subscription
	for _, sub := range r.subs {
		if sub.ShopID == shopID && !sub.Deleted {
			out = append(out, cloneSub(sub))
		}
	}
	return out, nil
}

func (r *fakeSubRepo) FindCurrentByShop(ctx context.Context, shopID string) (*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.Subscription
	for _, sub := range r.subs {
		if sub.ShopID != shopID || sub.Deleted {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return cloneSub(latest), nil
}

func (r *fakeSubRepo) scan(match func(*domain.Subscription) bool) ([]*domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scanErr != nil {
		return nil, r.scanErr
	}
	var out []*domain.Subscription
	for _, sub := range r.subs {
		if !sub.Deleted && match(sub) {
			out = append(out, cloneSub(sub))
		}
	}
	return out, nil
}

func (r *fakeSubRepo) FindTrialsEndingBy(ctx context.Context, cutoff time.Time) ([]*domain.Subscription, error) {
	return r.scan(func(s *domain.Subscription) bool {
		return s.Status == domain.StatusTrial &&
			!s.RenewalSettings.ReminderSent &&
			!s.Dates.EndDate.After(cutoff)
	})
}

func (r *fakeSubRepo) FindExpiringBy(ctx context.Context, cutoff time.Time) ([]*domain.Subscription, error) {
	return r.scan(func(s *domain.Subscription) bool {
		return s.Status == domain.StatusActive &&
			!s.RenewalSettings.ReminderSent &&
			!s.Dates.EndDate.After(cutoff)
	})
}

func (r *fakeSubRepo) FindRenewalCandidates(ctx context.Context, cutoff time.Time) ([]*domain.Subscription, error) {
	return r.scan(func(s *domain.Subscription) bool {
		return (s.Status == domain.StatusActive || s.Status == domain.StatusPastDue) &&
			s.RenewalSettings.AutoRenew &&
			!s.Dates.EndDate.After(cutoff)
	})
}

func (r *fakeSubRepo) FindExpiredActive(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	return r.scan(func(s *domain.Subscription) bool {
		if s.Status != domain.StatusTrial && s.Status != domain.StatusActive && s.Status != domain.StatusPastDue {
			return false
		}
		if !now.After(s.Dates.EndDate) {
			return false
		}
		return !s.RenewalSettings.AutoRenew || s.Status == domain.StatusPastDue
	})
}

func (r *fakeSubRepo) Save(ctx context.Context, sub *domain.Subscription, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.subs[sub.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrConflict
	}
	saved := cloneSub(sub)
	saved.Version = expectedVersion + 1
	r.subs[sub.ID] = saved
	sub.Version = saved.Version
	return nil
}

// get returns the stored aggregate for assertions, bypassing the interface.
func (r *fakeSubRepo) get(id string) *domain.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneSub(r.subs[id])
}

type fakeShopRepo struct {
	mu       sync.Mutex
	shops    map[string]*domain.Shop
	statuses map[string]string
	setErr   error
}

func newFakeShopRepo(shops ...*domain.Shop) *fakeShopRepo {
	r := &fakeShopRepo{shops: make(map[string]*domain.Shop), statuses: make(map[string]string)}
	for _, s := range shops {
		r.shops[s.ID] = s
	}
	return r
}

func (r *fakeShopRepo) Create(ctx context.Context, shop *domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shops[shop.ID] = shop
	return nil
}

func (r *fakeShopRepo) GetByID(ctx context.Context, id string) (*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shop, ok := r.shops[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return shop, nil
}

func (r *fakeShopRepo) GetByOwnerID(ctx context.Context, ownerID string) ([]*domain.Shop, error) {
	return nil, nil
}

func (r *fakeShopRepo) GetAll(ctx context.Context) ([]*domain.Shop, error) { return nil, nil }

func (r *fakeShopRepo) Update(ctx context.Context, shop *domain.Shop) error { return nil }

func (r *fakeShopRepo) SetStatus(ctx context.Context, id string, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setErr != nil {
		return r.setErr
	}
	r.statuses[id] = status
	return nil
}

func (r *fakeShopRepo) statusOf(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statuses[id]
}

type fakePlanRepo struct {
	plans map[string]*domain.Plan
}

func newFakePlanRepo(plans ...*domain.Plan) *fakePlanRepo {
	r := &fakePlanRepo{plans: make(map[string]*domain.Plan)}
	for _, p := range plans {
		r.plans[p.ID] = p
	}
	return r
}

func (r *fakePlanRepo) Create(ctx context.Context, plan *domain.Plan) error { return nil }

func (r *fakePlanRepo) GetByID(ctx context.Context, id string) (*domain.Plan, error) {
	plan, ok := r.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return plan, nil
}

func (r *fakePlanRepo) GetByName(ctx context.Context, name string) (*domain.Plan, error) {
	for _, p := range r.plans {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakePlanRepo) GetActivePlans(ctx context.Context) ([]*domain.Plan, error) { return nil, nil }

func (r *fakePlanRepo) Update(ctx context.Context, plan *domain.Plan) error { return nil }

type notifiedEvent struct {
	EventType string
	ShopID    string
	Payload   map[string]string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notifiedEvent
	err    error
}

func (n *fakeNotifier) Notify(ctx context.Context, eventType, shopID string, payload map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, notifiedEvent{EventType: eventType, ShopID: shopID, Payload: payload})
	return nil
}

func (n *fakeNotifier) sent() []notifiedEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifiedEvent(nil), n.events...)
}

func (n *fakeNotifier) countOf(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, e := range n.events {
		if e.EventType == eventType {
			count++
		}
	}
	return count
}

type fakeProvider struct {
	mu      sync.Mutex
	charges []ChargeRequest
	result  *ChargeResult
	err     error
	nextID  int
}

func (p *fakeProvider) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.charges = append(p.charges, req)
	if p.err != nil {
		return nil, p.err
	}
	if p.result != nil {
		return p.result, nil
	}
	p.nextID++
	return &ChargeResult{
		Success:       true,
		TransactionID: fmt.Sprintf("tx-%d", p.nextID),
		ResponseCode:  "200",
	}, nil
}

func (p *fakeProvider) chargeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.charges)
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	deny bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.deny || l.held[job] {
		return false, nil
	}
	l.held[job] = true
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, job string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, job)
	return nil
}
