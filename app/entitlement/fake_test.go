package entitlement

import (
	"context"
	"sync"

	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/stripe/stripe-go/v79"
)

type memStore struct {
	mu        sync.Mutex
	subs      map[string]models.Subscription
	customers map[string]string // customer id -> user id
	events    map[string]string
	getErr    error
}

func newMemStore() *memStore {
	return &memStore{
		subs:      map[string]models.Subscription{},
		customers: map[string]string{},
		events:    map[string]string{},
	}
}

func (m *memStore) GetSubscription(_ context.Context, userID string) (models.Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return models.Subscription{}, false, m.getErr
	}
	sub, ok := m.subs[userID]
	return sub, ok, nil
}

func (m *memStore) UpsertSubscription(_ context.Context, sub models.Subscription) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.subs[sub.UserID]; ok {
		if cur.SourceUpdatedAt.After(sub.SourceUpdatedAt) {
			return false, nil
		}
		if sub.PriceID == "" {
			sub.PriceID = cur.PriceID
		}
		if sub.StripeCustomerID == "" {
			sub.StripeCustomerID = cur.StripeCustomerID
		}
		if sub.StripeSubscriptionID == "" {
			sub.StripeSubscriptionID = cur.StripeSubscriptionID
		}
	}
	m.subs[sub.UserID] = sub
	return true, nil
}

func (m *memStore) UserIDByCustomer(_ context.Context, customerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.customers[customerID], nil
}

func (m *memStore) LinkCustomer(_ context.Context, userID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[customerID] = userID
	return nil
}

func (m *memStore) EventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[eventID]
	return ok, nil
}

func (m *memStore) RecordEvent(_ context.Context, eventID, eventType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[eventID] = eventType
	return nil
}

type fakeSubs struct {
	sub   *stripe.Subscription
	err   error
	calls int
}

func (f *fakeSubs) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

type fakeRemote struct {
	ent RemoteEntitlement
	err error
}

func (f fakeRemote) FetchEntitlement(context.Context, string) (RemoteEntitlement, error) {
	return f.ent, f.err
}
