package tests

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"courier/internal/domain"
	"courier/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK OFFER STORE
// ──────────────────────────────────────────────

// MockOfferStore is a mock implementation of OfferStore.
type MockOfferStore struct {
	mu   sync.RWMutex
	slot *domain.Offer

	// Counters for verification
	GetCallCount     int32
	ReplaceCallCount int32
	ClearCallCount   int32

	// Error injection
	GetError     error
	ReplaceError error
	ClearError   error
}

// NewMockOfferStore creates a new mock offer store.
func NewMockOfferStore() *MockOfferStore {
	return &MockOfferStore{}
}

// SetSlot seeds the persisted slot (for restore tests).
func (m *MockOfferStore) SetSlot(offer *domain.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *offer
	m.slot = &copy
}

func (m *MockOfferStore) Get(ctx context.Context) (*domain.Offer, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.slot == nil {
		return nil, repository.ErrEmptySlot
	}
	// Return a copy to avoid mutation issues.
	copy := *m.slot
	return &copy, nil
}

func (m *MockOfferStore) Replace(ctx context.Context, offer *domain.Offer) error {
	atomic.AddInt32(&m.ReplaceCallCount, 1)
	if m.ReplaceError != nil {
		return m.ReplaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *offer
	m.slot = &copy
	return nil
}

func (m *MockOfferStore) Clear(ctx context.Context) error {
	atomic.AddInt32(&m.ClearCallCount, 1)
	if m.ClearError != nil {
		return m.ClearError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slot = nil
	return nil
}

// Slot returns the persisted slot (for test assertions).
func (m *MockOfferStore) Slot() *domain.Offer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.slot == nil {
		return nil
	}
	copy := *m.slot
	return &copy
}

// ──────────────────────────────────────────────
// MOCK CLOCK
// ──────────────────────────────────────────────

// MockClock is a mock implementation of Clock. It never fires on its own;
// tests drive deadline signals through the authority directly.
type MockClock struct {
	mu sync.Mutex

	// Counters
	ArmCallCount    int32
	DisarmCallCount int32

	lastArmed *domain.Offer
}

// NewMockClock creates a new mock clock.
func NewMockClock() *MockClock {
	return &MockClock{}
}

func (m *MockClock) Arm(offer *domain.Offer) {
	atomic.AddInt32(&m.ArmCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *offer
	m.lastArmed = &copy
}

func (m *MockClock) Disarm() {
	atomic.AddInt32(&m.DisarmCallCount, 1)
}

// LastArmed returns the offer the clock was last armed for.
func (m *MockClock) LastArmed() *domain.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastArmed
}

// ──────────────────────────────────────────────
// MOCK DECISION GATEWAY
// ──────────────────────────────────────────────

// DeclineCall records one SendDecline invocation.
type DeclineCall struct {
	OfferID string
	Reason  string
}

// MockGateway is a mock implementation of DecisionGateway.
type MockGateway struct {
	mu sync.Mutex

	Declines    []DeclineCall
	Expires     []string
	AcceptViews []string
	Abandons    []string
}

// NewMockGateway creates a new mock decision gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

func (m *MockGateway) SendDecline(offerID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Declines = append(m.Declines, DeclineCall{OfferID: offerID, Reason: reason})
}

func (m *MockGateway) SendExpire(offerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Expires = append(m.Expires, offerID)
}

func (m *MockGateway) NotifyAcceptView(offerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AcceptViews = append(m.AcceptViews, offerID)
}

func (m *MockGateway) Abandon(offerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Abandons = append(m.Abandons, offerID)
}

// DeclineCount returns the number of decline sends.
func (m *MockGateway) DeclineCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Declines)
}

// ExpireCount returns the number of expire sends.
func (m *MockGateway) ExpireCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Expires)
}

// LastDecline returns the most recent decline call.
func (m *MockGateway) LastDecline() DeclineCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Declines) == 0 {
		return DeclineCall{}
	}
	return m.Declines[len(m.Declines)-1]
}

// ──────────────────────────────────────────────
// MOCK ALERT PORT
// ──────────────────────────────────────────────

// MockAlertPort is a mock implementation of AlertPort.
type MockAlertPort struct {
	mu sync.Mutex

	// Counters
	OfferAlertCallCount    int32
	StopAlertCallCount     int32
	ExpiryWarningCallCount int32
	WithdrawnCallCount     int32
	InfoCallCount          int32

	lastWithdrawnReason string
}

// NewMockAlertPort creates a new mock alert port.
func NewMockAlertPort() *MockAlertPort {
	return &MockAlertPort{}
}

func (m *MockAlertPort) OfferAlert(offer *domain.Offer) {
	atomic.AddInt32(&m.OfferAlertCallCount, 1)
}

func (m *MockAlertPort) StopAlert(offerID string) {
	atomic.AddInt32(&m.StopAlertCallCount, 1)
}

func (m *MockAlertPort) ExpiryWarning(offer *domain.Offer) {
	atomic.AddInt32(&m.ExpiryWarningCallCount, 1)
}

func (m *MockAlertPort) Withdrawn(offerID, reason string) {
	atomic.AddInt32(&m.WithdrawnCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastWithdrawnReason = reason
}

func (m *MockAlertPort) Info(title, body string) {
	atomic.AddInt32(&m.InfoCallCount, 1)
}

// LastWithdrawnReason returns the reason of the last withdrawal alert.
func (m *MockAlertPort) LastWithdrawnReason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastWithdrawnReason
}

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockStoreDown = errors.New("mock: store unavailable")
)
