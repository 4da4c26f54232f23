package events

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/worckguarddev/ton-trip-bonanza/utils"
)

type EventType string

const (
	EventPurchaseCompleted   EventType = "purchase.completed"
	EventReferralRewarded    EventType = "referral.rewarded"
	EventWithdrawalRequested EventType = "withdrawal.requested"
	EventWithdrawalResolved  EventType = "withdrawal.resolved"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

type PurchaseCompletedData struct {
	PurchaseID string
	BuyerID    int64
	CardID     string
	CardTitle  string
	Amount     decimal.Decimal
}

type ReferralRewardedData struct {
	PurchaseID string
	ReferrerID int64
	BuyerID    int64
	Amount     decimal.Decimal
	Field      string
}

type WithdrawalRequestedData struct {
	OwnershipID string
	UserID      int64
	CardTitle   string
	Address     string
}

type WithdrawalResolvedData struct {
	OwnershipID string
	UserID      int64
	CardTitle   string
	Approved    bool
}

type Handler func(ctx context.Context, event Event) error

// Manager fans events out to subscribers. Handlers run in their own goroutine
// and never block the publisher.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	wg       sync.WaitGroup
	logger   *utils.Logger
}

func NewManager(enabled bool, logger *utils.Logger) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		logger:   logger,
	}
}

func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if m == nil {
		return
	}

	m.mu.RLock()
	if !m.enabled {
		m.mu.RUnlock()
		return
	}
	handlers := append([]Handler(nil), m.handlers[eventType]...)
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// the request context is usually gone by the time handlers run
	hctx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		m.wg.Add(1)
		go func(h Handler) {
			defer m.wg.Done()
			if err := h(hctx, event); err != nil && m.logger != nil {
				m.logger.Errorf("event handler for %s failed: %v", eventType, err)
			}
		}(handler)
	}
}

// Wait blocks until every handler started so far has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.wg.Wait()
}
