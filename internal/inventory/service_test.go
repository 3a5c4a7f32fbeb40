package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/orderstack/platform/internal/contracts/event"
)

type recordingPublisher struct {
	topics []string
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, evt event.Event) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, evt)
	return nil
}

// memRepo is an in-memory Repository with an optional per-product count of
// forced version conflicts, to exercise the optimistic retry loop.
type memRepo struct {
	stock        map[string]*Stock
	reservations map[string]*Reservation
	conflicts    map[string]int
}

func newMemRepo() *memRepo {
	return &memRepo{
		stock:        map[string]*Stock{},
		reservations: map[string]*Reservation{},
		conflicts:    map[string]int{},
	}
}

func (m *memRepo) GetStock(_ context.Context, productID string) (*Stock, error) {
	s, ok := m.stock[productID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) UpdateStock(_ context.Context, s *Stock) (bool, error) {
	if m.conflicts[s.ProductID] > 0 {
		m.conflicts[s.ProductID]--
		m.stock[s.ProductID].Version++
		return false, nil
	}
	cur := m.stock[s.ProductID]
	if cur.Version != s.Version {
		return false, nil
	}
	m.stock[s.ProductID] = &Stock{
		ProductID: s.ProductID,
		Available: s.Available,
		Reserved:  s.Reserved,
		Version:   s.Version + 1,
	}
	return true, nil
}

func (m *memRepo) GetReservation(_ context.Context, orderID string) (*Reservation, error) {
	r, ok := m.reservations[orderID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) SaveReservation(_ context.Context, r *Reservation) error {
	if _, exists := m.reservations[r.OrderID]; exists {
		return nil
	}
	cp := *r
	m.reservations[r.OrderID] = &cp
	return nil
}

func (m *memRepo) MarkReservationReleased(_ context.Context, orderID string) (bool, error) {
	r, ok := m.reservations[orderID]
	if !ok || r.Status != ReservationReserved {
		return false, nil
	}
	r.Status = ReservationReleased
	return true, nil
}

func newTestService(t *testing.T) (*Service, *memRepo, *recordingPublisher) {
	t.Helper()
	repo := newMemRepo()
	pub := &recordingPublisher{}
	svc := NewService(repo, pub, 0, zerolog.Nop())
	svc.sleep = func(time.Duration) {}
	return svc, repo, pub
}

func reserveRequest(items ...event.Item) *event.InventoryReserveRequested {
	return event.NewInventoryReserveRequested("order-1", items, "corr-1", "cause-1")
}

func item(productID string, qty int) event.Item {
	return event.Item{ProductID: productID, Quantity: qty, UnitPrice: decimal.NewFromInt(10)}
}

func TestReserve_Succeeds(t *testing.T) {
	svc, repo, pub := newTestService(t)
	repo.stock["sku-1"] = &Stock{ProductID: "sku-1", Available: 10}
	repo.stock["sku-2"] = &Stock{ProductID: "sku-2", Available: 5}

	req := reserveRequest(item("sku-1", 3), item("sku-2", 5))
	require.NoError(t, svc.HandleReserveRequested(context.Background(), req))

	require.Equal(t, []string{event.TopicInventoryReserved}, pub.topics)
	require.Equal(t, 7, repo.stock["sku-1"].Available)
	require.Equal(t, 3, repo.stock["sku-1"].Reserved)
	require.Equal(t, 0, repo.stock["sku-2"].Available)
	require.Equal(t, 5, repo.stock["sku-2"].Reserved)

	reserved := pub.events[0].(*event.InventoryReserved)
	require.Equal(t, "corr-1", reserved.CorrelationID)
	require.Equal(t, "cause-1", reserved.CausationID)
}

func TestReserve_InsufficientRollsBackTakenLines(t *testing.T) {
	svc, repo, pub := newTestService(t)
	repo.stock["sku-1"] = &Stock{ProductID: "sku-1", Available: 10}
	repo.stock["sku-2"] = &Stock{ProductID: "sku-2", Available: 1}

	req := reserveRequest(item("sku-1", 3), item("sku-2", 5))
	require.NoError(t, svc.HandleReserveRequested(context.Background(), req))

	require.Equal(t, []string{event.TopicInventoryReservationFailed}, pub.topics)
	failed := pub.events[0].(*event.InventoryReservationFailed)
	require.Equal(t, []string{"sku-2"}, failed.InsufficientProductIDs)

	// sku-1 was taken then returned.
	require.Equal(t, 10, repo.stock["sku-1"].Available)
	require.Equal(t, 0, repo.stock["sku-1"].Reserved)
	require.Equal(t, 1, repo.stock["sku-2"].Available)
}

func TestReserve_UnknownProductFails(t *testing.T) {
	svc, _, pub := newTestService(t)

	req := reserveRequest(item("sku-missing", 1))
	require.NoError(t, svc.HandleReserveRequested(context.Background(), req))

	require.Equal(t, []string{event.TopicInventoryReservationFailed}, pub.topics)
	failed := pub.events[0].(*event.InventoryReservationFailed)
	require.Equal(t, []string{"sku-missing"}, failed.InsufficientProductIDs)
}

func TestReserve_RedeliveryReEmitsWithoutReservingAgain(t *testing.T) {
	svc, repo, pub := newTestService(t)
	repo.stock["sku-1"] = &Stock{ProductID: "sku-1", Available: 10}

	req := reserveRequest(item("sku-1", 3))
	require.NoError(t, svc.HandleReserveRequested(context.Background(), req))
	require.NoError(t, svc.HandleReserveRequested(context.Background(), req))

	require.Equal(t, []string{event.TopicInventoryReserved, event.TopicInventoryReserved}, pub.topics)
	require.Equal(t, 7, repo.stock["sku-1"].Available, "second delivery must not reserve again")
	require.Equal(t, 3, repo.stock["sku-1"].Reserved)
}

func TestReserve_VersionConflictRetriesThenSucceeds(t *testing.T) {
	svc, repo, pub := newTestService(t)
	repo.stock["sku-1"] = &Stock{ProductID: "sku-1", Available: 10}
	repo.conflicts["sku-1"] = 2

	req := reserveRequest(item("sku-1", 3))
	require.NoError(t, svc.HandleReserveRequested(context.Background(), req))
	require.Equal(t, []string{event.TopicInventoryReserved}, pub.topics)
}

func TestReserve_VersionConflictExhaustedPropagates(t *testing.T) {
	svc, repo, pub := newTestService(t)
	repo.stock["sku-1"] = &Stock{ProductID: "sku-1", Available: 10}
	repo.conflicts["sku-1"] = 3

	req := reserveRequest(item("sku-1", 3))
	err := svc.HandleReserveRequested(context.Background(), req)
	require.ErrorIs(t, err, errVersionConflict)
	require.Empty(t, pub.topics, "no outcome is emitted when the request will be redelivered")
}

func TestReserve_ConfiguredRetryCountIsHonored(t *testing.T) {
	repo := newMemRepo()
	pub := &recordingPublisher{}
	svc := NewService(repo, pub, 5, zerolog.Nop())
	svc.sleep = func(time.Duration) {}

	// Four conflicts exhaust the default of three attempts but not five.
	repo.stock["sku-1"] = &Stock{ProductID: "sku-1", Available: 10}
	repo.conflicts["sku-1"] = 4

	req := reserveRequest(item("sku-1", 3))
	require.NoError(t, svc.HandleReserveRequested(context.Background(), req))
	require.Equal(t, []string{event.TopicInventoryReserved}, pub.topics)
}

func TestNewService_NonPositiveRetryCountFallsBackToDefault(t *testing.T) {
	svc := NewService(newMemRepo(), &recordingPublisher{}, -1, zerolog.Nop())
	require.Equal(t, defaultOptimisticMaxRetries, svc.maxRetries)
}

func TestRelease_ReturnsStock(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock["sku-1"] = &Stock{ProductID: "sku-1", Available: 7, Reserved: 3}
	repo.reservations["order-1"] = &Reservation{
		OrderID: "order-1",
		Items:   []event.Item{item("sku-1", 3)},
		Status:  ReservationReserved,
	}

	evt := event.NewInventoryReleased("order-1", []event.Item{item("sku-1", 3)}, "corr-1", "")
	require.NoError(t, svc.HandleRelease(context.Background(), evt))

	require.Equal(t, 10, repo.stock["sku-1"].Available)
	require.Equal(t, 0, repo.stock["sku-1"].Reserved)
	require.Equal(t, ReservationReleased, repo.reservations["order-1"].Status)
}

func TestRelease_IsIdempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock["sku-1"] = &Stock{ProductID: "sku-1", Available: 7, Reserved: 3}
	repo.reservations["order-1"] = &Reservation{
		OrderID: "order-1",
		Items:   []event.Item{item("sku-1", 3)},
		Status:  ReservationReserved,
	}

	evt := event.NewInventoryReleased("order-1", []event.Item{item("sku-1", 3)}, "corr-1", "")
	require.NoError(t, svc.HandleRelease(context.Background(), evt))
	require.NoError(t, svc.HandleRelease(context.Background(), evt))

	require.Equal(t, 10, repo.stock["sku-1"].Available, "replayed release must not inflate stock")
	require.Equal(t, 0, repo.stock["sku-1"].Reserved)
}

func TestRelease_WithoutReservationSkips(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.stock["sku-1"] = &Stock{ProductID: "sku-1", Available: 7, Reserved: 3}

	evt := event.NewInventoryReleased("order-unknown", []event.Item{item("sku-1", 3)}, "corr-1", "")
	require.NoError(t, svc.HandleRelease(context.Background(), evt))
	require.Equal(t, 7, repo.stock["sku-1"].Available)
}

func TestRelease_ClampsToReservedQuantity(t *testing.T) {
	svc, repo, _ := newTestService(t)
	// Reserved count lower than the reservation's lines, e.g. after partial
	// manual correction.
	repo.stock["sku-1"] = &Stock{ProductID: "sku-1", Available: 9, Reserved: 1}
	repo.reservations["order-1"] = &Reservation{
		OrderID: "order-1",
		Items:   []event.Item{item("sku-1", 3)},
		Status:  ReservationReserved,
	}

	evt := event.NewInventoryReleased("order-1", []event.Item{item("sku-1", 3)}, "corr-1", "")
	require.NoError(t, svc.HandleRelease(context.Background(), evt))

	require.Equal(t, 10, repo.stock["sku-1"].Available)
	require.Equal(t, 0, repo.stock["sku-1"].Reserved)
}
