package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderstack/platform/internal/contracts/event"
)

// Publisher is the outbound port to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, evt event.Event) error
}

const (
	defaultOptimisticMaxRetries = 3
	optimisticRetryStep         = 10 * time.Millisecond
)

// errVersionConflict surfaces an optimistic update that lost all its retries.
// It propagates to the consumer, which redelivers.
var errVersionConflict = errors.New("stock version conflict after retries")

// Service reserves and releases stock. Stock rows use optimistic versioning;
// a lost update is retried with a short linear backoff before giving up to
// broker-level redelivery.
type Service struct {
	repo       Repository
	pub        Publisher
	maxRetries int
	log        zerolog.Logger

	sleep func(time.Duration)
}

func NewService(repo Repository, pub Publisher, maxRetries int, log zerolog.Logger) *Service {
	if maxRetries <= 0 {
		maxRetries = defaultOptimisticMaxRetries
	}
	return &Service{
		repo:       repo,
		pub:        pub,
		maxRetries: maxRetries,
		log:        log.With().Str("component", "inventory_service").Logger(),
		sleep:      time.Sleep,
	}
}

// HandleReserveRequested reserves stock for every order line, all or nothing.
// A line that cannot be satisfied rolls back the lines already reserved and
// fails the whole request with the insufficient product ids.
func (s *Service) HandleReserveRequested(ctx context.Context, evt *event.InventoryReserveRequested) error {
	existing, err := s.repo.GetReservation(ctx, evt.OrderID)
	if err != nil {
		return err
	}
	if existing != nil {
		s.log.Info().
			Str("order_id", evt.OrderID).
			Str("status", string(existing.Status)).
			Msg("reservation already processed; re-emitting outcome")
		return s.emitOutcome(ctx, existing, evt)
	}

	var reserved []event.Item
	var insufficient []string

	for _, item := range evt.Items {
		ok, err := s.reserveOne(ctx, item)
		if err != nil {
			// Transient storage trouble mid-way: undo what we took and let the
			// broker redeliver the whole request.
			s.rollback(ctx, evt.OrderID, reserved)
			return err
		}
		if !ok {
			insufficient = append(insufficient, item.ProductID)
			continue
		}
		reserved = append(reserved, item)
	}

	r := &Reservation{OrderID: evt.OrderID, Items: evt.Items}
	if len(insufficient) > 0 {
		s.rollback(ctx, evt.OrderID, reserved)
		r.Status = ReservationFailed
		r.Reason = "insufficient stock"
		r.InsufficientIDs = insufficient
		s.log.Warn().
			Str("order_id", evt.OrderID).
			Strs("insufficient", insufficient).
			Msg("reservation failed")
	} else {
		r.Status = ReservationReserved
		s.log.Info().
			Str("order_id", evt.OrderID).
			Int("lines", len(evt.Items)).
			Msg("stock reserved")
	}

	if err := s.repo.SaveReservation(ctx, r); err != nil {
		if r.Status == ReservationReserved {
			s.rollback(ctx, evt.OrderID, reserved)
		}
		return err
	}
	return s.emitOutcome(ctx, r, evt)
}

func (s *Service) emitOutcome(ctx context.Context, r *Reservation, cause *event.InventoryReserveRequested) error {
	switch r.Status {
	case ReservationReserved, ReservationReleased:
		// A released reservation was this saga's own compensation; the original
		// reserve still succeeded.
		return s.pub.Publish(ctx, event.TopicInventoryReserved,
			event.NewInventoryReserved(r.OrderID, r.Items, cause.CorrelationID, cause.ID))
	case ReservationFailed:
		return s.pub.Publish(ctx, event.TopicInventoryReservationFailed,
			event.NewInventoryReservationFailed(r.OrderID, r.Reason, r.InsufficientIDs, cause.CorrelationID, cause.ID))
	default:
		return fmt.Errorf("reservation for order %s in unexpected status %s", r.OrderID, r.Status)
	}
}

// HandleRelease returns reserved stock during compensation. Releasing is
// idempotent per order: only a RESERVED reservation releases, and quantities
// clamp to what is actually held so a replay can never push reserved counts
// negative.
func (s *Service) HandleRelease(ctx context.Context, evt *event.InventoryReleased) error {
	r, err := s.repo.GetReservation(ctx, evt.OrderID)
	if err != nil {
		return err
	}
	if r == nil || r.Status != ReservationReserved {
		s.log.Info().Str("order_id", evt.OrderID).Msg("nothing to release; skipping")
		return nil
	}

	claimed, err := s.repo.MarkReservationReleased(ctx, evt.OrderID)
	if err != nil {
		return err
	}
	if !claimed {
		s.log.Info().Str("order_id", evt.OrderID).Msg("release already claimed; skipping")
		return nil
	}

	for _, item := range r.Items {
		if err := s.releaseOne(ctx, item); err != nil {
			return err
		}
	}

	s.log.Info().Str("order_id", evt.OrderID).Int("lines", len(r.Items)).Msg("stock released")
	return nil
}

func (s *Service) reserveOne(ctx context.Context, item event.Item) (bool, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		stock, err := s.repo.GetStock(ctx, item.ProductID)
		if err != nil {
			return false, err
		}
		if stock == nil || stock.Available < item.Quantity {
			return false, nil
		}

		stock.Available -= item.Quantity
		stock.Reserved += item.Quantity

		ok, err := s.repo.UpdateStock(ctx, stock)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		s.sleep(optimisticRetryStep * time.Duration(attempt))
	}
	return false, fmt.Errorf("reserve %s: %w", item.ProductID, errVersionConflict)
}

func (s *Service) releaseOne(ctx context.Context, item event.Item) error {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		stock, err := s.repo.GetStock(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if stock == nil {
			return nil
		}

		qty := item.Quantity
		if qty > stock.Reserved {
			qty = stock.Reserved
		}
		if qty == 0 {
			return nil
		}
		stock.Available += qty
		stock.Reserved -= qty

		ok, err := s.repo.UpdateStock(ctx, stock)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		s.sleep(optimisticRetryStep * time.Duration(attempt))
	}
	return fmt.Errorf("release %s: %w", item.ProductID, errVersionConflict)
}

// rollback returns lines taken before a mid-request failure. Best effort:
// errors are logged, the released quantities clamp on replay anyway.
func (s *Service) rollback(ctx context.Context, orderID string, taken []event.Item) {
	for _, item := range taken {
		if err := s.releaseOne(ctx, item); err != nil {
			s.log.Error().Err(err).
				Str("order_id", orderID).
				Str("product_id", item.ProductID).
				Msg("rollback release failed")
		}
	}
}
