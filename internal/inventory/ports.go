package inventory

import (
	"context"
	"time"

	"github.com/orderstack/platform/internal/contracts/event"
)

type ReservationStatus string

const (
	ReservationReserved ReservationStatus = "RESERVED"
	ReservationReleased ReservationStatus = "RELEASED"
	ReservationFailed   ReservationStatus = "FAILED"
)

// Stock is one product's inventory position. Version backs optimistic
// concurrency: an update only lands if nobody else moved the row since the
// read.
type Stock struct {
	ProductID string
	Available int
	Reserved  int
	Version   int64
}

// Reservation records the outcome of a reserve request per order. It is the
// idempotency fence: a redelivered request finds it and re-emits the stored
// outcome instead of reserving twice.
type Reservation struct {
	OrderID         string
	Items           []event.Item
	Status          ReservationStatus
	Reason          string
	InsufficientIDs []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Repository is the storage port for stock rows and reservations.
type Repository interface {
	GetStock(ctx context.Context, productID string) (*Stock, error)
	// UpdateStock applies the new quantities if the version still matches,
	// returning false on a concurrent modification.
	UpdateStock(ctx context.Context, s *Stock) (bool, error)

	GetReservation(ctx context.Context, orderID string) (*Reservation, error)
	SaveReservation(ctx context.Context, r *Reservation) error
	MarkReservationReleased(ctx context.Context, orderID string) (bool, error)
}
