/*
store.go - Persistence contracts consumed by the lifecycle service

PURPOSE:
  Defines the interface between the booking core and the database. The
  service never touches SQL; it sees these interfaces.

KEY INTERFACES:
  Store:    Booking CRUD, overlap range query, audit append/load
  TxStore:  Store plus WithTx for atomic check-then-write sequences

ATOMICITY CONTRACT:
  The conflict check and the subsequent insert/update are NOT implicitly
  atomic. Create and edit run both inside WithTx; implementations must
  give the closure serializable isolation on the overlap query so two
  concurrent creates for overlapping ranges cannot both succeed.
  (store/sqlite runs the closure under BEGIN IMMEDIATE; the in-memory
  store holds its write lock for the duration.)

AUDIT APPEND:
  AppendAudit assigns entry.Seq from a per-store monotonic counter.
  There is no update or delete for audit entries. Ever.

IMPLEMENTATIONS:
  - store/sqlite:        production store
  - booking/store.Memory: in-memory store for tests and dev

SEE ALSO:
  - fees.ConfigStore: the rate-table side of persistence
*/
package booking

import "context"

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// CreateBooking persists a new booking.
	CreateBooking(ctx context.Context, b *Booking) error

	// UpdateBooking persists changes to an existing booking.
	UpdateBooking(ctx context.Context, b *Booking) error

	// GetBooking returns the booking or ErrNotFound.
	GetBooking(ctx context.Context, id BookingID) (*Booking, error)

	// ListBookings returns bookings matching the filter, newest first.
	ListBookings(ctx context.Context, f Filter) ([]*Booking, error)

	// FindOverlapping returns the first PENDING or APPROVED booking whose
	// half-open range intersects r, skipping exclude (empty = no
	// exclusion), or nil when the range is free.
	FindOverlapping(ctx context.Context, r DateRange, exclude BookingID) (*Booking, error)

	// AppendAudit appends an immutable audit entry, assigning entry.Seq.
	AppendAudit(ctx context.Context, entry *AuditEntry) error

	// AuditTrail returns a booking's audit entries in sequence order.
	AuditTrail(ctx context.Context, id BookingID) ([]AuditEntry, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn atomically. If fn returns an error the
	// transaction rolls back and nothing fn wrote is visible.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// NOTIFIER - Post-commit side effects (email), fire-and-forget
// =============================================================================

// Notifier is invoked AFTER a transition commits. Implementations must not
// block the caller on network I/O and their failures never roll back the
// transition.
type Notifier interface {
	BookingCreated(ctx context.Context, b *Booking)
	BookingApproved(ctx context.Context, b *Booking)
	BookingRejected(ctx context.Context, b *Booking)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) BookingCreated(context.Context, *Booking)  {}
func (NopNotifier) BookingApproved(context.Context, *Booking) {}
func (NopNotifier) BookingRejected(context.Context, *Booking) {}
