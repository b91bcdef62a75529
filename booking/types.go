/*
Package booking implements the booking lifecycle for a shared holiday house.

PURPOSE:
  This package owns the booking state machine, the overlap conflict
  detector, and the append-only audit trail. Pricing is delegated to the
  fees package; persistence and notification are collaborator interfaces
  implemented elsewhere (booking/store, store/sqlite, notify).

KEY CONCEPTS IN THIS FILE (types.go):
  - Booking: A request to occupy the house for a contiguous date range
  - Source: Who created the booking and which rate table applies
  - Scope:  Whole house vs. specific rooms
  - Status: The four lifecycle states (see service.go for transitions)

DESIGN PRINCIPLES:
  1. Immutability of money: the fee snapshot is priced once and stored
     verbatim; later rate changes never touch existing bookings
  2. Auditability: every transition appends an ordered audit entry
  3. No hard deletes: CANCELLED bookings are terminal but retained

SEE ALSO:
  - service.go: Lifecycle operations and transition rules
  - conflict.go: Overlap detection
  - store.go: Persistence contracts
*/
package booking

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/booking-engine/fees"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// BookingID doubles as the reference shown to users.
type BookingID string

type UserID string

// =============================================================================
// ENUMS
// =============================================================================

// Source identifies who may create a booking and which pricing table applies.
type Source string

const (
	SourceInternal       Source = "INTERNAL"
	SourceExternalPublic Source = "EXTERNAL_PUBLIC"
	SourceManualImport   Source = "MANUAL_IMPORT"
)

func (s Source) Valid() bool {
	switch s {
	case SourceInternal, SourceExternalPublic, SourceManualImport:
		return true
	}
	return false
}

// Scope distinguishes whole-house stays from room-level stays.
// EXTERNAL_PUBLIC bookings are always WHOLE_HOUSE.
type Scope string

const (
	ScopeWholeHouse   Scope = "WHOLE_HOUSE"
	ScopeRoomSpecific Scope = "ROOM_SPECIFIC"
)

// Status is the lifecycle state. Transitions are owned by Service:
//
//	PENDING  -> APPROVED | REJECTED | CANCELLED
//	APPROVED -> PENDING (via edit) | CANCELLED
//	REJECTED -> PENDING (via edit) | CANCELLED
//	CANCELLED is terminal; nothing leaves it.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Active reports whether the booking holds its date range against other
// requests. REJECTED and CANCELLED bookings never conflict.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// =============================================================================
// BOOKING
// =============================================================================

// Guest is a named occupant with a pricing bucket tag.
type Guest struct {
	Name      string
	GuestType fees.GuestType
}

// RoomAllocation pairs a room with a guest count. Only present when
// Scope = ROOM_SPECIFIC.
type RoomAllocation struct {
	RoomName   string
	GuestCount int
}

// Booking is a request to occupy the house for a contiguous date range.
type Booking struct {
	ID     BookingID
	Source Source
	Scope  Scope
	Status Status

	Range  DateRange
	Nights int // derived from Range, always >= 1

	TotalGuests int
	PetCount    int

	// Requester. RequestedBy is empty for anonymous external leads, in
	// which case the lead fields identify the contact.
	RequestedBy       UserID
	ExternalLeadName  string
	ExternalLeadEmail string
	ExternalLeadPhone string

	// Approval tracking. Set only on transition into APPROVED/REJECTED;
	// cleared when an edit resets the booking to PENDING.
	ApprovedBy      UserID
	ApprovedAt      *time.Time
	RejectionReason string

	// Priced once at request/edit time and stored verbatim.
	TotalAmount decimal.Decimal
	Currency    string
	FeeSnapshot *fees.Breakdown

	// ManageToken grants non-authenticated holders access to this booking.
	ManageToken string

	// Counts are the pricing buckets the stay was priced with. They are
	// stored so edits can reprice a booking whose guests were never
	// individually named (typical for external requests).
	Counts fees.GuestCounts

	Guests          []Guest
	RoomAllocations []RoomAllocation

	CreatedAt time.Time
	UpdatedAt time.Time
}

// GuestCounts returns the pricing buckets: the stored counts when present,
// otherwise derived from the named guests. Unnamed headcount (TotalGuests
// beyond the buckets) does not price.
func (b *Booking) GuestCounts() fees.GuestCounts {
	if len(b.Counts) > 0 {
		counts := make(fees.GuestCounts, len(b.Counts))
		for k, v := range b.Counts {
			counts[k] = v
		}
		return counts
	}
	return countGuests(b.Guests)
}

func countGuests(guests []Guest) fees.GuestCounts {
	counts := fees.GuestCounts{}
	for _, g := range guests {
		counts[g.GuestType]++
	}
	return counts
}

// =============================================================================
// FILTERS
// =============================================================================

// Filter narrows booking listings.
type Filter struct {
	Statuses []Status
	From     *Date // bookings ending after From
	To       *Date // bookings starting before To
}
