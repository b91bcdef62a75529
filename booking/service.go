/*
service.go - Booking lifecycle state machine

PURPOSE:
  Owns all booking status transitions. Delegates pricing to the fees
  package and conflict detection to conflict.go, persists through the
  TxStore contract, and appends an audit entry for every transition.

STATE MACHINE:

      create                edit (resets)
        │                  ┌───────────────┐
        ▼                  ▼               │
    ┌─────────┐  approve ┌──────────┐      │
    │ PENDING │─────────▶│ APPROVED │──────┤
    └─────────┘          └──────────┘      │
        │ reject                           │
        ▼                                  │
    ┌──────────┐                           │
    │ REJECTED │───────────────────────────┘
    └──────────┘
        │ cancel (from any non-terminal state)
        ▼
    ┌───────────┐
    │ CANCELLED │   terminal: nothing leaves it, never hard-deleted
    └───────────┘

TRANSACTIONAL BOUNDARY:
  Create and edit run conflict check + write inside WithTx so two
  concurrent overlapping requests cannot both succeed. Status guards run
  on a read taken inside the same transaction, so a cancel committing
  just before an approve cannot be overwritten. Fee calculation happens
  BEFORE the transaction opens: a failed calculation prevents
  persistence entirely, never persists a zero amount.

SIDE EFFECTS:
  Notifications fire after commit and never roll back a transition.
  Their delivery is the notify package's problem.

SEE ALSO:
  - conflict.go: Overlap detection
  - fees/:       Pricing
  - audit.go:    Trail entries
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/booking-engine/fees"
	"github.com/warp/booking-engine/metrics"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service is the booking lifecycle state machine.
type Service struct {
	Store    TxStore
	Fees     *fees.Resolver
	Notifier Notifier
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewService(store TxStore, resolver *fees.Resolver, notifier Notifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		Store:    store,
		Fees:     resolver,
		Notifier: notifier,
		Logger:   logger,
		Now:      time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// MinRejectionReasonLen is the minimum trimmed length of a rejection reason.
const MinRejectionReasonLen = 5

// =============================================================================
// CREATE
// =============================================================================

// CreateRequest carries everything needed to open a booking.
type CreateRequest struct {
	Source Source
	Scope  Scope
	Range  DateRange

	TotalGuests int
	PetCount    int

	RequestedBy       UserID
	ExternalLeadName  string
	ExternalLeadEmail string
	ExternalLeadPhone string

	Guests          []Guest
	RoomAllocations []RoomAllocation

	// Counts are the pricing buckets. When empty they are derived from
	// the tagged Guests list.
	Counts fees.GuestCounts
}

func (r *CreateRequest) counts() fees.GuestCounts {
	if len(r.Counts) > 0 {
		return r.Counts
	}
	return countGuests(r.Guests)
}

// Create validates the request, checks for conflicts, prices the stay, and
// persists the booking as PENDING with a CREATED audit entry. The conflict
// check and the insert run in one transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	if !req.Source.Valid() {
		return nil, invalid("source", "unknown source %q", string(req.Source))
	}
	if req.Scope == "" {
		req.Scope = ScopeWholeHouse
	}
	// External public bookings always take the whole house.
	if req.Source == SourceExternalPublic {
		req.Scope = ScopeWholeHouse
		req.RoomAllocations = nil
	}
	if req.Scope != ScopeWholeHouse && req.Scope != ScopeRoomSpecific {
		return nil, invalid("scope", "unknown scope %q", string(req.Scope))
	}
	if req.Scope == ScopeWholeHouse && len(req.RoomAllocations) > 0 {
		return nil, invalid("roomAllocations", "room allocations require ROOM_SPECIFIC scope")
	}
	if err := validateRange(req.Range); err != nil {
		return nil, err
	}
	if req.TotalGuests < 1 {
		return nil, invalid("totalGuests", "at least one guest required")
	}
	if req.PetCount < 0 {
		return nil, invalid("petCount", "must not be negative")
	}
	if req.RequestedBy == "" && strings.TrimSpace(req.ExternalLeadEmail) == "" {
		return nil, invalid("externalLeadEmail", "anonymous bookings need a contact email")
	}

	now := s.now()
	b := &Booking{
		ID:                BookingID(uuid.NewString()),
		Source:            req.Source,
		Scope:             req.Scope,
		Status:            StatusPending,
		Range:             req.Range,
		Nights:            req.Range.Nights(),
		TotalGuests:       req.TotalGuests,
		PetCount:          req.PetCount,
		RequestedBy:       req.RequestedBy,
		ExternalLeadName:  strings.TrimSpace(req.ExternalLeadName),
		ExternalLeadEmail: strings.TrimSpace(req.ExternalLeadEmail),
		ExternalLeadPhone: strings.TrimSpace(req.ExternalLeadPhone),
		Guests:            req.Guests,
		RoomAllocations:   req.RoomAllocations,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if b.Source == SourceExternalPublic {
		b.ManageToken = uuid.NewString()
	}
	// Buckets are stored on the booking so later edits can reprice even
	// when no guest was ever individually named.
	b.Counts = req.counts()

	// Price before opening the transaction: a failed calculation must
	// prevent persistence, never persist a garbage amount.
	if err := s.price(ctx, b, b.Counts); err != nil {
		return nil, err
	}

	err := s.Store.WithTx(ctx, func(tx Store) error {
		if err := CheckOverlap(ctx, tx, b.Range, ""); err != nil {
			return err
		}
		if err := tx.CreateBooking(ctx, b); err != nil {
			return fmt.Errorf("persist booking: %w", err)
		}
		return tx.AppendAudit(ctx, &AuditEntry{
			BookingID: b.ID,
			Action:    AuditCreated,
			ActorID:   req.RequestedBy,
			Comment:   fmt.Sprintf("Requested %s, %d guest(s)", b.Range, b.TotalGuests),
			CreatedAt: now,
		})
	})
	if err != nil {
		s.count("create", false)
		s.countConflict(err)
		return nil, err
	}

	s.count("create", true)
	s.Logger.Info().
		Str("booking_id", string(b.ID)).
		Str("source", string(b.Source)).
		Str("range", b.Range.String()).
		Str("total", b.TotalAmount.String()).
		Msg("booking created")
	s.Notifier.BookingCreated(ctx, b)
	return b, nil
}

// =============================================================================
// APPROVE
// =============================================================================

// Approve transitions PENDING or REJECTED into APPROVED. Approving an
// already APPROVED booking is an idempotent no-op; CANCELLED is terminal.
func (s *Service) Approve(ctx context.Context, id BookingID, actorID UserID) (*Booking, error) {
	now := s.now()
	var b *Booking
	var noop bool

	// The read and the status guard run inside the transaction: a cancel
	// committing just before us must win, not be overwritten.
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		b, err = tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == StatusApproved {
			noop = true
			return nil
		}
		if b.Status == StatusCancelled {
			return &InvalidTransitionError{ID: id, From: b.Status, Action: "approve"}
		}

		b.Status = StatusApproved
		b.ApprovedBy = actorID
		b.ApprovedAt = &now
		b.RejectionReason = ""
		b.UpdatedAt = now

		if err := tx.UpdateBooking(ctx, b); err != nil {
			return fmt.Errorf("persist approval: %w", err)
		}
		return tx.AppendAudit(ctx, &AuditEntry{
			BookingID: id,
			Action:    AuditApproved,
			ActorID:   actorID,
			CreatedAt: now,
		})
	})
	if err != nil {
		s.count("approve", false)
		return nil, err
	}
	if noop {
		return b, nil
	}

	s.count("approve", true)
	s.Logger.Info().Str("booking_id", string(id)).Str("actor", string(actorID)).Msg("booking approved")
	s.Notifier.BookingApproved(ctx, b)
	return b, nil
}

// =============================================================================
// REJECT
// =============================================================================

// Reject transitions into REJECTED with a mandatory reason. ApprovedBy/At
// record who rejected and when. A manage token is minted if the booking has
// none, so the requester can still self-service an edit.
func (s *Service) Reject(ctx context.Context, id BookingID, actorID UserID, reason string) (*Booking, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < MinRejectionReasonLen {
		return nil, invalid("reason", "rejection reason must be at least %d characters", MinRejectionReasonLen)
	}

	now := s.now()
	var b *Booking

	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		b, err = tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == StatusCancelled {
			return &InvalidTransitionError{ID: id, From: b.Status, Action: "reject"}
		}

		b.Status = StatusRejected
		b.ApprovedBy = actorID
		b.ApprovedAt = &now
		b.RejectionReason = reason
		b.UpdatedAt = now
		if b.ManageToken == "" {
			b.ManageToken = uuid.NewString()
		}

		if err := tx.UpdateBooking(ctx, b); err != nil {
			return fmt.Errorf("persist rejection: %w", err)
		}
		return tx.AppendAudit(ctx, &AuditEntry{
			BookingID: id,
			Action:    AuditRejected,
			ActorID:   actorID,
			Comment:   reason,
			CreatedAt: now,
		})
	})
	if err != nil {
		s.count("reject", false)
		return nil, err
	}

	s.count("reject", true)
	s.Logger.Info().Str("booking_id", string(id)).Str("actor", string(actorID)).Msg("booking rejected")
	s.Notifier.BookingRejected(ctx, b)
	return b, nil
}

// =============================================================================
// EDIT
// =============================================================================

// EditRequest carries the fields an edit may change. Nil pointers leave the
// current value untouched.
type EditRequest struct {
	Range           *DateRange
	TotalGuests     *int
	PetCount        *int
	Guests          *[]Guest
	RoomAllocations *[]RoomAllocation
	Counts          fees.GuestCounts

	// Recalculate forces repricing for INTERNAL bookings, which otherwise
	// keep their stored amount. EXTERNAL_PUBLIC always reprices.
	Recalculate bool
}

// Edit mutates a non-CANCELLED booking and resets it to PENDING, clearing
// prior approval/rejection fields. The conflict re-check excludes the
// booking's own id.
func (s *Service) Edit(ctx context.Context, id BookingID, accessor Accessor, req EditRequest) (*Booking, error) {
	b, err := s.Store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == StatusCancelled {
		return nil, &InvalidTransitionError{ID: id, From: b.Status, Action: "edit"}
	}
	if !accessor.CanManage(b) {
		return nil, fmt.Errorf("edit booking %s: %w", id, ErrAccessDenied)
	}

	if req.Range != nil {
		if err := validateRange(*req.Range); err != nil {
			return nil, err
		}
		b.Range = *req.Range
		b.Nights = req.Range.Nights()
	}
	if req.TotalGuests != nil {
		if *req.TotalGuests < 1 {
			return nil, invalid("totalGuests", "at least one guest required")
		}
		b.TotalGuests = *req.TotalGuests
	}
	if req.PetCount != nil {
		if *req.PetCount < 0 {
			return nil, invalid("petCount", "must not be negative")
		}
		b.PetCount = *req.PetCount
	}
	if req.Guests != nil {
		b.Guests = *req.Guests
		// A replaced guest list invalidates buckets derived from the old
		// one, unless the caller supplies new counts explicitly.
		if len(req.Counts) == 0 {
			b.Counts = countGuests(b.Guests)
		}
	}
	if req.RoomAllocations != nil {
		if b.Scope != ScopeRoomSpecific {
			return nil, invalid("roomAllocations", "room allocations require ROOM_SPECIFIC scope")
		}
		b.RoomAllocations = *req.RoomAllocations
	}
	if len(req.Counts) > 0 {
		b.Counts = req.Counts
	}

	// External bookings follow the rate table of their (possibly new)
	// start date; internal bookings keep the stored amount unless the
	// caller asks for a recalculation. The stored buckets carry over when
	// the edit does not change them.
	if b.Source == SourceExternalPublic || req.Recalculate {
		if err := s.price(ctx, b, b.GuestCounts()); err != nil {
			return nil, err
		}
	}

	needsReapproval := b.Status != StatusPending
	now := s.now()
	b.Status = StatusPending
	b.ApprovedBy = ""
	b.ApprovedAt = nil
	b.RejectionReason = ""
	b.UpdatedAt = now

	editor := "manage-token holder"
	if accessor.UserID != "" {
		editor = string(accessor.UserID)
	}
	comment := fmt.Sprintf("Edited by %s", editor)
	if needsReapproval {
		comment += "; re-approval required"
	}

	err = s.Store.WithTx(ctx, func(tx Store) error {
		// Re-check terminality on the transactional read: a cancel may
		// have committed since the booking was loaded above.
		current, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusCancelled {
			return &InvalidTransitionError{ID: id, From: current.Status, Action: "edit"}
		}
		if err := CheckOverlap(ctx, tx, b.Range, b.ID); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return fmt.Errorf("persist edit: %w", err)
		}
		return tx.AppendAudit(ctx, &AuditEntry{
			BookingID: id,
			Action:    AuditComment,
			ActorID:   accessor.UserID,
			ActorRole: string(accessor.Role),
			Comment:   comment,
			CreatedAt: now,
		})
	})
	if err != nil {
		s.count("edit", false)
		s.countConflict(err)
		return nil, err
	}

	s.count("edit", true)
	s.Logger.Info().Str("booking_id", string(id)).Bool("reapproval", needsReapproval).Msg("booking edited")
	if needsReapproval {
		s.Notifier.BookingCreated(ctx, b)
	}
	return b, nil
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel moves any non-terminal booking into CANCELLED. The booking is
// retained; nothing ever leaves CANCELLED.
func (s *Service) Cancel(ctx context.Context, id BookingID, accessor Accessor) (*Booking, error) {
	now := s.now()
	var b *Booking
	var noop bool

	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		b, err = tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == StatusCancelled {
			noop = true
			return nil
		}
		if !accessor.CanManage(b) {
			return fmt.Errorf("cancel booking %s: %w", id, ErrAccessDenied)
		}

		b.Status = StatusCancelled
		b.UpdatedAt = now

		if err := tx.UpdateBooking(ctx, b); err != nil {
			return fmt.Errorf("persist cancellation: %w", err)
		}
		return tx.AppendAudit(ctx, &AuditEntry{
			BookingID: id,
			Action:    AuditComment,
			ActorID:   accessor.UserID,
			Comment:   "Booking cancelled",
			CreatedAt: now,
		})
	})
	if err != nil {
		s.count("cancel", false)
		return nil, err
	}
	if noop {
		return b, nil
	}

	s.count("cancel", true)
	s.Logger.Info().Str("booking_id", string(id)).Msg("booking cancelled")
	return b, nil
}

// =============================================================================
// COMMENT
// =============================================================================

// Comment appends a COMMENT audit entry without changing status. Always
// permitted to holders of manage access.
func (s *Service) Comment(ctx context.Context, id BookingID, accessor Accessor, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return invalid("text", "comment must not be empty")
	}

	b, err := s.Store.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if !accessor.CanManage(b) && !accessor.Role.Can(CapComment) {
		return fmt.Errorf("comment on booking %s: %w", id, ErrAccessDenied)
	}

	return s.Store.AppendAudit(ctx, &AuditEntry{
		BookingID: id,
		Action:    AuditComment,
		ActorID:   accessor.UserID,
		ActorRole: string(accessor.Role),
		Comment:   text,
		CreatedAt: s.now(),
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a booking if the accessor may see it.
func (s *Service) Get(ctx context.Context, id BookingID, accessor Accessor) (*Booking, error) {
	b, err := s.Store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !accessor.CanManage(b) {
		return nil, fmt.Errorf("view booking %s: %w", id, ErrAccessDenied)
	}
	return b, nil
}

// List returns bookings matching the filter. Staff only.
func (s *Service) List(ctx context.Context, f Filter) ([]*Booking, error) {
	return s.Store.ListBookings(ctx, f)
}

// AuditTrail returns a booking's ordered audit entries.
func (s *Service) AuditTrail(ctx context.Context, id BookingID, accessor Accessor) ([]AuditEntry, error) {
	b, err := s.Store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !accessor.CanManage(b) {
		return nil, fmt.Errorf("view audit for booking %s: %w", id, ErrAccessDenied)
	}
	return s.Store.AuditTrail(ctx, b.ID)
}

// =============================================================================
// INTERNAL
// =============================================================================

func validateRange(r DateRange) error {
	if r.Start.IsZero() || r.End.IsZero() {
		return invalid("dates", "start and end dates are required")
	}
	if r.Nights() < 1 {
		return invalid("dates", "end date must be after start date")
	}
	return nil
}

// price resolves the active fee config for the start date and snapshots the
// breakdown onto the booking. Empty buckets are rejected: a stay with
// nobody to bill must fail loudly, not price at zero.
func (s *Service) price(ctx context.Context, b *Booking, counts fees.GuestCounts) error {
	if counts.Total() < 1 {
		return invalid("counts", "pricing requires at least one counted guest")
	}

	resolved, err := s.Fees.Resolve(ctx, b.Range.Start.Time())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	breakdown, err := fees.Calculate(fees.CalcInput{
		Source:    string(b.Source),
		StartDate: b.Range.Start.Time(),
		Nights:    b.Nights,
		Guests:    counts,
	}, resolved)
	if err != nil {
		return fmt.Errorf("calculate fees: %w", err)
	}

	b.FeeSnapshot = breakdown
	b.TotalAmount = breakdown.Total
	b.Currency = breakdown.Currency
	return nil
}

func (s *Service) count(action string, ok bool) {
	if s.Metrics == nil {
		return
	}
	s.Metrics.ObserveTransition(action, ok)
}

func (s *Service) countConflict(err error) {
	if s.Metrics == nil || !errors.Is(err, ErrConflict) {
		return
	}
	s.Metrics.ObserveConflict()
}
