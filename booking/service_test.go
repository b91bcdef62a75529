package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/booking/store"
	"github.com/warp/booking-engine/fees"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type recordingNotifier struct {
	created  []booking.BookingID
	approved []booking.BookingID
	rejected []booking.BookingID
}

func (n *recordingNotifier) BookingCreated(_ context.Context, b *booking.Booking) {
	n.created = append(n.created, b.ID)
}
func (n *recordingNotifier) BookingApproved(_ context.Context, b *booking.Booking) {
	n.approved = append(n.approved, b.ID)
}
func (n *recordingNotifier) BookingRejected(_ context.Context, b *booking.Booking) {
	n.rejected = append(n.rejected, b.ID)
}

func newTestService(t *testing.T) (*booking.Service, *store.Memory, *recordingNotifier) {
	t.Helper()
	mem := store.NewMemory()
	notifier := &recordingNotifier{}
	svc := booking.NewService(mem, fees.NewResolver(mem), notifier, zerolog.Nop())
	return svc, mem, notifier
}

func july(day int) booking.Date {
	return booking.NewDate(2026, time.July, day)
}

func internalRequest(from, to int) booking.CreateRequest {
	return booking.CreateRequest{
		Source:      booking.SourceInternal,
		Range:       booking.DateRange{Start: july(from), End: july(to)},
		TotalGuests: 2,
		RequestedBy: "member-1",
		Counts:      fees.GuestCounts{fees.GuestMember: 2},
	}
}

func externalRequest(from, to int) booking.CreateRequest {
	return booking.CreateRequest{
		Source:            booking.SourceExternalPublic,
		Range:             booking.DateRange{Start: july(from), End: july(to)},
		TotalGuests:       2,
		ExternalLeadName:  "Jamie Lead",
		ExternalLeadEmail: "jamie@example.com",
		Counts:            fees.GuestCounts{fees.GuestAdult: 2},
	}
}

// raceTxStore runs a hook right before its next transaction opens, so tests
// can interleave a concurrent writer at the worst possible moment.
type raceTxStore struct {
	booking.TxStore
	beforeTx func()
}

func (s *raceTxStore) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	if s.beforeTx != nil {
		hook := s.beforeTx
		s.beforeTx = nil
		hook()
	}
	return s.TxStore.WithTx(ctx, fn)
}

func asMember(id string) booking.Accessor {
	return booking.Accessor{UserID: booking.UserID(id), Role: booking.RoleMember}
}

var asAdmin = booking.Accessor{UserID: "admin-1", Role: booking.RoleAdmin}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_InternalBooking(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 13))
	require.NoError(t, err)

	assert.Equal(t, booking.StatusPending, b.Status)
	assert.Equal(t, 3, b.Nights)
	assert.Empty(t, b.ManageToken, "internal bookings get no manage token")

	// Default member rate 50 x 2 guests x 3 nights = 300, snapshotted.
	require.NotNil(t, b.FeeSnapshot)
	assert.True(t, b.TotalAmount.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, "EUR", b.Currency)

	trail, err := svc.AuditTrail(ctx, b.ID, asAdmin)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, booking.AuditCreated, trail[0].Action)

	assert.Equal(t, []booking.BookingID{b.ID}, notifier.created)
}

func TestCreate_ExternalBooking_MintsManageToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	b, err := svc.Create(context.Background(), externalRequest(10, 12))
	require.NoError(t, err)

	assert.NotEmpty(t, b.ManageToken)
	assert.Equal(t, booking.ScopeWholeHouse, b.Scope, "external bookings take the whole house")
	// Default external adult rate 120 x 2 x 2 nights = 480.
	assert.True(t, b.TotalAmount.Equal(decimal.NewFromInt(480)))
}

func TestCreate_OverlapRejected(t *testing.T) {
	// GIVEN: An existing PENDING booking July 10-15
	// WHEN:  A second request for July 12-18 arrives
	// THEN:  409-style conflict naming the clashing booking; nothing persisted
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, internalRequest(10, 15))
	require.NoError(t, err)

	_, err = svc.Create(ctx, internalRequest(12, 18))
	require.Error(t, err)
	require.True(t, errors.Is(err, booking.ErrConflict))

	var conflict *booking.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, first.ID, conflict.ClashingID)
	assert.Equal(t, booking.StatusPending, conflict.ClashingStatus)

	all, err := svc.List(ctx, booking.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "conflicting booking must not be persisted")
}

func TestCreate_TouchingRangesDoNotConflict(t *testing.T) {
	// Checkout day == next check-in day is allowed.
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, internalRequest(10, 15))
	require.NoError(t, err)

	second := internalRequest(15, 18)
	second.RequestedBy = "member-2"
	_, err = svc.Create(ctx, second)
	require.NoError(t, err)
}

func TestCreate_CancelledBookingFreesDates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 15))
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, b.ID, asMember("member-1"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, internalRequest(12, 14))
	require.NoError(t, err, "cancelled bookings must not block new requests")
}

func TestCreate_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*booking.CreateRequest)
	}{
		{"unknown source", func(r *booking.CreateRequest) { r.Source = "PHONE" }},
		{"zero nights", func(r *booking.CreateRequest) { r.Range.End = r.Range.Start }},
		{"end before start", func(r *booking.CreateRequest) {
			r.Range.Start, r.Range.End = r.Range.End, r.Range.Start
		}},
		{"no guests", func(r *booking.CreateRequest) { r.TotalGuests = 0 }},
		{"negative pets", func(r *booking.CreateRequest) { r.PetCount = -1 }},
		{"anonymous without email", func(r *booking.CreateRequest) {
			r.RequestedBy = ""
			r.ExternalLeadEmail = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := internalRequest(10, 12)
			tc.mutate(&req)
			_, err := svc.Create(ctx, req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, booking.ErrValidation), "got %v", err)
		})
	}
}

func TestCreate_RequiresPricingCounts(t *testing.T) {
	// Neither counts nor tagged guests: there is nobody to bill, and the
	// booking must not be persisted with a zero total.
	svc, _, _ := newTestService(t)

	req := externalRequest(10, 12)
	req.Counts = nil
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, booking.ErrValidation))
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

func TestApprove(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 12))
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, b.ID, "approver-1")
	require.NoError(t, err)

	assert.Equal(t, booking.StatusApproved, approved.Status)
	assert.Equal(t, booking.UserID("approver-1"), approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, []booking.BookingID{b.ID}, notifier.approved)

	trail, err := svc.AuditTrail(ctx, b.ID, asAdmin)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, booking.AuditApproved, trail[1].Action)
}

func TestApprove_Idempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 12))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, b.ID, "approver-1")
	require.NoError(t, err)

	// Second approval succeeds but records nothing new.
	_, err = svc.Approve(ctx, b.ID, "approver-2")
	require.NoError(t, err)

	trail, err := svc.AuditTrail(ctx, b.ID, asAdmin)
	require.NoError(t, err)
	assert.Len(t, trail, 2)
}

func TestApprove_ConcurrentCancelWins(t *testing.T) {
	// GIVEN: A pending booking
	// WHEN:  A cancel commits just before the approval transaction opens
	// THEN:  The approval fails and the booking stays CANCELLED
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 12))
	require.NoError(t, err)

	wrapped := &raceTxStore{TxStore: mem, beforeTx: func() {
		_, err := svc.Cancel(ctx, b.ID, asAdmin)
		require.NoError(t, err)
	}}
	racer := booking.NewService(wrapped, fees.NewResolver(mem), nil, zerolog.Nop())

	_, err = racer.Approve(ctx, b.ID, "approver-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, booking.ErrInvalidTransition))

	got, err := svc.Get(ctx, b.ID, asAdmin)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, got.Status, "cancellation is terminal")
}

func TestReject_RequiresReason(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 12))
	require.NoError(t, err)

	_, err = svc.Reject(ctx, b.ID, "approver-1", "  no ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, booking.ErrValidation))

	// The failed rejection must not touch the booking.
	got, err := svc.Get(ctx, b.ID, asAdmin)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, got.Status)
	assert.Empty(t, got.RejectionReason)
}

func TestReject_RecordsReasonAndMintsToken(t *testing.T) {
	svc, _, notifier := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 12))
	require.NoError(t, err)
	require.Empty(t, b.ManageToken)

	rejected, err := svc.Reject(ctx, b.ID, "approver-1", "House closed for maintenance")
	require.NoError(t, err)

	assert.Equal(t, booking.StatusRejected, rejected.Status)
	assert.Equal(t, "House closed for maintenance", rejected.RejectionReason)
	assert.NotEmpty(t, rejected.ManageToken, "rejection mints a token so the requester can self-edit")
	assert.Equal(t, []booking.BookingID{b.ID}, notifier.rejected)

	trail, err := svc.AuditTrail(ctx, b.ID, asAdmin)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, booking.AuditRejected, trail[1].Action)
	assert.Equal(t, "House closed for maintenance", trail[1].Comment)
}

func TestReject_ThenApprove_ClearsReason(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 12))
	require.NoError(t, err)
	_, err = svc.Reject(ctx, b.ID, "approver-1", "changed my mind later")
	require.NoError(t, err)

	approved, err := svc.Approve(ctx, b.ID, "approver-1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusApproved, approved.Status)
	assert.Empty(t, approved.RejectionReason)
}

func TestRejectedBookingDoesNotBlockDates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 15))
	require.NoError(t, err)
	_, err = svc.Reject(ctx, b.ID, "approver-1", "overbooked that week")
	require.NoError(t, err)

	_, err = svc.Create(ctx, internalRequest(10, 15))
	require.NoError(t, err)
}

// =============================================================================
// EDIT
// =============================================================================

func TestEdit_ResetsApprovalToPending(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 12))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, b.ID, "approver-1")
	require.NoError(t, err)

	guests := 3
	edited, err := svc.Edit(ctx, b.ID, asMember("member-1"), booking.EditRequest{
		TotalGuests: &guests,
	})
	require.NoError(t, err)

	assert.Equal(t, booking.StatusPending, edited.Status)
	assert.Empty(t, edited.ApprovedBy)
	assert.Nil(t, edited.ApprovedAt)
	assert.Equal(t, 3, edited.TotalGuests)

	trail, err := svc.AuditTrail(ctx, b.ID, asAdmin)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, booking.AuditComment, trail[2].Action)
	assert.Contains(t, trail[2].Comment, "re-approval required")
}

func TestEdit_InternalKeepsPriceUnlessRecalculated(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 12))
	require.NoError(t, err)
	original := b.TotalAmount

	guests := 4
	edited, err := svc.Edit(ctx, b.ID, asMember("member-1"), booking.EditRequest{
		TotalGuests: &guests,
	})
	require.NoError(t, err)
	assert.True(t, edited.TotalAmount.Equal(original), "internal edits keep the stored amount")

	edited, err = svc.Edit(ctx, b.ID, asMember("member-1"), booking.EditRequest{
		Counts:      fees.GuestCounts{fees.GuestMember: 4},
		Recalculate: true,
	})
	require.NoError(t, err)
	// 4 members x 50 x 2 nights = 400.
	assert.True(t, edited.TotalAmount.Equal(decimal.NewFromInt(400)))
}

func TestEdit_ConflictRollsBackEverything(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, internalRequest(10, 15))
	require.NoError(t, err)

	second := internalRequest(20, 25)
	second.RequestedBy = "member-2"
	b2, err := svc.Create(ctx, second)
	require.NoError(t, err)

	clash := booking.DateRange{Start: july(12), End: july(22)}
	_, err = svc.Edit(ctx, b2.ID, asMember("member-2"), booking.EditRequest{Range: &clash})
	require.Error(t, err)
	assert.True(t, errors.Is(err, booking.ErrConflict))

	// Booking and audit trail are untouched.
	got, err := svc.Get(ctx, b2.ID, asAdmin)
	require.NoError(t, err)
	assert.True(t, got.Range.Start.Equal(july(20)))
	trail, err := svc.AuditTrail(ctx, b2.ID, asAdmin)
	require.NoError(t, err)
	assert.Len(t, trail, 1)
}

func TestEdit_ExternalRepricesFromStoredCounts(t *testing.T) {
	// GIVEN: An external booking priced from counts only, no named guests
	// WHEN:  An edit changes an unrelated field
	// THEN:  The reprice still bills the stored adult/child buckets
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, externalRequest(10, 12))
	require.NoError(t, err)
	require.Empty(t, b.Guests)
	require.True(t, b.TotalAmount.Equal(decimal.NewFromInt(480)))

	guests := 3
	edited, err := svc.Edit(ctx, b.ID, booking.Accessor{ManageToken: b.ManageToken}, booking.EditRequest{
		TotalGuests: &guests,
	})
	require.NoError(t, err)
	assert.True(t, edited.TotalAmount.Equal(decimal.NewFromInt(480)),
		"total changed to %s", edited.TotalAmount)
	assert.Equal(t, 2, edited.Counts[fees.GuestAdult])

	// New counts replace the stored buckets for this and later edits.
	edited, err = svc.Edit(ctx, b.ID, booking.Accessor{ManageToken: b.ManageToken}, booking.EditRequest{
		Counts: fees.GuestCounts{fees.GuestAdult: 3},
	})
	require.NoError(t, err)
	// 3 adults x 120 x 2 nights = 720.
	assert.True(t, edited.TotalAmount.Equal(decimal.NewFromInt(720)))
}

func TestEdit_ConcurrentCancelWins(t *testing.T) {
	svc, mem, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 12))
	require.NoError(t, err)

	wrapped := &raceTxStore{TxStore: mem, beforeTx: func() {
		_, err := svc.Cancel(ctx, b.ID, asAdmin)
		require.NoError(t, err)
	}}
	racer := booking.NewService(wrapped, fees.NewResolver(mem), nil, zerolog.Nop())

	guests := 3
	_, err = racer.Edit(ctx, b.ID, asMember("member-1"), booking.EditRequest{TotalGuests: &guests})
	require.Error(t, err)
	assert.True(t, errors.Is(err, booking.ErrInvalidTransition))

	got, err := svc.Get(ctx, b.ID, asAdmin)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, got.Status)
}

func TestEdit_AccessControl(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, externalRequest(10, 12))
	require.NoError(t, err)

	guests := 3
	edit := booking.EditRequest{TotalGuests: &guests}

	// A stranger cannot edit.
	_, err = svc.Edit(ctx, b.ID, asMember("member-9"), edit)
	require.Error(t, err)
	assert.True(t, errors.Is(err, booking.ErrAccessDenied))

	// The manage token can.
	_, err = svc.Edit(ctx, b.ID, booking.Accessor{ManageToken: b.ManageToken}, edit)
	require.NoError(t, err)

	// So can the lead email.
	guests = 4
	_, err = svc.Edit(ctx, b.ID, booking.Accessor{LeadEmail: "JAMIE@example.com"}, edit)
	require.NoError(t, err)
}

// =============================================================================
// CANCEL - Terminal state
// =============================================================================

func TestCancelled_IsTerminal(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 12))
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, b.ID, asMember("member-1"))
	require.NoError(t, err)

	_, err = svc.Approve(ctx, b.ID, "approver-1")
	assert.True(t, errors.Is(err, booking.ErrInvalidTransition))

	_, err = svc.Reject(ctx, b.ID, "approver-1", "already gone anyway")
	assert.True(t, errors.Is(err, booking.ErrInvalidTransition))

	guests := 3
	_, err = svc.Edit(ctx, b.ID, asAdmin, booking.EditRequest{TotalGuests: &guests})
	assert.True(t, errors.Is(err, booking.ErrInvalidTransition))

	// Cancel itself stays idempotent.
	again, err := svc.Cancel(ctx, b.ID, asMember("member-1"))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, again.Status)
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func TestAuditTrail_OrderedBySeq(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 12))
	require.NoError(t, err)
	_, err = svc.Approve(ctx, b.ID, "approver-1")
	require.NoError(t, err)
	require.NoError(t, svc.Comment(ctx, b.ID, asAdmin, "gate code is 4711"))
	_, err = svc.Cancel(ctx, b.ID, asAdmin)
	require.NoError(t, err)

	trail, err := svc.AuditTrail(ctx, b.ID, asAdmin)
	require.NoError(t, err)
	require.Len(t, trail, 4)

	actions := []booking.AuditAction{
		booking.AuditCreated, booking.AuditApproved,
		booking.AuditComment, booking.AuditComment,
	}
	for i, e := range trail {
		assert.Equal(t, actions[i], e.Action, "entry %d", i)
		if i > 0 {
			assert.Greater(t, e.Seq, trail[i-1].Seq, "seq must be strictly increasing")
		}
	}
}

func TestComment_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b, err := svc.Create(ctx, internalRequest(10, 12))
	require.NoError(t, err)

	err = svc.Comment(ctx, b.ID, asAdmin, "   ")
	assert.True(t, errors.Is(err, booking.ErrValidation))

	err = svc.Comment(ctx, b.ID, booking.Accessor{UserID: "stranger", Role: booking.RoleGuest}, "hello")
	assert.True(t, errors.Is(err, booking.ErrAccessDenied))
}

// =============================================================================
// QUERIES
// =============================================================================

func TestGet_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Get(context.Background(), "missing", asAdmin)
	assert.True(t, errors.Is(err, booking.ErrNotFound))
}

func TestList_StatusFilter(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	b1, err := svc.Create(ctx, internalRequest(1, 3))
	require.NoError(t, err)
	b2Req := internalRequest(5, 7)
	b2Req.RequestedBy = "member-2"
	b2, err := svc.Create(ctx, b2Req)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, b2.ID, "approver-1")
	require.NoError(t, err)

	pending, err := svc.List(ctx, booking.Filter{Statuses: []booking.Status{booking.StatusPending}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b1.ID, pending[0].ID)
}
