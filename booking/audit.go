package booking

import "time"

// =============================================================================
// AUDIT TRAIL - Append-only, insertion-ordered log per booking
// =============================================================================
//
// Every state transition and comment appends exactly one entry. Entries are
// never edited or removed. Ordering relies on a store-assigned monotonic
// sequence number rather than timestamps, so concurrent writers cannot
// produce ties.

type AuditAction string

const (
	AuditCreated  AuditAction = "CREATED"
	AuditApproved AuditAction = "APPROVED"
	AuditRejected AuditAction = "REJECTED"
	AuditComment  AuditAction = "COMMENT"
)

// AuditEntry records who did what to a booking.
type AuditEntry struct {
	BookingID BookingID
	Seq       int64 // assigned by the store on append, strictly increasing
	Action    AuditAction
	ActorID   UserID // empty for anonymous manage-token holders
	ActorRole string
	Comment   string
	CreatedAt time.Time
}
