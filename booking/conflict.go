package booking

import (
	"context"
	"fmt"
)

// =============================================================================
// OVERLAP CONFLICT DETECTOR
// =============================================================================

// ConflictDetector answers whether a candidate date range clashes with any
// existing non-terminal booking. Half-open semantics: back-to-back stays
// sharing a checkout/check-in date do not conflict.
type ConflictDetector struct {
	Store Store
}

// Check returns a *ConflictError naming the first clashing PENDING or
// APPROVED booking, or nil when the range is free. exclude skips the
// booking's own id during edits.
//
// Check alone gives no atomicity; callers that go on to write must run both
// inside the store's transaction (see Store contract).
func (d *ConflictDetector) Check(ctx context.Context, r DateRange, exclude BookingID) error {
	return CheckOverlap(ctx, d.Store, r, exclude)
}

// CheckOverlap is the store-parameterized form used inside transactions.
func CheckOverlap(ctx context.Context, store Store, r DateRange, exclude BookingID) error {
	clash, err := store.FindOverlapping(ctx, r, exclude)
	if err != nil {
		return fmt.Errorf("overlap query: %w", err)
	}
	if clash == nil {
		return nil
	}
	return &ConflictError{
		ClashingID:     clash.ID,
		ClashingStatus: clash.Status,
		ClashingRange:  clash.Range,
		Requested:      r,
	}
}
