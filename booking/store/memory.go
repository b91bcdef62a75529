// Package store provides an in-memory implementation of the persistence
// contracts (booking.TxStore and fees.ConfigStore) for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/fees"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	bookings map[booking.BookingID]*booking.Booking
	audits   map[booking.BookingID][]booking.AuditEntry
	seq      int64

	configs  []fees.FeeConfig
	seasonal map[string][]fees.SeasonalRate
}

func NewMemory() *Memory {
	return &Memory{
		bookings: make(map[booking.BookingID]*booking.Booking),
		audits:   make(map[booking.BookingID][]booking.AuditEntry),
		seasonal: make(map[string][]fees.SeasonalRate),
	}
}

// =============================================================================
// BOOKING STORE
// =============================================================================

func (m *Memory) CreateBooking(_ context.Context, b *booking.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(b)
}

func (m *Memory) createLocked(b *booking.Booking) error {
	m.bookings[b.ID] = copyBooking(b)
	return nil
}

func (m *Memory) UpdateBooking(_ context.Context, b *booking.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(b)
}

func (m *Memory) updateLocked(b *booking.Booking) error {
	if _, ok := m.bookings[b.ID]; !ok {
		return booking.ErrNotFound
	}
	m.bookings[b.ID] = copyBooking(b)
	return nil
}

func (m *Memory) GetBooking(_ context.Context, id booking.BookingID) (*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) getLocked(id booking.BookingID) (*booking.Booking, error) {
	b, ok := m.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return copyBooking(b), nil
}

func (m *Memory) ListBookings(_ context.Context, f booking.Filter) ([]*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*booking.Booking
	for _, b := range m.bookings {
		if !matches(b, f) {
			continue
		}
		result = append(result, copyBooking(b))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func matches(b *booking.Booking, f booking.Filter) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if b.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && !b.Range.End.After(*f.From) {
		return false
	}
	if f.To != nil && !b.Range.Start.Before(*f.To) {
		return false
	}
	return true
}

func (m *Memory) FindOverlapping(_ context.Context, r booking.DateRange, exclude booking.BookingID) (*booking.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOverlappingLocked(r, exclude)
}

func (m *Memory) findOverlappingLocked(r booking.DateRange, exclude booking.BookingID) (*booking.Booking, error) {
	// Deterministic scan order so "first conflicting booking" is stable.
	ids := make([]booking.BookingID, 0, len(m.bookings))
	for id := range m.bookings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		b := m.bookings[id]
		if b.ID == exclude || !b.Status.Active() {
			continue
		}
		if b.Range.Overlaps(r) {
			return copyBooking(b), nil
		}
	}
	return nil, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry *booking.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAuditLocked(entry)
}

func (m *Memory) appendAuditLocked(entry *booking.AuditEntry) error {
	m.seq++
	entry.Seq = m.seq
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.audits[entry.BookingID] = append(m.audits[entry.BookingID], *entry)
	return nil
}

func (m *Memory) AuditTrail(_ context.Context, id booking.BookingID) ([]booking.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	trail := make([]booking.AuditEntry, len(m.audits[id]))
	copy(trail, m.audits[id])
	return trail, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback under a single write lock
// =============================================================================

// WithTx executes fn while holding the write lock, which serializes the
// conflict check against concurrent writers. On error the pre-transaction
// state is restored.
func (m *Memory) WithTx(_ context.Context, fn func(booking.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	bookings map[booking.BookingID]*booking.Booking
	audits   map[booking.BookingID][]booking.AuditEntry
	seq      int64
}

func (m *Memory) snapshot() memorySnapshot {
	bookings := make(map[booking.BookingID]*booking.Booking, len(m.bookings))
	for id, b := range m.bookings {
		bookings[id] = copyBooking(b)
	}
	audits := make(map[booking.BookingID][]booking.AuditEntry, len(m.audits))
	for id, trail := range m.audits {
		audits[id] = append([]booking.AuditEntry{}, trail...)
	}
	return memorySnapshot{bookings: bookings, audits: audits, seq: m.seq}
}

func (m *Memory) restore(s memorySnapshot) {
	m.bookings = s.bookings
	m.audits = s.audits
	m.seq = s.seq
}

// txView routes Store calls to the parent's unlocked methods; the parent
// holds its write lock for the whole transaction.
type txView struct {
	parent *Memory
}

func (tv *txView) CreateBooking(_ context.Context, b *booking.Booking) error {
	return tv.parent.createLocked(b)
}

func (tv *txView) UpdateBooking(_ context.Context, b *booking.Booking) error {
	return tv.parent.updateLocked(b)
}

func (tv *txView) GetBooking(_ context.Context, id booking.BookingID) (*booking.Booking, error) {
	return tv.parent.getLocked(id)
}

func (tv *txView) ListBookings(ctx context.Context, f booking.Filter) ([]*booking.Booking, error) {
	var result []*booking.Booking
	for _, b := range tv.parent.bookings {
		if matches(b, f) {
			result = append(result, copyBooking(b))
		}
	}
	return result, nil
}

func (tv *txView) FindOverlapping(_ context.Context, r booking.DateRange, exclude booking.BookingID) (*booking.Booking, error) {
	return tv.parent.findOverlappingLocked(r, exclude)
}

func (tv *txView) AppendAudit(_ context.Context, entry *booking.AuditEntry) error {
	return tv.parent.appendAuditLocked(entry)
}

func (tv *txView) AuditTrail(_ context.Context, id booking.BookingID) ([]booking.AuditEntry, error) {
	trail := make([]booking.AuditEntry, len(tv.parent.audits[id]))
	copy(trail, tv.parent.audits[id])
	return trail, nil
}

// =============================================================================
// FEE CONFIG STORE
// =============================================================================

func (m *Memory) ActiveConfigs(_ context.Context, date time.Time) ([]fees.FeeConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fees.FeeConfig
	for _, c := range m.configs {
		if c.IsActive && c.Covers(date) {
			result = append(result, copyConfig(c))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EffectiveFrom.After(result[j].EffectiveFrom)
	})
	return result, nil
}

func (m *Memory) SeasonalRates(_ context.Context, configID string) ([]fees.SeasonalRate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []fees.SeasonalRate
	for _, s := range m.seasonal[configID] {
		if s.Enabled {
			result = append(result, s)
		}
	}
	return result, nil
}

// EnsureDefaultConfig installs cfg unless a config with the same ID already
// exists. The single lock makes concurrent first-use install exactly one.
func (m *Memory) EnsureDefaultConfig(_ context.Context, cfg fees.FeeConfig) (*fees.FeeConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.configs {
		if c.ID == cfg.ID {
			existing := copyConfig(c)
			return &existing, nil
		}
	}
	m.configs = append(m.configs, copyConfig(cfg))
	installed := copyConfig(cfg)
	return &installed, nil
}

// SaveFeeConfig adds or replaces a rate table (seeding, admin).
func (m *Memory) SaveFeeConfig(_ context.Context, cfg fees.FeeConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.configs {
		if c.ID == cfg.ID {
			m.configs[i] = copyConfig(cfg)
			return nil
		}
	}
	m.configs = append(m.configs, copyConfig(cfg))
	return nil
}

// SaveSeasonalRate adds or replaces a seasonal window for its config.
func (m *Memory) SaveSeasonalRate(_ context.Context, s fees.SeasonalRate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rates := m.seasonal[s.ConfigID]
	for i, existing := range rates {
		if existing.ID == s.ID {
			rates[i] = s
			return nil
		}
	}
	m.seasonal[s.ConfigID] = append(rates, s)
	return nil
}

// =============================================================================
// COPIES - Callers never share memory with the store
// =============================================================================

func copyBooking(b *booking.Booking) *booking.Booking {
	c := *b
	c.Guests = append([]booking.Guest{}, b.Guests...)
	c.RoomAllocations = append([]booking.RoomAllocation{}, b.RoomAllocations...)
	if b.Counts != nil {
		c.Counts = make(fees.GuestCounts, len(b.Counts))
		for k, v := range b.Counts {
			c.Counts[k] = v
		}
	}
	if b.ApprovedAt != nil {
		at := *b.ApprovedAt
		c.ApprovedAt = &at
	}
	if b.FeeSnapshot != nil {
		snap := *b.FeeSnapshot
		snap.LineItems = append([]fees.LineItem{}, b.FeeSnapshot.LineItems...)
		c.FeeSnapshot = &snap
	}
	return &c
}

func copyConfig(c fees.FeeConfig) fees.FeeConfig {
	out := c
	out.NightlyRates = make(map[fees.GuestType]decimal.Decimal, len(c.NightlyRates))
	for k, v := range c.NightlyRates {
		out.NightlyRates[k] = v
	}
	if c.EffectiveTo != nil {
		to := *c.EffectiveTo
		out.EffectiveTo = &to
	}
	if c.WholeHouseMinimum != nil {
		min := *c.WholeHouseMinimum
		out.WholeHouseMinimum = &min
	}
	return out
}
