/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  Stay dates travel as "YYYY-MM-DD" strings and are half-open: the end
  date is the checkout day and is not charged.

VALIDATION:
  Structural validation (parseable dates, known enum values) happens here;
  business validation lives in the booking service.

SEE ALSO:
  - handlers.go: Uses these types
  - fees/factory.go: ConfigJSON, the rate-table upload schema
*/
package api

import (
	"fmt"
	"time"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/fees"
)

// =============================================================================
// BOOKING TYPES
// =============================================================================

// GuestDTO is a named occupant with a pricing bucket.
type GuestDTO struct {
	Name      string `json:"name"`
	GuestType string `json:"guestType"`
}

// RoomAllocationDTO assigns a guest count to a named room.
type RoomAllocationDTO struct {
	RoomName   string `json:"roomName"`
	GuestCount int    `json:"guestCount"`
}

// LineItemDTO is one row of a fee breakdown.
type LineItemDTO struct {
	Label  string `json:"label"`
	Amount string `json:"amount"`
}

// BreakdownDTO mirrors the stored fee snapshot.
type BreakdownDTO struct {
	LineItems         []LineItemDTO `json:"lineItems"`
	Total             string        `json:"total"`
	Currency          string        `json:"currency"`
	EffectiveRateName string        `json:"effectiveRateName,omitempty"`
}

// BookingDTO represents a booking in API responses. The manage token is
// only included in the creation response.
type BookingDTO struct {
	ID              string              `json:"id"`
	Source          string              `json:"source"`
	Scope           string              `json:"scope"`
	Status          string              `json:"status"`
	StartDate       string              `json:"startDate"`
	EndDate         string              `json:"endDate"`
	Nights          int                 `json:"nights"`
	TotalGuests     int                 `json:"totalGuests"`
	PetCount        int                 `json:"petCount"`
	RequestedBy     string              `json:"requestedBy,omitempty"`
	LeadName        string              `json:"leadName,omitempty"`
	LeadEmail       string              `json:"leadEmail,omitempty"`
	LeadPhone       string              `json:"leadPhone,omitempty"`
	ApprovedBy      string              `json:"approvedBy,omitempty"`
	ApprovedAt      string              `json:"approvedAt,omitempty"`
	RejectionReason string              `json:"rejectionReason,omitempty"`
	TotalAmount     string              `json:"totalAmount"`
	Currency        string              `json:"currency"`
	FeeBreakdown    *BreakdownDTO       `json:"feeBreakdown,omitempty"`
	Guests          []GuestDTO          `json:"guests,omitempty"`
	RoomAllocations []RoomAllocationDTO `json:"roomAllocations,omitempty"`
	ManageToken     string              `json:"manageToken,omitempty"`
	CreatedAt       string              `json:"createdAt"`
	UpdatedAt       string              `json:"updatedAt"`
}

func toBookingDTO(b *booking.Booking, includeToken bool) BookingDTO {
	dto := BookingDTO{
		ID:              string(b.ID),
		Source:          string(b.Source),
		Scope:           string(b.Scope),
		Status:          string(b.Status),
		StartDate:       b.Range.Start.String(),
		EndDate:         b.Range.End.String(),
		Nights:          b.Nights,
		TotalGuests:     b.TotalGuests,
		PetCount:        b.PetCount,
		RequestedBy:     string(b.RequestedBy),
		LeadName:        b.ExternalLeadName,
		LeadEmail:       b.ExternalLeadEmail,
		LeadPhone:       b.ExternalLeadPhone,
		ApprovedBy:      string(b.ApprovedBy),
		RejectionReason: b.RejectionReason,
		TotalAmount:     b.TotalAmount.String(),
		Currency:        b.Currency,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       b.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if b.ApprovedAt != nil {
		dto.ApprovedAt = b.ApprovedAt.UTC().Format(time.RFC3339)
	}
	if includeToken {
		dto.ManageToken = b.ManageToken
	}
	dto.FeeBreakdown = toBreakdownDTO(b.FeeSnapshot)
	for _, g := range b.Guests {
		dto.Guests = append(dto.Guests, GuestDTO{Name: g.Name, GuestType: string(g.GuestType)})
	}
	for _, ra := range b.RoomAllocations {
		dto.RoomAllocations = append(dto.RoomAllocations, RoomAllocationDTO{
			RoomName: ra.RoomName, GuestCount: ra.GuestCount,
		})
	}
	return dto
}

func toBreakdownDTO(b *fees.Breakdown) *BreakdownDTO {
	if b == nil {
		return nil
	}
	dto := &BreakdownDTO{
		Total:             b.Total.String(),
		Currency:          b.Currency,
		EffectiveRateName: b.EffectiveRateName,
	}
	for _, li := range b.LineItems {
		dto.LineItems = append(dto.LineItems, LineItemDTO{Label: li.Label, Amount: li.Amount.String()})
	}
	return dto
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateBookingRequest opens a booking. Counts are the pricing buckets; when
// omitted they are derived from the tagged guests list.
type CreateBookingRequest struct {
	Source          string              `json:"source"`
	Scope           string              `json:"scope,omitempty"`
	StartDate       string              `json:"startDate"`
	EndDate         string              `json:"endDate"`
	TotalGuests     int                 `json:"totalGuests"`
	PetCount        int                 `json:"petCount,omitempty"`
	LeadName        string              `json:"leadName,omitempty"`
	LeadEmail       string              `json:"leadEmail,omitempty"`
	LeadPhone       string              `json:"leadPhone,omitempty"`
	Guests          []GuestDTO          `json:"guests,omitempty"`
	RoomAllocations []RoomAllocationDTO `json:"roomAllocations,omitempty"`
	Counts          map[string]int      `json:"counts,omitempty"`
}

// EditBookingRequest mutates a booking; absent fields stay unchanged.
type EditBookingRequest struct {
	StartDate       *string              `json:"startDate,omitempty"`
	EndDate         *string              `json:"endDate,omitempty"`
	TotalGuests     *int                 `json:"totalGuests,omitempty"`
	PetCount        *int                 `json:"petCount,omitempty"`
	Guests          *[]GuestDTO          `json:"guests,omitempty"`
	RoomAllocations *[]RoomAllocationDTO `json:"roomAllocations,omitempty"`
	Counts          map[string]int       `json:"counts,omitempty"`
	Recalculate     bool                 `json:"recalculate,omitempty"`
}

// RejectBookingRequest carries the mandatory rejection reason.
type RejectBookingRequest struct {
	Reason string `json:"reason"`
}

// CommentRequest appends a free-text audit comment.
type CommentRequest struct {
	Text string `json:"text"`
}

// QuoteRequest prices a hypothetical stay without persisting anything.
type QuoteRequest struct {
	Source    string         `json:"source"`
	StartDate string         `json:"startDate"`
	Nights    int            `json:"nights"`
	Counts    map[string]int `json:"counts"`
}

// AuditEntryDTO is one row of a booking's audit trail.
type AuditEntryDTO struct {
	Seq       int64  `json:"seq"`
	Action    string `json:"action"`
	ActorID   string `json:"actorId,omitempty"`
	ActorRole string `json:"actorRole,omitempty"`
	Comment   string `json:"comment,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func toAuditDTO(e booking.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		Seq:       e.Seq,
		Action:    string(e.Action),
		ActorID:   string(e.ActorID),
		ActorRole: e.ActorRole,
		Comment:   e.Comment,
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// FEE CONFIG TYPES
// =============================================================================

// FeeConfigDTO is the rate table as served to clients. Rates travel as
// decimal strings, effective dates as "YYYY-MM-DD".
type FeeConfigDTO struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	IsActive            bool              `json:"isActive"`
	EffectiveFrom       string            `json:"effectiveFrom"`
	EffectiveTo         string            `json:"effectiveTo,omitempty"`
	Currency            string            `json:"currency"`
	NightlyRates        map[string]string `json:"nightlyRates"`
	ExternalAdultRate   string            `json:"externalAdultRate"`
	ExternalChildRate   string            `json:"externalChildRate"`
	MonthlySubscription string            `json:"monthlySubscription"`
	WholeHouseMinimum   string            `json:"wholeHouseMinimum,omitempty"`
}

// SeasonalRateDTO is an override window; start/end are "MM-DD".
type SeasonalRateDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Priority  int    `json:"priority"`
	AdultRate string `json:"adultRate"`
	ChildRate string `json:"childRate"`
}

func toFeeConfigDTO(cfg fees.FeeConfig) FeeConfigDTO {
	dto := FeeConfigDTO{
		ID:                  cfg.ID,
		Name:                cfg.Name,
		IsActive:            cfg.IsActive,
		EffectiveFrom:       cfg.EffectiveFrom.UTC().Format("2006-01-02"),
		Currency:            cfg.Currency,
		NightlyRates:        make(map[string]string, len(cfg.NightlyRates)),
		ExternalAdultRate:   cfg.ExternalAdultRate.String(),
		ExternalChildRate:   cfg.ExternalChildRate.String(),
		MonthlySubscription: cfg.MonthlySubscription.String(),
	}
	if cfg.EffectiveTo != nil {
		dto.EffectiveTo = cfg.EffectiveTo.UTC().Format("2006-01-02")
	}
	if cfg.WholeHouseMinimum != nil {
		dto.WholeHouseMinimum = cfg.WholeHouseMinimum.String()
	}
	for k, v := range cfg.NightlyRates {
		dto.NightlyRates[string(k)] = v.String()
	}
	return dto
}

func toSeasonalRateDTO(sr fees.SeasonalRate) SeasonalRateDTO {
	return SeasonalRateDTO{
		ID:        sr.ID,
		Name:      sr.Name,
		Start:     fmt.Sprintf("%02d-%02d", sr.StartMonth, sr.StartDay),
		End:       fmt.Sprintf("%02d-%02d", sr.EndMonth, sr.EndDay),
		Priority:  sr.Priority,
		AdultRate: sr.AdultRate.String(),
		ChildRate: sr.ChildRate.String(),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func toGuests(dtos []GuestDTO) []booking.Guest {
	if dtos == nil {
		return nil
	}
	guests := make([]booking.Guest, len(dtos))
	for i, g := range dtos {
		guests[i] = booking.Guest{Name: g.Name, GuestType: fees.GuestType(g.GuestType)}
	}
	return guests
}

func toAllocations(dtos []RoomAllocationDTO) []booking.RoomAllocation {
	if dtos == nil {
		return nil
	}
	allocs := make([]booking.RoomAllocation, len(dtos))
	for i, ra := range dtos {
		allocs[i] = booking.RoomAllocation{RoomName: ra.RoomName, GuestCount: ra.GuestCount}
	}
	return allocs
}

func toCounts(raw map[string]int) fees.GuestCounts {
	if len(raw) == 0 {
		return nil
	}
	counts := fees.GuestCounts{}
	for k, v := range raw {
		counts[fees.GuestType(k)] = v
	}
	return counts
}
