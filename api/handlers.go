/*
handlers.go - HTTP API handlers for the booking engine

PURPOSE:
  Exposes the booking lifecycle and fee engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Bookings:
    POST   /api/bookings                Create booking (internal or public)
    GET    /api/bookings                List bookings (staff)
    GET    /api/bookings/{id}           Get booking details
    PATCH  /api/bookings/{id}           Edit booking (resets to PENDING)
    POST   /api/bookings/{id}/approve   Approve (staff)
    POST   /api/bookings/{id}/reject    Reject with reason (staff)
    POST   /api/bookings/{id}/cancel    Cancel
    POST   /api/bookings/{id}/comments  Append audit comment
    GET    /api/bookings/{id}/audit     Audit trail

  Fees:
    GET    /api/fees/config             Active rate table for a date
    PUT    /api/fees/config             Upload a JSON rate table (admin)
    POST   /api/fees/quote              Price a stay without persisting

AUTHENTICATION:
  Caller identity arrives via trusted headers (X-User-ID, X-User-Role),
  set by the reverse proxy in front of this service. Anonymous external
  requesters authenticate per booking with ?token= (the manage token
  returned at creation) or X-Lead-Email.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Access denied
  - 404: Booking not found
  - 409: Overlapping date range (response names the clashing booking)
  - 422: Transition not allowed from the current status
  - 500: Internal errors, fee configuration failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - booking/service.go: The lifecycle state machine
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/fees"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// ConfigAdmin persists uploaded rate tables. Both the sqlite and the
// in-memory store satisfy it.
type ConfigAdmin interface {
	SaveFeeConfig(ctx context.Context, cfg fees.FeeConfig) error
	SaveSeasonalRate(ctx context.Context, sr fees.SeasonalRate) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *booking.Service
	Fees    *fees.Resolver
	Config  ConfigAdmin
	Logger  zerolog.Logger
}

// NewHandler creates a handler around the lifecycle service.
func NewHandler(svc *booking.Service, resolver *fees.Resolver, cfgAdmin ConfigAdmin, logger zerolog.Logger) *Handler {
	return &Handler{Service: svc, Fees: resolver, Config: cfgAdmin, Logger: logger}
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// CreateBooking opens a booking and returns it as PENDING. For external
// public bookings the response includes the one-time manage token.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	dr, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid dates", err)
		return
	}

	accessor := callerFrom(r)
	b, err := h.Service.Create(r.Context(), booking.CreateRequest{
		Source:            booking.Source(req.Source),
		Scope:             booking.Scope(req.Scope),
		Range:             dr,
		TotalGuests:       req.TotalGuests,
		PetCount:          req.PetCount,
		RequestedBy:       accessor.UserID,
		ExternalLeadName:  req.LeadName,
		ExternalLeadEmail: req.LeadEmail,
		ExternalLeadPhone: req.LeadPhone,
		Guests:            toGuests(req.Guests),
		RoomAllocations:   toAllocations(req.RoomAllocations),
		Counts:            toCounts(req.Counts),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(b, true))
}

// ListBookings returns bookings matching the query filter. Staff only.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	accessor := callerFrom(r)
	if !accessor.Role.Can(booking.CapViewAny) {
		writeError(w, http.StatusForbidden, "Access denied", booking.ErrAccessDenied)
		return
	}

	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	bookings, err := h.Service.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bookings", err)
		return
	}

	dtos := make([]BookingDTO, len(bookings))
	for i, b := range bookings {
		dtos[i] = toBookingDTO(b, false)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBooking returns a single booking if the caller may see it.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := booking.BookingID(chi.URLParam(r, "id"))
	b, err := h.Service.Get(r.Context(), id, callerFrom(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b, false))
}

// EditBooking mutates a booking and resets it to PENDING.
func (h *Handler) EditBooking(w http.ResponseWriter, r *http.Request) {
	id := booking.BookingID(chi.URLParam(r, "id"))

	var req EditBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if (req.StartDate == nil) != (req.EndDate == nil) {
		writeError(w, http.StatusBadRequest, "startDate and endDate must be changed together", nil)
		return
	}

	edit := booking.EditRequest{
		TotalGuests: req.TotalGuests,
		PetCount:    req.PetCount,
		Counts:      toCounts(req.Counts),
		Recalculate: req.Recalculate,
	}
	if req.StartDate != nil {
		dr, err := parseRange(*req.StartDate, *req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid dates", err)
			return
		}
		edit.Range = &dr
	}
	if req.Guests != nil {
		guests := toGuests(*req.Guests)
		edit.Guests = &guests
	}
	if req.RoomAllocations != nil {
		allocs := toAllocations(*req.RoomAllocations)
		edit.RoomAllocations = &allocs
	}

	b, err := h.Service.Edit(r.Context(), id, callerFrom(r), edit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b, false))
}

// ApproveBooking transitions a booking into APPROVED. Staff only.
func (h *Handler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	accessor := callerFrom(r)
	if !accessor.Role.Can(booking.CapApprove) {
		writeError(w, http.StatusForbidden, "Access denied", booking.ErrAccessDenied)
		return
	}

	id := booking.BookingID(chi.URLParam(r, "id"))
	b, err := h.Service.Approve(r.Context(), id, accessor.UserID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b, false))
}

// RejectBooking transitions a booking into REJECTED. Staff only.
func (h *Handler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	accessor := callerFrom(r)
	if !accessor.Role.Can(booking.CapReject) {
		writeError(w, http.StatusForbidden, "Access denied", booking.ErrAccessDenied)
		return
	}

	var req RejectBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	id := booking.BookingID(chi.URLParam(r, "id"))
	b, err := h.Service.Reject(r.Context(), id, accessor.UserID, req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b, false))
}

// CancelBooking moves a booking into CANCELLED.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := booking.BookingID(chi.URLParam(r, "id"))
	b, err := h.Service.Cancel(r.Context(), id, callerFrom(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b, false))
}

// AddComment appends a free-text comment to the audit trail.
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	id := booking.BookingID(chi.URLParam(r, "id"))
	if err := h.Service.Comment(r.Context(), id, callerFrom(r), req.Text); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// GetAuditTrail returns a booking's ordered audit entries.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	id := booking.BookingID(chi.URLParam(r, "id"))
	trail, err := h.Service.AuditTrail(r.Context(), id, callerFrom(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]AuditEntryDTO, len(trail))
	for i, e := range trail {
		dtos[i] = toAuditDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// FEE HANDLERS
// =============================================================================

// GetFeeConfig returns the rate table effective for ?date= (default today).
func (h *Handler) GetFeeConfig(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := booking.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		date = d.Time()
	}

	resolved, err := h.Fees.Resolve(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No fee configuration", err)
		return
	}

	seasons := make([]SeasonalRateDTO, len(resolved.SeasonalRates))
	for i, sr := range resolved.SeasonalRates {
		seasons[i] = toSeasonalRateDTO(sr)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"config":        toFeeConfigDTO(resolved.Config),
		"seasonalRates": seasons,
	})
}

// PutFeeConfig installs a JSON rate table. Admin only.
func (h *Handler) PutFeeConfig(w http.ResponseWriter, r *http.Request) {
	accessor := callerFrom(r)
	if !accessor.Role.Can(booking.CapManageFees) {
		writeError(w, http.StatusForbidden, "Access denied", booking.ErrAccessDenied)
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}

	cfg, seasons, err := fees.ParseConfig(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rate table", err)
		return
	}

	if err := h.Config.SaveFeeConfig(r.Context(), *cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rate table", err)
		return
	}
	for _, s := range seasons {
		if err := h.Config.SaveSeasonalRate(r.Context(), s); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save seasonal rate", err)
			return
		}
	}

	h.Logger.Info().Str("config_id", cfg.ID).Int("seasonal_rates", len(seasons)).Msg("rate table installed")
	writeJSON(w, http.StatusCreated, map[string]string{"id": cfg.ID})
}

// QuoteFees prices a hypothetical stay. Nothing is persisted.
func (h *Handler) QuoteFees(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	start, err := booking.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start date", err)
		return
	}
	if req.Nights < 1 {
		writeError(w, http.StatusBadRequest, "At least one night required", nil)
		return
	}

	resolved, err := h.Fees.Resolve(r.Context(), start.Time())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "No fee configuration", err)
		return
	}

	breakdown, err := fees.Calculate(fees.CalcInput{
		Source:    req.Source,
		StartDate: start.Time(),
		Nights:    req.Nights,
		Guests:    toCounts(req.Counts),
	}, resolved)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Cannot price stay", err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(breakdown))
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

// callerFrom builds the accessor from trusted headers and the per-booking
// self-service credentials.
func callerFrom(r *http.Request) booking.Accessor {
	return booking.Accessor{
		UserID:      booking.UserID(r.Header.Get("X-User-ID")),
		Role:        booking.Role(r.Header.Get("X-User-Role")),
		ManageToken: r.URL.Query().Get("token"),
		LeadEmail:   r.Header.Get("X-Lead-Email"),
	}
}

func parseRange(start, end string) (booking.DateRange, error) {
	s, err := booking.ParseDate(start)
	if err != nil {
		return booking.DateRange{}, err
	}
	e, err := booking.ParseDate(end)
	if err != nil {
		return booking.DateRange{}, err
	}
	return booking.DateRange{Start: s, End: e}, nil
}

func parseFilter(r *http.Request) (booking.Filter, error) {
	var f booking.Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			f.Statuses = append(f.Statuses, booking.Status(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := booking.ParseDate(raw)
		if err != nil {
			return f, err
		}
		f.From = &d
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		d, err := booking.ParseDate(raw)
		if err != nil {
			return f, err
		}
		f.To = &d
	}
	return f, nil
}

// =============================================================================
// RESPONSES
// =============================================================================

// writeDomainError maps domain errors onto HTTP statuses. Conflicts include
// the clashing booking so clients can show which stay is in the way.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var conflict *booking.ConflictError
	if errors.As(err, &conflict) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "Requested dates overlap an existing booking",
			"conflict": map[string]string{
				"bookingId": string(conflict.ClashingID),
				"status":    string(conflict.ClashingStatus),
				"startDate": conflict.ClashingRange.Start.String(),
				"endDate":   conflict.ClashingRange.End.String(),
			},
		})
		return
	}

	switch {
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	case errors.Is(err, booking.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "Access denied", err)
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "Booking not found", err)
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, "Transition not allowed", err)
	default:
		h.Logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	body := map[string]string{"error": message}
	if err != nil {
		body["detail"] = err.Error()
	}
	writeJSON(w, status, body)
}
