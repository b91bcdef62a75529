package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/booking-engine/api"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/booking/store"
	"github.com/warp/booking-engine/fees"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mem := store.NewMemory()
	resolver := fees.NewResolver(mem)
	svc := booking.NewService(mem, resolver, nil, zerolog.Nop())
	handler := api.NewHandler(svc, resolver, mem, zerolog.Nop())

	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

var approverHeaders = map[string]string{"X-User-ID": "approver-1", "X-User-Role": "approver"}
var adminHeaders = map[string]string{"X-User-ID": "admin-1", "X-User-Role": "admin"}

func externalBookingBody(start, end string) map[string]any {
	return map[string]any{
		"source":      "EXTERNAL_PUBLIC",
		"startDate":   start,
		"endDate":     end,
		"totalGuests": 2,
		"leadName":    "Jamie Lead",
		"leadEmail":   "jamie@example.com",
		"counts":      map[string]int{"adult": 2},
	}
}

// =============================================================================
// BOOKING LIFECYCLE OVER HTTP
// =============================================================================

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestCreateBooking_External(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/bookings",
		externalBookingBody("2026-07-10", "2026-07-12"), nil)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "WHOLE_HOUSE", body["scope"])
	assert.NotEmpty(t, body["manageToken"], "creation response carries the manage token")
	// Default external adult rate 120 x 2 adults x 2 nights.
	assert.Equal(t, "480", body["totalAmount"])
	assert.NotNil(t, body["feeBreakdown"])
}

func TestCreateBooking_Conflict(t *testing.T) {
	srv := newTestServer(t)

	resp, first := doJSON(t, http.MethodPost, srv.URL+"/api/bookings",
		externalBookingBody("2026-07-10", "2026-07-15"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/bookings",
		externalBookingBody("2026-07-12", "2026-07-18"), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	conflict, ok := body["conflict"].(map[string]any)
	require.True(t, ok, "conflict response names the clashing booking: %v", body)
	assert.Equal(t, first["id"], conflict["bookingId"])
	assert.Equal(t, "2026-07-10", conflict["startDate"])
}

func TestCreateBooking_BadDates(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/bookings",
		externalBookingBody("July 10", "2026-07-12"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApprove_RequiresApproverRole(t *testing.T) {
	srv := newTestServer(t)

	_, created := doJSON(t, http.MethodPost, srv.URL+"/api/bookings",
		externalBookingBody("2026-07-10", "2026-07-12"), nil)
	id := created["id"].(string)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/bookings/"+id+"/approve", nil,
		map[string]string{"X-User-ID": "member-1", "X-User-Role": "member"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/bookings/"+id+"/approve", nil, approverHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "APPROVED", body["status"])
	assert.Equal(t, "approver-1", body["approvedBy"])
}

func TestReject_ReasonValidation(t *testing.T) {
	srv := newTestServer(t)

	_, created := doJSON(t, http.MethodPost, srv.URL+"/api/bookings",
		externalBookingBody("2026-07-10", "2026-07-12"), nil)
	id := created["id"].(string)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/bookings/"+id+"/reject",
		map[string]string{"reason": "no"}, approverHeaders)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/bookings/"+id+"/reject",
		map[string]string{"reason": "House closed that week"}, approverHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "REJECTED", body["status"])
	assert.Equal(t, "House closed that week", body["rejectionReason"])
}

func TestGetBooking_TokenAccess(t *testing.T) {
	srv := newTestServer(t)

	_, created := doJSON(t, http.MethodPost, srv.URL+"/api/bookings",
		externalBookingBody("2026-07-10", "2026-07-12"), nil)
	id := created["id"].(string)
	token := created["manageToken"].(string)

	// Anonymous without credentials: denied.
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/bookings/"+id, nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The manage token unlocks exactly this booking; the response never
	// echoes the token back.
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/bookings/"+id+"?token="+token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["id"])
	assert.Nil(t, body["manageToken"])
}

func TestGetBooking_NotFound(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/bookings/nope", nil, adminHeaders)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEditBooking_CancelledIsUnprocessable(t *testing.T) {
	srv := newTestServer(t)

	_, created := doJSON(t, http.MethodPost, srv.URL+"/api/bookings",
		externalBookingBody("2026-07-10", "2026-07-12"), nil)
	id := created["id"].(string)
	token := created["manageToken"].(string)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/bookings/"+id+"/cancel?token="+token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPatch, srv.URL+"/api/bookings/"+id+"?token="+token,
		map[string]any{"totalGuests": 3}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestListBookings_StaffOnly(t *testing.T) {
	srv := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/api/bookings",
		externalBookingBody("2026-07-10", "2026-07-12"), nil)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/bookings", nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/bookings?status=pending", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-Role", "approver")
	listResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer listResp.Body.Close()

	require.Equal(t, http.StatusOK, listResp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	assert.Len(t, list, 1)
}

func TestAuditTrail_OverHTTP(t *testing.T) {
	srv := newTestServer(t)

	_, created := doJSON(t, http.MethodPost, srv.URL+"/api/bookings",
		externalBookingBody("2026-07-10", "2026-07-12"), nil)
	id := created["id"].(string)

	doJSON(t, http.MethodPost, srv.URL+"/api/bookings/"+id+"/approve", nil, approverHeaders)
	doJSON(t, http.MethodPost, srv.URL+"/api/bookings/"+id+"/comments",
		map[string]string{"text": "keys under the mat"}, approverHeaders)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/bookings/"+id+"/audit", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var trail []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&trail))
	require.Len(t, trail, 3)
	assert.Equal(t, "CREATED", trail[0]["action"])
	assert.Equal(t, "APPROVED", trail[1]["action"])
	assert.Equal(t, "COMMENT", trail[2]["action"])
}

// =============================================================================
// FEE ENDPOINTS
// =============================================================================

func TestQuote(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/fees/quote", map[string]any{
		"source":    "INTERNAL",
		"startDate": "2026-07-10",
		"nights":    3,
		"counts":    map[string]int{"member": 2, "dependent_with_member": 1},
	}, nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	// Default rates: 2x50x3 + 1x25x3 = 375.
	assert.Equal(t, "375", body["total"])
	assert.Equal(t, "EUR", body["currency"])
}

func TestPutFeeConfig_AdminOnly(t *testing.T) {
	srv := newTestServer(t)

	table := map[string]any{
		"id":                  "rates-2027",
		"name":                "2027 rates",
		"currency":            "EUR",
		"effective_from":      "2027-01-01",
		"nightly_rates":       map[string]string{"member": "55"},
		"external_adult_rate": "130",
		"external_child_rate": "65",
	}

	resp, _ := doJSON(t, http.MethodPut, srv.URL+"/api/fees/config", table, approverHeaders)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPut, srv.URL+"/api/fees/config", table, adminHeaders)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "rates-2027", body["id"])
}

func TestGetFeeConfig_InstallsDefault(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/fees/config?date=2026-06-01", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cfg, ok := body["config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "fee-config-default", cfg["id"])
	assert.Equal(t, "EUR", cfg["currency"])

	// Rates are served as decimal strings under their bucket keys.
	rates, ok := cfg["nightlyRates"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "50", rates["member"])
	assert.Equal(t, "120", cfg["externalAdultRate"])
}
