package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-ticket-reservation/internal/apperr"
)

func TestStatusFor(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindValidation:      http.StatusBadRequest,
		apperr.KindNotFound:        http.StatusNotFound,
		apperr.KindForbidden:       http.StatusForbidden,
		apperr.KindConflict:        http.StatusConflict,
		apperr.KindExpired:         http.StatusGone,
		apperr.KindInvalidState:    http.StatusConflict,
		apperr.KindExternalFailure: http.StatusBadGateway,
		apperr.KindInternal:        http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), kind)
	}
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, writeError(c, errors.New("dial tcp 10.0.0.3:3306: connection refused")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"error": "internal error", "code": "INTERNAL", "kind": "INTERNAL"}, body)

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, writeError(c, apperr.New(apperr.KindExpired, apperr.CodeHoldExpired, "hold on seat %d expired", 3)))
	assert.Equal(t, http.StatusGone, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hold on seat 3 expired", body["error"])
	assert.Equal(t, "HOLD_EXPIRED", body["code"])
}

func TestWriteRejectionIsBadRequest(t *testing.T) {
	e := echo.New()
	var body map[string]string

	for _, err := range []error{
		apperr.New(apperr.KindConflict, apperr.CodeSeatAlreadyHeld, "seat 2 is held by another session"),
		apperr.New(apperr.KindExpired, apperr.CodeHoldExpired, "hold expired"),
		apperr.New(apperr.KindForbidden, apperr.CodeBookingForbidden, "not yours"),
	} {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
		require.NoError(t, writeRejection(c, err))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, string(apperr.CodeOf(err)), body["code"])
		assert.Equal(t, string(apperr.KindOf(err)), body["kind"])
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	require.NoError(t, writeRejection(c, errors.New("deadlock")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestValidatorReportsJSONFieldNames(t *testing.T) {
	v := NewValidator()
	err := v.Validate(&confirmRequest{PaymentMethod: "CASH"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "sessionId is required")
	assert.Contains(t, err.Error(), "paymentMethod must be one of")

	assert.NoError(t, v.Validate(&holdRequest{TripID: 1, SeatIDs: []uint64{4}}))
	err = v.Validate(&holdRequest{TripID: 1, SeatIDs: []uint64{4, 0}})
	assert.Error(t, err)
}

func TestHandlersRequireUser(t *testing.T) {
	e := echo.New()
	e.Validator = NewValidator()
	h := &BookingHandler{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings/hold", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	require.NoError(t, h.HoldSeats(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestParseID(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("0")
	_, err := parseID(c, "id")
	assert.True(t, errors.Is(err, &apperr.Error{Code: apperr.CodeInvalidRequest}))

	c.SetParamValues("17")
	id, err := parseID(c, "id")
	require.NoError(t, err)
	assert.Equal(t, uint64(17), id)
}
