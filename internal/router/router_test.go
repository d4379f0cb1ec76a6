package router

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/bus-ticket-reservation/internal/handler"
	"github.com/iliyamo/bus-ticket-reservation/internal/inventory"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/payment"
	"github.com/iliyamo/bus-ticket-reservation/internal/store/memory"
	"github.com/iliyamo/bus-ticket-reservation/internal/sweeper"
	"github.com/iliyamo/bus-ticket-reservation/internal/utils"
)

const secret = "router-test-secret"

type api struct {
	t     *testing.T
	e     *echo.Echo
	alice string
	bob   string
	admin string
}

func newAPI(t *testing.T) *api {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)
	log := logrus.NewEntry(l)

	st := memory.New()
	alice := st.AddUser(model.User{Email: "alice@example.com", Name: "Alice", Role: model.RoleCustomer})
	bob := st.AddUser(model.User{Email: "bob@example.com", Name: "Bob", Role: model.RoleCustomer})
	admin := st.AddUser(model.User{Email: "ops@example.com", Name: "Ops", Role: model.RoleAdmin})

	coord := inventory.New(st, inventory.WithLogger(log))
	gw := payment.NewMockGateway(1, payment.WithRoll(func() float64 { return 0 }))
	payments := payment.NewService(st, gw, inventory.SystemClock, log)
	sw, err := sweeper.New(coord, payments, sweeper.Schedules{}, log)
	require.NoError(t, err)

	e := New(Deps{
		Bookings:  handler.NewBookingHandler(coord),
		Trips:     handler.NewTripHandler(coord),
		Payments:  handler.NewPaymentHandler(payments),
		Admin:     handler.NewAdminHandler(coord, payments, sw),
		JWTSecret: secret,
		Logger:    log,
	})

	token := func(u model.User) string {
		tok, err := utils.NewAccessToken(secret, u.ID, u.Role, time.Hour)
		require.NoError(t, err)
		return tok.Token
	}
	return &api{t: t, e: e, alice: token(alice), bob: token(bob), admin: token(admin)}
}

// do sends a request and decodes a JSON object response into out when
// out is non-nil.
func (a *api) do(method, path, token, body string, out any) int {
	a.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Kind  string `json:"kind"`
}

type createdTrip struct {
	model.Trip
	Seats []model.Seat `json:"seats"`
}

func (a *api) createTrip(seats int) createdTrip {
	a.t.Helper()
	dep := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)
	body := fmt.Sprintf(`{"origin":"Pune","destination":"Goa","busNumber":"MH12-4410","departureTime":%q,"arrivalTime":%q,"fareCents":100,"seatCount":%d}`,
		dep.Format(time.RFC3339), dep.Add(9*time.Hour).Format(time.RFC3339), seats)
	var trip createdTrip
	require.Equal(a.t, http.StatusCreated, a.do(http.MethodPost, "/v1/admin/trips", a.admin, body, &trip))
	require.Len(a.t, trip.Seats, seats)
	return trip
}

func TestPublicRoutes(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/healthz", "", "", nil))
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/metrics", "", "", nil))

	trip := a.createTrip(4)
	var got model.Trip
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, fmt.Sprintf("/v1/trips/%d", trip.ID), "", "", &got))
	assert.Equal(t, "MH12-4410", got.BusNumber)

	var seats struct {
		Items []model.SeatAvailability `json:"items"`
	}
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, fmt.Sprintf("/v1/trips/%d/seats", trip.ID), "", "", &seats))
	require.Len(t, seats.Items, 4)
	for _, s := range seats.Items {
		assert.Equal(t, model.SeatFree, s.Status)
	}

	var apiErr apiError
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/v1/trips/999", "", "", &apiErr))
	assert.Equal(t, "TRIP_NOT_FOUND", apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/v1/trips/abc", "", "", &apiErr))
	assert.Equal(t, "INVALID_REQUEST", apiErr.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	a := newAPI(t)
	body := `{"origin":"A","destination":"B","busNumber":"X","departureTime":"2030-01-01T10:00:00Z","arrivalTime":"2030-01-01T12:00:00Z","fareCents":100,"seatCount":2}`
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/v1/admin/trips", "", body, nil))
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/v1/admin/trips", a.alice, body, nil))

	var apiErr apiError
	bad := strings.Replace(body, `"seatCount":2`, `"seatCount":0`, 1)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/v1/admin/trips", a.admin, bad, &apiErr))
	assert.Contains(t, apiErr.Error, "seatCount")

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/v1/admin/sweeps/nope", a.admin, "", &apiErr))
	assert.Equal(t, "JOB_NOT_FOUND", apiErr.Code)

	var res sweeper.Result
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, "/v1/admin/sweeps/expire-holds", a.admin, "", &res))
	assert.Equal(t, sweeper.JobExpireHolds, res.Job)
}

func TestBookingLifecycle(t *testing.T) {
	a := newAPI(t)
	trip := a.createTrip(4)
	s1, s2 := trip.Seats[0].ID, trip.Seats[1].ID
	holdBody := fmt.Sprintf(`{"tripId":%d,"seatIds":[%d,%d]}`, trip.ID, s1, s2)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/v1/bookings/hold", "", holdBody, nil))

	var apiErr apiError
	assert.Equal(t, http.StatusBadRequest,
		a.do(http.MethodPost, "/v1/bookings/hold", a.alice, fmt.Sprintf(`{"tripId":%d,"seatIds":[]}`, trip.ID), &apiErr))
	assert.Equal(t, "INVALID_REQUEST", apiErr.Code)

	var session model.HoldSession
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/bookings/hold", a.alice, holdBody, &session))
	assert.NotEmpty(t, session.SessionID)
	assert.ElementsMatch(t, []uint64{s1, s2}, session.SeatIDs)

	assert.Equal(t, http.StatusBadRequest,
		a.do(http.MethodPost, "/v1/bookings/hold", a.bob, fmt.Sprintf(`{"tripId":%d,"seatIds":[%d]}`, trip.ID, s1), &apiErr))
	assert.Equal(t, "CONFLICT", apiErr.Kind)
	assert.Equal(t, "SEAT_ALREADY_HELD", apiErr.Code)

	confirmBody := fmt.Sprintf(`{"sessionId":%q,"paymentMethod":"CARD","payLater":true}`, session.SessionID)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/v1/bookings/confirm", a.bob, confirmBody, &apiErr))
	assert.Equal(t, "FORBIDDEN", apiErr.Kind)

	var booking model.BookingDetail
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/bookings/confirm", a.alice, confirmBody, &booking))
	assert.Equal(t, model.BookingPendingPayment, booking.Status)
	assert.Equal(t, int64(200), booking.TotalAmountCents)

	var paid model.Payment
	payBody := fmt.Sprintf(`{"bookingId":%d,"method":"UPI"}`, booking.ID)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/v1/payments", a.alice, payBody, &paid))
	assert.Equal(t, model.PaymentSuccess, paid.Status)

	var byBooking model.Payment
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, fmt.Sprintf("/v1/payments/booking/%d", booking.ID), a.alice, "", &byBooking))
	assert.Equal(t, paid.ID, byBooking.ID)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, fmt.Sprintf("/v1/payments/booking/%d", booking.ID), a.bob, "", nil))

	var mine struct {
		Items []model.Booking `json:"items"`
	}
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/v1/bookings/me", a.alice, "", &mine))
	require.Len(t, mine.Items, 1)
	assert.Equal(t, model.BookingConfirmed, mine.Items[0].Status)

	bookingPath := fmt.Sprintf("/v1/bookings/%d", booking.ID)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, bookingPath, a.bob, "", nil))
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodDelete, bookingPath, a.bob, "", &apiErr))
	assert.Equal(t, "BOOKING_FORBIDDEN", apiErr.Code)

	var cancelled struct {
		Message string              `json:"message"`
		Booking model.BookingDetail `json:"booking"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodDelete, bookingPath, a.alice, "", &cancelled))
	assert.Equal(t, model.BookingCancelled, cancelled.Booking.Status)
	require.NotNil(t, cancelled.Booking.Payment)
	assert.Equal(t, model.PaymentRefunded, cancelled.Booking.Payment.Status)

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodDelete, bookingPath, a.alice, "", &apiErr))
	assert.Equal(t, "ALREADY_CANCELLED", apiErr.Code)

	var settled model.Payment
	settlePath := fmt.Sprintf("/v1/admin/payments/%d/settle-refund", paid.ID)
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, settlePath, a.admin, "", &settled))
	require.NotNil(t, settled.RefundReference)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, settlePath, a.alice, "", nil))

	var seats struct {
		Items []model.SeatAvailability `json:"items"`
	}
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, fmt.Sprintf("/v1/trips/%d/seats", trip.ID), "", "", &seats))
	for _, s := range seats.Items {
		assert.Equal(t, model.SeatFree, s.Status, "seat %d", s.ID)
	}
}

func TestReleaseHold(t *testing.T) {
	a := newAPI(t)
	trip := a.createTrip(2)

	var session model.HoldSession
	body := fmt.Sprintf(`{"tripId":%d,"seatIds":[%d]}`, trip.ID, trip.Seats[0].ID)
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/v1/bookings/hold", a.alice, body, &session))

	var released struct {
		Released int64 `json:"released"`
	}
	path := "/v1/bookings/hold/" + session.SessionID
	require.Equal(t, http.StatusOK, a.do(http.MethodDelete, path, a.alice, "", &released))
	assert.Equal(t, int64(1), released.Released)
	require.Equal(t, http.StatusOK, a.do(http.MethodDelete, path, a.alice, "", &released))
	assert.Equal(t, int64(0), released.Released)

	var apiErr apiError
	confirm := fmt.Sprintf(`{"sessionId":%q,"paymentMethod":"CARD"}`, session.SessionID)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/v1/bookings/confirm", a.alice, confirm, &apiErr))
	assert.Equal(t, "SESSION_NOT_FOUND", apiErr.Code)
}
