package repository_test

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/iliyamo/bus-ticket-reservation/internal/apperr"
	"github.com/iliyamo/bus-ticket-reservation/internal/database"
	"github.com/iliyamo/bus-ticket-reservation/internal/inventory"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/repository"
)

// openTestDB connects to MYSQL_TEST_DSN when set and otherwise starts a
// throwaway MySQL container.  The test is skipped when neither works.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MySQL integration test in short mode")
	}
	ctx := context.Background()

	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		dsn = startMySQL(t)
	}
	db, err := database.OpenDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func startMySQL(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	var (
		container *mysql.MySQLContainer
		err       error
	)
	func() {
		// testcontainers panics on some hosts without a Docker socket
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%v", r)
			}
		}()
		container, err = mysql.RunContainer(ctx,
			testcontainers.WithImage("mysql:8.0.36"),
			mysql.WithDatabase("bus"),
			mysql.WithUsername("bus"),
			mysql.WithPassword("bus"),
		)
	}()
	if err != nil {
		t.Skipf("mysql container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "charset=utf8mb4", "parseTime=true", "loc=UTC", "clientFoundRows=true")
	require.NoError(t, err)
	return dsn
}

func TestStoreBookingFlow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	st := repository.NewStore(db)

	suffix := time.Now().UnixNano()
	alice, err := st.Users.Create(ctx, model.User{Email: fmt.Sprintf("alice-%d@example.com", suffix), Name: "Alice", Role: model.RoleCustomer})
	require.NoError(t, err)
	bob, err := st.Users.Create(ctx, model.User{Email: fmt.Sprintf("bob-%d@example.com", suffix), Name: "Bob", Role: model.RoleCustomer})
	require.NoError(t, err)

	l := logrus.New()
	l.SetOutput(io.Discard)
	coord := inventory.New(st, inventory.WithLogger(logrus.NewEntry(l)))

	dep := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)
	trip, seats, err := coord.ScheduleTrip(ctx, inventory.TripInput{
		Origin: "Delhi", Destination: "Jaipur", BusNumber: "RJ14-2201",
		DepartureTime: dep, ArrivalTime: dep.Add(5 * time.Hour),
		FareCents: 100, SeatCount: 6,
	})
	require.NoError(t, err)
	require.Len(t, seats, 6)

	session, err := coord.HoldSeats(ctx, trip.ID, alice, []uint64{seats[0].ID, seats[1].ID})
	require.NoError(t, err)

	_, err = coord.HoldSeats(ctx, trip.ID, bob, []uint64{seats[1].ID, seats[2].ID})
	assert.ErrorIs(t, err, apperr.ErrSeatAlreadyHeld)

	booking, err := coord.ConfirmBooking(ctx, session.SessionID, alice, model.MethodCard)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, booking.Status)
	assert.Equal(t, int64(200), booking.TotalAmountCents)
	require.NotNil(t, booking.Payment)
	assert.Equal(t, model.PaymentSuccess, booking.Payment.Status)

	avail, err := coord.TripSeats(ctx, trip.ID)
	require.NoError(t, err)
	booked := 0
	for _, s := range avail {
		if s.Status == model.SeatBooked {
			booked++
		}
	}
	assert.Equal(t, 2, booked)

	cancelled, err := coord.CancelBooking(ctx, booking.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Payment)
	assert.Equal(t, model.PaymentRefunded, cancelled.Payment.Status)

	_, err = coord.CancelBooking(ctx, booking.ID, alice)
	assert.ErrorIs(t, err, apperr.ErrAlreadyCancelled)
}

func TestStoreConcurrentHolds(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	st := repository.NewStore(db)

	suffix := time.Now().UnixNano()
	l := logrus.New()
	l.SetOutput(io.Discard)
	coord := inventory.New(st, inventory.WithLogger(logrus.NewEntry(l)))

	dep := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)
	trip, seats, err := coord.ScheduleTrip(ctx, inventory.TripInput{
		Origin: "Agra", Destination: "Lucknow", BusNumber: "UP80-1010",
		DepartureTime: dep, ArrivalTime: dep.Add(6 * time.Hour),
		FareCents: 250, SeatCount: 4,
	})
	require.NoError(t, err)

	const workers = 8
	users := make([]uint64, workers)
	for i := range users {
		users[i], err = st.Users.Create(ctx, model.User{Email: fmt.Sprintf("u%d-%d@example.com", i, suffix), Name: "U", Role: model.RoleCustomer})
		require.NoError(t, err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for _, uid := range users {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			if _, err := coord.HoldSeats(ctx, trip.ID, uid, []uint64{seats[0].ID}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(uid)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
