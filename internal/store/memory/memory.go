// Package memory is an in-process implementation of store.Store used by
// tests and by STORE_DRIVER=memory.  Transactions are serialized by one
// mutex and run against a private copy of the data which replaces the
// shared state only on commit, so a failed transaction leaves no trace.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/store"
)

type state struct {
	seq      uint64
	users    map[uint64]model.User
	trips    map[uint64]model.Trip
	seats    map[uint64]model.Seat
	holds    map[uint64]model.SeatHold
	bookings map[uint64]model.Booking
	payments map[uint64]model.Payment
}

func newState() *state {
	return &state{
		users:    map[uint64]model.User{},
		trips:    map[uint64]model.Trip{},
		seats:    map[uint64]model.Seat{},
		holds:    map[uint64]model.SeatHold{},
		bookings: map[uint64]model.Booking{},
		payments: map[uint64]model.Payment{},
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:      s.seq,
		users:    make(map[uint64]model.User, len(s.users)),
		trips:    make(map[uint64]model.Trip, len(s.trips)),
		seats:    make(map[uint64]model.Seat, len(s.seats)),
		holds:    make(map[uint64]model.SeatHold, len(s.holds)),
		bookings: make(map[uint64]model.Booking, len(s.bookings)),
		payments: make(map[uint64]model.Payment, len(s.payments)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.trips {
		c.trips[k] = v
	}
	for k, v := range s.seats {
		c.seats[k] = v
	}
	for k, v := range s.holds {
		c.holds[k] = v
	}
	for k, v := range s.bookings {
		v.SeatIDs = append([]uint64(nil), v.SeatIDs...)
		c.bookings[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

func (s *state) nextID() uint64 {
	s.seq++
	return s.seq
}

// Store is a mutex-guarded in-memory store.
type Store struct {
	mu sync.Mutex
	st *state
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store { return &Store{st: newState()} }

// AddUser registers a user.  The ID is assigned when zero.
func (s *Store) AddUser(u model.User) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.st.nextID()
	} else if u.ID > s.st.seq {
		s.st.seq = u.ID
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.st.users[u.ID] = u
	return u
}

// WithTx runs fn against a snapshot and publishes it when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// tx operates on a private snapshot.  Lock methods need no extra work
// because the store mutex is held for the whole transaction.
type tx struct {
	st *state
}

func (t *tx) UserExists(_ context.Context, id uint64) (bool, error) {
	_, ok := t.st.users[id]
	return ok, nil
}

func (t *tx) CreateTrip(_ context.Context, trip *model.Trip) error {
	trip.ID = t.st.nextID()
	t.st.trips[trip.ID] = *trip
	return nil
}

func (t *tx) GetTrip(_ context.Context, id uint64) (model.Trip, error) {
	trip, ok := t.st.trips[id]
	if !ok {
		return model.Trip{}, store.ErrNotFound
	}
	return trip, nil
}

func (t *tx) CreateSeats(_ context.Context, seats []model.Seat) error {
	for i := range seats {
		seats[i].ID = t.st.nextID()
		t.st.seats[seats[i].ID] = seats[i]
	}
	return nil
}

func (t *tx) ListSeatsByTrip(_ context.Context, tripID uint64) ([]model.Seat, error) {
	out := lo.Filter(lo.Values(t.st.seats), func(s model.Seat, _ int) bool { return s.TripID == tripID })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) LockSeats(_ context.Context, seatIDs []uint64) ([]model.Seat, error) {
	ids := sortedIDs(seatIDs)
	out := make([]model.Seat, 0, len(ids))
	for _, id := range ids {
		if s, ok := t.st.seats[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *tx) SetSeatsBooked(_ context.Context, seatIDs []uint64, booked bool) error {
	for _, id := range seatIDs {
		s, ok := t.st.seats[id]
		if !ok {
			return store.ErrNotFound
		}
		s.Booked = booked
		t.st.seats[id] = s
	}
	return nil
}

func (t *tx) LockActiveHolds(_ context.Context, seatIDs []uint64, now time.Time) ([]model.SeatHold, error) {
	want := lo.SliceToMap(seatIDs, func(id uint64) (uint64, struct{}) { return id, struct{}{} })
	out := lo.Filter(lo.Values(t.st.holds), func(h model.SeatHold, _ int) bool {
		_, ok := want[h.SeatID]
		return ok && h.ActiveAt(now)
	})
	sortHolds(out)
	return out, nil
}

func (t *tx) ListActiveHoldsByTrip(_ context.Context, tripID uint64, now time.Time) ([]model.SeatHold, error) {
	out := lo.Filter(lo.Values(t.st.holds), func(h model.SeatHold, _ int) bool {
		return h.TripID == tripID && h.ActiveAt(now)
	})
	sortHolds(out)
	return out, nil
}

func (t *tx) CreateHolds(_ context.Context, holds []model.SeatHold) error {
	for i := range holds {
		holds[i].ID = t.st.nextID()
		t.st.holds[holds[i].ID] = holds[i]
	}
	return nil
}

func (t *tx) ListHoldsBySession(ctx context.Context, sessionID string) ([]model.SeatHold, error) {
	return t.LockHoldsBySession(ctx, sessionID)
}

func (t *tx) LockHoldsBySession(_ context.Context, sessionID string) ([]model.SeatHold, error) {
	out := lo.Filter(lo.Values(t.st.holds), func(h model.SeatHold, _ int) bool { return h.SessionID == sessionID })
	sortHolds(out)
	return out, nil
}

func (t *tx) DeleteHoldsBySession(_ context.Context, sessionID string) (int64, error) {
	var n int64
	for id, h := range t.st.holds {
		if h.SessionID == sessionID {
			delete(t.st.holds, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) DeleteExpiredHolds(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, h := range t.st.holds {
		if !h.ActiveAt(now) {
			delete(t.st.holds, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) CreateBooking(_ context.Context, b *model.Booking) error {
	b.ID = t.st.nextID()
	b.SeatIDs = sortedIDs(b.SeatIDs)
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.BookingDate
	}
	stored := *b
	stored.SeatIDs = append([]uint64(nil), b.SeatIDs...)
	t.st.bookings[b.ID] = stored
	return nil
}

func (t *tx) GetBooking(_ context.Context, id uint64) (model.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return model.Booking{}, store.ErrNotFound
	}
	b.SeatIDs = append([]uint64(nil), b.SeatIDs...)
	return b, nil
}

func (t *tx) LockBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return t.GetBooking(ctx, id)
}

func (t *tx) ListBookingsByUser(_ context.Context, userID uint64) ([]model.Booking, error) {
	out := lo.Filter(lo.Values(t.st.bookings), func(b model.Booking, _ int) bool { return b.UserID == userID })
	// newest first, matching the SQL ordering
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	for i := range out {
		out[i].SeatIDs = append([]uint64(nil), out[i].SeatIDs...)
	}
	return out, nil
}

func (t *tx) UpdateBookingStatus(_ context.Context, id uint64, status model.BookingStatus, now time.Time) error {
	b, ok := t.st.bookings[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = now
	t.st.bookings[id] = b
	return nil
}

func (t *tx) ListBookingIDs(_ context.Context, f store.BookingFilter) ([]uint64, error) {
	var ids []uint64
	for id, b := range t.st.bookings {
		if id <= f.AfterID {
			continue
		}
		if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, b.Status) {
			continue
		}
		if !f.CreatedBefore.IsZero() && !b.BookingDate.Before(f.CreatedBefore) {
			continue
		}
		if !f.DepartedBefore.IsZero() {
			trip, ok := t.st.trips[b.TripID]
			if !ok || !trip.DepartureTime.Before(f.DepartedBefore) {
				continue
			}
		}
		ids = append(ids, id)
	}
	ids = sortedIDs(ids)
	if f.Limit > 0 && len(ids) > f.Limit {
		ids = ids[:f.Limit]
	}
	return ids, nil
}

func (t *tx) CreatePayment(_ context.Context, p *model.Payment) error {
	for _, existing := range t.st.payments {
		if existing.BookingID == p.BookingID {
			return store.ErrDuplicate
		}
	}
	p.ID = t.st.nextID()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.PaymentDate
	}
	t.st.payments[p.ID] = *p
	return nil
}

func (t *tx) GetPaymentByBooking(_ context.Context, bookingID uint64) (model.Payment, error) {
	for _, p := range t.st.payments {
		if p.BookingID == bookingID {
			return p, nil
		}
	}
	return model.Payment{}, store.ErrNotFound
}

func (t *tx) LockPayment(_ context.Context, id uint64) (model.Payment, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return model.Payment{}, store.ErrNotFound
	}
	return p, nil
}

func (t *tx) UpdatePayment(_ context.Context, p *model.Payment) error {
	if _, ok := t.st.payments[p.ID]; !ok {
		return store.ErrNotFound
	}
	t.st.payments[p.ID] = *p
	return nil
}

func (t *tx) ListPendingRefundIDs(_ context.Context, afterID uint64, limit int) ([]uint64, error) {
	var ids []uint64
	for id, p := range t.st.payments {
		if id > afterID && p.Status == model.PaymentRefunded && p.RefundReference == nil {
			ids = append(ids, id)
		}
	}
	ids = sortedIDs(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func sortedIDs(ids []uint64) []uint64 {
	out := lo.Uniq(ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortHolds(h []model.SeatHold) {
	sort.Slice(h, func(i, j int) bool { return h[i].SeatID < h[j].SeatID })
}
