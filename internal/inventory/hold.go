package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-ticket-reservation/internal/apperr"
	"github.com/iliyamo/bus-ticket-reservation/internal/metrics"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/store"
)

// normalizeSeatIDs removes duplicates and sorts ascending.  Lock order
// follows this ordering.
func normalizeSeatIDs(ids []uint64) []uint64 {
	out := lo.Uniq(ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HoldSeats reserves the given seats of a trip for one checkout session.
// Either every seat is held under a fresh session id or nothing changes.
// Seats are checked in ascending id order; the first booked seat fails
// with SEAT_UNAVAILABLE and the first actively held seat with
// SEAT_ALREADY_HELD.
func (c *Coordinator) HoldSeats(ctx context.Context, tripID, userID uint64, seatIDs []uint64) (model.HoldSession, error) {
	if tripID == 0 {
		return model.HoldSession{}, apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "trip id is required")
	}
	if lo.Contains(seatIDs, 0) {
		return model.HoldSession{}, apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "seat ids must be positive")
	}
	ids := normalizeSeatIDs(seatIDs)
	if len(ids) == 0 {
		return model.HoldSession{}, apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "at least one seat id is required")
	}

	now := c.now()
	session := model.HoldSession{
		SessionID: c.newSessionID(),
		TripID:    tripID,
		SeatIDs:   ids,
		HoldUntil: now.Add(c.holdDuration),
	}

	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		trip, err := tx.GetTrip(ctx, tripID)
		if err != nil {
			return lookupErr(err, fail(apperr.ErrTripNotFound, "trip %d not found", tripID), "get trip")
		}
		ok, err := tx.UserExists(ctx, userID)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !ok {
			return fail(apperr.ErrUserNotFound, "user %d not found", userID)
		}
		if trip.Departed(now) {
			return fail(apperr.ErrTripDeparted, "trip %d has already departed", tripID)
		}

		seats, err := tx.LockSeats(ctx, ids)
		if err != nil {
			return fmt.Errorf("lock seats: %w", err)
		}
		byID := lo.KeyBy(seats, func(s model.Seat) uint64 { return s.ID })
		for _, id := range ids {
			if s, ok := byID[id]; !ok || s.TripID != tripID {
				return fail(apperr.ErrSeatNotFound, "seat %d not found on trip %d", id, tripID)
			}
		}

		active, err := tx.LockActiveHolds(ctx, ids, now)
		if err != nil {
			return fmt.Errorf("lock active holds: %w", err)
		}
		held := lo.KeyBy(active, func(h model.SeatHold) uint64 { return h.SeatID })
		for _, id := range ids {
			if byID[id].Booked {
				return fail(apperr.ErrSeatUnavailable, "seat %d is already booked", byID[id].SeatNumber)
			}
			if _, ok := held[id]; ok {
				return fail(apperr.ErrSeatAlreadyHeld, "seat %d is held by another session", byID[id].SeatNumber)
			}
		}

		holds := lo.Map(ids, func(id uint64, _ int) model.SeatHold {
			return model.SeatHold{
				SeatID:    id,
				TripID:    tripID,
				UserID:    userID,
				SessionID: session.SessionID,
				HoldUntil: session.HoldUntil,
				CreatedAt: now,
			}
		})
		if err := tx.CreateHolds(ctx, holds); err != nil {
			return fmt.Errorf("create holds: %w", err)
		}
		return nil
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindConflict {
			metrics.HoldRejections.WithLabelValues(string(ae.Code)).Inc()
		}
		return model.HoldSession{}, err
	}

	metrics.HoldsCreated.Add(float64(len(ids)))
	c.logger(ctx).WithFields(logrus.Fields{
		"session_id": session.SessionID,
		"trip_id":    tripID,
		"user_id":    userID,
		"seats":      len(ids),
		"hold_until": session.HoldUntil,
	}).Info("Seats held")
	return session, nil
}

// ReleaseSeatHold deletes every hold of a session.  It is idempotent:
// releasing an unknown or already released session returns 0 and no error.
func (c *Coordinator) ReleaseSeatHold(ctx context.Context, sessionID string) (int64, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return 0, apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "session id is required")
	}
	var released int64
	err := c.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		n, err := tx.DeleteHoldsBySession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("delete holds: %w", err)
		}
		released = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	if released > 0 {
		c.logger(ctx).WithFields(logrus.Fields{"session_id": sessionID, "released": released}).Info("Seat hold released")
	}
	return released, nil
}
