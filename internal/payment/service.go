package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-ticket-reservation/internal/apperr"
	"github.com/iliyamo/bus-ticket-reservation/internal/inventory"
	"github.com/iliyamo/bus-ticket-reservation/internal/logging"
	"github.com/iliyamo/bus-ticket-reservation/internal/metrics"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/store"
)

const refundBatch = 500

// Service charges bookings and settles refunds.  Gateway calls are made
// outside store transactions; the result is applied afterwards under the
// booking lock.
type Service struct {
	store   store.Store
	gateway Gateway
	clock   inventory.Clock
	log     *logrus.Entry
}

// NewService builds a Service.  A nil clock or logger falls back to the
// system clock and the standard logger.
func NewService(s store.Store, g Gateway, clock inventory.Clock, log *logrus.Entry) *Service {
	if clock == nil {
		clock = inventory.SystemClock
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{store: s, gateway: g, clock: clock, log: log}
}

func (s *Service) now() time.Time { return s.clock.Now().UTC() }

func (s *Service) logger(ctx context.Context) *logrus.Entry {
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		return s.log.WithField("correlation_id", id)
	}
	return s.log
}

func payable(status model.BookingStatus) bool {
	return status == model.BookingPendingPayment || status == model.BookingPaymentFailed
}

// loadOwned reads a booking and checks that userID owns it.
func loadOwned(ctx context.Context, tx store.Tx, bookingID, userID uint64) (model.Booking, error) {
	b, err := tx.GetBooking(ctx, bookingID)
	if errors.Is(err, store.ErrNotFound) {
		return model.Booking{}, apperr.New(apperr.KindNotFound, apperr.CodeBookingNotFound, "booking %d not found", bookingID)
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("get booking: %w", err)
	}
	if b.UserID != userID {
		return model.Booking{}, apperr.New(apperr.KindForbidden, apperr.CodeBookingForbidden, "booking %d belongs to another user", bookingID)
	}
	return b, nil
}

// ProcessPayment charges a PENDING_PAYMENT or PAYMENT_FAILED booking.  A
// successful charge confirms the booking, a declined one moves it to
// PAYMENT_FAILED.  The returned payment reflects the gateway outcome.
func (s *Service) ProcessPayment(ctx context.Context, bookingID, userID uint64, method model.PaymentMethod) (model.Payment, error) {
	if !method.Valid() {
		return model.Payment{}, apperr.New(apperr.KindValidation, apperr.CodeInvalidRequest, "unsupported payment method %q", method)
	}

	var (
		booking model.Booking
		current model.Payment
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		booking, err = loadOwned(ctx, tx, bookingID, userID)
		if err != nil {
			return err
		}
		if !payable(booking.Status) {
			return apperr.New(apperr.KindInvalidState, apperr.CodeNotPayable, "booking %d is %s", bookingID, booking.Status)
		}
		current, err = tx.GetPaymentByBooking(ctx, bookingID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, apperr.CodePaymentNotFound, "booking %d has no payment", bookingID)
		}
		if err != nil {
			return fmt.Errorf("get payment: %w", err)
		}
		if current.Status == model.PaymentSuccess {
			return apperr.New(apperr.KindInvalidState, apperr.CodeNotPayable, "booking %d is already paid", bookingID)
		}
		return nil
	})
	if err != nil {
		return model.Payment{}, err
	}

	res, err := s.gateway.ProcessPayment(ctx, Request{
		BookingID:   bookingID,
		PaymentID:   current.ID,
		AmountCents: booking.TotalAmountCents,
		Method:      method,
	})
	if err != nil {
		metrics.PaymentResults.WithLabelValues("charge", "error").Inc()
		return model.Payment{}, apperr.Wrap(err, apperr.KindExternalFailure, apperr.CodeGatewayFailure, "payment gateway unavailable")
	}
	metrics.PaymentResults.WithLabelValues("charge", string(res.Status)).Inc()

	now := s.now()
	var (
		out       model.Payment
		next      model.BookingStatus
		abandoned bool
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}
		if !payable(b.Status) {
			abandoned = true
			return apperr.New(apperr.KindInvalidState, apperr.CodeNotPayable, "booking %d became %s during payment", bookingID, b.Status)
		}
		p, err := tx.LockPayment(ctx, current.ID)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		if p.Status == model.PaymentSuccess {
			abandoned = true
			return apperr.New(apperr.KindInvalidState, apperr.CodeNotPayable, "booking %d was paid concurrently", bookingID)
		}

		p.Method = method
		p.Status = res.Status
		p.GatewayResponse = res.Message
		p.PaymentDate = now
		p.UpdatedAt = now
		if res.GatewayPaymentID != "" {
			p.GatewayPaymentID = &res.GatewayPaymentID
		}
		if res.TransactionID != "" {
			p.TransactionID = &res.TransactionID
		}
		if err := tx.UpdatePayment(ctx, &p); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}

		switch res.Status {
		case model.PaymentSuccess:
			next = model.BookingConfirmed
		case model.PaymentPending:
			next = model.BookingPendingPayment
		default:
			next = model.BookingPaymentFailed
		}
		if b.Status != next {
			if !b.Status.CanTransitionTo(next) {
				return apperr.New(apperr.KindInvalidState, apperr.CodeInvalidTransition, "booking %d cannot move from %s to %s", bookingID, b.Status, next)
			}
			if err := tx.UpdateBookingStatus(ctx, bookingID, next, now); err != nil {
				return fmt.Errorf("update booking: %w", err)
			}
		}
		out = p
		return nil
	})
	if err != nil {
		if abandoned && res.Status == model.PaymentSuccess {
			s.compensate(ctx, current.ID, res, booking.TotalAmountCents)
		}
		return model.Payment{}, err
	}

	metrics.BookingTransitions.WithLabelValues(string(next)).Inc()
	s.logger(ctx).WithFields(logrus.Fields{
		"booking_id": bookingID,
		"payment_id": out.ID,
		"status":     out.Status,
	}).Info("Payment processed")
	return out, nil
}

// compensate returns a charge that could not be applied to its booking.
func (s *Service) compensate(ctx context.Context, paymentID uint64, res Result, amount int64) {
	log := s.logger(ctx).WithFields(logrus.Fields{"payment_id": paymentID, "gateway_payment_id": res.GatewayPaymentID})
	_, err := s.gateway.RefundPayment(ctx, RefundRequest{
		PaymentID:        paymentID,
		GatewayPaymentID: res.GatewayPaymentID,
		AmountCents:      amount,
	})
	if err != nil {
		metrics.PaymentResults.WithLabelValues("compensate", "error").Inc()
		log.WithError(err).Error("Could not refund orphaned charge")
		return
	}
	metrics.PaymentResults.WithLabelValues("compensate", string(model.PaymentSuccess)).Inc()
	log.Warn("Orphaned charge refunded")
}

// RetryPayment charges a FAILED payment again with its original method.
func (s *Service) RetryPayment(ctx context.Context, paymentID, userID uint64) (model.Payment, error) {
	var p model.Payment
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = tx.LockPayment(ctx, paymentID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, apperr.CodePaymentNotFound, "payment %d not found", paymentID)
		}
		if err != nil {
			return fmt.Errorf("get payment: %w", err)
		}
		if _, err := loadOwned(ctx, tx, p.BookingID, userID); err != nil {
			return err
		}
		if p.Status != model.PaymentFailed {
			return apperr.New(apperr.KindInvalidState, apperr.CodeNotRetryable, "payment %d is %s", paymentID, p.Status)
		}
		return nil
	})
	if err != nil {
		return model.Payment{}, err
	}
	return s.ProcessPayment(ctx, p.BookingID, userID, p.Method)
}

// GetPaymentByBooking returns the payment of a booking owned by userID.
func (s *Service) GetPaymentByBooking(ctx context.Context, bookingID, userID uint64) (model.Payment, error) {
	var p model.Payment
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := loadOwned(ctx, tx, bookingID, userID); err != nil {
			return err
		}
		var err error
		p, err = tx.GetPaymentByBooking(ctx, bookingID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, apperr.CodePaymentNotFound, "booking %d has no payment", bookingID)
		}
		return err
	})
	return p, err
}

// SettleRefund executes the gateway refund of a REFUNDED payment and
// records the refund reference.  Settling an already settled payment
// returns it unchanged.
func (s *Service) SettleRefund(ctx context.Context, paymentID uint64) (model.Payment, error) {
	var p model.Payment
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = tx.LockPayment(ctx, paymentID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, apperr.CodePaymentNotFound, "payment %d not found", paymentID)
		}
		if err != nil {
			return fmt.Errorf("get payment: %w", err)
		}
		if p.Status != model.PaymentRefunded {
			return apperr.New(apperr.KindInvalidState, apperr.CodeInvalidTransition, "payment %d is %s, not awaiting a refund", paymentID, p.Status)
		}
		return nil
	})
	if err != nil {
		return model.Payment{}, err
	}
	if p.RefundReference != nil {
		return p, nil
	}

	gatewayID := fmt.Sprintf("booking_%d", p.BookingID)
	if p.GatewayPaymentID != nil {
		gatewayID = *p.GatewayPaymentID
	}
	res, err := s.gateway.RefundPayment(ctx, RefundRequest{
		PaymentID:        p.ID,
		GatewayPaymentID: gatewayID,
		AmountCents:      p.AmountCents,
	})
	if err != nil {
		metrics.PaymentResults.WithLabelValues("refund", "error").Inc()
		return model.Payment{}, apperr.Wrap(err, apperr.KindExternalFailure, apperr.CodeGatewayFailure, "refund of payment %d failed", paymentID)
	}
	metrics.PaymentResults.WithLabelValues("refund", string(res.Status)).Inc()
	if res.Status != model.PaymentSuccess {
		return model.Payment{}, apperr.New(apperr.KindExternalFailure, apperr.CodeGatewayFailure, "refund of payment %d rejected: %s", paymentID, res.Message)
	}

	now := s.now()
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		cur, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		if cur.RefundReference != nil {
			p = cur
			return nil
		}
		ref := res.TransactionID
		cur.RefundReference = &ref
		cur.RefundDate = &now
		cur.GatewayResponse = res.Message
		cur.UpdatedAt = now
		if err := tx.UpdatePayment(ctx, &cur); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		p = cur
		return nil
	})
	if err != nil {
		return model.Payment{}, err
	}
	s.logger(ctx).WithFields(logrus.Fields{"payment_id": p.ID, "refund_reference": *p.RefundReference}).Info("Refund settled")
	return p, nil
}

// PendingRefunds lists, ascending from afterID, REFUNDED payments whose
// gateway refund has not run.
func (s *Service) PendingRefunds(ctx context.Context, afterID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		ids, err = tx.ListPendingRefundIDs(ctx, afterID, refundBatch)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("pending refunds: %w", err)
	}
	return ids, nil
}
