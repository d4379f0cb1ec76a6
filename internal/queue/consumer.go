package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-ticket-reservation/internal/model"
)

const (
	logFileName = "booking.log"
	maxBackoff  = 30 * time.Second
)

// RefundSettler executes a recorded refund at the payment gateway.
type RefundSettler interface {
	SettleRefund(ctx context.Context, paymentID uint64) (model.Payment, error)
}

// Consumer listens to the booking queues.  Every event is appended to
// <logDir>/booking.log as one line; cancellations with a refund due
// trigger the gateway refund.
type Consumer struct {
	url     string
	logDir  string
	refunds RefundSettler
	log     *logrus.Entry
}

// NewConsumer builds a Consumer.  refunds may be nil.
func NewConsumer(url, logDir string, refunds RefundSettler, log *logrus.Entry) *Consumer {
	if logDir == "" {
		logDir = "logs"
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Consumer{url: url, logDir: logDir, refunds: refunds, log: log.WithField("component", "booking-consumer")}
}

// Run connects to the broker and consumes until ctx is cancelled.  Lost
// connections are re-dialled with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).Warnf("failed to dial broker; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("set QoS failed")
	}

	consume := func(queue string) (<-chan amqp.Delivery, error) {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("queue declare %s: %w", queue, err)
		}
		msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return nil, fmt.Errorf("queue consume %s: %w", queue, err)
		}
		return msgs, nil
	}
	confirmed, err := consume(BookingConfirmedQueue)
	if err != nil {
		return err
	}
	cancelled, err := consume(BookingCancelledQueue)
	if err != nil {
		return err
	}

	for {
		var (
			d     amqp.Delivery
			ok    bool
			queue string
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok = <-confirmed:
			queue = BookingConfirmedQueue
		case d, ok = <-cancelled:
			queue = BookingCancelledQueue
		}
		if !ok {
			return errors.New("deliveries channel closed")
		}
		if err := c.handleMessage(ctx, queue, d.Body); err != nil {
			c.log.WithError(err).WithField("queue", queue).Error("handle message failed")
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
}

func (c *Consumer) handleMessage(ctx context.Context, queue string, body []byte) error {
	var line string
	switch queue {
	case BookingConfirmedQueue:
		var ev BookingConfirmedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line = fmt.Sprintf("[%s] Booking confirmed | booking_id=%d | user_id=%d | trip_id=%d | route=\"%s -> %s\" | departure=%s | status=%s | method=%s | total=%d cents | seats=%s\n",
			ev.ConfirmedAt.Format(time.RFC3339), ev.BookingID, ev.UserID, ev.TripID, ev.Origin, ev.Destination,
			ev.DepartureTime.Format(time.RFC3339), ev.Status, ev.PaymentMethod, ev.TotalAmountCents, formatSeats(ev.SeatIDs))
	case BookingCancelledQueue:
		var ev BookingCancelledEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line = fmt.Sprintf("[%s] Booking cancelled | booking_id=%d | user_id=%d | trip_id=%d | payment_status=%s | reason=\"%s\" | seats=%s\n",
			ev.CancelledAt.Format(time.RFC3339), ev.BookingID, ev.UserID, ev.TripID, ev.PaymentStatus, ev.Reason, formatSeats(ev.SeatIDs))
		if err := c.appendLine(line); err != nil {
			return err
		}
		c.settle(ctx, ev)
		return nil
	default:
		return fmt.Errorf("unknown queue %q", queue)
	}
	return c.appendLine(line)
}

// settle runs the refund for a paid cancellation.  Failures are left to
// the settle-refunds sweep.
func (c *Consumer) settle(ctx context.Context, ev BookingCancelledEvent) {
	if c.refunds == nil || ev.PaymentID == 0 || ev.PaymentStatus != string(model.PaymentRefunded) {
		return
	}
	if _, err := c.refunds.SettleRefund(ctx, ev.PaymentID); err != nil {
		c.log.WithError(err).WithField("payment_id", ev.PaymentID).Warn("refund settlement deferred")
	}
}

func (c *Consumer) appendLine(line string) error {
	if err := os.MkdirAll(c.logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.logDir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.logDir, logFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatSeats(ids []uint64) string {
	return "[" + strings.Join(lo.Map(ids, func(id uint64, _ int) string { return strconv.FormatUint(id, 10) }), ",") + "]"
}
