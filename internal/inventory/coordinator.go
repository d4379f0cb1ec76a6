// Package inventory owns the seat state machine: holds, hold-to-booking
// promotion, cancellation with compensation, and the lifecycle
// transitions driven by the sweeper.  Every multi-row change runs in one
// store transaction with the touched seats locked in ascending id order,
// and each operation evaluates expiry against a single clock reading.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-ticket-reservation/internal/apperr"
	"github.com/iliyamo/bus-ticket-reservation/internal/logging"
	"github.com/iliyamo/bus-ticket-reservation/internal/queue"
	"github.com/iliyamo/bus-ticket-reservation/internal/store"
)

// Defaults for the booking policy.
const (
	DefaultHoldDuration       = 10 * time.Minute
	DefaultCancellationWindow = 2 * time.Hour
	DefaultUnpaidTimeout      = 30 * time.Minute
	DefaultArchiveAfter       = 30 * 24 * time.Hour
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// Publisher receives booking lifecycle events after the change committed.
type Publisher interface {
	PublishBookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
	PublishBookingCancelled(ctx context.Context, ev queue.BookingCancelledEvent) error
}

type nopPublisher struct{}

func (nopPublisher) PublishBookingConfirmed(context.Context, queue.BookingConfirmedEvent) error {
	return nil
}

func (nopPublisher) PublishBookingCancelled(context.Context, queue.BookingCancelledEvent) error {
	return nil
}

// Coordinator implements the booking operations on top of a store.
type Coordinator struct {
	store     store.Store
	clock     Clock
	publisher Publisher
	log       *logrus.Entry

	holdDuration       time.Duration
	cancellationWindow time.Duration
	unpaidTimeout      time.Duration
	archiveAfter       time.Duration

	newSessionID func() string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithClock(c Clock) Option { return func(co *Coordinator) { co.clock = c } }

func WithPublisher(p Publisher) Option { return func(co *Coordinator) { co.publisher = p } }

func WithLogger(l *logrus.Entry) Option { return func(co *Coordinator) { co.log = l } }

func WithHoldDuration(d time.Duration) Option {
	return func(co *Coordinator) { co.holdDuration = d }
}

func WithCancellationWindow(d time.Duration) Option {
	return func(co *Coordinator) { co.cancellationWindow = d }
}

func WithUnpaidTimeout(d time.Duration) Option {
	return func(co *Coordinator) { co.unpaidTimeout = d }
}

func WithArchiveAfter(d time.Duration) Option {
	return func(co *Coordinator) { co.archiveAfter = d }
}

// WithSessionIDGenerator replaces the UUID session id generator.
func WithSessionIDGenerator(fn func() string) Option {
	return func(co *Coordinator) { co.newSessionID = fn }
}

// New builds a Coordinator.  Zero or negative durations fall back to the
// defaults.
func New(s store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:              s,
		clock:              SystemClock,
		publisher:          nopPublisher{},
		log:                logrus.NewEntry(logrus.StandardLogger()),
		holdDuration:       DefaultHoldDuration,
		cancellationWindow: DefaultCancellationWindow,
		unpaidTimeout:      DefaultUnpaidTimeout,
		archiveAfter:       DefaultArchiveAfter,
		newSessionID:       func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(c)
	}
	if c.holdDuration <= 0 {
		c.holdDuration = DefaultHoldDuration
	}
	if c.cancellationWindow < 0 {
		c.cancellationWindow = DefaultCancellationWindow
	}
	if c.unpaidTimeout <= 0 {
		c.unpaidTimeout = DefaultUnpaidTimeout
	}
	if c.archiveAfter <= 0 {
		c.archiveAfter = DefaultArchiveAfter
	}
	return c
}

// HoldDuration is the configured hold lifetime.
func (c *Coordinator) HoldDuration() time.Duration { return c.holdDuration }

func (c *Coordinator) now() time.Time { return c.clock.Now().UTC() }

func (c *Coordinator) logger(ctx context.Context) *logrus.Entry {
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		return c.log.WithField("correlation_id", id)
	}
	return c.log
}

// fail builds an error with the kind and code of sentinel.
func fail(sentinel *apperr.Error, format string, args ...any) *apperr.Error {
	return apperr.New(sentinel.Kind, sentinel.Code, format, args...)
}

// lookupErr maps store.ErrNotFound to notFound and wraps anything else.
func lookupErr(err error, notFound *apperr.Error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	return fmt.Errorf("%s: %w", what, err)
}
