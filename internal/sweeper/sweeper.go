// Package sweeper runs the periodic maintenance jobs of the booking
// service on cron schedules: expiring holds, cancelling unpaid bookings,
// completing departed trips, settling refunds and archiving old bookings.
// Every job processes its items one by one so a failing item never stops
// the rest of the batch.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-ticket-reservation/internal/apperr"
	"github.com/iliyamo/bus-ticket-reservation/internal/inventory"
	"github.com/iliyamo/bus-ticket-reservation/internal/metrics"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
)

// Job names, also used in the admin trigger route and as metric labels.
const (
	JobExpireHolds      = "expire-holds"
	JobCancelUnpaid     = "cancel-unpaid"
	JobCompleteDeparted = "complete-departed"
	JobSettleRefunds    = "settle-refunds"
	JobArchiveCompleted = "archive-completed"
)

// Jobs lists every job in the order they are registered.
var Jobs = []string{JobExpireHolds, JobCancelUnpaid, JobCompleteDeparted, JobSettleRefunds, JobArchiveCompleted}

// Coordinator is the part of inventory.Coordinator the sweeper drives.
type Coordinator interface {
	ExpireHolds(ctx context.Context) (int64, error)
	FindSweepCandidates(ctx context.Context, which inventory.Candidates, afterID uint64) ([]uint64, error)
	CancelUnpaid(ctx context.Context, bookingID uint64) (bool, error)
	CompleteDeparted(ctx context.Context, bookingID uint64) (bool, error)
	Archive(ctx context.Context, bookingID uint64) (bool, error)
}

// Refunder settles refunds recorded by cancellations.
type Refunder interface {
	PendingRefunds(ctx context.Context, afterID uint64) ([]uint64, error)
	SettleRefund(ctx context.Context, paymentID uint64) (model.Payment, error)
}

// Schedules holds one cron spec per job.  Empty specs disable the job.
type Schedules struct {
	ExpireHolds      string
	CancelUnpaid     string
	CompleteDeparted string
	SettleRefunds    string
	ArchiveCompleted string
}

// DefaultSchedules is used for any job whose spec is left empty by the
// caller of WithDefaults.
var DefaultSchedules = Schedules{
	ExpireHolds:      "@every 60s",
	CancelUnpaid:     "@every 5m",
	CompleteDeparted: "@every 5m",
	SettleRefunds:    "@every 5m",
	ArchiveCompleted: "0 2 * * *",
}

// WithDefaults fills empty specs from DefaultSchedules.
func (s Schedules) WithDefaults() Schedules {
	return Schedules{
		ExpireHolds:      lo.Ternary(s.ExpireHolds == "", DefaultSchedules.ExpireHolds, s.ExpireHolds),
		CancelUnpaid:     lo.Ternary(s.CancelUnpaid == "", DefaultSchedules.CancelUnpaid, s.CancelUnpaid),
		CompleteDeparted: lo.Ternary(s.CompleteDeparted == "", DefaultSchedules.CompleteDeparted, s.CompleteDeparted),
		SettleRefunds:    lo.Ternary(s.SettleRefunds == "", DefaultSchedules.SettleRefunds, s.SettleRefunds),
		ArchiveCompleted: lo.Ternary(s.ArchiveCompleted == "", DefaultSchedules.ArchiveCompleted, s.ArchiveCompleted),
	}
}

func (s Schedules) spec(job string) string {
	switch job {
	case JobExpireHolds:
		return s.ExpireHolds
	case JobCancelUnpaid:
		return s.CancelUnpaid
	case JobCompleteDeparted:
		return s.CompleteDeparted
	case JobSettleRefunds:
		return s.SettleRefunds
	case JobArchiveCompleted:
		return s.ArchiveCompleted
	}
	return ""
}

// Result summarizes one job run.
type Result struct {
	Job       string `json:"job"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
}

// Sweeper owns the cron scheduler.
type Sweeper struct {
	cron    *cron.Cron
	coord   Coordinator
	refunds Refunder
	log     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
}

// New registers every job with a non-empty schedule.  refunds may be nil,
// in which case settle-refunds is not available.
func New(coord Coordinator, refunds Refunder, schedules Schedules, log *logrus.Entry) (*Sweeper, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "sweeper")
	cronLog := cron.PrintfLogger(log)

	s := &Sweeper{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		coord:   coord,
		refunds: refunds,
		log:     log,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	for _, job := range Jobs {
		spec := schedules.spec(job)
		if spec == "" || (job == JobSettleRefunds && refunds == nil) {
			continue
		}
		job := job
		if _, err := s.cron.AddFunc(spec, func() { s.runScheduled(job) }); err != nil {
			s.cancel()
			return nil, fmt.Errorf("schedule %s %q: %w", job, spec, err)
		}
		log.WithFields(logrus.Fields{"job": job, "schedule": spec}).Debug("Job scheduled")
	}
	return s, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts the scheduler, cancels running jobs and waits for them or
// for ctx, whichever comes first.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) runScheduled(job string) {
	res, err := s.RunNow(s.ctx, job)
	if err != nil {
		s.log.WithError(err).WithField("job", job).Error("Sweep failed")
		return
	}
	if res.Processed > 0 || res.Failed > 0 {
		s.log.WithFields(logrus.Fields{
			"job":       job,
			"processed": res.Processed,
			"skipped":   res.Skipped,
			"failed":    res.Failed,
		}).Info("Sweep finished")
	}
}

// RunNow runs one job synchronously.  The returned error covers failures
// of the job as a whole (unknown job, candidate query failed); per-item
// failures are counted in Result.Failed.
func (s *Sweeper) RunNow(ctx context.Context, job string) (Result, error) {
	start := time.Now()
	defer func() { metrics.SweepDuration.WithLabelValues(job).Observe(time.Since(start).Seconds()) }()

	res := Result{Job: job}
	switch job {
	case JobExpireHolds:
		n, err := s.coord.ExpireHolds(ctx)
		if err != nil {
			return res, err
		}
		res.Processed = int(n)
		metrics.SweepItems.WithLabelValues(job, "ok").Add(float64(n))
		return res, nil
	case JobCancelUnpaid:
		return s.sweepBookings(ctx, res, inventory.UnpaidBookings, s.coord.CancelUnpaid)
	case JobCompleteDeparted:
		return s.sweepBookings(ctx, res, inventory.DepartedBookings, s.coord.CompleteDeparted)
	case JobArchiveCompleted:
		return s.sweepBookings(ctx, res, inventory.ArchivableBookings, s.coord.Archive)
	case JobSettleRefunds:
		if s.refunds == nil {
			break
		}
		return s.drain(ctx, res, s.refunds.PendingRefunds, func(ctx context.Context, id uint64) (bool, error) {
			_, err := s.refunds.SettleRefund(ctx, id)
			return err == nil, err
		})
	}
	return res, apperr.New(apperr.KindNotFound, apperr.CodeJobNotFound, "unknown sweep job %q", job)
}

func (s *Sweeper) sweepBookings(ctx context.Context, res Result, which inventory.Candidates,
	fn func(context.Context, uint64) (bool, error)) (Result, error) {
	page := func(ctx context.Context, afterID uint64) ([]uint64, error) {
		return s.coord.FindSweepCandidates(ctx, which, afterID)
	}
	return s.drain(ctx, res, page, fn)
}

// drain walks candidate pages by id.  The cursor moves past every id it
// has handed to fn, so ids that keep failing are retried on the next run
// instead of filling every page of this one.
func (s *Sweeper) drain(ctx context.Context, res Result, page func(context.Context, uint64) ([]uint64, error),
	fn func(context.Context, uint64) (bool, error)) (Result, error) {
	var cursor uint64
	for ctx.Err() == nil {
		ids, err := page(ctx, cursor)
		if err != nil {
			return res, err
		}
		if len(ids) == 0 {
			break
		}
		res = s.each(ctx, res, ids, fn)
		last := lo.Max(ids)
		if last <= cursor {
			break
		}
		cursor = last
	}
	return res, nil
}

// each applies fn to every id; an error on one id is logged and counted.
func (s *Sweeper) each(ctx context.Context, res Result, ids []uint64, fn func(context.Context, uint64) (bool, error)) Result {
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		done, err := fn(ctx, id)
		switch {
		case err != nil:
			res.Failed++
			metrics.SweepItems.WithLabelValues(res.Job, "failed").Inc()
			s.log.WithError(err).WithFields(logrus.Fields{"job": res.Job, "id": id}).Warn("Sweep item failed")
		case done:
			res.Processed++
			metrics.SweepItems.WithLabelValues(res.Job, "ok").Inc()
		default:
			res.Skipped++
			metrics.SweepItems.WithLabelValues(res.Job, "skipped").Inc()
		}
	}
	return res
}
