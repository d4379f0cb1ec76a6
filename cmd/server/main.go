package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/bus-ticket-reservation/internal/config"
	"github.com/iliyamo/bus-ticket-reservation/internal/database"
	"github.com/iliyamo/bus-ticket-reservation/internal/handler"
	"github.com/iliyamo/bus-ticket-reservation/internal/inventory"
	"github.com/iliyamo/bus-ticket-reservation/internal/logging"
	"github.com/iliyamo/bus-ticket-reservation/internal/model"
	"github.com/iliyamo/bus-ticket-reservation/internal/payment"
	"github.com/iliyamo/bus-ticket-reservation/internal/queue"
	"github.com/iliyamo/bus-ticket-reservation/internal/repository"
	"github.com/iliyamo/bus-ticket-reservation/internal/router"
	"github.com/iliyamo/bus-ticket-reservation/internal/service"
	"github.com/iliyamo/bus-ticket-reservation/internal/store"
	"github.com/iliyamo/bus-ticket-reservation/internal/store/memory"
	"github.com/iliyamo/bus-ticket-reservation/internal/sweeper"
	"github.com/iliyamo/bus-ticket-reservation/internal/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	bcfg := config.LoadBookingConfig()
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	log := logrus.WithField("env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("could not open store")
	}
	defer closeStore()

	var publisher inventory.Publisher = service.NopPublisher{}
	if bcfg.EventsEnabled {
		publisher = service.NewRabbitPublisher(bcfg.RabbitMQURL, log)
	}

	coord := inventory.New(st,
		inventory.WithPublisher(publisher),
		inventory.WithLogger(log.WithField("component", "inventory")),
		inventory.WithHoldDuration(bcfg.HoldDuration),
		inventory.WithCancellationWindow(bcfg.CancellationWindow),
		inventory.WithUnpaidTimeout(bcfg.UnpaidTimeout),
		inventory.WithArchiveAfter(bcfg.ArchiveAfter),
	)
	payments := payment.NewService(st, payment.NewMockGateway(bcfg.PaymentSuccessRate), inventory.SystemClock,
		log.WithField("component", "payment"))

	sw, err := sweeper.New(coord, payments, sweeper.Schedules{
		ExpireHolds:      bcfg.SweepExpireHolds,
		CancelUnpaid:     bcfg.SweepCancelUnpaid,
		CompleteDeparted: bcfg.SweepCompleteDeparted,
		SettleRefunds:    bcfg.SweepSettleRefunds,
		ArchiveCompleted: bcfg.SweepArchiveCompleted,
	}.WithDefaults(), log)
	if err != nil {
		log.WithError(err).Fatal("invalid sweep schedule")
	}

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	e := router.New(router.Deps{
		Bookings:  handler.NewBookingHandler(coord),
		Trips:     handler.NewTripHandler(coord),
		Payments:  handler.NewPaymentHandler(payments),
		Admin:     handler.NewAdminHandler(coord, payments, sw),
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Logger:    log,
	})

	g, gctx := errgroup.WithContext(ctx)

	addr := ":" + cfg.Port
	g.Go(func() error {
		log.Infof("listening on %s (store=%s)", addr, cfg.StoreDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	sw.Start()
	if bcfg.EventsEnabled {
		consumer := queue.NewConsumer(bcfg.RabbitMQURL, bcfg.BookingLogDir, payments, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(e.Shutdown(sctx), sw.Stop(sctx))
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server stopped with error")
	}
	log.Info("bye")
}

// openStore returns the configured store and a function releasing it.
func openStore(ctx context.Context, cfg config.Config, log *logrus.Entry) (store.Store, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		mem := memory.New()
		seedUsers(mem, cfg.JWTSecret, log)
		return mem, func() {}, nil
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repository.NewStore(db), func() { _ = db.Close() }, nil
}

// seedUsers creates one customer and one admin in the in-memory store and
// logs a day-long token for each so the API can be tried by hand.
func seedUsers(mem *memory.Store, secret string, log *logrus.Entry) {
	for _, u := range []model.User{
		{Email: "customer@example.com", Name: "Dev Customer", Role: model.RoleCustomer},
		{Email: "admin@example.com", Name: "Dev Admin", Role: model.RoleAdmin},
	} {
		u = mem.AddUser(u)
		tok, err := utils.NewAccessToken(secret, u.ID, u.Role, 24*time.Hour)
		if err != nil {
			log.WithError(err).Warn("could not sign dev token")
			continue
		}
		log.WithFields(logrus.Fields{"user_id": u.ID, "role": u.Role}).Infof("dev token: %s", tok.Token)
	}
}
