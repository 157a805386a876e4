// Package bootstrap wires the stores, locks and services shared by the binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-intake-agent/internal/appointment"
	"github.com/hackgods/clinic-intake-agent/internal/config"
	"github.com/hackgods/clinic-intake-agent/internal/db"
	"github.com/hackgods/clinic-intake-agent/internal/intake"
	"github.com/hackgods/clinic-intake-agent/internal/metrics"
	"github.com/hackgods/clinic-intake-agent/internal/notify"
	"github.com/hackgods/clinic-intake-agent/internal/patient"
	redisclient "github.com/hackgods/clinic-intake-agent/internal/redis"
	"github.com/hackgods/clinic-intake-agent/internal/schedule"
	"github.com/hackgods/clinic-intake-agent/pkg/logging"
)

// lockWait is how long a booking or a session turn waits for its lock.
const lockWait = 3 * time.Second

type App struct {
	Config       config.Config
	Logger       *logging.Logger
	Patients     *patient.CSVStore
	Schedule     *schedule.WorkbookStore
	Appointments *appointment.ExcelLog
	Outbox       *notify.Outbox
	Booking      *appointment.Service
	Controller   *intake.Controller
	Metrics      *metrics.Metrics
	Redis        *redis.Client
	Postgres     *pgxpool.Pool
}

// New connects the optional backends named in cfg and builds the services.
// reg may be nil to skip metrics.
func New(ctx context.Context, cfg config.Config, logger *logging.Logger, reg prometheus.Registerer) (*App, error) {
	a := &App{
		Config:       cfg,
		Logger:       logger,
		Patients:     patient.NewCSVStore(cfg.PatientsPath),
		Schedule:     schedule.NewWorkbookStore(cfg.SchedulesPath, logger),
		Appointments: appointment.NewExcelLog(cfg.AppointmentsPath),
	}
	if reg != nil {
		a.Metrics = metrics.New(reg)
	}

	var locker redisclient.Locker
	var sessions intake.SessionStore
	if cfg.UsesRedis() {
		rdb, err := redisclient.Connect(ctx, redisclient.ClientOptions{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Redis = rdb
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, lockWait)
		sessions = intake.NewRedisSessionStore(rdb, cfg.SessionTTL)
		logger.Info("using redis for locks and sessions", "addr", cfg.RedisAddr)
	} else {
		locker = redisclient.NewLocalLocker(lockWait)
		sessions = intake.NewMemorySessionStore(cfg.SessionTTL)
		logger.Info("no redis configured, locks and sessions are local to this process")
	}

	var events appointment.EventSink = appointment.NopEventSink{}
	if cfg.UsesPostgres() {
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, logger)
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.Postgres = pool
		sink := appointment.NewPgEventSink(pool)
		if err := sink.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, err
		}
		events = sink
		logger.Info("booking events mirrored to postgres")
	}

	a.Outbox = notify.NewOutbox(notify.OutboxConfig{
		Dir:            cfg.OutboxDir,
		IntakeFormPath: cfg.IntakeFormPath,
		Logger:         logger,
		Metrics:        a.Metrics,
	})
	a.Booking = appointment.NewService(a.Schedule, a.Appointments, a.Outbox, locker, appointment.Options{
		ReminderDir: cfg.OutboxDir,
		Events:      events,
		Metrics:     a.Metrics,
		Logger:      logger,
	})
	a.Controller = intake.NewController(a.Patients, a.Schedule, a.Booking, sessions, locker, intake.Options{
		Defaults:      intake.Defaults{Doctor: cfg.DefaultDoctor, Location: cfg.DefaultLocation},
		LookaheadDays: cfg.LookaheadDays,
		Logger:        logger,
		Metrics:       a.Metrics,
	})
	return a, nil
}

// Close releases the backend connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("error closing redis", "error", err)
		}
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}
