package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/puffquest/puffquest/internal/api"
	"github.com/puffquest/puffquest/internal/app/account"
	"github.com/puffquest/puffquest/internal/app/engagement"
	"github.com/puffquest/puffquest/internal/app/rollover"
	"github.com/puffquest/puffquest/internal/app/stats"
	"github.com/puffquest/puffquest/internal/app/tracking"
	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/health"
	"github.com/puffquest/puffquest/internal/infra/cache"
	"github.com/puffquest/puffquest/internal/infra/sqlite"
)

// Version is stamped by the CLI at startup.
var Version = "dev"

// Daemon is the PuffQuest runtime. It wires together all services.
type Daemon struct {
	Config Config
	Logger *zap.Logger
	DB     *sqlite.DB
	Cache  *cache.RedisDayCounter // nil when disabled or unreachable

	Locks    *engagement.Locks
	Stats    *stats.Service
	Game     *engagement.Service
	Tracking *tracking.Service
	Accounts *account.Service
	Rollover *rollover.Runner
	Health   *health.Checker
	Server   *api.Server
}

// New loads the configuration and creates a Daemon.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewWithConfig(cfg, logger)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config, logger *zap.Logger) (*Daemon, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cal, err := domain.LoadCalendar(cfg.Calendar.Timezone)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.DataDir())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	d := &Daemon{Config: cfg, Logger: logger, DB: db}

	// The cache is optional; run without it when Redis is unreachable.
	var counter stats.DayCounter
	if cfg.Cache.Enabled {
		c, err := cache.NewRedisDayCounter(context.Background(), cache.Config{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.CacheTTL(),
		})
		if err != nil {
			logger.Warn("day count cache disabled", zap.String("addr", cfg.Cache.Addr), zap.Error(err))
		} else {
			d.Cache = c
			counter = c
		}
	}

	d.Locks = engagement.NewLocks()
	d.Stats = stats.NewService(db, counter, cal, domain.SystemClock{}, logger)
	d.Game = engagement.NewService(db, d.Stats, d.Locks, logger)
	d.Tracking = tracking.NewService(db, d.Stats, d.Game, d.Locks, logger)
	d.Accounts = account.NewService(db, d.Stats, d.Game, logger)
	d.Rollover = rollover.NewRunner(db, d.Stats, d.Game, rollover.Config{
		Interval:    cfg.RolloverInterval(),
		CatchUpDays: cfg.Rollover.CatchUpDays,
	}, logger)

	var cachePinger health.Pinger
	if d.Cache != nil {
		cachePinger = d.Cache
	}
	d.Health = health.NewChecker(db, cachePinger, cfg.DataDir(), logger)

	d.Server = api.NewServer(api.Services{
		Accounts: d.Accounts,
		Tracking: d.Tracking,
		Stats:    d.Stats,
		Game:     d.Game,
		Health:   d.Health,
	}, api.Options{
		CORSOrigins:   cfg.API.CORSOrigins,
		RatePerSecond: cfg.API.RatePerSecond,
		RateBurst:     cfg.API.RateBurst,
		Metrics:       cfg.Telemetry.Prometheus,
		Version:       Version,
	}, logger)

	if err := d.Game.BootstrapCatalog(context.Background()); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Addr is the HTTP listen address.
func (d *Daemon) Addr() string {
	return fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
}

// Serve runs the HTTP server, the rollover loop and the health loop until
// ctx is canceled or SIGINT/SIGTERM arrives.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              d.Addr(),
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		d.Health.Run(ctx)
		return nil
	})

	if d.Config.Rollover.Enabled {
		g.Go(func() error {
			d.Rollover.Run(ctx)
			return nil
		})
	}

	d.Logger.Info("puffquest serving",
		zap.String("addr", "http://"+d.Addr()),
		zap.Bool("rollover", d.Config.Rollover.Enabled),
		zap.Bool("cache", d.Cache != nil),
		zap.Bool("metrics", d.Config.Telemetry.Prometheus),
	)

	err := g.Wait()
	d.Logger.Info("puffquest stopped")
	return err
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.Cache != nil {
		_ = d.Cache.Close()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	_ = d.Logger.Sync()
}
