package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/serenityskeys/backend/internal/auth"
	"github.com/serenityskeys/backend/internal/calendar"
	"github.com/serenityskeys/backend/internal/config"
	"github.com/serenityskeys/backend/internal/db"
	"github.com/serenityskeys/backend/internal/handlers"
	"github.com/serenityskeys/backend/internal/jobs"
	"github.com/serenityskeys/backend/internal/mailer"
	"github.com/serenityskeys/backend/internal/payments"
	"github.com/serenityskeys/backend/internal/ratelimit"
	"github.com/serenityskeys/backend/internal/services"
	"github.com/serenityskeys/backend/internal/web"
)

func main() {
	fx.New(
		fx.Provide(
			config.Load,
			newLogger,
			openDB,
			newRedis,
			newLimiter,
			newCalendar,
			payments.New,
			mailer.New,
			services.New,
			newIssuer,
			newHandlers,
			newRouter,
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Invoke(startHTTP, scheduleDigest),
	).Run()
}

func newLogger(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	var (
		log *zap.Logger
		err error
	)
	if cfg.IsDev() {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("env", cfg.Env), zap.String("version", cfg.Version))
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		_ = log.Sync()
		return nil
	}})
	return log, nil
}

func openDB(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.IsDev() {
		level = logger.Info
	}
	conn, err := db.Open(cfg.DatabaseURL, logger.Default.LogMode(level))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn); err != nil {
		return nil, err
	}
	log.Info("database ready", zap.String("dialect", conn.Dialector.Name()))

	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}})
	return conn, nil
}

// newRedis returns nil when REDIS_ADDR is unset; rate limits then stay in-process.
func newRedis(lc fx.Lifecycle, cfg config.Config) *ratelimit.Redis {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return client.Close() }})
	return ratelimit.NewRedis(client)
}

// newLimiter returns a nil Limiter without redis so routes count in process.
func newLimiter(r *ratelimit.Redis, log *zap.Logger) ratelimit.Limiter {
	if r == nil {
		log.Info("rate limiter: in-process")
		return nil
	}
	log.Info("rate limiter: redis")
	return r
}

// The client keeps ctx for token refresh, so it must outlive startup.
func newCalendar(cfg config.Config, log *zap.Logger) calendar.Provider {
	return calendar.New(context.Background(), cfg, log)
}

func newIssuer(cfg config.Config) *auth.Issuer {
	return auth.NewIssuer(cfg.AdminJWTSecret, cfg.AdminTokenTTL)
}

func newHandlers(svc *services.Service, cfg config.Config, issuer *auth.Issuer, conn *gorm.DB,
	pay payments.Gateway, r *ratelimit.Redis, log *zap.Logger) *handlers.Handlers {
	deps := handlers.Deps{
		Service:  svc,
		Config:   cfg,
		Issuer:   issuer,
		DB:       conn,
		Payments: pay,
		Log:      log,
	}
	if r != nil {
		deps.Redis = r
	}
	return handlers.New(deps)
}

func newRouter(h *handlers.Handlers, cfg config.Config, limiter ratelimit.Limiter, log *zap.Logger) http.Handler {
	return web.Router(h, cfg, limiter, log)
}

func startHTTP(lc fx.Lifecycle, shutdowner fx.Shutdowner, cfg config.Config, router http.Handler, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("Serenity's Keys API listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func scheduleDigest(lc fx.Lifecycle, cfg config.Config, conn *gorm.DB, mail mailer.Mailer, log *zap.Logger) {
	if !cfg.DigestEnabled {
		log.Info("weekly digest disabled")
		return
	}
	digest := jobs.NewDigest(conn, mail, cfg.Location, log.Named("digest"))
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			jobs.Start(ctx, jobs.Weekly{Day: time.Sunday, Hour: 17, Loc: cfg.Location}, "weekly_digest",
				func(ctx context.Context, now time.Time) error {
					_, err := digest.RunOnce(ctx, now)
					return err
				}, log)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
