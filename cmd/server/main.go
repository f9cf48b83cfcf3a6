package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/config"
	"github.com/iliyamo/busbooking/internal/database"
	"github.com/iliyamo/busbooking/internal/handler"
	"github.com/iliyamo/busbooking/internal/logger"
	"github.com/iliyamo/busbooking/internal/middleware"
	"github.com/iliyamo/busbooking/internal/notify"
	"github.com/iliyamo/busbooking/internal/queue"
	"github.com/iliyamo/busbooking/internal/repository"
	"github.com/iliyamo/busbooking/internal/router"
	"github.com/iliyamo/busbooking/internal/service"
	"github.com/iliyamo/busbooking/internal/storage"
)

// statsTTL is how long the dashboard counters are served from memory.
const statsTTL = 30 * time.Second

func main() {
	log, err := logger.New(os.Getenv("APP_ENV"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load(".env", log)
	if err != nil {
		return err
	}
	log.Info("configuration loaded", cfg.Fields()...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	db, err := database.Open(ctx, cfg.DBConfig, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(cfg.MigrateURL(), database.DialectMySQL); err != nil {
			return err
		}
	}

	rc, err := config.LoadRedisConfig()
	if err != nil {
		return err
	}
	rdb := config.NewRedisClient(rc)
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		return err
	}
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		return err
	}

	// ---- Events ----
	var mailer notify.Mailer = notify.NopMailer{}
	if cfg.ResendAPIKey != "" {
		mailer = notify.NewResendMailer(cfg.ResendAPIKey, cfg.MailFrom, cfg.BaseURL, log)
	}
	var events service.EventPublisher = queue.NopPublisher{}
	if cfg.RabbitURL != "" {
		events = queue.NewAMQPPublisher(cfg.RabbitURL, cfg.EventsQueue, log)
		consumer := &queue.Consumer{
			URL:        cfg.RabbitURL,
			Queue:      cfg.EventsQueue,
			ReportPath: cfg.ReportLog,
			Mailer:     mailer,
			Logger:     log,
		}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("events consumer stopped", zap.Error(err))
			}
		}()
	} else {
		log.Warn("RABBITMQ_URL not set; events are not published")
	}

	// ---- Services ----
	clients := repository.NewClientRepo(db)
	reservations := repository.NewReservationRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	identity := service.NewIdentityService(db, clients, service.NewPINGenerator(), events, log)
	resSvc := service.NewReservationService(db, clients, reservations, identity, events, log)
	dirSvc := service.NewDirectoryService(repository.NewCollaboratorRepo(db), repository.NewAboutRepo(db),
		clients, reservations, users, storage.NewLocalStore(cfg.UploadDir, cfg.UploadURLPrefix), statsTTL, log)
	accounts := service.NewAccountService(users, tokens, cfg.BcryptCost, log)

	if emails := cfg.SeedEmails(); len(emails) > 0 {
		seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := accounts.SeedAdmins(seedCtx, emails, cfg.AdminSeedPassword)
		cancel()
		if err != nil {
			return err
		}
	}

	go purgeTokens(ctx, accounts, log)

	// ---- HTTP ----
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.Session(cfg.JWTSecret))
	e.Use(middleware.CSRF([]byte(cfg.CSRFKey), cfg.SecureCookies))

	cache := middleware.NewResponseCache(cacheCfg, rdb, log)
	router.RegisterRoutes(e, db, cfg.StaticDir)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg.AuthConfig, accounts, tokens, log))
	router.RegisterPublic(e, handler.NewPublicHandler(resSvc, identity, dirSvc, cfg.BaseURL),
		middleware.NewTokenBucket(rlCfg, rdb, log), cache.Middleware())
	router.RegisterAdmin(e, handler.NewAdminHandler(resSvc, dirSvc, accounts, cache))

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// purgeTokens drops dead refresh tokens once an hour until ctx ends.
func purgeTokens(ctx context.Context, accounts *service.AccountService, log *zap.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if _, err := accounts.PurgeTokens(pctx, 24*time.Hour); err != nil {
				log.Warn("token purge failed", zap.Error(err))
			}
			cancel()
		}
	}
}
