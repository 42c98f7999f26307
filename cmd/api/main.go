package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/infolock/server/internal/audit"
	"github.com/infolock/server/internal/auth"
	"github.com/infolock/server/internal/config"
	"github.com/infolock/server/internal/db"
	httphandler "github.com/infolock/server/internal/http"
	"github.com/infolock/server/internal/logging"
	"github.com/infolock/server/internal/notify"
	"github.com/infolock/server/internal/repo"
)

const sweepInterval = 10 * time.Minute

func main() {
	// Load .env from CWD or server/ so it works from repo root or server/ (env vars override)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	cfg, err := config.Load()
	if err != nil {
		// no logger yet; config decides its mode
		fallback, _ := zap.NewProduction()
		fallback.Fatal("failed to load configuration", zap.Error(err))
	}

	log, err := logging.New(cfg.DevMode)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		database   *sql.DB
		principals repo.PrincipalRepo
		otpStore   repo.OtpRepo
		activity   repo.ActivityRepo
	)
	if cfg.DatabaseURL != "" {
		database, err = db.Open(ctx, cfg.DatabaseURL, db.DefaultPool, log)
		if err != nil {
			log.Fatal("failed to open database", zap.Error(err))
		}
		defer database.Close()

		if err := db.Migrate(database); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
		principals = repo.NewPrincipalRepo(database)
		otpStore = repo.NewOtpRepo(database)
		activity = repo.NewActivityRepo(database)
	} else {
		log.Warn("DATABASE_URL not set; using in-memory stores (DEV_MODE)")
		principals = repo.NewMemoryPrincipalRepo()
		otpStore = repo.NewMemoryOtpRepo()
		activity = repo.NewMemoryActivityRepo()
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ExternalCallTimeout)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal("failed to connect to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer rdb.Close()
		otpStore = repo.NewRedisOtpRepo(rdb)
		log.Info("otp records stored in redis", zap.String("addr", cfg.RedisAddr))
	}

	var geo audit.Geolocator = audit.NoGeolocation{}
	if cfg.GeoIPDBPath != "" {
		mm, err := audit.NewMaxMindGeolocator(cfg.GeoIPDBPath)
		if err != nil {
			log.Warn("geolocation disabled", zap.String("path", cfg.GeoIPDBPath), zap.Error(err))
		} else {
			defer mm.Close()
			geo = mm
		}
	}
	auditor := audit.New(activity, geo, cfg.ExternalCallTimeout, log.Named("audit"))

	var mailer notify.Mailer
	if cfg.SMTPHost != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	} else {
		drop, err := notify.NewDropMailer(cfg.DevMailDir, log.Named("mail"))
		if err != nil {
			log.Fatal("failed to prepare mail drop", zap.Error(err))
		}
		log.Warn("SMTP_HOST not set; emails including OTP codes are written to the mail drop (DEV_MODE)", zap.String("dir", cfg.DevMailDir))
		mailer = drop
	}

	var captcha auth.CaptchaVerifier = auth.DisabledCaptcha{}
	if cfg.RecaptchaSecret != "" {
		captcha = auth.NewRecaptchaVerifier(cfg.RecaptchaSecret, &http.Client{Timeout: cfg.ExternalCallTimeout})
	} else {
		log.Warn("RECAPTCHA_SECRET not set; admin captcha checks are disabled")
	}

	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	creds, err := auth.NewCredentialStore(principals, auth.NewPepper(cfg.PasswordPepper), hasher)
	if err != nil {
		log.Fatal("failed to initialise credential store", zap.Error(err))
	}
	otp := auth.NewOtpManager(otpStore, hasher, auth.OtpConfig{
		TTL:                 cfg.OtpTTL,
		MaxAttempts:         cfg.OtpMaxAttempts,
		InvalidateOnReissue: cfg.OtpInvalidateOnReissue,
	})
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.UserTokenTTL, cfg.AdminTokenTTL)

	svc := auth.NewService(auth.Deps{
		Principals:           principals,
		Credentials:          creds,
		Transit:              auth.NewTransitDecryptor(cfg.TransitKey),
		Otp:                  otp,
		Tokens:               tokens,
		Mailer:               mailer,
		Captcha:              captcha,
		Activity:             auditor,
		Log:                  log.Named("auth"),
		Lockout:              repo.LockoutPolicy{Threshold: cfg.LockoutThreshold, Duration: cfg.LockoutDuration},
		VerificationTokenTTL: cfg.VerificationTokenTTL,
		ClientURL:            cfg.ClientURL,
		ExternalCallTimeout:  cfg.ExternalCallTimeout,
	})

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Service:    svc,
		Tokens:     tokens,
		Principals: principals,
		ClientURL:  cfg.ClientURL,
		Log:        log.Named("http"),
	})

	go sweepExpiredOtps(ctx, otp, log)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.Bool("dev_mode", cfg.DevMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	auditor.Wait()

	log.Info("server exited")
}

// sweepExpiredOtps removes expired codes until ctx is cancelled
func sweepExpiredOtps(ctx context.Context, otp *auth.OtpManager, log *zap.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := otp.Sweep(ctx)
			if err != nil {
				log.Warn("otp sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("expired otp records removed", zap.Int64("count", n))
			}
		}
	}
}
