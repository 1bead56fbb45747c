package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/migrations"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/otp"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("service stopped", "err", err)
		_ = lg.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, sugar *zap.SugaredLogger) error {
	sugar.Infow("starting service-auth-go", "store", cfg.Store, "otp_backend", cfg.OTPBackend, "version", router.Version)
	if cfg.GeneratedSecret {
		sugar.Warn("JWT_SECRET not set; using a random per-process secret, sessions will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	var store user.Store
	switch cfg.Store {
	case config.StorePostgres:
		db, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if err := migrations.Up(ctx, db.DB); err != nil {
			return err
		}
		store = userrepo.NewUserRepo(db)
	default:
		sugar.Warn("using in-memory user store; accounts are lost on restart")
		store = userrepo.NewMemoryRepo()
	}

	var challenges otp.ChallengeStore
	switch cfg.OTPBackend {
	case config.OTPBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		challenges = otp.NewRedisStore(rdb, cfg.Redis.Prefix, clock, cfg.Auth.OTP)
	default:
		challenges = otp.NewMemoryStore(clock, cfg.Auth.OTP)
	}

	issuer, err := session.NewIssuer(session.Config{
		Secret: cfg.SigningSecret(),
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.SessionTTL,
	}, clock)
	if err != nil {
		return err
	}

	users := user.NewUserService(store, clock)
	svc, err := auth.NewService(auth.Deps{
		Users:       users,
		Challenges:  challenges,
		Sender:      otp.NewLogSender(sugar),
		Sessions:    issuer,
		Credentials: auth.CredentialVerifier{Cost: cfg.Auth.BcryptCost},
		Logger:      sugar,
	})
	if err != nil {
		return err
	}

	if admin := cfg.Auth.Admin; admin.Enabled() {
		created, err := svc.SeedAdmin(ctx, admin.Username, admin.Password, admin.SecondFactor)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if created {
			sugar.Infow("admin account seeded", "username", admin.Username)
		}
	}

	handler := router.RegisterRoutes(router.Deps{
		Auth:   auth.NewHandler(svc, sugar),
		Users:  user.NewHandler(users, auth.CallerUID, sugar),
		Gate:   auth.NewGate(issuer, sugar),
		Node:   utilities.NewSnowflakeNode(cfg.SnowflakeNode),
		Logger: sugar,
	})
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		sugar.Infow("http server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	sugar.Info("shutting down")
	doneCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
	return nil
}
