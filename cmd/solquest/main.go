package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/solquestio/solquestio-sub002/adapters/events"
	"github.com/solquestio/solquestio-sub002/adapters/metadata"
	"github.com/solquestio/solquestio-sub002/adapters/minter"
	"github.com/solquestio/solquestio-sub002/adapters/signature"
	"github.com/solquestio/solquestio-sub002/adapters/store"
	"github.com/solquestio/solquestio-sub002/adapters/tokenizer"
	"github.com/solquestio/solquestio-sub002/internal/config"
	"github.com/solquestio/solquestio-sub002/internal/logger"
	"github.com/solquestio/solquestio-sub002/ports"
	"github.com/solquestio/solquestio-sub002/service"
	httptransport "github.com/solquestio/solquestio-sub002/transport/http"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	appLog := logger.New(cfg.LogLevel)

	if err := run(ctx, cfg, appLog); err != nil {
		appLog.WithError(err).Fatal("solquest stopped")
	}
	appLog.Info("shutdown complete")
}

// backend bundles the stores of the configured persistence backend
type backend struct {
	ledger ports.ClaimLedger
	users  ports.UserStore
	replay ports.ReplayGuard
	health func(context.Context) error
	redis  *redis.Client
	close  func() error
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.Store.Backend {
	case "redis":
		client, err := store.NewRedisClient(ctx, cfg.Store.RedisURL)
		if err != nil {
			return nil, err
		}
		return &backend{
			ledger: store.NewRedisLedger(client, cfg.Store.RedisPrefix, cfg.Claim.MaxSupply, cfg.Store.MaxRetries),
			users:  store.NewRedisUserStore(client, cfg.Store.RedisPrefix, cfg.Store.MaxRetries),
			replay: store.NewRedisReplayGuard(client, cfg.Store.RedisPrefix),
			health: func(ctx context.Context) error { return client.Ping(ctx).Err() },
			redis:  client,
			close:  client.Close,
		}, nil

	case "postgres":
		db, err := store.OpenPostgres(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &backend{
			ledger: store.NewPostgresLedger(db, cfg.Claim.MaxSupply),
			users:  store.NewPostgresUserStore(db),
			replay: store.NewPostgresReplayGuard(db),
			health: db.PingContext,
			close:  db.Close,
		}, nil

	default:
		return &backend{
			ledger: store.NewMemoryLedger(cfg.Claim.MaxSupply),
			users:  store.NewMemoryUserStore(),
			replay: store.NewMemoryReplayGuard(),
			close:  func() error { return nil },
		}, nil
	}
}

func newMinter(cfg *config.Config) (ports.Minter, error) {
	if cfg.Mint.Mode == "http" {
		return minter.NewHTTPMinter(cfg.Mint.Endpoint, cfg.Mint.APIKey, cfg.Claim.MintTimeout)
	}
	return minter.NewSimulatedMinter(), nil
}

func newMetadataStore(ctx context.Context, cfg *config.Config) (ports.MetadataStore, error) {
	if cfg.Metadata.Mode != "minio" {
		return metadata.NewStaticStore(cfg.Mint.MetadataBaseURI), nil
	}
	client, err := metadata.NewMinioClient(cfg.Metadata.Endpoint, cfg.Metadata.AccessKey, cfg.Metadata.SecretKey, cfg.Metadata.UseSSL)
	if err != nil {
		return nil, err
	}
	return metadata.NewMinioStore(ctx, client, cfg.Metadata.Bucket, cfg.Metadata.PublicBaseURL)
}

// newEventPublisher returns the publisher and a func closing what it opened
func newEventPublisher(ctx context.Context, cfg *config.Config, b *backend, log logrus.FieldLogger) (ports.EventPublisher, func() error, error) {
	if !cfg.Events.Enabled {
		return events.NopPublisher{}, func() error { return nil }, nil
	}

	client, owned := b.redis, false
	if client == nil {
		var err error
		if client, err = store.NewRedisClient(ctx, cfg.Store.RedisURL); err != nil {
			return nil, nil, err
		}
		owned = true
	}

	pub, raw, err := events.NewRedisStreamPublisher(client, cfg.Events.Topic, events.NewLogrusAdapter(log))
	if err != nil {
		if owned {
			_ = client.Close()
		}
		return nil, nil, err
	}
	return pub, func() error {
		err := raw.Close()
		if owned {
			err = errors.Join(err, client.Close())
		}
		return err
	}, nil
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	defer func() {
		if err := b.close(); err != nil {
			log.WithError(err).Warn("failed to close store")
		}
	}()

	eventPub, closeEvents, err := newEventPublisher(ctx, cfg, b, log)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer func() {
		if err := closeEvents(); err != nil {
			log.WithError(err).Warn("failed to close event publisher")
		}
	}()

	mint, err := newMinter(cfg)
	if err != nil {
		return err
	}
	mdStore, err := newMetadataStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create metadata store: %w", err)
	}
	tpl, err := service.NewMetadataTemplate(cfg.Mint.Name, cfg.Mint.Symbol, cfg.Mint.RoyaltyPercent)
	if err != nil {
		return err
	}

	authService := service.NewAuthService(
		service.NewChallengeIssuer(cfg.Auth.Product, cfg.Auth.ChallengeTTL, cfg.Auth.ChallengeSkew),
		signature.NewEd25519Verifier(),
		b.replay,
		b.users,
		tokenizer.NewJWTTokenizer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL),
		eventPub,
		log,
	)
	claimService := service.NewClaimService(b.ledger, b.users, mint, mdStore, tpl, eventPub, log, service.ClaimConfig{
		MinXP:       cfg.Claim.MinXP,
		MintTimeout: cfg.Claim.MintTimeout,
	})
	userService := service.NewUserService(b.users, b.ledger, cfg.Quests, log)

	reconciler := service.NewReconciler(b.ledger, b.users, mint, eventPub, cfg.Claim.ReconcileAfter, log)
	if err := reconciler.Start(cfg.Claim.ReconcileSchedule); err != nil {
		return err
	}

	router := httptransport.SetupRouter(httptransport.Services{
		Auth:   authService,
		Claims: claimService,
		Users:  userService,
		Health: b.health,
	}, log)
	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": cfg.HTTP.Addr, "store": cfg.Store.Backend}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		select {
		case <-reconciler.Stop().Done():
		case <-shutdownCtx.Done():
			log.Warn("reconcile sweep still running at shutdown")
		}
		return err
	})

	return g.Wait()
}
