package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/config"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/platform"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/storage"
	"github.com/platinummonkey/tenantguard/pkg/tenancy"
	"github.com/platinummonkey/tenantguard/pkg/tenants"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("TENANTGUARD_CONFIG"), "Path to a YAML config file")
	bootstrapTenant := flag.String("bootstrap-tenant", "", "Create a tenant with this name, print an owner token and exit")
	bootstrapOwner := flag.String("bootstrap-owner", "", "Email of the owner created with -bootstrap-tenant")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := setupLogger(cfg.Observability.LogLevel)
	log.WithField("version", version).Info("Starting tenantguard")

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).WithField("service", "tenantguard")
	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.Database.ConnectionConfig())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if cfg.Database.Migrate {
		if err := migrate(ctx, store); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		log.Info("Database schema is up to date")
	}
	registry, err := rbac.LoadRegistry(ctx, store)
	if err != nil {
		log.Fatalf("Failed to load permission registry: %v", err)
	}
	log.WithField("permissions", registry.Len()).Info("Permission registry loaded")

	tokens, err := auth.NewTokenManager(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("Failed to create token manager: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)

	cache, redisClient, err := setupCache(ctx, cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to set up permission cache: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	log.WithField("backend", cfg.Cache.Backend).Info("Permission cache configured")

	pcfg := platform.Config{
		Verifier:        tokens,
		TenantHeader:    cfg.Auth.TenantHeader,
		Cache:           cache,
		Logger:          logger,
		Metrics:         metrics,
		MetricsRegistry: promRegistry,
		Health:          observability.NewHealthChecker(store.DB(), redisClient, version),
	}
	if cfg.Audit.Enabled {
		pcfg.AuditStore = audit.NewStoreLogger(store, metrics)
		pcfg.AuditToLog = cfg.Audit.LogEvents
	}
	p := platform.New(store, registry, pcfg)

	if *bootstrapTenant != "" {
		token, err := bootstrap(ctx, p, tokens, *bootstrapTenant, *bootstrapOwner)
		if err != nil {
			log.Fatalf("Bootstrap failed: %v", err)
		}
		fmt.Println(token)
		return
	}

	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		log.Warnf("OpenTelemetry disabled: %v", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      p.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)

	if cfg.Audit.Enabled && cfg.Audit.RetentionDays > 0 {
		job := audit.NewRetentionJob(store, audit.RetentionPolicy{RetentionDays: cfg.Audit.RetentionDays}, logger)
		if err := job.Start(cfg.Audit.RetentionSchedule); err != nil {
			log.Fatalf("Failed to start audit retention: %v", err)
		}
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			select {
			case <-job.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	go func() {
		log.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	if err := shutdown.WaitForShutdown(ctx); err != nil {
		log.Errorf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

// migrate applies every schema and seeds the permission catalog
func migrate(ctx context.Context, store *storage.Store) error {
	if err := tenants.Migrate(ctx, store); err != nil {
		return fmt.Errorf("tenants: %w", err)
	}
	if err := rbac.Migrate(ctx, store); err != nil {
		return fmt.Errorf("rbac: %w", err)
	}
	if err := audit.Migrate(ctx, store); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	return rbac.SeedCatalog(ctx, store, rbac.DefaultCatalog(), rbac.SystemRoles())
}

func setupCache(ctx context.Context, cfg config.CacheConfig) (rbac.PermissionCache, *redis.Client, error) {
	switch cfg.Backend {
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		return rbac.NewRedisCache(client, cfg.TTL), client, nil
	case config.CacheBackendNone:
		return rbac.NoCache{}, nil, nil
	default:
		return rbac.NewLRUCache(cfg.Size, cfg.TTL), nil, nil
	}
}

// bootstrap creates a tenant and its first owner and returns a session token
// for that owner
func bootstrap(ctx context.Context, p *platform.Platform, tokens *auth.TokenManager, name, ownerEmail string) (string, error) {
	if ownerEmail == "" {
		return "", fmt.Errorf("-bootstrap-owner is required")
	}
	tenant, err := p.Tenants().Create(ctx, tenants.CreateTenantRequest{Name: name})
	if err != nil {
		return "", err
	}

	ownerRole := rbac.SystemRoleID(rbac.RoleOwner)
	var owner *rbac.User
	err = tenancy.Run(ctx, tenant.ID, func(ctx context.Context) error {
		owner, err = p.Services().Users.CreateUser(ctx, rbac.CreateUserRequest{
			Email:    ownerEmail,
			FullName: ownerEmail,
			RoleID:   &ownerRole,
		})
		return err
	})
	if err != nil {
		return "", err
	}

	return tokens.Issue(auth.Identity{UserID: owner.ID, Email: owner.Email, TenantID: tenant.ID})
}
