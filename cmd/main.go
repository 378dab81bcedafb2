package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dtroode/taq-server/internal/api/grpc/router"
	httpapi "github.com/dtroode/taq-server/internal/api/http"
	"github.com/dtroode/taq-server/internal/config"
	"github.com/dtroode/taq-server/internal/flag"
	"github.com/dtroode/taq-server/internal/identity"
	"github.com/dtroode/taq-server/internal/logger"
	"github.com/dtroode/taq-server/internal/metrics"
	"github.com/dtroode/taq-server/internal/model"
	"github.com/dtroode/taq-server/internal/repository/postgres"
	"github.com/dtroode/taq-server/internal/repository/supabase"
	"github.com/dtroode/taq-server/internal/server"
	"github.com/dtroode/taq-server/internal/service"
	"github.com/dtroode/taq-server/internal/session"
	storage "github.com/dtroode/taq-server/internal/storage/minio"
	"github.com/dtroode/taq-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel, cfg.LogFormat)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	health := service.NewHealth(2 * time.Second)
	httpClient := &http.Client{Timeout: 15 * time.Second}

	var profiles model.ProfileStore
	switch cfg.ProfileStore {
	case config.ProfileStoreSupabase:
		repo, err := supabase.NewProfileRepository(supabase.Config{URL: cfg.Supabase.URL, APIKey: cfg.Supabase.APIKey}, httpClient)
		if err != nil {
			logger.Fatal("failed to initialize profile store", "error", err)
		}
		profiles = repo
	default:
		db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
		if err != nil {
			logger.Fatal("failed to initialize profile store", "error", err)
		}
		defer db.Close()
		profiles = postgres.NewProfileRepository(db)
	}
	health.Register("profiles", profiles)

	var flagStore model.FlagStore = flag.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		rdb, err := flag.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("failed to connect to redis", "error", err)
		}
		defer rdb.Close()
		flagStore = flag.NewRedisStore(rdb)
	}
	flags := flag.NewChannel(flagStore, logger)
	health.Register("flags", flags)

	verifier, provider := identityStack(ctx, cfg, httpClient, logger)
	defer verifier.Close()

	var archive model.Storage
	if cfg.Storage.Endpoint != "" {
		client, err := storage.New(ctx, storage.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
		if err != nil {
			logger.Fatal("failed to initialize receipt storage", "error", err)
		}
		archive = client
		health.Register("receipts", client)
	}

	sessions := session.NewManager(session.ManagerConfig{
		IdleTTL:   cfg.Session.IdleTTL,
		NotifyTTL: cfg.Session.NotifyTTL,
	}, m, logger)
	sessions.StartJanitor(ctx, cfg.Session.JanitorInterval)

	rcfg := session.DefaultConfig()
	rcfg.IdentityRetries = cfg.Reconcile.IdentityRetries
	rcfg.IdentityRetryDelay = cfg.Reconcile.IdentityRetryDelay
	reconciler := session.NewReconciler(ctx, provider, profiles, flags, sessions, m, logger, rcfg)

	api := httpapi.NewServer(httpapi.Deps{
		Sessions:   sessions,
		Reconciler: reconciler,
		Onboarding: session.NewOnboarding(profiles, flags, m, logger),
		Auth:       service.NewAuth(verifier, reconciler, logger),
		Payments:   service.NewPayments(provider, archive, m, logger),
		Directory:  service.NewDirectory(profiles, logger),
		Health:     health,
		Gatherer:   reg,
	}, httpapi.CookieOptions{
		Secure: cfg.Session.SecureCookie,
		MaxAge: cfg.Session.IdleTTL,
	}, logger)

	ops := router.New(health, logger)
	opsServer := ops.Register()
	ops.Watch(ctx, cfg.GRPC.HealthInterval)

	servers := []struct {
		srv model.Server
		sl  model.SecurityLayer
	}{
		{
			srv: server.NewHTTPServer(api.Router(), fmt.Sprintf(":%s", cfg.HTTP.Port)),
			sl:  securityLayer(cfg.HTTP.EnableHTTPS, cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName),
		},
		{
			srv: server.NewGRPCServer(opsServer, fmt.Sprintf(":%s", cfg.GRPC.Port)),
			sl:  securityLayer(cfg.GRPC.EnableHTTPS, cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName),
		},
	}

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(s model.Server, sl model.SecurityLayer) {
			defer wg.Done()
			logger.Info("Starting server on", "address", s.Address())
			if err := s.Start(sl); err != nil {
				logger.Error("failed to start server", "error", err, "address", s.Address())
				stop()
			}
		}(s.srv, s.sl)
	}

	logAppVersion()

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")
	ops.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for _, s := range servers {
		if err := s.srv.Stop(shutdownCtx); err != nil {
			logger.Error("error during server shutdown", "error", err, "address", s.srv.Address())
		}
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

// identityStack picks the token verifier and provider client. A dev secret
// switches to HMAC tokens, and to the offline provider when no app
// credentials are configured.
func identityStack(ctx context.Context, cfg *config.Config, client *http.Client, logger *logger.Logger) (*token.Verifier, model.IdentityProvider) {
	p := cfg.Provider

	if p.DevSecret != "" && (p.AppID == "" || p.AppSecret == "") {
		logger.Warn("identity provider running offline with HMAC tokens")
		return token.NewHMACVerifier(p.DevSecret, p.Issuer, p.AppID), identity.NewOffline()
	}

	provider, err := identity.NewClient(identity.Config{
		BaseURL:       p.BaseURL,
		WalletBaseURL: p.WalletBaseURL,
		AppID:         p.AppID,
		AppSecret:     p.AppSecret,
		ChainID:       p.ChainID,
	}, client)
	if err != nil {
		logger.Fatal("failed to initialize identity provider", "error", err)
	}

	if p.DevSecret != "" {
		logger.Warn("accepting HMAC identity tokens signed with the dev secret")
		return token.NewHMACVerifier(p.DevSecret, p.Issuer, p.AppID), provider
	}

	return token.NewJWKSVerifier(ctx, token.JWKSConfig{
		URL:             p.JWKS(),
		Issuer:          p.Issuer,
		Audience:        p.AppID,
		RefreshInterval: p.JWKSRefresh,
	}, logger), provider
}

func securityLayer(enabled bool, certFile, keyFile string) model.SecurityLayer {
	if !enabled {
		return server.NewPlainListener()
	}
	return server.NewSecurityLayer(certFile, keyFile)
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}
