package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"chatsphere/internal/sweeper"
	"chatsphere/pkg/api"
	"chatsphere/pkg/banner"
	"chatsphere/pkg/cache"
	"chatsphere/pkg/config"
	"chatsphere/pkg/logger"
	"chatsphere/pkg/mutate"
	"chatsphere/pkg/notify"
	"chatsphere/pkg/profile"
	"chatsphere/pkg/security"
	"chatsphere/pkg/store"
	"chatsphere/pkg/telemetry"
)

// build metadata - set via ldflags during release
var version = "dev"

var welcomeMessages = []string{
	"Welcome to ChatSphere! Say hi to everyone.",
	"Tip: reply to any message to start a thread.",
	"Polls are live - create one with /v1/polls.",
}

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// flags win over config/env when explicitly provided
	addr := addrVal
	if !setFlags["addr"] {
		addr = cfg.Addr()
	}
	dbPath := dbVal
	if !setFlags["db"] {
		if p := cfg.Storage.DBPath; p != "" {
			dbPath = p
		}
	}

	logger.Init(cfg.Logging.Level)
	if cfg.Logging.AuditDir != "" {
		if err := logger.AttachAuditFileSink(cfg.Logging.AuditDir); err != nil {
			logger.Error("audit_sink_attach_failed", "dir", cfg.Logging.AuditDir, "error", err)
			os.Exit(1)
		}
	}

	if err := store.Open(dbPath); err != nil {
		logger.Error("store_open_failed", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	feed := cache.New(cfg.CacheCapacity(), time.Duration(cfg.CacheTTLSeconds())*time.Second, nil)
	store.OnMutate(feed.InvalidateAll)

	profile.SetAdminCredentials(cfg.Security.Admin.Username, cfg.Security.Admin.PasswordHash)

	var dispatcher *notify.Dispatcher
	if cfg.Notify.VAPIDPublicKey != "" && cfg.Notify.VAPIDPrivateKey != "" {
		sender := notify.NewWebPushSender(cfg.Notify.Contact, cfg.Notify.VAPIDPublicKey, cfg.Notify.VAPIDPrivateKey)
		dispatcher = notify.New(sender, cfg.Notify.QueueCapacity, cfg.Notify.Workers)
		mutate.SetNotifier(dispatcher)
		profile.SetNotifier(dispatcher)
		defer dispatcher.Close()
	} else {
		logger.Info("push_disabled", "reason", "vapid keys not configured")
	}

	seedWelcome()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cancelSweep, err := sweeper.Start(ctx, cfg.Polls.SweepCron)
	if err != nil {
		logger.Error("poll_sweeper_start_failed", "error", err)
		os.Exit(1)
	}
	defer cancelSweep()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthzHandler)
	mux.HandleFunc("/readyz", readyzHandler)
	mux.Handle("/", api.Handler(feed))
	mux.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	mux.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))
	mux.Handle("/metrics", promhttp.Handler())

	secCfg := security.SecConfig{
		AllowedOrigins: append([]string{}, cfg.Security.CORS.AllowedOrigins...),
		RPS:            cfg.Security.RateLimit.RPS,
		Burst:          cfg.Security.RateLimit.Burst,
	}
	wrapped := security.Middleware(secCfg)(mux)
	wrapped = telemetry.Middleware(wrapped)

	srv := &http.Server{Addr: addr, Handler: wrapped}

	source := "flags"
	if cfgPath != "" {
		source = cfgPath
	} else if envUsed {
		source = "env"
	}
	banner.Print(addr, dbPath, source, version)
	logger.Info("server_starting", "addr", addr, "db", dbPath, "version", version)

	errCh := make(chan error, 1)
	go func() {
		cert := cfg.Server.TLS.CertFile
		key := cfg.Server.TLS.KeyFile
		if cert != "" && key != "" {
			errCh <- srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server_error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_error", "error", err)
	}
	logger.Info("server_stopped")
}

// seedWelcome posts the stock system messages into an empty feed so first
// visitors see something other than a blank page.
func seedWelcome() {
	n, err := store.CountMessages()
	if err != nil {
		logger.Error("seed_count_failed", "error", err)
		return
	}
	if n > 0 {
		return
	}
	for _, text := range welcomeMessages {
		if _, err := mutate.CreateSystemMessage(text); err != nil {
			logger.Error("seed_message_failed", "error", err)
			return
		}
	}
	logger.Info("welcome_messages_seeded", "count", len(welcomeMessages))
}

func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func readyzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + version + `"}`))
}
