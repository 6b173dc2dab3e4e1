package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IYouKnow/TunnelUI/internal/auth"
	"github.com/IYouKnow/TunnelUI/internal/cloudflared"
	"github.com/IYouKnow/TunnelUI/internal/config"
	"github.com/IYouKnow/TunnelUI/internal/database"
	"github.com/IYouKnow/TunnelUI/internal/handlers"
	"github.com/IYouKnow/TunnelUI/internal/logging"
	"github.com/IYouKnow/TunnelUI/internal/middleware"
	"github.com/IYouKnow/TunnelUI/internal/orchestrator"
	"github.com/IYouKnow/TunnelUI/internal/procrun"
	"github.com/IYouKnow/TunnelUI/internal/status"
	"github.com/IYouKnow/TunnelUI/internal/systemd"
	"github.com/IYouKnow/TunnelUI/internal/tunnelfs"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	// Handle CLI commands before starting the server
	if len(os.Args) > 1 {
		if run, ok := commands[os.Args[1]]; ok {
			if err := run(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "tunnelui %s: %v\n", os.Args[1], err)
				os.Exit(1)
			}
			return
		}
	}

	config.Load()
	logging.Init()
	defer logging.Close()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	log.Printf("Config: AuthDisabled=%v, CloudflaredHome=%s, SystemdDir=%s, ServiceUser=%s",
		config.Cfg.AuthDisabled, config.Cfg.CloudflaredHome, config.Cfg.SystemdDir, config.Cfg.ServiceUser)

	runner := procrun.New()
	cli := cloudflared.New(runner, config.Cfg.CloudflaredBin)
	handlers.Cloudflared = cli
	if path, ok := cli.Which(); ok {
		log.Printf("cloudflared found at %s", path)
	} else {
		log.Printf("WARNING: cloudflared not found in PATH; install it from the dashboard")
	}

	orch := orchestrator.New(orchestrator.Options{
		CLI:         cli,
		Supervisor:  systemd.NewSupervisor(runner, config.Cfg.SystemdDir, config.Cfg.UnitStageDir),
		DNS:         orchestrator.CloudflareDNS(config.Cfg.CloudflareAPIURL),
		Layout:      tunnelfs.New(config.Cfg.CloudflaredHome),
		ServiceUser: config.Cfg.ServiceUser,
	})
	orchestrator.Set(orch)
	handlers.Status = status.New(cli, config.Cfg.ReleaseURL, config.Cfg.ReleaseTimeout)

	// Init session store
	sessionStore := auth.NewSessionStore()
	handlers.SessionStore = sessionStore

	// Session cleanup goroutine
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessionStore.Cleanup()
		}
	}()

	ctx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	scheduler := cron.New()
	if schedule := config.Cfg.StatusSyncSchedule; schedule != "" {
		if _, err := scheduler.AddFunc(schedule, func() { syncTunnelStatuses(ctx) }); err != nil {
			log.Printf("WARNING: invalid STATUS_SYNC_SCHEDULE %q: %v", schedule, err)
		}
	}
	scheduler.Start()
	syncTunnelStatuses(ctx)

	r := newRouter(sessionStore)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Cfg.Port),
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	<-scheduler.Stop().Done()
	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	orch.Shutdown(shutdownCtx)
	log.Println("Server stopped")
}

func newRouter(sessionStore *auth.SessionStore) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	// Health and metrics (no auth)
	r.Get("/health", handlers.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Auth endpoints (no auth required)
		r.Post("/auth/register", handlers.Register)
		r.Post("/auth/login", handlers.Login)
		r.Post("/auth/logout", handlers.Logout)
		r.Get("/auth/me", handlers.GetCurrentUser)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(sessionStore))

			r.Get("/status", handlers.GetStatus)

			// cloudflared package and login
			r.Post("/cloudflared/install", handlers.InstallCloudflared)
			r.Post("/cloudflared/update", handlers.UpdateCloudflared)
			r.Get("/cloudflared/package-status", handlers.GetPackageStatus)
			r.Post("/cloudflared/login", handlers.CloudflaredLogin)
			r.Get("/cloudflared/cert-status", handlers.GetCertStatus)

			// Accounts
			r.Get("/accounts", handlers.ListAccounts)
			r.Post("/accounts", handlers.CreateAccount)
			r.Put("/accounts/{id}", handlers.UpdateAccount)
			r.Delete("/accounts/{id}", handlers.DeleteAccount)

			// Domains
			r.Get("/domains", handlers.ListDomains)
			r.Post("/domains", handlers.CreateDomain)
			r.Put("/domains/{id}", handlers.UpdateDomain)
			r.Delete("/domains/{id}", handlers.DeleteDomain)

			// Tunnels; static segments before {id}
			r.Get("/tunnels", handlers.ListTunnels)
			r.Post("/tunnels", handlers.CreateTunnel)
			r.Get("/tunnels/check-name", handlers.CheckTunnelName)
			r.Delete("/tunnels/cleanup-temp/{tunnelId}", handlers.CleanupPendingTunnel)
			r.Get("/tunnels/{id}", handlers.GetTunnel)
			r.Put("/tunnels/{id}", handlers.UpdateTunnel)
			r.Delete("/tunnels/{id}", handlers.DeleteTunnel)
			r.Post("/tunnels/{id}/start", handlers.StartTunnel)
			r.Post("/tunnels/{id}/stop", handlers.StopTunnel)
			r.Post("/tunnels/{id}/restart", handlers.RestartTunnel)
			r.Get("/tunnels/{id}/status", handlers.GetTunnelStatus)
			r.Get("/tunnels/{id}/logs", handlers.GetTunnelLogs)
			r.Get("/tunnels/{id}/logs/follow", handlers.FollowTunnelLogs)
			r.Get("/tunnels/{id}/health", handlers.GetTunnelHealth)

			// systemd units
			r.Post("/tunnels/{id}/systemd", handlers.GenerateUnit)
			r.Delete("/tunnels/{id}/systemd", handlers.RemoveUnit)
			r.Post("/tunnels/{id}/activate-systemd", handlers.ActivateUnit)
			r.Delete("/tunnels/{id}/deactivate-systemd", handlers.DeactivateUnit)

			// Validation
			r.Post("/validate/api-token", handlers.ValidateAPIToken)
			r.Post("/validate/zone-id", handlers.ValidateZoneID)

			// Server logs
			r.Get("/server-logs", handlers.GetServerLogs)
			r.Delete("/server-logs", handlers.ClearServerLogs)
		})
	})

	// SPA static files
	if dir := config.Cfg.FrontendDir; dir != "" {
		spa := middleware.NewSPAHandler(os.DirFS(dir))
		r.NotFound(spa.ServeHTTP)
	}
	return r
}
