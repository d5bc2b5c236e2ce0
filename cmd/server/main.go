package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/axedro/genflow-ai/internal/auth"
	"github.com/axedro/genflow-ai/internal/config"
	"github.com/axedro/genflow-ai/internal/db"
	"github.com/axedro/genflow-ai/internal/httpapi"
	"github.com/axedro/genflow-ai/internal/kvstore"
	membershiprepo "github.com/axedro/genflow-ai/internal/membership/repository"
	"github.com/axedro/genflow-ai/internal/obs"
	"github.com/axedro/genflow-ai/internal/ratelimit"
	"github.com/axedro/genflow-ai/internal/revocation"
	"github.com/axedro/genflow-ai/internal/security"
	sessionrepo "github.com/axedro/genflow-ai/internal/session/repository"
	userrepo "github.com/axedro/genflow-ai/internal/user/repository"
	workspacerepo "github.com/axedro/genflow-ai/internal/workspace/repository"
)

// sessionSweepInterval is how often expired session rows are reaped. Expired
// rows are already invisible to reads; the sweep just keeps the table small.
const sessionSweepInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	tokens, err := security.NewTokenProvider([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.SessionTokenTTL(), cfg.ResetTTL())
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	kv := kvstore.NewMemoryStore()
	sessions := sessionrepo.NewPostgresRepository(database)

	svc := auth.NewService(
		auth.NewPostgresRegistrar(database),
		userrepo.NewPostgresRepository(database),
		workspacerepo.NewPostgresRepository(database),
		membershiprepo.NewPostgresRepository(database),
		sessions,
		revocation.NewCache(kv),
		ratelimit.NewLimiter(kv, cfg.AttemptWindow(), cfg.RateLimitMax),
		kv,
		security.NewHasher(cfg.BcryptCost),
		tokens,
		auth.Config{
			CacheTimeout:         cfg.CacheCallTimeout(),
			StoreTimeout:         cfg.StoreCallTimeout(),
			RequireVerifiedEmail: cfg.RequireVerifiedEmail,
		},
	)

	obs.Init()
	api := httpapi.New(svc, database)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(20, 10),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepSessions(ctx, sessions)

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}

func sweepSessions(ctx context.Context, sessions *sessionrepo.PostgresRepository) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				log.Printf("session sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("session sweep: removed %d expired sessions", n)
			}
		}
	}
}
