// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/axedro/genflow-ai/internal/auth"
	"github.com/axedro/genflow-ai/internal/config"
	"github.com/axedro/genflow-ai/internal/db"
	membershipdomain "github.com/axedro/genflow-ai/internal/membership/domain"
	"github.com/axedro/genflow-ai/internal/security"
	userdomain "github.com/axedro/genflow-ai/internal/user/domain"
	userrepo "github.com/axedro/genflow-ai/internal/user/repository"
	workspacedomain "github.com/axedro/genflow-ai/internal/workspace/domain"
)

const (
	devEmail    = "dev@example.com"
	devPassword = "password123"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set")
		os.Exit(1)
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(database)

	existing, err := users.GetByEmail(ctx, devEmail)
	if err != nil {
		log.Fatalf("seed: lookup dev user: %v", err)
	}
	if existing != nil {
		log.Printf("seed: %s already exists, nothing to do", devEmail)
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("seed: hash password: %v", err)
	}

	now := time.Now().UTC()
	user := &userdomain.User{
		ID:              uuid.New().String(),
		Email:           devEmail,
		Name:            "Dev User",
		PasswordHash:    hash,
		EmailVerifiedAt: &now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	workspace := &workspacedomain.Workspace{
		ID:        uuid.New().String(),
		Name:      "Dev Workspace",
		Industry:  "software",
		CreatedAt: now,
	}
	membership := &membershipdomain.Membership{
		WorkspaceID: workspace.ID,
		UserID:      user.ID,
		Role:        membershipdomain.RoleOwner,
		JoinedAt:    now,
	}

	registrar := auth.NewPostgresRegistrar(database)
	if err := registrar.CreateAccount(ctx, user, workspace, membership); err != nil {
		log.Fatalf("seed: create dev account: %v", err)
	}
	log.Printf("seed: created %s / %s (workspace %s)", devEmail, devPassword, workspace.ID)
}
