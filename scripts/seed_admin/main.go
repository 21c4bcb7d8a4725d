// Command seed_admin bootstraps the first administrator account so a fresh
// deployment has someone who can log in and provision the rest.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dabestan-dev/dabestan-api/internal/identity"
	"github.com/dabestan-dev/dabestan-api/internal/models"
	"github.com/dabestan-dev/dabestan-api/internal/repository"
	"github.com/dabestan-dev/dabestan-api/pkg/config"
	"github.com/dabestan-dev/dabestan-api/pkg/database"
)

func main() {
	var (
		email    string
		fullName string
		password string
		timeout  time.Duration
	)

	flag.StringVar(&email, "email", "", "Administrator email (required)")
	flag.StringVar(&fullName, "name", "Administrator", "Display name")
	flag.StringVar(&password, "password", "", "Initial password (falls back to SEED_ADMIN_PASSWORD)")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Database operation timeout")
	flag.Parse()

	if email == "" {
		log.Fatal("-email is required")
	}
	if password == "" {
		password = os.Getenv("SEED_ADMIN_PASSWORD")
	}
	if len(password) < 8 {
		log.Fatal("password must be at least 8 characters (set -password or SEED_ADMIN_PASSWORD)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	users := repository.NewUserRepository(db)
	if existing, err := users.FindByEmail(ctx, email); err == nil && existing != nil {
		log.Fatalf("account %s already exists", email)
	}

	admin := identity.NewStoreAdmin(db)
	userID, err := admin.CreateIdentity(ctx, identity.NewIdentity{
		Email:    email,
		Password: password,
		Metadata: map[string]string{"full_name": fullName},
	})
	if err != nil {
		log.Fatalf("create identity: %v", err)
	}

	now := time.Now().UTC()
	if err := users.CreateProfile(ctx, &models.Profile{
		ID:        userID,
		FullName:  fullName,
		Username:  usernameFromEmail(email),
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		rollback(ctx, admin, userID)
		log.Fatalf("create profile: %v", err)
	}

	if err := users.AssignRole(ctx, models.RoleAssignment{UserID: userID, Role: models.RoleAdmin}); err != nil {
		rollback(ctx, admin, userID)
		log.Fatalf("assign role: %v", err)
	}

	fmt.Printf("administrator %s created (id %s)\n", email, userID)
}

func rollback(ctx context.Context, admin *identity.StoreAdmin, userID string) {
	if err := admin.DeleteIdentity(ctx, userID); err != nil {
		log.Printf("rollback failed, identity %s left behind: %v", userID, err)
	}
}

func usernameFromEmail(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
