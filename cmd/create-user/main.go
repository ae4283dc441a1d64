// Package main implements a small admin CLI that creates a user account
// directly in the database. There is no public registration endpoint, so
// accounts are provisioned with this tool.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/bcrypt"

	"github.com/phrazzld/taskboard-api/internal/config"
	"github.com/phrazzld/taskboard-api/internal/domain"
	"github.com/phrazzld/taskboard-api/internal/platform/postgres"
)

func main() {
	email := flag.String("email", "", "email address for the new user (required)")
	password := flag.String("password", "", "password for the new user (required)")
	flag.Parse()

	if *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*email, *password); err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}
}

func run(email, password string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	user, err := domain.NewUser(email, password)
	if err != nil {
		return fmt.Errorf("invalid user details: %w", err)
	}

	userStore := postgres.NewPostgresUserStore(db, bcrypt.DefaultCost)
	if err := userStore.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}

	fmt.Printf("Created user %s (%s)\n", user.Email, user.ID)
	return nil
}
