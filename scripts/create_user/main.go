package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/scielo-br/pid-provider/internal/models"
	"github.com/scielo-br/pid-provider/internal/repository"
	"github.com/scielo-br/pid-provider/internal/service"
	"github.com/scielo-br/pid-provider/pkg/config"
	"github.com/scielo-br/pid-provider/pkg/database"
)

func main() {
	var (
		username string
		password string
		role     string
		timeout  time.Duration
	)

	flag.StringVar(&username, "username", "", "Account name (required)")
	flag.StringVar(&password, "password", "", "Plain text password to hash (required)")
	flag.StringVar(&role, "role", models.RoleRequester, "Account role (ADMIN or REQUESTER)")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Database operation timeout")
	flag.Parse()

	if username == "" || password == "" {
		log.Fatal("both -username and -password are required")
	}
	role = strings.ToUpper(role)
	if role != models.RoleAdmin && role != models.RoleRequester {
		log.Fatalf("unknown role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	hash, err := service.HashPassword(password)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := repository.NewUserRepository(db).Create(ctx, user); err != nil {
		log.Fatalf("failed to create user: %v", err)
	}

	fmt.Printf("created user %s (%s) with id %s\n", user.Username, user.Role, user.ID)
}
