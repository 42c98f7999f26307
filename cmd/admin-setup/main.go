// Command admin-setup creates an admin account. Admins cannot self-register.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/infolock/server/internal/auth"
	"github.com/infolock/server/internal/config"
	"github.com/infolock/server/internal/db"
	"github.com/infolock/server/internal/logging"
	"github.com/infolock/server/internal/model"
	"github.com/infolock/server/internal/repo"
)

func main() {
	username := flag.String("username", "", "admin username (required)")
	email := flag.String("email", "", "admin email address; OTP codes are sent here (required)")
	role := flag.String("role", string(model.RoleAdmin), "SUPER_ADMIN, ADMIN or MODERATOR")
	password := flag.String("password", "", "initial password (required)")
	flag.Parse()

	if err := run(*username, *email, *role, *password); err != nil {
		fmt.Fprintf(os.Stderr, "admin-setup: %v\n", err)
		os.Exit(1)
	}
}

func run(username, email, roleName, password string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		flag.Usage()
		return errors.New("-username, -email and -password are required")
	}
	role, err := model.ParseAdminRole(roleName)
	if err != nil {
		return err
	}

	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	log, err := logging.New(cfg.DevMode)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPool, log)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		return err
	}

	creds, err := auth.NewCredentialStore(
		repo.NewPrincipalRepo(database),
		auth.NewPepper(cfg.PasswordPepper),
		auth.NewBcryptHasher(cfg.BcryptCost),
	)
	if err != nil {
		return err
	}

	admin, err := creds.Create(ctx, model.Principal{
		Kind:       model.KindAdmin,
		Identity:   username,
		Email:      email,
		Role:       role,
		IsVerified: true,
	}, password)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateIdentity) {
			return fmt.Errorf("an admin with username %q or that email already exists", username)
		}
		return err
	}

	log.Info("admin created",
		zap.String("id", admin.ID.String()),
		logging.Identity(admin.Identity),
		zap.String("role", string(admin.Role)),
	)
	return nil
}
