// Package admin implements the one-shot bootstrap of the default
// administrator identity.
package admin

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/klntsky/compression-bench/internal/config"
	"github.com/klntsky/compression-bench/internal/models"
)

// Repository is the subset of store.Repository the seeder depends on.
type Repository interface {
	FindUserByLoginOrEmail(ctx context.Context, login, email string) (*models.User, bool, error)
	InsertUser(ctx context.Context, u models.User) error
}

// Seed ensures the default administrator identity exists. If a user
// already has the configured login or email, it logs and returns without
// error — the seeder is idempotent and safe to run on every startup.
// saltRounds is the bcrypt cost factor (config.Config.SaltRounds).
func Seed(ctx context.Context, repo Repository, cfg config.AdminConfig, saltRounds int) error {
	existing, found, err := repo.FindUserByLoginOrEmail(ctx, cfg.Login, cfg.Email)
	if err != nil {
		return fmt.Errorf("admin: look up default administrator: %w", err)
	}
	if found {
		slog.Info("default administrator already exists, skipping seed", "login", existing.Login)
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), saltRounds)
	if err != nil {
		return fmt.Errorf("admin: hash default administrator password: %w", err)
	}

	if err := repo.InsertUser(ctx, models.User{
		Login:        cfg.Login,
		Email:        cfg.Email,
		PasswordHash: string(hash),
		IsAdmin:      true,
	}); err != nil {
		return fmt.Errorf("admin: insert default administrator: %w", err)
	}

	slog.Info("seeded default administrator", "login", cfg.Login)
	return nil
}
