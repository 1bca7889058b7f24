package model

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"mediaforge/internal/auth"
	"mediaforge/internal/config"
	"mediaforge/internal/entity"
)

// SeedDefaultAdmin creates the bootstrap admin account on an empty database.
// It is a no-op when any user already exists or when no admin email is
// configured.
func SeedDefaultAdmin(ctx context.Context, repo Repository, cfg config.Config) error {
	if repo == nil {
		return nil
	}

	email := strings.TrimSpace(cfg.AdminEmail)
	password := cfg.AdminPassword
	if email == "" || password == "" {
		return nil
	}

	count, err := repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	admin := &entity.DbUser{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Administrator",
		Role:         entity.RoleAdmin,
		IsActive:     true,
	}
	if err := repo.CreateUser(ctx, admin); err != nil {
		return err
	}

	logrus.WithField("email", email).Info("seeded default admin account")
	return nil
}
