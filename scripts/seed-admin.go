package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/industrialcatalog/catalog-server/internal/config"
	"github.com/industrialcatalog/catalog-server/internal/database"
	"github.com/industrialcatalog/catalog-server/internal/model"
	"github.com/industrialcatalog/catalog-server/internal/repository"
	"github.com/industrialcatalog/catalog-server/internal/util"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/seed-admin.go <email> <first> <last> [admin|super_admin]\n")
		os.Exit(1)
	}

	email, first, last := os.Args[1], os.Args[2], os.Args[3]
	role := model.AdminRoleAdmin
	if len(os.Args) > 4 {
		role = model.AdminRole(os.Args[4])
	}

	if !util.IsValidEmail(email) {
		fail("invalid email %q", email)
	}
	if !util.IsValidEnum(string(role), []string{string(model.AdminRoleAdmin), string(model.AdminRoleSuperAdmin)}) {
		fail("invalid role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		fail("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		fail("migrate: %v", err)
	}

	admin, err := repository.NewAdminRepository(db.DB).Create(ctx, model.CreateAdminParams{
		Email:         email,
		Role:          role,
		FirstName:     first,
		LastName:      last,
		IsActive:      true,
		EmailVerified: true,
	})
	if err != nil {
		fail("create admin: %v", err)
	}

	fmt.Printf("created admin id=%d email=%s role=%s\n", admin.ID, admin.Email, admin.Role)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
