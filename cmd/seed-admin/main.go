// seed-admin creates the first super admin so the API can be used at all.
// Every other user is created through POST /users afterwards.
//
// Usage (from the repository root):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/seed-admin -username root -password '...' -name 'Root'
//
// SEED_ADMIN_USERNAME, SEED_ADMIN_PASSWORD and SEED_ADMIN_NAME are used when
// the flags are empty. An existing user with the same username is left alone.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/invoice_backend/config"
	"bitbucket.org/mmdatafocus/invoice_backend/models"
	"bitbucket.org/mmdatafocus/invoice_backend/store"
	"bitbucket.org/mmdatafocus/invoice_backend/utils"
	"bitbucket.org/mmdatafocus/invoice_backend/workflow"
)

func envOr(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func main() {
	username := flag.String("username", "", "admin username (SEED_ADMIN_USERNAME)")
	password := flag.String("password", "", "admin password, at least 8 characters (SEED_ADMIN_PASSWORD)")
	name := flag.String("name", "", "display name (SEED_ADMIN_NAME)")
	migrate := flag.Bool("migrate", true, "run AutoMigrate before seeding")
	flag.Parse()

	input := models.NewUser{
		Username: envOr(*username, "SEED_ADMIN_USERNAME"),
		Password: envOr(*password, "SEED_ADMIN_PASSWORD"),
		Name:     envOr(*name, "SEED_ADMIN_NAME"),
		Role:     models.UserRoleSuperAdmin,
	}
	if input.Name == "" {
		input.Name = input.Username
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := config.ConnectDatabaseWithRetry(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "database unavailable (check DB_* env vars): %v\n", err)
		os.Exit(1)
	}
	db := config.GetDB()
	if *migrate {
		if err := models.AutoMigrate(db); err != nil {
			fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
			os.Exit(1)
		}
	}
	st := store.NewGormStore(db)

	if existing, err := st.GetUserByUsername(ctx, input.Username); err == nil {
		fmt.Printf("User %q already exists (id=%d role=%s); nothing to do\n", existing.Username, existing.ID, existing.Role)
		return
	} else if !errors.Is(err, utils.ErrorRecordNotFound) {
		fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
		os.Exit(1)
	}

	u, err := workflow.CreateUser(ctx, st, input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
		os.Exit(1)
	}
	token, err := utils.JwtGenerate(u.ID, string(u.Role))
	if err != nil {
		fmt.Fprintf(os.Stderr, "created user %d but failed to issue a token: %v\n", u.ID, err)
		os.Exit(1)
	}
	fmt.Printf("Created super admin: username=%q id=%d\n", u.Username, u.ID)
	fmt.Printf("Token: %s\n", token)
}
