// Package main provides a CLI tool for seeding the database with an
// admin account and optional demo data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"tindahan/internal/core/id"
	"tindahan/internal/core/types"
	"tindahan/internal/domain/auth"
	"tindahan/internal/domain/catalog/customer"
	"tindahan/internal/domain/catalog/product"
	"tindahan/internal/domain/pricing"
	"tindahan/internal/infrastructure/config"
	"tindahan/internal/infrastructure/storage/postgres"
	"tindahan/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv("TINDAHAN_CONFIG_PATH"))
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := seedAdminUser(ctx, pool, log); err != nil {
		log.Fatalw("failed to seed admin user", "error", err)
	}

	if os.Getenv("SEED_DEMO_DATA") == "true" {
		if err := seedDemoData(ctx, pool, log); err != nil {
			log.Fatalw("failed to seed demo data", "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

func seedAdminUser(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	adminUsername := os.Getenv("ADMIN_USERNAME")
	if adminUsername == "" {
		adminUsername = "admin"
	}
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "Admin123!"
	}

	var existingID id.ID
	err := pool.QueryRow(ctx,
		`SELECT id FROM users WHERE username = $1`,
		adminUsername,
	).Scan(&existingID)
	if err == nil {
		log.Infow("admin user already exists", "username", adminUsername, "user_id", existingID)
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check admin exists: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u := auth.NewUser(adminUsername, string(passwordHash))
	u.DisplayName = "System Admin"

	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, display_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Username, u.PasswordHash, u.DisplayName, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`,
		u.ID, auth.RoleAdmin)
	if err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}

	log.Infow("admin user created", "username", adminUsername, "user_id", u.ID)
	return nil
}

func seedDemoData(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	txManager := postgres.NewTxManager(pool)
	products := postgres.NewProductRepo(txManager)
	customers := postgres.NewCustomerRepo(txManager)

	eggs := product.New("EGG-TRAY", "Eggs (tray of 30)")
	eggs.PackPrice = types.MustMoney("210.00")
	eggs.RetailPrice = types.MustMoney("8.00")
	eggs.SRP = types.MustMoney("220.00")
	eggs.RetailAllowed = true
	eggs.PackSize = 30
	eggs.StockOnHand = 200

	water := product.New("WTR-5GAL", "Purified water (5 gal)")
	water.PackPrice = types.MustMoney("35.00")
	water.SRP = types.MustMoney("40.00")
	water.PackSize = 1
	water.StockOnHand = 500

	softdrinks := product.New("SD-CASE", "Softdrinks (case of 24)")
	softdrinks.PackPrice = types.MustMoney("480.00")
	softdrinks.RetailPrice = types.MustMoney("22.00")
	softdrinks.SRP = types.MustMoney("500.00")
	softdrinks.RetailAllowed = true
	softdrinks.PackSize = 24
	softdrinks.StockOnHand = 120

	for _, p := range []*product.Product{eggs, water, softdrinks} {
		if err := products.Create(ctx, p); err != nil {
			return fmt.Errorf("create product %s: %w", p.Code, err)
		}
		log.Infow("product created", "code", p.Code, "product_id", p.ID)
	}

	sariSari := customer.New("CUST-0001", "Aling Nena Sari-Sari Store")
	sariSari.Phone = "+639171234567"

	canteen := customer.New("CUST-0002", "San Roque School Canteen")

	for _, c := range []*customer.Customer{sariSari, canteen} {
		if err := customers.Create(ctx, c); err != nil {
			return fmt.Errorf("create customer %s: %w", c.Code, err)
		}
		log.Infow("customer created", "code", c.Code, "customer_id", c.ID)
	}

	// Volume discount: eggs at a fixed tray price for Aling Nena when
	// she takes 10 trays or more.
	rule := &pricing.Rule{
		ID:         id.New(),
		CustomerID: sariSari.ID,
		ProductID:  &eggs.ID,
		UnitKind:   pricing.UnitPack,
		Kind:       pricing.RuleFixedPrice,
		Value:      types.MustMoney("200.00"),
		Condition:  "qty >= 10.0",
		Active:     true,
		CreatedAt:  eggs.CreatedAt,
	}
	if err := customers.CreateRule(ctx, rule); err != nil {
		return fmt.Errorf("create pricing rule: %w", err)
	}
	log.Infow("pricing rule created", "rule_id", rule.ID, "customer_id", sariSari.ID)

	return nil
}
