package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"telegram-group-access/internal/config"
	"telegram-group-access/internal/domain"
	"telegram-group-access/internal/infra/api"
	pg "telegram-group-access/internal/infra/db/postgres"
	"telegram-group-access/internal/infra/logging"
	"telegram-group-access/internal/usecase"
)

// seed onboards a demo tenant. Run it once to get an activation code, send
// the code in the group, then run it again to create sample plans.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	credential := flag.String("credential", "", "bot credential (token) of the tenant")
	owner := flag.Int64("owner", 0, "telegram user id of the tenant owner")
	name := flag.String("name", "Demo Club", "tenant display name")
	flag.Parse()

	if *credential == "" || *owner == 0 {
		fmt.Fprintln(os.Stderr, "usage: seed -credential <bot token> -owner <telegram user id>")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	tenantRepo := pg.NewTenantRepo(pool)
	tenants := usecase.NewTenantUseCase(tenantRepo, pg.NewPostgresPlanRepo(pool), logger)
	activation := usecase.NewActivationUseCase(pg.NewActivationCodeRepo(pool), tenantRepo, pg.NewTxManager(pool), cfg.Activation.CodeTTL, logger)

	t, err := tenants.Resolve(ctx, *credential)
	if errors.Is(err, domain.ErrTenantNotFound) {
		t, err = tenants.Onboard(ctx, *credential, *owner, *name, "Welcome to "+*name+"!")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("tenant")
	}
	fmt.Printf("tenant: %s (%s, status=%s)\n", t.Name, t.ID, t.ActivationStatus)

	token, err := api.NewAuthManager(cfg.Auth.JWTSecret).Mint("seed", api.RoleAdmin, 24*time.Hour)
	if err != nil {
		logger.Fatal().Err(err).Msg("mint token")
	}
	fmt.Printf("admin token (24h): %s\n", token)

	if len(t.OwnedGroups) == 0 {
		code, err := activation.Issue(ctx, t.ID)
		if err != nil {
			logger.Fatal().Err(err).Msg("issue activation code")
		}
		fmt.Printf("activation code: %s (expires %s)\n", code.Code, code.ExpiresAt.Format(time.RFC3339))
		fmt.Println("Send the code in the group as the owner, then run seed again to create plans.")
		return
	}

	plans, err := tenants.ListPlans(ctx, t.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("list plans")
	}
	if len(plans) > 0 {
		fmt.Printf("%d plans already present. No changes.\n", len(plans))
		return
	}

	group := t.OwnedGroups[0]
	seed := []struct {
		Name  string
		Price string
		Days  int
	}{
		{"Monthly", "29.90", 30},
		{"Quarterly", "79.90", 90},
		{"Lifetime", "199.00", 0},
	}
	for _, s := range seed {
		p, err := tenants.CreatePlan(ctx, t.ID, s.Name, decimal.RequireFromString(s.Price), s.Days, group)
		if err != nil {
			logger.Fatal().Err(err).Str("plan", s.Name).Msg("create plan")
		}
		fmt.Printf("seeded: %s (id=%s, price=R$ %s, group=%d)\n", p.Name, p.ID, p.Price.StringFixed(2), group)
	}
	fmt.Println("✅ Seeding complete.")
}
