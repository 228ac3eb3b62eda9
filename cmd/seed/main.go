package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"careera-payments/internal/config"
	"careera-payments/internal/domain"
	"careera-payments/internal/domain/model"
	"careera-payments/internal/infra/api"
	pg "careera-payments/internal/infra/db/postgres"
)

// seed prepares a local database: the fallback plan, the Premium role and a
// demo user, then prints a bearer token for that user.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	email := flag.String("email", "demo@careera.local", "demo user email")
	admin := flag.Bool("admin", false, "mint an admin token for the demo user")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	plans := pg.NewPlanRepo(pool)
	roles := pg.NewRoleRepo(pool)
	users := pg.NewUserRepo(pool)

	existing, err := plans.ListAll(ctx, nil)
	if err != nil {
		log.Fatalf("list plans: %v", err)
	}
	if len(existing) == 0 {
		seed := []struct {
			name   string
			price  string
			months int
		}{
			{model.DefaultPlanName, "0", model.DefaultPlanDurationMonths},
			{"Premium Monthly", "13.99", 1},
			{"Premium Yearly", "139.99", 12},
		}
		for _, s := range seed {
			p, err := model.NewSubscriptionPlan(s.name, decimal.RequireFromString(s.price), model.CurrencyUSD, s.months)
			if err != nil {
				log.Fatalf("plan %s: %v", s.name, err)
			}
			if err := plans.Save(ctx, nil, p); err != nil {
				log.Fatalf("save plan %s: %v", s.name, err)
			}
			fmt.Printf("plan %-16s id=%d months=%d price=%s\n", p.Name, p.ID, p.DurationMonths, model.FormatAmount(p.Price, p.Currency))
		}
	} else {
		fmt.Printf("%d plans already present\n", len(existing))
	}

	role := &model.Role{Name: model.PremiumRoleName}
	if err := roles.Create(ctx, nil, role); err != nil {
		log.Fatalf("role: %v", err)
	}
	fmt.Printf("role %s id=%d\n", role.Name, role.ID)

	u, err := users.FindByEmail(ctx, nil, *email)
	if errors.Is(err, domain.ErrNotFound) {
		u = &model.User{Email: *email, FullName: "Demo User", CreatedAt: time.Now().UTC()}
		err = users.Create(ctx, nil, u)
	}
	if err != nil {
		log.Fatalf("user: %v", err)
	}

	r := ""
	if *admin {
		r = api.RoleAdmin
	}
	token, err := api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Mint(u.ID, r, *ttl)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}
	fmt.Printf("user %s id=%d\n", u.Email, u.ID)
	fmt.Printf("Authorization: Bearer %s\n", token)
}
