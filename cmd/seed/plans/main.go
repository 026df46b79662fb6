package main

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayukmesoh/storekeeper/internal/config"
	"github.com/ayukmesoh/storekeeper/internal/domain"
	"github.com/ayukmesoh/storekeeper/internal/repository"
)

// Seeds the plan catalog. Safe to re-run: plans that already exist by name
// are left untouched.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		log.Fatalf("Failed to connect to Mongo: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.MongoDB.Database)
	repo := repository.NewMongoPlanRepository(db)

	plans := []domain.Plan{
		{
			Name:        "Free Trial",
			Description: "14-day trial with full access",
			Type:        domain.PlanTrial,
			Price:       0,
			Currency:    domain.DefaultCurrency,
			IsActive:    true,
		},
		{
			Name:        "Standard Monthly",
			Description: "Full access, billed every 30 days",
			Type:        domain.PlanMonthly,
			Price:       5000,
			Currency:    domain.DefaultCurrency,
			IsActive:    true,
		},
		{
			Name:        "Standard Yearly",
			Description: "Full access, billed yearly (2 months free)",
			Type:        domain.PlanYearly,
			Price:       50000,
			Currency:    domain.DefaultCurrency,
			IsActive:    true,
		},
	}

	seeded := 0
	for i := range plans {
		plan := plans[i]
		existing, err := repo.GetByName(ctx, plan.Name)
		if err == nil && existing != nil {
			log.Printf("Plan %q already exists, skipping", plan.Name)
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Fatalf("Failed to check plan %q: %v", plan.Name, err)
		}

		if err := repo.Create(ctx, &plan); err != nil {
			log.Fatalf("Failed to seed plan %q: %v", plan.Name, err)
		}
		log.Printf("Seeded plan %q (%s, %d %s)", plan.Name, plan.Type, plan.Price, plan.Currency)
		seeded++
	}

	log.Printf("Done. %d plan(s) seeded.", seeded)
}
