package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-sdeal/internal/admin"
	"github.com/noah-isme/backend-sdeal/internal/obs"
	"github.com/noah-isme/backend-sdeal/internal/pricing"
)

type seedProduct struct {
	Slug      string
	Title     string
	Summary   string
	LeadPrice string
	Features  []string
	HeroImage string
}

var products = []seedProduct{
	{
		Slug:      "garden-room",
		Title:     "Garden Room",
		Summary:   "A standalone, insulated workspace or leisure room with fast installation.",
		LeadPrice: "from €12,000",
		Features:  []string{"Insulated panels", "Choice of cladding", "uPVC/Alu doors"},
		HeroImage: "products/garden-room.jpg",
	},
	{
		Slug:      "house-extension",
		Title:     "House Extension",
		Summary:   "Single- or double-storey extensions designed for energy efficiency.",
		LeadPrice: "from €25,000",
		Features:  []string{"Building regs compliant", "Structural design", "Rapid build"},
		HeroImage: "products/house-extension.jpg",
	},
	{
		Slug:      "house-build",
		Title:     "House Build",
		Summary:   "Full new-build projects with turnkey management from planning to handover.",
		LeadPrice: "custom",
		Features:  []string{"Planning support", "Project management", "Warranty included"},
		HeroImage: "products/house-build.jpg",
	},
}

func main() {
	hashToken := flag.String("hash-token", "", "print an argon2id hash of the given admin token and exit")
	overwriteRules := flag.Bool("overwrite-rules", false, "reset stored pricing rules to the built-in defaults")
	flag.Parse()

	logger := obs.NewLogger("console", "info")

	if *hashToken != "" {
		hash, err := admin.HashToken(*hashToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("hash token")
		}
		fmt.Println(hash)
		return
	}

	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, relying on environment variables")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	conn, err := sql.Open("postgres", dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	if err := seedProducts(ctx, conn, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed products")
	}
	if err := seedRules(ctx, conn, *overwriteRules, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed pricing rules")
	}
	logger.Info().Msg("seeding completed")
}

func seedProducts(ctx context.Context, conn *sql.DB, logger zerolog.Logger) error {
	for i, p := range products {
		var id string
		var inserted bool
		err := conn.QueryRowContext(ctx, `
			INSERT INTO products (slug, title, summary, lead_price, features, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (slug) DO UPDATE
			SET title = EXCLUDED.title, summary = EXCLUDED.summary, lead_price = EXCLUDED.lead_price,
			    features = EXCLUDED.features, sort_order = EXCLUDED.sort_order, updated_at = now()
			RETURNING id, (xmax = 0)`,
			p.Slug, p.Title, p.Summary, p.LeadPrice, pq.Array(p.Features), i,
		).Scan(&id, &inserted)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", p.Slug, err)
		}
		if inserted && p.HeroImage != "" {
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO product_images (product_id, path, alt, sort_order) VALUES ($1, $2, $3, 0)`,
				id, p.HeroImage, p.Title,
			); err != nil {
				return fmt.Errorf("hero image %s: %w", p.Slug, err)
			}
		}
		logger.Info().Str("slug", p.Slug).Bool("created", inserted).Msg("product seeded")
	}
	return nil
}

// seedRules stores the default price list. Existing values are kept unless
// overwrite is set, so admin edits survive a re-seed.
func seedRules(ctx context.Context, conn *sql.DB, overwrite bool, logger zerolog.Logger) error {
	query := `INSERT INTO pricing_rules (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`
	if overwrite {
		query = `INSERT INTO pricing_rules (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	written := 0
	for _, rule := range pricing.Rules(pricing.DefaultPriceList()) {
		res, err := stmt.ExecContext(ctx, rule.Key, rule.Value.String())
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule.Key, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written++
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Info().Int("written", written).Bool("overwrite", overwrite).Msg("pricing rules seeded")
	return nil
}
