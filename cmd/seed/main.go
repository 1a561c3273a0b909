// Command seed applies migrations and loads the demo user, brand and
// banners. Running it again leaves existing rows in place.
package main

import (
	"context"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/brandchat/internal/config"
	"github.com/npezzotti/brandchat/internal/database"
	"golang.org/x/crypto/bcrypt"
)

const (
	demoUserId       = "user-demo-456"
	demoUserEmail    = "demo-user@example.com"
	demoUserPassword = "password123"
	demoBrandId      = "brand-demo-123"
)

var demoBanners = []database.Banner{
	{Title: "Welcome to Demo Brand", ImageUrl: "/banners/welcome.png", LinkUrl: "/brands/demo-brand", Position: 0, Active: true},
	{Title: "Ask us anything", ImageUrl: "/banners/chat.png", Position: 1, Active: true},
}

func main() {
	logger := log.New(os.Stderr, "[brandchat-seed] ", log.LstdFlags)

	cfg, err := config.Load(os.Args[0], os.Args[1:])
	if err != nil {
		logger.Fatal("config:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPgBrandChatRepository(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal("migrate:", err)
	}

	if err := seed(ctx, db, logger); err != nil {
		logger.Fatal("seed:", err)
	}
	logger.Println("seed complete")
}

func seed(ctx context.Context, db *database.PgBrandChatRepository, logger *log.Logger) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(demoUserPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	user, err := db.UpsertUser(ctx, database.CreateUserParams{
		Id:           demoUserId,
		EmailAddress: demoUserEmail,
		Name:         "Demo User",
		PasswordHash: string(hash),
	})
	if err != nil {
		return err
	}
	logger.Printf("user %s <%s>", user.Id, user.EmailAddress)

	brand, err := db.UpsertBrand(ctx, database.CreateBrandParams{
		Id:          demoBrandId,
		Slug:        "demo-brand",
		Name:        "Demo Brand",
		Logo:        "/logos/demo-brand.png",
		Description: "A brand to try conversations with.",
		Verified:    true,
	})
	if err != nil {
		return err
	}
	logger.Printf("brand %s (%s)", brand.Id, brand.Slug)

	// the demo user also answers for the demo brand
	if err := db.AddBrandMember(ctx, brand.Id, user.Id); err != nil {
		return err
	}

	for _, b := range demoBanners {
		if err := db.UpsertBanner(ctx, b); err != nil {
			return err
		}
	}
	logger.Printf("%d banners", len(demoBanners))

	return nil
}
