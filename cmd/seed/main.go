// Command main runs the database seeder for PatchDB.
package main

import (
	"context"
	"flag"
	"log"

	"patchdb/internal/bootstrap"
	"patchdb/internal/config"
	"patchdb/internal/database"
	"patchdb/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPatches := flag.Int("patches", 120, "Number of patch submissions to create")
	follows := flag.Int("follows", 8, "Follow edges per user")
	collection := flag.Int("collection", 15, "Maximum collection size per user")
	shouldClean := flag.Bool("clean", false, "Clean database before seeding")
	dryRun := flag.Bool("dry-run", false, "Build entities without writing them")
	fast := flag.Bool("fast", false, "Skip bcrypt (accounts cannot log in)")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, _, err := bootstrap.InitRuntime(cfg, bootstrap.Options{SkipRedis: true})
	if err != nil {
		log.Fatalf("Failed to initialise runtime: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	var codes []string
	if universities, err := config.LoadUniversities(cfg.UniversitiesFile); err == nil {
		for _, u := range universities {
			codes = append(codes, u.Code)
		}
	} else {
		log.Printf("No university directory (%v); users get no university", err)
	}

	s := seed.NewSeeder(db, seed.Options{
		NumUsers:       *numUsers,
		NumPatches:     *numPatches,
		FollowsPerUser: *follows,
		CollectionSize: *collection,
		Universities:   codes,
		SkipBcrypt:     *fast,
		DryRun:         *dryRun,
	})

	ctx := context.Background()
	if *shouldClean && !*dryRun {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("❌ Cleanup failed: %v", err)
		}
	}

	if _, err := s.Run(ctx); err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Your database is now populated with demo data.")
	if !*fast {
		log.Printf("📧 All seeded users have the password: %s", seed.DefaultPassword)
	}
	log.Println("ℹ️  Seeded patches are not in the similarity index until re-uploaded.")
}
