package seed

import (
	"context"
	"fmt"
	"log"

	"patchdb/internal/database"
	"patchdb/internal/models"

	"gorm.io/gorm"
)

// Options configure the seeder.
type Options struct {
	NumUsers       int
	NumPatches     int
	FollowsPerUser int
	// CollectionSize is the maximum number of patches collected per user.
	CollectionSize int
	// Universities are the codes assigned to users and their patches.
	Universities []string
	MaxDays      int
	SkipBcrypt   bool
	DryRun       bool
	RandomSeed   int64
}

// Result summarises what a seeding run created.
type Result struct {
	Users       []*models.User
	Patches     []*models.Patch
	Pending     []*models.PatchSubmission
	Follows     int
	Collections int
}

// Seeder populates a database with a coherent demo data set.
type Seeder struct {
	db      *gorm.DB
	opts    Options
	factory *Factory
}

// NewSeeder creates a seeder with the given options.
func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	if opts.NumUsers <= 0 {
		opts.NumUsers = 20
	}
	if opts.FollowsPerUser < 0 {
		opts.FollowsPerUser = 0
	}
	return &Seeder{db: db, opts: opts, factory: NewFactory(db, opts)}
}

// Factory exposes the underlying entity factory.
func (s *Seeder) Factory() *Factory {
	return s.factory
}

// ClearAll deletes every row from the schema-managed tables, children first.
func (s *Seeder) ClearAll(ctx context.Context) error {
	log.Println("🗑️  Clearing existing data...")
	all := database.PersistentModels()
	for i := len(all) - 1; i >= 0; i-- {
		if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(all[i]).Error; err != nil {
			return fmt.Errorf("clear %T: %w", all[i], err)
		}
	}
	return nil
}

// Run creates users, patches (one in four left pending moderation), follow
// edges and collections.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	log.Printf("🌱 Seeding %d users and %d patches...", s.opts.NumUsers, s.opts.NumPatches)
	res := &Result{}

	for i := 0; i < s.opts.NumUsers; i++ {
		role := models.RoleUser
		if i%5 == 0 {
			role = models.RolePatchMaker
		}
		user, err := s.factory.CreateUser(ctx, func(u *models.User) { u.Role = role })
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		res.Users = append(res.Users, user)
	}
	log.Printf("✓ %d users created", len(res.Users))

	for i := 0; i < s.opts.NumPatches; i++ {
		owner := res.Users[s.factory.rng.Intn(len(res.Users))]
		sub, err := s.factory.CreateSubmission(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to create submission: %w", err)
		}
		if i%4 == 3 {
			res.Pending = append(res.Pending, sub)
			continue
		}
		patch, err := s.factory.Publish(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("failed to publish submission %s: %w", sub.ID, err)
		}
		res.Patches = append(res.Patches, patch)
	}
	log.Printf("✓ %d patches published, %d awaiting moderation", len(res.Patches), len(res.Pending))

	for _, user := range res.Users {
		for _, idx := range s.factory.rng.Perm(len(res.Users)) {
			if user.FollowingCount >= s.opts.FollowsPerUser {
				break
			}
			created, err := s.factory.Follow(ctx, user, res.Users[idx])
			if err != nil {
				return nil, fmt.Errorf("failed to follow: %w", err)
			}
			if created {
				res.Follows++
				user.FollowingCount++
			}
		}
	}
	log.Printf("✓ %d follow edges created", res.Follows)

	if len(res.Patches) > 0 && s.opts.CollectionSize > 0 {
		for _, user := range res.Users {
			n := s.factory.rng.Intn(s.opts.CollectionSize + 1)
			for _, idx := range s.factory.rng.Perm(len(res.Patches))[:min(n, len(res.Patches))] {
				favorite := s.factory.rng.Intn(5) == 0
				if _, err := s.factory.Collect(ctx, user, res.Patches[idx], favorite); err != nil {
					return nil, fmt.Errorf("failed to collect patch %d: %w", res.Patches[idx].PatchNumber, err)
				}
				res.Collections++
			}
		}
	}
	log.Printf("✓ %d collection entries created", res.Collections)

	log.Println("🎉 Database seeding completed successfully!")
	return res, nil
}
