package repository

import (
	"context"

	"patchdb/internal/cache"
	"patchdb/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowingRepository manages follow edges and the denormalised counters on users.
type FollowingRepository interface {
	// Follow inserts the edge and bumps both counters. It reports false when the edge already existed.
	Follow(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	// Unfollow removes the edge and decrements both counters. It reports false when there was no edge.
	Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	IsFollowing(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error)
	ListFollowers(ctx context.Context, userID uuid.UUID, skip, take int) ([]models.User, error)
	ListFollowing(ctx context.Context, userID uuid.UUID, skip, take int) ([]models.User, error)
	// FollowedAmong returns the subset of candidates that followerID follows.
	FollowedAmong(ctx context.Context, followerID uuid.UUID, candidates []uuid.UUID) (map[uuid.UUID]bool, error)
}

type followingRepository struct {
	db *gorm.DB
}

// NewFollowingRepository creates a new following repository
func NewFollowingRepository(db *gorm.DB) FollowingRepository {
	return &followingRepository{db: db}
}

func (r *followingRepository) Follow(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		edge := models.Following{FollowerID: followerID, FolloweeID: followeeID}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}
		created = true
		if err := tx.Model(&models.User{}).Where("id = ?", followerID).
			UpdateColumn("following_count", gorm.Expr("following_count + 1")).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", followeeID).
			UpdateColumn("followers_count", gorm.Expr("followers_count + 1")).Error
	})
	if err != nil {
		return false, wrap(err, "User", followeeID)
	}
	if created {
		cache.InvalidateUser(ctx, followerID, followeeID)
	}
	return created, nil
}

func (r *followingRepository) Unfollow(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	removed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND followee_id = ?", followerID, followeeID).Delete(&models.Following{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true
		if err := tx.Model(&models.User{}).Where("id = ? AND following_count > 0", followerID).
			UpdateColumn("following_count", gorm.Expr("following_count - 1")).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ? AND followers_count > 0", followeeID).
			UpdateColumn("followers_count", gorm.Expr("followers_count - 1")).Error
	})
	if err != nil {
		return false, models.NewInternalError(err)
	}
	if removed {
		cache.InvalidateUser(ctx, followerID, followeeID)
	}
	return removed, nil
}

func (r *followingRepository) IsFollowing(ctx context.Context, followerID, followeeID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Following{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&count).Error; err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *followingRepository) ListFollowers(ctx context.Context, userID uuid.UUID, skip, take int) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).
		Joins("JOIN followings ON followings.follower_id = users.id").
		Where("followings.followee_id = ?", userID).
		Order("followings.created_at DESC").
		Offset(skip).Limit(take).
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *followingRepository) ListFollowing(ctx context.Context, userID uuid.UUID, skip, take int) ([]models.User, error) {
	var users []models.User
	if err := r.db.WithContext(ctx).
		Joins("JOIN followings ON followings.followee_id = users.id").
		Where("followings.follower_id = ?", userID).
		Order("followings.created_at DESC").
		Offset(skip).Limit(take).
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *followingRepository) FollowedAmong(ctx context.Context, followerID uuid.UUID, candidates []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(candidates))
	if len(candidates) == 0 {
		return out, nil
	}
	var edges []models.Following
	if err := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id IN ?", followerID, candidates).
		Find(&edges).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	for _, e := range edges {
		out[e.FolloweeID] = true
	}
	return out, nil
}
