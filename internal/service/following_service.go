package service

import (
	"context"

	"patchdb/internal/cache"
	"patchdb/internal/middleware"
	"patchdb/internal/models"
	"patchdb/internal/notifications"
	"patchdb/internal/observability"
	"patchdb/internal/repository"
	"patchdb/internal/storage"

	"github.com/google/uuid"
)

// FollowingService provides follow-graph business logic.
type FollowingService struct {
	followingRepo repository.FollowingRepository
	userRepo      repository.UserRepository
	notifier      *notifications.Notifier
	store         storage.Store
}

// NewFollowingService returns a new FollowingService.
func NewFollowingService(
	followingRepo repository.FollowingRepository,
	userRepo repository.UserRepository,
	notifier *notifications.Notifier,
	store storage.Store,
) *FollowingService {
	return &FollowingService{
		followingRepo: followingRepo,
		userRepo:      userRepo,
		notifier:      notifier,
		store:         store,
	}
}

// Follow makes requesterID follow targetID. Following twice is a no-op.
func (s *FollowingService) Follow(ctx context.Context, targetID, requesterID uuid.UUID) error {
	if targetID == requesterID {
		return models.NewBadRequestError(models.ErrIDSelfFollow, "You cannot follow yourself")
	}
	if err := s.requireUser(ctx, targetID); err != nil {
		return err
	}

	created, err := s.followingRepo.Follow(ctx, requesterID, targetID)
	if err != nil {
		return err
	}
	if !created {
		observability.FollowEvents.WithLabelValues("follow", "noop").Inc()
		return nil
	}
	observability.FollowEvents.WithLabelValues("follow", "changed").Inc()
	cache.InvalidateUser(ctx, requesterID, targetID)

	if err := s.notifier.PublishUser(ctx, targetID, notifications.EventNewFollower, map[string]any{
		"followerId": requesterID,
	}); err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to publish follower notification", "error", err)
	}
	return nil
}

// Unfollow removes the edge if it exists.
func (s *FollowingService) Unfollow(ctx context.Context, targetID, requesterID uuid.UUID) error {
	if targetID == requesterID {
		return models.NewBadRequestError(models.ErrIDSelfFollow, "You cannot unfollow yourself")
	}
	if err := s.requireUser(ctx, targetID); err != nil {
		return err
	}

	removed, err := s.followingRepo.Unfollow(ctx, requesterID, targetID)
	if err != nil {
		return err
	}
	if !removed {
		observability.FollowEvents.WithLabelValues("unfollow", "noop").Inc()
		return nil
	}
	observability.FollowEvents.WithLabelValues("unfollow", "changed").Inc()
	cache.InvalidateUser(ctx, requesterID, targetID)
	return nil
}

// GetFollowers lists who follows userID, each marked with whether requesterID follows them.
func (s *FollowingService) GetFollowers(ctx context.Context, userID, requesterID uuid.UUID, skip, take int) ([]models.User, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	skip, take = clampPage(skip, take)
	users, err := s.followingRepo.ListFollowers(ctx, userID, skip, take)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, users, requesterID, false)
}

// GetFollowing lists who userID follows, each marked with whether requesterID follows them.
func (s *FollowingService) GetFollowing(ctx context.Context, userID, requesterID uuid.UUID, skip, take int) ([]models.User, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	skip, take = clampPage(skip, take)
	users, err := s.followingRepo.ListFollowing(ctx, userID, skip, take)
	if err != nil {
		return nil, err
	}
	return s.annotate(ctx, users, requesterID, userID == requesterID)
}

func (s *FollowingService) annotate(ctx context.Context, users []models.User, requesterID uuid.UUID, allFollowed bool) ([]models.User, error) {
	out := make([]models.User, len(users))
	for i := range users {
		out[i] = users[i].Public()
		if out[i].ProfilePictureKey != nil {
			out[i].ProfilePictureURL = presignedURL(ctx, s.store, *out[i].ProfilePictureKey)
		}
	}
	if requesterID == uuid.Nil || len(out) == 0 {
		return out, nil
	}
	if allFollowed {
		for i := range out {
			out[i].IsFollowing = true
		}
		return out, nil
	}

	ids := make([]uuid.UUID, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	followed, err := s.followingRepo.FollowedAmong(ctx, requesterID, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].IsFollowing = followed[out[i].ID]
	}
	return out, nil
}

func (s *FollowingService) requireUser(ctx context.Context, id uuid.UUID) error {
	exists, err := s.userRepo.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return models.NewNotFoundError("User", id)
	}
	return nil
}
