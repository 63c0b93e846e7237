package service

import (
	"context"
	"strings"

	"patchdb/internal/models"
	"patchdb/internal/repository"
	"patchdb/internal/storage"
	"patchdb/internal/validation"

	"github.com/google/uuid"
)

// UserService provides profile reads and updates.
type UserService struct {
	userRepo      repository.UserRepository
	followingRepo repository.FollowingRepository
	universities  *UniversityDirectory
	store         storage.Store
}

// UpdateProfileInput holds optional profile changes. Nil fields are left untouched.
type UpdateProfileInput struct {
	Username             *string `json:"username"`
	Bio                  *string `json:"bio"`
	ProfilePictureFileID *string `json:"profilePictureFileId"`
}

// UpdateUniversityInput sets the caller's university affiliation.
type UpdateUniversityInput struct {
	UniversityCode    string `json:"universityCode"`
	UniversityProgram string `json:"universityProgram"`
}

// NewUserService returns a new UserService.
func NewUserService(
	userRepo repository.UserRepository,
	followingRepo repository.FollowingRepository,
	universities *UniversityDirectory,
	store storage.Store,
) *UserService {
	return &UserService{
		userRepo:      userRepo,
		followingRepo: followingRepo,
		universities:  universities,
		store:         store,
	}
}

// GetUser returns the public view of a user, annotated with whether the requester follows them.
func (s *UserService) GetUser(ctx context.Context, id, requesterID uuid.UUID) (*models.User, error) {
	if id == requesterID {
		return s.GetMe(ctx, id)
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	public := user.Public()

	if requesterID != uuid.Nil {
		following, err := s.followingRepo.IsFollowing(ctx, requesterID, id)
		if err != nil {
			return nil, err
		}
		public.IsFollowing = following
	}
	s.decorate(ctx, &public)
	return &public, nil
}

// GetMe returns the caller's own account including private fields.
func (s *UserService) GetMe(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.decorate(ctx, user)
	return user, nil
}

// UpdateProfile applies the non-nil fields of in.
func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, in UpdateProfileInput) (*models.User, error) {
	fields := map[string]any{}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if err := validation.ValidateUsername(username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		existing, err := s.userRepo.GetByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID != userID {
			return nil, models.NewConflictError(models.ErrIDUsernameTaken, "Username is already taken")
		}
		fields["username"] = username
	}

	if in.Bio != nil {
		if err := validation.ValidateBio(*in.Bio, models.MaxBioLength); err != nil {
			return nil, models.NewBadRequestError(models.ErrIDBioTooLong, err.Error()).
				WithPayload(map[string]any{"maxLength": models.MaxBioLength})
		}
		if *in.Bio == "" {
			fields["bio"] = nil
		} else {
			fields["bio"] = *in.Bio
		}
	}

	if in.ProfilePictureFileID != nil {
		key, err := s.resolveUserFile(ctx, userID, *in.ProfilePictureFileID)
		if err != nil {
			return nil, err
		}
		fields["profile_picture_key"] = key
	}

	if len(fields) > 0 {
		if err := s.userRepo.UpdateFields(ctx, userID, fields); err != nil {
			return nil, err
		}
	}
	return s.GetMe(ctx, userID)
}

// UpdateUniversityInfo sets the caller's university code and program.
func (s *UserService) UpdateUniversityInfo(ctx context.Context, userID uuid.UUID, in UpdateUniversityInput) (*models.User, error) {
	code, err := s.universities.Canonical(in.UniversityCode)
	if err != nil {
		return nil, err
	}
	program := strings.TrimSpace(in.UniversityProgram)
	if program != "" && !s.universities.ValidProgram(code, program) {
		return nil, models.NewBadRequestError(models.ErrIDInvalidProgram, "Unknown program "+program)
	}

	fields := map[string]any{"university_code": code, "university_program": nil}
	if program != "" {
		fields["university_program"] = program
	}
	if err := s.userRepo.UpdateFields(ctx, userID, fields); err != nil {
		return nil, err
	}
	return s.GetMe(ctx, userID)
}

// SetRole changes a user's role. Used by the admin CLI.
func (s *UserService) SetRole(ctx context.Context, username string, role models.UserRole) (*models.User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdateFields(ctx, user.ID, map[string]any{"role": int(role)}); err != nil {
		return nil, err
	}
	user.Role = role
	return user, nil
}

// SetState changes a user's account state. Used by the admin CLI.
func (s *UserService) SetState(ctx context.Context, username string, state models.UserState) (*models.User, error) {
	if !state.Valid() {
		return nil, models.NewValidationError("Unknown state " + string(state))
	}
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.UpdateFields(ctx, user.ID, map[string]any{"state": state}); err != nil {
		return nil, err
	}
	user.State = state
	return user, nil
}

// ListStaff returns every user whose role is at least minRole.
func (s *UserService) ListStaff(ctx context.Context, minRole models.UserRole) ([]models.User, error) {
	return s.userRepo.ListByMinRole(ctx, minRole)
}

// GetByUsername returns the user with the given username or a NotFound error.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", username)
	}
	return user, nil
}

func (s *UserService) resolveUserFile(ctx context.Context, userID uuid.UUID, fileID string) (string, error) {
	return resolveUserFile(ctx, s.store, userID, fileID)
}

func (s *UserService) decorate(ctx context.Context, user *models.User) {
	if user.ProfilePictureKey != nil {
		user.ProfilePictureURL = presignedURL(ctx, s.store, *user.ProfilePictureKey)
	}
}

// resolveUserFile validates fileID and checks that {userId}/{fileId} exists in the store.
func resolveUserFile(ctx context.Context, store storage.Store, userID uuid.UUID, fileID string) (string, error) {
	fileID = strings.TrimSpace(fileID)
	if err := validation.ValidateFileID(fileID); err != nil {
		return "", models.NewValidationError(err.Error())
	}
	key := storage.UserFileKey(userID, fileID)
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if !exists {
		return "", models.NewNotFoundError("File", fileID)
	}
	return key, nil
}
