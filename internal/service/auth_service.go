package service

import (
	"context"
	"strings"
	"time"

	"patchdb/internal/cache"
	"patchdb/internal/middleware"
	"patchdb/internal/models"
	"patchdb/internal/repository"
	"patchdb/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

// RegisterInput carries the fields of a sign-up request.
type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// AuthService provides registration, login and logout.
type AuthService struct {
	userRepo repository.UserRepository
	tokens   *TokenIssuer
}

// NewAuthService returns a new AuthService.
func NewAuthService(userRepo repository.UserRepository, tokens *TokenIssuer) *AuthService {
	return &AuthService{userRepo: userRepo, tokens: tokens}
}

// Register creates a password account and signs the caller in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	var email *string
	if e := strings.TrimSpace(in.Email); e != "" {
		if err := validation.ValidateEmail(e); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		email = &e
	}

	existing, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError(models.ErrIDUsernameTaken, "Username is already taken")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	hash := string(hashed)

	user := &models.User{
		Username:     username,
		PasswordHash: &hash,
		Email:        email,
		Role:         models.RoleUser,
		State:        models.UserStateActive,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return s.signIn(user)
}

// Login checks the password and issues a token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.userRepo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", username)
	}

	if user.PasswordHash == nil ||
		bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)) != nil {
		return nil, models.NewBadRequestError(models.ErrIDWrongPassword, "Wrong password")
	}
	if user.State != models.UserStateActive {
		return nil, models.NewUnauthorizedError("Account is " + string(user.State))
	}

	return s.signIn(user)
}

// Logout revokes the caller's token. Without Redis there is no revocation list
// and the token stays valid until it expires.
func (s *AuthService) Logout(ctx context.Context, identity *middleware.Identity) error {
	if cache.GetClient() == nil {
		middleware.Logger.WarnContext(ctx, "Logout without revocation store; token remains valid until expiry")
		return nil
	}
	if err := s.tokens.Revoke(ctx, identity); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *AuthService) signIn(user *models.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.Issue(user, MethodPassword)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}
