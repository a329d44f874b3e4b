package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"studydash/internal/credentials"
	"studydash/internal/database"
	"studydash/internal/models"
	"studydash/internal/repository"
	"studydash/internal/security"
	"studydash/internal/validation"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("forbidden")
	ErrLastAdmin          = errors.New("cannot remove the last admin")
	ErrSelfDelete         = errors.New("cannot delete your own account")
)

// LoginInput is the login request body
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResult carries the issued bearer token
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// CreateUserInput is the admin request to add an account. An empty password
// generates a temporary one.
type CreateUserInput struct {
	Username string      `json:"username" validate:"required,username"`
	Email    string      `json:"email" validate:"omitempty,email"`
	Password string      `json:"password" validate:"omitempty,min=8"`
	Role     models.Role `json:"role" validate:"omitempty,oneof=admin researcher"`
	StudyIDs []int64     `json:"study_ids"`
}

// CreateUserResult is the new account plus any generated password
type CreateUserResult struct {
	User              *models.User `json:"user"`
	TemporaryPassword string       `json:"temporary_password,omitempty"`
}

// UpdateUserInput is a partial admin update; nil fields are unchanged
type UpdateUserInput struct {
	Email    *string      `json:"email" validate:"omitempty,email"`
	Role     *models.Role `json:"role" validate:"omitempty,oneof=admin researcher"`
	Password *string      `json:"password" validate:"omitempty,min=8"`
}

// ChangePasswordInput is a user's own password change
type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,nefield=CurrentPassword"`
}

// AuthService handles authentication and admin user management
type AuthService struct {
	db       *database.DB
	users    *repository.UserRepository
	studies  *repository.StudyRepository
	tokens   *security.TokenIssuer
	notifier Notifier
	log      *zap.Logger
}

// NewAuthService creates a new auth service. notifier may be nil.
func NewAuthService(db *database.DB, tokens *security.TokenIssuer, notifier Notifier, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		db:       db,
		users:    repository.NewUserRepository(db),
		studies:  repository.NewStudyRepository(db),
		tokens:   tokens,
		notifier: notifier,
		log:      log,
	}
}

// Login checks credentials and issues a bearer token
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(in.Username))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil || !security.CheckPassword(in.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, expires, err := s.tokens.Issue(user.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expires, User: user}, nil
}

// Authenticate resolves a bearer token to its current user. The user is
// reloaded so deleted accounts and role changes take effect immediately.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, errors.Join(ErrUnauthenticated, err)
	}
	id, err := claims.UserID()
	if err != nil {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// UsernameAvailable reports whether a username is valid and unused
func (s *AuthService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return false, err
	}
	existing, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return existing == nil, nil
}

// ChangePassword updates the caller's own password after checking the current one
func (s *AuthService) ChangePassword(ctx context.Context, user *models.User, in ChangePasswordInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	if !security.CheckPassword(in.CurrentPassword, user.PasswordHash) {
		return validation.Errors{"current_password": "is incorrect"}
	}
	if err := s.setPassword(ctx, user.ID, in.NewPassword); err != nil {
		return err
	}
	s.notify(func() error { return s.notifier.PasswordChanged(ctx, user) })
	return nil
}

// ListUsers returns every account
func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.GetAllUsers(ctx)
}

// CreateUser adds an account and its study memberships
func (s *AuthService) CreateUser(ctx context.Context, in CreateUserInput) (*CreateUserResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = models.RoleResearcher
	}

	existing, err := s.users.GetUserByUsername(ctx, in.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	for _, studyID := range in.StudyIDs {
		if err := s.requireStudy(ctx, studyID); err != nil {
			return nil, err
		}
	}

	result := &CreateUserResult{}
	password := in.Password
	if password == "" {
		password, err = credentials.GenerateTemporaryPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to generate password: %w", err)
		}
		result.TemporaryPassword = password
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var user *models.User
	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		user, err = repository.NewUserRepository(tx).CreateUser(ctx, in.Username, in.Email, hash, in.Role)
		if err != nil {
			return err
		}
		studies := repository.NewStudyRepository(tx)
		for _, studyID := range in.StudyIDs {
			if err := studies.AddMember(ctx, user.ID, studyID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user created", zap.String("username", user.Username), zap.String("role", string(user.Role)))
	s.notify(func() error { return s.notifier.AccountCreated(ctx, user, result.TemporaryPassword) })
	result.User = user
	return result, nil
}

// UpdateUser applies an admin's partial update
func (s *AuthService) UpdateUser(ctx context.Context, id int64, in UpdateUserInput) (*models.User, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}

	email, role := user.Email, user.Role
	if in.Email != nil {
		email = strings.TrimSpace(*in.Email)
	}
	if in.Role != nil {
		role = *in.Role
	}
	if user.Role == models.RoleAdmin && role != models.RoleAdmin {
		if err := s.ensureOtherAdmin(ctx); err != nil {
			return nil, err
		}
	}

	var hash string
	if in.Password != nil {
		if hash, err = security.HashPassword(*in.Password); err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
	}

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		users := repository.NewUserRepository(tx)
		if err := users.UpdateUser(ctx, id, email, role); err != nil {
			return err
		}
		if hash != "" {
			return users.UpdatePassword(ctx, id, hash)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.getUser(ctx, id)
}

// DeleteUser removes an account. Admins cannot delete themselves or the last admin.
func (s *AuthService) DeleteUser(ctx context.Context, actor *models.User, id int64) error {
	if actor != nil && actor.ID == id {
		return ErrSelfDelete
	}
	user, err := s.getUser(ctx, id)
	if err != nil {
		return err
	}
	if user.IsAdmin() {
		if err := s.ensureOtherAdmin(ctx); err != nil {
			return err
		}
	}
	if err := s.users.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	s.log.Info("user deleted", zap.String("username", user.Username))
	return nil
}

// EnsureAdmin creates the bootstrap admin account unless the username exists
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	existing, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return false, fmt.Errorf("failed to check admin user: %w", err)
	}
	if existing != nil {
		return false, nil
	}
	_, err = s.CreateUser(ctx, CreateUserInput{Username: username, Password: password, Role: models.RoleAdmin})
	if err != nil {
		return false, fmt.Errorf("failed to create admin user: %w", err)
	}
	return true, nil
}

func (s *AuthService) getUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *AuthService) setPassword(ctx context.Context, id int64, password string) error {
	hash, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

func (s *AuthService) ensureOtherAdmin(ctx context.Context) error {
	n, err := s.users.CountAdmins(ctx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func (s *AuthService) requireStudy(ctx context.Context, studyID int64) error {
	study, err := s.studies.GetStudy(ctx, studyID)
	if err != nil {
		return err
	}
	if study == nil {
		return fmt.Errorf("%w: %d", ErrStudyNotFound, studyID)
	}
	return nil
}

// notify sends a notification without failing the request
func (s *AuthService) notify(send func() error) {
	if s.notifier == nil {
		return
	}
	if err := send(); err != nil {
		s.log.Warn("notification failed", zap.Error(err))
	}
}
