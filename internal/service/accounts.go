package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/repository"
	"github.com/iliyamo/busbooking/internal/utils"
)

// minPasswordLen is the shortest password accepted at registration.
const minPasswordLen = 8

// AccountService manages dashboard accounts.
type AccountService struct {
	users      *repository.UserRepo
	tokens     *repository.TokenRepo
	bcryptCost int
	logger     *zap.Logger
}

// NewAccountService wires the account store.
func NewAccountService(users *repository.UserRepo, tokens *repository.TokenRepo, bcryptCost int, logger *zap.Logger) *AccountService {
	return &AccountService{users: users, tokens: tokens, bcryptCost: bcryptCost, logger: logger}
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Register creates a dashboard account with the user role.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	switch {
	case in.Username == "":
		return model.User{}, invalid("username", "is required")
	case in.Email == "":
		return model.User{}, invalid("email", "is required")
	case len(in.Password) < minPasswordLen:
		return model.User{}, invalid("password", "must have at least 8 characters")
	case in.Password != in.ConfirmPassword:
		return model.User{}, invalid("confirm_password", "does not match")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return model.User{}, invalid("email", "is not a valid address")
	}
	id, err := s.users.Create(ctx, in.Username, in.Email, in.Password, model.RoleUser, s.bcryptCost)
	if errors.Is(err, repository.ErrEmailExists) {
		return model.User{}, invalid("email", "email or username already registered")
	}
	if err != nil {
		return model.User{}, wrapStorage("register", err)
	}
	s.logger.Info("user registered", zap.Uint64("user_id", id))
	return model.User{ID: id, Username: in.Username, Email: in.Email, Role: model.RoleUser}, nil
}

// Authenticate checks an email/password pair.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		utils.BurnPasswordCheck(password)
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, wrapStorage("login", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// GetUser loads one account.
func (s *AccountService) GetUser(ctx context.Context, id uint64) (model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	return u, wrapStorage("get user", err)
}

// ListUsers returns every account.
func (s *AccountService) ListUsers(ctx context.Context, sess model.Session) ([]model.User, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	list, err := s.users.List(ctx)
	return list, wrapStorage("list users", err)
}

// DeleteUser removes an account. Admins cannot delete themselves.
func (s *AccountService) DeleteUser(ctx context.Context, sess model.Session, id uint64) error {
	if err := requireAdmin(sess); err != nil {
		return err
	}
	if id == sess.UserID {
		return ErrSelfAction
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return wrapStorage("delete user", err)
	}
	s.logger.Info("user deleted", zap.Uint64("user_id", id), zap.Uint64("actor_id", sess.UserID))
	return nil
}

// ChangeRole sets the role of an account and revokes its refresh tokens so
// the new role applies at the next login. Admins cannot demote themselves.
func (s *AccountService) ChangeRole(ctx context.Context, sess model.Session, id uint64, role string) error {
	if err := requireAdmin(sess); err != nil {
		return err
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if !model.ValidRole(role) {
		return invalid("role", "unknown role")
	}
	if id == sess.UserID && role != model.RoleAdmin {
		return ErrSelfAction
	}
	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		return wrapStorage("change role", err)
	}
	if _, err := s.tokens.RevokeUser(ctx, id); err != nil {
		s.logger.Warn("revoke tokens after role change failed", zap.Uint64("user_id", id), zap.Error(err))
	}
	s.logger.Info("user role changed", zap.Uint64("user_id", id), zap.String("role", role), zap.Uint64("actor_id", sess.UserID))
	return nil
}

// SeedAdmins promotes each configured email to admin, creating missing
// accounts with password when one is configured.
func (s *AccountService) SeedAdmins(ctx context.Context, emails []string, password string) error {
	for _, email := range emails {
		created, err := s.users.EnsureAdmin(ctx, email, password, s.bcryptCost)
		if err != nil {
			return wrapStorage("seed admin", err)
		}
		s.logger.Info("admin seeded", zap.String("email", email), zap.Bool("created", created))
	}
	return nil
}

// PurgeTokens deletes refresh tokens that stopped being usable more than
// grace ago.
func (s *AccountService) PurgeTokens(ctx context.Context, grace time.Duration) (int64, error) {
	n, err := s.tokens.Purge(ctx, time.Now().Add(-grace))
	if err != nil {
		return 0, wrapStorage("purge tokens", err)
	}
	if n > 0 {
		s.logger.Info("refresh tokens purged", zap.Int64("count", n))
	}
	return n, nil
}
