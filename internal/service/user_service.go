package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/repository"
	"github.com/iliyamo/range-booking/internal/utils"
)

// UserService is the user directory administrators manage.
type UserService struct {
	base
	bcryptCost int
}

func NewUserService(store repository.Store, bcryptCost int, log *zap.Logger, opts ...Option) *UserService {
	return &UserService{base: newBase(store, nil, log, opts), bcryptCost: bcryptCost}
}

// NewUser is the input of Create.
type NewUser struct {
	Email       string
	DisplayName string
	Password    string
	Role        string
}

// Create adds an active account.
func (s *UserService) Create(ctx context.Context, in NewUser) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, withMessage(ErrInvalidInput, "invalid email address")
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return nil, withMessage(ErrInvalidInput, "display name must not be empty")
	}
	role := model.RoleMember
	if in.Role != "" {
		r, ok := model.ParseRole(in.Role)
		if !ok {
			return nil, withMessage(ErrInvalidInput, "unknown role %q", in.Role)
		}
		role = r
	}
	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooShort) {
			return nil, withMessage(ErrInvalidInput, "password must be at least %d characters", utils.MinPasswordLength)
		}
		return nil, storage("hash password", err)
	}
	now := s.now()
	u := &model.User{
		Email:        email,
		DisplayName:  name,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users().Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateEmail
		}
		return nil, storage("create user", err)
	}
	s.log.Info("user created", zap.Uint64("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	list, err := s.store.Users().List(ctx)
	return list, storage("list users", err)
}

func (s *UserService) Get(ctx context.Context, id uint64) (*model.User, error) {
	u, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, notFound("load user", err, ErrNotFound)
	}
	return u, nil
}

// SetActive enables or disables an account.  Disabled accounts cannot log
// in; their existing reservations are left alone.
func (s *UserService) SetActive(ctx context.Context, id uint64, active bool) (*model.User, error) {
	if err := s.store.Users().SetActive(ctx, id, active, s.now()); err != nil {
		return nil, notFound("set user active", err, ErrNotFound)
	}
	return s.Get(ctx, id)
}

// Authenticate checks credentials.  Unknown emails, wrong passwords and
// inactive accounts all yield ErrNotAuthorized.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.store.Users().GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, withMessage(ErrNotAuthorized, "invalid credentials")
		}
		return nil, storage("load user", err)
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, withMessage(ErrNotAuthorized, "invalid credentials")
	}
	return u, nil
}
