package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/range-booking/internal/model"
	"github.com/iliyamo/range-booking/internal/repository"
	"github.com/iliyamo/range-booking/internal/utils"
)

// Session is what a successful login or refresh hands the client.
type Session struct {
	User    *model.User        `json:"user"`
	Access  utils.AccessToken  `json:"access"`
	Refresh utils.RefreshToken `json:"refresh"`
}

// SessionService issues access tokens and rotates refresh tokens.
type SessionService struct {
	base
	users      *UserService
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewSessionService(store repository.Store, users *UserService, secret string, accessTTL, refreshTTL time.Duration, log *zap.Logger, opts ...Option) *SessionService {
	return &SessionService{
		base:       newBase(store, nil, log, opts),
		users:      users,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

var errInvalidRefresh = withMessage(ErrNotAuthorized, "invalid refresh token")

// Login authenticates and opens a session.
func (s *SessionService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, s.store.Tokens(), u)
}

// Refresh exchanges a live refresh token for a new session.  The presented
// token is revoked, so each refresh token works once.
func (s *SessionService) Refresh(ctx context.Context, raw string) (*Session, error) {
	hash := utils.HashRefreshRaw(strings.TrimSpace(raw))
	now := s.now()
	var sess *Session
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		userID, err := tx.Tokens().Validate(ctx, hash, now)
		if err != nil {
			return notFound("validate refresh token", err, errInvalidRefresh)
		}
		if err := tx.Tokens().RevokeByHash(ctx, hash, now); err != nil {
			return notFound("revoke refresh token", err, errInvalidRefresh)
		}
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return notFound("load user", err, errInvalidRefresh)
		}
		if !u.IsActive {
			return errInvalidRefresh
		}
		sess, err = s.issue(ctx, tx.Tokens(), u)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Logout revokes one refresh token.
func (s *SessionService) Logout(ctx context.Context, raw string) error {
	err := s.store.Tokens().RevokeByHash(ctx, utils.HashRefreshRaw(strings.TrimSpace(raw)), s.now())
	if err != nil {
		return notFound("revoke refresh token", err, errInvalidRefresh)
	}
	return nil
}

// LogoutAll revokes every refresh token of a user.  Access tokens already
// issued stay valid until they expire.
func (s *SessionService) LogoutAll(ctx context.Context, userID uint64) error {
	return storage("revoke refresh tokens", s.store.Tokens().RevokeAllForUser(ctx, userID, s.now()))
}

func (s *SessionService) issue(ctx context.Context, tokens repository.Tokens, u *model.User) (*Session, error) {
	now := s.now()
	access, err := utils.NewAccessToken(s.secret, u.ID, string(u.Role), s.accessTTL, now)
	if err != nil {
		return nil, storage("sign access token", err)
	}
	refresh, err := utils.NewRefreshToken(s.refreshTTL, now)
	if err != nil {
		return nil, storage("generate refresh token", err)
	}
	if err := tokens.Store(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp, now); err != nil {
		return nil, storage("store refresh token", err)
	}
	return &Session{User: u, Access: access, Refresh: refresh}, nil
}
