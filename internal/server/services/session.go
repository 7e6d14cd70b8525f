// Package services holds the session manager: account registration and the
// login, refresh and logout lifecycle of device-scoped sessions.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/auth"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/config"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/models"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sessionkeeper/internal/server/repositories/sessions"
)

// PasswordHasher is the credential verifier the manager relies on.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(plain, stored string) bool
}

type RegisterRequest struct {
	Email    string
	Password string
	Name     string
	Age      int
	DeviceID string
}

type SessionService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	store        sessions.Store
	codec        *auth.Codec
	hasher       PasswordHasher
	atomicWrites bool
	log          logging.Logger
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, store sessions.Store,
	codec *auth.Codec, hasher PasswordHasher, cfg *config.Config, log logging.Logger) *SessionService {
	return &SessionService{
		db:           db,
		repomanager:  m,
		store:        store,
		codec:        codec,
		hasher:       hasher,
		atomicWrites: cfg.AtomicSessionWrites,
		log:          log.With("module", "sessions"),
	}
}

// Register creates the account and opens a session for req.DeviceID. The
// password is hashed only once the email is known to be free.
func (s *SessionService) Register(ctx context.Context, req RegisterRequest) (*auth.TokenPair, error) {

	user := &models.User{
		Name:  req.Name,
		Email: req.Email,
		Age:   req.Age,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		_, err := repo.FindByEmail(ctx, req.Email)
		if err == nil {
			return common.ErrUserExists
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("error searching user: %w", err)
		}

		user.PasswordHash, err = s.hasher.Hash(req.Password)
		if err != nil {
			return fmt.Errorf("error hashing password: %w", err)
		}

		user, err = repo.Create(ctx, user)
		if err != nil {
			if errors.Is(err, common.ErrUserExists) {
				return err
			}
			return fmt.Errorf("error creating user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "user registered", "user_id", user.ID)

	return s.openSession(ctx, user, req.DeviceID)
}

// Login checks the password and opens a session for deviceID.
func (s *SessionService) Login(ctx context.Context, email, password, deviceID string) (*auth.TokenPair, error) {

	repo := s.repomanager.Users(s.db)
	user, err := repo.FindFirstByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	if !s.hasher.Compare(password, user.PasswordHash) {
		return nil, common.ErrPasswordMismatch
	}

	return s.openSession(ctx, user, deviceID)
}

// Logout removes both session entries of the device. The access token is
// decoded without signature verification; deleting absent entries is not an
// error, so repeated calls succeed.
func (s *SessionService) Logout(ctx context.Context, accessToken, deviceID string) error {

	claims, err := s.codec.Decode(accessToken)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrAccessExpired, err)
	}

	keys := []string{
		sessions.AccessKey(claims.UserID, deviceID),
		sessions.RefreshKey(claims.UserID, deviceID),
	}
	if err := s.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("error deleting session: %w", err)
	}

	s.log.Info(ctx, "session closed", "user_id", claims.UserID, "device_id", deviceID)
	return nil
}

// Refresh mints a new access token for a live session. The refresh token
// is returned unchanged.
func (s *SessionService) Refresh(ctx context.Context, refreshToken, deviceID string) (*auth.TokenPair, error) {

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidRefreshToken, err)
	}

	stored, err := s.store.Get(ctx, sessions.RefreshKey(claims.UserID, deviceID))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("error reading session: %w", err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(refreshToken)) != 1 {
		return nil, common.ErrInvalidRefreshToken
	}

	accessToken, err := s.codec.IssueAccess(claims.Name, claims.UserID, claims.AuthCode)
	if err != nil {
		return nil, fmt.Errorf("error generating access token: %w", err)
	}

	err = s.store.Set(ctx, sessions.AccessKey(claims.UserID, deviceID), accessToken, s.codec.AccessTTL())
	if err != nil {
		return nil, fmt.Errorf("error storing access token: %w", err)
	}

	return &auth.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *SessionService) openSession(ctx context.Context, user *models.User, deviceID string) (*auth.TokenPair, error) {

	pair, err := s.codec.Issue(user.Name, user.ID, common.DefaultAuthCode)
	if err != nil {
		return nil, fmt.Errorf("error generating token pair: %w", err)
	}

	access := sessions.Entry{Key: sessions.AccessKey(user.ID, deviceID), Value: pair.AccessToken, TTL: s.codec.AccessTTL()}
	refresh := sessions.Entry{Key: sessions.RefreshKey(user.ID, deviceID), Value: pair.RefreshToken, TTL: s.codec.RefreshTTL()}

	if s.atomicWrites {
		err = s.store.SetMany(ctx, access, refresh)
	} else {
		err = s.writeSequential(ctx, access, refresh)
	}
	if err != nil {
		return nil, fmt.Errorf("error storing session: %w", err)
	}

	s.log.Info(ctx, "session opened", "user_id", user.ID, "device_id", deviceID)
	return &pair, nil
}

// writeSequential performs independent writes in order. A failure part way
// leaves the earlier entries in place.
func (s *SessionService) writeSequential(ctx context.Context, entries ...sessions.Entry) error {
	for _, e := range entries {
		if err := s.store.Set(ctx, e.Key, e.Value, e.TTL); err != nil {
			return err
		}
	}
	return nil
}
