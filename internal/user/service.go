package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// MinUsernameLength applies to both account creation paths.
const MinUsernameLength = 3

// Store is the external user record store. Create must reject duplicate
// uid/username/phone/email atomically with a *repo.DuplicateError.
type Store interface {
	Create(ctx context.Context, u *entity.User) error
	GetByUID(ctx context.Context, uid string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	GetByPhone(ctx context.Context, phone string) (*entity.User, error)
	List(ctx context.Context, limit, offset int) ([]*entity.User, error)
	SetBanned(ctx context.Context, uid string, banned bool) error
	// Delete removes the account. A deleted uid is never accepted by Create again.
	Delete(ctx context.Context, uid string) error
}

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUsernameRequired  = errors.New("username required")
	ErrUsernameTooShort  = errors.New("username too short")
	ErrUsernameTaken     = errors.New("username taken")
	ErrPhoneTaken        = errors.New("phone already registered")
	ErrEmailTaken        = errors.New("email taken")
	ErrSecondFactorRules = errors.New("second factor secret must be set for admins only")
	ErrDeleteSelf        = errors.New("cannot delete your own account")
)

// UserService resolves external identifiers to accounts and creates accounts.
type UserService struct {
	store Store
	clock clockwork.Clock
	newID func() string
}

func NewUserService(store Store, clock clockwork.Clock) *UserService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &UserService{store: store, clock: clock, newID: utilities.NewUID}
}

func notFound(err error) error {
	if errors.Is(err, userrepo.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// conflict translates a store duplicate rejection into the service sentinel.
func conflict(err error) error {
	var dup *userrepo.DuplicateError
	if !errors.As(err, &dup) {
		return err
	}
	switch dup.Field {
	case "username":
		return ErrUsernameTaken
	case "phone":
		return ErrPhoneTaken
	case "email":
		return ErrEmailTaken
	default:
		return fmt.Errorf("create user: %w", err)
	}
}

// ResolveByUsername returns the user or ErrUserNotFound.
func (s *UserService) ResolveByUsername(ctx context.Context, username string) (*entity.User, error) {
	u, err := s.store.GetByUsername(ctx, username)
	return u, notFound(err)
}

// ResolveByPhone returns the user or ErrUserNotFound.
func (s *UserService) ResolveByPhone(ctx context.Context, phone string) (*entity.User, error) {
	u, err := s.store.GetByPhone(ctx, phone)
	return u, notFound(err)
}

// ResolveByUID returns the user or ErrUserNotFound.
func (s *UserService) ResolveByUID(ctx context.Context, uid string) (*entity.User, error) {
	u, err := s.store.GetByUID(ctx, uid)
	return u, notFound(err)
}

// UsernameAvailable reports whether no account uses username.
func (s *UserService) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	_, err := s.store.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, userrepo.ErrNotFound):
		return true, nil
	default:
		return false, err
	}
}

func checkUsername(username string) error {
	if username == "" {
		return ErrUsernameRequired
	}
	if len(username) < MinUsernameLength {
		return ErrUsernameTooShort
	}
	return nil
}

// ResolveOrCreateByPhone returns the account owning phone, ignoring
// requestedUsername, or creates a phone-only account named requestedUsername.
// created reports whether a new account was made.
func (s *UserService) ResolveOrCreateByPhone(ctx context.Context, phone, requestedUsername string) (u *entity.User, created bool, err error) {
	u, err = s.store.GetByPhone(ctx, phone)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, userrepo.ErrNotFound) {
		return nil, false, err
	}
	if err := checkUsername(requestedUsername); err != nil {
		return nil, false, err
	}
	if _, err := s.store.GetByUsername(ctx, requestedUsername); err == nil {
		return nil, false, ErrUsernameTaken
	} else if !errors.Is(err, userrepo.ErrNotFound) {
		return nil, false, err
	}

	u = &entity.User{
		UID:       s.newID(),
		Username:  requestedUsername,
		Phone:     &phone,
		Role:      entity.RoleUser,
		CreatedAt: s.clock.Now().UTC(),
	}
	// the store is the final arbiter when two requests race past the lookups
	if err := s.store.Create(ctx, u); err != nil {
		return nil, false, conflict(err)
	}
	return u, true, nil
}

// CreateWithPassword creates a password-path account. secondFactorSecret must
// be non-empty exactly when role is admin.
func (s *UserService) CreateWithPassword(ctx context.Context, username, passwordHash string, role entity.Role, secondFactorSecret, email string) (*entity.User, error) {
	if err := checkUsername(username); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, errors.New("password hash required")
	}
	switch role {
	case entity.RoleAdmin:
		if secondFactorSecret == "" {
			return nil, ErrSecondFactorRules
		}
	case entity.RoleUser:
		if secondFactorSecret != "" {
			return nil, ErrSecondFactorRules
		}
	default:
		return nil, fmt.Errorf("create user: invalid role %d", role)
	}

	u := &entity.User{
		UID:                s.newID(),
		Username:           username,
		Email:              entity.StrPtr(email),
		PasswordHash:       &passwordHash,
		Role:               role,
		SecondFactorSecret: entity.StrPtr(secondFactorSecret),
		CreatedAt:          s.clock.Now().UTC(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, conflict(err)
	}
	return u, nil
}

// List returns a page of accounts.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	return s.store.List(ctx, limit, offset)
}

// SetBanned bans or unbans an account. Already-issued sessions are unaffected.
func (s *UserService) SetBanned(ctx context.Context, uid string, banned bool) error {
	return notFound(s.store.SetBanned(ctx, uid, banned))
}

// Delete removes the account uid on behalf of actorUID and returns the removed
// record. Accounts cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actorUID, uid string) (*entity.User, error) {
	if uid == actorUID {
		return nil, ErrDeleteSelf
	}
	u, err := s.store.GetByUID(ctx, uid)
	if err != nil {
		return nil, notFound(err)
	}
	if err := s.store.Delete(ctx, uid); err != nil {
		return nil, notFound(err)
	}
	return u, nil
}
