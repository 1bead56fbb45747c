package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/otp"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/apperr"
)

// Client-facing messages. Unknown user and wrong password share one message.
const (
	msgInvalidCredentials  = "invalid credentials"
	msgAccountBanned       = "account banned"
	msgInvalidSecondFactor = "invalid user or code"
)

// Deps are the collaborators of Service.
type Deps struct {
	Users        *user.UserService
	Challenges   otp.ChallengeStore
	Sender       otp.Sender
	Sessions     *session.Issuer
	Credentials  CredentialVerifier
	SecondFactor SecondFactorVerifier
	Logger       *zap.SugaredLogger
}

// Service runs the sign-in protocols: phone + one-time code, username +
// password, and the admin second factor.
type Service struct {
	users        *user.UserService
	challenges   otp.ChallengeStore
	sender       otp.Sender
	sessions     *session.Issuer
	credentials  CredentialVerifier
	secondFactor SecondFactorVerifier
	logger       *zap.SugaredLogger

	// dummyHash is checked when the username is unknown so both failure paths
	// cost one bcrypt comparison.
	dummyHash string
}

func NewService(d Deps) (*Service, error) {
	if d.Users == nil || d.Challenges == nil || d.Sessions == nil {
		return nil, errors.New("auth: users, challenges and sessions are required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Sender == nil {
		d.Sender = otp.NewLogSender(d.Logger)
	}
	dummy, err := d.Credentials.Hash("dummy-password-for-unknown-users")
	if err != nil {
		return nil, fmt.Errorf("auth: dummy hash: %w", err)
	}
	return &Service{
		users:        d.Users,
		challenges:   d.Challenges,
		sender:       d.Sender,
		sessions:     d.Sessions,
		credentials:  d.Credentials,
		secondFactor: d.SecondFactor,
		logger:       d.Logger,
		dummyHash:    dummy,
	}, nil
}

// Session is the outcome of a completed sign-in.
type Session struct {
	Token   string
	User    *entity.User
	NewUser bool
}

// LoginResult holds either a session or the second-factor signal, never both.
type LoginResult struct {
	Session             *Session
	RequireSecondFactor bool
}

func (s *Service) internal(msg string, err error, kv ...any) error {
	s.logger.Errorw(msg, append(kv, "err", err)...)
	return apperr.Internal(err)
}

func (s *Service) issue(u *entity.User) (string, error) {
	tok, err := s.sessions.Issue(u)
	if err != nil {
		if errors.Is(err, session.ErrAccountBanned) {
			return "", apperr.Forbidden(msgAccountBanned)
		}
		return "", s.internal("issue session failed", err, "uid", u.UID)
	}
	return tok, nil
}

// SendOTP starts a phone sign-in and returns the normalized phone.
func (s *Service) SendOTP(ctx context.Context, rawPhone string) (string, error) {
	phone, err := otp.NormalizePhone(rawPhone)
	if err != nil {
		return "", apperr.Validation("invalid phone number")
	}
	code, err := s.challenges.Request(ctx, phone)
	if err != nil {
		return "", s.internal("otp request failed", err, "phone", phone)
	}
	if err := s.sender.Send(ctx, phone, code); err != nil {
		return "", s.internal("otp delivery failed", err, "phone", phone)
	}
	return phone, nil
}

func otpFailure(err error) error {
	switch {
	case errors.Is(err, otp.ErrNotFound):
		return apperr.Validation("otp not found")
	case errors.Is(err, otp.ErrExpired):
		return apperr.Validation("otp expired")
	case errors.Is(err, otp.ErrTooManyAttempts):
		return apperr.Validation("too many attempts")
	case errors.Is(err, otp.ErrInvalidCode):
		return apperr.Validation("invalid otp")
	}
	return nil
}

// VerifyOTP completes a phone sign-in. A first-time phone needs username.
func (s *Service) VerifyOTP(ctx context.Context, rawPhone, code, username string) (*Session, error) {
	if strings.TrimSpace(rawPhone) == "" || code == "" {
		return nil, apperr.Validation("missing phone or otp")
	}
	phone, err := otp.NormalizePhone(rawPhone)
	if err != nil {
		return nil, apperr.Validation("invalid phone number")
	}

	if err := s.challenges.Verify(ctx, phone, code); err != nil {
		if mapped := otpFailure(err); mapped != nil {
			s.logger.Debugw("otp verification failed", "phone", phone, "reason", err)
			return nil, mapped
		}
		return nil, s.internal("otp verify failed", err, "phone", phone)
	}

	u, created, err := s.users.ResolveOrCreateByPhone(ctx, phone, strings.TrimSpace(username))
	switch {
	case err == nil:
	case errors.Is(err, user.ErrUsernameRequired), errors.Is(err, user.ErrUsernameTooShort):
		return nil, apperr.Validation("username required for new users")
	case errors.Is(err, user.ErrUsernameTaken):
		return nil, apperr.Conflict("username already taken", err)
	case errors.Is(err, user.ErrPhoneTaken):
		return nil, apperr.Conflict("phone already registered", err)
	default:
		return nil, s.internal("resolve phone user failed", err, "phone", phone)
	}
	if created {
		s.logger.Infow("user created", "uid", u.UID, "path", "otp")
	}

	tok, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok, User: u, NewUser: created}, nil
}

// Register creates a password account with role user.
func (s *Service) Register(ctx context.Context, username, password, email string) (*entity.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || password == "" {
		return nil, apperr.Validation("missing fields")
	}
	if len(username) < user.MinUsernameLength {
		return nil, apperr.Validation("username too short")
	}
	if len(password) > MaxPasswordBytes {
		return nil, apperr.Validation("password too long")
	}
	if email != "" && !strings.Contains(email, "@") {
		return nil, apperr.Validation("invalid email")
	}

	hash, err := s.credentials.Hash(password)
	if err != nil {
		return nil, s.internal("hash password failed", err)
	}
	u, err := s.users.CreateWithPassword(ctx, username, hash, entity.RoleUser, "", email)
	switch {
	case err == nil:
	case errors.Is(err, user.ErrUsernameTaken):
		return nil, apperr.Conflict("username taken", err)
	case errors.Is(err, user.ErrEmailTaken):
		return nil, apperr.Conflict("email taken", err)
	default:
		return nil, s.internal("create user failed", err, "username", username)
	}
	s.logger.Infow("user created", "uid", u.UID, "path", "password")
	return u, nil
}

// Login runs the password protocol. Admin accounts always get the
// second-factor signal instead of a session.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	u, err := s.users.ResolveByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			s.credentials.Check(password, s.dummyHash)
			return nil, apperr.Auth(msgInvalidCredentials)
		}
		return nil, s.internal("resolve user failed", err)
	}
	if u.Banned {
		s.logger.Debugw("login refused for banned account", "uid", u.UID)
		return nil, apperr.Forbidden(msgAccountBanned)
	}

	hash := s.dummyHash
	if u.PasswordHash != nil {
		hash = *u.PasswordHash
	}
	if !s.credentials.Check(password, hash) || u.PasswordHash == nil {
		return nil, apperr.Auth(msgInvalidCredentials)
	}

	switch u.Role {
	case entity.RoleAdmin:
		s.logger.Infow("second factor required", "uid", u.UID)
		return &LoginResult{RequireSecondFactor: true}, nil
	case entity.RoleUser:
		tok, err := s.issue(u)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Session: &Session{Token: tok, User: u}}, nil
	default:
		return nil, s.internal("unknown role", fmt.Errorf("role %d", u.Role), "uid", u.UID)
	}
}

// VerifySecondFactor completes an admin sign-in. It re-resolves the account
// and does not depend on a preceding Login call.
func (s *Service) VerifySecondFactor(ctx context.Context, username, code string) (*Session, error) {
	username = strings.TrimSpace(username)
	u, err := s.users.ResolveByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, apperr.Auth(msgInvalidSecondFactor)
		}
		return nil, s.internal("resolve user failed", err)
	}
	if !s.secondFactor.Check(u, code) {
		s.logger.Debugw("second factor rejected", "uid", u.UID)
		return nil, apperr.Auth(msgInvalidSecondFactor)
	}
	tok, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	return &Session{Token: tok, User: u}, nil
}

// UsernameAvailable reports whether username is free for a new account.
func (s *Service) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, apperr.Validation("username required")
	}
	ok, err := s.users.UsernameAvailable(ctx, username)
	if err != nil {
		return false, s.internal("username lookup failed", err)
	}
	return ok, nil
}

// SeedAdmin creates the admin account if the username is free.
func (s *Service) SeedAdmin(ctx context.Context, username, password, secondFactor string) (bool, error) {
	if _, err := s.users.ResolveByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, user.ErrUserNotFound) {
		return false, err
	}
	hash, err := s.credentials.Hash(password)
	if err != nil {
		return false, err
	}
	if _, err := s.users.CreateWithPassword(ctx, username, hash, entity.RoleAdmin, secondFactor, ""); err != nil {
		if errors.Is(err, user.ErrUsernameTaken) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
