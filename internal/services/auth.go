package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/getactive/apiserver/internal/apierr"
	"github.com/getactive/apiserver/internal/store"
	"github.com/getactive/apiserver/internal/token"
	"github.com/getactive/apiserver/types"
	"github.com/sirupsen/logrus"
)

// ConfirmationStatus is the outcome reported to a client confirming its registration.
type ConfirmationStatus string

const (
	ConfirmationSuccess ConfirmationStatus = "SUCCESS"
	// ConfirmationPending is part of the API vocabulary; confirmation
	// currently completes synchronously and never reports it.
	ConfirmationPending ConfirmationStatus = "PENDING"
)

// Auth event names reported to the AuthObserver.
const (
	EventLogin     = "login"
	EventRegister  = "register"
	EventConfirm   = "confirm"
	EventResend    = "resend"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeNotSent = "skipped"
)

const duplicateTemplate = "Email '%s' or username '%s' is already taken"

// UserRepository defines persistence operations for users.
type UserRepository interface {
	AccountRepository
	GetByID(ctx context.Context, id string) (types.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) ([]types.User, error)
	GetByEmailAndUsername(ctx context.Context, email, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateAvatar(ctx context.Context, id, key string, updatedAt time.Time) error
}

// TokenCodec issues and verifies signed tokens.
type TokenCodec interface {
	Issue(subject string, purpose token.Purpose, ttl time.Duration) (string, error)
	DecodeAndVerify(tokenString string) (token.Claims, error)
}

// EmailSender delivers the registration confirmation token to a user.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, email, username, confirmationToken string) error
}

// AuthObserver receives auth outcomes, typically for metrics.
type AuthObserver interface {
	ObserveAuthEvent(event, outcome string)
}

// AuthDeps groups the collaborators of AuthService.
type AuthDeps struct {
	Users    UserRepository
	Codec    TokenCodec
	Accounts *AccountStateMachine
	Hasher   PasswordHasher
	Mail     EmailSender
	Observer AuthObserver
	Logger   logrus.FieldLogger
}

// LoginResult is a session token bound to the identity it was issued for.
type LoginResult struct {
	Token string
	User  types.User
}

// AuthService implements login, registration and confirmation.
type AuthService struct {
	users    UserRepository
	codec    TokenCodec
	accounts *AccountStateMachine
	hasher   PasswordHasher
	mail     EmailSender
	observer AuthObserver
	logger   logrus.FieldLogger

	tokenTTL        time.Duration
	confirmationTTL time.Duration

	// registrationMu serializes the uniqueness check and insert of Register.
	registrationMu sync.Mutex
	// confirmationMu serializes ConfirmRegistration.
	confirmationMu sync.Mutex
}

func NewAuthService(deps AuthDeps, tokenTTL, confirmationTTL time.Duration) *AuthService {
	return &AuthService{
		users:           deps.Users,
		codec:           deps.Codec,
		accounts:        deps.Accounts,
		hasher:          deps.Hasher,
		mail:            deps.Mail,
		observer:        deps.Observer,
		logger:          deps.Logger,
		tokenTTL:        tokenTTL,
		confirmationTTL: confirmationTTL,
	}
}

// VerifyCredentials returns the user owning username if password matches.
func (s *AuthService) VerifyCredentials(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apierr.BadCredentials()
		}
		return types.User{}, apierr.Internal("", "failed to authenticate", err)
	}

	ok, err := s.hasher.Compare(user.PasswordHash, password)
	if err != nil {
		return types.User{}, apierr.Internal("", "failed to authenticate", err)
	}
	if !ok {
		return types.User{}, apierr.BadCredentials()
	}
	return user, nil
}

// Login checks credentials and verification state and issues a session token.
func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	result, err := s.login(ctx, strings.TrimSpace(username), password)
	s.observe(EventLogin, err)
	return result, err
}

func (s *AuthService) login(ctx context.Context, username, password string) (LoginResult, error) {
	if username == "" || password == "" {
		return LoginResult{}, apierr.BadCredentials()
	}

	user, err := s.VerifyCredentials(ctx, username, password)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.accounts.AssertVerified(user); err != nil {
		return LoginResult{}, err
	}

	tok, err := s.codec.Issue(user.Username, token.PurposeNone, s.tokenTTL)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: tok, User: user}, nil
}

// Register creates an UNVERIFIED account and sends it a confirmation token,
// which is also returned.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (string, error) {
	tok, err := s.register(ctx, input)
	s.observe(EventRegister, err)
	return tok, err
}

func (s *AuthService) register(ctx context.Context, input RegisterInput) (string, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.Username = strings.TrimSpace(input.Username)
	if err := input.Validate(); err != nil {
		return "", invalidInput("Invalid registration request", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return "", apierr.Internal("", "failed to create account", err)
	}

	user, err := s.createAccount(ctx, input, hash)
	if err != nil {
		return "", err
	}

	tok, err := s.codec.Issue(user.Username, token.PurposeRegistrationConfirmation, s.confirmationTTL)
	if err != nil {
		return "", err
	}
	if err := s.mail.SendVerificationEmail(ctx, user.Email, user.Username, tok); err != nil {
		return "", apierr.Internal(apierr.CodeEmailSendFailed, "Failed to send verification email", err)
	}
	return tok, nil
}

func (s *AuthService) createAccount(ctx context.Context, input RegisterInput, hash string) (types.User, error) {
	s.registrationMu.Lock()
	defer s.registrationMu.Unlock()

	existing, err := s.users.FindByEmailOrUsername(ctx, input.Email, input.Username)
	if err != nil {
		return types.User{}, apierr.Internal("", "failed to check existing accounts", err)
	}
	if len(existing) > 0 {
		var emailTaken, usernameTaken bool
		for _, u := range existing {
			emailTaken = emailTaken || u.Email == input.Email
			usernameTaken = usernameTaken || u.Username == input.Username
		}
		return types.User{}, duplicateAccount(input, emailTaken, usernameTaken)
	}

	user, err := s.users.Create(ctx, types.User{
		Email:        input.Email,
		Username:     input.Username,
		PasswordHash: hash,
		AccountState: types.AccountUnverified,
	})
	if err != nil {
		// Another instance won the race; the unique constraints decide.
		if errors.Is(err, store.ErrConflict) {
			constraint := store.ConflictConstraint(err)
			return types.User{}, duplicateAccount(
				input,
				constraint == store.ConstraintUsersEmail,
				constraint == store.ConstraintUsersUsername,
			)
		}
		return types.User{}, apierr.Internal("", "failed to create account", err)
	}
	return user, nil
}

func duplicateAccount(input RegisterInput, emailTaken, usernameTaken bool) error {
	var debug string
	switch {
	case emailTaken && usernameTaken:
		debug = fmt.Sprintf("Email '%s' and username '%s' are already taken", input.Email, input.Username)
	case emailTaken:
		debug = fmt.Sprintf("Email '%s' is already taken", input.Email)
	case usernameTaken:
		debug = fmt.Sprintf("Username '%s' is already taken", input.Username)
	}
	return apierr.DuplicateAccount(fmt.Sprintf(duplicateTemplate, input.Email, input.Username), debug)
}

// ConfirmRegistration verifies the account named by a confirmation token.
func (s *AuthService) ConfirmRegistration(ctx context.Context, confirmationToken string) (ConfirmationStatus, error) {
	status, err := s.confirm(ctx, confirmationToken)
	s.observe(EventConfirm, err)
	return status, err
}

func (s *AuthService) confirm(ctx context.Context, confirmationToken string) (ConfirmationStatus, error) {
	claims, err := s.codec.DecodeAndVerify(strings.TrimSpace(confirmationToken))
	if err != nil {
		return "", err
	}
	if claims.Purpose != token.PurposeRegistrationConfirmation {
		return "", apierr.InvalidToken(
			"Invalid registration token provided",
			fmt.Sprintf("token purpose is %q", claims.Purpose),
		)
	}

	s.confirmationMu.Lock()
	defer s.confirmationMu.Unlock()

	if err := s.accounts.Confirm(ctx, claims.Subject); err != nil {
		return "", err
	}
	return ConfirmationSuccess, nil
}

// ResendConfirmation sends a fresh confirmation token when the exact
// (email, username) pair names an unverified account. Every other case is a
// silent no-op so callers cannot probe for accounts.
func (s *AuthService) ResendConfirmation(ctx context.Context, email, username string) error {
	outcome, err := s.resend(ctx, strings.TrimSpace(email), strings.TrimSpace(username))
	if err != nil {
		outcome = OutcomeFailure
	}
	if s.observer != nil {
		s.observer.ObserveAuthEvent(EventResend, outcome)
	}
	return err
}

func (s *AuthService) resend(ctx context.Context, email, username string) (string, error) {
	if email == "" || username == "" {
		return OutcomeNotSent, nil
	}

	user, err := s.users.GetByEmailAndUsername(ctx, email, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return OutcomeNotSent, nil
		}
		return "", apierr.Internal("", "failed to load account", err)
	}
	if user.AccountState != types.AccountUnverified {
		s.logger.WithField("username", username).Debug("skipping confirmation resend for verified account")
		return OutcomeNotSent, nil
	}

	tok, err := s.codec.Issue(user.Username, token.PurposeRegistrationConfirmation, s.confirmationTTL)
	if err != nil {
		return "", err
	}
	if err := s.mail.SendVerificationEmail(ctx, user.Email, user.Username, tok); err != nil {
		return "", apierr.Internal(apierr.CodeEmailSendFailed, "Failed to send verification email", err)
	}
	return OutcomeSuccess, nil
}

// ResolveIdentity maps a session token to the user it was issued for.
// Purpose-tagged tokens are not accepted as sessions.
func (s *AuthService) ResolveIdentity(ctx context.Context, sessionToken string) (types.User, error) {
	claims, err := s.codec.DecodeAndVerify(sessionToken)
	if err != nil {
		return types.User{}, err
	}
	if claims.Purpose != token.PurposeNone {
		return types.User{}, apierr.InvalidToken("Invalid token provided", "purpose tokens cannot authenticate requests")
	}

	user, err := s.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, apierr.InvalidToken("Invalid token provided", "unknown subject "+claims.Subject)
		}
		return types.User{}, apierr.Internal("", "failed to load user", err)
	}
	return user, nil
}

func (s *AuthService) observe(event string, err error) {
	if s.observer == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	s.observer.ObserveAuthEvent(event, outcome)
}
