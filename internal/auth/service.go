package auth

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"wayfarer/internal/types"
)

// bcryptCost is the bcrypt cost factor used for credential hashing.
const bcryptCost = 12

// AccountRepo defines the data access the auth service needs.
type AccountRepo interface {
	Create(ctx context.Context, email, credentialHash, name string) (*types.Account, error)
	GetByEmail(ctx context.Context, email string) (*types.Account, error)
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

// bcryptHasher is the production implementation of PasswordHasher.
type bcryptHasher struct{}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Service implements registration and login on top of the account store and
// the token service.
type Service struct {
	accounts AccountRepo
	tokens   *TokenService
	hasher   PasswordHasher
	logger   *slog.Logger
}

// ServiceConfig holds the dependencies for creating an auth Service.
type ServiceConfig struct {
	Accounts AccountRepo
	Tokens   *TokenService
	Hasher   PasswordHasher
	Logger   *slog.Logger
}

// NewService creates an auth Service. If Hasher is nil, the production
// bcrypt hasher is used.
func NewService(cfg ServiceConfig) *Service {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = &bcryptHasher{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		accounts: cfg.Accounts,
		tokens:   cfg.Tokens,
		hasher:   hasher,
		logger:   logger,
	}
}

// Register creates a new account on the free tier and returns it with a
// signed access token. Email uniqueness is enforced by the store.
func (s *Service) Register(ctx context.Context, email, password, name string) (*types.Account, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hash, err := s.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to hash credentials",
			err,
		)
	}

	account, err := s.accounts.Create(ctx, email, hash, name)
	if err != nil {
		return nil, "", err
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "account registered",
		"account_id", account.ID,
		"email", email,
	)

	return account, token, nil
}

// Login verifies credentials and returns the account with a signed access
// token. Unknown emails and wrong passwords both come back as the same
// invalid-credentials error so the endpoint cannot be used to enumerate
// accounts.
func (s *Service) Login(ctx context.Context, email, password string) (*types.Account, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeNotFoundAccount {
			return nil, "", types.NewAppError(
				types.ErrCodeAuthInvalidCreds,
				"invalid email or password",
				nil,
			)
		}
		return nil, "", err
	}

	if err := s.hasher.CompareHashAndPassword(account.CredentialHash, password); err != nil {
		return nil, "", types.NewAppError(
			types.ErrCodeAuthInvalidCreds,
			"invalid email or password",
			nil,
		)
	}

	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "account logged in",
		"account_id", account.ID,
	)

	return account, token, nil
}
