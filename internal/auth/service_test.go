package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"wayfarer/internal/types"
)

type mockAccountRepo struct {
	createFn     func(ctx context.Context, email, credentialHash, name string) (*types.Account, error)
	getByEmailFn func(ctx context.Context, email string) (*types.Account, error)
}

func (m *mockAccountRepo) Create(ctx context.Context, email, credentialHash, name string) (*types.Account, error) {
	return m.createFn(ctx, email, credentialHash, name)
}

func (m *mockAccountRepo) GetByEmail(ctx context.Context, email string) (*types.Account, error) {
	return m.getByEmailFn(ctx, email)
}

// fakeHasher avoids paying the bcrypt cost on every test.
type fakeHasher struct{}

func (fakeHasher) GenerateFromPassword(password string) (string, error) {
	return "hashed:" + password, nil
}

func (fakeHasher) CompareHashAndPassword(hashedPassword, password string) error {
	if hashedPassword != "hashed:"+password {
		return errors.New("mismatch")
	}
	return nil
}

func newTestService(repo *mockAccountRepo) *Service {
	return NewService(ServiceConfig{
		Accounts: repo,
		Tokens:   testTokenService(&fakeClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}),
		Hasher:   fakeHasher{},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestService_Register(t *testing.T) {
	var gotEmail, gotHash, gotName string
	repo := &mockAccountRepo{
		createFn: func(ctx context.Context, email, credentialHash, name string) (*types.Account, error) {
			gotEmail, gotHash, gotName = email, credentialHash, name
			return &types.Account{ID: "acc_1", Email: email, Name: name}, nil
		},
	}
	svc := newTestService(repo)

	account, token, err := svc.Register(context.Background(), "  User@Example.COM ", "hunter22", "Ada")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if gotEmail != "user@example.com" {
		t.Errorf("expected normalized email, got %q", gotEmail)
	}
	if gotHash != "hashed:hunter22" {
		t.Errorf("expected hashed credential, got %q", gotHash)
	}
	if gotName != "Ada" {
		t.Errorf("expected name Ada, got %q", gotName)
	}
	if account.ID != "acc_1" {
		t.Errorf("expected account acc_1, got %s", account.ID)
	}
	if token == "" {
		t.Error("expected a signed token")
	}
}

func TestService_Register_DuplicateEmailPassesThrough(t *testing.T) {
	repo := &mockAccountRepo{
		createFn: func(ctx context.Context, email, credentialHash, name string) (*types.Account, error) {
			return nil, types.NewAppError(types.ErrCodeConflictEmail, "email already registered", nil)
		},
	}
	svc := newTestService(repo)

	_, _, err := svc.Register(context.Background(), "user@example.com", "hunter22", "Ada")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeConflictEmail {
		t.Errorf("expected %s, got %s", types.ErrCodeConflictEmail, appErr.Code)
	}
}

func TestService_Login(t *testing.T) {
	repo := &mockAccountRepo{
		getByEmailFn: func(ctx context.Context, email string) (*types.Account, error) {
			if email != "user@example.com" {
				t.Errorf("expected normalized email, got %q", email)
			}
			return &types.Account{
				ID:             "acc_1",
				Email:          email,
				CredentialHash: "hashed:hunter22",
			}, nil
		},
	}
	svc := newTestService(repo)

	account, token, err := svc.Login(context.Background(), "User@Example.com", "hunter22")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if account.ID != "acc_1" {
		t.Errorf("expected account acc_1, got %s", account.ID)
	}
	if token == "" {
		t.Error("expected a signed token")
	}
}

func TestService_Login_UnknownEmailMasked(t *testing.T) {
	repo := &mockAccountRepo{
		getByEmailFn: func(ctx context.Context, email string) (*types.Account, error) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found", nil)
		},
	}
	svc := newTestService(repo)

	_, _, err := svc.Login(context.Background(), "ghost@example.com", "hunter22")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeAuthInvalidCreds {
		t.Errorf("expected %s, got %s", types.ErrCodeAuthInvalidCreds, appErr.Code)
	}
}

func TestService_Login_WrongPasswordMasked(t *testing.T) {
	repo := &mockAccountRepo{
		getByEmailFn: func(ctx context.Context, email string) (*types.Account, error) {
			return &types.Account{
				ID:             "acc_1",
				Email:          email,
				CredentialHash: "hashed:correct",
			}, nil
		},
	}
	svc := newTestService(repo)

	_, _, err := svc.Login(context.Background(), "user@example.com", "wrong")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeAuthInvalidCreds {
		t.Errorf("expected %s, got %s", types.ErrCodeAuthInvalidCreds, appErr.Code)
	}
}

func TestService_Login_StoreErrorPassesThrough(t *testing.T) {
	repo := &mockAccountRepo{
		getByEmailFn: func(ctx context.Context, email string) (*types.Account, error) {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "query failed", nil)
		},
	}
	svc := newTestService(repo)

	_, _, err := svc.Login(context.Background(), "user@example.com", "hunter22")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeInternalDB {
		t.Errorf("expected %s, got %s", types.ErrCodeInternalDB, appErr.Code)
	}
}
