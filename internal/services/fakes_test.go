package services

import (
	"context"
	"sync"
	"time"

	"github.com/Jakkraphat/identity_service/internal/domain"
)

// In-memory UserRepository with the same row-level conditional-update
// semantics as the postgres implementation.
type fakeUserRepo struct {
	mu    sync.Mutex
	seq   uint
	users map[string]*domain.User

	// Runs before SetVerificationCode takes the lock, for interleaving
	// a competing write in tests.
	beforeSetCode func()
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (f *fakeUserRepo) CreateUser(user *domain.User) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.users[user.Email]; ok {
		return nil, domain.ErrDuplicateAccount
	}
	f.seq++
	user.ID = f.seq
	cp := *user
	f.users[user.Email] = &cp
	return user, nil
}

func (f *fakeUserRepo) FindUserByEmail(email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) MarkVerified(email, code string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[email]
	if !ok || u.Verified || u.VerificationCode == nil || *u.VerificationCode != code {
		return 0, nil
	}
	u.Verified = true
	u.VerificationCode = nil
	return 1, nil
}

func (f *fakeUserRepo) SetVerificationCode(email, code string) (int64, error) {
	if f.beforeSetCode != nil {
		f.beforeSetCode()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[email]
	if !ok || u.Verified {
		return 0, nil
	}
	u.VerificationCode = &code
	return 1, nil
}

func (f *fakeUserRepo) SetResetToken(email, token string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[email]
	if !ok {
		return domain.ErrNotFound
	}
	u.ResetToken = &token
	u.ResetTokenExpiry = &expiry
	return nil
}

func (f *fakeUserRepo) ClearResetAndSetPassword(email, token, passwordHash string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[email]
	if !ok || u.ResetToken == nil || *u.ResetToken != token {
		return 0, nil
	}
	u.PasswordHash = passwordHash
	u.ResetToken = nil
	u.ResetTokenExpiry = nil
	return 1, nil
}

// Mutators for test setup.

func (f *fakeUserRepo) forceVerified(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email].Verified = true
	f.users[email].VerificationCode = nil
}

func (f *fakeUserRepo) expireReset(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	past := time.Now().Add(-time.Minute)
	f.users[email].ResetTokenExpiry = &past
}

func (f *fakeUserRepo) stored(email string) *domain.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

type fakeNotifier struct {
	mu            sync.Mutex
	verifications []string
	resets        []string
}

func (f *fakeNotifier) SendVerificationCode(_ context.Context, _ uint, _ string, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifications = append(f.verifications, code)
	return nil
}

func (f *fakeNotifier) SendResetCode(_ context.Context, _ uint, _ string, code string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, code)
	return nil
}

func (f *fakeNotifier) lastVerification() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.verifications) == 0 {
		return ""
	}
	return f.verifications[len(f.verifications)-1]
}

func (f *fakeNotifier) lastReset() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.resets) == 0 {
		return ""
	}
	return f.resets[len(f.resets)-1]
}
