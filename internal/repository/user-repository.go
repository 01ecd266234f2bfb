package repository

import (
	"errors"
	"log"
	"time"

	"github.com/Jakkraphat/identity_service/internal/domain"
	"github.com/Jakkraphat/identity_service/internal/helper"
	"gorm.io/gorm"
)

type UserRepository interface {
	CreateUser(user *domain.User) (*domain.User, error)
	FindUserByEmail(email string) (*domain.User, error)

	// MarkVerified flips verified and clears the code in one conditional
	// UPDATE. Returns the number of rows changed so concurrent attempts
	// against the same account converge.
	MarkVerified(email, code string) (int64, error)

	// SetVerificationCode attaches a fresh code, conditional on the account
	// still being unverified so a resend racing a verify cannot re-arm a
	// verified row. Returns the number of rows changed.
	SetVerificationCode(email, code string) (int64, error)

	SetResetToken(email, token string, expiry time.Time) error

	// ClearResetAndSetPassword stores the new hash and clears the reset
	// fields, conditional on the stored token still matching.
	ClearResetAndSetPassword(email, token, passwordHash string) (int64, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) CreateUser(user *domain.User) (*domain.User, error) {
	if user == nil {
		return nil, errors.New("nil user")
	}

	if err := r.db.Create(user).Error; err != nil {
		if helper.IsDuplicateKey(err) {
			return nil, domain.ErrDuplicateAccount
		}
		log.Printf("create user error: %v", err)
		return nil, errors.New("failed to create user")
	}
	return user, nil
}

func (r *userRepository) FindUserByEmail(email string) (*domain.User, error) {
	user := &domain.User{}

	if err := r.db.First(user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		log.Printf("find user by email error: %v", err)
		return nil, errors.New("failed to find user by email")
	}
	return user, nil
}

func (r *userRepository) MarkVerified(email, code string) (int64, error) {
	res := r.db.Model(&domain.User{}).
		Where("email = ? AND verified = ? AND verification_code = ?", email, false, code).
		Updates(map[string]interface{}{
			"verified":          true,
			"verification_code": nil,
		})
	if res.Error != nil {
		log.Printf("mark verified error: %v", res.Error)
		return 0, errors.New("failed to update verification")
	}
	return res.RowsAffected, nil
}

func (r *userRepository) SetVerificationCode(email, code string) (int64, error) {
	res := r.db.Model(&domain.User{}).
		Where("email = ? AND verified = ?", email, false).
		Update("verification_code", code)
	if res.Error != nil {
		log.Printf("set verification code error: %v", res.Error)
		return 0, errors.New("failed to set verification code")
	}
	return res.RowsAffected, nil
}

func (r *userRepository) SetResetToken(email, token string, expiry time.Time) error {
	res := r.db.Model(&domain.User{}).
		Where("email = ?", email).
		Updates(map[string]interface{}{
			"reset_token":        token,
			"reset_token_expiry": expiry,
		})
	if res.Error != nil {
		log.Printf("set reset token error: %v", res.Error)
		return errors.New("failed to set reset token")
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepository) ClearResetAndSetPassword(email, token, passwordHash string) (int64, error) {
	res := r.db.Model(&domain.User{}).
		Where("email = ? AND reset_token = ?", email, token).
		Updates(map[string]interface{}{
			"password_hash":      passwordHash,
			"reset_token":        nil,
			"reset_token_expiry": nil,
		})
	if res.Error != nil {
		log.Printf("clear reset token error: %v", res.Error)
		return 0, errors.New("failed to reset password")
	}
	return res.RowsAffected, nil
}
