package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/Jakkraphat/identity_service/internal/domain"
	"github.com/Jakkraphat/identity_service/internal/dto"
	"github.com/Jakkraphat/identity_service/internal/helper"
	"github.com/Jakkraphat/identity_service/internal/helper/utils"
	"github.com/Jakkraphat/identity_service/internal/notifier"
	"github.com/Jakkraphat/identity_service/internal/repository"
)

const (
	resetTokenTTL  = time.Hour
	notifyTimeout  = 5 * time.Second
	minPasswordLen = 6
)

// AuthService owns the account lifecycle: the one-way Unverified -> Verified
// state machine plus the password and reset flows around it.
type AuthService interface {
	Register(input dto.RegisterRequest) (dto.UserResponse, error)
	Login(input dto.LoginRequest) (dto.UserResponse, error)
	VerifyEmail(email, code string) (dto.UserResponse, error)
	ResendVerification(email string) error
	RequestPasswordReset(email string) error
	ConfirmPasswordReset(input dto.ResetPasswordRequest) error
}

type authService struct {
	repo     repository.UserRepository
	auth     helper.Auth
	notifier notifier.Notifier
}

func NewAuthService(repo repository.UserRepository, auth helper.Auth, n notifier.Notifier) AuthService {
	return &authService{
		repo:     repo,
		auth:     auth,
		notifier: n,
	}
}

func Projection(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Verified: user.Verified,
	}
}

func (s *authService) Register(input dto.RegisterRequest) (dto.UserResponse, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := input.Password

	if username == "" || email == "" || password == "" {
		return dto.UserResponse{}, domain.ErrValidation
	}
	if !helper.ValidEmail(email) {
		return dto.UserResponse{}, domain.ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return dto.UserResponse{}, domain.ErrWeakPassword
	}

	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return dto.UserResponse{}, err
	}

	code, err := utils.GenerateCode()
	if err != nil {
		return dto.UserResponse{}, err
	}

	user, err := s.repo.CreateUser(&domain.User{
		Username:         username,
		Email:            email,
		PasswordHash:     hash,
		Verified:         false,
		VerificationCode: &code,
	})
	if err != nil {
		return dto.UserResponse{}, err
	}

	s.notifyVerification(user.ID, user.Email, code)

	return Projection(user), nil
}

func (s *authService) Login(input dto.LoginRequest) (dto.UserResponse, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	password := input.Password

	if email == "" || password == "" {
		return dto.UserResponse{}, domain.ErrValidation
	}

	user, err := s.repo.FindUserByEmail(email)
	if err != nil {
		return dto.UserResponse{}, err
	}

	if err := s.auth.VerifyPassword(password, user.PasswordHash); err != nil {
		return dto.UserResponse{}, err
	}

	// Verification state is informational here; unverified users may log in
	// and are gated per-endpoint instead.
	return Projection(user), nil
}

func (s *authService) VerifyEmail(email, code string) (dto.UserResponse, error) {
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return dto.UserResponse{}, domain.ErrValidation
	}

	user, err := s.repo.FindUserByEmail(email)
	if err != nil {
		return dto.UserResponse{}, err
	}
	if user.Verified {
		return dto.UserResponse{}, domain.ErrAlreadyVerified
	}
	if user.VerificationCode == nil || *user.VerificationCode != code {
		return dto.UserResponse{}, domain.ErrInvalidCode
	}

	affected, err := s.repo.MarkVerified(email, code)
	if err != nil {
		return dto.UserResponse{}, err
	}
	if affected == 0 {
		// Lost a race: someone verified first, or the code was rotated
		// underneath us. Re-read to report which.
		user, err = s.repo.FindUserByEmail(email)
		if err != nil {
			return dto.UserResponse{}, err
		}
		if user.Verified {
			return dto.UserResponse{}, domain.ErrAlreadyVerified
		}
		return dto.UserResponse{}, domain.ErrInvalidCode
	}

	user.Verified = true
	user.VerificationCode = nil
	return Projection(user), nil
}

func (s *authService) ResendVerification(email string) error {
	if email == "" {
		return domain.ErrValidation
	}

	user, err := s.repo.FindUserByEmail(email)
	if err != nil {
		return err
	}
	if user.Verified {
		return domain.ErrAlreadyVerified
	}

	code, err := utils.GenerateCode()
	if err != nil {
		return err
	}
	affected, err := s.repo.SetVerificationCode(email, code)
	if err != nil {
		return err
	}
	if affected == 0 {
		// A verify landed between our read and the conditional write.
		return domain.ErrAlreadyVerified
	}

	s.notifyVerification(user.ID, user.Email, code)
	return nil
}

func (s *authService) RequestPasswordReset(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return domain.ErrValidation
	}

	user, err := s.repo.FindUserByEmail(email)
	if err != nil {
		return err
	}

	code, err := utils.GenerateCode()
	if err != nil {
		return err
	}
	expiry := time.Now().Add(resetTokenTTL)
	if err := s.repo.SetResetToken(email, code, expiry); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := s.notifier.SendResetCode(ctx, user.ID, user.Email, code, expiry.Format(time.RFC3339)); err != nil {
		log.Printf("notifier: reset mail to %s failed: %v", user.Email, err)
	}
	return nil
}

func (s *authService) ConfirmPasswordReset(input dto.ResetPasswordRequest) error {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	code := strings.TrimSpace(input.Code)

	if email == "" || code == "" || input.NewPassword == "" {
		return domain.ErrValidation
	}
	if len(input.NewPassword) < minPasswordLen {
		return domain.ErrWeakPassword
	}

	user, err := s.repo.FindUserByEmail(email)
	if err != nil {
		return err
	}
	if user.ResetToken == nil || user.ResetTokenExpiry == nil {
		return domain.ErrInvalidToken
	}
	// Expiry first: a stale token is reported as expired regardless of the
	// submitted value.
	if time.Now().After(*user.ResetTokenExpiry) {
		return domain.ErrTokenExpired
	}
	if *user.ResetToken != code {
		return domain.ErrInvalidToken
	}

	hash, err := s.auth.HashPassword(input.NewPassword)
	if err != nil {
		return err
	}

	affected, err := s.repo.ClearResetAndSetPassword(email, code, hash)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrInvalidToken
	}
	return nil
}

// Delivery failure never fails the account operation; the code is already
// persisted and resend covers the gap.
func (s *authService) notifyVerification(userID uint, email, code string) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := s.notifier.SendVerificationCode(ctx, userID, email, code); err != nil {
		log.Printf("notifier: verification mail to %s failed: %v", email, err)
	}
}
