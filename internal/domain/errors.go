package domain

import "errors"

// Domain errors. Handlers map these onto HTTP statuses; the message text is
// what ends up in the {success:false, message} envelope.
var (
	ErrValidation       = errors.New("All fields are required")
	ErrInvalidEmail     = errors.New("Invalid email format")
	ErrWeakPassword     = errors.New("Password must be at least 6 characters")
	ErrDuplicateAccount = errors.New("Email already exists")
	ErrNotFound         = errors.New("User does not exist")
	ErrBadCredential    = errors.New("Incorrect Password")
	ErrAlreadyVerified  = errors.New("User already verified")
	ErrInvalidCode      = errors.New("Invalid verification code")
	ErrInvalidToken     = errors.New("Invalid reset code")
	ErrTokenExpired     = errors.New("Reset code expired")
	ErrSessionNotFound  = errors.New("session not found")
	ErrFederatedLogin   = errors.New("federated login failed")
)
