// Package notifier delivers one-time codes to an account's email address,
// either directly over SMTP or as events on a mail topic consumed by a
// separate mail service.
package notifier

import "context"

type Notifier interface {
	SendVerificationCode(ctx context.Context, userID uint, email, code string) error
	SendResetCode(ctx context.Context, userID uint, email, code string, expiresAt string) error
}
