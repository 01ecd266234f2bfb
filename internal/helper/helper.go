package helper

import (
	"errors"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// IsDuplicateKey reports whether err is a postgres unique violation, so a
// racing insert on the email index surfaces as a duplicate-account error
// instead of a 500.
func IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
