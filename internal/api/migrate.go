package api

import (
	"context"
	"database/sql"
)

const migrateLockID int64 = 20260831

// withMigrationLock serializes fn across replicas with a pg advisory lock.
// The lock is session-scoped, so acquire and release ride the same dedicated
// connection, and it is released as soon as fn returns rather than held for
// the process lifetime.
func withMigrationLock(sqlDB *sql.DB, fn func() error) error {
	ctx := context.Background()

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return err
	}
	defer func() {
		_, _ = conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()

	return fn()
}
