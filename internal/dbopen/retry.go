package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/resilience"
)

// busyPolicy retries a locked database three times, 100/200ms apart.
var busyPolicy = resilience.Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}

// IsBusy reports whether err is an SQLite BUSY or locked condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// busy marks BUSY errors transient so the policy repeats them.
func busy(err error) error {
	if IsBusy(err) {
		return fault.Mark(err, fault.ErrTransient)
	}
	return err
}

// RunTx runs fn in a transaction, retrying the whole transaction while
// the database is busy.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return busyPolicy.Do(ctx, "dbopen.tx", func(ctx context.Context) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return busy(fmt.Errorf("dbopen: begin tx: %w", err))
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return busy(err)
		}
		if err := tx.Commit(); err != nil {
			return busy(fmt.Errorf("dbopen: commit: %w", err))
		}
		return nil
	})
}
