// session.go: transaction scoping primitives used by all mutating operations
package datastore

import (
	"github.com/tphakala/pestguard-go/internal/errors"
	"gorm.io/gorm"
)

// ScopedSession begins a transaction and yields it to fn for the duration of
// the call. A panic inside fn rolls the transaction back and re-panics. An
// error returned by fn rolls the transaction back and is returned to the
// caller. On a normal return the transaction is discarded unless fn committed
// it explicitly, typically through SafeCommit.
func (ds *DataStore) ScopedSession(fn func(tx *gorm.DB) error) error {
	tx := ds.DB.Begin()
	if tx.Error != nil {
		return errors.New(tx.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "begin_transaction").
			Build()
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		if gormMetrics != nil {
			gormMetrics.RecordTransaction("rollback")
		}
		return err
	}

	// Uncommitted work is discarded. Rollback after an explicit commit is a
	// no-op that GORM reports as ErrInvalidTransaction, which we ignore.
	if err := tx.Rollback().Error; err != nil && !errors.Is(err, gorm.ErrInvalidTransaction) {
		getLogger().Warn("Failed to discard uncommitted session", "error", err)
	}
	return nil
}

// SafeCommit attempts to commit the given transaction and reports whether the
// commit succeeded. On failure the transaction is rolled back.
func SafeCommit(tx *gorm.DB) bool {
	if err := tx.Commit().Error; err != nil {
		getLogger().Error("Transaction commit failed", "error", err)
		tx.Rollback()
		if gormMetrics != nil {
			gormMetrics.RecordTransaction("rollback")
		}
		return false
	}
	if gormMetrics != nil {
		gormMetrics.RecordTransaction("commit")
	}
	return true
}
