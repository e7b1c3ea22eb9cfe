// settings.go: stringly-typed runtime settings storage
package datastore

import (
	"time"

	"github.com/tphakala/pestguard-go/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GetSetting retrieves the raw string value for a settings key. A missing key
// returns gorm.ErrRecordNotFound wrapped in a NotFound error; callers fall
// back to their declared defaults.
func (ds *DataStore) GetSetting(key string) (string, error) {
	var setting Setting
	if err := ds.DB.Where("key = ?", key).First(&setting).Error; err != nil {
		return "", errors.New(err).
			Component("datastore").
			Category(categorizeGetError(err)).
			Context("operation", "get_setting").
			Context("setting_key", key).
			Build()
	}
	return setting.Value, nil
}

// SetSetting inserts or updates a settings key.
func (ds *DataStore) SetSetting(key, value string) error {
	setting := Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}

	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error

	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "set_setting").
			Context("setting_key", key).
			Build()
	}
	return nil
}

// IsNotFound reports whether an error from a datastore lookup means the row
// does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
