package datastore

import (
	"fmt"

	"github.com/tphakala/pestguard-go/internal/conf"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// MySQLStore implements DataStore for MySQL
type MySQLStore struct {
	DataStore
	Settings *conf.Settings
}

// Open sets up the MySQL database connection and migrates the schema.
func (store *MySQLStore) Open() error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		store.Settings.Database.MySQL.Username, store.Settings.Database.MySQL.Password,
		store.Settings.Database.MySQL.Host, store.Settings.Database.MySQL.Port,
		store.Settings.Database.MySQL.Database)

	newLogger := createGormLogger()

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: newLogger})
	if err != nil {
		GetLogger().Error("Failed to open MySQL database",
			"host", store.Settings.Database.MySQL.Host,
			"port", store.Settings.Database.MySQL.Port,
			"database", store.Settings.Database.MySQL.Database,
			"error", err)
		return fmt.Errorf("failed to open MySQL database: %w", err)
	}

	store.DB = db
	return performAutoMigration(db, store.Settings.Debug, "MySQL", dsn)
}

// Close closes the MySQL database connection.
func (store *MySQLStore) Close() error {
	if store.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	sqlDB, err := store.DB.DB()
	if err != nil {
		GetLogger().Error("Failed to retrieve generic DB object", "error", err)
		return err
	}

	if err := sqlDB.Close(); err != nil {
		GetLogger().Error("Failed to close MySQL database", "error", err)
		return err
	}

	if store.Settings.Debug {
		GetLogger().Debug("MySQL database connection closed successfully")
	}
	return nil
}
