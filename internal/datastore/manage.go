// manage.go: database connection management and schema migration
package datastore

import (
	"slices"
	"time"

	"github.com/tphakala/pestguard-go/internal/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultSlowQueryThreshold defines the duration after which a query is
// considered slow. One second accommodates migration batch queries which can
// take most of that on small hardware.
const DefaultSlowQueryThreshold = 1 * time.Second

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() gormlogger.Interface {
	return NewGormLogger(DefaultSlowQueryThreshold, gormlogger.Warn, gormMetrics)
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	migrationStart := time.Now()
	migrationLogger := GetLogger().With("db_type", dbType)

	migrationLogger.Debug("Starting database migration")

	successCount, err := migrateTables(db, dbType)
	if err != nil {
		return err
	}

	migrationLogger.Debug("Database migration completed successfully",
		"total_duration", time.Since(migrationStart),
		"tables_migrated", successCount)

	return nil
}

// migrateTables migrates every table of the data model in dependency order.
func migrateTables(db *gorm.DB, dbType string) (int, error) {
	tableMappings := []struct {
		model any
		name  string
	}{
		{&Integration{}, "integrations"},
		{&Camera{}, "cameras"},
		{&Detection{}, "detections"},
		{&Foe{}, "foes"},
		{&DeterrentAction{}, "deterrent_actions"},
		{&SoundEffectiveness{}, "sound_effectivenesses"},
		{&SoundStatistics{}, "sound_statistics"},
		{&TimeBasedEffectiveness{}, "time_based_effectivenesses"},
		{&Setting{}, "settings"},
	}

	GetLogger().Debug("Starting table migrations",
		"table_count", len(tableMappings))

	successCount := 0
	for _, table := range tableMappings {
		if err := migrateTable(db, table.model, table.name, dbType); err != nil {
			return successCount, err
		}
		successCount++
	}

	return successCount, nil
}

// migrateTable migrates a single table with detailed logging
func migrateTable(db *gorm.DB, model any, tableName, dbType string) error {
	tableStart := time.Now()

	tableExists := db.Migrator().HasTable(model)

	GetLogger().Debug("Migrating table",
		"table", tableName,
		"exists", tableExists)

	columnsBefore := getTableColumns(db, model, tableExists)

	if err := db.AutoMigrate(model); err != nil {
		enhancedErr := errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Priority(errors.PriorityCritical).
			Context("operation", "auto_migrate_table").
			Context("db_type", dbType).
			Context("table", tableName).
			Build()

		GetLogger().Error("Table migration failed",
			"table", tableName,
			"error", enhancedErr)
		return enhancedErr
	}

	action, addedColumns := determineTableChanges(db, model, tableExists, columnsBefore)

	GetLogger().Debug("Table migration finished",
		"table", tableName,
		"action", action,
		"added_columns", addedColumns,
		"duration", time.Since(tableStart))

	return nil
}

// getTableColumns retrieves column names for a table
func getTableColumns(db *gorm.DB, model any, tableExists bool) []string {
	var columns []string
	if tableExists {
		if cols, err := db.Migrator().ColumnTypes(model); err == nil {
			for _, col := range cols {
				columns = append(columns, col.Name())
			}
		}
	}
	return columns
}

// determineTableChanges checks what changed after migration
func determineTableChanges(db *gorm.DB, model any, tableExists bool, columnsBefore []string) (action string, addedColumns []string) {
	action = "updated"

	if !tableExists {
		action = "created"
		if cols, err := db.Migrator().ColumnTypes(model); err == nil {
			for _, col := range cols {
				addedColumns = append(addedColumns, col.Name())
			}
		}
	} else {
		addedColumns = findNewColumns(db, model, columnsBefore)
		if len(addedColumns) == 0 {
			action = "unchanged"
		}
	}

	return action, addedColumns
}

// findNewColumns identifies columns added during migration
func findNewColumns(db *gorm.DB, model any, columnsBefore []string) []string {
	var addedColumns []string

	if cols, err := db.Migrator().ColumnTypes(model); err == nil {
		for _, col := range cols {
			colName := col.Name()
			if !slices.Contains(columnsBefore, colName) {
				addedColumns = append(addedColumns, colName)
			}
		}
	}

	return addedColumns
}
