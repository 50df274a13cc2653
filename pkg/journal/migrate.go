package journal

import (
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/solarback/pkg/support/logger"
)

// migrationsTable is the version-tracking table used by golang-migrate.
const migrationsTable = "journal_schema_migrations"

// getDatabaseDriver retrieves a migrate/v4 Driver based on the database type.
func getDatabaseDriver(dbType string, sqlDB *sql.DB) (database.Driver, error) {
	switch dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{
			MigrationsTable: migrationsTable,
		})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{
			MigrationsTable: migrationsTable,
		})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{
			MigrationsTable: migrationsTable,
		})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", dbType)
	}
}

// Migrate applies all pending schema migrations for the journal tables.
//
// Parameters:
//
//	conn: The journal database connection.
//	migrationFS: The filesystem holding the migration SQL files.
//	path: The directory within migrationFS holding the files.
func Migrate(conn *Connection, migrationFS fs.FS, path string) error {
	sqlDB, err := conn.SQLDB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}

	dbDriver, err := getDatabaseDriver(conn.Type(), sqlDB)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, conn.Type(), dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer mInstance.Close()

	logger.Infof("Applying journal migrations (Path: %s, Table: %s)", path, migrationsTable)
	if err := mInstance.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("journal migration failed (DB: %s, Path: %s): %w", conn.Type(), path, err)
	}
	logger.Infof("Journal migrations are up to date.")
	return nil
}
