package journal

import (
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// init registers the dialector factories for the supported journal databases.
func init() {
	RegisterDialector("postgres", func(cfg DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Host == "" || cfg.Database == "" {
			return nil, errors.New("postgres journal config requires host and database")
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslmodeOrDefault(cfg.Sslmode))
		if cfg.Schema != "" {
			dsn += fmt.Sprintf(" search_path=%s", cfg.Schema)
		}
		return postgres.Open(dsn), nil
	})

	RegisterDialector("mysql", func(cfg DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Host == "" || cfg.Database == "" {
			return nil, errors.New("mysql journal config requires host and database")
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
		return mysql.Open(dsn), nil
	})

	RegisterDialector("sqlite", func(cfg DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		// The SQLite dialector takes the file path directly.
		return sqlite.Open(cfg.Database), nil
	})
}

func sslmodeOrDefault(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}
