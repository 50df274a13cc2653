// Package journal persists sweep runs and per-bucket outcomes to a
// relational database so operators can audit what each run fetched,
// skipped, or failed.
package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	config "github.com/tigerroll/solarback/internal/config"
	"github.com/tigerroll/solarback/pkg/support/configbinder"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

// DialectorFactory generates a gorm.Dialector from a DatabaseConfig.
type DialectorFactory func(cfg DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory retrieves the DialectorFactory corresponding to the specified DB type.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// Connection is one established journal database connection.
type Connection struct {
	db   *gorm.DB
	cfg  DatabaseConfig
	name string
}

// DB returns the underlying gorm handle.
func (c *Connection) DB() *gorm.DB {
	return c.db
}

// SQLDB returns the underlying *sql.DB connection.
func (c *Connection) SQLDB() (*sql.DB, error) {
	return c.db.DB()
}

// Type returns the database type.
func (c *Connection) Type() string {
	return c.cfg.Type
}

// Name returns the connection name.
func (c *Connection) Name() string {
	return c.name
}

// Close closes the underlying connection.
func (c *Connection) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Provider manages named journal database connections, establishing each
// lazily from the application configuration.
type Provider struct {
	cfg         *config.Config
	connections map[string]*Connection
	mu          sync.RWMutex
}

// NewProvider creates a Provider over the application configuration.
func NewProvider(cfg *config.Config) *Provider {
	return &Provider{
		cfg:         cfg,
		connections: make(map[string]*Connection),
	}
}

// GetConnection retrieves an existing connection or establishes a new one.
func (p *Provider) GetConnection(name string) (*Connection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()

	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double check (DCL)
	conn, ok = p.connections[name]
	if ok {
		return conn, nil
	}

	return p.createAndStoreConnection(name)
}

// createAndStoreConnection establishes a new connection and stores it in the map.
func (p *Provider) createAndStoreConnection(name string) (*Connection, error) {
	var dbConfig DatabaseConfig
	rawConfig, ok := p.cfg.Solarback.AdapterConfigs[name]
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' not found in database configs", name)
	}
	properties, ok := rawConfig.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' is not a mapping", name)
	}
	if err := configbinder.Bind(properties, &dbConfig); err != nil {
		return nil, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
	}

	gormDB, err := p.connect(dbConfig)
	if err != nil {
		return nil, err
	}

	conn := &Connection{db: gormDB, cfg: dbConfig, name: name}
	p.connections[name] = conn
	logger.Infof("Established new journal DB connection: %s (%s)", name, dbConfig.Type)

	return conn, nil
}

// connect establishes a GORM connection based on DatabaseConfig.
func (p *Provider) connect(dbConfig DatabaseConfig) (*gorm.DB, error) {
	dialectorFactory, err := GetDialectorFactory(dbConfig.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to get dialector factory for %s: %w", dbConfig.Type, err)
	}
	dialector, err := dialectorFactory(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create dialector for %s: %w", dbConfig.Type, err)
	}

	gormConfig := &gorm.Config{
		Logger: NewGormLogger(string(config.LogLevelSilent)),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open GORM connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(dbConfig.Pool.MaxOpenConns)
	sqlDB.SetMaxIdleConns(dbConfig.Pool.MaxIdleConns)
	if dbConfig.Pool.ConnMaxLifetimeMinutes > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.Pool.ConnMaxLifetimeMinutes) * time.Minute)
	}

	return db, nil
}

// CloseAll closes all connections managed by this provider.
func (p *Provider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close connection '%s': %v", name, err)
			lastErr = err
		}
		delete(p.connections, name)
	}
	return lastErr
}
