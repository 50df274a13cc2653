package storage

import (
	"fmt"
	"sync"

	config "github.com/tigerroll/solarback/internal/config"
	"github.com/tigerroll/solarback/pkg/support/configbinder"
	"github.com/tigerroll/solarback/pkg/support/logger"
)

// Resolver resolves named storage connections from the application
// configuration, establishing each lazily through the registered adapter
// factory for its type.
type Resolver struct {
	cfg         *config.Config
	connections map[string]Connection
	mu          sync.RWMutex
}

// NewResolver creates a Resolver over the application configuration.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{
		cfg:         cfg,
		connections: make(map[string]Connection),
	}
}

// Resolve retrieves an existing connection or establishes a new one.
func (r *Resolver) Resolve(name string) (Connection, error) {
	r.mu.RLock()
	conn, ok := r.connections[name]
	r.mu.RUnlock()
	if ok {
		return conn, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double check (DCL)
	conn, ok = r.connections[name]
	if ok {
		return conn, nil
	}

	rawConfig, ok := r.cfg.Solarback.Datasources[name]
	if !ok {
		return nil, fmt.Errorf("storage configuration '%s' not found in datasources", name)
	}
	properties, ok := rawConfig.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("storage configuration '%s' is not a mapping", name)
	}

	var storageCfg StorageConfig
	if err := configbinder.Bind(properties, &storageCfg); err != nil {
		return nil, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}

	factory, err := GetAdapterFactory(storageCfg.Type)
	if err != nil {
		return nil, err
	}
	conn, err = factory(storageCfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage adapter for '%s': %w", name, err)
	}

	r.connections[name] = conn
	logger.Infof("Established new storage connection: %s (%s)", name, storageCfg.Type)
	return conn, nil
}

// CloseAll closes all connections managed by this resolver.
func (r *Resolver) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for name, conn := range r.connections {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close storage connection '%s': %v", name, err)
			lastErr = err
		}
		delete(r.connections, name)
	}
	return lastErr
}
