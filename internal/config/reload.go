/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package config

import (
	"fmt"
	"sync"

	"nlsql-agent/internal/logging"
)

// ReloadableConfig wraps a Config with thread-safe access and reload capability
type ReloadableConfig struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	cliFlags CLIFlags
	onReload []func(*Config)
}

// NewReloadableConfig creates a new reloadable configuration
func NewReloadableConfig(config *Config, path string, cliFlags CLIFlags) *ReloadableConfig {
	return &ReloadableConfig{
		config:   config,
		path:     path,
		cliFlags: cliFlags,
		onReload: make([]func(*Config), 0),
	}
}

// Get returns the current configuration (read-only access)
func (rc *ReloadableConfig) Get() *Config {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.config
}

// OnReload registers a callback invoked after each successful reload
func (rc *ReloadableConfig) OnReload(fn func(*Config)) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.onReload = append(rc.onReload, fn)
}

// Reload reloads the configuration from the file.
// Returns an error if the reload fails, but keeps the old config.
func (rc *ReloadableConfig) Reload() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.path == "" {
		return fmt.Errorf("no configuration file path set")
	}

	newConfig, err := LoadConfig(rc.path, rc.cliFlags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	rc.logRestartRequiredSettings(newConfig)

	rc.config = newConfig

	for _, callback := range rc.onReload {
		callback(newConfig)
	}

	logging.Info("configuration reloaded", "path", rc.path)
	return nil
}

// logRestartRequiredSettings logs settings that changed but require a restart
func (rc *ReloadableConfig) logRestartRequiredSettings(newConfig *Config) {
	old := rc.config

	if old.HTTP.Enabled != newConfig.HTTP.Enabled {
		logging.Warn("http.enabled changed - requires restart")
	}
	if old.HTTP.Address != newConfig.HTTP.Address {
		logging.Warn("http.address changed - requires restart")
	}
	if old.Database.Driver != newConfig.Database.Driver {
		logging.Warn("database.driver changed - requires restart")
	}
	if old.Database.Path != newConfig.Database.Path {
		logging.Warn("database.path changed - requires restart")
	}
	if old.LLM.Provider != newConfig.LLM.Provider {
		logging.Info("llm.provider changed", "provider", newConfig.LLM.Provider)
	}
	if old.LLM.Model != newConfig.LLM.Model {
		logging.Info("llm.model changed", "model", newConfig.LLM.Model)
	}
}
