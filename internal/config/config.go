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
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete agent configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Query    QueryConfig    `yaml:"query"`
	Schema   SchemaConfig   `yaml:"schema"`
}

// HTTPConfig represents the HTTP API settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DatabaseConfig represents the target database connection settings.
// Driver selects the backend: "sqlite" uses Path, "postgres" uses the
// host/port/user fields.
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Path         string `yaml:"path"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"sslmode"`
	PoolMaxConns int    `yaml:"pool_max_conns"`
}

// LLMConfig represents the model provider settings
type LLMConfig struct {
	Provider         string  `yaml:"provider"` // "gemini" or "ollama"
	Model            string  `yaml:"model"`
	GeminiAPIKey     string  `yaml:"gemini_api_key"`
	GeminiAPIKeyFile string  `yaml:"gemini_api_key_file"`
	GeminiBaseURL    string  `yaml:"gemini_base_url"`
	OllamaURL        string  `yaml:"ollama_url"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
	Temperature      float64 `yaml:"temperature"`
	MaxOutputTokens  int     `yaml:"max_output_tokens"`
}

// QueryConfig represents the execution guardrails applied to every
// generated statement
type QueryConfig struct {
	MaxRows        int `yaml:"max_rows"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// SchemaConfig represents schema introspection and cache settings
type SchemaConfig struct {
	CacheEnabled    bool   `yaml:"cache_enabled"`
	CacheDir        string `yaml:"cache_dir"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
}

// CLIFlags represents command line flag values and whether they were
// explicitly set
type CLIFlags struct {
	ConfigFileSet bool
	ConfigFile    string

	HTTPEnabled    bool
	HTTPEnabledSet bool
	HTTPAddr       string
	HTTPAddrSet    bool

	DBDriver    string
	DBDriverSet bool
	DBPath      string
	DBPathSet   bool
	DBHost      string
	DBHostSet   bool
	DBPort      int
	DBPortSet   bool
	DBName      string
	DBNameSet   bool
	DBUser      string
	DBUserSet   bool
	DBPassword  string
	DBPassSet   bool
	DBSSLMode   string
	DBSSLSet    bool

	LLMProvider    string
	LLMProviderSet bool
	LLMModel       string
	LLMModelSet    bool

	MaxRows         int
	MaxRowsSet      bool
	QueryTimeout    int
	QueryTimeoutSet bool
}

// LoadConfig loads configuration with the following priority:
// 1. Command line flags (highest)
// 2. Environment variables
// 3. Configuration file
// 4. Defaults (lowest)
func LoadConfig(configPath string, cliFlags CLIFlags) (*Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		fileCfg, err := loadConfigFile(configPath)
		switch {
		case err == nil:
			mergeConfig(cfg, fileCfg)
		case os.IsNotExist(err) && !cliFlags.ConfigFileSet:
			// Default config path that does not exist is fine
		default:
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	applyEnvironmentVariables(cfg)
	applyCLIFlags(cfg, cliFlags)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns configuration with hard-coded defaults
func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Enabled: false,
			Address: ":8080",
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			Path:         "", // Required for sqlite - must be provided
			Host:         "localhost",
			Port:         5432,
			Database:     "postgres",
			User:         "",
			Password:     "",
			SSLMode:      "prefer",
			PoolMaxConns: 4,
		},
		LLM: LLMConfig{
			Provider:        "gemini",
			Model:           "gemini-2.0-flash",
			GeminiAPIKey:    "", // Must come from env, key file, or config file
			GeminiBaseURL:   "https://generativelanguage.googleapis.com",
			OllamaURL:       "http://localhost:11434",
			TimeoutSeconds:  30,
			Temperature:     0, // Deterministic output suits SQL generation
			MaxOutputTokens: 1024,
		},
		Query: QueryConfig{
			MaxRows:        500,
			TimeoutSeconds: 15,
		},
		Schema: SchemaConfig{
			CacheEnabled:    true,
			CacheDir:        ".schema-cache",
			CacheTTLMinutes: 60,
		},
	}
}

// loadConfigFile loads configuration from a YAML file
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

// mergeConfig merges source config into dest, only overriding non-zero values
func mergeConfig(dest, src *Config) {
	// HTTP
	if src.HTTP.Enabled {
		dest.HTTP.Enabled = src.HTTP.Enabled
	}
	if src.HTTP.Address != "" {
		dest.HTTP.Address = src.HTTP.Address
	}

	// Database
	if src.Database.Driver != "" {
		dest.Database.Driver = src.Database.Driver
	}
	if src.Database.Path != "" {
		dest.Database.Path = src.Database.Path
	}
	if src.Database.Host != "" {
		dest.Database.Host = src.Database.Host
	}
	if src.Database.Port != 0 {
		dest.Database.Port = src.Database.Port
	}
	if src.Database.Database != "" {
		dest.Database.Database = src.Database.Database
	}
	if src.Database.User != "" {
		dest.Database.User = src.Database.User
	}
	if src.Database.Password != "" {
		dest.Database.Password = src.Database.Password
	}
	if src.Database.SSLMode != "" {
		dest.Database.SSLMode = src.Database.SSLMode
	}
	if src.Database.PoolMaxConns != 0 {
		dest.Database.PoolMaxConns = src.Database.PoolMaxConns
	}

	// LLM
	if src.LLM.Provider != "" {
		dest.LLM.Provider = src.LLM.Provider
	}
	if src.LLM.Model != "" {
		dest.LLM.Model = src.LLM.Model
	}
	if src.LLM.GeminiAPIKey != "" {
		dest.LLM.GeminiAPIKey = src.LLM.GeminiAPIKey
	}
	if src.LLM.GeminiAPIKeyFile != "" {
		dest.LLM.GeminiAPIKeyFile = src.LLM.GeminiAPIKeyFile
	}
	if src.LLM.GeminiBaseURL != "" {
		dest.LLM.GeminiBaseURL = src.LLM.GeminiBaseURL
	}
	if src.LLM.OllamaURL != "" {
		dest.LLM.OllamaURL = src.LLM.OllamaURL
	}
	if src.LLM.TimeoutSeconds != 0 {
		dest.LLM.TimeoutSeconds = src.LLM.TimeoutSeconds
	}
	if src.LLM.Temperature != 0 {
		dest.LLM.Temperature = src.LLM.Temperature
	}
	if src.LLM.MaxOutputTokens != 0 {
		dest.LLM.MaxOutputTokens = src.LLM.MaxOutputTokens
	}

	// Query
	if src.Query.MaxRows != 0 {
		dest.Query.MaxRows = src.Query.MaxRows
	}
	if src.Query.TimeoutSeconds != 0 {
		dest.Query.TimeoutSeconds = src.Query.TimeoutSeconds
	}

	// Schema - cache_dir set in the file implies the section is intentional,
	// so a false cache_enabled there is honored
	if src.Schema.CacheDir != "" || src.Schema.CacheEnabled {
		dest.Schema.CacheEnabled = src.Schema.CacheEnabled
	}
	if src.Schema.CacheDir != "" {
		dest.Schema.CacheDir = src.Schema.CacheDir
	}
	if src.Schema.CacheTTLMinutes != 0 {
		dest.Schema.CacheTTLMinutes = src.Schema.CacheTTLMinutes
	}
}

// setStringFromEnv sets a string config value from an environment variable if it exists
func setStringFromEnv(dest *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val
	}
}

// setStringFromEnvWithFallback sets a string config value from an environment
// variable, checking multiple environment variable names in priority order
func setStringFromEnvWithFallback(dest *string, keys ...string) {
	for _, key := range keys {
		if val := os.Getenv(key); val != "" {
			*dest = val
			return
		}
	}
}

// setBoolFromEnv sets a boolean config value from an environment variable if it exists.
// Accepts "true", "1", or "yes" as true values
func setBoolFromEnv(dest *bool, key string) {
	if val := os.Getenv(key); val != "" {
		*dest = val == "true" || val == "1" || val == "yes"
	}
}

// setIntFromEnv sets an integer config value from an environment variable if it exists
func setIntFromEnv(dest *int, key string) {
	if val := os.Getenv(key); val != "" {
		var intVal int
		_, err := fmt.Sscanf(val, "%d", &intVal)
		if err == nil {
			*dest = intVal
		}
	}
}

// applyEnvironmentVariables overrides config with environment variables if they exist.
// All environment variables use the NLSQL_ prefix to avoid collisions
func applyEnvironmentVariables(cfg *Config) {
	// HTTP
	setBoolFromEnv(&cfg.HTTP.Enabled, "NLSQL_HTTP_ENABLED")
	setStringFromEnv(&cfg.HTTP.Address, "NLSQL_HTTP_ADDRESS")

	// Database
	setStringFromEnv(&cfg.Database.Driver, "NLSQL_DB_DRIVER")
	setStringFromEnv(&cfg.Database.Path, "NLSQL_DB_PATH")
	setStringFromEnv(&cfg.Database.Host, "NLSQL_DB_HOST")
	setIntFromEnv(&cfg.Database.Port, "NLSQL_DB_PORT")
	setStringFromEnv(&cfg.Database.Database, "NLSQL_DB_NAME")
	setStringFromEnv(&cfg.Database.User, "NLSQL_DB_USER")
	setStringFromEnv(&cfg.Database.Password, "NLSQL_DB_PASSWORD")
	setStringFromEnv(&cfg.Database.SSLMode, "NLSQL_DB_SSLMODE")

	// Also support standard PostgreSQL environment variables for convenience
	if cfg.Database.Host == "localhost" {
		setStringFromEnv(&cfg.Database.Host, "PGHOST")
	}
	if cfg.Database.Port == 5432 {
		setIntFromEnv(&cfg.Database.Port, "PGPORT")
	}
	if cfg.Database.Database == "postgres" {
		setStringFromEnv(&cfg.Database.Database, "PGDATABASE")
	}
	if cfg.Database.User == "" {
		setStringFromEnv(&cfg.Database.User, "PGUSER")
	}
	if cfg.Database.Password == "" {
		setStringFromEnv(&cfg.Database.Password, "PGPASSWORD")
	}

	// LLM
	setStringFromEnv(&cfg.LLM.Provider, "NLSQL_LLM_PROVIDER")
	setStringFromEnv(&cfg.LLM.Model, "NLSQL_LLM_MODEL")
	setStringFromEnv(&cfg.LLM.OllamaURL, "NLSQL_OLLAMA_URL")
	setIntFromEnv(&cfg.LLM.TimeoutSeconds, "NLSQL_LLM_TIMEOUT_SECONDS")
	setIntFromEnv(&cfg.LLM.MaxOutputTokens, "NLSQL_LLM_MAX_OUTPUT_TOKENS")

	// API key loading priority: env vars > api_key_file > direct config value
	setStringFromEnvWithFallback(&cfg.LLM.GeminiAPIKey, "NLSQL_GEMINI_API_KEY", "GEMINI_API_KEY")
	if cfg.LLM.GeminiAPIKey == "" && cfg.LLM.GeminiAPIKeyFile != "" {
		if key, err := readAPIKeyFromFile(cfg.LLM.GeminiAPIKeyFile); err == nil && key != "" {
			cfg.LLM.GeminiAPIKey = key
		}
		// Errors are silently ignored - the file may not exist and that's ok
	}

	// Query
	setIntFromEnv(&cfg.Query.MaxRows, "NLSQL_QUERY_MAX_ROWS")
	setIntFromEnv(&cfg.Query.TimeoutSeconds, "NLSQL_QUERY_TIMEOUT_SECONDS")

	// Schema
	setBoolFromEnv(&cfg.Schema.CacheEnabled, "NLSQL_SCHEMA_CACHE_ENABLED")
	setStringFromEnv(&cfg.Schema.CacheDir, "NLSQL_SCHEMA_CACHE_DIR")
	setIntFromEnv(&cfg.Schema.CacheTTLMinutes, "NLSQL_SCHEMA_CACHE_TTL_MINUTES")
}

// applyCLIFlags overrides config with CLI flags if they were explicitly set
func applyCLIFlags(cfg *Config, flags CLIFlags) {
	if flags.HTTPEnabledSet {
		cfg.HTTP.Enabled = flags.HTTPEnabled
	}
	if flags.HTTPAddrSet {
		cfg.HTTP.Address = flags.HTTPAddr
	}

	if flags.DBDriverSet {
		cfg.Database.Driver = flags.DBDriver
	}
	if flags.DBPathSet {
		cfg.Database.Path = flags.DBPath
	}
	if flags.DBHostSet {
		cfg.Database.Host = flags.DBHost
	}
	if flags.DBPortSet {
		cfg.Database.Port = flags.DBPort
	}
	if flags.DBNameSet {
		cfg.Database.Database = flags.DBName
	}
	if flags.DBUserSet {
		cfg.Database.User = flags.DBUser
	}
	if flags.DBPassSet {
		cfg.Database.Password = flags.DBPassword
	}
	if flags.DBSSLSet {
		cfg.Database.SSLMode = flags.DBSSLMode
	}

	if flags.LLMProviderSet {
		cfg.LLM.Provider = flags.LLMProvider
	}
	if flags.LLMModelSet {
		cfg.LLM.Model = flags.LLMModel
	}

	if flags.MaxRowsSet {
		cfg.Query.MaxRows = flags.MaxRows
	}
	if flags.QueryTimeoutSet {
		cfg.Query.TimeoutSeconds = flags.QueryTimeout
	}
}

// validateConfig checks that the configuration is usable
func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			return fmt.Errorf("database path is required for the sqlite driver (set via -db-path, NLSQL_DB_PATH, or config file)")
		}
	case "postgres":
		if cfg.Database.User == "" {
			return fmt.Errorf("database user is required for the postgres driver (set via -db-user, NLSQL_DB_USER, PGUSER, or config file)")
		}
	default:
		return fmt.Errorf("unsupported database driver %q (expected sqlite or postgres)", cfg.Database.Driver)
	}

	switch cfg.LLM.Provider {
	case "gemini", "ollama":
	default:
		return fmt.Errorf("unsupported llm provider %q (expected gemini or ollama)", cfg.LLM.Provider)
	}

	if cfg.Query.MaxRows <= 0 {
		return fmt.Errorf("query.max_rows must be positive, got %d", cfg.Query.MaxRows)
	}
	if cfg.Query.TimeoutSeconds <= 0 {
		return fmt.Errorf("query.timeout_seconds must be positive, got %d", cfg.Query.TimeoutSeconds)
	}

	return nil
}

// readAPIKeyFromFile reads an API key from a file with whitespace trimmed
func readAPIKeyFromFile(filePath string) (string, error) {
	if filePath == "" {
		return "", nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
