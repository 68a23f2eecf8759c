/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// NLSQL Agent translates natural-language questions into SQL, validates
// the generated statements against the live schema, and runs them
// read-only with row and time limits. The chat command gives an
// interactive terminal session; serve exposes the same pipeline over
// HTTP.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nlsql-agent/internal/api"
	"nlsql-agent/internal/chat"
	"nlsql-agent/internal/config"
	"nlsql-agent/internal/database"
	"nlsql-agent/internal/executor"
	"nlsql-agent/internal/llm"
	"nlsql-agent/internal/logging"
	"nlsql-agent/internal/pipeline"
	"nlsql-agent/internal/schema"
)

const defaultConfigPath = "nlsql-agent.yaml"

var (
	flagConfigFile string

	flagHTTPAddr string

	flagDBDriver   string
	flagDBPath     string
	flagDBHost     string
	flagDBPort     int
	flagDBName     string
	flagDBUser     string
	flagDBPassword string
	flagDBSSLMode  string

	flagLLMProvider string
	flagLLMModel    string

	flagMaxRows      int
	flagQueryTimeout int

	flagNoColor    bool
	flagNoMarkdown bool

	flagSchemaDetailed bool
	flagSchemaTables   []string
	flagSchemaRefresh  bool
)

var rootCmd = &cobra.Command{
	Use:   "nlsql-agent",
	Short: "Ask questions about a SQL database in plain language",
	Long: `NLSQL Agent turns natural-language questions into SQL with an LLM,
validates every generated statement against the database schema, and
executes only single read-only SELECTs under row and time limits.

Supported databases: SQLite and PostgreSQL.
Supported model providers: Gemini and Ollama.`,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive question session",
	RunE:  runChat,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the question pipeline over HTTP",
	RunE:  runServe,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the introspected database schema",
	RunE:  runSchema,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfigFile, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	pf.StringVar(&flagDBDriver, "db-driver", "sqlite", "Database driver (sqlite or postgres)")
	pf.StringVar(&flagDBPath, "db-path", "", "SQLite database file path")
	pf.StringVar(&flagDBHost, "db-host", "localhost", "PostgreSQL host")
	pf.IntVar(&flagDBPort, "db-port", 5432, "PostgreSQL port")
	pf.StringVar(&flagDBName, "db-name", "postgres", "PostgreSQL database name")
	pf.StringVar(&flagDBUser, "db-user", "", "PostgreSQL user")
	pf.StringVar(&flagDBPassword, "db-password", "", "PostgreSQL password")
	pf.StringVar(&flagDBSSLMode, "db-sslmode", "prefer", "PostgreSQL SSL mode")
	pf.StringVar(&flagLLMProvider, "llm-provider", "gemini", "Model provider (gemini or ollama)")
	pf.StringVar(&flagLLMModel, "llm-model", "", "Model name")
	pf.IntVar(&flagMaxRows, "max-rows", 500, "Maximum rows returned per query")
	pf.IntVar(&flagQueryTimeout, "query-timeout", 15, "Query timeout in seconds")

	chatCmd.Flags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	chatCmd.Flags().BoolVar(&flagNoMarkdown, "no-markdown", false, "Disable markdown rendering of generated SQL")

	serveCmd.Flags().StringVar(&flagHTTPAddr, "http-addr", ":8080", "HTTP listen address")

	schemaCmd.Flags().BoolVar(&flagSchemaDetailed, "detailed", false, "Render full CREATE TABLE definitions")
	schemaCmd.Flags().StringSliceVar(&flagSchemaTables, "tables", nil, "Restrict detailed output to these tables")
	schemaCmd.Flags().BoolVar(&flagSchemaRefresh, "refresh", false, "Bypass the schema cache")

	rootCmd.AddCommand(chatCmd, serveCmd, schemaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// collectCLIFlags converts cobra flag state into config overrides. Only
// flags the user actually passed override the file and environment.
func collectCLIFlags(cmd *cobra.Command) config.CLIFlags {
	changed := cmd.Flags().Changed
	return config.CLIFlags{
		ConfigFile:    flagConfigFile,
		ConfigFileSet: changed("config"),

		HTTPAddr:    flagHTTPAddr,
		HTTPAddrSet: changed("http-addr"),

		DBDriver:    flagDBDriver,
		DBDriverSet: changed("db-driver"),
		DBPath:      flagDBPath,
		DBPathSet:   changed("db-path"),
		DBHost:      flagDBHost,
		DBHostSet:   changed("db-host"),
		DBPort:      flagDBPort,
		DBPortSet:   changed("db-port"),
		DBName:      flagDBName,
		DBNameSet:   changed("db-name"),
		DBUser:      flagDBUser,
		DBUserSet:   changed("db-user"),
		DBPassword:  flagDBPassword,
		DBPassSet:   changed("db-password"),
		DBSSLMode:   flagDBSSLMode,
		DBSSLSet:    changed("db-sslmode"),

		LLMProvider:    flagLLMProvider,
		LLMProviderSet: changed("llm-provider"),
		LLMModel:       flagLLMModel,
		LLMModelSet:    changed("llm-model"),

		MaxRows:         flagMaxRows,
		MaxRowsSet:      changed("max-rows"),
		QueryTimeout:    flagQueryTimeout,
		QueryTimeoutSet: changed("query-timeout"),
	}
}

// app holds the assembled components shared by every command
type app struct {
	cfg      *config.Config
	cliFlags config.CLIFlags
	db       *sql.DB
	provider *schema.Provider
	model    *llm.Client
	exec     *executor.Executor
	pipe     *pipeline.Pipeline
}

// buildApp loads configuration, connects to the database, loads the
// schema, and assembles the pipeline
func buildApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cliFlags := collectCLIFlags(cmd)
	cfg, err := config.LoadConfig(flagConfigFile, cliFlags)
	if err != nil {
		return nil, err
	}

	db, driver, err := database.Connect(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	var cache *schema.Cache
	if cfg.Schema.CacheEnabled {
		cache = schema.NewCache(cfg.Schema.CacheDir,
			time.Duration(cfg.Schema.CacheTTLMinutes)*time.Minute)
	}
	fingerprint := schemaFingerprint(driver, &cfg.Database)
	provider := schema.NewProvider(db, driver, fingerprint, cache)
	if _, err := provider.Load(ctx); err != nil {
		db.Close()
		return nil, err
	}

	client := llm.NewClient(cfg.LLM)
	if !client.IsConfigured() {
		logging.Warn("model provider is not configured", "provider", cfg.LLM.Provider)
		fmt.Fprintln(os.Stderr, "Warning: no Gemini API key configured (set GEMINI_API_KEY); questions will fail until one is provided.")
	}

	exec := executor.New(db, executor.Limits{
		MaxRows: cfg.Query.MaxRows,
		Timeout: time.Duration(cfg.Query.TimeoutSeconds) * time.Second,
	})

	return &app{
		cfg:      cfg,
		cliFlags: cliFlags,
		db:       db,
		provider: provider,
		model:    client,
		exec:     exec,
		pipe:     pipeline.New(client, exec, provider, driver),
	}, nil
}

// schemaFingerprint identifies one target database for the schema cache
func schemaFingerprint(driver string, cfg *config.DatabaseConfig) string {
	if driver == "sqlite" {
		if abs, err := filepath.Abs(cfg.Path); err == nil {
			return schema.Fingerprint(driver, abs)
		}
		return schema.Fingerprint(driver, cfg.Path)
	}
	return schema.Fingerprint(driver, cfg.Host, fmt.Sprintf("%d", cfg.Port), cfg.Database)
}

// signalContext cancels on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runChat(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx, cancel := signalContext()
	defer cancel()

	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.db.Close()

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".nlsql_history")
	}

	ui := chat.NewUI(flagNoColor, !flagNoMarkdown)
	client := chat.NewClient(ui, a.pipe, a.provider, database.Describe(&a.cfg.Database), historyFile)
	return client.Run(ctx)
}

func runServe(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx, cancel := signalContext()
	defer cancel()

	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.db.Close()

	// Reload model settings and query limits when the config file changes.
	// Connection and listener settings still require a restart.
	if _, statErr := os.Stat(flagConfigFile); statErr == nil {
		reloadable := config.NewReloadableConfig(a.cfg, flagConfigFile, a.cliFlags)
		reloadable.OnReload(func(newCfg *config.Config) {
			a.exec.SetLimits(executor.Limits{
				MaxRows: newCfg.Query.MaxRows,
				Timeout: time.Duration(newCfg.Query.TimeoutSeconds) * time.Second,
			})
			a.model.Reconfigure(newCfg.LLM)
		})
		watcher, werr := config.NewFileWatcher(flagConfigFile, reloadable.Reload)
		if werr != nil {
			logging.Warn("config watcher unavailable", "error", werr.Error())
		} else {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	server := api.NewServer(a.cfg.HTTP.Address, a.pipe, a.provider)
	return server.Run(ctx)
}

func runSchema(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx, cancel := signalContext()
	defer cancel()

	a, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.db.Close()

	if flagSchemaRefresh {
		if _, err := a.provider.Refresh(ctx); err != nil {
			return err
		}
	}

	d := a.provider.Current()
	if flagSchemaDetailed {
		fmt.Println(schema.Detailed(d, flagSchemaTables))
	} else {
		fmt.Println(schema.Overview(d))
	}
	return nil
}
