package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/hyperapi/internal/cache"
	"github.com/conduit-lang/hyperapi/internal/logging"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/database"
	"github.com/conduit-lang/hyperapi/internal/state"
	"github.com/conduit-lang/hyperapi/internal/web/middleware"
	"github.com/conduit-lang/hyperapi/internal/web/server"
)

// EnvPrefix prefixes the environment variables overriding the file, e.g.
// HYPERAPI_SERVER_PORT
const EnvPrefix = "HYPERAPI"

// FileName is the configuration file looked up in the working directory,
// with a .yaml or .yml extension
const FileName = "hyperapi"

// Config represents the application configuration
type Config struct {
	Server     ServerConfig          `mapstructure:"server"`
	Database   database.Config       `mapstructure:"database"`
	Cache      cache.Config          `mapstructure:"cache"`
	API        APIConfig             `mapstructure:"api"`
	Pagination PaginationConfig      `mapstructure:"pagination"`
	Logging    logging.Config        `mapstructure:"logging"`
	CORS       middleware.CORSConfig `mapstructure:"cors"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`

	// APIPrefix prefixes every generated route, e.g. "/api"
	APIPrefix string `mapstructure:"api_prefix"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`

	// Debug exposes server error messages in error documents
	Debug bool `mapstructure:"debug"`

	TLS server.TLSConfig `mapstructure:"tls"`
}

// Address returns host:port
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// APIConfig configures the resource metadata
type APIConfig struct {
	Title string `mapstructure:"title"`

	// Formats are the default output formats, by name; the first one is
	// served when the client does not choose
	Formats []string `mapstructure:"formats"`

	// ResourcePaths are YAML declaration files or directories
	ResourcePaths []string `mapstructure:"resource_paths"`
}

// PaginationConfig holds the global pagination defaults and the names of
// the query parameters controlling it
type PaginationConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	ClientEnabled         bool   `mapstructure:"client_enabled"`
	ClientItemsPerPage    bool   `mapstructure:"client_items_per_page"`
	ItemsPerPage          int    `mapstructure:"items_per_page"`
	MaximumItemsPerPage   int    `mapstructure:"maximum_items_per_page"`
	PageParameter         string `mapstructure:"page_parameter"`
	ItemsPerPageParameter string `mapstructure:"items_per_page_parameter"`
	EnabledParameter      string `mapstructure:"enabled_parameter"`
}

// Options returns the query parameter names
func (p PaginationConfig) Options() state.PaginationOptions {
	return state.PaginationOptions{
		PageParameter:         p.PageParameter,
		ItemsPerPageParameter: p.ItemsPerPageParameter,
		EnabledParameter:      p.EnabledParameter,
	}
}

// Load reads the configuration. An empty path looks for hyperapi.yaml in
// the working directory; a missing file leaves the defaults. Environment
// variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.api_prefix", "")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.debug", false)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.url", "file:hyperapi.db?cache=shared")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.prefix", "hyperapi:metadata:")
	v.SetDefault("cache.ttl", time.Hour)

	v.SetDefault("api.title", "Hypermedia API")
	v.SetDefault("api.formats", []string{
		metadata.FormatJSONLD, metadata.FormatJSON, metadata.FormatHAL, metadata.FormatJSONAPI,
	})
	v.SetDefault("api.resource_paths", []string{})

	v.SetDefault("pagination.enabled", true)
	v.SetDefault("pagination.client_enabled", false)
	v.SetDefault("pagination.client_items_per_page", false)
	v.SetDefault("pagination.items_per_page", 30)
	v.SetDefault("pagination.maximum_items_per_page", 0)
	v.SetDefault("pagination.page_parameter", state.DefaultPageParameter)
	v.SetDefault("pagination.items_per_page_parameter", state.DefaultItemsPerPageParameter)
	v.SetDefault("pagination.enabled_parameter", state.DefaultEnabledParameter)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.encoding", "json")

	cors := middleware.DefaultCORSConfig()
	v.SetDefault("cors.allowed_origins", cors.AllowedOrigins)
	v.SetDefault("cors.allowed_methods", cors.AllowedMethods)
	v.SetDefault("cors.allowed_headers", cors.AllowedHeaders)
	v.SetDefault("cors.exposed_headers", cors.ExposedHeaders)
	v.SetDefault("cors.allow_credentials", cors.AllowCredentials)
	v.SetDefault("cors.max_age", cors.MaxAge)
}

// Defaults returns the global metadata defaults the configuration implies
func (c *Config) Defaults() (metadata.Defaults, error) {
	defaults := metadata.DefaultDefaults()
	formats, err := metadata.KnownFormats.Resolve(c.API.Formats)
	if err != nil {
		return defaults, err
	}
	if len(formats) > 0 {
		defaults.Formats = formats
	}
	defaults.RoutePrefix = c.Server.APIPrefix
	defaults.Pagination = metadata.Pagination{
		Enabled:             metadata.Bool(c.Pagination.Enabled),
		ClientEnabled:       metadata.Bool(c.Pagination.ClientEnabled),
		ClientItemsPerPage:  metadata.Bool(c.Pagination.ClientItemsPerPage),
		ItemsPerPage:        c.Pagination.ItemsPerPage,
		MaximumItemsPerPage: c.Pagination.MaximumItemsPerPage,
	}
	return defaults, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Server.APIPrefix != "" {
		if !strings.HasPrefix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must start with '/', got: %s", cfg.Server.APIPrefix)
		}
		if strings.HasSuffix(cfg.Server.APIPrefix, "/") {
			return fmt.Errorf("server.api_prefix must not end with '/', got: %s", cfg.Server.APIPrefix)
		}
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got: %d", cfg.Server.Port)
	}
	if err := cfg.Server.TLS.Validate(); err != nil {
		return fmt.Errorf("server.tls: %w", err)
	}
	if _, err := metadata.KnownFormats.Resolve(cfg.API.Formats); err != nil {
		return fmt.Errorf("api.formats: %w", err)
	}
	if cfg.Pagination.ItemsPerPage < 0 {
		return fmt.Errorf("pagination.items_per_page must not be negative, got: %d", cfg.Pagination.ItemsPerPage)
	}
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}
