package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"torrent-catalog/torrentinfo"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	Env          string        `yaml:"env"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Domain       string        `yaml:"domain"`
	LogLevel     string        `yaml:"log_level"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"ssl_mode"`
	Dir             string        `yaml:"dir"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CatalogConfig controls how uploaded torrents are validated and stored.
type CatalogConfig struct {
	DataDir        string `yaml:"data_dir"`
	MaxPieces      int    `yaml:"max_pieces"`
	MaxUploadSize  int64  `yaml:"max_upload_size"`
	PathConvention string `yaml:"path_convention"`
	Compression    string `yaml:"compression"`
	CacheSize      int    `yaml:"cache_size"`
}

type AuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Realm    string `yaml:"realm"`
}

var defaultPaths = []string{
	"config.yaml",
	"config/config.yaml",
	"/etc/torrent-catalog/config.yaml",
}

// LoadConfig reads the YAML file at configPath, or the first file found in
// the default locations when configPath is empty.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		for _, path := range defaultPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}

		if configPath == "" {
			return nil, fmt.Errorf("no configuration file found in default paths")
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.createDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a configuration document, applies defaults and environment
// overrides, and validates the result. It touches no files.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()
	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "3000"
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.Domain == "" {
		c.Server.Domain = "localhost"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Name == "" {
		c.Database.Name = "torrent_catalog.db"
	}
	if c.Database.Dir == "" {
		c.Database.Dir = "./data/db"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}

	if c.Catalog.DataDir == "" {
		c.Catalog.DataDir = "./data/torrents"
	}
	if c.Catalog.MaxPieces == 0 {
		c.Catalog.MaxPieces = torrentinfo.DefaultMaxPieces
	}
	if c.Catalog.MaxUploadSize == 0 {
		c.Catalog.MaxUploadSize = 10 << 20
	}
	if c.Catalog.PathConvention == "" {
		c.Catalog.PathConvention = "auto"
	}
	if c.Catalog.Compression == "" {
		c.Catalog.Compression = "zstd"
	}
	if c.Catalog.CacheSize == 0 {
		c.Catalog.CacheSize = 256
	}

	if c.Auth.Username == "" {
		c.Auth.Username = "admin"
	}
	if c.Auth.Password == "" {
		c.Auth.Password = "password"
	}
	if c.Auth.Realm == "" {
		c.Auth.Realm = "Torrent Catalog"
	}
}

func (c *Config) overrideWithEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Port = port
	}
	if env := os.Getenv("ENV"); env != "" {
		c.Server.Env = env
	}
	if domain := os.Getenv("DOMAIN"); domain != "" {
		c.Server.Domain = domain
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Server.LogLevel = level
	}

	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		c.Database.Name = dbName
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		c.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		c.Database.Port = dbPort
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		c.Database.User = dbUser
	}
	if dbPass := os.Getenv("DB_PASSWORD"); dbPass != "" {
		c.Database.Password = dbPass
	}

	if dataDir := os.Getenv("CATALOG_DIR"); dataDir != "" {
		c.Catalog.DataDir = dataDir
	}
	if maxPieces := os.Getenv("CATALOG_MAX_PIECES"); maxPieces != "" {
		if n, err := strconv.Atoi(maxPieces); err == nil {
			c.Catalog.MaxPieces = n
		}
	}
	if conv := os.Getenv("CATALOG_PATH_CONVENTION"); conv != "" {
		c.Catalog.PathConvention = conv
	}
	if compression := os.Getenv("CATALOG_COMPRESSION"); compression != "" {
		c.Catalog.Compression = compression
	}

	if authEnabled := os.Getenv("AUTH_ENABLED"); authEnabled != "" {
		if enabled, err := strconv.ParseBool(authEnabled); err == nil {
			c.Auth.Enabled = enabled
		}
	}
	if username := os.Getenv("WEBDAV_USERNAME"); username != "" {
		c.Auth.Username = username
	}
	if password := os.Getenv("WEBDAV_PASSWORD"); password != "" {
		c.Auth.Password = password
	}
}

func (c *Config) createDirectories() error {
	dirs := []string{c.Catalog.DataDir}
	if c.Database.Driver == "sqlite" {
		dirs = append(dirs, c.Database.Dir)
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}

	supportedDrivers := map[string]bool{
		"sqlite":    true,
		"mysql":     true,
		"postgres":  true,
		"sqlserver": true,
	}

	if !supportedDrivers[c.Database.Driver] {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.Database.Driver {
	case "mysql", "postgres", "sqlserver":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required for %s", c.Database.Driver)
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required for %s", c.Database.Driver)
		}
	}

	if c.Catalog.MaxPieces < 1 {
		return fmt.Errorf("catalog max_pieces must be positive, got %d", c.Catalog.MaxPieces)
	}
	if c.Catalog.MaxUploadSize < 1 {
		return fmt.Errorf("catalog max_upload_size must be positive, got %d", c.Catalog.MaxUploadSize)
	}
	if _, err := torrentinfo.ParseConvention(c.Catalog.PathConvention); err != nil {
		return fmt.Errorf("catalog path_convention: %w", err)
	}
	switch c.Catalog.Compression {
	case "none", "zstd", "lz4":
	default:
		return fmt.Errorf("unsupported catalog compression: %s", c.Catalog.Compression)
	}

	return nil
}

func (c *Config) GetGinMode() string {
	if c.Server.Env == "production" {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}

// LogLevel maps server.log_level to a slog level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.Server.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", c.Server.LogLevel)
	}
	return level, nil
}

// ParseOptions returns the torrent parsing options implied by the catalog
// section.
func (c *CatalogConfig) ParseOptions() []torrentinfo.Option {
	conv, err := torrentinfo.ParseConvention(c.PathConvention)
	if err != nil {
		conv = torrentinfo.DefaultConvention()
	}
	return []torrentinfo.Option{
		torrentinfo.WithMaxPieces(c.MaxPieces),
		torrentinfo.WithConvention(conv),
	}
}

func (c *DatabaseConfig) GetConnectionString() string {
	switch c.Driver {
	case "sqlite":
		return filepath.Join(c.Dir, c.Name)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.Name)
	case "postgres":
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode)
	case "sqlserver":
		return fmt.Sprintf("sqlserver://%s:%s@%s:%s?database=%s",
			c.User, c.Password, c.Host, c.Port, c.Name)
	default:
		return ""
	}
}
