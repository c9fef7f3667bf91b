package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Storage       StorageConfig       `yaml:"storage"`
	SIS           SISConfig           `yaml:"sis"`
	Sync          SyncConfig          `yaml:"sync"`
	Workers       WorkersConfig       `yaml:"workers"`
	Auth          AuthConfig          `yaml:"auth"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	AllowOrigins    []string      `yaml:"allow_origins"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
	AutoMigrate        bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	PoolSize       int    `yaml:"pool_size"`
	IngestionQueue string `yaml:"ingestion_queue"`
	SyncQueue      string `yaml:"sync_queue"`
	DLQSuffix      string `yaml:"dlq_suffix"`
	EventChannel   string `yaml:"event_channel"`
	LockPrefix     string `yaml:"lock_prefix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// SISConfig is passed explicitly to the SIS client and sync engine.
type SISConfig struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	DebugMode bool          `yaml:"debug_mode"`
}

type SyncConfig struct {
	LockTTL        time.Duration `yaml:"lock_ttl"`
	ArchivePayload bool          `yaml:"archive_payload"`
	ArchivePrefix  string        `yaml:"archive_prefix"`
	DefaultLang    string        `yaml:"default_lang"`
	DefaultAuth    string        `yaml:"default_auth"`
}

type WorkersConfig struct {
	Ingestion IngestionWorkerConfig `yaml:"ingestion"`
	Sync      SyncWorkerConfig      `yaml:"sync"`
	Pull      PullWorkerConfig      `yaml:"pull"`
}

type IngestionWorkerConfig struct {
	Count int `yaml:"count"`
}

type SyncWorkerConfig struct {
	Count int `yaml:"count"`
}

type PullWorkerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	RunOnStart bool          `yaml:"run_on_start"`
	Term       string        `yaml:"term"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ObservabilityConfig struct {
	SentryDSN string `yaml:"sentry_dsn"`
}

// Load reads CONFIG_PATH (default config.yaml). A .env file next to the
// process is loaded first so ${VAR} references in the YAML resolve.
func Load() (*Config, error) {
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 10 << 20
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.Loc == "" {
		c.Database.Loc = "UTC"
	}
	if c.Redis.IngestionQueue == "" {
		c.Redis.IngestionQueue = "grade_ingestion"
	}
	if c.Redis.SyncQueue == "" {
		c.Redis.SyncQueue = "sis_sync"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.Redis.EventChannel == "" {
		c.Redis.EventChannel = "composite_events"
	}
	if c.Redis.LockPrefix == "" {
		c.Redis.LockPrefix = "sis_sync_lock:"
	}
	if c.SIS.Timeout == 0 {
		c.SIS.Timeout = 30 * time.Second
	}
	if c.SIS.UserAgent == "" {
		c.SIS.UserAgent = "IEAP-Grade-Sync/1.0"
	}
	if c.Sync.LockTTL == 0 {
		c.Sync.LockTTL = time.Hour
	}
	if c.Sync.ArchivePrefix == "" {
		c.Sync.ArchivePrefix = "sis-payloads"
	}
	if c.Sync.DefaultLang == "" {
		c.Sync.DefaultLang = "en"
	}
	if c.Sync.DefaultAuth == "" {
		c.Sync.DefaultAuth = "manual"
	}
	if c.Workers.Ingestion.Count == 0 {
		c.Workers.Ingestion.Count = 2
	}
	if c.Workers.Sync.Count == 0 {
		c.Workers.Sync.Count = 1
	}
	if c.Workers.Pull.Interval == 0 {
		c.Workers.Pull.Interval = 24 * time.Hour
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate reports missing settings. SIS settings are only required when the
// integration is enabled.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.Host == "" {
		missing = append(missing, "database.host")
	}
	if c.Database.Name == "" {
		missing = append(missing, "database.name")
	}
	if c.SIS.Enabled {
		if c.SIS.BaseURL == "" {
			missing = append(missing, "sis.base_url")
		}
		if c.SIS.APIKey == "" {
			missing = append(missing, "sis.api_key")
		}
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "auth.jwt_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	if c.SIS.Timeout < 0 || c.Sync.LockTTL < 0 {
		return fmt.Errorf("sis.timeout and sync.lock_ttl must be positive")
	}
	return nil
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
