package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"nft-rental-escrow/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AMQP      AMQPConfig      `yaml:"amqp"`
	Log       LogConfig       `yaml:"log"`
	Program   ProgramConfig   `yaml:"program"`
	Queue     QueueConfig     `yaml:"queue"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cranker   CrankerConfig   `yaml:"cranker"`
}

// ServerConfig contains gRPC server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HTTPConfig contains the health/metrics/read API listener
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	Migrate  bool   `yaml:"migrate"`
}

// RedisConfig locates the task queue backend
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AMQPConfig controls lifecycle event publishing. Empty URL disables it.
type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// ProgramConfig identifies the escrow program instance
type ProgramConfig struct {
	ID                   string `yaml:"id"`
	Arbitrator           string `yaml:"arbitrator"`
	MaxConflictRetries   int    `yaml:"max_conflict_retries"`
	SignatureMaxAgeSecs  int    `yaml:"signature_max_age_secs"`
	ScheduleOnRent       bool   `yaml:"schedule_on_rent"`
	ScheduleTimeoutMilli int    `yaml:"schedule_timeout_ms"`
}

// QueueConfig mirrors the settings the external task queue was created with
type QueueConfig struct {
	Name            string `yaml:"name"`
	Capacity        int    `yaml:"capacity"`
	MinCrankReward  uint64 `yaml:"min_crank_reward"`
	StaleTaskAgeSec int    `yaml:"stale_task_age_secs"`
}

// SchedulerConfig contains cron schedule settings for the cranker
type SchedulerConfig struct {
	CrankDueTasks       string `yaml:"crank_due_tasks"`
	SweepExpiredRentals string `yaml:"sweep_expired_rentals"`
	PruneStaleTasks     string `yaml:"prune_stale_tasks"`
}

// CrankerConfig contains the permissionless executor settings
type CrankerConfig struct {
	KeyFile   string `yaml:"key_file"`
	BatchSize int    `yaml:"batch_size"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Redis / AMQP
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}
	if val := os.Getenv("AMQP_URL"); val != "" {
		c.AMQP.URL = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}
	if val := os.Getenv("HTTP_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.HTTP.Port)
	}

	// Program
	if val := os.Getenv("PROGRAM_ID"); val != "" {
		c.Program.ID = val
	}
	if val := os.Getenv("ARBITRATOR"); val != "" {
		c.Program.Arbitrator = val
	}
	if val := os.Getenv("CRANKER_KEY_FILE"); val != "" {
		c.Cranker.KeyFile = val
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = c.Server.Port + 1
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "rental.events"
	}

	if c.Program.ID == "" {
		return fmt.Errorf("program id is required")
	}
	if _, err := domain.ParseAddress(c.Program.ID); err != nil {
		return fmt.Errorf("program id: %w", err)
	}
	if c.Program.Arbitrator != "" {
		if _, err := domain.ParseAddress(c.Program.Arbitrator); err != nil {
			return fmt.Errorf("arbitrator: %w", err)
		}
	}
	if c.Program.MaxConflictRetries <= 0 {
		c.Program.MaxConflictRetries = 3
	}
	if c.Program.SignatureMaxAgeSecs <= 0 {
		c.Program.SignatureMaxAgeSecs = 300
	}
	if c.Program.ScheduleTimeoutMilli <= 0 {
		c.Program.ScheduleTimeoutMilli = 2000
	}

	// Queue defaults follow the end_rental queue the protocol was deployed with.
	if c.Queue.Name == "" {
		c.Queue.Name = "end_rental"
	}
	if c.Queue.Capacity <= 0 {
		c.Queue.Capacity = 100
	}
	if c.Queue.MinCrankReward == 0 {
		c.Queue.MinCrankReward = 10000
	}
	if c.Queue.StaleTaskAgeSec <= 0 {
		c.Queue.StaleTaskAgeSec = 3600
	}

	if c.Scheduler.CrankDueTasks == "" {
		c.Scheduler.CrankDueTasks = "*/15 * * * * *" // every 15 seconds
	}
	if c.Scheduler.SweepExpiredRentals == "" {
		c.Scheduler.SweepExpiredRentals = "0 */5 * * * *" // every 5 minutes
	}
	if c.Scheduler.PruneStaleTasks == "" {
		c.Scheduler.PruneStaleTasks = "0 0 * * * *" // hourly
	}

	if c.Cranker.BatchSize <= 0 {
		c.Cranker.BatchSize = 25
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the gRPC server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetHTTPAddress returns the HTTP listener address
func (c *Config) GetHTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

func (c *Config) ProgramID() domain.Address {
	return domain.MustParseAddress(c.Program.ID)
}

// ArbitratorAddress returns the configured arbitrator, or the zero address
// which disables emergency exits.
func (c *Config) ArbitratorAddress() domain.Address {
	if c.Program.Arbitrator == "" {
		return domain.ZeroAddress
	}
	return domain.MustParseAddress(c.Program.Arbitrator)
}

func (c *Config) StaleTaskAge() time.Duration {
	return time.Duration(c.Queue.StaleTaskAgeSec) * time.Second
}

func (c *Config) SignatureMaxAge() time.Duration {
	return time.Duration(c.Program.SignatureMaxAgeSecs) * time.Second
}

func (c *Config) ScheduleTimeout() time.Duration {
	return time.Duration(c.Program.ScheduleTimeoutMilli) * time.Millisecond
}
