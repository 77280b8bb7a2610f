package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	S3        S3Config
	Engine    EngineConfig
	Scheduler SchedulerConfig
	Security  SecurityConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Debug       bool
	URL         string
	FrontendURL string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type JWTConfig struct {
	Secret       string
	Issuer       string
	AccessExpiry time.Duration
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	PresignExpiry   time.Duration
}

// EngineConfig holds execution engine limits and the defaults applied when a
// workspace plan leaves a limit unset.
type EngineConfig struct {
	MinTriggersPerWorkflow  int
	MaxTriggersPerWorkflow  int
	MaxConcurrentExecutions int
	MaxParallelNodes        int
	Concurrency             int
	CancelGracePeriod       time.Duration
	RetryBackoff            time.Duration
	MaxRetryBackoff         time.Duration
	AdmissionRetryDelay     time.Duration
	MetricsAddr             string
}

type SchedulerConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	GlobalRateLimit int
	WorkspaceLimit  int
	LeaderKey       string
	LeaderTTL       time.Duration
	ShutdownTimeout time.Duration

	// Triggers whose next run is older than MisfireThreshold are skipped
	// forward instead of fired.
	MisfireThreshold time.Duration
	StaleThreshold   time.Duration
	CleanupInterval  time.Duration
	RetentionDays    int
	MaxQueueDepth    int64
	MetricsAddr      string
}

type SecurityConfig struct {
	EncryptionKey string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config

	// App
	cfg.App.Name = viper.GetString("app.name")
	cfg.App.Environment = viper.GetString("app.environment")
	cfg.App.Debug = viper.GetBool("app.debug")
	cfg.App.URL = viper.GetString("app.url")
	cfg.App.FrontendURL = viper.GetString("app.frontend_url")

	// Server
	cfg.Server.Host = viper.GetString("server.host")
	cfg.Server.Port = viper.GetInt("server.port")
	cfg.Server.ReadTimeout = viper.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = viper.GetDuration("server.write_timeout")
	cfg.Server.IdleTimeout = viper.GetDuration("server.idle_timeout")

	// Database
	cfg.Database.Host = viper.GetString("database.host")
	cfg.Database.Port = viper.GetInt("database.port")
	cfg.Database.User = viper.GetString("database.user")
	cfg.Database.Password = viper.GetString("database.password")
	cfg.Database.Name = viper.GetString("database.name")
	cfg.Database.SSLMode = viper.GetString("database.sslmode")
	cfg.Database.MaxOpenConns = viper.GetInt("database.max_open_conns")
	cfg.Database.MaxIdleConns = viper.GetInt("database.max_idle_conns")
	cfg.Database.ConnMaxLifetime = viper.GetDuration("database.conn_max_lifetime")

	// Redis
	cfg.Redis.Host = viper.GetString("redis.host")
	cfg.Redis.Port = viper.GetInt("redis.port")
	cfg.Redis.Password = viper.GetString("redis.password")
	cfg.Redis.DB = viper.GetInt("redis.db")

	// JWT
	cfg.JWT.Secret = viper.GetString("jwt.secret")
	cfg.JWT.Issuer = viper.GetString("jwt.issuer")
	cfg.JWT.AccessExpiry = viper.GetDuration("jwt.access_expiry")

	// S3
	cfg.S3.Endpoint = viper.GetString("s3.endpoint")
	cfg.S3.Region = viper.GetString("s3.region")
	cfg.S3.Bucket = viper.GetString("s3.bucket")
	cfg.S3.AccessKeyID = viper.GetString("s3.access_key_id")
	cfg.S3.SecretAccessKey = viper.GetString("s3.secret_access_key")
	cfg.S3.UseSSL = viper.GetBool("s3.use_ssl")
	cfg.S3.PresignExpiry = viper.GetDuration("s3.presign_expiry")

	// Engine
	cfg.Engine.MinTriggersPerWorkflow = viper.GetInt("engine.min_triggers_per_workflow")
	cfg.Engine.MaxTriggersPerWorkflow = viper.GetInt("engine.max_triggers_per_workflow")
	cfg.Engine.MaxConcurrentExecutions = viper.GetInt("engine.max_concurrent_executions")
	cfg.Engine.MaxParallelNodes = viper.GetInt("engine.max_parallel_nodes")
	cfg.Engine.Concurrency = viper.GetInt("engine.concurrency")
	cfg.Engine.CancelGracePeriod = viper.GetDuration("engine.cancel_grace_period")
	cfg.Engine.RetryBackoff = viper.GetDuration("engine.retry_backoff")
	cfg.Engine.MaxRetryBackoff = viper.GetDuration("engine.max_retry_backoff")
	cfg.Engine.AdmissionRetryDelay = viper.GetDuration("engine.admission_retry_delay")
	cfg.Engine.MetricsAddr = viper.GetString("engine.metrics_addr")

	// Scheduler
	cfg.Scheduler.PollInterval = viper.GetDuration("scheduler.poll_interval")
	cfg.Scheduler.BatchSize = viper.GetInt("scheduler.batch_size")
	cfg.Scheduler.GlobalRateLimit = viper.GetInt("scheduler.global_rate_limit")
	cfg.Scheduler.WorkspaceLimit = viper.GetInt("scheduler.workspace_limit")
	cfg.Scheduler.LeaderKey = viper.GetString("scheduler.leader_key")
	cfg.Scheduler.LeaderTTL = viper.GetDuration("scheduler.leader_ttl")
	cfg.Scheduler.ShutdownTimeout = viper.GetDuration("scheduler.shutdown_timeout")
	cfg.Scheduler.MisfireThreshold = viper.GetDuration("scheduler.misfire_threshold")
	cfg.Scheduler.StaleThreshold = viper.GetDuration("scheduler.stale_threshold")
	cfg.Scheduler.CleanupInterval = viper.GetDuration("scheduler.cleanup_interval")
	cfg.Scheduler.RetentionDays = viper.GetInt("scheduler.retention_days")
	cfg.Scheduler.MaxQueueDepth = viper.GetInt64("scheduler.max_queue_depth")
	cfg.Scheduler.MetricsAddr = viper.GetString("scheduler.metrics_addr")

	// Security
	cfg.Security.EncryptionKey = viper.GetString("security.encryption_key")

	return &cfg, nil
}

func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "scriptflow")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", true)
	viper.SetDefault("app.url", "http://localhost:8080")
	viper.SetDefault("app.frontend_url", "http://localhost:3000")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "15s")
	viper.SetDefault("server.write_timeout", "15s")
	viper.SetDefault("server.idle_timeout", "60s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.name", "scriptflow")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// JWT defaults
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.issuer", "scriptflow")
	viper.SetDefault("jwt.access_expiry", "15m")

	// Security defaults
	viper.SetDefault("security.encryption_key", "change-me-in-production")

	// S3 defaults
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.use_ssl", true)
	viper.SetDefault("s3.presign_expiry", "15m")

	// Engine defaults
	viper.SetDefault("engine.min_triggers_per_workflow", 1)
	viper.SetDefault("engine.max_triggers_per_workflow", 10)
	viper.SetDefault("engine.max_concurrent_executions", 10)
	viper.SetDefault("engine.max_parallel_nodes", 4)
	viper.SetDefault("engine.concurrency", 10)
	viper.SetDefault("engine.cancel_grace_period", "30s")
	viper.SetDefault("engine.retry_backoff", "1s")
	viper.SetDefault("engine.max_retry_backoff", "30s")
	viper.SetDefault("engine.admission_retry_delay", "5s")
	viper.SetDefault("engine.metrics_addr", ":9091")

	// Scheduler defaults
	viper.SetDefault("scheduler.poll_interval", "1s")
	viper.SetDefault("scheduler.batch_size", 100)
	viper.SetDefault("scheduler.global_rate_limit", 1000)
	viper.SetDefault("scheduler.workspace_limit", 100)
	viper.SetDefault("scheduler.leader_key", "scheduler:leader")
	viper.SetDefault("scheduler.leader_ttl", "30s")
	viper.SetDefault("scheduler.shutdown_timeout", "30s")
	viper.SetDefault("scheduler.misfire_threshold", "1h")
	viper.SetDefault("scheduler.stale_threshold", "10m")
	viper.SetDefault("scheduler.cleanup_interval", "1h")
	viper.SetDefault("scheduler.retention_days", 30)
	viper.SetDefault("scheduler.max_queue_depth", 10000)
	viper.SetDefault("scheduler.metrics_addr", ":9092")
}
