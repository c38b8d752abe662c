package config

import (
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Alerts   AlertConfig
	Cache    CacheConfig
	Storage  StorageConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AppConfig struct {
	// Timezone used to bucket snapshot timestamps into calendar days and to
	// resolve the implicit "yesterday" default of the BI commands.
	Timezone string
	LogLevel string
}

// AlertConfig holds the risk-classification thresholds. All of them are
// deploy-time overridable; the classifier consumes them read-only.
type AlertConfig struct {
	DeadStockValueThreshold int     // RON
	PriceSpikePct           float64 // percent
	P0DaysLeft              int     // days
	P1DaysLeft              int     // days
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	ReportTTLSeconds int
}

// StorageConfig points at the S3-compatible bucket the WinMentor stock
// exports are dropped into.
type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		// Set default values
		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 15)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 15)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "stockbi")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("APP_TIMEZONE", "Europe/Bucharest")
		viper.SetDefault("APP_LOG_LEVEL", "info")
		viper.SetDefault("DEAD_STOCK_VALUE_THRESHOLD", 300)
		viper.SetDefault("ALERT_PRICE_SPIKE_PCT", 20.0)
		viper.SetDefault("ALERT_P0_DAYS_LEFT", 7)
		viper.SetDefault("ALERT_P1_DAYS_LEFT", 14)
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_REPORT_TTL_SECONDS", 300)
		viper.SetDefault("STORAGE_ENDPOINT", "")
		viper.SetDefault("STORAGE_ACCESS_KEY", "")
		viper.SetDefault("STORAGE_SECRET_KEY", "")
		viper.SetDefault("STORAGE_BUCKET", "winmentor-exports")
		viper.SetDefault("STORAGE_REGION", "")
		viper.SetDefault("STORAGE_USE_SSL", true)

		// Read from environment variables
		viper.AutomaticEnv()

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			App: AppConfig{
				Timezone: viper.GetString("APP_TIMEZONE"),
				LogLevel: viper.GetString("APP_LOG_LEVEL"),
			},
			Alerts: AlertConfig{
				DeadStockValueThreshold: viper.GetInt("DEAD_STOCK_VALUE_THRESHOLD"),
				PriceSpikePct:           viper.GetFloat64("ALERT_PRICE_SPIKE_PCT"),
				P0DaysLeft:              viper.GetInt("ALERT_P0_DAYS_LEFT"),
				P1DaysLeft:              viper.GetInt("ALERT_P1_DAYS_LEFT"),
			},
			Cache: CacheConfig{
				Enabled:          viper.GetBool("CACHE_ENABLED"),
				RedisURL:         viper.GetString("REDIS_URL"),
				RedisHost:        viper.GetString("REDIS_HOST"),
				RedisPort:        viper.GetString("REDIS_PORT"),
				RedisPassword:    viper.GetString("REDIS_PASSWORD"),
				RedisDB:          viper.GetInt("REDIS_DB"),
				ReportTTLSeconds: viper.GetInt("CACHE_REPORT_TTL_SECONDS"),
			},
			Storage: StorageConfig{
				Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
				AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
				Bucket:    viper.GetString("STORAGE_BUCKET"),
				Region:    viper.GetString("STORAGE_REGION"),
				UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
			},
		}
	})

	return instance
}
