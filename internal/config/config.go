package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreS3       = "s3"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`

	StoreBackend string `mapstructure:"STORE_BACKEND"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	S3Endpoint   string `mapstructure:"S3_ENDPOINT"`
	S3AccessKey  string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey  string `mapstructure:"S3_SECRET_KEY"`
	S3Bucket     string `mapstructure:"S3_BUCKET"`
	S3UseSSL     bool   `mapstructure:"S3_USE_SSL"`
	SelectionKey string `mapstructure:"SELECTION_KEY"`

	SessionIdleTTL time.Duration `mapstructure:"SESSION_IDLE_TTL"`

	CatalogPath string `mapstructure:"CATALOG_PATH"`

	LocatorURL      string `mapstructure:"LOCATOR_URL"`
	LocationQuery   string `mapstructure:"LOCATION_QUERY"`
	LocationCountry string `mapstructure:"LOCATION_COUNTRY"`
	NominatimURL    string `mapstructure:"NOMINATIM_URL"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`
}

func Load() (Config, error) {
	return load(".env")
}

func load(envFile string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("STORE_BACKEND", StoreMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_BUCKET", "placepicker")
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("SELECTION_KEY", "selectedPlaces")
	v.SetDefault("SESSION_IDLE_TTL", "30m")
	v.SetDefault("CATALOG_PATH", "")
	v.SetDefault("LOCATOR_URL", "")
	v.SetDefault("LOCATION_QUERY", "")
	v.SetDefault("LOCATION_COUNTRY", "")
	v.SetDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "placepicker.selections")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
