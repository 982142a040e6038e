package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration parameters, loaded from environment variables.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Outbound SWORD requests
	UserAgent           string        `envconfig:"SWORD_USER_AGENT" default:"sword-client/1.0"`
	OutboundTimeout     time.Duration `envconfig:"SWORD_OUTBOUND_TIMEOUT" default:"20s"`
	MaxContributors     int           `envconfig:"SWORD_MAX_CONTRIBUTORS" default:"30"`
	RefreshCronSchedule string        `envconfig:"REFRESH_CRON_SCHEDULE" default:"17 */2 * * *"`

	// Record files live in S3-compatible object storage.
	S3Key    string `envconfig:"S3_KEY" required:"true"`
	S3Secret string `envconfig:"S3_SECRET" required:"true"`
	S3URL    string `envconfig:"S3_URL" required:"true"`
	S3Region string `envconfig:"S3_REGION" required:"true"`
	S3Bucket string `envconfig:"S3_BUCKET" required:"true"`

	// arXiv deposit debugging: verbose remote responses and no-op deposits.
	ArxivVerbose bool `envconfig:"ARXIV_VERBOSE" default:"false"`
	ArxivDryRun  bool `envconfig:"ARXIV_DRY_RUN" default:"false"`

	// Optional credentials used to seed a default arXiv server on first boot.
	SeedArxivUsername string `envconfig:"SEED_ARXIV_USERNAME"`
	SeedArxivPassword string `envconfig:"SEED_ARXIV_PASSWORD"`
	SeedArxivEmail    string `envconfig:"SEED_ARXIV_EMAIL"`
}

// DSN returns the Data Source Name for the PostgreSQL connection.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
