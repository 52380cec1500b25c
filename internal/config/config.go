package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type App struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// DB
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     string `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"postgres"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"permit_course"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	// Redis
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// RabbitMQ; empty disables the publisher and the payment consumer.
	AMQPURL         string `envconfig:"AMQP_URL"`
	AMQPExchange    string `envconfig:"AMQP_EXCHANGE" default:"permit.events"`
	PaymentQueue    string `envconfig:"PAYMENT_QUEUE" default:"progress.payment_paid"`
	PaymentPrefetch int    `envconfig:"PAYMENT_PREFETCH" default:"16"`

	// S3/MinIO receipt archive; empty endpoint disables archiving.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3Region    string `envconfig:"S3_REGION"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"dmv-receipts"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`

	// Auth
	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`
	WebhookSecret string `envconfig:"PAYMENT_WEBHOOK_SECRET"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	// Course
	CourseRequiredSeconds int `envconfig:"COURSE_REQUIRED_SECONDS" default:"21600"`

	// Tracing; empty endpoint disables export.
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"OTEL_SERVICE_NAME" default:"course-backend"`
}

// Load reads an optional .env file and then the process environment.
func Load() (App, error) {
	_ = godotenv.Load()

	var c App
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	if c.JWTSecret == "" {
		return c, fmt.Errorf("JWT_SECRET is required")
	}
	if c.CourseRequiredSeconds <= 0 {
		return c, fmt.Errorf("COURSE_REQUIRED_SECONDS must be positive, got %d", c.CourseRequiredSeconds)
	}
	return c, nil
}

func (c App) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

func (c App) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "prod", "production":
		return true
	}
	return false
}

// CORSOrigins is the comma-joined form fiber's cors middleware expects.
func (c App) CORSOrigins() string {
	return strings.Join(c.AllowedOrigins, ",")
}
