package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/caarlos0/env/v11"
)

// ParseEnv fills target from environment variables using env struct tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("failed to parse env: %w", err)
	}

	return nil
}

// PostgresEnv holds Postgres credentials.
type PostgresEnv struct {
	Host     string `env:"ORDER_PGBOUNCER_HOST" envDefault:"localhost"`
	Port     int    `env:"ORDER_PG_PORT" envDefault:"5432"`
	User     string `env:"ORDER_PG_USER"`
	Password string `env:"ORDER_PG_PASSWORD"`
	DB       string `env:"ORDER_PG_DB"`
	SSLMode  string `env:"ORDER_PG_SSLMODE" envDefault:"disable"`
}

// DSN returns a libpq style connection string.
func (e PostgresEnv) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		e.Host, e.Port, e.User, e.Password, e.DB, e.SSLMode,
	)
}

// RabbitMQEnv holds RabbitMQ credentials.
type RabbitMQEnv struct {
	User     string `env:"RABBITMQ_DEFAULT_USER" envDefault:"guest"`
	Password string `env:"RABBITMQ_DEFAULT_PASS" envDefault:"guest"`
	Host     string `env:"RABBITMQ_HOST" envDefault:"rabbitmq"`
	Port     int    `env:"RABBITMQ_PORT" envDefault:"5672"`
}

// URL returns the AMQP connection url.
func (e RabbitMQEnv) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(e.User, e.Password),
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
		Path:   "/",
	}

	return u.String()
}

// KafkaEnv holds the Kafka bootstrap brokers.
type KafkaEnv struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"kafka:9092"`
}

// RedisEnv holds Redis connection settings.
type RedisEnv struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"redis:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}
