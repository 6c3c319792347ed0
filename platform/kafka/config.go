package kafka

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
)

// Config содержит конфигурацию подключения к Kafka.
// Kafka в checkout опциональна: через неё уходят алерты о недоставленных уведомлениях.
type Config struct {
	Enabled bool `env:"KAFKA_ENABLED" envDefault:"false"`
	// Brokers список брокеров через запятую: "broker1:9092,broker2:9092".
	// go run: localhost:19092, docker: kafka:9092
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:19092"`
	// NotificationDLQTopic топик для уведомлений, исчерпавших попытки доставки
	NotificationDLQTopic string `env:"KAFKA_NOTIFICATION_DLQ_TOPIC" envDefault:"checkout.notification.dlq"`
}

// LoadEnv загружает конфигурацию из переменных окружения через env-теги
func LoadEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse kafka env: %w", err)
	}
	return cfg, nil
}

// Validate проверяет конфигурацию только если Kafka включена
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	for _, b := range c.Brokers {
		if strings.TrimSpace(b) == "" {
			return fmt.Errorf("KAFKA_BROKERS contains empty broker")
		}
	}
	if c.NotificationDLQTopic == "" {
		return fmt.Errorf("KAFKA_NOTIFICATION_DLQ_TOPIC is required when KAFKA_ENABLED=true")
	}
	return nil
}
