package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

type Config struct {
	Port             string
	ConsulAddress    string
	ServiceName      string
	ServiceID        string
	ServiceAddress   string
	RabbitMQUser     string
	RabbitMQPassword string
	RabbitMQHost     string
	RabbitMQPort     string
	JWTSecret        string
	MayanURL         string
	MayanUsername    string
	MayanPassword    string
	BulkWorkers      int
}

func init() {
	ServiceConfig = New()
}

var ServiceConfig *Config

func New() *Config {
	bulk_workers_str := getEnv("BULK_WORKERS", "8")
	bulk_workers, _ := strconv.Atoi(bulk_workers_str)
	if bulk_workers <= 0 {
		bulk_workers = 8
	}

	return &Config{
		Port:             getEnv("PORT", "9200"),
		ConsulAddress:    "consul-server:" + getEnv("CONSUL_PORT", "8500"),
		ServiceName:      getEnv("ACCESS_SERVICE_NAME", "access-service"),
		ServiceID:        getEnv("ACCESS_SERVICE_NAME", "access-service") + "-" + getEnv("ACCESS_HOSTNAME", "1"),
		ServiceAddress:   getEnv("ACCESS_SERVICE_ADDRESS", "access-service"),
		RabbitMQUser:     getEnv("RABBITMQ_USER", ""),
		RabbitMQPassword: getEnv("RABBITMQ_PASSWORD", ""),
		RabbitMQHost:     getEnv("RABBITMQ_HOST", "rabbitmq"),
		RabbitMQPort:     getEnv("RABBITMQ_PORT", "5672"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		MayanURL:         getEnv("MAYAN_URL", "http://mayan:8000"),
		MayanUsername:    getEnv("MAYAN_ADMIN_USER", ""),
		MayanPassword:    getEnv("MAYAN_ADMIN_PASSWORD", ""),
		BulkWorkers:      bulk_workers,
	}
}

// RabbitURI assembles the broker URI; empty when credentials are missing so
// event publishing degrades to disabled instead of failing startup.
func (c *Config) RabbitURI() string {
	if c.RabbitMQUser == "" || c.RabbitMQPassword == "" {
		return ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RabbitMQUser, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Error Retriving ENV: %s not exist", key)
	return fallback
}
