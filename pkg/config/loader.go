package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app/configs")

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	viper.BindEnv("http.port", "HTTP_PORT", "APP_HTTP_PORT")
	viper.BindEnv("database.url", "DATABASE_URL", "APP_DATABASE_URL")
	viper.BindEnv("redis.url", "REDIS_URL", "APP_REDIS_URL")
	viper.BindEnv("queue.url", "QUEUE_URL", "NATS_URL", "APP_QUEUE_URL")
	viper.BindEnv("mqtt.broker_url", "MQTT_BROKER_URL", "APP_MQTT_BROKER_URL")
	viper.BindEnv("jwt.secret", "JWT_SECRET", "APP_JWT_SECRET")
	viper.BindEnv("secrets.master_key", "MASTER_KEY", "APP_MASTER_KEY")
	viper.BindEnv("vault.address", "VAULT_ADDR")
	viper.BindEnv("vault.token", "VAULT_TOKEN")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine: env vars plus defaults carry a deploy.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "csms")
	viper.SetDefault("app.version", "dev")
	viper.SetDefault("app.environment", "development")

	viper.SetDefault("http.port", 8080)
	viper.SetDefault("http.read_timeout", 15*time.Second)
	viper.SetDefault("http.write_timeout", 15*time.Second)
	viper.SetDefault("http.idle_timeout", 60*time.Second)

	viper.SetDefault("ocpp.listen_addr", ":9000")
	viper.SetDefault("ocpp.heartbeat_interval", 60*time.Second)
	viper.SetDefault("ocpp.offline_timeout", 90*time.Second)
	viper.SetDefault("ocpp.call_timeout", 30*time.Second)
	viper.SetDefault("ocpp.dedup_window", 120*time.Second)
	viper.SetDefault("ocpp.session_stale_timeout", 24*time.Hour)
	viper.SetDefault("ocpp.authorize_cache_ttl", 300*time.Second)
	viper.SetDefault("ocpp.outbound_queue_depth", 64)
	viper.SetDefault("ocpp.inbound_buffer_depth", 256)
	viper.SetDefault("ocpp.auto_provision", true)
	viper.SetDefault("ocpp.watchdog_grace", 30*time.Second)
	viper.SetDefault("ocpp.sweep_interval", 10*time.Minute)

	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.client_id", "csms-core")
	viper.SetDefault("mqtt.connect_timeout", 10*time.Second)

	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	viper.SetDefault("database.auto_migrate", true)

	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.dial_timeout", 5*time.Second)

	viper.SetDefault("queue.driver", "nats")
	viper.SetDefault("queue.max_reconnects", 10)
	viper.SetDefault("queue.reconnect_wait", 2*time.Second)

	viper.SetDefault("prometheus.enabled", true)
	viper.SetDefault("prometheus.path", "/metrics")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("rate_limiting.enabled", true)
	viper.SetDefault("rate_limiting.max_requests", 100)
	viper.SetDefault("rate_limiting.window", time.Minute)

	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 3)
	viper.SetDefault("circuit_breaker.interval", time.Minute)
	viper.SetDefault("circuit_breaker.timeout", 30*time.Second)
	viper.SetDefault("circuit_breaker.failure_threshold", 0.6)

	viper.SetDefault("pricing.default_per_kwh", 0)
	viper.SetDefault("pricing.currency", "COP")
}
