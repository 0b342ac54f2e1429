package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"readTimeout"`
		WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	} `mapstructure:"server"`
	Database struct {
		PostgresDSN         string        `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool          `mapstructure:"postgresAutoMigrate"`
		MaxOpenConns        int           `mapstructure:"maxOpenConns"`
		MaxIdleConns        int           `mapstructure:"maxIdleConns"`
		ConnMaxLifetime     time.Duration `mapstructure:"connMaxLifetime"`
		OperationTimeout    time.Duration `mapstructure:"operationTimeout"` // upper bound for retried DB operations
	} `mapstructure:"database"`
	Webhook struct {
		VerifyToken    string        `mapstructure:"verifyToken"`
		AppSecret      string        `mapstructure:"appSecret"` // empty disables signature checks unless an organization carries its own secret
		ProcessTimeout time.Duration `mapstructure:"processTimeout"`
		MaxBodyBytes   int64         `mapstructure:"maxBodyBytes"`
	} `mapstructure:"webhook"`
	WorkerPools struct {
		Webhook WorkerPoolConfig `mapstructure:"webhook"`
	} `mapstructure:"workerPools"`
	WhatsApp struct {
		BaseURL    string        `mapstructure:"baseURL"`
		APIVersion string        `mapstructure:"apiVersion"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"whatsapp"`
	Media struct {
		Dir            string `mapstructure:"dir"`
		MaxUploadBytes int64  `mapstructure:"maxUploadBytes"`
	} `mapstructure:"media"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"`
		Issuer    string `mapstructure:"issuer"`
	} `mapstructure:"auth"`
	Realtime struct {
		Broker       string        `mapstructure:"broker"` // none, nats or amqp
		SendBuffer   int           `mapstructure:"sendBuffer"`
		PingInterval time.Duration `mapstructure:"pingInterval"`
		NATS         struct {
			URL           string `mapstructure:"url"`
			Stream        string `mapstructure:"stream"`
			SubjectPrefix string `mapstructure:"subjectPrefix"`
		} `mapstructure:"nats"`
		AMQP struct {
			URL      string `mapstructure:"url"`
			Exchange string `mapstructure:"exchange"`
		} `mapstructure:"amqp"`
	} `mapstructure:"realtime"`
	Cache struct {
		OrganizationTTL time.Duration `mapstructure:"organizationTTL"`
	} `mapstructure:"cache"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`

	v *viper.Viper
}

// WorkerPoolConfig holds configuration for an ants worker pool
type WorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Max tasks waiting for a worker
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// LoadConfig reads configuration from .env, the yaml file and environment variables
func LoadConfig(path string) (*Config, error) {
	// .env is optional; real environment variables always win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("default")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.daisi-wa-support-console")
	v.AddConfigPath("/etc/daisi-wa-support-console")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, Config{})

	// Flat names used by the deployment manifests.
	overrides := map[string]string{
		"POSTGRES_DSN":         "database.postgresDSN",
		"LOG_LEVEL":            "logLevel",
		"WEBHOOK_VERIFY_TOKEN": "webhook.verifyToken",
		"WHATSAPP_APP_SECRET":  "webhook.appSecret",
		"JWT_SECRET":           "auth.jwtSecret",
		"NATS_URL":             "realtime.nats.url",
		"AMQP_URL":             "realtime.amqp.url",
	}
	for env, key := range overrides {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.v = v

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 15*time.Second)
	v.SetDefault("server.writeTimeout", 60*time.Second)
	v.SetDefault("server.shutdownTimeout", 30*time.Second)

	v.SetDefault("database.postgresAutoMigrate", true)
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", 30*time.Minute)
	v.SetDefault("database.operationTimeout", 5*time.Second)

	v.SetDefault("webhook.processTimeout", 60*time.Second)
	v.SetDefault("webhook.maxBodyBytes", 4<<20)

	v.SetDefault("workerPools.webhook.poolSize", 32)
	v.SetDefault("workerPools.webhook.queueSize", 10000)
	v.SetDefault("workerPools.webhook.expiryTime", time.Minute)

	v.SetDefault("whatsapp.baseURL", "https://graph.facebook.com")
	v.SetDefault("whatsapp.apiVersion", "v18.0")
	v.SetDefault("whatsapp.timeout", 15*time.Second)

	v.SetDefault("media.dir", "./uploads")
	v.SetDefault("media.maxUploadBytes", 16<<20)

	v.SetDefault("auth.issuer", "daisi-wa-support-console")

	v.SetDefault("realtime.broker", "none")
	v.SetDefault("realtime.sendBuffer", 256)
	v.SetDefault("realtime.pingInterval", 30*time.Second)
	v.SetDefault("realtime.nats.stream", "console_events")
	v.SetDefault("realtime.nats.subjectPrefix", "v1.console")
	v.SetDefault("realtime.amqp.exchange", "console.events")

	v.SetDefault("cache.organizationTTL", 5*time.Minute)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
}

// Watch re-reads the config file whenever it changes on disk and hands the
// freshly decoded Config to onChange. It is a no-op when no file was loaded.
func (c *Config) Watch(onChange func(*Config, error)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		var next Config
		if err := c.v.Unmarshal(&next); err != nil {
			onChange(nil, fmt.Errorf("unable to decode reloaded config %s: %w", e.Name, err))
			return
		}
		next.v = c.v
		onChange(&next, nil)
	})
	c.v.WatchConfig()
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(append([]string{}, parts...), tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
