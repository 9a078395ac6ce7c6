package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env-default:"prod"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	QC        QCConfig        `yaml:"qc"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Store     StoreConfig     `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Forwarder ForwarderConfig `yaml:"forwarder"`
	Log       LogConfig       `yaml:"log"`
}

type MQTTConfig struct {
	Broker string `yaml:"broker" env:"MQTT_BROKER" env-required:"true"`
	Topic  string `yaml:"topic" env:"MQTT_TOPIC" env-required:"true"`
}

type QCConfig struct {
	URL          string        `yaml:"url" env:"QC_CSV_URL" env-required:"true"`
	PullInterval time.Duration `yaml:"pull_interval" env-default:"20s"`
	Timeout      time.Duration `yaml:"timeout" env-default:"25s"`
}

type ScheduleConfig struct {
	Path           string        `yaml:"path" env-default:"jadwal_2026.json"`
	ReloadInterval time.Duration `yaml:"reload_interval" env-default:"10s"`
}

type StoreConfig struct {
	Path string `yaml:"path" env-default:"history.db"`
}

type ServerConfig struct {
	Address string `yaml:"address" env:"HTTP_ADDRESS" env-default:":8000"`
}

// ForwarderConfig drives the best-effort webhook notify. An empty URL
// disables it.
type ForwarderConfig struct {
	URL      string        `yaml:"url" env:"FORWARD_URL"`
	Interval time.Duration `yaml:"interval" env-default:"60s"`
	Timeout  time.Duration `yaml:"timeout" env-default:"10s"`
}

type LogConfig struct {
	Level  string `yaml:"level" env-default:"info"`
	Format string `yaml:"format" env-default:"json"`
}

func MustLoad(configPath string) *Config {
	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}

	if configPath == "" {
		configPath = "config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}

	return &cfg
}
