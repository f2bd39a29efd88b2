package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	// Console side. ServerURL is the backend origin; by convention it is
	// the page's own host with a fixed port, not negotiated.
	ServerURL string `mapstructure:"server_url"`
	Username  string `mapstructure:"username"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RosterInterval    time.Duration `mapstructure:"roster_interval"`
	LogPollInterval   time.Duration `mapstructure:"log_poll_interval"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	PresenceTimeout   time.Duration `mapstructure:"presence_timeout"`
	FrameInterval     time.Duration `mapstructure:"frame_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("heartbeat_interval", "10s")
	v.SetDefault("roster_interval", "5s")
	v.SetDefault("log_poll_interval", "2s")
	v.SetDefault("reconnect_delay", "5s")
	v.SetDefault("presence_timeout", "30s")
	v.SetDefault("frame_interval", "33ms")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
