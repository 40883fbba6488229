package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	GatewayURL  string `env:"GATEWAY_URL,required"`
	APIBaseURL  string `env:"API_BASE_URL,required"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Policy windows. The defaults mirror observed production behavior but are
	// deliberately tunable per deployment.
	ReconnectCeiling      int `env:"RECONNECT_CEILING" envDefault:"3"`
	SendDedupWindowMS     int `env:"SEND_DEDUP_WINDOW_MS" envDefault:"2000"`
	DirectoryCacheTTLSecs int `env:"DIRECTORY_CACHE_TTL_SECONDS" envDefault:"30"`
	FeedDebounceMS        int `env:"FEED_DEBOUNCE_MS" envDefault:"300"`
	TypingIdleMS          int `env:"TYPING_IDLE_MS" envDefault:"2000"`
	StaleAfterSecs        int `env:"LOCATION_STALE_AFTER_SECONDS" envDefault:"60"`
	RosterTickSecs        int `env:"ROSTER_TICK_SECONDS" envDefault:"10"`
}

func (c *Config) SendDedupWindow() time.Duration {
	return time.Duration(c.SendDedupWindowMS) * time.Millisecond
}

func (c *Config) DirectoryCacheTTL() time.Duration {
	return time.Duration(c.DirectoryCacheTTLSecs) * time.Second
}

func (c *Config) FeedDebounce() time.Duration {
	return time.Duration(c.FeedDebounceMS) * time.Millisecond
}

func (c *Config) TypingIdle() time.Duration {
	return time.Duration(c.TypingIdleMS) * time.Millisecond
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterSecs) * time.Second
}

func (c *Config) RosterTick() time.Duration {
	return time.Duration(c.RosterTickSecs) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if !strings.HasPrefix(c.GatewayURL, "ws://") && !strings.HasPrefix(c.GatewayURL, "wss://") {
		return fmt.Errorf("GATEWAY_URL must be a ws:// or wss:// URL")
	}
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		return fmt.Errorf("API_BASE_URL must be an http:// or https:// URL")
	}
	if c.ReconnectCeiling < 1 {
		return fmt.Errorf("RECONNECT_CEILING must be at least 1")
	}
	if c.SendDedupWindowMS < 0 || c.FeedDebounceMS < 0 || c.TypingIdleMS < 0 {
		return fmt.Errorf("timing windows must not be negative")
	}
	if c.StaleAfterSecs <= 0 {
		return fmt.Errorf("LOCATION_STALE_AFTER_SECONDS must be positive")
	}
	if c.RosterTickSecs <= 0 {
		return fmt.Errorf("ROSTER_TICK_SECONDS must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
