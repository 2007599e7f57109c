package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Rental timing knobs. DefaultRentSeconds is the fallback applied when an
	// extend lands on a lapsed lease and no explicit duration is supplied.
	DefaultRentSeconds  int `env:"DEFAULT_RENT_SECONDS" envDefault:"3600"`
	ReviewBonusSeconds  int `env:"REVIEW_BONUS_SECONDS" envDefault:"1800"`
	WarnLeadSeconds     int `env:"WARN_LEAD_SECONDS" envDefault:"600"`
	ExpiryPollSeconds   int `env:"EXPIRY_POLL_SECONDS" envDefault:"60"`
	MinRotationSeconds  int `env:"MIN_ROTATION_SECONDS" envDefault:"60"`
	FriendModeSeconds   int `env:"FRIEND_MODE_SECONDS" envDefault:"600"`
	RotationTimeoutSecs int `env:"ROTATION_TIMEOUT_SECONDS" envDefault:"300"`
	GuardFetchTimeout   int `env:"GUARD_FETCH_TIMEOUT_SECONDS" envDefault:"600"`

	// External capability endpoints. Empty RotatorURL disables automatic
	// credential rotation (accounts then go stuck on expiry until an operator
	// intervenes). Empty MailboxURL short-circuits guard-code fetches to none.
	NotifierURL string `env:"NOTIFIER_URL,required"`
	RotatorURL  string `env:"ROTATOR_URL"`
	MailboxURL  string `env:"MAILBOX_URL"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) DefaultRent() time.Duration {
	return time.Duration(c.DefaultRentSeconds) * time.Second
}

func (c *Config) ReviewBonus() time.Duration {
	return time.Duration(c.ReviewBonusSeconds) * time.Second
}

func (c *Config) WarnLead() time.Duration {
	return time.Duration(c.WarnLeadSeconds) * time.Second
}

func (c *Config) ExpiryPoll() time.Duration {
	return time.Duration(c.ExpiryPollSeconds) * time.Second
}

func (c *Config) MinRotationWindow() time.Duration {
	return time.Duration(c.MinRotationSeconds) * time.Second
}

func (c *Config) FriendModeTTL() time.Duration {
	return time.Duration(c.FriendModeSeconds) * time.Second
}

func (c *Config) RotationTimeout() time.Duration {
	return time.Duration(c.RotationTimeoutSecs) * time.Second
}

func (c *Config) GuardFetchTimeoutDur() time.Duration {
	return time.Duration(c.GuardFetchTimeout) * time.Second
}

func (c *Config) Validate() error {
	if c.DefaultRentSeconds <= 0 {
		return fmt.Errorf("DEFAULT_RENT_SECONDS must be positive")
	}
	if c.ReviewBonusSeconds <= 0 {
		return fmt.Errorf("REVIEW_BONUS_SECONDS must be positive")
	}
	if c.WarnLeadSeconds <= 0 {
		return fmt.Errorf("WARN_LEAD_SECONDS must be positive")
	}
	if c.ExpiryPollSeconds <= 0 {
		return fmt.Errorf("EXPIRY_POLL_SECONDS must be positive")
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
