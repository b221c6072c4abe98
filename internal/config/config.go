package config

import (
	"flag"
	"fmt"
	"time"

	"localex/internal/logger"
	"localex/internal/pairing"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds process settings. The discovery group, port and probe are
// fixed by the protocol and are not configurable here.
type Config struct {
	LogLevel         string        `env:"LOCALEX_LOG_LEVEL" env-default:"INFO" env-description:"DEBUG, INFO, WARN or ERROR"`
	QueueSize        int           `env:"LOCALEX_QUEUE_SIZE" env-default:"3" env-description:"capacity of the discovered peer queue"`
	AnnounceInterval time.Duration `env:"LOCALEX_ANNOUNCE_INTERVAL" env-default:"0s" env-description:"re-announce period, 0 announces once at launch"`
	DropPolicy       string        `env:"LOCALEX_DROP_POLICY" env-default:"newest" env-description:"which peer a full queue drops: newest or oldest"`

	Level  logger.Level
	Policy pairing.DropPolicy
}

// Load reads the environment, then lets command line flags override it.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (DEBUG, INFO, WARN, ERROR)")
	fs.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "capacity of the discovered peer queue")
	fs.DurationVar(&cfg.AnnounceInterval, "interval", cfg.AnnounceInterval, "re-announce period, 0 announces once")
	fs.StringVar(&cfg.DropPolicy, "drop", cfg.DropPolicy, "which peer a full queue drops (newest, oldest)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	c.Level = level

	policy, err := pairing.ParseDropPolicy(c.DropPolicy)
	if err != nil {
		return err
	}
	c.Policy = policy

	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize)
	}
	if c.AnnounceInterval < 0 {
		return fmt.Errorf("announce interval cannot be negative, got %s", c.AnnounceInterval)
	}
	return nil
}

// Usage lists the environment variables understood by Load.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
