package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/SirClappington/guildq/internal/domain"
)

type Config struct {
	AppEnv        string `env:"APP_ENV" envDefault:"production"`
	APIAddr       string `env:"API_ADDR" envDefault:":8080"`
	RedisAddr     string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// LockTime bounds how long a worker owns a job before another worker may
	// pick up a redelivery. Keep it well above the slowest stage.
	LockTime       time.Duration     `env:"LOCK_TIME" envDefault:"60s"`
	QueueLockTimes map[string]string `env:"QUEUE_LOCK_TIMES" envKeyValSeparator:"="`
	// WaitTimeout is the blocking pop timeout, in whole seconds. 0 polls
	// without blocking.
	WaitTimeout    time.Duration     `env:"WAIT_TIMEOUT" envDefault:"5s"`
	RetryDelay     time.Duration     `env:"RETRY_DELAY" envDefault:"1s"`

	FlowTTL             time.Duration `env:"FLOW_TTL" envDefault:"24h"`
	QueuePriorities     int           `env:"QUEUE_PRIORITIES" envDefault:"1"`
	DeleteTerminalFlows bool          `env:"DELETE_TERMINAL_FLOWS" envDefault:"false"`

	StageEndpoints map[string]string `env:"STAGE_ENDPOINTS" envKeyValSeparator:"="`
	StageTimeout   time.Duration     `env:"STAGE_TIMEOUT" envDefault:"30s"`

	lockTimes map[domain.QueueName]time.Duration
}

// Load parses the environment and checks queue names used as map keys.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	c.lockTimes = make(map[domain.QueueName]time.Duration, len(c.QueueLockTimes))
	for name, raw := range c.QueueLockTimes {
		q, err := domain.ParseQueueName(name)
		if err != nil {
			return Config{}, fmt.Errorf("QUEUE_LOCK_TIMES: %w", err)
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("QUEUE_LOCK_TIMES: bad duration %q for %s", raw, name)
		}
		c.lockTimes[q] = d
	}
	for name := range c.StageEndpoints {
		if _, err := domain.ParseQueueName(name); err != nil {
			return Config{}, fmt.Errorf("STAGE_ENDPOINTS: %w", err)
		}
	}
	if c.WaitTimeout > 0 && c.WaitTimeout%time.Second != 0 {
		return Config{}, fmt.Errorf("WAIT_TIMEOUT must be 0 or whole seconds, got %s", c.WaitTimeout)
	}
	if c.QueuePriorities < 1 {
		return Config{}, fmt.Errorf("QUEUE_PRIORITIES must be at least 1, got %d", c.QueuePriorities)
	}
	return c, nil
}

func MustLoad() Config {
	c, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	return c
}

// LockTimeFor returns the per-queue override or the global lock time.
func (c Config) LockTimeFor(name domain.QueueName) time.Duration {
	if d, ok := c.lockTimes[name]; ok {
		return d
	}
	return c.LockTime
}
