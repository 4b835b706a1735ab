// Package config loads server settings from an optional YAML file, an
// optional .env file and LEDGER_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/ledger"
	"github.com/sheikh-saqib/custody-vault-ledger/internal/social"
	"gopkg.in/yaml.v3"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendKafka    = "kafka"
)

type Config struct {
	HTTPAddr         string   `yaml:"httpAddr"`
	LogLevel         string   `yaml:"logLevel"`
	LogFormat        string   `yaml:"logFormat"`
	Storage          string   `yaml:"storage"`
	PostgresDSN      string   `yaml:"postgresDSN"`
	Events           string   `yaml:"events"`
	KafkaBrokers     []string `yaml:"kafkaBrokers"`
	KafkaTopicPrefix string   `yaml:"kafkaTopicPrefix"`
	ZeroAmount       string   `yaml:"zeroAmount"`
	ReactionDeposit  uint64   `yaml:"reactionDeposit"`
	RateLimitRPS     float64  `yaml:"rateLimitRPS"`
	RateLimitBurst   int      `yaml:"rateLimitBurst"`
	GenesisPath      string   `yaml:"genesisPath"`
}

func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		LogLevel:        "info",
		LogFormat:       "json",
		Storage:         BackendMemory,
		Events:          BackendMemory,
		ZeroAmount:      string(ledger.ZeroAmountAllow),
		ReactionDeposit: social.DefaultReactionDeposit,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// Load builds the configuration. yamlPath and envPath may be empty; a
// missing .env file is not an error, a missing YAML file that was asked for is.
func Load(yamlPath, envPath string) (Config, error) {
	cfg := Default()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", yamlPath, err)
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	str("LEDGER_HTTP_ADDR", &cfg.HTTPAddr)
	str("LEDGER_LOG_LEVEL", &cfg.LogLevel)
	str("LEDGER_LOG_FORMAT", &cfg.LogFormat)
	str("LEDGER_STORAGE", &cfg.Storage)
	str("LEDGER_POSTGRES_DSN", &cfg.PostgresDSN)
	str("LEDGER_EVENTS", &cfg.Events)
	str("LEDGER_KAFKA_TOPIC_PREFIX", &cfg.KafkaTopicPrefix)
	str("LEDGER_ZERO_AMOUNT", &cfg.ZeroAmount)
	str("LEDGER_GENESIS", &cfg.GenesisPath)

	if v, ok := os.LookupEnv("LEDGER_KAFKA_BROKERS"); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	if v, ok := os.LookupEnv("LEDGER_REACTION_DEPOSIT"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("LEDGER_REACTION_DEPOSIT: %w", err)
		}
		cfg.ReactionDeposit = n
	}
	if v, ok := os.LookupEnv("LEDGER_RATE_LIMIT_RPS"); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("LEDGER_RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = n
	}
	if v, ok := os.LookupEnv("LEDGER_RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("LEDGER_RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimitBurst = n
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Storage {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres storage needs LEDGER_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}
	switch c.Events {
	case BackendMemory:
	case BackendKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("kafka events need LEDGER_KAFKA_BROKERS")
		}
	default:
		return fmt.Errorf("unknown event backend %q", c.Events)
	}
	if _, err := c.ZeroAmountPolicy(); err != nil {
		return err
	}
	return nil
}

// Ledger returns the ledger settings.
func (c Config) Ledger() ledger.Config {
	p, _ := c.ZeroAmountPolicy()
	return ledger.Config{ZeroAmount: p}
}

func (c Config) ZeroAmountPolicy() (ledger.ZeroAmountPolicy, error) {
	return ledger.ParseZeroAmountPolicy(c.ZeroAmount)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
