package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"

	"mangrove/catalog"
)

// Settings are the process-wide knobs read from the environment.
type Settings struct {
	AccessKeyID        string        `env:"MANGROVE_ACCESS_KEY_ID"`
	SecretAccessKey    string        `env:"MANGROVE_SECRET_ACCESS_KEY"`
	AWSAccessKeyID     string        `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string        `env:"AWS_SECRET_ACCESS_KEY"`
	EtcdEndpoints      []string      `env:"MANGROVE_ETCD_ENDPOINTS" envSeparator:"," envDefault:"127.0.0.1:2379"`
	DialTimeout        time.Duration `env:"MANGROVE_DIAL_TIMEOUT"   envDefault:"5s"`
	DialRate           float64       `env:"MANGROVE_DIAL_RATE"      envDefault:"0"`
	DialBurst          int           `env:"MANGROVE_DIAL_BURST"     envDefault:"1"`
	Workers            int           `env:"MANGROVE_WORKERS"        envDefault:"0"`
	LogLevel           string        `env:"MANGROVE_LOG_LEVEL"      envDefault:"info"`
	OTelEndpoint       string        `env:"MANGROVE_OTEL_ENDPOINT"`
}

// LoadSettings reads settings from the process environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := env.Parse(&s); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, s.Validate()
}

// LoadSettingsFrom reads settings from environ instead of the process environment.
func LoadSettingsFrom(environ map[string]string) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Environment: environ}); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, s.Validate()
}

// Credentials returns the mangrove credential pair, or the AWS pair when no
// mangrove key id is set.
func (s Settings) Credentials() catalog.Credentials {
	if s.AccessKeyID != "" {
		return catalog.Credentials{AccessKeyID: s.AccessKeyID, SecretAccessKey: s.SecretAccessKey}
	}
	return catalog.Credentials{AccessKeyID: s.AWSAccessKeyID, SecretAccessKey: s.AWSSecretAccessKey}
}

// Level returns the parsed log level.
func (s Settings) Level() (zapcore.Level, error) {
	return zapcore.ParseLevel(s.LogLevel)
}

// Validate checks value ranges.
func (s Settings) Validate() error {
	if s.DialTimeout <= 0 {
		return fmt.Errorf("MANGROVE_DIAL_TIMEOUT must be positive, got %s", s.DialTimeout)
	}
	if s.DialRate < 0 {
		return fmt.Errorf("MANGROVE_DIAL_RATE must not be negative, got %v", s.DialRate)
	}
	if s.DialRate > 0 && s.DialBurst < 1 {
		return fmt.Errorf("MANGROVE_DIAL_BURST must be at least 1 when a dial rate is set, got %d", s.DialBurst)
	}
	if _, err := s.Level(); err != nil {
		return fmt.Errorf("MANGROVE_LOG_LEVEL: %w", err)
	}
	return nil
}
