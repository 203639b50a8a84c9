package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the gateway's process configuration, read from GATEWAY_* env vars.
type Config struct {
	ListenAddr string `env:"GATEWAY_LISTEN_ADDR" envDefault:"127.0.0.1:9010"`

	LedgerHTTPURL string `env:"GATEWAY_LEDGER_HTTP_URL" envDefault:"http://127.0.0.1:8080"`
	LedgerWSURL   string `env:"GATEWAY_LEDGER_WS_URL"   envDefault:"ws://127.0.0.1:8080"`
	Origin        string `env:"GATEWAY_ORIGIN"          envDefault:"http://localhost:9010"`

	SubmitTimeout     time.Duration `env:"GATEWAY_SUBMIT_TIMEOUT"      envDefault:"10s"`
	HealthTimeout     time.Duration `env:"GATEWAY_HEALTH_TIMEOUT"      envDefault:"2s"`
	MaxSubmissionSize int           `env:"GATEWAY_MAX_SUBMISSION_SIZE" envDefault:"4194304"`

	MaxRetries       int           `env:"GATEWAY_MAX_RETRIES"        envDefault:"3"`
	RetryBase        time.Duration `env:"GATEWAY_RETRY_BASE"         envDefault:"100ms"`
	RetryMax         time.Duration `env:"GATEWAY_RETRY_MAX"          envDefault:"2s"`
	RetryJitter      float64       `env:"GATEWAY_RETRY_JITTER"       envDefault:"0.1"`
	ReconnectBase    time.Duration `env:"GATEWAY_RECONNECT_BASE"     envDefault:"1s"`
	ReconnectMax     time.Duration `env:"GATEWAY_RECONNECT_MAX"      envDefault:"30s"`
	IdempotencyTTL   time.Duration `env:"GATEWAY_IDEMPOTENCY_TTL"    envDefault:"5m"`
	IdempotencySweep time.Duration `env:"GATEWAY_IDEMPOTENCY_SWEEP"  envDefault:"1m"`
	PendingEventCap  int           `env:"GATEWAY_PENDING_EVENT_CAP"  envDefault:"64"`
	EventWaitTimeout time.Duration `env:"GATEWAY_EVENT_WAIT_TIMEOUT" envDefault:"30s"`

	SessionIdleTimeout time.Duration `env:"GATEWAY_SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	SessionSweep       time.Duration `env:"GATEWAY_SESSION_SWEEP"        envDefault:"1m"`
	SessionRatePoints  int           `env:"GATEWAY_SESSION_RATE_POINTS"  envDefault:"10"`
	SessionRateWindow  time.Duration `env:"GATEWAY_SESSION_RATE_WINDOW"  envDefault:"1h"`
	SessionRateBlock   time.Duration `env:"GATEWAY_SESSION_RATE_BLOCK"   envDefault:"1h"`
	MaxConnsPerIP      int           `env:"GATEWAY_MAX_CONNS_PER_IP"     envDefault:"5"`
	InitialDeposit     uint64        `env:"GATEWAY_INITIAL_DEPOSIT"      envDefault:"0"`

	MetricsSnapshotPath string `env:"GATEWAY_METRICS_SNAPSHOT"`
	PprofEnabled        bool   `env:"GATEWAY_PPROF"              envDefault:"false"`
	PprofAddr           string `env:"GATEWAY_PPROF_ADDR"         envDefault:"127.0.0.1:6060"`
	PprofAllowPublic    bool   `env:"GATEWAY_PPROF_ALLOW_PUBLIC" envDefault:"false"`
	OTELEndpoint        string `env:"GATEWAY_OTEL_ENDPOINT"`
	Debug               bool   `env:"GATEWAY_DEBUG"              envDefault:"false"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	for name, raw := range map[string]string{
		"GATEWAY_LEDGER_HTTP_URL": c.LedgerHTTPURL,
		"GATEWAY_LEDGER_WS_URL":   c.LedgerWSURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s: invalid url %q", name, raw))
		}
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("GATEWAY_LISTEN_ADDR is required"))
	}
	if c.MaxSubmissionSize <= 0 {
		errs = append(errs, errors.New("GATEWAY_MAX_SUBMISSION_SIZE must be positive"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("GATEWAY_MAX_RETRIES must not be negative"))
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		errs = append(errs, errors.New("GATEWAY_RETRY_JITTER must be within [0,1]"))
	}
	if c.SessionRatePoints <= 0 {
		errs = append(errs, errors.New("GATEWAY_SESSION_RATE_POINTS must be positive"))
	}
	return errors.Join(errs...)
}
