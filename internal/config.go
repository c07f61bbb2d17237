package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Ledger        LedgerConfig        `mapstructure:"ledger" validate:"required"`
	Payout        PayoutConfig        `mapstructure:"payout"`
	Settlement    SettlementConfig    `mapstructure:"settlement"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

// LedgerConfig describes the Fabric gateway session. The connection profile
// and identity material are owned by the network operator; the service only
// ever connects as this one identity.
type LedgerConfig struct {
	ConnectionProfile string `mapstructure:"connection_profile" validate:"required"`
	Channel           string `mapstructure:"channel" validate:"required"`
	WalletPath        string `mapstructure:"wallet_path"`
	Identity          string `mapstructure:"identity"`
	MSPID             string `mapstructure:"msp_id"`
	CertPath          string `mapstructure:"cert_path"`
	KeyPath           string `mapstructure:"key_path"`
	TokenContract     string `mapstructure:"token_contract"`
	SinkAccount       string `mapstructure:"sink_account"`
}

type PayoutConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key"`
}

// SettlementConfig carries the reconciliation tunables. The delay/attempt
// values were chosen empirically against the ledger's commit latency and are
// deliberately configuration rather than constants.
type SettlementConfig struct {
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	VerifyAttempts int           `mapstructure:"verify_attempts"`
	DeltaTolerance int64         `mapstructure:"delta_tolerance"`
	MaxConcurrent  int64         `mapstructure:"max_concurrent"`
	SyncWait       time.Duration `mapstructure:"sync_wait"`
}

type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the full config from environment variables only,
// for container deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Ledger: LedgerConfig{
			ConnectionProfile: getEnv("LEDGER_CONNECTION_PROFILE", "connection-profile.yaml"),
			Channel:           getEnv("LEDGER_CHANNEL", "mychannel"),
			WalletPath:        getEnv("LEDGER_WALLET_PATH", "wallet"),
			Identity:          getEnv("LEDGER_IDENTITY", "appUser"),
			MSPID:             getEnv("LEDGER_MSP_ID", "Org1MSP"),
			CertPath:          getEnv("LEDGER_CERT_PATH", ""),
			KeyPath:           getEnv("LEDGER_KEY_PATH", ""),
			TokenContract:     getEnv("LEDGER_TOKEN_CONTRACT", "bobcoin"),
			SinkAccount:       getEnv("LEDGER_SINK_ACCOUNT", "admin"),
		},
		Payout: PayoutConfig{
			BaseURL: getEnv("PAYOUT_API_URL", ""),
			APIKey:  getEnv("PAYOUT_API_KEY", ""),
		},
		Settlement: SettlementConfig{
			SettleDelay:    getEnvAsDuration("SETTLE_DELAY", 3*time.Second),
			VerifyAttempts: getEnvAsInt("VERIFY_ATTEMPTS", 2),
			DeltaTolerance: int64(getEnvAsInt("DELTA_TOLERANCE", 0)),
			MaxConcurrent:  int64(getEnvAsInt("MAX_CONCURRENT_SETTLEMENTS", 8)),
			SyncWait:       getEnvAsDuration("SETTLEMENT_SYNC_WAIT", 10*time.Second),
		},
		Webhook: WebhookConfig{
			Secret: getEnv("WEBHOOK_SECRET", ""),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnv("METRICS_ENABLED", "true") == "true",
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Ledger.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("ledger config: %v", err))
	}

	if err := c.Settlement.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("settlement config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *LedgerConfig) Validate() error {
	if c.ConnectionProfile == "" {
		return errors.New("connection_profile is required")
	}
	if c.Channel == "" {
		return errors.New("channel is required")
	}
	if c.TokenContract == "" {
		return errors.New("token_contract is required")
	}
	if c.SinkAccount == "" {
		return errors.New("sink_account is required")
	}
	return nil
}

func (c *SettlementConfig) Validate() error {
	if c.VerifyAttempts < 1 {
		return errors.New("verify_attempts must be at least 1")
	}
	if c.DeltaTolerance < 0 {
		return errors.New("delta_tolerance cannot be negative")
	}
	if c.MaxConcurrent < 1 {
		return errors.New("max_concurrent must be at least 1")
	}
	return nil
}
