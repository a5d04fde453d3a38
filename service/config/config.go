package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// EVMConfig holds the EVM chain settings: RPC endpoint, signer key and
// the protocol contract addresses.
type EVMConfig struct {
	RPCURL        string
	PrivateKeyHex string
	GatewayURL    string

	FeeProxyAddress         string
	BatchProxyAddress       string
	EscrowAddress           string
	ForwarderFactoryAddress string

	// TokenAddresses maps currency keys (e.g. "USDC-base") to ERC20
	// contract addresses.
	TokenAddresses map[string]string
}

// SolanaConfig holds the Solana chain settings.
type SolanaConfig struct {
	RPCURL     string
	PrivateKey string

	// Mints maps currency keys (e.g. "USDC-solana") to SPL mints.
	Mints map[string]string
}

// Config holds all application configuration loaded from environment
// variables. All required fields are validated at startup so
// misconfiguration halts the binary instead of failing mid-payment.
type Config struct {
	ServerAddr string
	PublicURL  string
	LogLevel   string
	LogFormat  string

	DatabaseURL string
	NATSURL     string

	FeeAddress string

	EVM    EVMConfig
	Solana SolanaConfig

	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
}

// Load reads configuration from environment variables, accumulating
// every validation error so an operator sees the full list at once.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.PublicURL = getEnvOrDefault("PUBLIC_URL", "http://localhost:8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", "text")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	cfg.FeeAddress = os.Getenv("FEE_ADDRESS")
	if cfg.FeeAddress == "" {
		errs = append(errs, fmt.Errorf("FEE_ADDRESS is required"))
	}

	cfg.EVM.RPCURL = os.Getenv("EVM_RPC_URL")
	if cfg.EVM.RPCURL == "" {
		errs = append(errs, fmt.Errorf("EVM_RPC_URL is required"))
	}
	cfg.EVM.PrivateKeyHex = os.Getenv("EVM_PRIVATE_KEY")
	if cfg.EVM.PrivateKeyHex == "" {
		errs = append(errs, fmt.Errorf("EVM_PRIVATE_KEY is required"))
	}
	cfg.EVM.GatewayURL = os.Getenv("REQUEST_GATEWAY_URL")
	if cfg.EVM.GatewayURL == "" {
		errs = append(errs, fmt.Errorf("REQUEST_GATEWAY_URL is required"))
	}
	cfg.EVM.FeeProxyAddress = os.Getenv("EVM_FEE_PROXY_ADDRESS")
	if cfg.EVM.FeeProxyAddress == "" {
		errs = append(errs, fmt.Errorf("EVM_FEE_PROXY_ADDRESS is required"))
	}
	cfg.EVM.BatchProxyAddress = os.Getenv("EVM_BATCH_PROXY_ADDRESS")
	if cfg.EVM.BatchProxyAddress == "" {
		errs = append(errs, fmt.Errorf("EVM_BATCH_PROXY_ADDRESS is required"))
	}
	cfg.EVM.EscrowAddress = os.Getenv("EVM_ESCROW_ADDRESS")
	if cfg.EVM.EscrowAddress == "" {
		errs = append(errs, fmt.Errorf("EVM_ESCROW_ADDRESS is required"))
	}
	cfg.EVM.ForwarderFactoryAddress = os.Getenv("EVM_FORWARDER_FACTORY_ADDRESS")
	if cfg.EVM.ForwarderFactoryAddress == "" {
		errs = append(errs, fmt.Errorf("EVM_FORWARDER_FACTORY_ADDRESS is required"))
	}

	tokens, err := parseKeyValueList("EVM_TOKEN_ADDRESSES")
	if err != nil {
		errs = append(errs, err)
	}
	cfg.EVM.TokenAddresses = tokens

	cfg.Solana.RPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.Solana.RPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}
	cfg.Solana.PrivateKey = os.Getenv("SOLANA_PRIVATE_KEY")
	if cfg.Solana.PrivateKey == "" {
		errs = append(errs, fmt.Errorf("SOLANA_PRIVATE_KEY is required"))
	}

	mints, err := parseKeyValueList("SOLANA_MINTS")
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Solana.Mints = mints

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "payce-disbursements")

	readTimeout, err := parseDuration("HTTP_READ_TIMEOUT", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HTTPReadTimeout = readTimeout
	}
	writeTimeout, err := parseDuration("HTTP_WRITE_TIMEOUT", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HTTPWriteTimeout = writeTimeout
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for binary initialization where misconfiguration should halt
// startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// getEnvOrDefault returns the environment variable value or a default
// if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses
// a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseKeyValueList parses "KEY=value,KEY=value" env vars, used for the
// per-currency token and mint maps. An unset variable yields an empty
// map; currencies without an entry are rejected at payment time.
func parseKeyValueList(key string) (map[string]string, error) {
	raw := os.Getenv(key)
	out := map[string]string{}
	if raw == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("%s: invalid entry %q, want KEY=value", key, pair)
		}
		out[k] = v
	}
	return out, nil
}
