package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tradeScope/internal/dex"
	"tradeScope/internal/fixedpoint"
)

const envPrefix = "TRADESCOPE"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	WSURL               string
	WalletsFile         string
	WalletsDSN          string
	WalletsPoll         time.Duration
	WalletsDebounce     time.Duration
	PingInterval        time.Duration
	BackoffFloor        time.Duration
	BackoffCap          time.Duration
	CallTimeout         time.Duration
	MaxInflightReceipts int
	WrappedNative       string
	WrappedSymbol       string
	NativeSymbol        string
	NativeDecimals      int
	NativePrice         string
	ChainName           string
	TelegramToken       string
	TelegramChatID      string
	TelegramRate        float64
	ExplorerTxURL       string
	NoticesOut          string
	MetricsAddr         string
	LogLevel            string
}

// legacyEnv lists the unprefixed variable names the deployment .env files
// already use.
var legacyEnv = map[string]string{
	"ws-url":           "WSS",
	"native-price":     "WOKB_PRICE",
	"telegram-token":   "TG_BOT_TOKEN",
	"telegram-chat-id": "TG_CHAT_ID",
	"explorer-tx-url":  "EXPLORER_TX",
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	v.SetDefault("ws-url", "wss://xlayerws.okx.com")
	v.SetDefault("wallets-file", "./wallets.json")
	v.SetDefault("wallets-poll", 30*time.Second)
	v.SetDefault("wallets-debounce", 300*time.Millisecond)
	v.SetDefault("ping-interval", 20*time.Second)
	v.SetDefault("backoff-floor", time.Second)
	v.SetDefault("backoff-cap", 30*time.Second)
	v.SetDefault("call-timeout", 15*time.Second)
	v.SetDefault("max-inflight-receipts", 8)
	v.SetDefault("wrapped-native", "0xe538905cf8410324e03a5a23c1c177a474d59b2b")
	v.SetDefault("wrapped-symbol", "WOKB")
	v.SetDefault("native-symbol", "OKB")
	v.SetDefault("native-decimals", 18)
	v.SetDefault("native-price", "190")
	v.SetDefault("chain-name", "XLayer")
	v.SetDefault("telegram-rate", 4.0)
	v.SetDefault("explorer-tx-url", "https://www.oklink.com/zh-hans/x-layer/tx/")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		WSURL:               strings.TrimSpace(v.GetString("ws-url")),
		WalletsFile:         strings.TrimSpace(v.GetString("wallets-file")),
		WalletsDSN:          strings.TrimSpace(v.GetString("wallets-dsn")),
		WalletsPoll:         v.GetDuration("wallets-poll"),
		WalletsDebounce:     v.GetDuration("wallets-debounce"),
		PingInterval:        v.GetDuration("ping-interval"),
		BackoffFloor:        v.GetDuration("backoff-floor"),
		BackoffCap:          v.GetDuration("backoff-cap"),
		CallTimeout:         v.GetDuration("call-timeout"),
		MaxInflightReceipts: v.GetInt("max-inflight-receipts"),
		WrappedNative:       strings.ToLower(strings.TrimSpace(v.GetString("wrapped-native"))),
		WrappedSymbol:       strings.TrimSpace(v.GetString("wrapped-symbol")),
		NativeSymbol:        strings.TrimSpace(v.GetString("native-symbol")),
		NativeDecimals:      v.GetInt("native-decimals"),
		NativePrice:         strings.TrimSpace(v.GetString("native-price")),
		ChainName:           strings.TrimSpace(v.GetString("chain-name")),
		TelegramToken:       strings.TrimSpace(v.GetString("telegram-token")),
		TelegramChatID:      strings.TrimSpace(v.GetString("telegram-chat-id")),
		TelegramRate:        v.GetFloat64("telegram-rate"),
		ExplorerTxURL:       strings.TrimSpace(v.GetString("explorer-tx-url")),
		NoticesOut:          strings.TrimSpace(v.GetString("notices-out")),
		MetricsAddr:         strings.TrimSpace(v.GetString("metrics-addr")),
		LogLevel:            v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings the live monitor depends on.
func (c Config) Validate() error {
	var errs []error
	if c.WSURL == "" {
		errs = append(errs, errors.New("ws-url is required"))
	} else if !strings.HasPrefix(c.WSURL, "ws://") && !strings.HasPrefix(c.WSURL, "wss://") {
		errs = append(errs, fmt.Errorf("ws-url %q must use ws:// or wss://", c.WSURL))
	}
	if c.WalletsFile == "" && c.WalletsDSN == "" {
		errs = append(errs, errors.New("one of wallets-file or wallets-dsn is required"))
	}
	if _, ok := dex.CanonicalAddress(c.WrappedNative); !ok {
		errs = append(errs, fmt.Errorf("wrapped-native %q is not an address", c.WrappedNative))
	}
	if c.NativeDecimals < 0 || c.NativeDecimals > fixedpoint.MaxDecimals {
		errs = append(errs, fmt.Errorf("native-decimals %d out of range", c.NativeDecimals))
	}
	if _, err := c.NativePriceMicros(); err != nil {
		errs = append(errs, err)
	}
	for name, d := range map[string]time.Duration{
		"ping-interval": c.PingInterval,
		"backoff-floor": c.BackoffFloor,
		"backoff-cap":   c.BackoffCap,
		"call-timeout":  c.CallTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.BackoffFloor > c.BackoffCap {
		errs = append(errs, errors.New("backoff-floor exceeds backoff-cap"))
	}
	if c.MaxInflightReceipts <= 0 {
		errs = append(errs, errors.New("max-inflight-receipts must be positive"))
	}
	if c.TelegramRate <= 0 {
		errs = append(errs, errors.New("telegram-rate must be positive"))
	}
	return errors.Join(errs...)
}

// NativePriceMicros parses the native USD price at 6 decimals.
func (c Config) NativePriceMicros() (*big.Int, error) {
	price, err := fixedpoint.ParsePriceMicros(c.NativePrice)
	if err != nil {
		return nil, fmt.Errorf("native-price %q: %w", c.NativePrice, err)
	}
	return price, nil
}

// TelegramEnabled reports whether both Telegram credentials are set.
func (c Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != ""
}
