package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WSURL != "wss://xlayerws.okx.com" {
		t.Fatalf("ws url = %s", cfg.WSURL)
	}
	if cfg.PingInterval != 20*time.Second || cfg.BackoffFloor != time.Second || cfg.BackoffCap != 30*time.Second {
		t.Fatalf("timings = %v %v %v", cfg.PingInterval, cfg.BackoffFloor, cfg.BackoffCap)
	}
	if cfg.WrappedNative != "0xe538905cf8410324e03a5a23c1c177a474d59b2b" || cfg.NativeSymbol != "OKB" {
		t.Fatalf("chain constants = %s %s", cfg.WrappedNative, cfg.NativeSymbol)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	price, err := cfg.NativePriceMicros()
	if err != nil || price.Int64() != 190_000_000 {
		t.Fatalf("price = %v, %v", price, err)
	}
	if cfg.TelegramEnabled() {
		t.Fatalf("telegram should be disabled without credentials")
	}
}

func TestLoadEnvAndLegacyNames(t *testing.T) {
	t.Setenv("WOKB_PRICE", "187.5n")
	t.Setenv("TG_BOT_TOKEN", "123:abc")
	t.Setenv("TG_CHAT_ID", "-100")
	t.Setenv("WSS", "wss://legacy.example")
	t.Setenv("TRADESCOPE_WS_URL", "wss://primary.example")
	t.Setenv("TRADESCOPE_CALL_TIMEOUT", "3s")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WSURL != "wss://primary.example" {
		t.Fatalf("prefixed env should win, got %s", cfg.WSURL)
	}
	if cfg.CallTimeout != 3*time.Second {
		t.Fatalf("call timeout = %v", cfg.CallTimeout)
	}
	price, err := cfg.NativePriceMicros()
	if err != nil || price.Int64() != 187_500_000 {
		t.Fatalf("price = %v, %v", price, err)
	}
	if !cfg.TelegramEnabled() {
		t.Fatalf("telegram should be enabled")
	}
}

func TestLoadFlagsAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradescope.yaml")
	content := "chain-name: TestNet\nnative-decimals: 8\nwallets-file: /tmp/w.json\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.String("chain-name", "", "")
	flags.Int("max-inflight-receipts", 8, "")
	if err := flags.Parse([]string{"--max-inflight-receipts=2"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainName != "TestNet" || cfg.NativeDecimals != 8 || cfg.WalletsFile != "/tmp/w.json" {
		t.Fatalf("file values = %+v", cfg)
	}
	if cfg.MaxInflightReceipts != 2 {
		t.Fatalf("flag value = %d", cfg.MaxInflightReceipts)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.WSURL = "https://not-a-socket"
	cfg.NativePrice = "abc"
	cfg.WrappedNative = "0x1234"
	cfg.BackoffFloor = time.Minute
	cfg.WalletsFile = ""

	err = cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"ws-url", "native-price", "wrapped-native", "backoff-floor exceeds", "wallets-file"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}
