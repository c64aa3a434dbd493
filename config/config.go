// Package config loads the per-exchange trading configuration from YAML.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"gopkg.in/yaml.v3"
)

// Platforms.
const (
	PlatformBinance = "binance"
	PlatformBybit   = "bybit"
	PlatformPaper   = "paper"
)

const (
	defaultStatusAddr      = ":8080"
	defaultPollInterval    = time.Minute
	defaultGatewayTimeout  = 15 * time.Second
	defaultBuyHaltDuration = 2 * time.Hour
	defaultLedgerBackend   = "wal"
	defaultLedgerDir       = "./wal/ledger"
	defaultSnapshotDir     = "./wal/balances"
)

// Config top-level runtime configuration.
type Config struct {
	StatusAddr    string
	LedgerBackend string
	LedgerDir     string
	SnapshotDir   string
	Exchanges     []ExchangeConfig
}

// ExchangeConfig one exchange worker.
type ExchangeConfig struct {
	Platform         string
	Account          domain.AccountID
	Testnet          bool
	PollInterval     time.Duration
	GatewayTimeout   time.Duration
	ReconcileOnStart bool
	Liquidation      domain.LiquidationPolicy
	Pairs            []domain.PairPolicy
	// PaperBalances starting wallet of the paper platform.
	PaperBalances map[string]decimal.Decimal
	PaperFee      decimal.Decimal
	PaperStateDir string
	APIKey        string
	APISecret     string
}

// FileConfig raw YAML document.
type FileConfig struct {
	StatusAddr    string              `yaml:"status_addr,omitempty"`
	LedgerBackend string              `yaml:"ledger_backend,omitempty"`
	LedgerDir     string              `yaml:"ledger_dir,omitempty"`
	SnapshotDir   string              `yaml:"snapshot_dir,omitempty"`
	Exchanges     []ExchangeConfigTmp `yaml:"exchanges"`
}

// ExchangeConfigTmp raw exchange section, decimals kept as strings until parsed.
type ExchangeConfigTmp struct {
	Platform             string            `yaml:"platform"`
	Account              string            `yaml:"account,omitempty"`
	Testnet              bool              `yaml:"testnet,omitempty"`
	PollInterval         time.Duration     `yaml:"poll_interval,omitempty"`
	GatewayTimeout       time.Duration     `yaml:"gateway_timeout,omitempty"`
	ReconcileOnStart     bool              `yaml:"reconcile_on_start,omitempty"`
	DefensiveLiquidation bool              `yaml:"defensive_liquidation,omitempty"`
	BuyHaltDuration      time.Duration     `yaml:"buy_halt_duration,omitempty"`
	MinOrderValue        string            `yaml:"min_order_value,omitempty"`
	PaperBalances        map[string]string `yaml:"paper_balances,omitempty"`
	PaperFee             string            `yaml:"paper_fee,omitempty"`
	PaperStateDir        string            `yaml:"paper_state_dir,omitempty"`
	Pairs                []PairConfigTmp   `yaml:"pairs"`
}

// PairConfigTmp raw pair section.
type PairConfigTmp struct {
	Pair               string `yaml:"pair"`
	SpreadCutPercent   string `yaml:"spread_cut_percent"`
	AllocationCutQuote string `yaml:"allocation_cut_quote"`
	AllocationCutBase  string `yaml:"allocation_cut_base"`
	MarginPercent      string `yaml:"margin_percent"`
	OrderDisparity     string `yaml:"order_disparity"`
	MinBaseQuantity    string `yaml:"min_base_quantity,omitempty"`
	// MinOrderValue overrides the exchange-wide value.
	MinOrderValue string `yaml:"min_order_value,omitempty"`
}

// Load reads and validates a YAML config. Credentials come from the environment,
// with a .env file in the working directory loaded first if present.
func Load(path string) (Config, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var raw FileConfig
	if err := yaml.Unmarshal(payload, &raw); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}

	_ = godotenv.Load()

	return Parse(raw, os.Getenv)
}

// Parse converts a raw document into Config. getenv resolves credentials.
func Parse(raw FileConfig, getenv func(string) string) (Config, error) {
	cfg := Config{
		StatusAddr:    orDefault(raw.StatusAddr, defaultStatusAddr),
		LedgerBackend: orDefault(raw.LedgerBackend, defaultLedgerBackend),
		LedgerDir:     orDefault(raw.LedgerDir, defaultLedgerDir),
		SnapshotDir:   orDefault(raw.SnapshotDir, defaultSnapshotDir),
	}
	if cfg.LedgerBackend != "wal" && cfg.LedgerBackend != "pebble" {
		return Config{}, fmt.Errorf("incorrect 'ledger_backend' param in yaml config: %q, expected wal or pebble", raw.LedgerBackend)
	}
	if len(raw.Exchanges) == 0 {
		return Config{}, fmt.Errorf("yaml config must list at least one exchange")
	}

	seen := make(map[string]bool, len(raw.Exchanges))
	for i, e := range raw.Exchanges {
		ex, err := parseExchange(e, getenv)
		if err != nil {
			return Config{}, fmt.Errorf("exchange #%d (%s): %w", i, e.Platform, err)
		}
		if seen[ex.Platform] {
			return Config{}, fmt.Errorf("exchange %s is configured twice", ex.Platform)
		}
		seen[ex.Platform] = true
		cfg.Exchanges = append(cfg.Exchanges, ex)
	}

	return cfg, nil
}

func parseExchange(e ExchangeConfigTmp, getenv func(string) string) (ExchangeConfig, error) {
	ex := ExchangeConfig{
		Platform:         strings.ToLower(strings.TrimSpace(e.Platform)),
		Account:          domain.AccountID(e.Account),
		Testnet:          e.Testnet,
		PollInterval:     e.PollInterval,
		GatewayTimeout:   e.GatewayTimeout,
		ReconcileOnStart: e.ReconcileOnStart,
		Liquidation: domain.LiquidationPolicy{
			Enabled:      e.DefensiveLiquidation,
			HaltDuration: e.BuyHaltDuration,
		},
		PaperStateDir: e.PaperStateDir,
	}
	if ex.PollInterval <= 0 {
		ex.PollInterval = defaultPollInterval
	}
	if ex.GatewayTimeout <= 0 {
		ex.GatewayTimeout = defaultGatewayTimeout
	}
	if ex.Liquidation.HaltDuration <= 0 {
		ex.Liquidation.HaltDuration = defaultBuyHaltDuration
	}

	switch ex.Platform {
	case PlatformBinance:
		ex.APIKey, ex.APISecret = getenv("BINANCE_API_KEY"), getenv("BINANCE_API_SECRET")
	case PlatformBybit:
		ex.APIKey, ex.APISecret = getenv("BYBIT_API_KEY"), getenv("BYBIT_API_SECRET")
	case PlatformPaper:
	default:
		return ExchangeConfig{}, fmt.Errorf("unsupported platform %q", e.Platform)
	}
	if ex.Platform != PlatformPaper && (ex.APIKey == "" || ex.APISecret == "") {
		return ExchangeConfig{}, fmt.Errorf("%s_API_KEY and %s_API_SECRET environment variables must be set",
			strings.ToUpper(ex.Platform), strings.ToUpper(ex.Platform))
	}

	if ex.Platform == PlatformPaper {
		if err := parsePaper(e, &ex); err != nil {
			return ExchangeConfig{}, err
		}
	}

	minOrderValue, err := parseDecimal("min_order_value", e.MinOrderValue, decimal.Zero)
	if err != nil {
		return ExchangeConfig{}, err
	}

	if len(e.Pairs) == 0 {
		return ExchangeConfig{}, fmt.Errorf("at least one pair is required")
	}
	for _, p := range e.Pairs {
		policy, err := parsePair(p, minOrderValue)
		if err != nil {
			return ExchangeConfig{}, fmt.Errorf("pair %s: %w", p.Pair, err)
		}
		ex.Pairs = append(ex.Pairs, policy)
	}

	return ex, nil
}

func parsePaper(e ExchangeConfigTmp, ex *ExchangeConfig) error {
	ex.PaperBalances = make(map[string]decimal.Decimal, len(e.PaperBalances))
	for currency, amount := range e.PaperBalances {
		d, err := parseDecimal("paper_balances."+currency, amount, decimal.Zero)
		if err != nil {
			return err
		}
		ex.PaperBalances[strings.ToUpper(currency)] = d
	}

	fee, err := parseDecimal("paper_fee", e.PaperFee, decimal.NewFromFloat(0.001))
	if err != nil {
		return err
	}
	ex.PaperFee = fee

	return nil
}

func parsePair(p PairConfigTmp, exchangeMinOrderValue decimal.Decimal) (domain.PairPolicy, error) {
	pair, err := domain.ParsePair(p.Pair)
	if err != nil {
		return domain.PairPolicy{}, fmt.Errorf("incorrect 'pair' param in yaml config: %w", err)
	}

	policy := domain.PairPolicy{Pair: pair}
	for _, f := range []struct {
		name  string
		value string
		def   decimal.Decimal
		dst   *decimal.Decimal
	}{
		{"spread_cut_percent", p.SpreadCutPercent, decimal.NewFromInt(3), &policy.SpreadCutPercent},
		{"allocation_cut_quote", p.AllocationCutQuote, decimal.NewFromInt(1), &policy.QuoteAllocationCut},
		{"allocation_cut_base", p.AllocationCutBase, decimal.NewFromInt(1), &policy.BaseAllocationCut},
		{"margin_percent", p.MarginPercent, decimal.NewFromFloat(0.011), &policy.Margin},
		{"order_disparity", p.OrderDisparity, decimal.NewFromFloat(0.025), &policy.OrderDisparity},
		{"min_base_quantity", p.MinBaseQuantity, decimal.Zero, &policy.MinBaseQuantity},
		{"min_order_value", p.MinOrderValue, exchangeMinOrderValue, &policy.MinOrderValue},
	} {
		d, err := parseDecimal(f.name, f.value, f.def)
		if err != nil {
			return domain.PairPolicy{}, err
		}
		*f.dst = d
	}

	one := decimal.NewFromInt(1)
	for name, cut := range map[string]decimal.Decimal{
		"allocation_cut_quote": policy.QuoteAllocationCut,
		"allocation_cut_base":  policy.BaseAllocationCut,
	} {
		if !cut.IsPositive() || cut.GreaterThan(one) {
			return domain.PairPolicy{}, fmt.Errorf("incorrect '%s' param in yaml config: %s, must be in (0, 1]", name, cut)
		}
	}
	if policy.Margin.IsNegative() || policy.Margin.GreaterThanOrEqual(one) {
		return domain.PairPolicy{}, fmt.Errorf("incorrect 'margin_percent' param in yaml config: %s, must be in [0, 1)", policy.Margin)
	}
	if policy.OrderDisparity.IsNegative() || policy.OrderDisparity.GreaterThanOrEqual(one) {
		return domain.PairPolicy{}, fmt.Errorf("incorrect 'order_disparity' param in yaml config: %s, must be in [0, 1)", policy.OrderDisparity)
	}

	return policy, nil
}

func parseDecimal(name, value string, def decimal.Decimal) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return def, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("incorrect '%s' param in yaml config (must be a decimal), error: %w", name, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("incorrect '%s' param in yaml config: %s, must not be negative", name, d)
	}

	return d, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
