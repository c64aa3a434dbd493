// Package setup implements the interactive config wizard.
package setup

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/spotchain/config"
	"github.com/vadiminshakov/spotchain/internal/domain"
	"gopkg.in/yaml.v3"
)

// GeneratedPath file the wizard writes.
const GeneratedPath = "config.gen.yaml"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// answers collected by the wizard.
type answers struct {
	platform        string
	pair            string
	pollInterval    string
	spreadCut       string
	quoteCut        string
	baseCut         string
	margin          string
	disparity       string
	minOrderValue   string
	minBaseQuantity string
	liquidation     bool
	haltDuration    string
	paperQuote      string
}

func defaultAnswers() answers {
	return answers{
		platform:        config.PlatformPaper,
		pollInterval:    "1m",
		spreadCut:       "3",
		quoteCut:        "0.5",
		baseCut:         "1",
		margin:          "0.011",
		disparity:       "0.025",
		minOrderValue:   "10",
		minBaseQuantity: "0",
		haltDuration:    "2h",
		paperQuote:      "1000",
	}
}

func step(title string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render("SPOTCHAIN CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(title))
}

// RunTUI launches the terminal configuration wizard and returns the path of the written config.
func RunTUI() (string, error) {
	a := defaultAnswers()
	var confirm bool

	step("STEP 1: PLATFORM")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Credentials are read from BINANCE_API_KEY/SECRET or BYBIT_API_KEY/SECRET.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Exchange Platform").
				Options(
					huh.NewOption("Binance", config.PlatformBinance),
					huh.NewOption("Bybit", config.PlatformBybit),
					huh.NewOption("Paper trading", config.PlatformPaper),
				).
				Value(&a.platform),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("STEP 2: ASSET")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Trading Pair").
				Description("BASE_QUOTE, e.g. BTC_USDT").
				Value(&a.pair).
				Validate(validatePair),
			huh.NewInput().
				Title("Poll Interval").
				Description("Duration string (e.g. 30s, 1m, 5m)").
				Value(&a.pollInterval).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("STEP 3: ORDER POLICY")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Spread cut %").Description("Skip the pair when 100-100*low/last leaves this band").
				Value(&a.spreadCut).Validate(validateNonNegative),
			huh.NewInput().Title("Quote allocation cut").Description("Fraction of quote balance per buy, (0, 1]").
				Value(&a.quoteCut).Validate(validateFraction),
			huh.NewInput().Title("Base allocation cut").Description("Fraction of base balance per sell, (0, 1]").
				Value(&a.baseCut).Validate(validateFraction),
			huh.NewInput().Title("Margin").Description("Fraction applied to the reference price, 0.011 = 1.1%").
				Value(&a.margin).Validate(validateNonNegative),
			huh.NewInput().Title("Order disparity").Description("Drift that cancels a resting order, 0.025 = 2.5%").
				Value(&a.disparity).Validate(validateNonNegative),
			huh.NewInput().Title("Min order value").Description("In quote currency").
				Value(&a.minOrderValue).Validate(validateNonNegative),
			huh.NewInput().Title("Min base quantity").
				Value(&a.minBaseQuantity).Validate(validateNonNegative),
		),
	).Run()
	if err != nil {
		return "", err
	}

	step("STEP 4: PROTECTION")
	fields := []huh.Field{
		huh.NewConfirm().
			Title("Defensive liquidation").
			Description("Market-sell the base balance after a stale sell is canceled").
			Value(&a.liquidation),
		huh.NewInput().Title("Buy halt duration").Description("Buys stay paused this long after a liquidation").
			Value(&a.haltDuration).Validate(validateDuration),
	}
	if a.platform == config.PlatformPaper {
		fields = append(fields, huh.NewInput().Title("Paper quote balance").
			Value(&a.paperQuote).Validate(validateNonNegative))
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return "", err
	}

	step("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Platform: %s\nPair: %s\nInterval: %s\nSpread cut: %s%%\nMargin: %s\nDisparity: %s\nLiquidation: %t\n",
		a.platform, a.pair, a.pollInterval, a.spreadCut, a.margin, a.disparity, a.liquidation,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return "", err
	}
	if !confirm {
		return "", fmt.Errorf("setup cancelled by user")
	}

	if err := write(GeneratedPath, a); err != nil {
		return "", err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting bot...", GeneratedPath)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message

	return GeneratedPath, nil
}

// fileConfig builds the YAML document from wizard answers.
func fileConfig(a answers) (config.FileConfig, error) {
	pair, err := domain.ParsePair(a.pair)
	if err != nil {
		return config.FileConfig{}, err
	}
	poll, err := time.ParseDuration(a.pollInterval)
	if err != nil {
		return config.FileConfig{}, err
	}
	halt, err := time.ParseDuration(a.haltDuration)
	if err != nil {
		return config.FileConfig{}, err
	}

	ex := config.ExchangeConfigTmp{
		Platform:             a.platform,
		PollInterval:         poll,
		DefensiveLiquidation: a.liquidation,
		BuyHaltDuration:      halt,
		MinOrderValue:        a.minOrderValue,
		Pairs: []config.PairConfigTmp{{
			Pair:               pair.String(),
			SpreadCutPercent:   a.spreadCut,
			AllocationCutQuote: a.quoteCut,
			AllocationCutBase:  a.baseCut,
			MarginPercent:      a.margin,
			OrderDisparity:     a.disparity,
			MinBaseQuantity:    a.minBaseQuantity,
		}},
	}
	if a.platform == config.PlatformPaper {
		ex.PaperBalances = map[string]string{pair.To: a.paperQuote}
	}

	return config.FileConfig{Exchanges: []config.ExchangeConfigTmp{ex}}, nil
}

func write(path string, a answers) error {
	fc, err := fileConfig(a)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}

func validatePair(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("pair cannot be empty")
	}
	_, err := domain.ParsePair(s)
	return err
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateNonNegative(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateFraction(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("must be in (0, 1]")
	}
	return nil
}
