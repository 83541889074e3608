package risk

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Alias1177/fxsignal/internal/model"
)

// Instrument describes how one symbol, or a family matched by a glob such as
// "*JPY", is priced and traded
type Instrument struct {
	Match        string  `yaml:"match" validate:"required"`
	PipSize      float64 `yaml:"pip_size" validate:"gt=0"`
	ContractSize float64 `yaml:"contract_size" default:"100000" validate:"gt=0"`
	// PipValue overrides the derived per-lot pip value. It is taken as
	// already in the account currency.
	PipValue float64 `yaml:"pip_value" validate:"gte=0"`
	Digits   int     `yaml:"digits" default:"5" validate:"gte=0,lte=8"`
	LotMin   float64 `yaml:"lot_min" default:"0.01" validate:"gt=0"`
	LotMax   float64 `yaml:"lot_max" default:"100" validate:"gtefield=LotMin"`
	LotStep  float64 `yaml:"lot_step" default:"0.01" validate:"gt=0"`
}

// PerLotPipValue is the value of one pip for one lot in the quote currency,
// or the configured override
func (i Instrument) PerLotPipValue() float64 {
	if i.PipValue > 0 {
		return i.PipValue
	}
	return i.PipSize * i.ContractSize
}

// AccountPipValue is the per-lot pip value in the account currency at price
func (i Instrument) AccountPipValue(symbol, account string, price float64) float64 {
	if i.PipValue > 0 {
		return i.PipValue
	}
	return ToAccount(symbol, account, i.PipSize*i.ContractSize, price)
}

// Currencies splits a pair such as "USDJPY" or "USD/JPY" into its legs
func Currencies(symbol string) (base, quote string, ok bool) {
	s := strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
	if len(s) != 6 {
		return "", "", false
	}
	return s[:3], s[3:], true
}

// ToAccount converts amount from the quote currency of symbol into the
// account currency at price. When the account holds the base currency the
// amount is divided by price. Without a direct leg the amount is returned
// unconverted.
func ToAccount(symbol, account string, amount, price float64) float64 {
	base, quote, ok := Currencies(symbol)
	if !ok || account == "" {
		return amount
	}
	account = strings.ToUpper(account)
	if quote == account || base != account || price <= 0 {
		return amount
	}
	return amount / price
}

// Info converts the instrument into broker symbol metadata
func (i Instrument) Info(symbol string) model.SymbolInfo {
	return model.SymbolInfo{
		Symbol:       symbol,
		ContractSize: i.ContractSize,
		Digits:       i.Digits,
		LotMin:       i.LotMin,
		LotMax:       i.LotMax,
		LotStep:      i.LotStep,
	}
}

// Instruments is the lookup table. Exact matches win over globs, globs are
// tried in file order, and Default covers everything else.
type Instruments struct {
	Default Instrument   `yaml:"default"`
	Symbols []Instrument `yaml:"symbols" validate:"dive"`
}

// DefaultInstruments is the built-in table used without a file
func DefaultInstruments() *Instruments {
	base := Instrument{Match: "*", PipSize: 0.0001, ContractSize: 100000, Digits: 5, LotMin: 0.01, LotMax: 100, LotStep: 0.01}
	jpy := base
	jpy.Match, jpy.PipSize, jpy.Digits = "*JPY", 0.01, 3
	gold := base
	gold.Match, gold.PipSize, gold.ContractSize, gold.Digits = "XAU*", 0.1, 100, 2
	silver := base
	silver.Match, silver.PipSize, silver.ContractSize, silver.Digits = "XAG*", 0.01, 5000, 3
	return &Instruments{Default: base, Symbols: []Instrument{jpy, gold, silver}}
}

// LoadInstruments reads a YAML table file
func LoadInstruments(file string) (*Instruments, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read instruments: %w", err)
	}
	var t Instruments
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode instruments: %w", err)
	}
	if err := t.Prepare(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Prepare fills defaults and validates a decoded table
func (t *Instruments) Prepare() error {
	if t.Default.PipSize == 0 {
		t.Default = DefaultInstruments().Default
	}
	if t.Default.Match == "" {
		t.Default.Match = "*"
	}
	if err := defaults.Set(&t.Default); err != nil {
		return fmt.Errorf("instrument defaults: %w", err)
	}
	for i := range t.Symbols {
		if err := defaults.Set(&t.Symbols[i]); err != nil {
			return fmt.Errorf("instrument defaults: %w", err)
		}
	}
	if err := validator.New().Struct(t); err != nil {
		return fmt.Errorf("validate instruments: %w", err)
	}
	return nil
}

// Lookup returns the instrument entry for symbol
func (t *Instruments) Lookup(symbol string) Instrument {
	symbol = strings.ToUpper(symbol)
	for _, in := range t.Symbols {
		if strings.EqualFold(in.Match, symbol) {
			return in
		}
	}
	for _, in := range t.Symbols {
		if !strings.ContainsAny(in.Match, "*?[") {
			continue
		}
		if ok, _ := path.Match(strings.ToUpper(in.Match), symbol); ok {
			return in
		}
	}
	return t.Default
}

// PipSize returns the pip size of symbol
func (t *Instruments) PipSize(symbol string) float64 {
	return t.Lookup(symbol).PipSize
}
