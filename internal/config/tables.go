package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Alias1177/fxsignal/internal/analysis/aggregate"
	"github.com/Alias1177/fxsignal/internal/trading/fusion"
	"github.com/Alias1177/fxsignal/internal/trading/risk"
	"github.com/Alias1177/fxsignal/internal/trading/signal"
)

var validate = validator.New()

// Tables are the lookup tables that are awkward to express as env vars.
// Values present in the file override the built-in defaults key by key.
type Tables struct {
	Instruments     risk.Instruments         `yaml:"instruments"`
	Weights         aggregate.Weights        `yaml:"weights"`
	SentimentWeight float64                  `yaml:"sentiment_weight" validate:"gte=0"`
	Margin          float64                  `yaml:"margin" validate:"gte=0"`
	AgreementTiers  aggregate.AgreementTiers `yaml:"agreement_tiers"`
	StrengthTiers   aggregate.StrengthTiers  `yaml:"strength_tiers"`
	Fusion          fusion.Config            `yaml:"fusion"`
	Signals         signal.Config            `yaml:"signals"`
}

// DefaultTables returns the built-in tables
func DefaultTables() *Tables {
	agg := aggregate.DefaultConfig()
	return &Tables{
		Instruments:     *risk.DefaultInstruments(),
		Weights:         agg.Weights,
		SentimentWeight: agg.SentimentWeight,
		Margin:          agg.Margin,
		AgreementTiers:  aggregate.DefaultAgreementTiers(),
		StrengthTiers:   agg.Tiers,
		Fusion:          fusion.DefaultConfig(),
		Signals:         signal.DefaultConfig(),
	}
}

// LoadTables decodes file over the defaults. An empty file name yields the
// defaults unchanged.
func LoadTables(file string) (*Tables, error) {
	t := DefaultTables()
	if file == "" {
		return t, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read tables: %v", ErrInvalidConfig, err)
	}
	if err := ParseTables(data, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseTables decodes YAML data into t and validates the result
func ParseTables(data []byte, t *Tables) error {
	if err := yaml.Unmarshal(data, t); err != nil {
		return fmt.Errorf("%w: decode tables: %v", ErrInvalidConfig, err)
	}
	if err := t.Instruments.Prepare(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for tf, w := range t.Weights {
		if tf.Duration() == 0 {
			return fmt.Errorf("%w: weights: unknown timeframe %q", ErrInvalidConfig, tf)
		}
		if w < 0 {
			return fmt.Errorf("%w: weights: negative weight for %s", ErrInvalidConfig, tf)
		}
	}
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: tables: %v", ErrInvalidConfig, err)
	}
	if t.Fusion.TechnicalWeight+t.Fusion.ForecastWeight <= 0 {
		return fmt.Errorf("%w: fusion weights sum to zero", ErrInvalidConfig)
	}
	return nil
}

// Aggregate returns the cross-timeframe aggregation settings
func (t *Tables) Aggregate() aggregate.Config {
	weights := make(aggregate.Weights, len(t.Weights))
	for tf, w := range t.Weights {
		weights[tf] = w
	}
	return aggregate.Config{
		Weights:         weights,
		Tiers:           t.StrengthTiers,
		SentimentWeight: t.SentimentWeight,
		Margin:          t.Margin,
	}
}
