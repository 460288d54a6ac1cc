/*
Package factory provides JSON to Go wage conversion.

PURPOSE:
  Converts wage definitions typed by a user (text fields, loosely typed
  JSON) into earnings.WageConfig. Numbers may arrive as JSON numbers or
  as strings; anything unparsable becomes zero, never an error.

JSON SCHEMA:
  {
    "income_type": "hourly",          // or "monthly"
    "hourly_rate": "28",
    "monthly_income": 0,
    "tax_rate": "11%",
    "hours_per_day": 8,
    "days_per_month": "21.5"
  }

ERRORS:
  Only malformed JSON syntax is an error. Field values are coerced.

USAGE:
  f := factory.NewWageFactory()
  cfg, err := f.ParseWage(`{"income_type":"hourly","hourly_rate":"28","tax_rate":"11"}`)

SEE ALSO:
  - earnings/rate.go: ParseAmount, the coercion rule
  - presets.go: built-in wage presets
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/warp/touchfish/earnings"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// NumberText accepts a JSON number or string and keeps its text.
type NumberText string

func (n *NumberText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumberText(s)
		return nil
	}
	// Numbers, booleans, objects: keep the raw text and let coercion decide.
	*n = NumberText(data)
	return nil
}

// WageJSON is the JSON representation of a wage configuration.
type WageJSON struct {
	IncomeType    string     `json:"income_type" yaml:"income_type"`
	HourlyRate    NumberText `json:"hourly_rate,omitempty" yaml:"hourly_rate,omitempty"`
	MonthlyIncome NumberText `json:"monthly_income,omitempty" yaml:"monthly_income,omitempty"`
	TaxRate       NumberText `json:"tax_rate,omitempty" yaml:"tax_rate,omitempty"`
	HoursPerDay   NumberText `json:"hours_per_day,omitempty" yaml:"hours_per_day,omitempty"`
	DaysPerMonth  NumberText `json:"days_per_month,omitempty" yaml:"days_per_month,omitempty"`
}

// Raw converts to the engine's raw text form.
func (w WageJSON) Raw() earnings.RawWage {
	return earnings.RawWage{
		IncomeType:    w.IncomeType,
		HourlyRate:    string(w.HourlyRate),
		MonthlyIncome: string(w.MonthlyIncome),
		TaxRate:       string(w.TaxRate),
		HoursPerDay:   string(w.HoursPerDay),
		DaysPerMonth:  string(w.DaysPerMonth),
	}
}

// =============================================================================
// WAGE FACTORY
// =============================================================================

// WageFactory converts JSON wages to WageConfig.
type WageFactory struct{}

// NewWageFactory creates a new wage factory.
func NewWageFactory() *WageFactory {
	return &WageFactory{}
}

// ParseWage parses a JSON wage definition.
func (f *WageFactory) ParseWage(jsonStr string) (earnings.WageConfig, error) {
	var w WageJSON
	if err := json.Unmarshal([]byte(jsonStr), &w); err != nil {
		return earnings.WageConfig{}, fmt.Errorf("invalid wage JSON: %w", err)
	}
	return f.Build(w), nil
}

// Build coerces every field of w.
func (f *WageFactory) Build(w WageJSON) earnings.WageConfig {
	return w.Raw().Config()
}

// ToJSON renders a config back to its JSON form, numbers as strings.
func ToJSON(cfg earnings.WageConfig) WageJSON {
	return WageJSON{
		IncomeType:    cfg.IncomeType.String(),
		HourlyRate:    NumberText(cfg.HourlyRate.String()),
		MonthlyIncome: NumberText(cfg.MonthlyIncome.String()),
		TaxRate:       NumberText(cfg.TaxRatePercent.String()),
		HoursPerDay:   NumberText(cfg.HoursPerDay.String()),
		DaysPerMonth:  NumberText(cfg.DaysPerMonth.String()),
	}
}
