package earnings

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EARNING RATE
// =============================================================================

// EarningPerSecond derives the net earning per second for cfg.
//
//	hourly:  hourlyRate * (1 - tax/100) / 3600
//	monthly: monthlyIncome * (1 - tax/100) / (daysPerMonth * hoursPerDay * 3600)
//
// A monthly config with no working seconds yields zero. The result is not
// clamped: a tax rate of 100 or more gives a zero or negative rate.
func EarningPerSecond(cfg WageConfig) decimal.Decimal {
	net := cfg.NetFactor()

	switch cfg.IncomeType {
	case IncomeMonthly:
		totalSeconds := cfg.DaysPerMonth.Mul(cfg.HoursPerDay).Mul(secondsPerHour)
		if !totalSeconds.IsPositive() {
			return decimal.Zero
		}
		return cfg.MonthlyIncome.Mul(net).Div(totalSeconds)
	default:
		return cfg.HourlyRate.Mul(net).Div(secondsPerHour)
	}
}

// Accrue returns the amount earned over elapsed at the given per-second rate.
func Accrue(elapsed time.Duration, rate decimal.Decimal) decimal.Decimal {
	return Seconds(elapsed).Mul(rate)
}

// Seconds converts a duration to an exact decimal number of seconds.
func Seconds(d time.Duration) decimal.Decimal {
	return decimal.New(int64(d), -9)
}

// =============================================================================
// INPUT COERCION
// =============================================================================

// Bounds on what ParseAmount accepts. Decimal arithmetic allocates in
// proportion to the exponent, so "1e2000000000" must not get through.
const (
	maxAmountText     = 64
	maxAmountDigits   = 30
	maxAmountExponent = 18
)

// ParseAmount turns a raw text field into a number. Anything that does not
// parse (empty, letters, "NaN") becomes zero; it is never an error.
// A trailing percent sign and thousands separators are tolerated.
// A base-10 exponent beyond ±18 or more than 30 significant digits also
// gives zero.
func ParseAmount(raw string) decimal.Decimal {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxAmountText {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if exp := d.Exponent(); exp > maxAmountExponent || exp < -maxAmountExponent {
		return decimal.Zero
	}
	if len(strings.TrimPrefix(d.Coefficient().String(), "-")) > maxAmountDigits {
		return decimal.Zero
	}
	return d
}

// RawWage is the unvalidated text form of a WageConfig, as typed by a user.
type RawWage struct {
	IncomeType    string
	HourlyRate    string
	MonthlyIncome string
	TaxRate       string
	HoursPerDay   string
	DaysPerMonth  string
}

// Config coerces every field and returns the resulting WageConfig.
func (r RawWage) Config() WageConfig {
	return WageConfig{
		IncomeType:     ParseIncomeType(strings.ToLower(strings.TrimSpace(r.IncomeType))),
		HourlyRate:     ParseAmount(r.HourlyRate),
		MonthlyIncome:  ParseAmount(r.MonthlyIncome),
		TaxRatePercent: ParseAmount(r.TaxRate),
		HoursPerDay:    ParseAmount(r.HoursPerDay),
		DaysPerMonth:   ParseAmount(r.DaysPerMonth),
	}
}
