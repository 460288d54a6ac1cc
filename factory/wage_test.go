package factory_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/touchfish/earnings"
	"github.com/warp/touchfish/factory"
)

func TestParseWage_NumbersOrStrings(t *testing.T) {
	f := factory.NewWageFactory()

	fromNumbers, err := f.ParseWage(`{"income_type":"hourly","hourly_rate":28,"tax_rate":11}`)
	require.NoError(t, err)
	fromStrings, err := f.ParseWage(`{"income_type":"hourly","hourly_rate":"28","tax_rate":"11%"}`)
	require.NoError(t, err)

	assert.True(t, fromNumbers.Equal(fromStrings))
	assert.Equal(t, "0.006922", earnings.EarningPerSecond(fromNumbers).Round(6).String())
}

func TestParseWage_GarbageFieldsBecomeZero(t *testing.T) {
	f := factory.NewWageFactory()

	cfg, err := f.ParseWage(`{"income_type":"monthly","monthly_income":"lots","tax_rate":null,"hours_per_day":true,"days_per_month":{}}`)

	require.NoError(t, err)
	assert.Equal(t, earnings.IncomeMonthly, cfg.IncomeType)
	assert.True(t, cfg.MonthlyIncome.IsZero())
	assert.True(t, cfg.TaxRatePercent.IsZero())
	assert.True(t, cfg.HoursPerDay.IsZero())
	assert.True(t, cfg.DaysPerMonth.IsZero())
	assert.True(t, earnings.EarningPerSecond(cfg).IsZero())
}

func TestParseWage_MissingIncomeTypeIsHourly(t *testing.T) {
	cfg, err := factory.NewWageFactory().ParseWage(`{"hourly_rate":"36"}`)
	require.NoError(t, err)
	assert.Equal(t, earnings.IncomeHourly, cfg.IncomeType)
	assert.Equal(t, "0.01", earnings.EarningPerSecond(cfg).String())
}

func TestParseWage_BadSyntax(t *testing.T) {
	_, err := factory.NewWageFactory().ParseWage(`{"hourly_rate":`)
	assert.Error(t, err)
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := factory.NewWageFactory()
	cfg, err := f.ParseWage(`{"income_type":"monthly","monthly_income":5000,"tax_rate":11,"hours_per_day":8,"days_per_month":22}`)
	require.NoError(t, err)

	raw, err := json.Marshal(factory.ToJSON(cfg))
	require.NoError(t, err)
	back, err := f.ParseWage(string(raw))
	require.NoError(t, err)

	assert.True(t, back.Equal(cfg))
}

func TestPresetRegistry(t *testing.T) {
	r := factory.NewPresetRegistry(factory.DefaultPresets()...)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "hourly-default", list[0].Name)
	assert.Equal(t, "monthly-default", list[1].Name)

	// Later registrations replace earlier ones.
	r.Register(factory.Preset{Name: "hourly-default", Wage: factory.HourlyJSON("100", "11")})
	p, ok := r.Get("hourly-default")
	require.True(t, ok)
	cfg := factory.NewWageFactory().Build(p.Wage)
	assert.Equal(t, "0.0247", earnings.EarningPerSecond(cfg).Round(4).String())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}
