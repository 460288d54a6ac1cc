package factory

import (
	"sort"
	"sync"
)

// =============================================================================
// PRESETS - Named wage configurations
// =============================================================================

// Preset is a named wage that sessions can be created from.
type Preset struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Wage        WageJSON `json:"wage" yaml:"wage"`
}

// HourlyJSON builds the JSON form of an hourly wage.
func HourlyJSON(rate, tax string) WageJSON {
	return WageJSON{
		IncomeType: "hourly",
		HourlyRate: NumberText(rate),
		TaxRate:    NumberText(tax),
	}
}

// MonthlyJSON builds the JSON form of a monthly wage.
func MonthlyJSON(income, tax, hoursPerDay, daysPerMonth string) WageJSON {
	return WageJSON{
		IncomeType:    "monthly",
		MonthlyIncome: NumberText(income),
		TaxRate:       NumberText(tax),
		HoursPerDay:   NumberText(hoursPerDay),
		DaysPerMonth:  NumberText(daysPerMonth),
	}
}

// DefaultPresets returns the built-in presets.
func DefaultPresets() []Preset {
	return []Preset{
		{
			Name:        "hourly-default",
			Description: "28/hr, 11% tax",
			Wage:        HourlyJSON("28", "11"),
		},
		{
			Name:        "monthly-default",
			Description: "5000/month, 11% tax, 8h x 22 days",
			Wage:        MonthlyJSON("5000", "11", "8", "22"),
		},
	}
}

// PresetRegistry holds presets by name. Later registrations replace earlier ones.
type PresetRegistry struct {
	mu      sync.RWMutex
	presets map[string]Preset
}

// NewPresetRegistry creates a registry seeded with presets.
func NewPresetRegistry(presets ...Preset) *PresetRegistry {
	r := &PresetRegistry{presets: make(map[string]Preset)}
	for _, p := range presets {
		r.Register(p)
	}
	return r
}

func (r *PresetRegistry) Register(p Preset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets[p.Name] = p
}

func (r *PresetRegistry) Get(name string) (Preset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.presets[name]
	return p, ok
}

// List returns presets sorted by name.
func (r *PresetRegistry) List() []Preset {
	r.mu.RLock()
	out := make([]Preset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
