package usage

// Default budget parameters.
const (
	DefaultDailyLimit    = 1000
	DefaultWarningRatio  = 0.80
	DefaultCriticalRatio = 0.95
)

// Config holds the daily budget and per-operation cost weights.
type Config struct {
	DailyLimit    float64
	WarningRatio  float64
	CriticalRatio float64

	// Costs maps operation names to weights. Unlisted operations cost 1.
	Costs map[string]float64
}

// DefaultConfig returns the default budget with unit costs.
func DefaultConfig() Config {
	return Config{
		DailyLimit:    DefaultDailyLimit,
		WarningRatio:  DefaultWarningRatio,
		CriticalRatio: DefaultCriticalRatio,
	}
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.DailyLimit <= 0 {
		c.DailyLimit = DefaultDailyLimit
	}
	if c.WarningRatio <= 0 {
		c.WarningRatio = DefaultWarningRatio
	}
	if c.CriticalRatio <= 0 {
		c.CriticalRatio = DefaultCriticalRatio
	}
	return c
}
