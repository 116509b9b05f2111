package entity

// DailyUsageRecord is the consumption counter for one calendar day.
//
// Exactly one record exists per Date. WeightedCost never decreases within a
// day; a new day starts a new record with zero counters.
type DailyUsageRecord struct {
	Date           string         `json:"date"` // "2006-01-02" in device local time
	OperationCount int64          `json:"operation_count"`
	WeightedCost   float64        `json:"weighted_cost"`
	DailyLimit     float64        `json:"daily_limit"`
	WarningRatio   float64        `json:"warning_ratio"`
	CriticalRatio  float64        `json:"critical_ratio"`
	Operations     map[string]int `json:"operations,omitempty"` // per-name call counts
}

// UsageRatio returns WeightedCost / DailyLimit, or 0 for a non-positive limit.
func (r DailyUsageRecord) UsageRatio() float64 {
	if r.DailyLimit <= 0 {
		return 0
	}
	return r.WeightedCost / r.DailyLimit
}
