package usage

import (
	"fmt"
	"math"

	"github.com/roach88/leafline/internal/entity"
)

// Severity classifies how much of the daily budget is consumed.
type Severity string

const (
	SeverityNone      Severity = ""
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityExhausted Severity = "exhausted"
)

// rank orders severities for crossing detection.
func (s Severity) rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	case SeverityExhausted:
		return 3
	}
	return 0
}

// Status is the polled budget state: ok, warning, critical or exhausted.
type Status string

const (
	StatusOK        Status = "ok"
	StatusWarning   Status = "warning"
	StatusCritical  Status = "critical"
	StatusExhausted Status = "exhausted"
)

// Alert is advisory guidance returned when a threshold is reached.
type Alert struct {
	Severity            Severity `json:"severity"`
	Message             string   `json:"message"`
	RemainingOperations int64    `json:"remaining_operations"`
	Action              string   `json:"action"`
	UsageRatio          float64  `json:"usage_ratio"`
	Operation           string   `json:"operation"`
	Date                string   `json:"date"`
}

// classify applies the severity ladder to rec.
func classify(rec entity.DailyUsageRecord) Severity {
	ratio := rec.UsageRatio()
	switch {
	case ratio >= 1:
		return SeverityExhausted
	case ratio >= rec.CriticalRatio:
		return SeverityCritical
	case ratio >= rec.WarningRatio:
		return SeverityWarning
	}
	return SeverityNone
}

// remainingOperations estimates how many more operations of cost fit in the budget.
func remainingOperations(rec entity.DailyUsageRecord, cost float64) int64 {
	if cost <= 0 {
		cost = 1
	}
	n := math.Floor((rec.DailyLimit - rec.WeightedCost) / cost)
	if n < 0 {
		return 0
	}
	return int64(n)
}

func newAlert(rec entity.DailyUsageRecord, sev Severity, op string, cost float64) *Alert {
	if sev == SeverityNone {
		return nil
	}
	ratio := rec.UsageRatio()
	a := &Alert{
		Severity:            sev,
		RemainingOperations: remainingOperations(rec, cost),
		UsageRatio:          ratio,
		Operation:           op,
		Date:                rec.Date,
	}
	switch sev {
	case SeverityExhausted:
		a.Message = fmt.Sprintf("daily budget exhausted: %.0f of %.0f used", rec.WeightedCost, rec.DailyLimit)
		a.Action = "serve cached data and queue writes until the budget resets"
	case SeverityCritical:
		a.Message = fmt.Sprintf("daily budget at %.0f%%, about %d operations left", ratio*100, a.RemainingOperations)
		a.Action = "limit remote calls to essential writes"
	case SeverityWarning:
		a.Message = fmt.Sprintf("daily budget at %.0f%%", ratio*100)
		a.Action = "prefer cached reads over refreshing from the remote service"
	}
	return a
}

func statusOf(sev Severity) Status {
	switch sev {
	case SeverityWarning:
		return StatusWarning
	case SeverityCritical:
		return StatusCritical
	case SeverityExhausted:
		return StatusExhausted
	}
	return StatusOK
}
