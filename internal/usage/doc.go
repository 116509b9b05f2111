// Package usage implements the daily usage governor.
//
// The governor counts remote operations and their weighted cost per calendar
// day against a configured budget. It is advisory: it classifies risk and
// returns guidance but never blocks an operation.
//
// Severity ladder (inclusive comparisons on weightedCost / dailyLimit):
//
//	ratio >= 1             exhausted
//	ratio >= criticalRatio critical  (default 0.95)
//	ratio >= warningRatio  warning   (default 0.80)
//	otherwise              no alert
package usage
