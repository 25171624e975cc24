// Package forecast holds the pure prediction math behind the planning
// endpoints: least-squares trend fitting, moving-average smoothing and
// the capacity heuristics. Nothing here touches storage; callers feed
// in observed series and get annotated projections back.
package forecast

import (
	"math"
)

// Trend direction labels. InsufficientData marks a series too short to
// fit, so callers can render a disclaimer instead of a projection.
const (
	TrendIncreasing       = "increasing"
	TrendDecreasing       = "decreasing"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

// slopeThreshold separates a genuine direction from noise around zero.
const slopeThreshold = 0.1

// TrendResult is a fitted linear trend with projections. Confidence is
// the R² score scaled to 0..100. Forecasts are clamped at zero since a
// negative case count is meaningless.
type TrendResult struct {
	Direction  string    `json:"direction"`
	Slope      float64   `json:"slope"`
	Intercept  float64   `json:"intercept"`
	RSquared   float64   `json:"r_squared"`
	Confidence float64   `json:"confidence"`
	Forecasts  []float64 `json:"forecasts"`
}

// Insufficient reports whether the series was too short to fit.
func (r TrendResult) Insufficient() bool { return r.Direction == TrendInsufficientData }

// LinearTrend fits y = slope*x + intercept by ordinary least squares
// and projects periodsAhead values past the last observed x. Fewer
// than two points cannot determine a line; the result is then tagged
// insufficient with no forecasts.
func LinearTrend(xs, ys []float64, periodsAhead int) TrendResult {
	if len(xs) < 2 || len(ys) < 2 || len(xs) != len(ys) {
		return TrendResult{Direction: TrendInsufficientData, Forecasts: []float64{}}
	}

	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		// All x values identical; no line fits.
		return TrendResult{Direction: TrendInsufficientData, Forecasts: []float64{}}
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	// R² against the mean model. A constant series fits itself
	// perfectly, so zero residual variance counts as full confidence.
	meanY := sumY / n
	var ssRes, ssTot float64
	for i := range xs {
		pred := slope*xs[i] + intercept
		ssRes += (ys[i] - pred) * (ys[i] - pred)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}
	rSquared := 1.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}
	if rSquared < 0 {
		rSquared = 0
	}

	maxX := xs[0]
	for _, x := range xs[1:] {
		if x > maxX {
			maxX = x
		}
	}
	forecasts := make([]float64, periodsAhead)
	for i := range forecasts {
		forecasts[i] = math.Max(0, slope*(maxX+float64(i+1))+intercept)
	}

	direction := TrendStable
	switch {
	case slope > slopeThreshold:
		direction = TrendIncreasing
	case slope < -slopeThreshold:
		direction = TrendDecreasing
	}

	return TrendResult{
		Direction:  direction,
		Slope:      slope,
		Intercept:  intercept,
		RSquared:   rSquared,
		Confidence: rSquared * 100,
		Forecasts:  forecasts,
	}
}

// MovingAverage smooths a series with a trailing window. Positions
// before the window fills pass through unchanged, and a series shorter
// than the window is returned as-is.
func MovingAverage(data []float64, window int) []float64 {
	if window <= 1 || len(data) < window {
		out := make([]float64, len(data))
		copy(out, data)
		return out
	}
	out := make([]float64, len(data))
	for i := range data {
		if i < window-1 {
			out[i] = data[i]
			continue
		}
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += data[j]
		}
		out[i] = sum / float64(window)
	}
	return out
}

// Capacity planning heuristics. The workload model assumes a 20-day
// working month of 8-hour days and roughly half an hour of effort per
// processing day per case.
const (
	workingHoursPerMonth  = 20 * 8
	hoursPerDayFactor     = 0.5
	defaultProcessingDays = 85
)

// Capacity status labels.
const (
	CapacityOverloaded   = "overloaded"
	CapacityNearCapacity = "near_capacity"
	CapacityAdequate     = "adequate"
)

// CapacityPlan is a workload projection for one backlog snapshot.
type CapacityPlan struct {
	ActiveCases          int     `json:"active_cases"`
	AvgProcessingDays    float64 `json:"avg_processing_days"`
	WorkloadHours        float64 `json:"workload_hours"`
	CapacityUtilization  float64 `json:"capacity_utilization"`
	ForecastedNewCases   int     `json:"forecasted_new_cases"`
	ForecastedHours      float64 `json:"forecasted_hours"`
	TotalProjectedHours  float64 `json:"total_projected_hours"`
	Status               string  `json:"status"`
	RecommendedStaff     int     `json:"recommended_staff"`
}

// PlanCapacity derives a workload projection from the current active
// backlog and the measured average processing time. A non-positive
// average means no completions were measurable and the historical
// default is used instead.
func PlanCapacity(activeCases int, avgProcessingDays float64) CapacityPlan {
	if avgProcessingDays <= 0 {
		avgProcessingDays = defaultProcessingDays
	}
	hoursPerCase := math.Max(1, avgProcessingDays*hoursPerDayFactor)
	workload := float64(activeCases) * hoursPerCase

	newCases := activeCases / 10
	if newCases < 10 {
		newCases = 10
	}
	forecastedHours := float64(newCases) * hoursPerCase

	utilization := workload / workingHoursPerMonth * 100
	status := CapacityAdequate
	staff := 1
	switch {
	case utilization > 100:
		status = CapacityOverloaded
		staff = int(utilization/100) + 1
	case utilization > 80:
		status = CapacityNearCapacity
	}
	// Utilization is reported capped so a huge backlog does not render
	// an absurd percentage.
	if utilization > 200 {
		utilization = 200
	}

	return CapacityPlan{
		ActiveCases:         activeCases,
		AvgProcessingDays:   avgProcessingDays,
		WorkloadHours:       workload,
		CapacityUtilization: utilization,
		ForecastedNewCases:  newCases,
		ForecastedHours:     forecastedHours,
		TotalProjectedHours: workload + forecastedHours,
		Status:              status,
		RecommendedStaff:    staff,
	}
}
