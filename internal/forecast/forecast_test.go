package forecast

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestLinearTrendPerfectLine(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{2, 4, 6, 8, 10}
	res := LinearTrend(xs, ys, 3)

	if res.Direction != TrendIncreasing {
		t.Fatalf("direction = %q, want increasing", res.Direction)
	}
	if !almostEqual(res.Slope, 2) {
		t.Fatalf("slope = %f, want 2", res.Slope)
	}
	if !almostEqual(res.RSquared, 1) {
		t.Fatalf("r_squared = %f, want 1", res.RSquared)
	}
	if !almostEqual(res.Confidence, 100) {
		t.Fatalf("confidence = %f, want 100", res.Confidence)
	}
	want := []float64{12, 14, 16}
	if len(res.Forecasts) != len(want) {
		t.Fatalf("forecasts = %v", res.Forecasts)
	}
	for i := range want {
		if !almostEqual(res.Forecasts[i], want[i]) {
			t.Fatalf("forecast[%d] = %f, want %f", i, res.Forecasts[i], want[i])
		}
	}
}

func TestLinearTrendDecreasingClampsAtZero(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	ys := []float64{30, 20, 10, 0}
	res := LinearTrend(xs, ys, 4)

	if res.Direction != TrendDecreasing {
		t.Fatalf("direction = %q, want decreasing", res.Direction)
	}
	for i, f := range res.Forecasts {
		if f < 0 {
			t.Fatalf("forecast[%d] = %f, negative", i, f)
		}
	}
	// The line hits zero at x=4, so everything beyond is clamped.
	if res.Forecasts[1] != 0 {
		t.Fatalf("forecast[1] = %f, want 0", res.Forecasts[1])
	}
}

func TestLinearTrendStable(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6}
	ys := []float64{10, 10.1, 9.9, 10, 10.05, 9.95}
	res := LinearTrend(xs, ys, 1)
	if res.Direction != TrendStable {
		t.Fatalf("direction = %q, want stable (slope %f)", res.Direction, res.Slope)
	}
}

func TestLinearTrendInsufficientData(t *testing.T) {
	for _, tc := range [][2][]float64{
		{nil, nil},
		{{1}, {5}},
		{{1, 2, 3}, {5, 6}},
	} {
		res := LinearTrend(tc[0], tc[1], 6)
		if !res.Insufficient() {
			t.Fatalf("xs=%v ys=%v: expected insufficient, got %+v", tc[0], tc[1], res)
		}
		if len(res.Forecasts) != 0 {
			t.Fatalf("insufficient result carries forecasts: %v", res.Forecasts)
		}
	}
}

func TestLinearTrendConstantSeries(t *testing.T) {
	res := LinearTrend([]float64{1, 2, 3}, []float64{7, 7, 7}, 2)
	if res.Direction != TrendStable {
		t.Fatalf("direction = %q, want stable", res.Direction)
	}
	if !almostEqual(res.RSquared, 1) {
		t.Fatalf("r_squared = %f, want 1 for zero-variance fit", res.RSquared)
	}
	for i, f := range res.Forecasts {
		if !almostEqual(f, 7) {
			t.Fatalf("forecast[%d] = %f, want 7", i, f)
		}
	}
}

func TestMovingAverage(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{1, 2, 2, 3, 4}
	for i := range want {
		if !almostEqual(got[i], want[i]) {
			t.Fatalf("smoothed[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestMovingAverageShortSeries(t *testing.T) {
	in := []float64{4, 9}
	got := MovingAverage(in, 3)
	if len(got) != 2 || got[0] != 4 || got[1] != 9 {
		t.Fatalf("short series changed: %v", got)
	}
	got[0] = 99
	if in[0] != 4 {
		t.Fatal("result aliases input slice")
	}
}

func TestPlanCapacityAdequate(t *testing.T) {
	plan := PlanCapacity(2, 50)
	// 2 cases * 25h = 50h of a 160h month.
	if plan.Status != CapacityAdequate {
		t.Fatalf("status = %q, want adequate", plan.Status)
	}
	if plan.RecommendedStaff != 1 {
		t.Fatalf("staff = %d, want 1", plan.RecommendedStaff)
	}
	if !almostEqual(plan.WorkloadHours, 50) {
		t.Fatalf("workload = %f, want 50", plan.WorkloadHours)
	}
	if plan.ForecastedNewCases != 10 {
		t.Fatalf("forecasted cases = %d, want floor of 10", plan.ForecastedNewCases)
	}
}

func TestPlanCapacityOverloaded(t *testing.T) {
	plan := PlanCapacity(500, 85)
	if plan.Status != CapacityOverloaded {
		t.Fatalf("status = %q, want overloaded", plan.Status)
	}
	if plan.RecommendedStaff < 2 {
		t.Fatalf("staff = %d, want multiple", plan.RecommendedStaff)
	}
	if plan.CapacityUtilization != 200 {
		t.Fatalf("utilization = %f, want capped at 200", plan.CapacityUtilization)
	}
	if plan.ForecastedNewCases != 50 {
		t.Fatalf("forecasted cases = %d, want 50", plan.ForecastedNewCases)
	}
}

func TestPlanCapacityDefaultsProcessingDays(t *testing.T) {
	plan := PlanCapacity(1, 0)
	if !almostEqual(plan.AvgProcessingDays, 85) {
		t.Fatalf("avg days = %f, want fallback 85", plan.AvgProcessingDays)
	}
}
