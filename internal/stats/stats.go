// Package stats reduces collections of case records into the KPI and
// time-series shapes the dashboards serve. All reductions are pure and
// order-independent; malformed records are skipped and counted rather
// than failed on, and every function is total over empty input.
package stats

import (
	"time"

	"gidas/internal/classify"
	"gidas/internal/domain"
)

// BucketCounts tallies cases per lifecycle bucket. Skipped counts
// records that could not be classified at all (missing id or
// creation date) and is excluded from the bucket totals.
type BucketCounts struct {
	Active              int `json:"active"`
	FinishedReported    int `json:"finished_reported"`
	Closed              int `json:"closed"`
	ClosedWithoutReport int `json:"closed_without_report"`
	Skipped             int `json:"skipped,omitempty"`
}

// Total is the number of classified records.
func (b BucketCounts) Total() int {
	return b.Active + b.FinishedReported + b.Closed + b.ClosedWithoutReport
}

func malformed(c domain.Case) bool {
	return c.ID == "" || c.CreatedAt.IsZero()
}

// CountByBucket classifies every record under the variant and tallies
// the buckets.
func CountByBucket(records []domain.Case, v classify.Variant, now time.Time) BucketCounts {
	var counts BucketCounts
	for _, c := range records {
		if malformed(c) {
			counts.Skipped++
			continue
		}
		switch classify.Classify(c, v, now).Bucket {
		case classify.BucketActive:
			counts.Active++
		case classify.BucketFinishedReported:
			counts.FinishedReported++
		case classify.BucketClosed:
			counts.Closed++
		case classify.BucketClosedWithoutReport:
			counts.ClosedWithoutReport++
		}
	}
	return counts
}

// CountWithOrders counts records carrying an enforcement order,
// optionally restricted to active cases. This is the only order-count
// operation in the system; totals are always real counts over the
// record set, never derived arithmetically from another count.
func CountWithOrders(records []domain.Case, v classify.Variant, onlyActive bool, now time.Time) int {
	n := 0
	for _, c := range records {
		if malformed(c) {
			continue
		}
		res := classify.Classify(c, v, now)
		if !res.HasOrder {
			continue
		}
		if onlyActive && res.Bucket != classify.BucketActive {
			continue
		}
		n++
	}
	return n
}

// CountOverdueOrders counts active cases whose order deadline has
// passed.
func CountOverdueOrders(records []domain.Case, v classify.Variant, now time.Time) int {
	n := 0
	for _, c := range records {
		if malformed(c) {
			continue
		}
		if classify.Classify(c, v, now).OrderOverdue {
			n++
		}
	}
	return n
}

// DateField selects which timestamp a histogram buckets on.
type DateField int

const (
	FieldCreatedAt DateField = iota
	FieldFinishedReportedAt
)

// MonthCount is one histogram entry.
type MonthCount struct {
	Month time.Month `json:"month"`
	Count int        `json:"count"`
}

// MonthlyHistogram buckets records by month of the selected date,
// restricted to the given year. The result always has twelve entries,
// January through December, zero-filled for empty months.
func MonthlyHistogram(records []domain.Case, field DateField, year int) []MonthCount {
	hist := make([]MonthCount, 12)
	for i := range hist {
		hist[i].Month = time.Month(i + 1)
	}
	for _, c := range records {
		if malformed(c) {
			continue
		}
		var ts *time.Time
		switch field {
		case FieldFinishedReportedAt:
			ts = c.FinishedReportedAt
		default:
			t := c.CreatedAt
			ts = &t
		}
		if ts == nil || ts.Year() != year {
			continue
		}
		hist[int(ts.Month())-1].Count++
	}
	return hist
}

// CountCreatedSince counts records created at or after the cutoff.
func CountCreatedSince(records []domain.Case, cutoff time.Time) int {
	n := 0
	for _, c := range records {
		if malformed(c) {
			continue
		}
		if !c.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n
}

// ProcessingTimes summarizes creation-to-completion durations.
// Included is the number of records the average is computed over;
// when it is zero the average is meaningless and callers must report
// insufficient data instead of a number.
type ProcessingTimes struct {
	AverageDays       float64 `json:"average_days"`
	Included          int     `json:"included"`
	MissingDates      int     `json:"missing_dates"`
	NegativeDurations int     `json:"negative_durations"`
}

// Insufficient reports whether no durations could be measured.
func (p ProcessingTimes) Insufficient() bool { return p.Included == 0 }

// completionDate resolves the completion timestamp for a case:
// the finished-report date when present, else the closure date.
func completionDate(c domain.Case) *time.Time {
	if c.FinishedReportedAt != nil {
		return c.FinishedReportedAt
	}
	return c.ClosedAt
}

// AverageProcessingDays averages (completion - creation) in days over
// completed records. Records without a resolvable completion date are
// excluded and counted in MissingDates. Negative durations, where the
// recorded completion precedes creation, are a data-quality artifact:
// they are excluded from the average and counted separately instead of
// being allowed to bias the result.
func AverageProcessingDays(records []domain.Case, v classify.Variant, now time.Time) ProcessingTimes {
	var out ProcessingTimes
	var totalDays float64
	for _, c := range records {
		if malformed(c) {
			continue
		}
		if !classify.Classify(c, v, now).Bucket.Completed() {
			continue
		}
		done := completionDate(c)
		if done == nil {
			out.MissingDates++
			continue
		}
		days := done.Sub(c.CreatedAt).Hours() / 24
		if days < 0 {
			out.NegativeDurations++
			continue
		}
		totalDays += days
		out.Included++
	}
	if out.Included > 0 {
		out.AverageDays = totalDays / float64(out.Included)
	}
	return out
}

// SeasonalIndex computes each month's total relative to the average
// monthly total. A flat 1.0 index is returned for every month when the
// average is zero: no signal, not a division error. The input is
// positional, January first; entries beyond twelve are ignored.
func SeasonalIndex(monthlyTotals []int) []float64 {
	index := make([]float64, 12)
	total := 0
	for i := 0; i < 12 && i < len(monthlyTotals); i++ {
		total += monthlyTotals[i]
	}
	avg := float64(total) / 12
	for i := range index {
		if avg <= 0 {
			index[i] = 1.0
			continue
		}
		v := 0
		if i < len(monthlyTotals) {
			v = monthlyTotals[i]
		}
		index[i] = float64(v) / avg
	}
	return index
}
