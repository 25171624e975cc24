package classify

import (
	"testing"
	"time"

	"gidas/internal/domain"
)

func intp(v int) *int { return &v }

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestReportFlagDecoding(t *testing.T) {
	if got := ReportFlagOf(nil); got != ReportNotSet {
		t.Fatalf("nil: got %v", got)
	}
	if got := ReportFlagOf(nil).Normalized(); got != ReportInProgress {
		t.Fatalf("nil normalized: got %v", got)
	}
	if got := ReportFlagOf(intp(-1)); got != ReportClosedLegacy {
		t.Fatalf("-1: got %v", got)
	}
	if got := ReportFlagOf(intp(7)); got != ReportOther {
		t.Fatalf("7: got %v", got)
	}
}

func TestDualFlagBuckets(t *testing.T) {
	cases := []struct {
		name     string
		reported *int
		closed   *int
		want     Bucket
	}{
		{"both unset", nil, nil, BucketActive},
		{"in progress with nil close", intp(0), nil, BucketActive},
		{"explicit zeros", intp(0), intp(0), BucketActive},
		{"finished only", intp(1), intp(0), BucketFinishedReported},
		{"finished nil close", intp(1), nil, BucketFinishedReported},
		{"closed via close flag", intp(0), intp(1), BucketClosed},
		{"closed via legacy report code alone", intp(-1), intp(0), BucketClosed},
		{"legacy report code beats finished close", intp(-1), nil, BucketClosed},
		{"finished and closed", intp(1), intp(1), BucketClosed},
		{"legacy close without report", intp(0), intp(-1), BucketClosedWithoutReport},
		{"unknown report value stays active", intp(5), nil, BucketActive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := domain.Case{ID: "c1", CreatedAt: testNow, FinishedReported: tc.reported, Closed: tc.closed}
			got := Classify(c, VariantDualFlag, testNow)
			if got.Bucket != tc.want {
				t.Fatalf("got %v, want %v", got.Bucket, tc.want)
			}
		})
	}
}

func TestSingleFlagBuckets(t *testing.T) {
	cases := []struct {
		name   string
		closed *int
		want   Bucket
	}{
		{"legacy closed", intp(-1), BucketClosed},
		{"open", intp(0), BucketActive},
		{"unset", nil, BucketActive},
		{"new closed code is edge state", intp(1), BucketClosedWithoutReport},
		{"unknown code is edge state", intp(2), BucketClosedWithoutReport},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Report flag must not influence single-flag categories.
			c := domain.Case{ID: "c1", CreatedAt: testNow, FinishedReported: intp(1), Closed: tc.closed}
			got := Classify(c, VariantSingleFlag, testNow)
			if got.Bucket != tc.want {
				t.Fatalf("got %v, want %v", got.Bucket, tc.want)
			}
		})
	}
}

func TestOrderOverdue(t *testing.T) {
	past := testNow.Add(-48 * time.Hour)
	future := testNow.Add(48 * time.Hour)

	active := domain.Case{ID: "c1", CreatedAt: testNow, HasOrder: "Ja", OrderDeadline: &past}
	if res := Classify(active, VariantDualFlag, testNow); !res.OrderOverdue {
		t.Fatalf("active case with past deadline should be overdue")
	}

	notDue := domain.Case{ID: "c2", CreatedAt: testNow, HasOrder: "Ja", OrderDeadline: &future}
	if res := Classify(notDue, VariantDualFlag, testNow); res.OrderOverdue {
		t.Fatalf("future deadline should not be overdue")
	}

	closed := domain.Case{ID: "c3", CreatedAt: testNow, HasOrder: "Ja", OrderDeadline: &past, Closed: intp(1)}
	if res := Classify(closed, VariantDualFlag, testNow); res.OrderOverdue {
		t.Fatalf("closed case must never be overdue")
	}

	noOrder := domain.Case{ID: "c4", CreatedAt: testNow, HasOrder: "Nej", OrderDeadline: &past}
	if res := Classify(noOrder, VariantDualFlag, testNow); res.OrderOverdue || res.HasOrder {
		t.Fatalf("case without order should have no order facets")
	}
}

func TestRuleSetFallback(t *testing.T) {
	rs := NewRuleSet(map[string]Variant{
		"Separering":       VariantDualFlag,
		"Dispensationssag": VariantSingleFlag,
	})
	if v, ok := rs.VariantFor("Dispensationssag"); !ok || v != VariantSingleFlag {
		t.Fatalf("known category: got %v ok=%v", v, ok)
	}
	v, ok := rs.VariantFor("Spildevandsplan")
	if ok {
		t.Fatalf("unknown category reported as known")
	}
	if v != DefaultVariant {
		t.Fatalf("unknown category must fall back to the default variant, got %v", v)
	}
}

func TestParseVariant(t *testing.T) {
	if v, err := ParseVariant("dual-flag"); err != nil || v != VariantDualFlag {
		t.Fatalf("dual-flag: %v %v", v, err)
	}
	if v, err := ParseVariant("Single-Flag"); err != nil || v != VariantSingleFlag {
		t.Fatalf("single-flag: %v %v", v, err)
	}
	if _, err := ParseVariant("triple-flag"); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
}
