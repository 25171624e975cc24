// Package classify assigns a case to exactly one lifecycle bucket and
// derives enforcement-order facets. It is pure: no I/O, no errors, no
// shared state. The legacy tri-state integer columns are first mapped
// to tagged flag enumerations so that "NULL means 0" is an explicit,
// testable step instead of an implicit SQL comparison quirk.
package classify

import (
	"fmt"
	"strings"
	"time"

	"gidas/internal/domain"
)

// ReportFlag is the decoded finished-report status (FærdigmeldtInt).
type ReportFlag int

const (
	ReportNotSet       ReportFlag = iota // column NULL
	ReportInProgress                     // stored 0
	ReportFinished                       // stored 1
	ReportClosedLegacy                   // stored -1: finished and closed in one legacy code
	ReportOther                          // any other stored value
)

// ReportFlagOf decodes the raw nullable column value.
func ReportFlagOf(v *int) ReportFlag {
	if v == nil {
		return ReportNotSet
	}
	switch *v {
	case 0:
		return ReportInProgress
	case 1:
		return ReportFinished
	case -1:
		return ReportClosedLegacy
	default:
		return ReportOther
	}
}

// Normalized resolves NotSet to InProgress. A row that never had its
// finished-report column written is an in-progress case.
func (f ReportFlag) Normalized() ReportFlag {
	if f == ReportNotSet {
		return ReportInProgress
	}
	return f
}

// CloseFlag is the decoded closure status (AfsluttetInt).
type CloseFlag int

const (
	CloseNotSet       CloseFlag = iota // column NULL
	CloseOpen                          // stored 0
	CloseClosed                        // stored 1
	CloseClosedLegacy                  // stored -1: older convention for closed
	CloseOther                         // any other stored value
)

// CloseFlagOf decodes the raw nullable column value.
func CloseFlagOf(v *int) CloseFlag {
	if v == nil {
		return CloseNotSet
	}
	switch *v {
	case 0:
		return CloseOpen
	case 1:
		return CloseClosed
	case -1:
		return CloseClosedLegacy
	default:
		return CloseOther
	}
}

// Normalized resolves NotSet to Open.
func (f CloseFlag) Normalized() CloseFlag {
	if f == CloseNotSet {
		return CloseOpen
	}
	return f
}

// Bucket is the lifecycle state of a case. Exactly one bucket applies
// to a case at any time.
type Bucket int

const (
	BucketActive Bucket = iota
	BucketFinishedReported
	BucketClosed
	BucketClosedWithoutReport
)

func (b Bucket) String() string {
	switch b {
	case BucketActive:
		return "active"
	case BucketFinishedReported:
		return "finished_reported"
	case BucketClosed:
		return "closed"
	case BucketClosedWithoutReport:
		return "closed_without_report"
	default:
		return fmt.Sprintf("bucket(%d)", int(b))
	}
}

// Completed reports whether the bucket is one of the completed states.
func (b Bucket) Completed() bool {
	return b != BucketActive
}

// Variant selects which closure convention a category uses.
type Variant int

const (
	// VariantDualFlag tracks finished-report and closure as two
	// independent signals. A case is closed when either the legacy
	// combined code (-1) is present on the report flag or the close
	// flag is 1. "Active" must consult both flags; testing one flag
	// alone historically produced counts off by a factor of ~3.
	VariantDualFlag Variant = iota

	// VariantSingleFlag encodes closure purely via the close flag,
	// with -1 meaning closed and 0 meaning active. The report flag
	// is not meaningful for closure under this convention.
	VariantSingleFlag
)

// DefaultVariant applies to categories the rule table does not know.
// Dual-flag is the conservative choice: it never closes a case on a
// single signal, so an unresolved enforcement order stays visible.
const DefaultVariant = VariantDualFlag

func (v Variant) String() string {
	switch v {
	case VariantDualFlag:
		return "dual-flag"
	case VariantSingleFlag:
		return "single-flag"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant parses the config spelling of a variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "dual-flag", "dual":
		return VariantDualFlag, nil
	case "single-flag", "single":
		return VariantSingleFlag, nil
	default:
		return DefaultVariant, fmt.Errorf("unknown rule variant %q", s)
	}
}

// RuleSet maps category names to their closure-rule variant. It is
// built once from configuration at startup and never mutated; the
// per-category rules are data, not per-endpoint branching.
type RuleSet struct {
	variants map[string]Variant
}

// NewRuleSet builds a rule set from a category→variant table.
func NewRuleSet(table map[string]Variant) RuleSet {
	variants := make(map[string]Variant, len(table))
	for name, v := range table {
		variants[name] = v
	}
	return RuleSet{variants: variants}
}

// VariantFor returns the variant for a category name. The second
// return is false when the category is unknown, in which case the
// returned variant is DefaultVariant; callers decide whether to log.
func (rs RuleSet) VariantFor(category string) (Variant, bool) {
	if v, ok := rs.variants[category]; ok {
		return v, true
	}
	return DefaultVariant, false
}

// Categories returns the configured category names.
func (rs RuleSet) Categories() []string {
	names := make([]string, 0, len(rs.variants))
	for name := range rs.variants {
		names = append(names, name)
	}
	return names
}

// Result is the classification of one case.
type Result struct {
	Bucket       Bucket
	HasOrder     bool
	OrderOverdue bool
}

// HasOrder decodes the boolean-as-string order column.
func HasOrder(c domain.Case) bool {
	return strings.EqualFold(strings.TrimSpace(c.HasOrder), "ja")
}

// Classify maps one case to its lifecycle bucket and order facets
// under the given variant. It never fails: absent flags resolve to
// their in-progress defaults and unexpected stored values land in a
// defined bucket.
func Classify(c domain.Case, v Variant, now time.Time) Result {
	res := Result{
		Bucket:   bucketOf(c, v),
		HasOrder: HasOrder(c),
	}
	// Deadlines on completed cases are never overdue.
	if res.HasOrder && res.Bucket == BucketActive && c.OrderDeadline != nil && c.OrderDeadline.Before(now) {
		res.OrderOverdue = true
	}
	return res
}

func bucketOf(c domain.Case, v Variant) Bucket {
	rf := ReportFlagOf(c.FinishedReported).Normalized()
	cf := CloseFlagOf(c.Closed).Normalized()

	switch v {
	case VariantSingleFlag:
		switch cf {
		case CloseClosedLegacy:
			return BucketClosed
		case CloseOpen:
			return BucketActive
		default:
			// Unexpected codes (including 1) are surfaced as an
			// edge state rather than merged into active or closed.
			return BucketClosedWithoutReport
		}
	default: // VariantDualFlag
		if rf == ReportClosedLegacy || cf == CloseClosed {
			return BucketClosed
		}
		if rf == ReportFinished {
			return BucketFinishedReported
		}
		if cf == CloseClosedLegacy {
			return BucketClosedWithoutReport
		}
		return BucketActive
	}
}
