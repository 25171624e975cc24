package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"gidas/internal/classify"
	"gidas/internal/config"
	"gidas/internal/domain"
	"gidas/internal/events"
	"gidas/internal/forecast"
	"gidas/internal/repo"
	"gidas/internal/stats"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Rules  *classify.RuleSet
	Now    func() time.Time
	Log    *slog.Logger
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Rules:  cfg.RuleSet(),
		Now:    time.Now,
		Log:    slog.Default(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

// variantFor resolves the status rule variant for a category. Unknown
// categories fall back to the dual-flag rules; that fallback is logged
// once per call site since it usually means the config is missing a
// binding.
func (e Engine) variantFor(category string) classify.Variant {
	if e.Rules != nil {
		if v, ok := e.Rules.VariantFor(category); ok {
			return v
		}
	}
	e.log().Warn("no status rule bound for category, using dual-flag", "category", category)
	return classify.DefaultVariant
}

// CategoryStats is the per-category dashboard summary.
type CategoryStats struct {
	Category        string
	Variant         classify.Variant
	Counts          stats.BucketCounts
	OrdersTotal     int
	OrdersActive    int
	OrdersOverdue   int
	CreatedLastYear int
}

// CategoryStats computes the dashboard summary for one category. All
// counts come from classifying the record set; nothing is estimated or
// extrapolated. A zero from/to leaves that side of the creation-date
// window open.
func (e Engine) CategoryStats(ctx context.Context, category string, from, to time.Time) (CategoryStats, error) {
	records, err := e.Repo.FetchCases(ctx, category, from, to)
	if err != nil {
		return CategoryStats{}, err
	}
	now := e.now()
	v := e.variantFor(category)
	return CategoryStats{
		Category:        category,
		Variant:         v,
		Counts:          stats.CountByBucket(records, v, now),
		OrdersTotal:     stats.CountWithOrders(records, v, false, now),
		OrdersActive:    stats.CountWithOrders(records, v, true, now),
		OrdersOverdue:   stats.CountOverdueOrders(records, v, now),
		CreatedLastYear: stats.CountCreatedSince(records, now.AddDate(-1, 0, 0)),
	}, nil
}

// MonthPoint is one month of the created/completed trend.
type MonthPoint struct {
	Month     time.Month
	Created   int
	Completed int
}

// MonthlyTrend returns twelve months of case creation and completion
// counts for a year. Completed means the report was filed; the count
// buckets on the report date.
func (e Engine) MonthlyTrend(ctx context.Context, category string, year int) ([]MonthPoint, error) {
	records, err := e.Repo.FetchCases(ctx, category, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	created := stats.MonthlyHistogram(records, stats.FieldCreatedAt, year)

	var finished []domain.Case
	for _, c := range records {
		if classify.ReportFlagOf(c.FinishedReported) == classify.ReportFinished {
			finished = append(finished, c)
		}
	}
	completed := stats.MonthlyHistogram(finished, stats.FieldFinishedReportedAt, year)

	points := make([]MonthPoint, 12)
	for i := range points {
		points[i] = MonthPoint{
			Month:     created[i].Month,
			Created:   created[i].Count,
			Completed: completed[i].Count,
		}
	}
	return points, nil
}

// CategoryProcessing is one category's processing-time summary.
type CategoryProcessing struct {
	Category         string
	Times            stats.ProcessingTimes
	InsufficientData bool
}

// ProcessingReport is the processing-time view across categories.
type ProcessingReport struct {
	Overall          stats.ProcessingTimes
	InsufficientData bool
	ByCategory       []CategoryProcessing
}

// ProcessingTimes measures creation-to-completion durations overall
// and per category. Categories with no measurable durations are
// tagged rather than reported as zero-day averages.
func (e Engine) ProcessingTimes(ctx context.Context) (ProcessingReport, error) {
	names, err := e.Repo.CategoryNames(ctx)
	if err != nil {
		return ProcessingReport{}, err
	}
	now := e.now()
	var report ProcessingReport
	var totalDays float64
	for _, name := range names {
		records, err := e.Repo.FetchCases(ctx, name, time.Time{}, time.Time{})
		if err != nil {
			return ProcessingReport{}, err
		}
		pt := stats.AverageProcessingDays(records, e.variantFor(name), now)
		report.ByCategory = append(report.ByCategory, CategoryProcessing{
			Category:         name,
			Times:            pt,
			InsufficientData: pt.Insufficient(),
		})
		totalDays += pt.AverageDays * float64(pt.Included)
		report.Overall.Included += pt.Included
		report.Overall.MissingDates += pt.MissingDates
		report.Overall.NegativeDurations += pt.NegativeDurations
	}
	if report.Overall.Included > 0 {
		report.Overall.AverageDays = totalDays / float64(report.Overall.Included)
	}
	report.InsufficientData = report.Overall.Insufficient()
	return report, nil
}

// MonthPattern is one month of the seasonal profile.
type MonthPattern struct {
	Month         time.Month
	TotalCases    int
	SeasonalIndex float64
	IsPeak        bool
	IsLow         bool
}

// SeasonalReport is the seasonal intake profile for a category.
type SeasonalReport struct {
	Patterns          []MonthPattern
	PeakMonths        []time.Month
	LowMonths         []time.Month
	SeasonalVariation float64
}

const (
	peakIndexThreshold = 1.2
	lowIndexThreshold  = 0.8
)

// SeasonalAnalysis profiles case intake by calendar month over the
// configured history window. A month is a peak above 1.2x the monthly
// average and a low below 0.8x. A flat index everywhere means there was
// no data to profile.
func (e Engine) SeasonalAnalysis(ctx context.Context, category string) (SeasonalReport, error) {
	years := 3
	if e.Config != nil && e.Config.Reporting.SeasonalHistoryYears > 0 {
		years = e.Config.Reporting.SeasonalHistoryYears
	}
	now := e.now()
	records, err := e.Repo.FetchCases(ctx, category, now.AddDate(-years, 0, 0), time.Time{})
	if err != nil {
		return SeasonalReport{}, err
	}

	totals := make([]int, 12)
	for _, c := range records {
		if c.CreatedAt.IsZero() {
			continue
		}
		totals[int(c.CreatedAt.Month())-1]++
	}
	index := stats.SeasonalIndex(totals)

	report := SeasonalReport{Patterns: make([]MonthPattern, 12)}
	minIdx, maxIdx := index[0], index[0]
	for i := range report.Patterns {
		p := MonthPattern{
			Month:         time.Month(i + 1),
			TotalCases:    totals[i],
			SeasonalIndex: index[i],
			IsPeak:        index[i] > peakIndexThreshold,
			IsLow:         index[i] < lowIndexThreshold,
		}
		report.Patterns[i] = p
		if p.IsPeak {
			report.PeakMonths = append(report.PeakMonths, p.Month)
		}
		if p.IsLow {
			report.LowMonths = append(report.LowMonths, p.Month)
		}
		if index[i] < minIdx {
			minIdx = index[i]
		}
		if index[i] > maxIdx {
			maxIdx = index[i]
		}
	}
	report.SeasonalVariation = maxIdx - minIdx
	return report, nil
}

// TrendPoint is one observed month in a forecast series.
type TrendPoint struct {
	Year  int
	Month time.Month
	Cases int
}

// ForecastPoint is one projected month.
type ForecastPoint struct {
	Year       int
	Month      time.Month
	Forecast   int
	Confidence float64
}

// ForecastReport is the monthly intake forecast for a category.
type ForecastReport struct {
	Historical  []TrendPoint
	Trend       forecast.TrendResult
	Periods     []ForecastPoint
	DataQuality string
}

const forecastHistoryMonths = 24

// MonthlyForecast projects case intake for the coming months from the
// last two years of observed monthly counts. With fewer than two
// observed months the trend is tagged insufficient and no periods are
// projected.
func (e Engine) MonthlyForecast(ctx context.Context, category string, monthsAhead int) (ForecastReport, error) {
	if monthsAhead <= 0 {
		monthsAhead = 6
		if e.Config != nil && e.Config.Reporting.ForecastMonthsAhead > 0 {
			monthsAhead = e.Config.Reporting.ForecastMonthsAhead
		}
	}
	now := e.now()
	records, err := e.Repo.FetchCases(ctx, category, now.AddDate(0, -forecastHistoryMonths, 0), time.Time{})
	if err != nil {
		return ForecastReport{}, err
	}

	// Only months that saw at least one case become observations, in
	// chronological order.
	counts := map[int]int{} // year*100+month
	for _, c := range records {
		if c.CreatedAt.IsZero() {
			continue
		}
		counts[c.CreatedAt.Year()*100+int(c.CreatedAt.Month())]++
	}
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	report := ForecastReport{DataQuality: "limited"}
	xs := make([]float64, 0, len(keys))
	ys := make([]float64, 0, len(keys))
	for i, k := range keys {
		report.Historical = append(report.Historical, TrendPoint{
			Year:  k / 100,
			Month: time.Month(k % 100),
			Cases: counts[k],
		})
		xs = append(xs, float64(i+1))
		ys = append(ys, float64(counts[k]))
	}
	if len(keys) >= 12 {
		report.DataQuality = "good"
	}

	report.Trend = forecast.LinearTrend(xs, ys, monthsAhead)
	if report.Trend.Insufficient() {
		return report, nil
	}
	for i := 0; i < monthsAhead; i++ {
		future := now.AddDate(0, i+1, 0)
		report.Periods = append(report.Periods, ForecastPoint{
			Year:       future.Year(),
			Month:      future.Month(),
			Forecast:   int(report.Trend.Forecasts[i]),
			Confidence: report.Trend.Confidence,
		})
	}
	return report, nil
}

// CapacityPlanning projects the workload for a category's current
// active backlog.
func (e Engine) CapacityPlanning(ctx context.Context, category string) (forecast.CapacityPlan, error) {
	records, err := e.Repo.FetchCases(ctx, category, time.Time{}, time.Time{})
	if err != nil {
		return forecast.CapacityPlan{}, err
	}
	now := e.now()
	v := e.variantFor(category)
	counts := stats.CountByBucket(records, v, now)

	// Processing average over the last year of completions only, so
	// ancient backlog cleanups do not skew the effort estimate.
	var recent []domain.Case
	cutoff := now.AddDate(-1, 0, 0)
	for _, c := range records {
		if !c.CreatedAt.Before(cutoff) {
			recent = append(recent, c)
		}
	}
	pt := stats.AverageProcessingDays(recent, v, now)
	return forecast.PlanCapacity(counts.Active, pt.AverageDays), nil
}

// CaseStatus is a classified case.
type CaseStatus struct {
	Case   domain.Case
	Result classify.Result
}

// ClassifyCase evaluates the status rules for a single record at the
// given instant.
func (e Engine) ClassifyCase(c domain.Case, now time.Time) classify.Result {
	return classify.Classify(c, e.variantFor(c.CategoryName), now)
}

// CaseStatus returns one case together with its classification.
func (e Engine) CaseStatus(ctx context.Context, id string) (CaseStatus, error) {
	c, err := e.Repo.GetCase(ctx, id)
	if err != nil {
		return CaseStatus{}, err
	}
	return CaseStatus{
		Case:   c,
		Result: classify.Classify(c, e.variantFor(c.CategoryName), e.now()),
	}, nil
}

// Search finds cases matching a free-text query and classifies each
// hit.
func (e Engine) Search(ctx context.Context, q string, limit int) ([]CaseStatus, error) {
	if q == "" {
		return nil, errors.New("query is required")
	}
	if limit <= 0 {
		limit = 50
	}
	records, err := e.Repo.SearchCases(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	now := e.now()
	res := make([]CaseStatus, 0, len(records))
	for _, c := range records {
		res = append(res, CaseStatus{
			Case:   c,
			Result: classify.Classify(c, e.variantFor(c.CategoryName), now),
		})
	}
	return res, nil
}

// SearchSuggestions returns address and case-worker completions for a
// search prefix.
func (e Engine) SearchSuggestions(ctx context.Context, prefix string, limit int) ([]string, error) {
	if prefix == "" {
		return nil, errors.New("query is required")
	}
	if limit <= 0 {
		limit = 10
	}
	return e.Repo.SuggestTerms(ctx, prefix, limit)
}

// RecentActivity returns the newest case events across every category,
// for the dashboard feed.
func (e Engine) RecentActivity(ctx context.Context, limit int) ([]domain.CaseEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	return e.Repo.RecentCaseEvents(ctx, limit)
}

// CategoryOrders summarises enforcement orders for one category.
type CategoryOrders struct {
	Category string
	Total    int
	Active   int
	Overdue  int
}

// OrdersReport returns order counts per category.
func (e Engine) OrdersReport(ctx context.Context) ([]CategoryOrders, error) {
	names, err := e.Repo.CategoryNames(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	res := make([]CategoryOrders, 0, len(names))
	for _, name := range names {
		records, err := e.Repo.FetchCases(ctx, name, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		v := e.variantFor(name)
		res = append(res, CategoryOrders{
			Category: name,
			Total:    stats.CountWithOrders(records, v, false, now),
			Active:   stats.CountWithOrders(records, v, true, now),
			Overdue:  stats.CountOverdueOrders(records, v, now),
		})
	}
	return res, nil
}

// CreateCategory registers a case category.
func (e Engine) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	if name == "" {
		return domain.Category{}, errors.New("name is required")
	}
	cat := domain.Category{
		ID:        uuid.NewString(),
		Name:      name,
		Active:    true,
		CreatedAt: e.now().UTC(),
	}
	if err := e.Repo.InsertCategory(ctx, cat); err != nil {
		return domain.Category{}, fmt.Errorf("insert category: %w", err)
	}
	if _, ok := e.Rules.VariantFor(name); !ok {
		e.log().Warn("category created without a status rule binding", "category", name)
	}
	return cat, nil
}

// CreateProject registers a project under a category.
func (e Engine) CreateProject(ctx context.Context, name, categoryID, folder string) (domain.Project, error) {
	if name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetCategory(ctx, categoryID); err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{
		ID:         uuid.NewString(),
		Name:       name,
		CategoryID: categoryID,
		Folder:     folder,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.Repo.InsertProject(ctx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

// CaseCreateOptions are parameters for registering a case.
type CaseCreateOptions struct {
	ID             string
	ProjectID      string
	Note           string
	Address        string
	ParcelNumber   string
	CaseWorker     string
	PostalCode     *int
	PropertyNumber *int
	ActorID        string
}

// CreateCase registers a new case. New cases always start active with
// no flags set.
func (e Engine) CreateCase(ctx context.Context, opts CaseCreateOptions) (domain.Case, error) {
	if opts.ProjectID == "" {
		return domain.Case{}, errors.New("project is required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Case{}, err
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	now := e.now().UTC()
	c := domain.Case{
		ID:             opts.ID,
		ProjectID:      opts.ProjectID,
		CreatedAt:      now,
		Note:           opts.Note,
		Address:        opts.Address,
		ParcelNumber:   opts.ParcelNumber,
		CaseWorker:     opts.CaseWorker,
		PostalCode:     opts.PostalCode,
		PropertyNumber: opts.PropertyNumber,
		UpdatedAt:      now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCase(ctx, tx, c); err != nil {
		return domain.Case{}, fmt.Errorf("insert case: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "case.created", c.ID, opts.ActorID, ""); err != nil {
		return domain.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

// MarkCaseFinished records that the completion report was filed. A
// closed case must be reopened first.
func (e Engine) MarkCaseFinished(ctx context.Context, id, actorID string) (domain.Case, error) {
	return e.mutateCase(ctx, id, actorID, "case.finished_reported", func(c *domain.Case, now time.Time) error {
		switch classify.Classify(*c, e.variantFor(c.CategoryName), now).Bucket {
		case classify.BucketFinishedReported:
			return fmt.Errorf("case %s is already finished-reported", id)
		case classify.BucketClosed, classify.BucketClosedWithoutReport:
			return fmt.Errorf("case %s is closed; reopen it first", id)
		}
		one := 1
		c.FinishedReported = &one
		ts := now
		c.FinishedReportedAt = &ts
		return nil
	})
}

// CloseCase archives a case after its report was filed.
func (e Engine) CloseCase(ctx context.Context, id, actorID string) (domain.Case, error) {
	return e.mutateCase(ctx, id, actorID, "case.closed", func(c *domain.Case, now time.Time) error {
		bucket := classify.Classify(*c, e.variantFor(c.CategoryName), now).Bucket
		if bucket == classify.BucketClosed || bucket == classify.BucketClosedWithoutReport {
			return fmt.Errorf("case %s is already closed", id)
		}
		one := 1
		c.Closed = &one
		ts := now
		c.ClosedAt = &ts
		return nil
	})
}

// CloseCaseWithoutReport archives a case that will never get a
// completion report.
func (e Engine) CloseCaseWithoutReport(ctx context.Context, id, actorID string) (domain.Case, error) {
	return e.mutateCase(ctx, id, actorID, "case.closed_without_report", func(c *domain.Case, now time.Time) error {
		bucket := classify.Classify(*c, e.variantFor(c.CategoryName), now).Bucket
		if bucket == classify.BucketClosed || bucket == classify.BucketClosedWithoutReport {
			return fmt.Errorf("case %s is already closed", id)
		}
		legacy := -1
		one := 1
		c.Closed = &legacy
		c.ClosedWithoutReport = &one
		ts := now
		c.ClosedAt = &ts
		return nil
	})
}

// ReopenCase clears all status flags, returning the case to active.
func (e Engine) ReopenCase(ctx context.Context, id, actorID string) (domain.Case, error) {
	return e.mutateCase(ctx, id, actorID, "case.reopened", func(c *domain.Case, now time.Time) error {
		c.FinishedReported = nil
		c.FinishedReportedAt = nil
		c.Closed = nil
		c.ClosedAt = nil
		c.ClosedWithoutReport = nil
		return nil
	})
}

// IssueOrder records an enforcement order with a compliance deadline.
func (e Engine) IssueOrder(ctx context.Context, id string, deadline time.Time, actorID string) (domain.Case, error) {
	return e.mutateCase(ctx, id, actorID, "case.order_issued", func(c *domain.Case, now time.Time) error {
		if classify.Classify(*c, e.variantFor(c.CategoryName), now).Bucket != classify.BucketActive {
			return fmt.Errorf("case %s is not active", id)
		}
		c.HasOrder = "Ja"
		ts := now
		c.OrderIssuedAt = &ts
		if !deadline.IsZero() {
			d := deadline.UTC()
			c.OrderDeadline = &d
		}
		return nil
	})
}

// CaseUpdateOptions are the editable descriptive fields.
type CaseUpdateOptions struct {
	Note       *string
	Address    *string
	CaseWorker *string
	ActorID    string
}

// UpdateCase edits a case's descriptive fields.
func (e Engine) UpdateCase(ctx context.Context, id string, opts CaseUpdateOptions) (domain.Case, error) {
	return e.mutateCase(ctx, id, opts.ActorID, "case.updated", func(c *domain.Case, now time.Time) error {
		if opts.Note != nil {
			c.Note = *opts.Note
		}
		if opts.Address != nil {
			c.Address = *opts.Address
		}
		if opts.CaseWorker != nil {
			c.CaseWorker = *opts.CaseWorker
		}
		return nil
	})
}

// DeleteCase removes a case and its history.
func (e Engine) DeleteCase(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCase(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

// CaseHistory returns a case's event trail, newest first.
func (e Engine) CaseHistory(ctx context.Context, id string, limit int) ([]domain.CaseEvent, error) {
	if _, err := e.Repo.GetCase(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListCaseEvents(ctx, id, limit)
}

// mutateCase loads a case, applies the mutation inside a transaction
// and appends the matching history event. The mutation sees the
// current row and may reject the transition.
func (e Engine) mutateCase(ctx context.Context, id, actorID, evtType string, mutate func(*domain.Case, time.Time) error) (domain.Case, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetCaseTx(ctx, tx, id)
	if err != nil {
		return domain.Case{}, err
	}
	now := e.now().UTC()
	if err := mutate(&c, now); err != nil {
		return domain.Case{}, err
	}
	c.UpdatedAt = now
	if err := e.Repo.UpdateCase(ctx, tx, c); err != nil {
		return domain.Case{}, fmt.Errorf("update case: %w", err)
	}
	if err := e.Events.Append(ctx, tx, evtType, c.ID, actorID, ""); err != nil {
		return domain.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}
