package server

import (
	"time"

	"gidas/internal/domain"
	"gidas/internal/engine"
	"gidas/internal/forecast"
	"gidas/internal/stats"
)

type CreateCategoryRequest struct {
	Name string `json:"name"`
}

type CategoryResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

func categoryResponse(c domain.Category) CategoryResponse {
	return CategoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		Active:    c.Active,
		CreatedAt: fmtTS(c.CreatedAt),
	}
}

type CreateProjectRequest struct {
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
	Folder     string `json:"folder,omitempty"`
}

type ProjectResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
	Folder     string `json:"folder,omitempty"`
	Closed     bool   `json:"closed"`
	CreatedAt  string `json:"created_at"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:         p.ID,
		Name:       p.Name,
		CategoryID: p.CategoryID,
		Folder:     p.Folder,
		Closed:     p.Closed,
		CreatedAt:  fmtTS(p.CreatedAt),
	}
}

type CreateCaseRequest struct {
	ID             *string `json:"id,omitempty"`
	ProjectID      string  `json:"project_id"`
	Note           string  `json:"note,omitempty"`
	Address        string  `json:"address,omitempty"`
	ParcelNumber   string  `json:"parcel_number,omitempty"`
	CaseWorker     string  `json:"case_worker,omitempty"`
	PostalCode     *int    `json:"postal_code,omitempty"`
	PropertyNumber *int    `json:"property_number,omitempty"`
}

type UpdateCaseRequest struct {
	Note       *string `json:"note,omitempty"`
	Address    *string `json:"address,omitempty"`
	CaseWorker *string `json:"case_worker,omitempty"`
}

type IssueOrderRequest struct {
	Deadline string `json:"deadline,omitempty"`
}

type CaseResponse struct {
	ID             string  `json:"id"`
	ProjectID      string  `json:"project_id"`
	ProjectName    string  `json:"project_name,omitempty"`
	CategoryName   string  `json:"category_name,omitempty"`
	Status         string  `json:"status"`
	HasOrder       bool    `json:"has_order"`
	OrderOverdue   bool    `json:"order_overdue"`
	CreatedAt      string  `json:"created_at"`
	FinishedAt     *string `json:"finished_reported_at,omitempty"`
	ClosedAt       *string `json:"closed_at,omitempty"`
	OrderIssuedAt  *string `json:"order_issued_at,omitempty"`
	OrderDeadline  *string `json:"order_deadline,omitempty"`
	Note           string  `json:"note,omitempty"`
	Address        string  `json:"address,omitempty"`
	ParcelNumber   string  `json:"parcel_number,omitempty"`
	CaseWorker     string  `json:"case_worker,omitempty"`
	PostalCode     *int    `json:"postal_code,omitempty"`
	PropertyNumber *int    `json:"property_number,omitempty"`
	UpdatedAt      string  `json:"updated_at"`
}

func caseResponse(st engine.CaseStatus) CaseResponse {
	c := st.Case
	return CaseResponse{
		ID:             c.ID,
		ProjectID:      c.ProjectID,
		ProjectName:    c.ProjectName,
		CategoryName:   c.CategoryName,
		Status:         st.Result.Bucket.String(),
		HasOrder:       st.Result.HasOrder,
		OrderOverdue:   st.Result.OrderOverdue,
		CreatedAt:      fmtTS(c.CreatedAt),
		FinishedAt:     fmtTSPtr(c.FinishedReportedAt),
		ClosedAt:       fmtTSPtr(c.ClosedAt),
		OrderIssuedAt:  fmtTSPtr(c.OrderIssuedAt),
		OrderDeadline:  fmtTSPtr(c.OrderDeadline),
		Note:           c.Note,
		Address:        c.Address,
		ParcelNumber:   c.ParcelNumber,
		CaseWorker:     c.CaseWorker,
		PostalCode:     c.PostalCode,
		PropertyNumber: c.PropertyNumber,
		UpdatedAt:      fmtTS(c.UpdatedAt),
	}
}

func mapCases(items []engine.CaseStatus) []CaseResponse {
	res := make([]CaseResponse, 0, len(items))
	for _, st := range items {
		res = append(res, caseResponse(st))
	}
	return res
}

type paginatedCases struct {
	Items      []CaseResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type ActivityEventResponse struct {
	ID      int64  `json:"id"`
	CaseID  string `json:"case_id"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	Note    string `json:"note,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

func mapActivity(items []domain.CaseEvent) []ActivityEventResponse {
	res := make([]ActivityEventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, ActivityEventResponse{
			ID:      e.ID,
			CaseID:  e.CaseID,
			TS:      fmtTS(e.TS),
			Type:    e.Type,
			Note:    e.Note,
			ActorID: e.ActorID,
		})
	}
	return res
}

type CategoryOrdersResponse struct {
	Category string `json:"category"`
	Total    int    `json:"total"`
	Active   int    `json:"active"`
	Overdue  int    `json:"overdue"`
}

func ordersReportResponse(items []engine.CategoryOrders) []CategoryOrdersResponse {
	res := make([]CategoryOrdersResponse, 0, len(items))
	for _, o := range items {
		res = append(res, CategoryOrdersResponse{
			Category: o.Category,
			Total:    o.Total,
			Active:   o.Active,
			Overdue:  o.Overdue,
		})
	}
	return res
}

type CaseEventResponse struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	Note    string `json:"note,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

func mapCaseEvents(items []domain.CaseEvent) []CaseEventResponse {
	res := make([]CaseEventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, CaseEventResponse{
			ID:      e.ID,
			TS:      fmtTS(e.TS),
			Type:    e.Type,
			Note:    e.Note,
			ActorID: e.ActorID,
		})
	}
	return res
}

type CategoryStatsResponse struct {
	Category        string             `json:"category"`
	Variant         string             `json:"variant"`
	Counts          stats.BucketCounts `json:"counts"`
	Total           int                `json:"total"`
	OrdersTotal     int                `json:"orders_total"`
	OrdersActive    int                `json:"orders_active"`
	OrdersOverdue   int                `json:"orders_overdue"`
	CreatedLastYear int                `json:"created_last_year"`
}

func categoryStatsResponse(cs engine.CategoryStats) CategoryStatsResponse {
	return CategoryStatsResponse{
		Category:        cs.Category,
		Variant:         cs.Variant.String(),
		Counts:          cs.Counts,
		Total:           cs.Counts.Total(),
		OrdersTotal:     cs.OrdersTotal,
		OrdersActive:    cs.OrdersActive,
		OrdersOverdue:   cs.OrdersOverdue,
		CreatedLastYear: cs.CreatedLastYear,
	}
}

type MonthPointResponse struct {
	Month     int `json:"month"`
	Created   int `json:"created"`
	Completed int `json:"completed"`
}

type MonthlyTrendResponse struct {
	Category string               `json:"category"`
	Year     int                  `json:"year"`
	Months   []MonthPointResponse `json:"months"`
}

func monthlyTrendResponse(category string, year int, points []engine.MonthPoint) MonthlyTrendResponse {
	res := MonthlyTrendResponse{Category: category, Year: year, Months: make([]MonthPointResponse, 0, len(points))}
	for _, p := range points {
		res.Months = append(res.Months, MonthPointResponse{
			Month:     int(p.Month),
			Created:   p.Created,
			Completed: p.Completed,
		})
	}
	return res
}

type CategoryProcessingResponse struct {
	Category         string  `json:"category"`
	AverageDays      float64 `json:"average_days"`
	Included         int     `json:"included"`
	MissingDates     int     `json:"missing_dates"`
	NegativeDurs     int     `json:"negative_durations"`
	InsufficientData bool    `json:"insufficient_data"`
}

type ProcessingReportResponse struct {
	Overall          stats.ProcessingTimes        `json:"overall"`
	InsufficientData bool                         `json:"insufficient_data"`
	ByCategory       []CategoryProcessingResponse `json:"by_category"`
}

func processingReportResponse(r engine.ProcessingReport) ProcessingReportResponse {
	res := ProcessingReportResponse{
		Overall:          r.Overall,
		InsufficientData: r.InsufficientData,
		ByCategory:       make([]CategoryProcessingResponse, 0, len(r.ByCategory)),
	}
	for _, c := range r.ByCategory {
		res.ByCategory = append(res.ByCategory, CategoryProcessingResponse{
			Category:         c.Category,
			AverageDays:      c.Times.AverageDays,
			Included:         c.Times.Included,
			MissingDates:     c.Times.MissingDates,
			NegativeDurs:     c.Times.NegativeDurations,
			InsufficientData: c.InsufficientData,
		})
	}
	return res
}

type MonthPatternResponse struct {
	Month         int     `json:"month"`
	MonthName     string  `json:"month_name"`
	TotalCases    int     `json:"total_cases"`
	SeasonalIndex float64 `json:"seasonal_index"`
	IsPeak        bool    `json:"is_peak"`
	IsLow         bool    `json:"is_low"`
}

type SeasonalResponse struct {
	Category          string                 `json:"category"`
	Patterns          []MonthPatternResponse `json:"monthly_patterns"`
	PeakMonths        []string               `json:"peak_months"`
	LowMonths         []string               `json:"low_months"`
	SeasonalVariation float64                `json:"seasonal_variation"`
}

func seasonalResponse(category string, r engine.SeasonalReport) SeasonalResponse {
	res := SeasonalResponse{
		Category:          category,
		Patterns:          make([]MonthPatternResponse, 0, len(r.Patterns)),
		PeakMonths:        monthNames(r.PeakMonths),
		LowMonths:         monthNames(r.LowMonths),
		SeasonalVariation: r.SeasonalVariation,
	}
	for _, p := range r.Patterns {
		res.Patterns = append(res.Patterns, MonthPatternResponse{
			Month:         int(p.Month),
			MonthName:     p.Month.String(),
			TotalCases:    p.TotalCases,
			SeasonalIndex: p.SeasonalIndex,
			IsPeak:        p.IsPeak,
			IsLow:         p.IsLow,
		})
	}
	return res
}

func monthNames(months []time.Month) []string {
	res := make([]string, 0, len(months))
	for _, m := range months {
		res = append(res, m.String())
	}
	return res
}

type TrendPointResponse struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Cases int `json:"cases"`
}

type ForecastPointResponse struct {
	Year       int     `json:"year"`
	Month      int     `json:"month"`
	Forecast   int     `json:"forecasted_cases"`
	Confidence float64 `json:"confidence"`
}

type ForecastResponse struct {
	Category    string                  `json:"category"`
	Historical  []TrendPointResponse    `json:"historical_data"`
	Trend       forecast.TrendResult    `json:"trend_analysis"`
	Periods     []ForecastPointResponse `json:"forecast_periods"`
	DataQuality string                  `json:"data_quality"`
}

func forecastResponse(category string, r engine.ForecastReport) ForecastResponse {
	res := ForecastResponse{
		Category:    category,
		Historical:  make([]TrendPointResponse, 0, len(r.Historical)),
		Trend:       r.Trend,
		Periods:     make([]ForecastPointResponse, 0, len(r.Periods)),
		DataQuality: r.DataQuality,
	}
	for _, h := range r.Historical {
		res.Historical = append(res.Historical, TrendPointResponse{Year: h.Year, Month: int(h.Month), Cases: h.Cases})
	}
	for _, p := range r.Periods {
		res.Periods = append(res.Periods, ForecastPointResponse{Year: p.Year, Month: int(p.Month), Forecast: p.Forecast, Confidence: p.Confidence})
	}
	return res
}

type CapacityResponse struct {
	Category string                `json:"category"`
	Plan     forecast.CapacityPlan `json:"capacity"`
}

func fmtTS(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fmtTSPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTS(*t)
	return &s
}
