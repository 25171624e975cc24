package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"gidas/internal/config"
	"gidas/internal/engine"
	"gidas/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	AppCfg   *config.Config
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"case not found"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the GIDAS reporting API.
func New(cfg Config) (http.Handler, error) {
	if cfg.AppCfg == nil {
		return nil, errors.New("app config required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	if origins := cfg.AppCfg.CORS.AllowedOrigins; len(origins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	router.Use(newAuthMiddleware(basePath, cfg.AppCfg, cfg.Engine.Now))

	hcfg := huma.DefaultConfig("GIDAS Explorer API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerAuth(group, cfg.Engine, cfg.AppCfg)
	registerCategories(group, cfg.Engine)
	registerProjects(group, cfg.Engine)
	registerCases(group, cfg.Engine)
	registerDashboard(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerForecasts(group, cfg.Engine)
	registerSearch(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already") || strings.Contains(lowered, "reopen it first"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "is not active"):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>GIDAS Explorer API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string
	}, error) {
		return &struct {
			Body map[string]string
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCategories(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-category",
		Method:        http.MethodPost,
		Path:          "/categories",
		Summary:       "Create category",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateCategoryRequest
	}) (*struct {
		Body CategoryResponse
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.Name == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		cat, err := e.CreateCategory(ctx, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CategoryResponse
		}{Body: categoryResponse(cat)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/categories",
		Summary:     "List categories",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CategoryResponse
	}, error) {
		items, err := e.Repo.ListCategories(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]CategoryResponse, 0, len(items))
		for _, c := range items {
			res = append(res, categoryResponse(c))
		}
		return &struct {
			Body []CategoryResponse
		}{Body: res}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest
	}) (*struct {
		Body ProjectResponse
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.Name == "" || input.Body.CategoryID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name and category_id are required", nil)
		}
		p, err := e.CreateProject(ctx, input.Body.Name, input.Body.CategoryID, input.Body.Folder)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, input *struct {
		CategoryID string `query:"category_id"`
	}) (*struct {
		Body []ProjectResponse
	}, error) {
		items, err := e.Repo.ListProjects(ctx, input.CategoryID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ProjectResponse, 0, len(items))
		for _, p := range items {
			res = append(res, projectResponse(p))
		}
		return &struct {
			Body []ProjectResponse
		}{Body: res}, nil
	})
}

func registerCases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-case",
		Method:        http.MethodPost,
		Path:          "/cases",
		Summary:       "Register case",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateCaseRequest
	}) (*struct {
		Body CaseResponse
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.ProjectID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "project_id is required", nil)
		}
		opts := engine.CaseCreateOptions{
			ProjectID:      input.Body.ProjectID,
			Note:           input.Body.Note,
			Address:        input.Body.Address,
			ParcelNumber:   input.Body.ParcelNumber,
			CaseWorker:     input.Body.CaseWorker,
			PostalCode:     input.Body.PostalCode,
			PropertyNumber: input.Body.PropertyNumber,
			ActorID:        actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		c, err := e.CreateCase(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		st, err := e.CaseStatus(ctx, c.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CaseResponse
		}{Body: caseResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-cases",
		Method:      http.MethodGet,
		Path:        "/cases",
		Summary:     "List cases",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Category   string `query:"category"`
		ProjectID  string `query:"project_id"`
		CaseWorker string `query:"case_worker"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedCases
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListCases(ctx, repo.CaseFilters{
			CategoryName:    input.Category,
			ProjectID:       input.ProjectID,
			CaseWorker:      input.CaseWorker,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedCases{Items: []CaseResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt.UTC().Format(time.RFC3339), last.ID)
			items = items[:limit]
		}
		now := e.Now()
		for _, c := range items {
			resp.Items = append(resp.Items, caseResponse(engine.CaseStatus{
				Case:   c,
				Result: e.ClassifyCase(c, now),
			}))
		}
		return &struct {
			Body paginatedCases
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-case",
		Method:      http.MethodGet,
		Path:        "/cases/{id}",
		Summary:     "Get case",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body CaseResponse
	}, error) {
		st, err := e.CaseStatus(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CaseResponse
		}{Body: caseResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-case",
		Method:      http.MethodPatch,
		Path:        "/cases/{id}",
		Summary:     "Update case fields",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body UpdateCaseRequest
	}) (*struct {
		Body CaseResponse
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := e.UpdateCase(ctx, input.ID, engine.CaseUpdateOptions{
			Note:       input.Body.Note,
			Address:    input.Body.Address,
			CaseWorker: input.Body.CaseWorker,
			ActorID:    actorID,
		}); err != nil {
			return nil, handleError(err)
		}
		st, err := e.CaseStatus(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CaseResponse
		}{Body: caseResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-case",
		Method:      http.MethodDelete,
		Path:        "/cases/{id}",
		Summary:     "Delete case",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteCase(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	transitions := []struct {
		op      string
		path    string
		summary string
		apply   func(ctx context.Context, id, actorID string) error
	}{
		{"finish-case", "/cases/{id}/finish", "Mark report filed", func(ctx context.Context, id, actorID string) error {
			_, err := e.MarkCaseFinished(ctx, id, actorID)
			return err
		}},
		{"close-case", "/cases/{id}/close", "Close case", func(ctx context.Context, id, actorID string) error {
			_, err := e.CloseCase(ctx, id, actorID)
			return err
		}},
		{"close-case-without-report", "/cases/{id}/close-without-report", "Close case without report", func(ctx context.Context, id, actorID string) error {
			_, err := e.CloseCaseWithoutReport(ctx, id, actorID)
			return err
		}},
		{"reopen-case", "/cases/{id}/reopen", "Reopen case", func(ctx context.Context, id, actorID string) error {
			_, err := e.ReopenCase(ctx, id, actorID)
			return err
		}},
	}
	for _, tr := range transitions {
		apply := tr.apply
		huma.Register(api, huma.Operation{
			OperationID: tr.op,
			Method:      http.MethodPost,
			Path:        tr.path,
			Summary:     tr.summary,
			Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			ID string `path:"id"`
		}) (*struct {
			Body CaseResponse
		}, error) {
			actorID, authErr := actorIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			if err := apply(ctx, input.ID, actorID); err != nil {
				return nil, handleError(err)
			}
			st, err := e.CaseStatus(ctx, input.ID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body CaseResponse
			}{Body: caseResponse(st)}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "issue-order",
		Method:      http.MethodPost,
		Path:        "/cases/{id}/order",
		Summary:     "Issue enforcement order",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body IssueOrderRequest
	}) (*struct {
		Body CaseResponse
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var deadline time.Time
		if input.Body.Deadline != "" {
			var err error
			deadline, err = time.Parse(time.RFC3339, input.Body.Deadline)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid deadline", map[string]any{"deadline": input.Body.Deadline})
			}
		}
		if _, err := e.IssueOrder(ctx, input.ID, deadline, actorID); err != nil {
			return nil, handleError(err)
		}
		st, err := e.CaseStatus(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CaseResponse
		}{Body: caseResponse(st)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "case-events",
		Method:      http.MethodGet,
		Path:        "/cases/{id}/events",
		Summary:     "Case history",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit" default:"100"`
	}) (*struct {
		Body []CaseEventResponse
	}, error) {
		items, err := e.CaseHistory(ctx, input.ID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CaseEventResponse
		}{Body: mapCaseEvents(items)}, nil
	})
}

func registerDashboard(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-category-stats",
		Method:      http.MethodGet,
		Path:        "/dashboard/{category}/stats",
		Summary:     "Category dashboard summary",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Category string `path:"category"`
		From     string `query:"from" doc:"Only count cases created at or after this RFC 3339 instant"`
		To       string `query:"to" doc:"Only count cases created before this RFC 3339 instant"`
	}) (*struct {
		Body CategoryStatsResponse
	}, error) {
		from, err := parseOptionalTime(input.From)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "from must be RFC 3339", nil)
		}
		to, err := parseOptionalTime(input.To)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "to must be RFC 3339", nil)
		}
		cs, err := e.CategoryStats(ctx, input.Category, from, to)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CategoryStatsResponse
		}{Body: categoryStatsResponse(cs)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-recent-activity",
		Method:      http.MethodGet,
		Path:        "/dashboard/recent-activity",
		Summary:     "Newest case events across all categories",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"20"`
	}) (*struct {
		Body []ActivityEventResponse
	}, error) {
		items, err := e.RecentActivity(ctx, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ActivityEventResponse
		}{Body: mapActivity(items)}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "monthly-trend",
		Method:      http.MethodGet,
		Path:        "/reports/{category}/monthly-trend",
		Summary:     "Monthly created/completed trend",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Category string `path:"category"`
		Year     int    `query:"year"`
	}) (*struct {
		Body MonthlyTrendResponse
	}, error) {
		year := input.Year
		if year == 0 {
			year = e.Now().Year()
		}
		points, err := e.MonthlyTrend(ctx, input.Category, year)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MonthlyTrendResponse
		}{Body: monthlyTrendResponse(input.Category, year, points)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "processing-times",
		Method:      http.MethodGet,
		Path:        "/reports/processing-times",
		Summary:     "Processing time averages",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProcessingReportResponse
	}, error) {
		report, err := e.ProcessingTimes(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProcessingReportResponse
		}{Body: processingReportResponse(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "orders-report",
		Method:      http.MethodGet,
		Path:        "/reports/orders",
		Summary:     "Enforcement order counts per category",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CategoryOrdersResponse
	}, error) {
		items, err := e.OrdersReport(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CategoryOrdersResponse
		}{Body: ordersReportResponse(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "seasonal-analysis",
		Method:      http.MethodGet,
		Path:        "/reports/{category}/seasonal",
		Summary:     "Seasonal intake profile",
	}, func(ctx context.Context, input *struct {
		Category string `path:"category"`
	}) (*struct {
		Body SeasonalResponse
	}, error) {
		report, err := e.SeasonalAnalysis(ctx, input.Category)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SeasonalResponse
		}{Body: seasonalResponse(input.Category, report)}, nil
	})
}

func registerForecasts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "forecast-monthly-cases",
		Method:      http.MethodGet,
		Path:        "/forecasts/{category}/monthly-cases",
		Summary:     "Monthly case intake forecast",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Category    string `path:"category"`
		MonthsAhead int    `query:"months_ahead" default:"6"`
	}) (*struct {
		Body ForecastResponse
	}, error) {
		if input.MonthsAhead < 1 || input.MonthsAhead > 12 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "months_ahead must be 1..12", nil)
		}
		report, err := e.MonthlyForecast(ctx, input.Category, input.MonthsAhead)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ForecastResponse
		}{Body: forecastResponse(input.Category, report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "forecast-capacity",
		Method:      http.MethodGet,
		Path:        "/forecasts/{category}/capacity",
		Summary:     "Capacity planning projection",
	}, func(ctx context.Context, input *struct {
		Category string `path:"category"`
	}) (*struct {
		Body CapacityResponse
	}, error) {
		plan, err := e.CapacityPlanning(ctx, input.Category)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CapacityResponse
		}{Body: CapacityResponse{Category: input.Category, Plan: plan}}, nil
	})
}

func registerSearch(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "search-cases",
		Method:      http.MethodGet,
		Path:        "/search",
		Summary:     "Free-text case search",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Q     string `query:"q"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body []CaseResponse
	}, error) {
		if input.Q == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "q is required", nil)
		}
		hits, err := e.Search(ctx, input.Q, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []CaseResponse
		}{Body: mapCases(hits)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "search-suggestions",
		Method:      http.MethodGet,
		Path:        "/search/suggestions",
		Summary:     "Typeahead completions for search",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Q     string `query:"q"`
		Limit int    `query:"limit" default:"10"`
	}) (*struct {
		Body []string
	}, error) {
		if input.Q == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "q is required", nil)
		}
		terms, err := e.SearchSuggestions(ctx, input.Q, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if terms == nil {
			terms = []string{}
		}
		return &struct {
			Body []string
		}{Body: terms}, nil
	})
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

const maxLimit = 200

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func composeCursor(createdAt, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(createdAt + "|" + id))
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("malformed cursor")
	}
	return parts[0], parts[1], nil
}
