package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"gidas/internal/config"
	"gidas/internal/db"
	"gidas/internal/engine"
	"gidas/internal/migrate"
)

// SHA-256 of "vandmiljo".
const testPasswordDigest = "cfeb8ba738032ccb7aa461cb4d7fc6c3e8f903b433315bb6c92471f6f86ceba2"

var testNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

type testServer struct {
	URL      string
	Engine   engine.Engine
	Category string
	Project  string
	client   *http.Client
	close    func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("test-secret")
	cfg.Auth.Users = map[string]config.User{
		"mette": {Name: "Mette Holm", Role: "caseworker", PasswordSHA256: testPasswordDigest},
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return testNow }
	ctx := context.Background()
	cat, err := e.CreateCategory(ctx, "Separering")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	proj, err := e.CreateProject(ctx, "Kloakering Nord", cat.ID, "2024/Nord")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/api", AppCfg: cfg})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:      "http://" + ln.Addr().String(),
		Engine:   e,
		Category: cat.ID,
		Project:  proj.ID,
		client:   &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func login(t *testing.T, srv *testServer) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"username": "mette",
		"password": "vandmiljo",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var out LoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if out.Token == "" || out.TokenType != "bearer" {
		t.Fatalf("unexpected login response: %+v", out)
	}
	return out.Token
}

func authHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestHealthIsOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/cases", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", envelope.Error.Code)
	}
}

func TestTokenExpiryFollowsInjectedClock(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv)

	// Valid at mint time per the engine clock.
	if _, err := authenticateJWT(token, "test-secret", func() time.Time { return testNow }); err != nil {
		t.Fatalf("token rejected at mint time: %v", err)
	}
	// Expired once the clock passes the configured TTL.
	later := testNow.Add(25 * time.Hour)
	if _, err := authenticateJWT(token, "test-secret", func() time.Time { return later }); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/auth/login", map[string]any{
		"username": "mette",
		"password": "forkert",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAuthMe(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/auth/me", nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var p Principal
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal principal: %v", err)
	}
	if p.Username != "mette" || p.Role != "caseworker" {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestCaseLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/cases", map[string]any{
		"project_id":  srv.Project,
		"address":     "Strandvejen 12",
		"case_worker": "mh",
	}, authHeader(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create case status %d: %s", res.StatusCode, string(data))
	}
	var created CaseResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal case: %v", err)
	}
	if created.Status != "active" {
		t.Fatalf("new case status = %q, want active", created.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/cases/"+created.ID+"/finish", nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("finish status %d: %s", res.StatusCode, string(data))
	}
	var finished CaseResponse
	if err := json.Unmarshal(data, &finished); err != nil {
		t.Fatalf("unmarshal finished: %v", err)
	}
	if finished.Status != "finished_reported" {
		t.Fatalf("finished status = %q", finished.Status)
	}

	// A second finish conflicts.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/cases/"+created.ID+"/finish", nil, authHeader(token))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("double finish status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/cases/"+created.ID+"/close", nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/cases/"+created.ID+"/events", nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	var events []CaseEventResponse
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != "case.closed" {
		t.Fatalf("newest event = %q", events[0].Type)
	}
	if events[0].ActorID != "mette" {
		t.Fatalf("actor = %q, want mette", events[0].ActorID)
	}
}

func TestCaseNotFoundEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/cases/findes-ikke", nil, authHeader(token))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("code = %q, want not_found", envelope.Error.Code)
	}
}

func TestCaseListPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv)
	client := srv.Client()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		opts := engine.CaseCreateOptions{ProjectID: srv.Project, ActorID: "seed"}
		if _, err := srv.Engine.CreateCase(ctx, opts); err != nil {
			t.Fatalf("seed case: %v", err)
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/cases?limit=2", nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedCases
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("page items=%d cursor=%q", len(page.Items), page.NextCursor)
	}

	seen := map[string]bool{}
	for _, c := range page.Items {
		seen[c.ID] = true
	}
	cursor := page.NextCursor
	for cursor != "" {
		res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/cases?limit=2&cursor="+cursor, nil, authHeader(token))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("list page status %d: %s", res.StatusCode, string(data))
		}
		page = paginatedCases{}
		if err := json.Unmarshal(data, &page); err != nil {
			t.Fatalf("unmarshal page: %v", err)
		}
		for _, c := range page.Items {
			if seen[c.ID] {
				t.Fatalf("case %s returned twice", c.ID)
			}
			seen[c.ID] = true
		}
		cursor = page.NextCursor
	}
	if len(seen) != 5 {
		t.Fatalf("paginated %d cases, want 5", len(seen))
	}
}

func TestDashboardStats(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := srv.Engine.CreateCase(ctx, engine.CaseCreateOptions{ProjectID: srv.Project, ActorID: "seed"}); err != nil {
			t.Fatalf("seed case: %v", err)
		}
	}
	c, err := srv.Engine.CreateCase(ctx, engine.CaseCreateOptions{ProjectID: srv.Project, ActorID: "seed"})
	if err != nil {
		t.Fatalf("seed case: %v", err)
	}
	if _, err := srv.Engine.MarkCaseFinished(ctx, c.ID, "seed"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/Separering/stats", nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats status %d: %s", res.StatusCode, string(data))
	}
	var stats CategoryStatsResponse
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Counts.Active != 3 || stats.Counts.FinishedReported != 1 {
		t.Fatalf("counts = %+v", stats.Counts)
	}
	if stats.Variant != "dual-flag" {
		t.Fatalf("variant = %q", stats.Variant)
	}

	// A window after every creation date leaves nothing to count.
	from := testNow.Add(time.Hour).Format(time.RFC3339)
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/Separering/stats?from="+from, nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("windowed stats status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal windowed stats: %v", err)
	}
	if stats.Counts.Active != 0 || stats.Counts.FinishedReported != 0 {
		t.Fatalf("windowed counts = %+v", stats.Counts)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/Separering/stats?from=yesterday", nil, authHeader(token))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad from status %d: %s", res.StatusCode, string(data))
	}
}

func TestRecentActivityAndOrdersReport(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv)
	ctx := context.Background()

	c, err := srv.Engine.CreateCase(ctx, engine.CaseCreateOptions{ProjectID: srv.Project, ActorID: "seed"})
	if err != nil {
		t.Fatalf("seed case: %v", err)
	}
	deadline := testNow.AddDate(0, 0, -7)
	if _, err := srv.Engine.IssueOrder(ctx, c.ID, deadline, "seed"); err != nil {
		t.Fatalf("issue order: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/dashboard/recent-activity", nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("activity status %d: %s", res.StatusCode, string(data))
	}
	var feed []ActivityEventResponse
	if err := json.Unmarshal(data, &feed); err != nil {
		t.Fatalf("unmarshal feed: %v", err)
	}
	if len(feed) < 2 {
		t.Fatalf("feed has %d events, want at least create+order", len(feed))
	}
	if feed[0].CaseID != c.ID {
		t.Fatalf("newest event for case %q, want %q", feed[0].CaseID, c.ID)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/reports/orders", nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("orders status %d: %s", res.StatusCode, string(data))
	}
	var orders []CategoryOrdersResponse
	if err := json.Unmarshal(data, &orders); err != nil {
		t.Fatalf("unmarshal orders: %v", err)
	}
	if len(orders) != 1 || orders[0].Category != "Separering" {
		t.Fatalf("orders report = %+v", orders)
	}
	if orders[0].Total != 1 || orders[0].Active != 1 || orders[0].Overdue != 1 {
		t.Fatalf("order counts = %+v", orders[0])
	}
}

func TestSearchSuggestions(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv)
	ctx := context.Background()

	for _, addr := range []string{"Skovvej 12", "Skovvej 14", "Havnegade 3"} {
		opts := engine.CaseCreateOptions{ProjectID: srv.Project, Address: addr, ActorID: "seed"}
		if _, err := srv.Engine.CreateCase(ctx, opts); err != nil {
			t.Fatalf("seed case: %v", err)
		}
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/search/suggestions?q=Skov", nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("suggestions status %d: %s", res.StatusCode, string(data))
	}
	var terms []string
	if err := json.Unmarshal(data, &terms); err != nil {
		t.Fatalf("unmarshal terms: %v", err)
	}
	if len(terms) != 2 || terms[0] != "Skovvej 12" || terms[1] != "Skovvej 14" {
		t.Fatalf("terms = %v", terms)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/search/suggestions", nil, authHeader(token))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing q status %d: %s", res.StatusCode, string(data))
	}
}

func TestForecastEndpointWithSparseHistory(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv)
	ctx := context.Background()

	if _, err := srv.Engine.CreateCase(ctx, engine.CaseCreateOptions{ProjectID: srv.Project, ActorID: "seed"}); err != nil {
		t.Fatalf("seed case: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/forecasts/Separering/monthly-cases?months_ahead=3", nil, authHeader(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("forecast status %d: %s", res.StatusCode, string(data))
	}
	var out ForecastResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal forecast: %v", err)
	}
	if out.DataQuality != "limited" {
		t.Fatalf("data quality = %q, want limited", out.DataQuality)
	}
	if len(out.Periods) != 0 {
		t.Fatalf("expected no forecast periods for a single month of history, got %d", len(out.Periods))
	}

	for _, months := range []string{"0", "13"} {
		res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/forecasts/Separering/monthly-cases?months_ahead="+months, nil, authHeader(token))
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("months_ahead=%s status %d: %s", months, res.StatusCode, string(data))
		}
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	token := login(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/search", nil, authHeader(token))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, string(data))
	}
}

func TestOpenAPIServed(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d: %s", res.StatusCode, string(data))
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal openapi: %v", err)
	}
	if _, ok := doc["paths"]; !ok {
		t.Fatalf("openapi document missing paths")
	}
}
