package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"watchtower/internal/config"
	"watchtower/internal/database"
	"watchtower/internal/monitoring"
)

func newTestServer(t *testing.T) (*gin.Engine, database.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	store, err := database.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	alerts := monitoring.NewAlertManager(store, nil, nil, 300*time.Second)
	liveness := monitoring.NewLivenessEvaluator(monitoring.NewScheduleEvaluator(database.WindowConfig{
		StartTime: cfg.BusinessHours.StartTime,
		EndTime:   cfg.BusinessHours.EndTime,
		Weekdays:  cfg.BusinessHours.Weekdays,
		Timezone:  cfg.BusinessHours.Timezone,
	}))
	srv := NewServer(cfg, store, alerts, liveness, NewHub(nil))

	router := gin.New()
	srv.setupRoutes(router)
	return router, store
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateHostGeneratesTokenAndDefaults(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/hosts", map[string]interface{}{
		"name": "worker-01",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var host database.Host
	if err := json.Unmarshal(w.Body.Bytes(), &host); err != nil {
		t.Fatal(err)
	}
	if host.Token == "" {
		t.Error("expected generated token")
	}
	if host.ExpectedFrequencySeconds != 300 || host.GracePeriodSeconds != 60 {
		t.Errorf("expected default allowances, got %d/%d",
			host.ExpectedFrequencySeconds, host.GracePeriodSeconds)
	}
	if host.ScheduleType != database.ScheduleAlways {
		t.Errorf("expected always schedule default, got %s", host.ScheduleType)
	}
	if host.Status != database.HostUnknown {
		t.Errorf("new host should start unknown, got %s", host.Status)
	}
}

func TestCreateHostEstimatesFrequencyFromCron(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/hosts", map[string]interface{}{
		"name":            "cron-job",
		"cron_expression": "*/15 * * * *",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var host database.Host
	json.Unmarshal(w.Body.Bytes(), &host)
	if host.ExpectedFrequencySeconds != 900 {
		t.Errorf("expected 900s from */15 cron, got %d", host.ExpectedFrequencySeconds)
	}
}

func TestCreateHostRejectsBadCron(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/hosts", map[string]interface{}{
		"name":            "bad",
		"cron_expression": "not a cron",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid cron, got %d", w.Code)
	}
}

func TestHeartbeatAuth(t *testing.T) {
	router, store := newTestServer(t)
	ctx := context.Background()

	host := &database.Host{Name: "worker-01", Token: "tok-1", Status: database.HostUnknown}
	store.CreateHost(ctx, host)

	// No token.
	w := doJSON(t, router, http.MethodPost, "/api/v1/heartbeat/"+host.ID, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	// Wrong token.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/heartbeat/"+host.ID, nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}

	// Bearer token.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/heartbeat/"+host.ID, nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with bearer token, got %d: %s", w.Code, w.Body.String())
	}

	// Query token also works.
	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/api/v1/heartbeat/%s?token=tok-1", host.ID), nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with query token, got %d", w.Code)
	}

	got, _ := store.GetHost(ctx, host.ID)
	if got.Status != database.HostUp || got.LastSeen == nil {
		t.Errorf("heartbeat should mark host up with last seen, got %+v", got)
	}
	beats, _ := store.GetHeartbeats(ctx, host.ID, 0)
	if len(beats) != 2 {
		t.Errorf("expected 2 recorded heartbeats, got %d", len(beats))
	}
}

func TestListHostsIncludesOverdueVerdict(t *testing.T) {
	router, store := newTestServer(t)
	ctx := context.Background()

	stale := time.Now().Add(-time.Hour)
	store.CreateHost(ctx, &database.Host{Name: "silent", Status: database.HostUp, LastSeen: &stale,
		ExpectedFrequencySeconds: 300, GracePeriodSeconds: 60, ScheduleType: database.ScheduleAlways})
	fresh := time.Now()
	store.CreateHost(ctx, &database.Host{Name: "chatty", Status: database.HostUp, LastSeen: &fresh,
		ExpectedFrequencySeconds: 300, GracePeriodSeconds: 60, ScheduleType: database.ScheduleAlways})

	w := doJSON(t, router, http.MethodGet, "/api/v1/hosts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Hosts []struct {
			Name    string `json:"name"`
			Overdue bool   `json:"overdue"`
		} `json:"hosts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	verdicts := map[string]bool{}
	for _, h := range resp.Hosts {
		verdicts[h.Name] = h.Overdue
	}
	if !verdicts["silent"] || verdicts["chatty"] {
		t.Errorf("unexpected overdue verdicts %v", verdicts)
	}
}

func TestRotateHostToken(t *testing.T) {
	router, store := newTestServer(t)
	ctx := context.Background()

	host := &database.Host{Name: "worker-01", Token: "old-token"}
	store.CreateHost(ctx, host)

	w := doJSON(t, router, http.MethodPost, "/api/v1/hosts/"+host.ID+"/token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Token string `json:"token"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Token == "" || resp.Token == "old-token" {
		t.Errorf("expected a fresh token, got %q", resp.Token)
	}

	got, _ := store.GetHost(ctx, host.ID)
	if got.Token != resp.Token {
		t.Error("rotated token must be persisted")
	}

	// Old token no longer authenticates.
	w = doJSON(t, router, http.MethodPost, "/api/v1/heartbeat/"+host.ID+"?token=old-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with stale token, got %d", w.Code)
	}
}

func TestHeartbeatUnknownHost(t *testing.T) {
	router, _ := newTestServer(t)
	w := doJSON(t, router, http.MethodPost, "/api/v1/heartbeat/ghost?token=x", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown host, got %d", w.Code)
	}
}

func TestAcknowledgeAlertEndpoint(t *testing.T) {
	router, store := newTestServer(t)
	ctx := context.Background()

	alert := &database.Alert{HostID: "h1", Kind: database.AlertHeartbeat,
		Severity: database.SeverityCritical, Message: "m"}
	store.SaveAlert(ctx, alert)

	w := doJSON(t, router, http.MethodPost, "/api/v1/alerts/"+alert.ID+"/acknowledge", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	got, _ := store.GetAlert(ctx, alert.ID)
	if !got.Acknowledged {
		t.Error("alert should be acknowledged")
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/alerts/missing/acknowledge", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown alert, got %d", w.Code)
	}
}

func TestListAlertsWithFilters(t *testing.T) {
	router, store := newTestServer(t)
	ctx := context.Background()

	store.SaveAlert(ctx, &database.Alert{HostID: "h1", Kind: database.AlertHeartbeat,
		Severity: database.SeverityCritical, Message: "a"})
	store.SaveAlert(ctx, &database.Alert{ServiceID: "s1", Kind: database.AlertServiceHealth,
		Severity: database.SeverityInfo, Message: "b"})

	w := doJSON(t, router, http.MethodGet, "/api/v1/alerts?kind=heartbeat", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 1 {
		t.Errorf("expected 1 heartbeat alert, got %d", resp.Count)
	}
}

func TestStatsEndpoint(t *testing.T) {
	router, store := newTestServer(t)
	ctx := context.Background()

	store.CreateHost(ctx, &database.Host{Name: "a", Status: database.HostUp})
	store.CreateHost(ctx, &database.Host{Name: "b", Status: database.HostDown})
	store.CreateService(ctx, &database.Service{Name: "svc", Status: database.ServiceHealthy, Enabled: true})

	w := doJSON(t, router, http.MethodGet, "/api/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Hosts struct {
			Total    int                        `json:"total"`
			ByStatus map[database.HostStatus]int `json:"by_status"`
		} `json:"hosts"`
		Services struct {
			Total int `json:"total"`
		} `json:"services"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Hosts.Total != 2 || resp.Hosts.ByStatus[database.HostDown] != 1 {
		t.Errorf("unexpected host stats %+v", resp.Hosts)
	}
	if resp.Services.Total != 1 {
		t.Errorf("expected 1 service, got %d", resp.Services.Total)
	}
}

func TestServiceCRUDEndpoints(t *testing.T) {
	router, _ := newTestServer(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/services", map[string]interface{}{
		"name":         "billing-api",
		"endpoint_url": "http://billing.internal/health",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var svc database.Service
	json.Unmarshal(w.Body.Bytes(), &svc)
	if svc.Method != "GET" || svc.ExpectedStatusCode != 200 || svc.AlertThreshold != 3 {
		t.Errorf("unexpected defaults %+v", svc)
	}
	if !svc.Enabled {
		t.Error("services should default to enabled")
	}

	w = doJSON(t, router, http.MethodDelete, "/api/v1/services/"+svc.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 on delete, got %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/api/v1/services/"+svc.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}
