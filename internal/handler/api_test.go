package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"neargo/config"
	"neargo/internal/index"
	"neargo/internal/ingest"
	"neargo/internal/presence"
	"neargo/internal/query"
	"neargo/internal/router"
	"neargo/internal/watch"

	"github.com/gin-gonic/gin"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "0", Env: "test"},
		JWT:    config.JWTConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: "neargo"},
		Presence: config.PresenceConfig{
			TTL:         30 * time.Second,
			GracePeriod: time.Minute,
		},
		Geo: config.GeoConfig{
			CellSizeMeters: 500,
			DefaultRadiusM: 1000,
			MaxRadiusM:     5000,
			DefaultLimit:   50,
			MaxLimit:       200,
		},
		Ingest: config.IngestConfig{MinReportInterval: 0}, // no throttling in tests
		Watch:  config.WatchConfig{Debounce: 2 * time.Second, SendBuffer: 64, MaxWatchers: 100},
	}
}

func newTestServer() *httptest.Server {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	grid := index.NewGrid(cfg.Geo.CellSizeMeters)
	reg := presence.NewRegistry(cfg.Presence, grid)
	engine := query.NewEngine(cfg.Geo, grid, reg)
	hub := watch.NewHub(cfg.Watch, engine, cfg.Geo.MaxLimit)
	pipeline := ingest.NewPipeline(cfg.Ingest, reg, hub)
	return httptest.NewServer(router.Setup(cfg, reg, engine, hub, pipeline))
}

func postJSON(t *testing.T, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func getJSON(t *testing.T, url, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func registerUser(t *testing.T, base, name string) (userID, token string) {
	t.Helper()
	resp, body := postJSON(t, base+"/api/v1/register", "", map[string]any{
		"display_name": name,
		"age":          27,
		"gender":       "female",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d body %v", name, resp.StatusCode, body)
	}
	return body["user_id"].(string), body["token"].(string)
}

func reportLocation(t *testing.T, base, token string, lat, lng float64, ms int64) map[string]any {
	t.Helper()
	resp, body := postJSON(t, base+"/api/v1/me/location", token, map[string]any{
		"latitude":     lat,
		"longitude":    lng,
		"timestamp_ms": ms,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report: status %d body %v", resp.StatusCode, body)
	}
	return body
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, _ := postJSON(t, srv.URL+"/api/v1/register", "", map[string]any{
		"display_name": "Kid", "age": 15, "gender": "male",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("underage accepted: %d", resp.StatusCode)
	}
	resp, _ = postJSON(t, srv.URL+"/api/v1/register", "", map[string]any{
		"display_name": "X", "age": 30, "gender": "martian",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad gender accepted: %d", resp.StatusCode)
	}
}

func TestNearbyRoundTrip(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	base := srv.URL
	lat, lng := 40.0, -74.0

	_, tokenA := registerUser(t, base, "Alex")
	idB, tokenB := registerUser(t, base, "Jamie")

	if body := reportLocation(t, base, tokenB, lat, lng, 1000); body["accepted"] != true {
		t.Fatalf("report rejected: %v", body)
	}
	// A is ~50m north of B
	reportLocation(t, base, tokenA, lat+50.0/111320.0, lng, 1000)

	resp, body := getJSON(t, base+"/api/v1/nearby?radius_m=100", tokenA)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("nearby: %d %v", resp.StatusCode, body)
	}
	results := body["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %v", results)
	}
	row := results[0].(map[string]any)
	if row["user_id"] != idB || row["display_name"] != "Jamie" {
		t.Fatalf("wrong neighbor: %v", row)
	}
	if d := row["distance_m"].(float64); d < 40 || d > 60 {
		t.Fatalf("distance out of range: %v", d)
	}

	// 10m radius excludes the 50m neighbor
	_, body = getJSON(t, base+"/api/v1/nearby?radius_m=10", tokenA)
	if results := body["results"].([]any); len(results) != 0 {
		t.Fatalf("50m neighbor inside 10m radius: %v", results)
	}
}

func TestLocationOutcomes(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	base := srv.URL

	_, token := registerUser(t, base, "Taylor")
	reportLocation(t, base, token, 10, 10, 5000)

	// stale: older timestamp comes back accepted=false, not an error
	body := reportLocation(t, base, token, 11, 11, 4000)
	if body["accepted"] == true || body["reason"] != "stale_report" {
		t.Fatalf("stale report outcome wrong: %v", body)
	}

	// out-of-range coordinates are a 400
	resp, body := postJSON(t, base+"/api/v1/me/location", token, map[string]any{
		"latitude": 95.0, "longitude": 10.0, "timestamp_ms": 6000,
	})
	if resp.StatusCode != http.StatusBadRequest || body["reason"] != "invalid_coordinates" {
		t.Fatalf("invalid coords outcome wrong: %d %v", resp.StatusCode, body)
	}

	// no token
	resp, _ = postJSON(t, base+"/api/v1/me/location", "", map[string]any{
		"latitude": 10.0, "longitude": 10.0,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token accepted: %d", resp.StatusCode)
	}
}

func TestNearbyBeforeFirstReport(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	_, token := registerUser(t, srv.URL, "Pending")
	resp, _ := getJSON(t, srv.URL+"/api/v1/nearby", token)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before first report, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	resp, body := getJSON(t, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz: %d %v", resp.StatusCode, body)
	}
}

func TestNearbyOrderingScenario(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()
	base := srv.URL
	lat, lng := 48.8566, 2.3522

	_, me := registerUser(t, base, "Me")
	reportLocation(t, base, me, lat, lng, 1)

	dists := []float64{10, 500, 2000}
	for i, d := range dists {
		_, tok := registerUser(t, base, fmt.Sprintf("N%d", i))
		reportLocation(t, base, tok, lat+d/111320.0, lng, 1)
	}

	_, body := getJSON(t, base+"/api/v1/nearby?radius_m=1000", me)
	results := body["results"].([]any)
	if len(results) != 2 {
		t.Fatalf("expected the 10m and 500m users only, got %v", results)
	}
	first := results[0].(map[string]any)
	second := results[1].(map[string]any)
	if first["display_name"] != "N0" || second["display_name"] != "N1" {
		t.Fatalf("not nearest-first: %v then %v", first, second)
	}
}
