package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"accessplane/models"
	"accessplane/tripswitch"
)

type fakeConfigSource struct {
	cfg *models.ShardConfiguration
}

func (f *fakeConfigSource) Current() *models.ShardConfiguration { return f.cfg }

func newTestConfig() *fakeConfigSource {
	cfg := models.NewShardConfiguration()
	cfg.Groups[models.RoleUser] = []models.ShardGroup{
		{Name: "users-1", Role: models.RoleUser, HashRangeStart: 1000},
		{Name: "users-0", Role: models.RoleUser, HashRangeStart: -2147483648},
	}
	cfg.Generation = 3
	return &fakeConfigSource{cfg: cfg}
}

func TestStatusHandler(t *testing.T) {
	r := NewRouter(newTestConfig())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %v, want ok", body["status"])
	}
}

func TestShardGroupsForRoleHandlerOrdersByHashRangeStart(t *testing.T) {
	r := NewRouter(newTestConfig())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/shard-groups/User", nil)
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Groups []models.ShardGroup `json:"groups"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Groups) != 2 || body.Groups[0].Name != "users-0" {
		t.Fatalf("groups = %+v, want users-0 first", body.Groups)
	}
}

func TestGenerationHandler(t *testing.T) {
	r := NewRouter(newTestConfig())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/shard-configuration/generation", nil)
	r.ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["generation"].(float64) != 3 {
		t.Fatalf("generation = %v, want 3", body["generation"])
	}
}

func TestTripSwitchHandlerReflectsState(t *testing.T) {
	tripswitch.Reset()
	defer tripswitch.Reset()

	r := NewRouter(newTestConfig())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/trip-switch", nil)
	r.ServeHTTP(rec, req)

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["tripped"] != false {
		t.Fatalf("tripped = %v, want false before Trip", body["tripped"])
	}

	tripswitch.Trip("test")
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req)
	json.Unmarshal(rec2.Body.Bytes(), &body)
	if body["tripped"] != true {
		t.Fatalf("tripped = %v, want true after Trip", body["tripped"])
	}
}
