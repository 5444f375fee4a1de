package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/engramdb/engram/internal/engine"
	"github.com/engramdb/engram/internal/extract"
	"github.com/engramdb/engram/internal/llm"
	"github.com/engramdb/engram/internal/store"
)

func testServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := engine.New(db)
	worker := extract.NewWorker(db, &llm.MockClient{Response: &llm.Response{Content: "{}"}})
	return New(db, eng, worker, "test"), db
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, "GET", "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status field = %v", resp["status"])
	}
	if resp["db"] != true {
		t.Errorf("db field = %v", resp["db"])
	}
}

func TestStoreMemoryAndGet(t *testing.T) {
	srv, db := testServer(t)

	rec := doJSON(t, srv, "POST", "/api/memories", map[string]any{
		"content":    "the payments service moved to the new cluster last week",
		"importance": 0.7,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}

	var resp struct {
		Stored bool   `json:"stored"`
		ID     string `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Stored || resp.ID == "" {
		t.Fatalf("resp = %+v", resp)
	}

	m, err := db.GetMemory(resp.ID)
	if err != nil || m == nil {
		t.Fatalf("stored memory not found: %v", err)
	}
	if m.Importance != 0.7 {
		t.Errorf("importance = %f, want 0.7", m.Importance)
	}

	rec = doJSON(t, srv, "GET", "/api/memories/"+resp.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rec.Code)
	}
}

func TestStoreMemoryExplicitZeroImportance(t *testing.T) {
	srv, db := testServer(t)

	rec := doJSON(t, srv, "POST", "/api/memories", map[string]any{
		"content":    "this observation carries no weight but should persist as-is",
		"importance": 0,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		ID string `json:"id"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)

	m, _ := db.GetMemory(resp.ID)
	if m.Importance != 0 {
		t.Errorf("importance = %f, want explicit 0 persisted verbatim", m.Importance)
	}

	// Absent field still gets the default.
	rec = doJSON(t, srv, "POST", "/api/memories", map[string]any{
		"content": "a second observation without any importance field",
	})
	json.NewDecoder(rec.Body).Decode(&resp)
	m, _ = db.GetMemory(resp.ID)
	if m.Importance != 0.5 {
		t.Errorf("importance = %f, want 0.5 default", m.Importance)
	}
}

func TestStoreMemoryGateRejects(t *testing.T) {
	srv, db := testServer(t)

	rec := doJSON(t, srv, "POST", "/api/memories", map[string]any{"content": "okay thanks."})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Stored bool `json:"stored"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Stored {
		t.Error("gated content was stored")
	}

	var n int
	db.QueryRow("SELECT COUNT(*) FROM memories").Scan(&n)
	if n != 0 {
		t.Errorf("memories = %d, want 0", n)
	}
}

func TestStoreMemoryValidation(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, "POST", "/api/memories", map[string]any{"content": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty content status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest("POST", "/api/memories", bytes.NewBufferString("not json"))
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("bad json status = %d, want 400", rec2.Code)
	}
}

func TestGetMemoryNotFound(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, "GET", "/api/memories/00000000-0000-0000-0000-000000000000", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteMemoryInvalidID(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, "DELETE", "/api/memories/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed id", rec.Code)
	}
}

func TestInvalidateMemory(t *testing.T) {
	srv, db := testServer(t)

	id, err := db.StoreMemory(store.StoreMemoryParams{Content: "memory to invalidate", Importance: 0.8})
	if err != nil {
		t.Fatalf("StoreMemory: %v", err)
	}

	rec := doJSON(t, srv, "POST", "/api/memories/"+id+"/invalidate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	m, _ := db.GetMemory(id)
	if m.Importance != 0.01 {
		t.Errorf("importance = %f, want floored", m.Importance)
	}
}

func TestPromoteDemoteEndpoints(t *testing.T) {
	srv, db := testServer(t)

	id, _ := db.StoreMemory(store.StoreMemoryParams{Content: "durable architectural decision", Importance: 0.9})

	rec := doJSON(t, srv, "POST", "/api/memories/promote", map[string]any{"ids": []string{id}})
	if rec.Code != http.StatusOK {
		t.Fatalf("promote status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Changed int `json:"changed"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Changed != 1 {
		t.Errorf("changed = %d, want 1", resp.Changed)
	}

	rec = doJSON(t, srv, "POST", "/api/memories/demote", map[string]any{"ids": []string{id}})
	if rec.Code != http.StatusOK {
		t.Fatalf("demote status = %d", rec.Code)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, "GET", "/api/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without q", rec.Code)
	}
}

func TestSearchLexicalStrategy(t *testing.T) {
	srv, db := testServer(t)

	id, _ := db.StoreMemory(store.StoreMemoryParams{Content: "grafana dashboards track p99 latency", Importance: 0.5})

	rec := doJSON(t, srv, "GET", "/api/search?q=grafana+latency&strategy=lexical", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Results []engine.Hit `json:"results"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].ID != id {
		t.Errorf("results = %+v, want the seeded memory", resp.Results)
	}
}

func TestDedupSweepEndpoint(t *testing.T) {
	srv, db := testServer(t)

	a, _ := db.StoreMemory(store.StoreMemoryParams{Content: "duplicate statement one", Importance: 0.8})
	b, _ := db.StoreMemory(store.StoreMemoryParams{Content: "duplicate statement two", Importance: 0.3})
	db.SaveVector(a, []float64{1, 0}, "tfidf")
	db.SaveVector(b, []float64{1, 0}, "tfidf")

	rec := doJSON(t, srv, "POST", "/api/sweeps/dedup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp struct {
		ClustersMerged int `json:"clusters_merged"`
		Deleted        int `json:"deleted"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.ClustersMerged != 1 || resp.Deleted != 1 {
		t.Errorf("resp = %+v, want 1/1", resp)
	}
}

func TestExtractionEndpoints(t *testing.T) {
	srv, db := testServer(t)

	db.StoreMemory(store.StoreMemoryParams{Content: "pending extraction memory", Importance: 0.5})

	rec := doJSON(t, srv, "GET", "/api/extraction/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var counts map[string]int
	json.NewDecoder(rec.Body).Decode(&counts)
	if counts["pending"] != 1 {
		t.Errorf("pending = %d, want 1", counts["pending"])
	}

	rec = doJSON(t, srv, "POST", "/api/extraction/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d: %s", rec.Code, rec.Body)
	}
}

func TestExtractionUnavailableWithoutWorker(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	srv := New(db, engine.New(db), nil, "test")

	rec := doJSON(t, srv, "POST", "/api/extraction/run", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 without a worker", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, db := testServer(t)

	db.StoreMemory(store.StoreMemoryParams{Content: "a memory for the stats counter", Importance: 0.5})

	rec := doJSON(t, srv, "GET", "/api/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats store.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Memories != 1 {
		t.Errorf("memories = %d, want 1", stats.Memories)
	}
}
