package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/engramdb/engram/internal/store"
)

// fixedEmbedder returns a canned vector for every input.
type fixedEmbedder struct {
	vec []float64
	err error
}

func (f *fixedEmbedder) Embed(context.Context, string) ([]float64, error) { return f.vec, f.err }
func (f *fixedEmbedder) Model() string                                    { return "fixed" }
func (f *fixedEmbedder) Dimensions() int                                  { return len(f.vec) }

func TestSearchVectorNoEmbedder(t *testing.T) {
	db := testDB(t)
	e := New(db)

	hits := e.SearchVector(context.Background(), "anything", FusionOpts{})
	if hits != nil {
		t.Errorf("hits = %v, want nil without an embedder", hits)
	}
}

func TestSearchVectorEmbedFailureDegrades(t *testing.T) {
	db := testDB(t)
	e := New(db)
	e.SetEmbedder(&fixedEmbedder{err: errors.New("model offline")})

	hits := e.SearchVector(context.Background(), "anything", FusionOpts{})
	if hits != nil {
		t.Errorf("hits = %v, want nil on embed failure", hits)
	}
}

func TestSearchVector(t *testing.T) {
	db := testDB(t)
	e := New(db)
	e.SetEmbedder(&fixedEmbedder{vec: []float64{1, 0}})

	near := seedMemory(t, db, "memory close to the query", 0.5)
	far := seedMemory(t, db, "memory orthogonal to the query", 0.5)
	db.SaveVector(near, []float64{0.95, 0.31}, "fixed")
	db.SaveVector(far, []float64{0, 1}, "fixed")

	hits := e.SearchVector(context.Background(), "query", FusionOpts{MinVectorSim: 0.5})
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].ID != near {
		t.Errorf("hit = %s, want %s", hits[0].ID, near)
	}
}

func TestSearchLexicalNormalization(t *testing.T) {
	db := testDB(t)
	e := New(db)

	seedMemory(t, db, "the deploy pipeline uses blue green rollout", 0.5)
	seedMemory(t, db, "rollout notes from last week", 0.5)

	hits, err := e.SearchLexical("blue green rollout", FusionOpts{})
	if err != nil {
		t.Fatalf("SearchLexical: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits")
	}
	// Top score normalizes to exactly 1.0 regardless of the raw bm25 value.
	if hits[0].Score != 1.0 {
		t.Errorf("top score = %f, want 1.0", hits[0].Score)
	}
	for _, h := range hits {
		if h.Score > 1.0 || h.Score < 0 {
			t.Errorf("score %f outside [0,1]", h.Score)
		}
	}
}

func TestSearchGraph(t *testing.T) {
	db := testDB(t)
	e := New(db)

	direct := seedMemory(t, db, "Alice rewrote the ingest pipeline", 0.5)
	oneHop := seedMemory(t, db, "the ingest pipeline feeds the warehouse", 0.5)

	alice, _ := db.MergeEntity(store.MergeEntityParams{Name: "Alice", Type: "person"})
	ingest, _ := db.MergeEntity(store.MergeEntityParams{Name: "ingest", Type: "system"})

	db.CreateMentions(direct, []store.Mention{{EntityID: alice, Confidence: 0.9}})
	db.CreateMentions(oneHop, []store.Mention{{EntityID: ingest, Confidence: 0.8}})
	db.CreateEntityRelationship(alice, "WORKS_ON", ingest, 0.9)

	hits, err := e.SearchGraph("what is alice working on", FusionOpts{})
	if err != nil {
		t.Fatalf("SearchGraph: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %d, want 2 (direct mention plus one-hop expansion)", len(hits))
	}
	// Direct mention outranks the expanded hop: 1.0×0.9 vs 0.9×0.8.
	if hits[0].ID != direct {
		t.Errorf("top hit = %s, want the direct mention %s", hits[0].ID, direct)
	}
	if hits[1].ID != oneHop {
		t.Errorf("second hit = %s, want the expanded hop %s", hits[1].ID, oneHop)
	}
}

func TestSearchGraphNoSeeds(t *testing.T) {
	db := testDB(t)
	e := New(db)

	hits, err := e.SearchGraph("nothing matches here", FusionOpts{})
	if err != nil {
		t.Fatalf("SearchGraph: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %d, want 0", len(hits))
	}
}

func TestSearchFusesMaxScore(t *testing.T) {
	db := testDB(t)
	e := New(db)
	e.SetEmbedder(&fixedEmbedder{vec: []float64{1, 0}})

	// One memory reachable by vector and lexical retrieval at once.
	id := seedMemory(t, db, "grafana dashboards track latency", 0.5)
	db.SaveVector(id, []float64{1, 0}, "fixed")

	hits, err := e.Search(context.Background(), "grafana latency", FusionOpts{MinVectorSim: 0.5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1 (same id deduplicated across strategies)", len(hits))
	}
	// Vector similarity is exactly 1.0 and lexical normalizes to 1.0; the
	// fused score is the max, still 1.0.
	if hits[0].Score != 1.0 {
		t.Errorf("fused score = %f, want 1.0", hits[0].Score)
	}

	// Retrieval is recorded for fused results.
	m, _ := db.GetMemory(id)
	if m.RetrievalCount != 1 {
		t.Errorf("RetrievalCount = %d, want 1", m.RetrievalCount)
	}
	if m.LastRetrieved == nil {
		t.Error("LastRetrieved not stamped by fused search")
	}
}

func TestSearchLimit(t *testing.T) {
	db := testDB(t)
	e := New(db)

	for i := 0; i < 5; i++ {
		seedMemory(t, db, "shared keyword memory variant", 0.5)
	}

	hits, err := e.Search(context.Background(), "shared keyword", FusionOpts{Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) > 2 {
		t.Errorf("hits = %d, want at most 2", len(hits))
	}
}

func TestSortHits(t *testing.T) {
	hits := []Hit{
		{ID: "b", Score: 0.5},
		{ID: "a", Score: 0.5},
		{ID: "c", Score: 0.9},
	}
	sortHits(hits)
	if hits[0].ID != "c" {
		t.Errorf("top = %s, want c", hits[0].ID)
	}
	// Ties break on id for deterministic output.
	if hits[1].ID != "a" || hits[2].ID != "b" {
		t.Errorf("tie order = %s,%s, want a,b", hits[1].ID, hits[2].ID)
	}
}
