package engine

import (
	"testing"

	"github.com/engramdb/engram/internal/store"
)

func TestContradictory(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"opposite polarity same topic", "alice works on the payments team", "alice does not works on the payments team", true},
		{"same polarity", "alice works on payments", "alice works on payments daily", false},
		{"both negated", "alice does not work weekends", "alice never works weekends", false},
		{"different topics", "alice likes coffee brewing at home", "the deploy pipeline is not stable", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := contradictory(tt.a, tt.b); got != tt.want {
				t.Errorf("contradictory(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestFindConflicts(t *testing.T) {
	db := testDB(t)
	e := New(db)

	a := seedMemory(t, db, "alice works on the payments service", 0.6)
	b := seedMemory(t, db, "alice does not work on the payments service anymore", 0.6)
	unrelated := seedMemory(t, db, "the office coffee machine is broken", 0.5)

	alice, _ := db.MergeEntity(store.MergeEntityParams{Name: "alice", Type: "person"})
	for _, id := range []string{a, b} {
		if err := db.CreateMentions(id, []store.Mention{{EntityID: alice, Confidence: 0.9}}); err != nil {
			t.Fatalf("CreateMentions: %v", err)
		}
	}

	pairs, err := e.FindConflicts()
	if err != nil {
		t.Fatalf("FindConflicts: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("pairs = %d, want 1", len(pairs))
	}
	p := pairs[0]
	if p.Entity != "alice" {
		t.Errorf("entity = %q, want alice", p.Entity)
	}
	got := map[string]bool{p.A.ID: true, p.B.ID: true}
	if !got[a] || !got[b] {
		t.Errorf("pair = %s/%s, want %s/%s", p.A.ID, p.B.ID, a, b)
	}
	if got[unrelated] {
		t.Error("unrelated memory flagged")
	}
}

func TestFindConflictsCoreExempt(t *testing.T) {
	db := testDB(t)
	e := New(db)

	a := seedMemory(t, db, "bob maintains the ingest worker", 0.6)
	b := seedMemory(t, db, "bob does not maintains the ingest worker", 0.6)
	if _, err := db.PromoteToCore([]string{a}); err != nil {
		t.Fatalf("PromoteToCore: %v", err)
	}

	bob, _ := db.MergeEntity(store.MergeEntityParams{Name: "bob", Type: "person"})
	for _, id := range []string{a, b} {
		if err := db.CreateMentions(id, []store.Mention{{EntityID: bob, Confidence: 0.9}}); err != nil {
			t.Fatalf("CreateMentions: %v", err)
		}
	}

	pairs, err := e.FindConflicts()
	if err != nil {
		t.Fatalf("FindConflicts: %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("pairs = %d, core memories must not be flagged", len(pairs))
	}
}

func TestFindConflictsSamePolarity(t *testing.T) {
	db := testDB(t)
	e := New(db)

	a := seedMemory(t, db, "carol deploys on thursdays", 0.6)
	b := seedMemory(t, db, "carol deploys on thursdays after standup", 0.6)

	carol, _ := db.MergeEntity(store.MergeEntityParams{Name: "carol", Type: "person"})
	for _, id := range []string{a, b} {
		if err := db.CreateMentions(id, []store.Mention{{EntityID: carol, Confidence: 0.9}}); err != nil {
			t.Fatalf("CreateMentions: %v", err)
		}
	}

	pairs, err := e.FindConflicts()
	if err != nil {
		t.Fatalf("FindConflicts: %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("pairs = %d, agreeing memories are not conflicts", len(pairs))
	}
}
