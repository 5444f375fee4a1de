package engine

import (
	"testing"
)

func TestFindDuplicateClustersTransitive(t *testing.T) {
	db := testDB(t)
	e := New(db)

	// m1~m2 and m2~m3 are above threshold, m1~m3 is not: union-find still
	// groups all three into one cluster.
	m1 := seedMemory(t, db, "duplicate one", 0.5)
	m2 := seedMemory(t, db, "duplicate two", 0.5)
	m3 := seedMemory(t, db, "duplicate three", 0.5)
	lone := seedMemory(t, db, "unrelated memory", 0.5)

	db.SaveVector(m1, []float64{1, 0}, "tfidf")
	db.SaveVector(m2, []float64{0.906, 0.423}, "tfidf") // cos(m1,m2) ≈ 0.906
	db.SaveVector(m3, []float64{0.643, 0.766}, "tfidf") // cos(m2,m3) ≈ 0.906, cos(m1,m3) ≈ 0.643
	db.SaveVector(lone, []float64{-1, 0}, "tfidf")

	clusters, err := e.FindDuplicateClusters(0.9)
	if err != nil {
		t.Fatalf("FindDuplicateClusters: %v", err)
	}
	if len(clusters) != 1 {
		t.Fatalf("clusters = %d, want 1", len(clusters))
	}
	if len(clusters[0]) != 3 {
		t.Fatalf("cluster size = %d, want 3 (transitive closure)", len(clusters[0]))
	}
	for _, id := range clusters[0] {
		if id == lone {
			t.Error("unrelated memory joined the cluster")
		}
	}
}

func TestFindDuplicateClustersNone(t *testing.T) {
	db := testDB(t)
	e := New(db)

	a := seedMemory(t, db, "memory about databases", 0.5)
	b := seedMemory(t, db, "memory about deployments", 0.5)
	db.SaveVector(a, []float64{1, 0}, "tfidf")
	db.SaveVector(b, []float64{0, 1}, "tfidf")

	clusters, err := e.FindDuplicateClusters(0.9)
	if err != nil {
		t.Fatalf("FindDuplicateClusters: %v", err)
	}
	if len(clusters) != 0 {
		t.Errorf("clusters = %d, want 0", len(clusters))
	}
}

func TestFindDuplicateClustersIgnoresCore(t *testing.T) {
	db := testDB(t)
	e := New(db)

	a := seedMemory(t, db, "core statement of record", 0.9)
	b := seedMemory(t, db, "identical ordinary memory", 0.5)
	db.SaveVector(a, []float64{1, 0}, "tfidf")
	db.SaveVector(b, []float64{1, 0}, "tfidf")
	if _, err := db.PromoteToCore([]string{a}); err != nil {
		t.Fatalf("PromoteToCore: %v", err)
	}

	clusters, err := e.FindDuplicateClusters(0.9)
	if err != nil {
		t.Fatalf("FindDuplicateClusters: %v", err)
	}
	if len(clusters) != 0 {
		t.Errorf("clusters = %d, core memories must not participate in dedup", len(clusters))
	}
}

func TestMergeClusterMissingMember(t *testing.T) {
	db := testDB(t)
	e := New(db)

	a := seedMemory(t, db, "remaining duplicate", 0.5)
	b := seedMemory(t, db, "removed duplicate", 0.5)
	if _, err := db.DeleteMemory(b); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}

	res, err := e.MergeCluster([]string{a, b})
	if err != nil {
		t.Fatalf("MergeCluster: %v", err)
	}
	if !res.Skipped {
		t.Error("expected skip when a member vanished since discovery")
	}
	if m, _ := db.GetMemory(a); m == nil {
		t.Error("skipped merge deleted a member")
	}
}

func TestRunDedupSweep(t *testing.T) {
	db := testDB(t)
	e := New(db)

	low := seedMemory(t, db, "the standup is at nine thirty", 0.3)
	high := seedMemory(t, db, "standup happens at 9:30", 0.8)
	db.SaveVector(low, []float64{1, 0}, "tfidf")
	db.SaveVector(high, []float64{0.99, 0.14}, "tfidf")

	merged, deleted, err := e.RunDedupSweep(0.95)
	if err != nil {
		t.Fatalf("RunDedupSweep: %v", err)
	}
	if merged != 1 || deleted != 1 {
		t.Errorf("merged/deleted = %d/%d, want 1/1", merged, deleted)
	}
	if m, _ := db.GetMemory(high); m == nil {
		t.Error("highest-importance member should survive")
	}
	if m, _ := db.GetMemory(low); m != nil {
		t.Error("lower-importance member should be deleted")
	}
}

func TestDSU(t *testing.T) {
	d := newDSU(5)
	d.union(0, 1)
	d.union(3, 4)
	d.union(1, 3)

	if d.find(0) != d.find(4) {
		t.Error("0 and 4 should share a root after chained unions")
	}
	if d.find(2) == d.find(0) {
		t.Error("2 should remain isolated")
	}
}
