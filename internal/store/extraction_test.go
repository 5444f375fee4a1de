package store

import (
	"testing"

	"github.com/engramdb/engram/internal/model"
)

func TestExtractionStatusTransitions(t *testing.T) {
	db := testDB(t)

	id := seedMemory(t, db, "extraction lifecycle memory", 0.5)

	if err := db.UpdateExtractionStatus(id, model.ExtractionComplete, false); err != nil {
		t.Fatalf("pending -> complete: %v", err)
	}
	m, _ := db.GetMemory(id)
	if m.ExtractionStatus != model.ExtractionComplete {
		t.Errorf("status = %q, want complete", m.ExtractionStatus)
	}

	// Complete is terminal.
	err := db.UpdateExtractionStatus(id, model.ExtractionPending, false)
	if err == nil {
		t.Fatal("expected error for complete -> pending")
	}
	if KindOf(err) != KindInvalidInput {
		t.Errorf("KindOf = %v, want invalid input", KindOf(err))
	}
}

func TestExtractionFailedIsRetryable(t *testing.T) {
	db := testDB(t)

	id := seedMemory(t, db, "flaky extraction memory", 0.5)

	if err := db.UpdateExtractionStatus(id, model.ExtractionFailed, true); err != nil {
		t.Fatalf("pending -> failed: %v", err)
	}
	if err := db.UpdateExtractionStatus(id, model.ExtractionPending, false); err != nil {
		t.Fatalf("failed -> pending: %v", err)
	}
	if err := db.UpdateExtractionStatus(id, model.ExtractionFailed, true); err != nil {
		t.Fatalf("pending -> failed again: %v", err)
	}

	n, err := db.ExtractionRetries(id)
	if err != nil {
		t.Fatalf("ExtractionRetries: %v", err)
	}
	if n != 2 {
		t.Errorf("retries = %d, want 2", n)
	}
}

func TestUpdateExtractionStatusNotFound(t *testing.T) {
	db := testDB(t)

	err := db.UpdateExtractionStatus("00000000-0000-0000-0000-000000000000", model.ExtractionComplete, false)
	if err == nil {
		t.Fatal("expected error for missing memory")
	}
	if KindOf(err) != KindNotFound {
		t.Errorf("KindOf = %v, want not found", KindOf(err))
	}
}

func TestListPendingExtractionsOldestFirst(t *testing.T) {
	db := testDB(t)

	a := seedMemory(t, db, "oldest pending memory", 0.5)
	b := seedMemory(t, db, "middle pending memory", 0.5)
	c := seedMemory(t, db, "newest pending memory", 0.5)

	// Force distinct creation times.
	for i, id := range []string{a, b, c} {
		if _, err := db.Exec("UPDATE memories SET created_at = ? WHERE id = ?", 1000+i, id); err != nil {
			t.Fatalf("backdate: %v", err)
		}
	}
	if err := db.UpdateExtractionStatus(b, model.ExtractionComplete, false); err != nil {
		t.Fatalf("complete b: %v", err)
	}

	pending, err := db.ListPendingExtractions(10)
	if err != nil {
		t.Fatalf("ListPendingExtractions: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("len = %d, want 2", len(pending))
	}
	if pending[0].ID != a || pending[1].ID != c {
		t.Errorf("order = [%s %s], want oldest first [%s %s]", pending[0].ID, pending[1].ID, a, c)
	}
}

func TestCountByExtractionStatus(t *testing.T) {
	db := testDB(t)

	seedMemory(t, db, "still pending memory", 0.5)
	done := seedMemory(t, db, "completed memory", 0.5)
	if err := db.UpdateExtractionStatus(done, model.ExtractionComplete, false); err != nil {
		t.Fatalf("complete: %v", err)
	}

	counts, err := db.CountByExtractionStatus()
	if err != nil {
		t.Fatalf("CountByExtractionStatus: %v", err)
	}
	if counts[model.ExtractionPending] != 1 {
		t.Errorf("pending = %d, want 1", counts[model.ExtractionPending])
	}
	if counts[model.ExtractionComplete] != 1 {
		t.Errorf("complete = %d, want 1", counts[model.ExtractionComplete])
	}
}

func TestResetFailedExtractions(t *testing.T) {
	db := testDB(t)

	a := seedMemory(t, db, "failed extraction one", 0.5)
	b := seedMemory(t, db, "failed extraction two", 0.5)
	for _, id := range []string{a, b} {
		if err := db.UpdateExtractionStatus(id, model.ExtractionFailed, true); err != nil {
			t.Fatalf("fail %s: %v", id, err)
		}
	}

	n, err := db.ResetFailedExtractions(10)
	if err != nil {
		t.Fatalf("ResetFailedExtractions: %v", err)
	}
	if n != 2 {
		t.Errorf("reset = %d, want 2", n)
	}

	counts, _ := db.CountByExtractionStatus()
	if counts[model.ExtractionFailed] != 0 {
		t.Errorf("failed = %d after reset, want 0", counts[model.ExtractionFailed])
	}
	if counts[model.ExtractionPending] != 2 {
		t.Errorf("pending = %d after reset, want 2", counts[model.ExtractionPending])
	}
}
