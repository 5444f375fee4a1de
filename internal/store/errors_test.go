package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyTransientKeywords(t *testing.T) {
	transient := []string{
		"deadlock detected",
		"backend Service Unavailable",
		"session expired, please reconnect",
		"transient network failure",
		"database is locked",
	}
	for _, msg := range transient {
		err := classify("test op", errors.New(msg))
		if !IsTransient(err) {
			t.Errorf("classify(%q) not transient", msg)
		}
	}

	err := classify("test op", errors.New("syntax error near SELECT"))
	if IsTransient(err) {
		t.Error("syntax error classified as transient")
	}
	if KindOf(err) != KindUnknown {
		t.Errorf("KindOf = %v, want unknown", KindOf(err))
	}
}

func TestClassifyNil(t *testing.T) {
	if classify("op", nil) != nil {
		t.Error("classify(nil) should return nil")
	}
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := &Error{Kind: KindConstraint, Op: "insert", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should reach the wrapped error")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if KindOf(wrapped) != KindConstraint {
		t.Errorf("KindOf through wrapping = %v, want constraint", KindOf(wrapped))
	}
}

func TestKindOfUntagged(t *testing.T) {
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("untagged error should be unknown kind")
	}
	if KindOf(nil) != KindUnknown {
		t.Error("nil error should be unknown kind")
	}
}

func TestWithRetryTransientExhaustsBudget(t *testing.T) {
	attempts := 0
	err := WithRetry(func() error {
		attempts++
		return &Error{Kind: KindTransient, Op: "op", Err: errors.New("database is locked")}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithRetryPermanentFailsImmediately(t *testing.T) {
	attempts := 0
	err := WithRetry(func() error {
		attempts++
		return &Error{Kind: KindConstraint, Op: "op", Err: errors.New("unique violation")}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on permanent errors)", attempts)
	}
}

func TestWithRetryRecovers(t *testing.T) {
	attempts := 0
	err := WithRetry(func() error {
		attempts++
		if attempts < 3 {
			return &Error{Kind: KindTransient, Op: "op", Err: errors.New("deadlock")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}
