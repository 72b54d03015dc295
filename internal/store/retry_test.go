package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
)

func testPolicy(recorded *[]time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	p.sleep = func(d time.Duration) {
		*recorded = append(*recorded, d)
	}
	return p
}

func TestRetrySucceedsAfterTransientLocks(t *testing.T) {
	var slept []time.Duration
	p := testPolicy(&slept)

	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}

	want := []time.Duration{500 * time.Millisecond, time.Second}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(slept))
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], slept[i])
		}
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	var slept []time.Duration
	p := testPolicy(&slept)

	calls := 0
	locked := sqlite3.Error{Code: sqlite3.ErrLocked}
	err := p.Do(context.Background(), func() error {
		calls++
		return locked
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 6 {
		t.Errorf("expected 6 attempts, got %d", calls)
	}
	if !strings.Contains(err.Error(), "giving up after 6 attempts") {
		t.Errorf("unexpected error message: %v", err)
	}
	// the original cause must stay reachable through the wrap
	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrLocked {
		t.Errorf("wrapped error lost the sqlite cause: %v", err)
	}

	// one sleep per retry, none after the final attempt
	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}
	if len(slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(slept))
	}
	for i := range slept {
		if slept[i] != want[i] {
			t.Errorf("sleep %d: expected %v, got %v", i, want[i], slept[i])
		}
	}
}

func TestRetryNonRetryableFailsImmediately(t *testing.T) {
	var slept []time.Duration
	p := testPolicy(&slept)

	cause := errors.New("UNIQUE constraint failed: registrations.qr_token")
	calls := 0
	err := p.Do(context.Background(), func() error {
		calls++
		return cause
	})
	if !errors.Is(err, cause) {
		t.Errorf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
	if len(slept) != 0 {
		t.Errorf("expected no sleeps, got %v", slept)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	var slept []time.Duration
	p := testPolicy(&slept)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, func() error {
		calls++
		cancel()
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 attempt, got %d", calls)
	}
}

func TestIsLockedError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{"wrapped busy", fmt.Errorf("update batch: %w", sqlite3.Error{Code: sqlite3.ErrBusy}), true},
		{"message only", errors.New("database is locked"), true},
		{"table locked", errors.New("database table is locked"), true},
		{"constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"other", errors.New("no such table: batches"), false},
	}
	for _, tc := range cases {
		if got := IsLockedError(tc.err); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
