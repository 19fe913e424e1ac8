package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hakonix/hakonix/internal/hakonix/lifecycle"
	"github.com/hakonix/hakonix/internal/hakonix/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "hakonix-test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListOperations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ops := []lifecycle.Operation{
		{TraceID: "t_1", Owner: "123", Action: "create", Container: "dev", Success: true, Detail: "container dev created and started"},
		{TraceID: "t_2", Owner: "123", Action: "stop", Container: "dev", Success: true, Detail: "container dev stopped"},
		{TraceID: "t_3", Owner: "456", Action: "create", Container: "web", Success: false, Detail: "container web build failed: error: attribute missing"},
	}
	for _, op := range ops {
		if err := s.RecordOperation(ctx, op); err != nil {
			t.Fatalf("RecordOperation: %v", err)
		}
	}

	recent, err := s.RecentOperations(ctx, 0)
	if err != nil {
		t.Fatalf("RecentOperations: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d records, want 3", len(recent))
	}
	if recent[0].Container != "web" {
		t.Errorf("newest record = %q, want web", recent[0].Container)
	}
	if recent[0].Success {
		t.Error("failed create recorded as success")
	}
	if recent[0].Detail == "" {
		t.Error("failure detail not persisted")
	}
}

func TestRecentOperationsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		op := lifecycle.Operation{TraceID: "t", Action: "start", Container: "dev", Success: true}
		if err := s.RecordOperation(ctx, op); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.RecentOperations(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d records, want 2", len(got))
	}
}

func TestContainerOperationsOrderedOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, action := range []string{"create", "stop", "destroy"} {
		if err := s.RecordOperation(ctx, lifecycle.Operation{TraceID: "t", Owner: "123", Action: action, Container: "dev", Success: true}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.RecordOperation(ctx, lifecycle.Operation{TraceID: "t", Owner: "456", Action: "create", Container: "web", Success: true}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ContainerOperations(ctx, "dev")
	if err != nil {
		t.Fatalf("ContainerOperations: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	if got[0].Action != "create" || got[2].Action != "destroy" {
		t.Errorf("order wrong: %q ... %q", got[0].Action, got[2].Action)
	}
}

func TestEmptyOwnerRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordOperation(ctx, lifecycle.Operation{TraceID: "t", Action: "start", Container: "dev", Success: true}); err != nil {
		t.Fatal(err)
	}
	got, err := s.RecentOperations(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Owner != "" {
		t.Errorf("Owner = %q, want empty", got[0].Owner)
	}
}
