package cluster

import (
	"testing"

	"github.com/dd0wney/dualdb/pkg/logging"
)

type recordingCloser struct {
	name  string
	order *[]string
	calls int
}

func (r *recordingCloser) Close() {
	r.calls++
	*r.order = append(*r.order, r.name)
}

func TestResourceCleanup_ReverseOrder(t *testing.T) {
	var order []string
	cleanup := newResourceCleanup(logging.NewNopLogger())

	a := &recordingCloser{name: "a", order: &order}
	b := &recordingCloser{name: "b", order: &order}
	c := &recordingCloser{name: "c", order: &order}
	cleanup.Add(a, "a")
	cleanup.Add(b, "b")
	cleanup.Add(c, "c")

	if cleanup.Len() != 3 {
		t.Fatalf("Expected 3 resources, got %d", cleanup.Len())
	}

	cleanup.Cleanup()

	want := []string{"c", "b", "a"}
	if len(order) != len(want) {
		t.Fatalf("closed %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("close order %v, want %v", order, want)
			break
		}
	}
	if cleanup.Len() != 0 {
		t.Errorf("Expected 0 resources after cleanup, got %d", cleanup.Len())
	}
}

func TestResourceCleanup_Idempotent(t *testing.T) {
	var order []string
	cleanup := newResourceCleanup(logging.NewNopLogger())
	r := &recordingCloser{name: "pool", order: &order}
	cleanup.Add(r, "pool")

	cleanup.Cleanup()
	cleanup.Cleanup()

	if r.calls != 1 {
		t.Errorf("Close called %d times, want 1", r.calls)
	}
}

func TestResourceCleanup_Clear(t *testing.T) {
	var order []string
	cleanup := newResourceCleanup(logging.NewNopLogger())
	r := &recordingCloser{name: "pool", order: &order}
	cleanup.Add(r, "pool")

	cleanup.Clear()
	cleanup.Cleanup()

	if r.calls != 0 {
		t.Error("Clear should prevent Cleanup from closing resources")
	}
}

func TestResourceCleanup_NilCloser(t *testing.T) {
	cleanup := newResourceCleanup(logging.NewNopLogger())
	cleanup.Add(nil, "missing")
	cleanup.Cleanup()
}
