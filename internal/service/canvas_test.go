package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/LuckiPhoenix/idest-server/internal/errs"
	"github.com/LuckiPhoenix/idest-server/internal/model"
)

func newCanvasFixture(t *testing.T) (*CanvasService, *mockSessionRepo) {
	t.Helper()
	repo := newMockSessionRepo()
	repo.Create(context.Background(), &model.Session{ID: "sess-1", ClassID: "class-1", HostID: "host"})
	svc := NewCanvasService(repo, newMockSessionCache(), NewResourceLock("canvas"))
	return svc, repo
}

func opSequence(n int) []model.CanvasOperation {
	ops := make([]model.CanvasOperation, n)
	for i := range ops {
		ops[i] = model.CanvasOperation{
			Type:      "stroke",
			Payload:   map[string]interface{}{"seq": i},
			Timestamp: time.Now(),
		}
	}
	return ops
}

func TestSaveCapsOperations(t *testing.T) {
	svc, repo := newCanvasFixture(t)
	ctx := context.Background()

	state := &model.CanvasState{Operations: opSequence(1200), Meta: model.CanvasMeta{Width: 800, Height: 600}}
	if err := svc.Save(ctx, "sess-1", state); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stored := repo.sessions["sess-1"].Whiteboard
	if len(stored.Operations) != model.MaxCanvasOperations {
		t.Fatalf("stored %d operations, want %d", len(stored.Operations), model.MaxCanvasOperations)
	}
	// The most recent 1000 of a 0..1199 sequence are 200..1199.
	if first := stored.Operations[0].Payload["seq"]; first != 200 {
		t.Errorf("first kept operation seq = %v, want 200", first)
	}
	if last := stored.Operations[len(stored.Operations)-1].Payload["seq"]; last != 1199 {
		t.Errorf("last kept operation seq = %v, want 1199", last)
	}
}

func TestSaveKeepsSmallStates(t *testing.T) {
	svc, repo := newCanvasFixture(t)
	ctx := context.Background()

	state := &model.CanvasState{Operations: opSequence(10)}
	if err := svc.Save(ctx, "sess-1", state); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := len(repo.sessions["sess-1"].Whiteboard.Operations); got != 10 {
		t.Errorf("stored %d operations, want 10", got)
	}
}

func TestOpenAcquiresAndReturnsState(t *testing.T) {
	svc, repo := newCanvasFixture(t)
	ctx := context.Background()

	state, err := svc.Open(ctx, "sess-1", "alice")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if state != nil {
		t.Errorf("fresh session should have no whiteboard, got %+v", state)
	}
	if holder := svc.Lock().Holder("sess-1"); holder != "alice" {
		t.Errorf("holder = %q, want alice", holder)
	}

	// Re-opening by the holder returns current state unchanged.
	repo.sessions["sess-1"].Whiteboard = &model.CanvasState{Operations: opSequence(3)}
	state, err = svc.Open(ctx, "sess-1", "alice")
	if err != nil {
		t.Fatalf("re-open by holder: %v", err)
	}
	if len(state.Operations) != 3 {
		t.Errorf("re-open returned %d operations, want 3", len(state.Operations))
	}
}

func TestOpenHeldByOtherIsForbidden(t *testing.T) {
	svc, _ := newCanvasFixture(t)
	ctx := context.Background()

	svc.Open(ctx, "sess-1", "alice")
	if _, err := svc.Open(ctx, "sess-1", "bob"); !errs.IsForbidden(err) {
		t.Errorf("Open by non-holder = %v, want Forbidden", err)
	}
	if holder := svc.Lock().Holder("sess-1"); holder != "alice" {
		t.Errorf("holder after denied open = %q, want alice", holder)
	}
}

func TestOpenReleasesLockWhenLoadFails(t *testing.T) {
	repo := newMockSessionRepo()
	repo.shouldFailGet = true
	svc := NewCanvasService(repo, newMockSessionCache(), NewResourceLock("canvas"))

	if _, err := svc.Open(context.Background(), "sess-1", "alice"); err == nil {
		t.Fatal("expected load failure")
	}
	if holder := svc.Lock().Holder("sess-1"); holder != "" {
		t.Errorf("lock stuck with holder %q after failed open", holder)
	}
}

func TestCloseSemantics(t *testing.T) {
	svc, repo := newCanvasFixture(t)
	ctx := context.Background()

	if err := svc.Close(ctx, "sess-1", "alice", nil); !errs.IsNotFound(err) {
		t.Errorf("close with no holder = %v, want NotFound", err)
	}

	svc.Open(ctx, "sess-1", "alice")
	if err := svc.Close(ctx, "sess-1", "bob", nil); !errs.IsForbidden(err) {
		t.Errorf("close by non-holder = %v, want Forbidden", err)
	}

	final := &model.CanvasState{Operations: opSequence(5)}
	if err := svc.Close(ctx, "sess-1", "alice", final); err != nil {
		t.Fatalf("close by holder: %v", err)
	}
	if holder := svc.Lock().Holder("sess-1"); holder != "" {
		t.Errorf("holder after close = %q, want empty", holder)
	}
	if got := len(repo.sessions["sess-1"].Whiteboard.Operations); got != 5 {
		t.Errorf("final state not persisted, got %d operations", got)
	}
}

func TestCloseWithoutFinalStateKeepsExisting(t *testing.T) {
	svc, repo := newCanvasFixture(t)
	ctx := context.Background()

	repo.sessions["sess-1"].Whiteboard = &model.CanvasState{Operations: opSequence(7)}
	svc.Open(ctx, "sess-1", "alice")
	if err := svc.Close(ctx, "sess-1", "alice", nil); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := len(repo.sessions["sess-1"].Whiteboard.Operations); got != 7 {
		t.Errorf("existing state changed on close, got %d operations", got)
	}
}

func TestClearResetsToDefaults(t *testing.T) {
	svc, repo := newCanvasFixture(t)
	ctx := context.Background()

	if _, err := svc.Clear(ctx, "sess-1", "alice"); !errs.IsNotFound(err) {
		t.Errorf("clear with no holder = %v, want NotFound", err)
	}

	svc.Open(ctx, "sess-1", "alice")
	if _, err := svc.Clear(ctx, "sess-1", "bob"); !errs.IsForbidden(err) {
		t.Errorf("clear by non-holder = %v, want Forbidden", err)
	}

	state, err := svc.Clear(ctx, "sess-1", "alice")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(state.Operations) != 0 {
		t.Errorf("cleared state has %d operations, want 0", len(state.Operations))
	}
	meta := state.Meta
	if meta.Width != model.DefaultCanvasWidth || meta.Height != model.DefaultCanvasHeight || meta.Background != model.DefaultCanvasBackground {
		t.Errorf("cleared meta = %+v, want defaults", meta)
	}
	if repo.sessions["sess-1"].Whiteboard == nil {
		t.Error("cleared state not persisted")
	}
	// The lock stays held after a clear.
	if holder := svc.Lock().Holder("sess-1"); holder != "alice" {
		t.Errorf("holder after clear = %q, want alice", holder)
	}
}

func TestLoadUnknownSession(t *testing.T) {
	svc := NewCanvasService(newMockSessionRepo(), newMockSessionCache(), NewResourceLock("canvas"))
	if _, err := svc.Load(context.Background(), "missing"); !errs.IsNotFound(err) {
		t.Errorf("Load(missing) = %v, want NotFound", err)
	}
}

func TestTrimBoundary(t *testing.T) {
	for _, n := range []int{999, 1000, 1001} {
		state := &model.CanvasState{Operations: opSequence(n)}
		state.Trim(model.MaxCanvasOperations)
		want := n
		if want > model.MaxCanvasOperations {
			want = model.MaxCanvasOperations
		}
		if len(state.Operations) != want {
			t.Errorf("Trim(%d ops) kept %d, want %d", n, len(state.Operations), want)
		}
	}
}

func TestOpenCloseChurn(t *testing.T) {
	svc, _ := newCanvasFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		user := fmt.Sprintf("user-%d", i)
		if _, err := svc.Open(ctx, "sess-1", user); err != nil {
			t.Fatalf("open %s: %v", user, err)
		}
		if err := svc.Close(ctx, "sess-1", user, nil); err != nil {
			t.Fatalf("close %s: %v", user, err)
		}
	}
}
