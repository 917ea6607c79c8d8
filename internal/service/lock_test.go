package service

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/LuckiPhoenix/idest-server/internal/errs"
)

func TestTryAcquireGrantsUnheld(t *testing.T) {
	lock := NewResourceLock("canvas")

	result, holder := lock.TryAcquire("sess-1", "alice")
	if result != AcquireGranted {
		t.Fatalf("expected grant, got %v", result)
	}
	if holder != "alice" {
		t.Errorf("holder = %q, want alice", holder)
	}
}

func TestTryAcquireIdempotentForHolder(t *testing.T) {
	lock := NewResourceLock("canvas")
	lock.TryAcquire("sess-1", "alice")

	result, holder := lock.TryAcquire("sess-1", "alice")
	if result != AcquireAlreadyHeld {
		t.Fatalf("expected already-held, got %v", result)
	}
	if holder != "alice" {
		t.Errorf("holder = %q, want alice", holder)
	}
}

func TestTryAcquireDeniedNeverMutatesHolder(t *testing.T) {
	lock := NewResourceLock("canvas")
	lock.TryAcquire("sess-1", "alice")

	result, holder := lock.TryAcquire("sess-1", "bob")
	if result != AcquireDenied {
		t.Fatalf("expected denial, got %v", result)
	}
	if holder != "alice" {
		t.Errorf("denial reported holder %q, want alice", holder)
	}
	if got := lock.Holder("sess-1"); got != "alice" {
		t.Errorf("holder after denial = %q, want alice", got)
	}
}

func TestReleaseErrors(t *testing.T) {
	lock := NewResourceLock("screen share")

	if err := lock.Release("sess-1", "alice"); !errs.IsNotFound(err) {
		t.Errorf("release of unheld lock = %v, want NotFound", err)
	}

	lock.TryAcquire("sess-1", "alice")
	if err := lock.Release("sess-1", "bob"); !errs.IsForbidden(err) {
		t.Errorf("release by non-holder = %v, want Forbidden", err)
	}
	if err := lock.Release("sess-1", "alice"); err != nil {
		t.Errorf("release by holder = %v, want nil", err)
	}
	if got := lock.Holder("sess-1"); got != "" {
		t.Errorf("holder after release = %q, want empty", got)
	}
}

func TestForceRelease(t *testing.T) {
	lock := NewResourceLock("canvas")

	if lock.ForceRelease("sess-1") {
		t.Error("force release of unheld lock should report false")
	}

	lock.TryAcquire("sess-1", "alice")
	if !lock.ForceRelease("sess-1") {
		t.Error("force release of held lock should report true")
	}
	if got := lock.Holder("sess-1"); got != "" {
		t.Errorf("holder after force release = %q, want empty", got)
	}
}

func TestReleaseIfHeldBy(t *testing.T) {
	lock := NewResourceLock("canvas")
	lock.TryAcquire("sess-1", "alice")

	if lock.ReleaseIfHeldBy("sess-1", "bob") {
		t.Error("non-holder release should report false")
	}
	if got := lock.Holder("sess-1"); got != "alice" {
		t.Errorf("holder = %q, want alice", got)
	}
	if !lock.ReleaseIfHeldBy("sess-1", "alice") {
		t.Error("holder release should report true")
	}
}

func TestLocksIndependentAcrossSessions(t *testing.T) {
	lock := NewResourceLock("canvas")
	lock.TryAcquire("sess-1", "alice")

	result, _ := lock.TryAcquire("sess-2", "bob")
	if result != AcquireGranted {
		t.Errorf("lock on a different session should grant, got %v", result)
	}
}

// TestSingleHolderProperty hammers one lock from many goroutines with
// randomized acquire/release sequences and asserts that every successful
// grant was observed while no one else held the lock.
func TestSingleHolderProperty(t *testing.T) {
	lock := NewResourceLock("canvas")

	const (
		workers    = 16
		iterations = 500
	)
	sessions := []string{"sess-1", "sess-2", "sess-3"}

	var mu sync.Mutex
	holders := make(map[string]string) // session -> observed holder

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", id)
			rng := rand.New(rand.NewSource(int64(id)))

			for i := 0; i < iterations; i++ {
				session := sessions[rng.Intn(len(sessions))]
				result, _ := lock.TryAcquire(session, user)
				if result == AcquireGranted {
					mu.Lock()
					if prev, taken := holders[session]; taken {
						t.Errorf("granted %s to %s while %s held it", session, user, prev)
					}
					holders[session] = user
					mu.Unlock()

					mu.Lock()
					delete(holders, session)
					mu.Unlock()
					if !lock.ReleaseIfHeldBy(session, user) {
						t.Errorf("lost %s lock before releasing it", session)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	for _, session := range sessions {
		if holder := lock.Holder(session); holder != "" {
			t.Errorf("session %s still held by %s after all releases", session, holder)
		}
	}
}
