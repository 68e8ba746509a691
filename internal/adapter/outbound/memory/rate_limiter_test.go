package memory

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRateLimiter_AdmitsUpToLimit(t *testing.T) {
	r := NewRateLimiter(testLogger())
	key := "1.2.3.4:tools.call"

	for i := 0; i < 5; i++ {
		res := r.Allow(key, 5)
		if !res.Admitted {
			t.Fatalf("request %d should be admitted", i)
		}
	}
	if res := r.Allow(key, 5); res.Admitted {
		t.Fatal("6th request should be rejected")
	}
}

func TestRateLimiter_ZeroLimitBlocksAll(t *testing.T) {
	r := NewRateLimiter(testLogger())
	if res := r.Allow("k:m", 0); res.Admitted {
		t.Fatal("limit 0 must block every request, including the first")
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	r := NewRateLimiter(testLogger())
	fakeNow := time.Now()
	r.now = func() time.Time { return fakeNow }

	key := "k:m"
	for i := 0; i < 3; i++ {
		if res := r.Allow(key, 3); !res.Admitted {
			t.Fatalf("request %d should be admitted", i)
		}
	}
	if res := r.Allow(key, 3); res.Admitted {
		t.Fatal("4th request within window should be rejected")
	}

	fakeNow = fakeNow.Add(61 * time.Second)
	if res := r.Allow(key, 3); !res.Admitted {
		t.Fatal("request after window elapses should be admitted")
	}
}

func TestRateLimiter_DistinctKeysIndependent(t *testing.T) {
	r := NewRateLimiter(testLogger())
	if res := r.Allow("a:m", 1); !res.Admitted {
		t.Fatal("first key should be admitted")
	}
	if res := r.Allow("a:m", 1); res.Admitted {
		t.Fatal("first key should now be limited")
	}
	if res := r.Allow("b:m", 1); !res.Admitted {
		t.Fatal("distinct key should have its own bucket")
	}
}

// TestRateLimiter_ConcurrentAdmissionsRespectLimit asserts that no two
// concurrent admissions may both observe count = limit-1.
func TestRateLimiter_ConcurrentAdmissionsRespectLimit(t *testing.T) {
	r := NewRateLimiter(testLogger())
	const limit = 50
	const attempts = 500
	key := "concurrent:tools.call"

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Allow(key, limit).Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != limit {
		t.Fatalf("admitted %d requests, want exactly %d", admitted, limit)
	}
}

func TestRateLimiter_CleanupRemovesStaleBuckets(t *testing.T) {
	r := NewRateLimiter(testLogger())
	fakeNow := time.Now()
	r.now = func() time.Time { return fakeNow }

	r.Allow("stale:m", 5)
	if r.Size() != 1 {
		t.Fatalf("expected 1 tracked key, got %d", r.Size())
	}

	fakeNow = fakeNow.Add(2 * time.Hour)
	r.cleanup()

	if r.Size() != 0 {
		t.Fatalf("expected cleanup to remove stale key, size=%d", r.Size())
	}
}

func TestRateLimiter_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewRateLimiter(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	r.StartCleanup(ctx, 10*time.Millisecond, 50*time.Millisecond)

	r.Allow("k:m", 5)
	time.Sleep(30 * time.Millisecond)

	cancel()
	r.Stop()
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	r := NewRateLimiter(testLogger())
	r.Stop()
	r.Stop()
}
