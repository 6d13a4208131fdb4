package middleware

import (
	"sync"
	"testing"
	"time"
)

func fixedClockLockout(maxAttempts int, window time.Duration) (*FaceLockout, *time.Time) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewFaceLockout(maxAttempts, window)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestFaceLockout(t *testing.T) {
	l, now := fixedClockLockout(3, 15*time.Minute)
	start := *now

	for i := range 3 {
		a, _ := l.Begin(1)
		if a == nil {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		a.Fail()
	}

	a, retry := l.Begin(1)
	if a != nil {
		t.Fatal("user should be locked out after 3 failures")
	}
	if retry < 299*time.Second || retry > 301*time.Second {
		t.Errorf("retry after = %v, want about 5m", retry)
	}

	if a, _ := l.Begin(2); a == nil {
		t.Error("other users must not be affected")
	} else {
		a.Release()
	}

	*now = start.Add(301 * time.Second)
	a, _ = l.Begin(1)
	if a == nil {
		t.Fatal("one attempt should be available after window/attempts")
	}
	a.Fail()
	if a, _ := l.Begin(1); a != nil {
		t.Error("the refilled attempt should be used up")
	}

	l.Reset(1)
	if a, _ := l.Begin(1); a == nil {
		t.Error("reset should clear the lockout")
	}
}

func TestFaceLockoutReleaseAndSucceed(t *testing.T) {
	l, _ := fixedClockLockout(2, time.Hour)

	for range 5 {
		a, _ := l.Begin(1)
		if a == nil {
			t.Fatal("released attempts must not count")
		}
		a.Release()
		a.Fail() // ignored, the attempt is already finished
	}

	a, _ := l.Begin(1)
	a.Fail()
	a, _ = l.Begin(1)
	a.Succeed()
	for range 2 {
		a, _ := l.Begin(1)
		if a == nil {
			t.Fatal("success should restore every attempt")
		}
		a.Fail()
	}
	if a, _ := l.Begin(1); a != nil {
		t.Error("expected lockout after the allowed failures")
	}
}

func TestFaceLockoutConcurrentAdmission(t *testing.T) {
	l, _ := fixedClockLockout(3, 15*time.Minute)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted []*FaceAttempt
	)
	for range 10 {
		wg.Go(func() {
			if a, _ := l.Begin(7); a != nil {
				mu.Lock()
				admitted = append(admitted, a)
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if len(admitted) != 3 {
		t.Fatalf("admitted %d parallel attempts, want 3", len(admitted))
	}
	for _, a := range admitted {
		a.Fail()
	}
	if a, _ := l.Begin(7); a != nil {
		t.Error("expected lockout once the admitted attempts failed")
	}
}

func TestFaceLockoutPrune(t *testing.T) {
	l, now := fixedClockLockout(5, time.Minute)
	start := *now

	for id := range int64(pruneThreshold) {
		a, _ := l.Begin(id)
		a.Fail()
	}
	*now = start.Add(time.Hour)
	a, _ := l.Begin(pruneThreshold + 1)
	a.Fail()

	l.mu.Lock()
	n, inflight := len(l.buckets), len(l.inflight)
	l.mu.Unlock()
	if n != 1 {
		t.Errorf("expected refilled buckets to be pruned, %d left", n)
	}
	if inflight != 0 {
		t.Errorf("finished attempts left %d in-flight entries", inflight)
	}
}
