package middleware

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pruneThreshold is the bucket count above which refilled buckets are dropped.
const pruneThreshold = 1024

// FaceLockout limits failed face checks per user with a token bucket: maxAttempts
// failures are allowed at once and one more becomes available every window/maxAttempts.
// Only genuine mismatches are recorded; malformed data never locks anyone out.
//
// Attempts are admitted with Begin, which holds a token for the duration of the check,
// so parallel requests cannot run more checks than the bucket has tokens.
type FaceLockout struct {
	mu       sync.Mutex
	every    rate.Limit
	burst    int
	buckets  map[int64]*rate.Limiter
	inflight map[int64]int
	now      func() time.Time
}

// NewFaceLockout creates a lockout allowing maxAttempts failures per window.
func NewFaceLockout(maxAttempts int, window time.Duration) *FaceLockout {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &FaceLockout{
		every:    rate.Every(window / time.Duration(maxAttempts)),
		burst:    maxAttempts,
		buckets:  make(map[int64]*rate.Limiter),
		inflight: make(map[int64]int),
		now:      time.Now,
	}
}

// FaceAttempt is an admitted face check. It must be finished with exactly one of Fail,
// Succeed or Release; further calls are ignored.
type FaceAttempt struct {
	lockout *FaceLockout
	userID  int64
	once    sync.Once
}

// Begin admits a face check for userID, or reports how long until one is allowed.
func (l *FaceLockout) Begin(userID int64) (*FaceAttempt, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tokens := float64(l.burst)
	if lim, ok := l.buckets[userID]; ok {
		tokens = lim.TokensAt(l.now())
	}
	available := tokens - float64(l.inflight[userID])
	if available < 1 {
		wait := time.Duration((1 - available) / float64(l.every) * float64(time.Second))
		// Retry-After has whole-second resolution.
		return nil, time.Duration(math.Ceil(wait.Seconds())) * time.Second
	}
	l.inflight[userID]++
	return &FaceAttempt{lockout: l, userID: userID}, 0
}

// Fail records the attempt as a mismatch.
func (a *FaceAttempt) Fail() {
	a.once.Do(func() { a.lockout.finish(a.userID, true) })
}

// Succeed clears the user's failures.
func (a *FaceAttempt) Succeed() {
	a.once.Do(func() {
		a.lockout.finish(a.userID, false)
		a.lockout.Reset(a.userID)
	})
}

// Release returns the attempt without recording anything, for outcomes that say
// nothing about who is in front of the camera.
func (a *FaceAttempt) Release() {
	a.once.Do(func() { a.lockout.finish(a.userID, false) })
}

func (l *FaceLockout) finish(userID int64, failed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inflight[userID] <= 1 {
		delete(l.inflight, userID)
	} else {
		l.inflight[userID]--
	}
	if !failed {
		return
	}

	now := l.now()
	lim, ok := l.buckets[userID]
	if !ok {
		if len(l.buckets) >= pruneThreshold {
			l.prune(now)
		}
		lim = rate.NewLimiter(l.every, l.burst)
		l.buckets[userID] = lim
	}
	lim.AllowN(now, 1)
}

// Reset clears the failures of userID.
func (l *FaceLockout) Reset(userID int64) {
	l.mu.Lock()
	delete(l.buckets, userID)
	l.mu.Unlock()
}

// prune drops buckets that have fully refilled. Caller holds the lock.
func (l *FaceLockout) prune(now time.Time) {
	for id, lim := range l.buckets {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, id)
		}
	}
}
