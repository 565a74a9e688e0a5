// Package limits provides fixed-window rate limiting per user action plus
// global budgets for expensive downstream calls, with temporary penalties for
// abusive users.
package limits

import (
	"sync"
	"time"

	"github.com/pendergraft/holdergate/internal/config"
)

// Action identifies a rate-limited operation class.
type Action string

const (
	ActionVerify Action = "verify"
	ActionSubmit Action = "submit"
	ActionStatus Action = "status"
	ActionScan   Action = "scan"   // global chain RPC budget
	ActionLookup Action = "lookup" // global holdings API budget
)

// Rule is one fixed-window limit.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// window is one fixed counting window.
type window struct {
	count   int
	startAt time.Time
}

// Limiter tracks per-user and global fixed windows. Expired windows and
// penalties are dropped lazily on check and swept periodically.
type Limiter struct {
	mu        sync.Mutex
	userRules map[Action]Rule
	globRules map[Action]Rule
	users     map[string]*window // keyed user + "|" + action
	globals   map[Action]*window
	penalties map[string]time.Time // keyed user + "|" + action
	penalty   time.Duration
	sweep     time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once

	now func() time.Time // test hook
}

// New creates a limiter from config and starts its sweep goroutine.
func New(cfg config.LimitsConfig) *Limiter {
	sweep := time.Duration(cfg.SweepMinutes) * time.Minute
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}

	l := &Limiter{
		userRules: map[Action]Rule{
			ActionVerify: {Limit: cfg.VerifyPerMinute, Window: time.Minute},
			ActionSubmit: {Limit: cfg.SubmitPer5Min, Window: 5 * time.Minute},
			ActionStatus: {Limit: cfg.StatusPerMinute, Window: time.Minute},
		},
		globRules: map[Action]Rule{
			ActionScan:   {Limit: cfg.ScanPerMinute, Window: time.Minute},
			ActionLookup: {Limit: cfg.LookupPerMinute, Window: time.Minute},
		},
		users:     make(map[string]*window),
		globals:   make(map[Action]*window),
		penalties: make(map[string]time.Time),
		penalty:   time.Duration(cfg.PenaltyMinutes) * time.Minute,
		sweep:     sweep,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}

	go l.sweepLoop()

	return l
}

// Stop stops the sweep goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// CheckUser checks and consumes one unit of the user's budget for the action.
// An active penalty takes precedence over the window. Denials never consume.
func (l *Limiter) CheckUser(userID string, action Action) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := userID + "|" + string(action)

	if until, ok := l.penalties[key]; ok {
		if now.Before(until) {
			return Decision{Allowed: false, Remaining: 0, ResetAt: until}
		}
		delete(l.penalties, key)
	}

	rule, ok := l.userRules[action]
	if !ok || rule.Limit <= 0 {
		return Decision{Allowed: true, Remaining: 0, ResetAt: now}
	}
	return l.check(l.userWindow(key, rule, now), rule, now)
}

// CheckGlobal checks and consumes one unit of the process-wide budget for the
// action class.
func (l *Limiter) CheckGlobal(action Action) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	rule, ok := l.globRules[action]
	if !ok || rule.Limit <= 0 {
		return Decision{Allowed: true, Remaining: 0, ResetAt: now}
	}

	w, ok := l.globals[action]
	if !ok || now.Sub(w.startAt) >= rule.Window {
		w = &window{startAt: now}
		l.globals[action] = w
	}
	return l.check(w, rule, now)
}

// AddPenalty blocks the user's action until the configured penalty elapses.
func (l *Limiter) AddPenalty(userID string, action Action) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	until := l.now().Add(l.penalty)
	l.penalties[userID+"|"+string(action)] = until
	return until
}

// IsPenalized reports whether the user's action is under an active penalty.
func (l *Limiter) IsPenalized(userID string, action Action) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := userID + "|" + string(action)
	until, ok := l.penalties[key]
	if !ok {
		return false, time.Time{}
	}
	if !l.now().Before(until) {
		delete(l.penalties, key)
		return false, time.Time{}
	}
	return true, until
}

func (l *Limiter) userWindow(key string, rule Rule, now time.Time) *window {
	w, ok := l.users[key]
	if !ok || now.Sub(w.startAt) >= rule.Window {
		w = &window{startAt: now}
		l.users[key] = w
	}
	return w
}

func (l *Limiter) check(w *window, rule Rule, now time.Time) Decision {
	resetAt := w.startAt.Add(rule.Window)
	if w.count >= rule.Limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}
	w.count++
	return Decision{Allowed: true, Remaining: rule.Limit - w.count, ResetAt: resetAt}
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweepStale()
		case <-l.stopCh:
			return
		}
	}
}

// sweepStale drops expired windows and penalties so idle users don't pin
// memory between checks.
func (l *Limiter) sweepStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.users {
		rule, ok := l.ruleForKey(key)
		if !ok || now.Sub(w.startAt) >= rule.Window {
			delete(l.users, key)
		}
	}
	for action, w := range l.globals {
		if rule, ok := l.globRules[action]; !ok || now.Sub(w.startAt) >= rule.Window {
			delete(l.globals, action)
		}
	}
	for key, until := range l.penalties {
		if !now.Before(until) {
			delete(l.penalties, key)
		}
	}
}

func (l *Limiter) ruleForKey(key string) (Rule, bool) {
	for action, rule := range l.userRules {
		suffix := "|" + string(action)
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
			return rule, true
		}
	}
	return Rule{}, false
}
