package limits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/holdergate/internal/config"
)

func testConfig() config.LimitsConfig {
	return config.LimitsConfig{
		VerifyPerMinute:  5,
		SubmitPer5Min:    3,
		StatusPerMinute:  10,
		ScanPerMinute:    10,
		LookupPerMinute:  30,
		PenaltyMinutes:   10,
		MaxFailedSubmits: 3,
		SweepMinutes:     5,
	}
}

// newLimiterAt returns a limiter whose clock the test controls.
func newLimiterAt(t *testing.T, start time.Time) (*Limiter, *time.Time) {
	t.Helper()
	now := start
	l := New(testConfig())
	l.now = func() time.Time { return now }
	t.Cleanup(l.Stop)
	return l, &now
}

func TestCheckUserConsumesWindow(t *testing.T) {
	l, _ := newLimiterAt(t, time.Now())

	for i := 0; i < 5; i++ {
		d := l.CheckUser("123", ActionVerify)
		assert.True(t, d.Allowed)
		assert.Equal(t, 4-i, d.Remaining)
	}

	d := l.CheckUser("123", ActionVerify)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestCheckUserDenialDoesNotConsume(t *testing.T) {
	l, now := newLimiterAt(t, time.Now())

	for i := 0; i < 5; i++ {
		l.CheckUser("123", ActionVerify)
	}
	// Hammering while denied must not extend or consume the window.
	for i := 0; i < 20; i++ {
		assert.False(t, l.CheckUser("123", ActionVerify).Allowed)
	}

	*now = now.Add(61 * time.Second)
	d := l.CheckUser("123", ActionVerify)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestCheckUserWindowResets(t *testing.T) {
	start := time.Now()
	l, now := newLimiterAt(t, start)

	d := l.CheckUser("123", ActionSubmit)
	require.True(t, d.Allowed)
	assert.True(t, d.ResetAt.Equal(start.Add(5*time.Minute)))

	*now = start.Add(5 * time.Minute)
	d = l.CheckUser("123", ActionSubmit)
	assert.True(t, d.Allowed)
	// Fresh window: full budget minus the check itself.
	assert.Equal(t, 2, d.Remaining)
}

func TestCheckUserIsolatesUsersAndActions(t *testing.T) {
	l, _ := newLimiterAt(t, time.Now())

	for i := 0; i < 3; i++ {
		l.CheckUser("123", ActionSubmit)
	}
	assert.False(t, l.CheckUser("123", ActionSubmit).Allowed)
	assert.True(t, l.CheckUser("456", ActionSubmit).Allowed)
	assert.True(t, l.CheckUser("123", ActionStatus).Allowed)
}

func TestPenaltyTakesPrecedence(t *testing.T) {
	start := time.Now()
	l, now := newLimiterAt(t, start)

	until := l.AddPenalty("123", ActionSubmit)
	assert.True(t, until.Equal(start.Add(10*time.Minute)))

	penalized, penaltyUntil := l.IsPenalized("123", ActionSubmit)
	assert.True(t, penalized)
	assert.True(t, penaltyUntil.Equal(until))

	// Fresh budget or not, a penalized user is denied.
	d := l.CheckUser("123", ActionSubmit)
	assert.False(t, d.Allowed)
	assert.True(t, d.ResetAt.Equal(until))

	// Other actions are unaffected.
	assert.True(t, l.CheckUser("123", ActionStatus).Allowed)

	*now = start.Add(10 * time.Minute)
	penalized, _ = l.IsPenalized("123", ActionSubmit)
	assert.False(t, penalized)
	assert.True(t, l.CheckUser("123", ActionSubmit).Allowed)
}

func TestCheckGlobal(t *testing.T) {
	l, now := newLimiterAt(t, time.Now())

	for i := 0; i < 10; i++ {
		assert.True(t, l.CheckGlobal(ActionScan).Allowed)
	}
	assert.False(t, l.CheckGlobal(ActionScan).Allowed)
	// Separate budget per action class.
	assert.True(t, l.CheckGlobal(ActionLookup).Allowed)

	*now = now.Add(time.Minute)
	assert.True(t, l.CheckGlobal(ActionScan).Allowed)
}

func TestZeroLimitDisablesAction(t *testing.T) {
	cfg := testConfig()
	cfg.StatusPerMinute = 0
	l := New(cfg)
	l.now = time.Now
	t.Cleanup(l.Stop)

	for i := 0; i < 100; i++ {
		assert.True(t, l.CheckUser("123", ActionStatus).Allowed)
	}
}

func TestSweepDropsStaleState(t *testing.T) {
	start := time.Now()
	l, now := newLimiterAt(t, start)

	l.CheckUser("123", ActionVerify)
	l.CheckGlobal(ActionScan)
	l.AddPenalty("123", ActionSubmit)

	*now = start.Add(time.Hour)
	l.sweepStale()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.users)
	assert.Empty(t, l.globals)
	assert.Empty(t, l.penalties)
}
