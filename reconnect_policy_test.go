package hubconn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoRetryPolicyAlwaysGivesUp(t *testing.T) {
	_, ok := NoRetryPolicy{}.NextAttemptInterval(RetryContext{})
	assert.False(t, ok)
}

func TestExponentialReconnectPolicyIncreasesWithAttempts(t *testing.T) {
	p := NewExponentialReconnectPolicy()
	p.RandomizationFactor = 0 // deterministic for the assertion below

	first, ok := p.NextAttemptInterval(RetryContext{FailedAttemptsCount: 0})
	require.True(t, ok)

	second, ok := p.NextAttemptInterval(RetryContext{FailedAttemptsCount: 1})
	require.True(t, ok)

	assert.Greater(t, second, first)
}

func TestExponentialReconnectPolicyRespectsMaxElapsedTime(t *testing.T) {
	p := NewExponentialReconnectPolicy()
	p.MaxElapsedTime = time.Minute

	restore := timeSince
	defer func() { timeSince = restore }()
	timeSince = func(time.Time) time.Duration { return 2 * time.Minute }

	_, ok := p.NextAttemptInterval(RetryContext{FailedAttemptsCount: 0, ReconnectStartTime: time.Unix(0, 0)})
	assert.False(t, ok)
}

func TestExponentialReconnectPolicyCapsAtMaxInterval(t *testing.T) {
	p := NewExponentialReconnectPolicy()
	p.InitialInterval = time.Second
	p.MaxInterval = 2 * time.Second
	p.RandomizationFactor = 0

	interval, ok := p.NextAttemptInterval(RetryContext{FailedAttemptsCount: 50})
	require.True(t, ok)
	assert.LessOrEqual(t, interval, p.MaxInterval)
}
