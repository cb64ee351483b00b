package asyncjob_test

import (
	"testing"
	"time"

	"github.com/JanetCheng0311/MARIE/internal/asyncjob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollPolicy_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		policy  asyncjob.PollPolicy
		wantErr error
	}{
		{name: "fixed", policy: asyncjob.FixedPolicy(240, 2*time.Second)},
		{name: "exponential", policy: asyncjob.ExponentialPolicy(60, 2*time.Second, 30*time.Second)},
		{
			name:   "timeout only",
			policy: asyncjob.PollPolicy{Interval: time.Second, Timeout: time.Minute},
		},
		{
			name:    "no bound",
			policy:  asyncjob.PollPolicy{Interval: time.Second},
			wantErr: asyncjob.ErrPolicyUnbounded,
		},
		{
			name:    "zero interval",
			policy:  asyncjob.FixedPolicy(3, 0),
			wantErr: asyncjob.ErrPolicyInterval,
		},
		{
			name:    "negative attempts",
			policy:  asyncjob.FixedPolicy(-1, time.Second),
			wantErr: asyncjob.ErrPolicyNegative,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.policy.Validate()
			if testCase.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestPollPolicy_FixedWaits(t *testing.T) {
	t.Parallel()

	waits := asyncjob.FixedPolicy(240, 2*time.Second).Waits(4)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second}, waits)
}

func TestPollPolicy_ExponentialWaitsAreCapped(t *testing.T) {
	t.Parallel()

	waits := asyncjob.ExponentialPolicy(10, 2*time.Second, 30*time.Second).Waits(6)
	assert.Equal(t, []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}, waits)
}

func TestPollPolicy_WithTimeoutCopies(t *testing.T) {
	t.Parallel()

	base := asyncjob.FixedPolicy(5, time.Second)
	bounded := base.WithTimeout(time.Minute)

	assert.Equal(t, time.Minute, bounded.Timeout)
	assert.Zero(t, base.Timeout)
}
