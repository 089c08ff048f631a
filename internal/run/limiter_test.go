package run

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitersUnlimitedByDefault(t *testing.T) {
	l := NewAdmissionLimiters(0, 0)
	ctx := context.Background()

	start := time.Now()
	for range 100 {
		require.NoError(t, l.WaitHost(ctx))
		require.NoError(t, l.WaitCompletion(ctx))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestLimiterBlocksPastBurst(t *testing.T) {
	// 60 per minute = 1/s, burst 6.
	l := NewAdmissionLimiters(0, 60)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var err error
	for range 20 {
		err = l.WaitCompletion(ctx)
		if err != nil {
			break
		}
	}
	require.Error(t, err)
}

func TestLimitersIndependent(t *testing.T) {
	// Completion exhausted; the host gate must remain open.
	l := NewAdmissionLimiters(0, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, l.WaitCompletion(ctx))
	require.Error(t, l.WaitCompletion(ctx))

	require.NoError(t, l.WaitHost(ctx))
}
