package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurstAndRefill(t *testing.T) {
	now := time.Unix(0, 0)
	tb := NewTokenBucket(1, 2)
	tb.now = func() time.Time { return now }
	tb.last = now

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "bucket should be empty after the burst")

	now = now.Add(time.Second)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestSlidingWindowLog(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewSlidingWindowLog(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow())
	now = now.Add(10 * time.Second)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	now = now.Add(51 * time.Second)
	assert.True(t, l.Allow(), "first stamp left the window")
	assert.False(t, l.Allow())
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		in      Settings
		wantErr bool
	}{
		{name: "default is token bucket", in: Settings{Rate: 1, Capacity: 1}},
		{name: "sliding log", in: Settings{Algorithm: AlgorithmSlidingLog, Limit: 5, Window: time.Second}},
		{name: "bad bucket", in: Settings{Algorithm: AlgorithmTokenBucket}, wantErr: true},
		{name: "bad log", in: Settings{Algorithm: AlgorithmSlidingLog, Limit: 1}, wantErr: true},
		{name: "unknown", in: Settings{Algorithm: "leakyBucket"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl, err := New(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, rl.Allow())
		})
	}
}
