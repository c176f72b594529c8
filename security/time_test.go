package security

import (
	"testing"
	"time"
)

func TestIsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name      string
		expiresAt time.Time
		now       time.Time
		want      bool
	}{
		{"expires in 10 minutes", now.Add(10 * time.Minute), now, false},
		{"expires in 1 second", now.Add(time.Second), now, false},
		{"expires exactly now", now, now, true},
		{"expired 1 second ago", now.Add(-time.Second), now, true},
		{"sub-second remainder is ignored", now, now.Add(500 * time.Millisecond), true},
		{"last valid second", now.Add(time.Second), now.Add(999 * time.Millisecond), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(tt.expiresAt, tt.now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpiresAt(t *testing.T) {
	now := time.Unix(1_700_000_000, 750_000_000)

	got := ExpiresAt(now, time.Hour)
	if got.Nanosecond() != 0 {
		t.Errorf("ExpiresAt() = %v, want whole seconds", got)
	}
	if got.Unix() != 1_700_003_600 {
		t.Errorf("ExpiresAt().Unix() = %d, want %d", got.Unix(), 1_700_003_600)
	}
}

func TestRemainingSeconds(t *testing.T) {
	now := time.Unix(1_700_000_000, 250_000_000)

	tests := []struct {
		name string
		ttl  time.Duration
		want int64
	}{
		{"one hour", time.Hour, 3600},
		{"ten minutes", 10 * time.Minute, 600},
		{"one second", time.Second, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemainingSeconds(ExpiresAt(now, tt.ttl), now); got != tt.want {
				t.Errorf("RemainingSeconds() = %d, want %d", got, tt.want)
			}
		})
	}
}
