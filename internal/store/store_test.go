package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLockFilterMatch(t *testing.T) {
	tests := []struct {
		filter LockFilter
		locked bool
		want   bool
	}{
		{LockAny, true, true},
		{LockAny, false, true},
		{LockLocked, true, true},
		{LockLocked, false, false},
		{LockUnlocked, true, false},
		{LockUnlocked, false, true},
		{"", true, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.filter.Match(tt.locked), "%q.Match(%v)", tt.filter, tt.locked)
	}
}

func TestLockFilterValid(t *testing.T) {
	assert.True(t, LockLocked.Valid())
	assert.True(t, LockAny.Valid())
	assert.False(t, LockFilter("posted").Valid())
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	got := Day(time.Date(2025, 1, 15, 23, 30, 0, 0, loc))
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), got)
}
