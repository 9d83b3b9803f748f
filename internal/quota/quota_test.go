package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BeyondDrewTV/stylescope/internal/config"
	"github.com/BeyondDrewTV/stylescope/internal/store"
)

// fakeUsageStore implements only the usage methods; everything else panics
// if reached.
type fakeUsageStore struct {
	store.Store
	counts map[string]int
	cap    int
	err    error
}

func (f *fakeUsageStore) CheckAndIncrementUsage(_ context.Context, identity, month string, cap int) (bool, int, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	key := identity + "|" + month
	if f.counts[key] >= cap {
		return false, f.counts[key], nil
	}
	f.counts[key]++
	return true, f.counts[key], nil
}

func (f *fakeUsageStore) GetUsage(_ context.Context, identity, month string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[identity+"|"+month], nil
}

func newFakeStore() *fakeUsageStore {
	return &fakeUsageStore{counts: map[string]int{}}
}

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		remoteAddr string
		want       string
	}{
		{"user preferred", "42", "10.0.0.1:3921", "user:42"},
		{"ip with port", "", "10.0.0.1:3921", "ip:10.0.0.1"},
		{"ip without port", "", "10.0.0.1", "ip:10.0.0.1"},
		{"ipv6 with port", "", "[::1]:8080", "ip:::1"},
		{"empty", "", "", "ip:unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IdentityKey(tt.userID, tt.remoteAddr))
		})
	}
}

func TestMonthKey(t *testing.T) {
	at := time.Date(2026, time.August, 29, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "2026-08", MonthKey(at))
}

func TestGuardAllowUpToCap(t *testing.T) {
	g := NewGuard(newFakeStore(), config.QuotaConfig{MonthlyCap: 3})

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Allow(context.Background(), "user:42"))
	}

	err := g.Allow(context.Background(), "user:42")
	var denied *ErrQuotaExceeded
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, 3, denied.Used)
	assert.Equal(t, 3, denied.Cap)

	// Denial did not consume quota.
	used, cap, err := g.Usage(context.Background(), "user:42")
	require.NoError(t, err)
	assert.Equal(t, 3, used)
	assert.Equal(t, 3, cap)
}

func TestGuardMonthRollover(t *testing.T) {
	f := newFakeStore()
	g := NewGuard(f, config.QuotaConfig{MonthlyCap: 1})
	g.now = func() time.Time { return time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, g.Allow(context.Background(), "ip:10.0.0.1"))
	require.Error(t, g.Allow(context.Background(), "ip:10.0.0.1"))

	g.now = func() time.Time { return time.Date(2026, time.September, 1, 0, 1, 0, 0, time.UTC) }
	assert.NoError(t, g.Allow(context.Background(), "ip:10.0.0.1"))
}

func TestGuardZeroCapDisables(t *testing.T) {
	g := NewGuard(newFakeStore(), config.QuotaConfig{MonthlyCap: 0})

	for i := 0; i < 50; i++ {
		require.NoError(t, g.Allow(context.Background(), "user:42"))
	}
}

func TestGuardStoreError(t *testing.T) {
	f := newFakeStore()
	f.err = errors.New("connection refused")
	g := NewGuard(f, config.QuotaConfig{MonthlyCap: 5})

	err := g.Allow(context.Background(), "user:42")
	require.Error(t, err)
	var denied *ErrQuotaExceeded
	assert.False(t, errors.As(err, &denied), "store failure is not a quota denial")
}
