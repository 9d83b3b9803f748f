// Package quota enforces the per-identity monthly ceiling on on-demand
// scoring requests. Counters live in the store keyed by (identity, month)
// so limits survive restarts and are shared across replicas.
package quota

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/BeyondDrewTV/stylescope/internal/config"
	"github.com/BeyondDrewTV/stylescope/internal/store"
)

// ErrQuotaExceeded is returned when an identity has used up its monthly
// allowance. Callers can surface the Used/Cap figures to the user.
type ErrQuotaExceeded struct {
	Identity string
	Used     int
	Cap      int
}

func (e *ErrQuotaExceeded) Error() string {
	return eris.Errorf("quota: %s used %d of %d this month", e.Identity, e.Used, e.Cap).Error()
}

// IdentityKey derives the counter key for a request. Authenticated users
// are tracked by user ID; anonymous requests fall back to the client IP
// with any port stripped.
func IdentityKey(userID, remoteAddr string) string {
	if userID != "" {
		return "user:" + userID
	}
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "ip:unknown"
	}
	return "ip:" + host
}

// MonthKey returns the counter bucket for t, e.g. "2026-08".
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Guard checks and consumes monthly quota against the store.
type Guard struct {
	store store.Store
	cap   int
	now   func() time.Time
}

func NewGuard(s store.Store, cfg config.QuotaConfig) *Guard {
	return &Guard{store: s, cap: cfg.MonthlyCap, now: time.Now}
}

// Allow consumes one unit of quota for identity. It returns
// *ErrQuotaExceeded when the identity is at its cap; the denied call does
// not consume quota. A zero or negative cap disables enforcement.
func (g *Guard) Allow(ctx context.Context, identity string) error {
	if g.cap <= 0 {
		return nil
	}
	month := MonthKey(g.now())
	allowed, count, err := g.store.CheckAndIncrementUsage(ctx, identity, month, g.cap)
	if err != nil {
		return eris.Wrap(err, "quota: check usage")
	}
	if !allowed {
		zap.L().Info("quota: request denied",
			zap.String("identity", identity),
			zap.String("month", month),
			zap.Int("used", count),
			zap.Int("cap", g.cap))
		return &ErrQuotaExceeded{Identity: identity, Used: count, Cap: g.cap}
	}
	return nil
}

// Usage reports the identity's consumed count and cap for the current month.
func (g *Guard) Usage(ctx context.Context, identity string) (used, cap int, err error) {
	used, err = g.store.GetUsage(ctx, identity, MonthKey(g.now()))
	if err != nil {
		return 0, 0, eris.Wrap(err, "quota: get usage")
	}
	return used, g.cap, nil
}
