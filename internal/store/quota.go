package store

import (
	"context"
	"fmt"
	"log/slog"

	domainerrors "github.com/starwatchapp/starwatch/internal/errors"
)

// QuotaGuard estimates sync-scope usage before a write. The estimate is cheap and
// approximate: current usage, minus the bytes the key already holds, plus the new
// key and encoded value.
type QuotaGuard struct {
	scope  Scope
	quota  int64
	warn   float64
	block  float64
	logger *slog.Logger
}

// NewQuotaGuard creates a guard for scope.
func NewQuotaGuard(scope Scope, quota int64, warnRatio, blockRatio float64, logger *slog.Logger) *QuotaGuard {
	return &QuotaGuard{
		scope:  scope,
		quota:  quota,
		warn:   warnRatio,
		block:  blockRatio,
		logger: logger,
	}
}

// Estimate returns the projected bytes in use after writing value at key.
func (g *QuotaGuard) Estimate(ctx context.Context, key string, value any) (int64, error) {
	data, err := Encode(value)
	if err != nil {
		return 0, err
	}
	total, err := g.scope.BytesInUse(ctx)
	if err != nil {
		return 0, fmt.Errorf("measure %s scope: %w", g.scope.Area(), err)
	}
	current, err := g.scope.BytesInUse(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("measure %s: %w", key, err)
	}
	return total - current + int64(len(key)) + int64(len(data)), nil
}

// Check returns a CAPACITY error when the write would cross the block ratio and
// logs a warning when it crosses the warn ratio.
func (g *QuotaGuard) Check(ctx context.Context, key string, value any) error {
	projected, err := g.Estimate(ctx, key, value)
	if err != nil {
		return err
	}

	ratio := float64(projected) / float64(g.quota)
	switch {
	case ratio >= g.block:
		return domainerrors.Wrap(ErrQuotaExceeded, domainerrors.CodeCapacity, fmt.Sprintf(
			"Sync storage is full (%d of %d bytes). Export your data and delete unused tags to free space.",
			projected, g.quota))
	case ratio >= g.warn:
		if g.logger != nil {
			g.logger.Warn("sync storage nearing quota",
				"key", key,
				"projected_bytes", projected,
				"quota_bytes", g.quota,
				"ratio", ratio)
		}
	}
	return nil
}
