package live

import (
	"testing"
	"time"

	"github.com/starwatchapp/starwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(min int) *time.Time {
	t := time.Date(2024, 5, 1, 12, min, 0, 0, time.UTC)
	return &t
}

func TestTransition(t *testing.T) {
	tests := []struct {
		name      string
		prev      *domain.LiveRecord
		obs       Observation
		wantNext  *domain.LiveRecord
		wantFresh bool
	}{
		{
			name:     "untracked and offline stays untracked",
			obs:      Observation{Live: false},
			wantNext: nil,
		},
		{
			name:      "offline to live is a new broadcast",
			obs:       Observation{Live: true, StartedAt: at(0)},
			wantNext:  &domain.LiveRecord{IsLive: true, StartedAt: at(0)},
			wantFresh: true,
		},
		{
			name:     "same broadcast observed again",
			prev:     &domain.LiveRecord{IsLive: true, StartedAt: at(0)},
			obs:      Observation{Live: true, StartedAt: at(0)},
			wantNext: &domain.LiveRecord{IsLive: true, StartedAt: at(0)},
		},
		{
			name:      "restart while live is a new broadcast",
			prev:      &domain.LiveRecord{IsLive: true, StartedAt: at(0)},
			obs:       Observation{Live: true, StartedAt: at(20)},
			wantNext:  &domain.LiveRecord{IsLive: true, StartedAt: at(20)},
			wantFresh: true,
		},
		{
			name:     "going offline keeps the start time",
			prev:     &domain.LiveRecord{IsLive: true, StartedAt: at(0)},
			obs:      Observation{Live: false},
			wantNext: &domain.LiveRecord{IsLive: false, StartedAt: at(0)},
		},
		{
			name:     "blip back to the same broadcast is not new",
			prev:     &domain.LiveRecord{IsLive: false, StartedAt: at(0)},
			obs:      Observation{Live: true, StartedAt: at(0)},
			wantNext: &domain.LiveRecord{IsLive: true, StartedAt: at(0)},
		},
		{
			name:      "back live with a new start time",
			prev:      &domain.LiveRecord{IsLive: false, StartedAt: at(0)},
			obs:       Observation{Live: true, StartedAt: at(45)},
			wantNext:  &domain.LiveRecord{IsLive: true, StartedAt: at(45)},
			wantFresh: true,
		},
		{
			name:      "start time appearing counts as new",
			prev:      &domain.LiveRecord{IsLive: true},
			obs:       Observation{Live: true, StartedAt: at(5)},
			wantNext:  &domain.LiveRecord{IsLive: true, StartedAt: at(5)},
			wantFresh: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, fresh := Transition(tt.prev, tt.obs)
			assert.Equal(t, tt.wantFresh, fresh)
			if tt.wantNext == nil {
				assert.Nil(t, next)
				return
			}
			require.NotNil(t, next)
			assert.Equal(t, tt.wantNext.IsLive, next.IsLive)
			assert.True(t, sameInstant(tt.wantNext.StartedAt, next.StartedAt))
		})
	}
}

func TestWithinMaxAge(t *testing.T) {
	now := *at(40)
	assert.True(t, withinMaxAge(nil, now, 30*time.Minute))
	assert.True(t, withinMaxAge(at(10), now, 30*time.Minute))
	assert.False(t, withinMaxAge(at(9), now, 30*time.Minute))
}
