package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweepExpired(t *testing.T) {
	store := NewJobStore()
	now := time.Now().UTC()

	expired := finishedJob(t, store, now.Add(-90*time.Minute))
	kept := finishedJob(t, store, now.Add(-30*time.Minute))
	pending := store.Create(testQuery)

	assert.Equal(t, 1, SweepExpired(store, time.Hour, now))

	_, err := store.Get(expired)
	assert.ErrorIs(t, err, ErrJobNotFound)
	for _, id := range []string{kept, pending} {
		_, err := store.Get(id)
		assert.NoError(t, err)
	}
}

func TestStartRetention(t *testing.T) {
	store := NewJobStore()
	finishedJob(t, store, time.Now().UTC().Add(-time.Hour))

	scheduler, err := StartRetention(store, "@every 1s", time.Minute, zap.NewNop())
	require.NoError(t, err)
	defer scheduler.Stop()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestStartRetention_InvalidSchedule(t *testing.T) {
	_, err := StartRetention(NewJobStore(), "every now and then", time.Minute, zap.NewNop())
	assert.Error(t, err)
}
