package services

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweepExpired entfernt alle Jobs, die seit mehr als ttl beendet sind.
func SweepExpired(store *JobStore, ttl time.Duration, now time.Time) int {
	removed := store.Sweep(now.Add(-ttl))
	jobsEvicted.Add(float64(removed))
	return removed
}

// StartRetention plant das regelmäßige Aufräumen beendeter Jobs.
// Der zurückgegebene Scheduler läuft bereits und muss beim Beenden gestoppt werden.
func StartRetention(store *JobStore, schedule string, ttl time.Duration, logger *zap.Logger) (*cron.Cron, error) {
	scheduler := cron.New()
	_, err := scheduler.AddFunc(schedule, func() {
		if removed := SweepExpired(store, ttl, time.Now().UTC()); removed > 0 {
			logger.Info("Abgelaufene Jobs entfernt", zap.Int("removed", removed), zap.Int("remaining", store.Len()))
		}
	})
	if err != nil {
		return nil, err
	}
	scheduler.Start()
	return scheduler, nil
}
