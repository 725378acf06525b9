// services/scheduler.go
package services

import (
	"log"
	"time"

	"treasure-dig-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartBoxScheduler runs the periodic lifecycle jobs: activate boxes whose
// activate_at has passed, end boxes whose end_at has passed, and sweep the
// gate cooldown cache.
func (s *BoxService) StartBoxScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every minute: scheduled activations and endings.
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			now := time.Now()

			var toActivate []models.Box
			err := s.DB.Where("status = ? AND stage = ? AND activate_at IS NOT NULL AND activate_at <= ?",
				models.BoxStatusInactive, models.BoxStageConfigured, now).
				Find(&toActivate).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}
			for _, b := range toActivate {
				b.Status = models.BoxStatusActive
				b.ActivateAt = nil
				if err := s.DB.Save(&b).Error; err != nil {
					log.Printf("[Scheduler] Failed to activate box %s: %v", b.ID, err)
				} else {
					log.Printf("✅ Auto-activated box: %s", b.Slug)
				}
			}

			var toEnd []models.Box
			err = s.DB.Where("status <> ? AND end_at IS NOT NULL AND end_at <= ?",
				models.BoxStatusEnded, now).
				Find(&toEnd).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}
			for _, b := range toEnd {
				b.Status = models.BoxStatusEnded
				b.EndAt = nil
				if err := s.DB.Save(&b).Error; err != nil {
					log.Printf("[Scheduler] Failed to end box %s: %v", b.ID, err)
				} else {
					log.Printf("⏹️ Auto-ended box: %s", b.Slug)
				}
			}
		}),
	)

	// Every five minutes: drop expired cooldown cache entries.
	_, _ = sched.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(func() {
			s.Gate.SweepCooldownCache()
		}),
	)
}
