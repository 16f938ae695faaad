// services/scheduler.go
package services

import (
	"log"
	"time"

	"game-results-system/models"

	"github.com/go-co-op/gocron/v2"
)

// StartAutoFinalizeScheduler finalizes games whose end time has passed
// while results were left IN_PROGRESS. Games without any recorded set
// scores are left alone so an abandoned game never finalizes empty.
func (s *ResultsService) StartAutoFinalizeScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			var games []models.Game
			now := time.Now()
			err := s.DB.Where("results_status = ? AND end_time IS NOT NULL AND end_time <= ?",
				models.ResultsStatusInProgress, now).
				Find(&games).Error
			if err != nil {
				log.Printf("[Scheduler] DB error: %v", err)
				return
			}

			for _, g := range games {
				var setCount int64
				err := s.DB.Model(&models.SetScore{}).
					Joins("JOIN matches ON matches.id = set_scores.match_id").
					Joins("JOIN rounds ON rounds.id = matches.round_id").
					Where("rounds.game_id = ?", g.ID).
					Where("set_scores.team_a_score > 0 OR set_scores.team_b_score > 0").
					Count(&setCount).Error
				if err != nil {
					log.Printf("[Scheduler] set count failed for game %s: %v", g.ID, err)
					continue
				}
				if setCount == 0 {
					continue
				}

				if _, err := s.RecalculateOutcomes(g.ID); err != nil {
					log.Printf("[Scheduler] Failed to finalize game %s: %v", g.ID, err)
				} else {
					log.Printf("✅ Auto-finalized game: %s", g.Name)
				}
			}
		}),
	)
}
