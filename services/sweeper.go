package services

import (
	"log"
	"time"

	"word-battle-system/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Abandoned lobbies have no heartbeat to miss — a participant who
// closes the page just stops polling. The inactivity sweep is the only
// positive reclaim for those, whatever state they died in.
const InactiveThreshold = 24 * time.Hour

// SweeperService deletes stale lobbies: waiting ones past their TTL,
// and anything untouched for a long time regardless of status.
type SweeperService struct {
	DB *gorm.DB
}

func NewSweeperService(db *gorm.DB) *SweeperService {
	return &SweeperService{DB: db}
}

// SweepExpired deletes waiting lobbies whose join window closed. The
// status guard matters: a lobby that moved on past waiting must never
// be expired, no matter how old its TTL stamp is.
func (s *SweeperService) SweepExpired() (int64, error) {
	res := s.DB.Where("status = ? AND expires_at <= ?",
		models.LobbyWaiting, time.Now().UTC()).
		Delete(&models.Lobby{})
	return res.RowsAffected, res.Error
}

// SweepInactive deletes lobbies in any status whose last write is older
// than the threshold.
func (s *SweeperService) SweepInactive() (int64, error) {
	res := s.DB.Where("updated_at < ?", time.Now().UTC().Add(-InactiveThreshold)).
		Delete(&models.Lobby{})
	return res.RowsAffected, res.Error
}

// StartSweepScheduler runs both sweeps in-process. A failed pass is
// logged and retried on the next tick, never fatal.
func (s *SweeperService) StartSweepScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			n, err := s.SweepExpired()
			if err != nil {
				log.Printf("[Sweeper] expire sweep failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("[Sweeper] expired %d waiting lobbies", n)
			}
		}),
	)

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			n, err := s.SweepInactive()
			if err != nil {
				log.Printf("[Sweeper] inactive sweep failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("[Sweeper] removed %d inactive lobbies", n)
			}
		}),
	)
}

// HandleSweepExpired exposes the expire sweep to a maintenance caller.
func (s *SweeperService) HandleSweepExpired(c *fiber.Ctx) error {
	n, err := s.SweepExpired()
	if err != nil {
		log.Printf("[Sweeper] expire sweep failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "sweep failed"})
	}
	return c.JSON(fiber.Map{"deleted": n})
}

// HandleSweepInactive exposes the inactivity sweep to a maintenance caller.
func (s *SweeperService) HandleSweepInactive(c *fiber.Ctx) error {
	n, err := s.SweepInactive()
	if err != nil {
		log.Printf("[Sweeper] inactive sweep failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "sweep failed"})
	}
	return c.JSON(fiber.Map{"deleted": n})
}
