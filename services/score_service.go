package services

import (
	"errors"
	"log"

	"word-battle-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// ScoreService accepts per-participant final scores and resolves the
// winner once both sides have reported. Submitted scores are
// client-computed and trusted as-is; see DESIGN.md.
type ScoreService struct {
	DB *gorm.DB

	// Identity, when set, backfills display names the profile mirror
	// has not caught up with yet.
	Identity *IdentityClient
}

func NewScoreService(db *gorm.DB) *ScoreService {
	return &ScoreService{DB: db}
}

type SubmitScoreRequest struct {
	Score int64              `json:"score"`
	Stats models.PlayerStats `json:"stats"`
}

// SubmitScore writes the caller's final score into its role-specific
// columns. Resubmitting overwrites — idempotent per role, never a
// duplicate. 403 when the caller is neither participant.
func (s *ScoreService) SubmitScore(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return respondError(c, err)
	}
	lobbyID := c.Params("id")

	var req SubmitScoreRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if req.Score < 0 {
		return respondError(c, ErrValidation)
	}

	var lobby models.Lobby
	if err := s.DB.First(&lobby, "id = ?", lobbyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrNotFound)
		}
		log.Printf("[Score] lookup failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	var updates map[string]interface{}
	switch {
	case lobby.HostID == userID:
		updates = map[string]interface{}{
			"host_score":      req.Score,
			"host_questions":  req.Stats.Questions,
			"host_correct":    req.Stats.Correct,
			"host_wrong":      req.Stats.Wrong,
			"host_fastest_ms": req.Stats.FastestMs,
			"host_slowest_ms": req.Stats.SlowestMs,
		}
	case lobby.OpponentID != nil && *lobby.OpponentID == userID:
		updates = map[string]interface{}{
			"opponent_score":      req.Score,
			"opponent_questions":  req.Stats.Questions,
			"opponent_correct":    req.Stats.Correct,
			"opponent_wrong":      req.Stats.Wrong,
			"opponent_fastest_ms": req.Stats.FastestMs,
			"opponent_slowest_ms": req.Stats.SlowestMs,
		}
	default:
		return respondError(c, ErrForbidden)
	}

	// Scores only make sense for a battle that actually ran.
	res := s.DB.Model(&models.Lobby{}).
		Where("id = ? AND status IN ?", lobbyID,
			[]string{models.LobbyInProgress, models.LobbyFinished}).
		Updates(updates)
	if res.Error != nil {
		log.Printf("[Score] submit write failed: %v", res.Error)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if res.RowsAffected == 0 {
		return respondError(c, ErrConflict)
	}

	return c.JSON(fiber.Map{"submitted": true})
}

type ScoreboardResponse struct {
	HostScore     *int64 `json:"host_score"`
	OpponentScore *int64 `json:"opponent_score"`
	BothSubmitted bool   `json:"both_submitted"`
}

// ReadScores is the post-game poll: each finished client watches this
// until the other side's score lands.
func (s *ScoreService) ReadScores(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return respondError(c, err)
	}

	var lobby models.Lobby
	if err := s.DB.First(&lobby, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrNotFound)
		}
		log.Printf("[Score] read failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if !lobby.HasParticipant(userID) {
		return respondError(c, ErrForbidden)
	}

	return c.JSON(ScoreboardResponse{
		HostScore:     lobby.HostScore,
		OpponentScore: lobby.OpponentScore,
		BothSubmitted: lobby.BothSubmitted(),
	})
}

// Winner values in a resolved result.
const (
	WinnerHost     = "host"
	WinnerOpponent = "opponent"
	WinnerTie      = "tie"
)

type MatchResultResponse struct {
	Winner        string `json:"winner"`
	HostName      string `json:"host_name"`
	OpponentName  string `json:"opponent_name"`
	HostScore     int64  `json:"host_score"`
	OpponentScore int64  `json:"opponent_score"`
}

// ResolveResult finalizes the battle once both scores are in. Either
// client may trigger it; the finish write is guarded and idempotent, so
// the losing racer just sees zero rows and the same result payload.
func (s *ScoreService) ResolveResult(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return respondError(c, err)
	}
	lobbyID := c.Params("id")

	var lobby models.Lobby
	if err := s.DB.First(&lobby, "id = ?", lobbyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrNotFound)
		}
		log.Printf("[Score] resolve lookup failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if !lobby.HasParticipant(userID) {
		return respondError(c, ErrForbidden)
	}
	if !lobby.BothSubmitted() {
		return respondError(c, ErrConflict)
	}

	res := s.DB.Model(&models.Lobby{}).
		Where("id = ? AND status = ? AND host_score IS NOT NULL AND opponent_score IS NOT NULL",
			lobbyID, models.LobbyInProgress).
		Update("status", models.LobbyFinished)
	if res.Error != nil {
		log.Printf("[Score] finish write failed: %v", res.Error)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	// RowsAffected == 0 here just means the other client finished the
	// race first; the result below is identical either way.

	winner := WinnerTie
	switch {
	case *lobby.HostScore > *lobby.OpponentScore:
		winner = WinnerHost
	case *lobby.OpponentScore > *lobby.HostScore:
		winner = WinnerOpponent
	}

	opponentID := ""
	if lobby.OpponentID != nil {
		opponentID = *lobby.OpponentID
	}
	return c.JSON(MatchResultResponse{
		Winner:        winner,
		HostName:      s.displayName(lobby.HostID),
		OpponentName:  s.displayName(opponentID),
		HostScore:     *lobby.HostScore,
		OpponentScore: *lobby.OpponentScore,
	})
}

// displayName resolves a user ID through the profile mirror, then the
// identity service, falling back to the raw ID.
func (s *ScoreService) displayName(userID string) string {
	if userID == "" {
		return ""
	}
	var profile models.ProfileMirror
	if err := s.DB.First(&profile, "external_user_id = ?", userID).Error; err == nil {
		return profile.DisplayName
	}
	if s.Identity != nil {
		if p, err := s.Identity.GetProfile(userID); err == nil && p.DisplayName != "" {
			return p.DisplayName
		}
	}
	return userID
}
