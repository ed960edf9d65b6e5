package services

import (
	"errors"
	"log"
	"time"

	"word-battle-system/models"
	"word-battle-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LobbyService owns the battle lobby state machine. Every mutation is a
// single guarded conditional write: the precondition is part of the
// UPDATE predicate, and zero affected rows means the state moved under
// the caller (surfaced as 409, never retried blindly).
type LobbyService struct {
	DB *gorm.DB

	// Identity, when set, backfills host display names the profile
	// mirror has not caught up with yet.
	Identity *IdentityClient
}

func NewLobbyService(db *gorm.DB) *LobbyService {
	return &LobbyService{DB: db}
}

// callerID reads the user identity set by UserContextMiddleware.
func callerID(c *fiber.Ctx) (string, error) {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return "", ErrUnauthorized
	}
	return userID, nil
}

type CreateLobbyRequest struct {
	Category      string `json:"category"`
	Subcategory   int    `json:"subcategory"`
	NumQuestions  int    `json:"num_questions"`
	TimerDuration int    `json:"timer_duration"`
	GameMode      string `json:"game_mode"`
}

func (r *CreateLobbyRequest) validate() error {
	if r.Category == "" {
		return ErrValidation
	}
	if r.GameMode != models.ModeVocab && r.GameMode != models.ModeSentence {
		return ErrValidation
	}
	if r.NumQuestions < 1 || r.NumQuestions > 50 {
		return ErrValidation
	}
	if r.TimerDuration < 5 || r.TimerDuration > 120 {
		return ErrValidation
	}
	if r.Subcategory < 0 {
		return ErrValidation
	}
	return nil
}

// CreateLobby opens a new waiting lobby with a fresh shareable code.
func (s *LobbyService) CreateLobby(c *fiber.Ctx) error {
	hostID, err := callerID(c)
	if err != nil {
		return respondError(c, err)
	}

	var req CreateLobbyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if err := req.validate(); err != nil {
		return respondError(c, err)
	}

	now := time.Now().UTC()
	lobby := models.Lobby{
		ID:            uuid.NewString(),
		HostID:        hostID,
		Category:      req.Category,
		Subcategory:   req.Subcategory,
		NumQuestions:  req.NumQuestions,
		TimerDuration: req.TimerDuration,
		GameMode:      req.GameMode,
		Status:        models.LobbyWaiting,
		Approval:      models.ApprovalPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(models.LobbyTTL),
	}

	// Codes collide rarely; retry a handful of times on the unique index.
	for attempt := 0; attempt < 5; attempt++ {
		code, err := utils.GenerateGameCode()
		if err != nil {
			log.Printf("[Lobby] code generation failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "internal error"})
		}
		lobby.GameCode = code

		err = s.DB.Create(&lobby).Error
		if err == nil {
			return c.Status(fiber.StatusCreated).JSON(lobby)
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Printf("[Lobby] create failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "database error"})
		}
	}

	log.Printf("[Lobby] exhausted game code attempts for host %s", hostID)
	return c.Status(500).JSON(fiber.Map{"error": "could not allocate game code"})
}

// UpdateLobbyConfig lets the host retune the battle before it starts.
// Configuration freezes once status reaches in_progress.
func (s *LobbyService) UpdateLobbyConfig(c *fiber.Ctx) error {
	var req CreateLobbyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON", "details": err.Error()})
	}
	if err := req.validate(); err != nil {
		return respondError(c, err)
	}

	return s.hostGuardedUpdate(c, func(lobbyID, hostID string) *gorm.DB {
		return s.DB.Model(&models.Lobby{}).
			Where("id = ? AND host_id = ? AND status IN ?",
				lobbyID, hostID, []string{models.LobbyWaiting, models.LobbyOpponentJoined}).
			Updates(map[string]interface{}{
				"category":       req.Category,
				"subcategory":    req.Subcategory,
				"num_questions":  req.NumQuestions,
				"timer_duration": req.TimerDuration,
				"game_mode":      req.GameMode,
			})
	})
}

// LobbyPreview is the public-safe summary shown before joining.
type LobbyPreview struct {
	GameCode      string `json:"game_code"`
	HostName      string `json:"host_name"`
	Category      string `json:"category"`
	Subcategory   int    `json:"subcategory"`
	NumQuestions  int    `json:"num_questions"`
	TimerDuration int    `json:"timer_duration"`
	GameMode      string `json:"game_mode"`
	Status        string `json:"status"`
}

// PreviewLobby resolves a game code to a joinability summary without
// mutating anything. 404 unknown, 410 expired, 409 full or closed.
func (s *LobbyService) PreviewLobby(c *fiber.Ctx) error {
	code := c.Params("code")

	var lobby models.Lobby
	if err := s.DB.First(&lobby, "game_code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrNotFound)
		}
		log.Printf("[Lobby] preview lookup failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	if lobby.Status == models.LobbyWaiting && !time.Now().UTC().Before(lobby.ExpiresAt) {
		return respondError(c, ErrExpired)
	}
	if lobby.Status != models.LobbyWaiting {
		return respondError(c, ErrLobbyClosed)
	}
	if lobby.OpponentID != nil {
		return respondError(c, ErrLobbyFull)
	}

	hostName := lobby.HostID
	var profile models.ProfileMirror
	if err := s.DB.First(&profile, "external_user_id = ?", lobby.HostID).Error; err == nil {
		hostName = profile.DisplayName
	} else if s.Identity != nil {
		if p, err := s.Identity.GetProfile(lobby.HostID); err == nil && p.DisplayName != "" {
			hostName = p.DisplayName
		}
	}

	return c.JSON(LobbyPreview{
		GameCode:      lobby.GameCode,
		HostName:      hostName,
		Category:      lobby.Category,
		Subcategory:   lobby.Subcategory,
		NumQuestions:  lobby.NumQuestions,
		TimerDuration: lobby.TimerDuration,
		GameMode:      lobby.GameMode,
		Status:        lobby.Status,
	})
}

// JoinLobby takes the second seat. The guard encodes every join
// precondition, so two racing joiners cannot both win.
func (s *LobbyService) JoinLobby(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return respondError(c, err)
	}
	code := c.Params("code")
	now := time.Now().UTC()

	res := s.DB.Model(&models.Lobby{}).
		Where("game_code = ? AND status = ? AND opponent_id IS NULL AND expires_at > ? AND host_id <> ?",
			code, models.LobbyWaiting, now, userID).
		Updates(map[string]interface{}{
			"opponent_id":    userID,
			"status":         models.LobbyOpponentJoined,
			"approval":       models.ApprovalPending,
			"opponent_ready": false,
		})
	if res.Error != nil {
		log.Printf("[Lobby] join write failed: %v", res.Error)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if res.RowsAffected == 0 {
		return respondError(c, s.classifyJoinFailure(code, userID, now))
	}

	var lobby models.Lobby
	if err := s.DB.First(&lobby, "game_code = ?", code).Error; err != nil {
		log.Printf("[Lobby] join re-read failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(lobby)
}

// classifyJoinFailure re-reads after a zero-row join so the caller gets
// a precise status instead of a bare conflict.
func (s *LobbyService) classifyJoinFailure(code, userID string, now time.Time) error {
	var lobby models.Lobby
	if err := s.DB.First(&lobby, "game_code = ?", code).Error; err != nil {
		return ErrNotFound
	}
	switch {
	case lobby.HostID == userID:
		return ErrForbidden
	case lobby.Status == models.LobbyWaiting && !now.Before(lobby.ExpiresAt):
		return ErrExpired
	case lobby.Status != models.LobbyWaiting:
		return ErrLobbyClosed
	case lobby.OpponentID != nil:
		return ErrLobbyFull
	default:
		return ErrConflict
	}
}

// GetLobby is the poll read. Participants only.
func (s *LobbyService) GetLobby(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return respondError(c, err)
	}

	var lobby models.Lobby
	if err := s.DB.First(&lobby, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrNotFound)
		}
		log.Printf("[Lobby] get failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if !lobby.HasParticipant(userID) {
		return respondError(c, ErrForbidden)
	}
	return c.JSON(lobby)
}

// GetMyLobby returns the caller's live lobby, if any, so a reloaded
// client can re-enter instead of creating a duplicate.
func (s *LobbyService) GetMyLobby(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return respondError(c, err)
	}

	// Finished matches wait for the inactivity sweep; they are not a
	// lobby to re-enter.
	var lobby models.Lobby
	err = s.DB.Where("(host_id = ? OR opponent_id = ?) AND status <> ?",
		userID, userID, models.LobbyFinished).
		Order("created_at DESC").
		First(&lobby).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, ErrNotFound)
		}
		log.Printf("[Lobby] mine lookup failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(lobby)
}

// AcceptOpponent flips approval to accepted. Host only, pending only.
func (s *LobbyService) AcceptOpponent(c *fiber.Ctx) error {
	return s.hostGuardedUpdate(c, func(lobbyID, hostID string) *gorm.DB {
		return s.DB.Model(&models.Lobby{}).
			Where("id = ? AND host_id = ? AND status = ? AND approval = ?",
				lobbyID, hostID, models.LobbyOpponentJoined, models.ApprovalPending).
			Update("approval", models.ApprovalAccepted)
	})
}

// RejectOpponent refuses the joiner and reopens the lobby.
func (s *LobbyService) RejectOpponent(c *fiber.Ctx) error {
	return s.hostGuardedUpdate(c, func(lobbyID, hostID string) *gorm.DB {
		return s.detachOpponentWrite(lobbyID, hostID)
	})
}

// KickOpponent removes the joiner in any pre-game sub-state. Same
// atomic reset as reject.
func (s *LobbyService) KickOpponent(c *fiber.Ctx) error {
	return s.hostGuardedUpdate(c, func(lobbyID, hostID string) *gorm.DB {
		return s.detachOpponentWrite(lobbyID, hostID)
	})
}

// detachOpponentWrite clears the second seat. The four fields move in
// one write so a poller never observes a half-applied reset. Approval
// returns to pending: a detached lobby is back to "never asked".
func (s *LobbyService) detachOpponentWrite(lobbyID, hostID string) *gorm.DB {
	return s.DB.Model(&models.Lobby{}).
		Where("id = ? AND host_id = ? AND status = ? AND opponent_id IS NOT NULL",
			lobbyID, hostID, models.LobbyOpponentJoined).
		Updates(map[string]interface{}{
			"opponent_id":    nil,
			"approval":       models.ApprovalPending,
			"opponent_ready": false,
			"status":         models.LobbyWaiting,
		})
}

// MarkReady is the joined participant's only state-machine move.
// Requires prior host approval.
func (s *LobbyService) MarkReady(c *fiber.Ctx) error {
	userID, err := callerID(c)
	if err != nil {
		return respondError(c, err)
	}
	lobbyID := c.Params("id")

	res := s.DB.Model(&models.Lobby{}).
		Where("id = ? AND opponent_id = ? AND status = ? AND approval = ?",
			lobbyID, userID, models.LobbyOpponentJoined, models.ApprovalAccepted).
		Update("opponent_ready", true)
	return s.finishGuarded(c, res, lobbyID, userID, roleOpponent)
}

// LeaveLobby handles both roles: the host leaving destroys the lobby,
// the opponent leaving reopens it.
func (s *LobbyService) LeaveLobby(c *fiber.Ctx) error {
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
		log.Printf("[Lobby] leave lookup failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}

	switch {
	case lobby.HostID == userID:
		// Terminal for the lobby, in any state.
		if err := s.DB.Where("id = ? AND host_id = ?", lobbyID, userID).
			Delete(&models.Lobby{}).Error; err != nil {
			log.Printf("[Lobby] host leave delete failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "database error"})
		}
		return c.JSON(fiber.Map{"left": true, "deleted": true})
	case lobby.OpponentID != nil && *lobby.OpponentID == userID:
		res := s.DB.Model(&models.Lobby{}).
			Where("id = ? AND opponent_id = ? AND status = ?",
				lobbyID, userID, models.LobbyOpponentJoined).
			Updates(map[string]interface{}{
				"opponent_id":    nil,
				"approval":       models.ApprovalPending,
				"opponent_ready": false,
				"status":         models.LobbyWaiting,
			})
		return s.finishGuarded(c, res, lobbyID, userID, roleOpponent)
	default:
		return respondError(c, ErrForbidden)
	}
}

// StartMatch moves the lobby into play. The guard is the whole point:
// accepted AND ready must still hold at the instant of the write.
func (s *LobbyService) StartMatch(c *fiber.Ctx) error {
	return s.hostGuardedUpdate(c, func(lobbyID, hostID string) *gorm.DB {
		return s.DB.Model(&models.Lobby{}).
			Where("id = ? AND host_id = ? AND status = ? AND approval = ? AND opponent_ready = ?",
				lobbyID, hostID, models.LobbyOpponentJoined, models.ApprovalAccepted, true).
			Updates(map[string]interface{}{
				"status":     models.LobbyInProgress,
				"started_at": time.Now().UTC(),
			})
	})
}

// ResetMatch supports "play again" without re-sharing the code: scores,
// stats and readiness are wiped, code and configuration survive. The
// in-row CASE keeps the write atomic whether or not an opponent is
// still seated.
func (s *LobbyService) ResetMatch(c *fiber.Ctx) error {
	return s.hostGuardedUpdate(c, func(lobbyID, hostID string) *gorm.DB {
		return s.DB.Model(&models.Lobby{}).
			Where("id = ? AND host_id = ? AND status = ?",
				lobbyID, hostID, models.LobbyInProgress).
			Updates(map[string]interface{}{
				"status": gorm.Expr("CASE WHEN opponent_id IS NULL THEN ? ELSE ? END",
					models.LobbyWaiting, models.LobbyOpponentJoined),
				"approval": gorm.Expr("CASE WHEN opponent_id IS NULL THEN ? ELSE approval END",
					models.ApprovalPending),
				"opponent_ready":      false,
				"started_at":          nil,
				"host_score":          nil,
				"opponent_score":      nil,
				"host_questions":      0,
				"host_correct":        0,
				"host_wrong":          0,
				"host_fastest_ms":     0,
				"host_slowest_ms":     0,
				"opponent_questions":  0,
				"opponent_correct":    0,
				"opponent_wrong":      0,
				"opponent_fastest_ms": 0,
				"opponent_slowest_ms": 0,
			})
	})
}

type roleKind int

const (
	roleHost roleKind = iota
	roleOpponent
)

// hostGuardedUpdate runs a host-only guarded write and translates the
// outcome: zero rows from a non-host caller is Forbidden, zero rows
// from the host is Conflict (the state moved), success echoes the row.
func (s *LobbyService) hostGuardedUpdate(c *fiber.Ctx, write func(lobbyID, hostID string) *gorm.DB) error {
	userID, err := callerID(c)
	if err != nil {
		return respondError(c, err)
	}
	lobbyID := c.Params("id")
	res := write(lobbyID, userID)
	return s.finishGuarded(c, res, lobbyID, userID, roleHost)
}

// finishGuarded classifies the result of a guarded write and, on
// success, returns the fresh lobby snapshot.
func (s *LobbyService) finishGuarded(c *fiber.Ctx, res *gorm.DB, lobbyID, userID string, role roleKind) error {
	if res.Error != nil {
		log.Printf("[Lobby] guarded write failed for %s: %v", lobbyID, res.Error)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	if res.RowsAffected == 0 {
		var lobby models.Lobby
		if err := s.DB.First(&lobby, "id = ?", lobbyID).Error; err != nil {
			return respondError(c, ErrNotFound)
		}
		if role == roleHost && lobby.HostID != userID {
			return respondError(c, ErrForbidden)
		}
		if role == roleOpponent && (lobby.OpponentID == nil || *lobby.OpponentID != userID) {
			return respondError(c, ErrForbidden)
		}
		return respondError(c, ErrConflict)
	}

	var lobby models.Lobby
	if err := s.DB.First(&lobby, "id = ?", lobbyID).Error; err != nil {
		log.Printf("[Lobby] post-write read failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "database error"})
	}
	return c.JSON(lobby)
}
