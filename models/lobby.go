package models

import (
	"time"
)

// Lobby statuses
const (
	LobbyWaiting        = "waiting"
	LobbyOpponentJoined = "opponent_joined"
	LobbyInProgress     = "in_progress"
	LobbyFinished       = "finished"
)

// Opponent approval states. Tri-state on purpose: "pending" (never asked
// or asked and undecided) must stay distinguishable from "rejected".
const (
	ApprovalPending  = "pending"
	ApprovalAccepted = "accepted"
	ApprovalRejected = "rejected"
)

// Game modes
const (
	ModeVocab    = "vocab"
	ModeSentence = "sentence"
)

// A waiting lobby is joinable for this long after creation.
const LobbyTTL = 5 * time.Minute

// PlayerStats is one participant's per-match stat block.
type PlayerStats struct {
	Questions int   `json:"questions"`
	Correct   int   `json:"correct"`
	Wrong     int   `json:"wrong"`
	FastestMs int64 `json:"fastest_ms"`
	SlowestMs int64 `json:"slowest_ms"`
}

// Lobby is the shared record driving one player-vs-player battle.
// Both clients poll it; every mutation is a guarded conditional write.
// Rows are hard-deleted, so the unique index on game_code enforces
// code uniqueness among live lobbies only.
type Lobby struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	GameCode string `gorm:"type:varchar(6);uniqueIndex;not null" json:"game_code"`

	HostID     string  `gorm:"type:uuid;index;not null" json:"host_id"`
	OpponentID *string `gorm:"type:uuid;index" json:"opponent_id,omitempty"`

	// Battle configuration. Host-editable until the match starts,
	// immutable afterwards. Subcategory 0 = mix all subcategories.
	Category      string `gorm:"type:varchar(64);not null" json:"category"`
	Subcategory   int    `gorm:"not null;default:0" json:"subcategory"`
	NumQuestions  int    `gorm:"not null" json:"num_questions"`
	TimerDuration int    `gorm:"not null" json:"timer_duration"` // seconds per question
	GameMode      string `gorm:"type:varchar(16);not null;check:game_mode IN ('vocab','sentence')" json:"game_mode"`

	Status        string `gorm:"type:varchar(16);not null;index" json:"status"`
	Approval      string `gorm:"type:varchar(16);not null;default:'pending'" json:"approval"`
	OpponentReady bool   `gorm:"not null;default:false" json:"opponent_ready"`

	HostScore     *int64      `json:"host_score,omitempty"`
	OpponentScore *int64      `json:"opponent_score,omitempty"`
	HostStats     PlayerStats `gorm:"embedded;embeddedPrefix:host_" json:"host_stats"`
	OpponentStats PlayerStats `gorm:"embedded;embeddedPrefix:opponent_" json:"opponent_stats"`

	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null;index" json:"updated_at"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

func (Lobby) TableName() string { return "lobbies" }

// HasParticipant reports whether userID is the host or the joined opponent.
func (l *Lobby) HasParticipant(userID string) bool {
	return l.HostID == userID || (l.OpponentID != nil && *l.OpponentID == userID)
}

// BothSubmitted is true once both final scores have been recorded.
func (l *Lobby) BothSubmitted() bool {
	return l.HostScore != nil && l.OpponentScore != nil
}
